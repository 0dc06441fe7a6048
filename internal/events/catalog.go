package events

import (
	"fmt"
	"math/big"

	"github.com/wfunc/survivor-indexer/internal/abi"
	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
)

// Catalog 事件目录：结构定义表、事件到结构的绑定以及选择器路由表，构造后只读
type Catalog struct {
	reg       *abi.Registry
	selectors map[string]Kind
	byKind    map[Kind]codec.Felt
}

// NewCatalog 构造事件目录
func NewCatalog() (*Catalog, error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		reg:       reg,
		selectors: make(map[string]Kind),
		byKind:    make(map[Kind]codec.Felt),
	}
	for _, k := range AllKinds() {
		sel := SelectorOf(k.String())
		if prev, dup := c.selectors[sel.Hex()]; dup {
			return nil, errors.Newf(errors.ErrInvalidSchema, "选择器冲突: %s 与 %s", prev, k)
		}
		c.selectors[sel.Hex()] = k
		c.byKind[k] = sel
	}
	return c, nil
}

// MustCatalog 构造失败时panic
func MustCatalog() *Catalog {
	c, err := NewCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// Registry 结构定义表
func (c *Catalog) Registry() *abi.Registry {
	return c.reg
}

// Selector 事件种类的选择器
func (c *Catalog) Selector(k Kind) codec.Felt {
	return c.byKind[k]
}

// Lookup 由选择器查找事件种类
func (c *Catalog) Lookup(sel codec.Felt) (Kind, bool) {
	k, ok := c.selectors[sel.Hex()]
	return k, ok
}

// Encode 把记录编码为事件负载
func (c *Catalog) Encode(k Kind, rec abi.Record) ([]codec.Felt, error) {
	return c.reg.Encode(k.String(), rec)
}

// Decode 路由并解码原始事件
func (c *Catalog) Decode(ev chain.Event) (Event, error) {
	sel, ok := ev.Selector()
	if !ok {
		return nil, errors.New(errors.ErrUnknownSelector, "事件没有 key")
	}
	k, ok := c.Lookup(sel)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownSelector, "selector=%s", sel.Hex())
	}
	return c.DecodeKind(k, ev.Data)
}

// DecodeKind 按事件种类解码负载
func (c *Catalog) DecodeKind(k Kind, data []codec.Felt) (Event, error) {
	rec, err := c.reg.Decode(k.String(), data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrMalformedPayload, "event=%s", k)
	}

	f := newFields(rec)
	var ev Event
	switch k {
	case KindStartGame:
		meta := f.sub("adventurer_meta")
		ev = StartGame{
			Envelope: f.envelope(),
			Metadata: AdventurerMetadata{
				StartBlock: meta.uint("start_block", 64),
				Name:       codec.DecodeShortString(meta.bytes("name")),
			},
			RevealBlock: f.uint("reveal_block", 64),
		}
	case KindAdventurerUpgraded:
		ev = AdventurerUpgraded{
			BagEnvelope: f.bagEnvelope(),
			Increases: Stats{
				Strength:     f.u8("strength_increase"),
				Dexterity:    f.u8("dexterity_increase"),
				Vitality:     f.u8("vitality_increase"),
				Intelligence: f.u8("intelligence_increase"),
				Wisdom:       f.u8("wisdom_increase"),
				Charisma:     f.u8("charisma_increase"),
			},
		}
	case KindDiscoveredHealth:
		ev = DiscoveredHealth{Envelope: f.envelope(), Amount: f.u16("amount")}
	case KindDiscoveredGold:
		ev = DiscoveredGold{Envelope: f.envelope(), Amount: f.u16("amount")}
	case KindDiscoveredXP:
		ev = DiscoveredXP{Envelope: f.envelope(), Amount: f.u16("amount")}
	case KindDodgedObstacle:
		ev = DodgedObstacle{Envelope: f.envelope(), Obstacle: f.sub("obstacle").obstacle()}
	case KindHitByObstacle:
		ev = HitByObstacle{Envelope: f.envelope(), Obstacle: f.sub("obstacle").obstacle()}
	case KindDiscoveredBeast:
		ev = DiscoveredBeast{Envelope: f.envelope(), Encounter: f.encounter()}
	case KindAmbushedByBeast:
		ev = AmbushedByBeast{Envelope: f.envelope(), Encounter: f.encounter(), Strike: f.strike()}
	case KindAttackedBeast:
		ev = AttackedBeast{Envelope: f.envelope(), Encounter: f.encounter(), Strike: f.strike()}
	case KindAttackedByBeast:
		ev = AttackedByBeast{Envelope: f.envelope(), Encounter: f.encounter(), Strike: f.strike()}
	case KindSlayedBeast:
		ev = SlayedBeast{
			Envelope:           f.envelope(),
			Encounter:          f.encounter(),
			DamageDealt:        f.u16("damage_dealt"),
			CriticalHit:        f.bool("critical_hit"),
			XPEarnedAdventurer: f.u16("xp_earned_adventurer"),
			XPEarnedItems:      f.u16("xp_earned_items"),
			GoldEarned:         f.u16("gold_earned"),
		}
	case KindFleeFailed:
		ev = FleeFailed{Envelope: f.envelope(), Encounter: f.encounter()}
	case KindFleeSucceeded:
		ev = FleeSucceeded{Envelope: f.envelope(), Encounter: f.encounter()}
	case KindIdleDeathPenalty:
		ev = IdleDeathPenalty{
			Envelope:         f.envelope(),
			IdleBlocks:       f.u16("idle_blocks"),
			PenaltyThreshold: f.u16("penalty_threshold"),
			Caller:           f.felt("caller"),
		}
	case KindPurchasedItems:
		ev = PurchasedItems{BagEnvelope: f.bagEnvelope(), Purchases: f.lootList("purchases")}
	case KindPurchasedPotions:
		ev = PurchasedPotions{
			Envelope: f.envelope(),
			Quantity: f.u8("quantity"),
			Cost:     f.u16("cost"),
			Health:   f.u16("health"),
		}
	case KindNewItemsAvailable:
		ev = NewItemsAvailable{Envelope: f.envelope(), Items: f.lootList("items")}
	case KindEquippedItems:
		ev = EquippedItems{
			BagEnvelope: f.bagEnvelope(),
			Equipped:    f.u8List("equipped_items"),
			Unequipped:  f.u8List("unequipped_items"),
		}
	case KindDroppedItems:
		ev = DroppedItems{BagEnvelope: f.bagEnvelope(), ItemIDs: f.u8List("item_ids")}
	case KindItemSpecialUnlocked:
		ev = ItemSpecialUnlocked{
			Envelope: f.envelope(),
			ItemID:   f.u8("id"),
			Level:    f.u8("level"),
			Specials: f.sub("specials").specials(),
		}
	case KindItemsLeveledUp:
		raw := f.list("items")
		items := make([]ItemLevel, len(raw))
		for i, v := range raw {
			items[i] = f.elem(v, "items").itemLevel()
		}
		ev = ItemsLeveledUp{Envelope: f.envelope(), Items: items}
	case KindNewHighScore:
		ev = NewHighScore{Envelope: f.envelope(), Rank: f.u8("rank"), Prize: f.num("prize")}
	case KindAdventurerDied:
		ev = AdventurerDied{
			Envelope:         f.envelope(),
			KilledByBeast:    OptID(f.u8("killed_by_beast")),
			KilledByObstacle: OptID(f.u8("killed_by_obstacle")),
			Caller:           f.felt("caller_address"),
		}
	case KindAdventurerLeveledUp:
		ev = AdventurerLeveledUp{
			Envelope:      f.envelope(),
			PreviousLevel: f.u8("previous_level"),
			NewLevel:      f.u8("new_level"),
		}
	default:
		return nil, errors.Newf(errors.ErrHandlerMissing, "event=%s", k)
	}

	if err := f.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrSchemaMismatch, "event=%s", k)
	}
	return ev, nil
}

// fields 把解码记录转换为强类型结构，第一个错误之后的读取返回零值
type fields struct {
	rec  abi.Record
	path string
	err  *error
}

func newFields(rec abi.Record) *fields {
	var err error
	return &fields{rec: rec, err: &err}
}

// Err 第一个转换错误
func (f *fields) Err() error {
	return *f.err
}

func (f *fields) fail(name, want string) {
	if *f.err == nil {
		*f.err = errors.Newf(errors.ErrSchemaMismatch, "字段 %s%s 不是 %s", f.path, name, want)
	}
}

func (f *fields) num(name string) *big.Int {
	v, ok := f.rec[name].(*big.Int)
	if !ok || v == nil {
		f.fail(name, "整数")
		return new(big.Int)
	}
	return v
}

func (f *fields) uint(name string, bits int) uint64 {
	v := f.num(name)
	if v.BitLen() > bits {
		f.fail(name, fmt.Sprintf("u%d", bits))
		return 0
	}
	return v.Uint64()
}

func (f *fields) u8(name string) uint8   { return uint8(f.uint(name, 8)) }
func (f *fields) u16(name string) uint16 { return uint16(f.uint(name, 16)) }

func (f *fields) felt(name string) codec.Felt {
	v, err := codec.NewFelt(f.num(name))
	if err != nil {
		f.fail(name, "felt")
	}
	return v
}

func (f *fields) bool(name string) bool {
	v, ok := f.rec[name].(bool)
	if !ok {
		f.fail(name, "bool")
	}
	return v
}

func (f *fields) bytes(name string) []byte {
	v, ok := f.rec[name].([]byte)
	if !ok {
		f.fail(name, "bytes")
	}
	return v
}

func (f *fields) sub(name string) *fields {
	return f.elem(f.rec[name], name)
}

func (f *fields) elem(v any, name string) *fields {
	rec, ok := v.(abi.Record)
	if !ok {
		f.fail(name, "struct")
		rec = abi.Record{}
	}
	return &fields{rec: rec, path: f.path + name + ".", err: f.err}
}

func (f *fields) list(name string) []any {
	v, ok := f.rec[name].([]any)
	if !ok {
		f.fail(name, "array")
	}
	return v
}

func (f *fields) u8List(name string) []uint8 {
	raw := f.list(name)
	out := make([]uint8, 0, len(raw))
	for _, v := range raw {
		n, ok := v.(*big.Int)
		if !ok || n.BitLen() > 8 {
			f.fail(name, "Array<u8>")
			return nil
		}
		out = append(out, uint8(n.Uint64()))
	}
	return out
}

func (f *fields) lootList(name string) []LootWithPrice {
	raw := f.list(name)
	out := make([]LootWithPrice, len(raw))
	for i, v := range raw {
		e := f.elem(v, name)
		item := e.sub("item")
		out[i] = LootWithPrice{
			Loot: Loot{
				ID:       item.u8("id"),
				Tier:     item.u8("tier"),
				ItemType: item.u8("item_type"),
				Slot:     item.u8("slot"),
			},
			Price: e.u16("price"),
		}
	}
	return out
}

func (f *fields) envelope() Envelope {
	return Envelope{State: f.sub("adventurer_state").state()}
}

func (f *fields) bagEnvelope() BagEnvelope {
	sb := f.sub("adventurer_state_with_bag")
	return BagEnvelope{
		Envelope: Envelope{State: sb.sub("adventurer_state").state()},
		Bag:      sb.sub("bag").bag(),
	}
}

func (f *fields) state() AdventurerState {
	return AdventurerState{
		Owner:        f.felt("owner"),
		AdventurerID: f.felt("adventurer_id"),
		Adventurer:   f.sub("adventurer").adventurer(),
	}
}

func (f *fields) adventurer() Adventurer {
	stats := f.sub("stats")
	eq := f.sub("equipment")
	return Adventurer{
		LastActionBlock: f.u16("last_action_block"),
		Health:          f.u16("health"),
		XP:              f.u16("xp"),
		Stats: Stats{
			Strength:     stats.u8("strength"),
			Dexterity:    stats.u8("dexterity"),
			Vitality:     stats.u8("vitality"),
			Intelligence: stats.u8("intelligence"),
			Wisdom:       stats.u8("wisdom"),
			Charisma:     stats.u8("charisma"),
			Luck:         stats.u8("luck"),
		},
		Gold: f.u16("gold"),
		Equipment: Equipment{
			Weapon: eq.sub("weapon").item(),
			Chest:  eq.sub("chest").item(),
			Head:   eq.sub("head").item(),
			Waist:  eq.sub("waist").item(),
			Foot:   eq.sub("foot").item(),
			Hand:   eq.sub("hand").item(),
			Neck:   eq.sub("neck").item(),
			Ring:   eq.sub("ring").item(),
		},
		BeastHealth:           f.u16("beast_health"),
		StatUpgradesAvailable: f.u8("stat_upgrades_available"),
	}
}

func (f *fields) item() Item {
	return Item{ID: OptID(f.u8("id")), XP: f.u16("xp")}
}

func (f *fields) bag() Bag {
	var b Bag
	for i := range b.Items {
		b.Items[i] = f.sub(bagSlot(i + 1)).item()
	}
	b.Mutated = f.bool("mutated")
	return b
}

func (f *fields) specials() SpecialPowers {
	return SpecialPowers{
		Special1: OptID(f.u8("special1")),
		Special2: OptID(f.u8("special2")),
		Special3: OptID(f.u8("special3")),
	}
}

func (f *fields) encounter() Encounter {
	specs := f.sub("beast_specs")
	return Encounter{
		Seed:    f.num("seed"),
		BeastID: f.u8("id"),
		Specs: CombatSpec{
			Tier:     specs.u8("tier"),
			ItemType: specs.u8("item_type"),
			Level:    specs.u16("level"),
			Specials: specs.sub("specials").specials(),
		},
	}
}

func (f *fields) strike() Strike {
	return Strike{
		Damage:      f.u16("damage"),
		CriticalHit: f.bool("critical_hit"),
		Location:    f.u8("location"),
	}
}

func (f *fields) obstacle() Obstacle {
	return Obstacle{
		ID:                 f.u8("id"),
		Level:              f.u16("level"),
		DamageTaken:        f.u16("damage_taken"),
		DamageLocation:     f.u8("damage_location"),
		CriticalHit:        f.bool("critical_hit"),
		AdventurerXPReward: f.u16("adventurer_xp_reward"),
		ItemXPReward:       f.u16("item_xp_reward"),
	}
}

func (f *fields) itemLevel() ItemLevel {
	return ItemLevel{
		ItemID:           f.u8("item_id"),
		PreviousLevel:    f.u8("previous_level"),
		NewLevel:         f.u8("new_level"),
		SuffixUnlocked:   f.bool("suffix_unlocked"),
		PrefixesUnlocked: f.bool("prefixes_unlocked"),
		Specials:         f.sub("specials").specials(),
	}
}
