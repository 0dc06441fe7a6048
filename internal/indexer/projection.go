package indexer

import (
	"math/big"
	"time"

	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/events"
	"github.com/wfunc/survivor-indexer/internal/store"
)

// 发现类型
const (
	DiscoveryBeast    = "beast"
	DiscoveryObstacle = "obstacle"
	DiscoveryItem     = "item"
)

// 物品发现的子类型
const (
	SubHealth = "health"
	SubGold   = "gold"
	SubXP     = "xp"
)

// 战斗发起方
const (
	AttackerAdventurer = "adventurer"
	AttackerBeast      = "beast"
	AttackerPenalty    = "penalty"
)

// DiscoveryLog 一条发现记录的领域表示（封闭集合）
type DiscoveryLog interface {
	discoveryType() string
}

// ItemDiscovery 发现生命、金币或经验
type ItemDiscovery struct {
	Sub    string
	Amount uint16
}

// ObstacleDiscovery 遭遇障碍
type ObstacleDiscovery struct {
	Obstacle events.Obstacle
	Dodged   bool
}

// BeastDiscovery 发现野兽，Ambush 非空表示被伏击
type BeastDiscovery struct {
	Encounter events.Encounter
	Health    uint16
	Ambush    *events.Strike
}

func (ItemDiscovery) discoveryType() string     { return DiscoveryItem }
func (ObstacleDiscovery) discoveryType() string { return DiscoveryObstacle }
func (BeastDiscovery) discoveryType() string    { return DiscoveryBeast }

// BattleLog 一次战斗交互的领域表示（封闭集合）
type BattleLog interface {
	attacker() string
}

// AdventurerStrike 冒险者攻击野兽
type AdventurerStrike struct {
	Encounter   events.Encounter
	Strike      events.Strike
	BeastHealth uint16
}

// BeastStrike 野兽攻击冒险者（包括伏击）
type BeastStrike struct {
	Encounter   events.Encounter
	Strike      events.Strike
	BeastHealth uint16
}

// FleeAttempt 逃跑尝试
type FleeAttempt struct {
	Encounter   events.Encounter
	BeastHealth uint16
	Succeeded   bool
}

// Slay 击杀野兽
type Slay struct {
	Encounter          events.Encounter
	DamageDealt        uint16
	CriticalHit        bool
	XPEarnedAdventurer uint16
	XPEarnedItems      uint16
	GoldEarned         uint16
}

// IdlePenalty 闲置惩罚，不属于任何遭遇
type IdlePenalty struct {
	IdleBlocks       uint16
	PenaltyThreshold uint16
}

func (AdventurerStrike) attacker() string { return AttackerAdventurer }
func (BeastStrike) attacker() string      { return AttackerBeast }
func (FleeAttempt) attacker() string      { return AttackerAdventurer }
func (Slay) attacker() string             { return AttackerAdventurer }
func (IdlePenalty) attacker() string      { return AttackerPenalty }

// encounterOf 战斗所属的遭遇，闲置惩罚没有遭遇
func encounterOf(b BattleLog) (events.Encounter, bool) {
	switch v := b.(type) {
	case AdventurerStrike:
		return v.Encounter, true
	case BeastStrike:
		return v.Encounter, true
	case FleeAttempt:
		return v.Encounter, true
	case Slay:
		return v.Encounter, true
	}
	return events.Encounter{}, false
}

// logColumns 日志行共有列
func logColumns(meta chain.Meta, now time.Time) store.Fields {
	return store.Fields{
		"tx_hash":      storageID(meta.TxHash),
		"block_number": meta.BlockNumber,
		"event_index":  meta.EventIndex,
		"timestamp":    now,
	}
}

// discoveryRow 宽行的全部列（不相关的数值为0，不相关的引用为NULL）
func discoveryRow() store.Fields {
	return store.Fields{
		"sub_discovery_type":   nil,
		"output_amount":        0,
		"obstacle":             nil,
		"obstacle_level":       0,
		"dodged_obstacle":      false,
		"damage_taken":         0,
		"damage_location":      nil,
		"critical_hit":         false,
		"xp_earned_adventurer": 0,
		"xp_earned_items":      0,
		"entity":               nil,
		"entity_level":         0,
		"entity_health":        0,
		"entity_tier":          0,
		"special1":             nil,
		"special2":             nil,
		"special3":             nil,
		"ambushed":             false,
		"seed":                 nil,
	}
}

// projectDiscovery 把发现记录投影为存储宽行
func projectDiscovery(state events.AdventurerState, d DiscoveryLog, meta chain.Meta, now time.Time) store.Fields {
	row := discoveryRow()
	row["adventurer_id"] = storageID(state.AdventurerID)
	row["adventurer_health"] = int(state.Adventurer.Health)
	row["discovery_type"] = d.discoveryType()
	row["discovery_time"] = meta.BlockTime

	switch v := d.(type) {
	case ItemDiscovery:
		row["sub_discovery_type"] = v.Sub
		row["output_amount"] = int(v.Amount)
	case ObstacleDiscovery:
		o := v.Obstacle
		row["obstacle"] = nullableID(events.OptID(o.ID))
		row["obstacle_level"] = int(o.Level)
		row["dodged_obstacle"] = v.Dodged
		row["damage_taken"] = int(o.DamageTaken)
		row["damage_location"] = int(o.DamageLocation)
		row["critical_hit"] = o.CriticalHit
		row["xp_earned_adventurer"] = int(o.AdventurerXPReward)
		row["xp_earned_items"] = int(o.ItemXPReward)
	case BeastDiscovery:
		enc := v.Encounter
		row["entity"] = int(enc.BeastID)
		row["entity_level"] = int(enc.Specs.Level)
		row["entity_health"] = int(v.Health)
		row["entity_tier"] = int(enc.Specs.Tier)
		row["seed"] = seedID(enc.Seed)
		putSpecials(row, enc.Specs.Specials)
		if v.Ambush != nil {
			row["ambushed"] = true
			row["damage_taken"] = int(v.Ambush.Damage)
			row["damage_location"] = int(v.Ambush.Location)
			row["critical_hit"] = v.Ambush.CriticalHit
		}
	}

	return store.Merge(row, logColumns(meta, now))
}

// battleRow 宽行的全部列
func battleRow() store.Fields {
	return store.Fields{
		"beast":                nil,
		"beast_health":         0,
		"beast_level":          0,
		"special1":             nil,
		"special2":             nil,
		"special3":             nil,
		"seed":                 nil,
		"fled":                 false,
		"damage_dealt":         0,
		"critical_hit":         false,
		"damage_taken":         0,
		"damage_location":      nil,
		"xp_earned_adventurer": 0,
		"xp_earned_items":      0,
		"gold_earned":          0,
	}
}

// projectBattle 把战斗记录投影为存储宽行，discoveryTime 来自发起遭遇的发现记录
func projectBattle(state events.AdventurerState, b BattleLog, discoveryTime time.Time, meta chain.Meta, now time.Time) store.Fields {
	row := battleRow()
	row["adventurer_id"] = storageID(state.AdventurerID)
	row["adventurer_health"] = int(state.Adventurer.Health)
	row["attacker"] = b.attacker()
	row["discovery_time"] = discoveryTime
	row["block_time"] = meta.BlockTime

	if enc, ok := encounterOf(b); ok {
		row["beast"] = int(enc.BeastID)
		row["beast_level"] = int(enc.Specs.Level)
		row["seed"] = seedID(enc.Seed)
		putSpecials(row, enc.Specs.Specials)
	}

	switch v := b.(type) {
	case AdventurerStrike:
		row["beast_health"] = int(v.BeastHealth)
		row["damage_dealt"] = int(v.Strike.Damage)
		row["critical_hit"] = v.Strike.CriticalHit
		row["damage_location"] = int(v.Strike.Location)
	case BeastStrike:
		row["beast_health"] = int(v.BeastHealth)
		row["damage_taken"] = int(v.Strike.Damage)
		row["critical_hit"] = v.Strike.CriticalHit
		row["damage_location"] = int(v.Strike.Location)
	case FleeAttempt:
		row["beast_health"] = int(v.BeastHealth)
		row["fled"] = v.Succeeded
	case Slay:
		row["damage_dealt"] = int(v.DamageDealt)
		row["critical_hit"] = v.CriticalHit
		row["xp_earned_adventurer"] = int(v.XPEarnedAdventurer)
		row["xp_earned_items"] = int(v.XPEarnedItems)
		row["gold_earned"] = int(v.GoldEarned)
	}

	return store.Merge(row, logColumns(meta, now))
}

func putSpecials(row store.Fields, sp events.SpecialPowers) {
	row["special1"] = nullableID(sp.Special1)
	row["special2"] = nullableID(sp.Special2)
	row["special3"] = nullableID(sp.Special3)
}

// storageID 标识符的存储形式
func storageID(f codec.Felt) string {
	return codec.EncodeFeltID(f)
}

func seedID(seed *big.Int) string {
	if seed == nil {
		return codec.EncodeID(new(big.Int))
	}
	return codec.EncodeID(seed)
}

// u64ID 完整 u64 范围的存储形式，数据库整数列放不下最高位
func u64ID(x uint64) string {
	return codec.EncodeID(new(big.Int).SetUint64(x))
}

// nullableID 空引用存为 NULL
func nullableID(o events.Opt[uint8]) any {
	if v, ok := o.Get(); ok {
		return int(v)
	}
	return nil
}
