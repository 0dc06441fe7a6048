package indexer

import (
	"context"
	"strconv"
	"time"

	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/events"
	"github.com/wfunc/survivor-indexer/internal/models"
	"github.com/wfunc/survivor-indexer/internal/store"
	"go.uber.org/zap"
)

// handler 处理单个事件的上下文
type handler struct {
	m    *Materializer
	s    store.Store
	ctx  context.Context
	meta chain.Meta
	now  time.Time
	adv  string
	dead map[string]struct{} // 本区块内阵亡，尚未提交
}

func (h *handler) handle(ev events.Event) error {
	state := ev.AdventurerState()

	// 所有事件先覆盖写冒险者快照
	if err := h.upsertAdventurer(state); err != nil {
		return err
	}
	if be, ok := ev.(events.BagEvent); ok {
		if err := h.upsertBag(be.BagState()); err != nil {
			return err
		}
	}

	beastHealth := state.Adventurer.BeastHealth

	switch e := ev.(type) {
	case events.StartGame:
		return h.startGame(state, e)
	case events.AdventurerUpgraded, events.PurchasedPotions:
		return nil

	case events.DiscoveredHealth:
		return h.discover(state, ItemDiscovery{Sub: SubHealth, Amount: e.Amount})
	case events.DiscoveredGold:
		return h.discover(state, ItemDiscovery{Sub: SubGold, Amount: e.Amount})
	case events.DiscoveredXP:
		return h.discover(state, ItemDiscovery{Sub: SubXP, Amount: e.Amount})
	case events.DodgedObstacle:
		return h.obstacle(state, e.Obstacle, true)
	case events.HitByObstacle:
		return h.obstacle(state, e.Obstacle, false)
	case events.DiscoveredBeast:
		return h.beastDiscovered(state, e.Encounter, nil)
	case events.AmbushedByBeast:
		strike := e.Strike
		return h.beastDiscovered(state, e.Encounter, &strike)

	case events.AttackedBeast:
		return h.combat(state, AdventurerStrike{Encounter: e.Encounter, Strike: e.Strike, BeastHealth: beastHealth})
	case events.AttackedByBeast:
		return h.combat(state, BeastStrike{Encounter: e.Encounter, Strike: e.Strike, BeastHealth: beastHealth})
	case events.FleeFailed:
		return h.combat(state, FleeAttempt{Encounter: e.Encounter, BeastHealth: beastHealth})
	case events.FleeSucceeded:
		return h.combat(state, FleeAttempt{Encounter: e.Encounter, BeastHealth: beastHealth, Succeeded: true})
	case events.SlayedBeast:
		return h.slay(state, e)
	case events.IdleDeathPenalty:
		return h.idlePenalty(state, e)

	case events.PurchasedItems:
		return h.purchase(state, e.Purchases)
	case events.NewItemsAvailable:
		return h.offer(e.Items)
	case events.EquippedItems:
		return h.equip(state, e.Equipped, e.Unequipped)
	case events.DroppedItems:
		return h.drop(e.ItemIDs)
	case events.ItemSpecialUnlocked:
		return h.unlockSpecials(e.ItemID, e.Specials)
	case events.ItemsLeveledUp:
		return h.levelItems(state, e.Items)

	case events.NewHighScore:
		return h.highScore(state, e)
	case events.AdventurerDied:
		return h.died(state, e)
	case events.AdventurerLeveledUp:
		return h.leveledUp(state, e)
	}

	return errors.Newf(errors.ErrHandlerMissing, "event=%s", ev.Kind())
}

// ---- 聚合 ----

func (h *handler) tracked(values store.Fields) store.Fields {
	values["last_updated_time"] = h.meta.BlockTime
	values["timestamp"] = h.now
	return values
}

func (h *handler) upsertAdventurer(state events.AdventurerState) error {
	a := state.Adventurer
	values := store.Fields{
		"owner":         storageID(state.Owner),
		"last_action":   int(a.LastActionBlock),
		"health":        int(a.Health),
		"xp":            int(a.XP),
		"strength":      int(a.Stats.Strength),
		"dexterity":     int(a.Stats.Dexterity),
		"vitality":      int(a.Stats.Vitality),
		"intelligence":  int(a.Stats.Intelligence),
		"wisdom":        int(a.Stats.Wisdom),
		"charisma":      int(a.Stats.Charisma),
		"luck":          int(a.Stats.Luck),
		"gold":          int(a.Gold),
		"beast_health":  int(a.BeastHealth),
		"stat_upgrades": int(a.StatUpgradesAvailable),
	}
	for _, slot := range events.Slots {
		values[string(slot)] = nullableID(a.Equipment.Get(slot).ID)
	}
	return h.s.Upsert(h.ctx, models.CollAdventurers, store.Fields{"adventurer_id": h.adv}, h.tracked(values))
}

func (h *handler) upsertBag(bag events.Bag) error {
	values := store.Fields{"mutated": bag.Mutated}
	for i, it := range bag.Items {
		values[bagColumn(i)] = nullableID(it.ID)
	}
	return h.s.Upsert(h.ctx, models.CollBags, store.Fields{"adventurer_id": h.adv}, h.tracked(values))
}

func bagColumn(i int) string {
	return "item" + strconv.Itoa(i+1)
}

func (h *handler) itemKey(id uint8) store.Fields {
	return store.Fields{"item_id": int(id), "adventurer_id": h.adv}
}

// findItem 取 (item_id, adventurer_id) 最近创建的物品行
func (h *handler) findItem(id uint8) (store.Fields, error) {
	rows, err := h.s.FindLatest(h.ctx, models.CollItems, h.itemKey(id), "created_time", 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// putItem 写物品行，新行记录创建时间
func (h *handler) putItem(id uint8, values store.Fields, exists bool) error {
	if !exists {
		values["created_time"] = h.meta.BlockTime
	}
	return h.s.Upsert(h.ctx, models.CollItems, h.itemKey(id), h.tracked(values))
}

func (h *handler) upsertItem(id uint8, values store.Fields) error {
	row, err := h.findItem(id)
	if err != nil {
		return err
	}
	return h.putItem(id, values, row != nil)
}

func (h *handler) beastKey(enc events.Encounter) store.Fields {
	return store.Fields{
		"beast":         int(enc.BeastID),
		"adventurer_id": h.adv,
		"seed":          seedID(enc.Seed),
	}
}

func (h *handler) createBeast(enc events.Encounter, health uint16) error {
	values := store.Fields{
		"level":        int(enc.Specs.Level),
		"tier":         int(enc.Specs.Tier),
		"health":       int(health),
		"created_time": h.meta.BlockTime,
	}
	putSpecials(values, enc.Specs.Specials)
	return h.s.Upsert(h.ctx, models.CollBeasts, h.beastKey(enc), h.tracked(values))
}

// updateBeast 更新遭遇中野兽的生命值，生命值只降不升；slain 时记录一次击杀时间
func (h *handler) updateBeast(enc events.Encounter, health uint16, slain bool) error {
	rows, err := h.s.FindLatest(h.ctx, models.CollBeasts, h.beastKey(enc), "created_time", 1)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.Newf(errors.ErrCorrelationMiss, "beast encounter missing: beast=%d seed=%s",
			enc.BeastID, seedID(enc.Seed))
	}

	row := rows[0]
	next := int64(health)
	if stored, ok := row.Int("health"); ok && next > stored {
		h.m.log.Warn("野兽生命值回升，保留原值",
			zap.String("adventurer_id", h.adv),
			zap.Int("beast", int(enc.BeastID)),
			zap.Int64("stored", stored),
			zap.Int64("incoming", next),
		)
		next = stored
	}

	values := store.Fields{"health": next}
	if slain {
		values["health"] = 0
		if _, done := row.Time("slain_on_time"); !done {
			values["slain_on_time"] = h.meta.BlockTime
		}
	}
	return h.s.Upsert(h.ctx, models.CollBeasts, h.beastKey(enc), h.tracked(values))
}

// syncItemXP 按装备快照同步已装备物品的经验
func (h *handler) syncItemXP(state events.AdventurerState) error {
	for _, slot := range events.Slots {
		it := state.Adventurer.Equipment.Get(slot)
		id, ok := it.ID.Get()
		if !ok {
			continue
		}
		err := h.upsertItem(id, store.Fields{
			"xp":            int(it.XP),
			"owner":         true,
			"equipped":      true,
			"owner_address": storageID(state.Owner),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ---- 开局 ----

func (h *handler) startGame(state events.AdventurerState, e events.StartGame) error {
	err := h.s.Upsert(h.ctx, models.CollAdventurers, store.Fields{"adventurer_id": h.adv}, store.Fields{
		"name":         e.Metadata.Name,
		"start_block":  u64ID(e.Metadata.StartBlock),
		"reveal_block": u64ID(e.RevealBlock),
		"start_time":   h.meta.BlockTime,
	})
	if err != nil {
		return err
	}

	// 初始装备
	for i, slot := range events.Slots {
		it := state.Adventurer.Equipment.Get(slot)
		id, ok := it.ID.Get()
		if !ok {
			continue
		}
		err := h.upsertItem(id, store.Fields{
			"owner":         true,
			"equipped":      true,
			"owner_address": storageID(state.Owner),
			"slot":          i + 1,
			"xp":            int(it.XP),
			"cost":          0,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ---- 发现 ----

func (h *handler) discover(state events.AdventurerState, d DiscoveryLog) error {
	return h.s.InsertLog(h.ctx, models.CollDiscoveries, projectDiscovery(state, d, h.meta, h.now))
}

func (h *handler) obstacle(state events.AdventurerState, o events.Obstacle, dodged bool) error {
	if err := h.discover(state, ObstacleDiscovery{Obstacle: o, Dodged: dodged}); err != nil {
		return err
	}
	return h.syncItemXP(state)
}

func (h *handler) beastDiscovered(state events.AdventurerState, enc events.Encounter, ambush *events.Strike) error {
	health := state.Adventurer.BeastHealth
	if err := h.discover(state, BeastDiscovery{Encounter: enc, Health: health, Ambush: ambush}); err != nil {
		return err
	}
	if err := h.createBeast(enc, health); err != nil {
		return err
	}
	if ambush == nil {
		return nil
	}
	// 伏击在同一事件中发起遭遇，发现时间即区块时间
	b := BeastStrike{Encounter: enc, Strike: *ambush, BeastHealth: health}
	return h.insertBattle(state, b, h.meta.BlockTime)
}

// ---- 战斗 ----

func (h *handler) combat(state events.AdventurerState, b BattleLog) error {
	if err := h.checkAlive(b); err != nil {
		return err
	}

	enc, _ := encounterOf(b)
	if strike, ok := b.(AdventurerStrike); ok {
		if err := h.updateBeast(enc, strike.BeastHealth, false); err != nil {
			return err
		}
	}

	discovered, err := h.discoveryTime(enc)
	if err != nil {
		return err
	}
	return h.insertBattle(state, b, discovered)
}

func (h *handler) slay(state events.AdventurerState, e events.SlayedBeast) error {
	b := Slay{
		Encounter:          e.Encounter,
		DamageDealt:        e.DamageDealt,
		CriticalHit:        e.CriticalHit,
		XPEarnedAdventurer: e.XPEarnedAdventurer,
		XPEarnedItems:      e.XPEarnedItems,
		GoldEarned:         e.GoldEarned,
	}
	if err := h.checkAlive(b); err != nil {
		return err
	}

	if err := h.syncItemXP(state); err != nil {
		return err
	}
	if err := h.updateBeast(e.Encounter, 0, true); err != nil {
		return err
	}

	discovered, err := h.discoveryTime(e.Encounter)
	if err != nil {
		return err
	}
	return h.insertBattle(state, b, discovered)
}

func (h *handler) idlePenalty(state events.AdventurerState, e events.IdleDeathPenalty) error {
	b := IdlePenalty{IdleBlocks: e.IdleBlocks, PenaltyThreshold: e.PenaltyThreshold}
	if err := h.checkAlive(b); err != nil {
		return err
	}
	h.m.log.Info("闲置惩罚",
		zap.String("adventurer_id", h.adv),
		zap.Uint16("idle_blocks", e.IdleBlocks),
		zap.Uint16("penalty_threshold", e.PenaltyThreshold),
		zap.String("caller", e.Caller.Hex()),
	)
	return h.insertBattle(state, b, h.meta.BlockTime)
}

// discoveryTime 取发起该遭遇的最近一条发现记录的时间
func (h *handler) discoveryTime(enc events.Encounter) (time.Time, error) {
	match := store.Fields{
		"entity":        int(enc.BeastID),
		"adventurer_id": h.adv,
		"seed":          seedID(enc.Seed),
	}
	rows, err := h.s.FindLatest(h.ctx, models.CollDiscoveries, match, "discovery_time", 1)
	if err != nil {
		return time.Time{}, err
	}
	if len(rows) == 0 {
		return time.Time{}, errors.Newf(errors.ErrCorrelationMiss, "no discovery for beast=%d seed=%s",
			enc.BeastID, seedID(enc.Seed))
	}
	t, ok := rows[0].Time("discovery_time")
	if !ok {
		return time.Time{}, errors.Newf(errors.ErrInvariant, "discovery row without discovery_time: beast=%d", enc.BeastID)
	}
	return t, nil
}

func (h *handler) insertBattle(state events.AdventurerState, b BattleLog, discovered time.Time) error {
	return h.s.InsertLog(h.ctx, models.CollBattles, projectBattle(state, b, discovered, h.meta, h.now))
}

// checkAlive 阵亡后仍有战斗时计数并告警，不阻止写入
func (h *handler) checkAlive(b BattleLog) error {
	dead, err := h.isDead()
	if err != nil || !dead {
		return err
	}
	h.m.stats.CombatAfterDeath.Add(1)
	if h.m.warnAfterDeath {
		h.m.log.Warn("冒险者阵亡后仍有战斗事件",
			zap.String("adventurer_id", h.adv),
			zap.String("attacker", b.attacker()),
			zap.Uint64("block", h.meta.BlockNumber),
		)
	}
	return nil
}

// isDead 先查内存中的阵亡集合，未命中再查死亡日志（重启后集合为空）
func (h *handler) isDead() (bool, error) {
	if h.m.isDead(h.adv) {
		return true, nil
	}
	if _, ok := h.dead[h.adv]; ok {
		return true, nil
	}
	rows, err := h.s.FindLatest(h.ctx, models.CollDeaths, store.Fields{"adventurer_id": h.adv}, "id", 1)
	if err != nil || len(rows) == 0 {
		return false, err
	}
	h.dead[h.adv] = struct{}{}
	return true, nil
}

// ---- 物品 ----

func (h *handler) purchase(state events.AdventurerState, purchases []events.LootWithPrice) error {
	equipped := make(map[uint8]bool)
	for _, slot := range events.Slots {
		if id, ok := state.Adventurer.Equipment.Get(slot).ID.Get(); ok {
			equipped[id] = true
		}
	}

	for _, p := range purchases {
		err := h.upsertItem(p.ID, store.Fields{
			"owner":          true,
			"equipped":       equipped[p.ID],
			"owner_address":  storageID(state.Owner),
			"tier":           int(p.Tier),
			"item_type":      int(p.ItemType),
			"slot":           int(p.Slot),
			"cost":           int(p.Price),
			"purchased_time": h.meta.BlockTime,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// offer 商店上新，已拥有的物品不受影响
func (h *handler) offer(items []events.LootWithPrice) error {
	for _, it := range items {
		row, err := h.findItem(it.ID)
		if err != nil {
			return err
		}
		if row != nil && row.Bool("owner") {
			continue
		}
		err = h.putItem(it.ID, store.Fields{
			"owner":         false,
			"equipped":      false,
			"owner_address": nil,
			"tier":          int(it.Tier),
			"item_type":     int(it.ItemType),
			"slot":          int(it.Slot),
			"cost":          int(it.Price),
		}, row != nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// equip 卸下和装备在同一事务中写入，标志为绝对值，重放结果不变
func (h *handler) equip(state events.AdventurerState, on, off []uint8) error {
	return h.s.Tx(h.ctx, func(tx store.Store) error {
		th := *h
		th.s = tx
		for _, id := range off {
			if err := th.upsertItem(id, store.Fields{"equipped": false}); err != nil {
				return err
			}
		}
		for _, id := range on {
			err := th.upsertItem(id, store.Fields{
				"owner":         true,
				"equipped":      true,
				"owner_address": storageID(state.Owner),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *handler) drop(ids []uint8) error {
	for _, id := range ids {
		err := h.upsertItem(id, store.Fields{
			"owner":         false,
			"equipped":      false,
			"owner_address": nil,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) unlockSpecials(id uint8, sp events.SpecialPowers) error {
	values := store.Fields{}
	putSpecials(values, sp)
	return h.upsertItem(id, values)
}

func (h *handler) levelItems(state events.AdventurerState, items []events.ItemLevel) error {
	for _, it := range items {
		if !it.SuffixUnlocked && !it.PrefixesUnlocked {
			continue
		}
		if err := h.unlockSpecials(it.ItemID, it.Specials); err != nil {
			return err
		}
	}
	return h.syncItemXP(state)
}

// ---- 终局 ----

func (h *handler) highScore(state events.AdventurerState, e events.NewHighScore) error {
	row := store.Fields{
		"adventurer_id": h.adv,
		"owner":         storageID(state.Owner),
		"rank":          int(e.Rank),
		"xp":            int(state.Adventurer.XP),
		"prize":         seedID(e.Prize),
		"score_time":    h.meta.BlockTime,
	}
	return h.s.InsertLog(h.ctx, models.CollScores, store.Merge(row, logColumns(h.meta, h.now)))
}

func (h *handler) died(state events.AdventurerState, e events.AdventurerDied) error {
	row := store.Fields{
		"adventurer_id":      h.adv,
		"owner":              storageID(state.Owner),
		"killed_by_beast":    nullableID(e.KilledByBeast),
		"killed_by_obstacle": nullableID(e.KilledByObstacle),
		"caller":             storageID(e.Caller),
		"xp":                 int(state.Adventurer.XP),
		"gold":               int(state.Adventurer.Gold),
		"death_time":         h.meta.BlockTime,
	}
	if err := h.s.InsertLog(h.ctx, models.CollDeaths, store.Merge(row, logColumns(h.meta, h.now))); err != nil {
		return err
	}
	h.dead[h.adv] = struct{}{}
	return nil
}

func (h *handler) leveledUp(state events.AdventurerState, e events.AdventurerLeveledUp) error {
	row := store.Fields{
		"adventurer_id":  h.adv,
		"previous_level": int(e.PreviousLevel),
		"new_level":      int(e.NewLevel),
		"xp":             int(state.Adventurer.XP),
		"level_time":     h.meta.BlockTime,
	}
	return h.s.InsertLog(h.ctx, models.CollLevelUps, store.Merge(row, logColumns(h.meta, h.now)))
}
