package indexer_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/survivor-indexer/internal/abi"
	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/database"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/events"
	"github.com/wfunc/survivor-indexer/internal/events/eventstest"
	"github.com/wfunc/survivor-indexer/internal/indexer"
	"github.com/wfunc/survivor-indexer/internal/models"
	"github.com/wfunc/survivor-indexer/internal/store"
	"go.uber.org/zap"
)

var (
	contract = codec.FeltFromUint64(0x5117)
	wall     = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t0       = time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
)

func id(n int64) string {
	return codec.EncodeID(big.NewInt(n))
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	cat *events.Catalog
	st  store.Store
	m   *indexer.Materializer
	n   uint64
}

// eachStore 对内存和 SQLite 两种存储运行同一用例
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newFixture(t, store.NewMemoryStore()))
	})
	t.Run("sqlite", func(t *testing.T) {
		db := database.SetupTestDB()
		defer database.CleanupTestDB(db)
		st, err := store.NewGormStore(db)
		require.NoError(t, err)
		fn(t, newFixture(t, st))
	})
}

func newFixture(t *testing.T, st store.Store) *fixture {
	cat := events.MustCatalog()
	return &fixture{
		t:   t,
		ctx: context.Background(),
		cat: cat,
		st:  st,
		m: indexer.New(cat, st, contract,
			indexer.WithClock(func() time.Time { return wall }),
			indexer.WithLogger(zap.NewNop()),
		),
	}
}

// record 生成指定冒险者的事件负载，装备清空
func (f *fixture) record(k events.Kind, adventurer uint64, edit func(abi.Record)) abi.Record {
	rec := eventstest.Sample(f.cat, k, int64(k)+1)
	eventstest.SetAdventurer(rec, adventurer, 100)
	eventstest.ClearEquipment(rec)
	if edit != nil {
		edit(rec)
	}
	return rec
}

func (f *fixture) raw(k events.Kind, rec abi.Record) chain.Event {
	ev, err := eventstest.Raw(f.cat, k, rec, contract, 0)
	require.NoError(f.t, err)
	return ev
}

// block 按顺序编号事件并应用为一个区块
func (f *fixture) block(at time.Time, evs ...chain.Event) error {
	f.n++
	for i := range evs {
		evs[i].Index = i
		evs[i].TxHash = codec.FeltFromUint64(f.n*1000 + uint64(i))
	}
	return f.m.HandleBlock(f.ctx, chain.Block{
		Number:    f.n,
		Hash:      codec.FeltFromUint64(0xb000 + f.n),
		Timestamp: at,
		Finality:  chain.FinalityAccepted,
		Events:    evs,
	})
}

func (f *fixture) apply(at time.Time, k events.Kind, adventurer uint64, edit func(abi.Record)) {
	require.NoError(f.t, f.block(at, f.raw(k, f.record(k, adventurer, edit))))
}

func (f *fixture) rows(coll string, match store.Fields) []store.Fields {
	rows, err := f.st.FindLatest(f.ctx, coll, match, "id", 1000)
	require.NoError(f.t, err)
	return rows
}

func (f *fixture) one(coll string, match store.Fields) store.Fields {
	rows := f.rows(coll, match)
	require.Len(f.t, rows, 1, "%s %v", coll, match)
	return rows[0]
}

func (f *fixture) item(itemID int, adventurer int64) store.Fields {
	return f.one(models.CollItems, store.Fields{"item_id": itemID, "adventurer_id": id(adventurer)})
}

func intOf(t *testing.T, row store.Fields, name string) int64 {
	v, ok := row.Int(name)
	require.True(t, ok, "%s 不是整数: %v", name, row[name])
	return v
}

func timeOf(t *testing.T, row store.Fields, name string) time.Time {
	v, ok := row.Time(name)
	require.True(t, ok, "%s 不是时间: %v", name, row[name])
	return v
}

func TestStartGameThenAttackWithoutDiscovery(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindStartGame, 1, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 42)
		})
		require.NoError(t, f.block(t0.Add(time.Minute), f.raw(events.KindAttackedBeast,
			f.record(events.KindAttackedBeast, 1, func(rec abi.Record) {
				eventstest.SetEquipped(rec, events.SlotWeapon, 42)
				eventstest.SetEncounter(rec, 7, 0, 20)
			}))))

		adv := f.one(models.CollAdventurers, store.Fields{"adventurer_id": id(1)})
		assert.Equal(t, int64(42), intOf(t, adv, "weapon"))
		assert.Nil(t, adv["chest"])
		assert.Equal(t, t0, timeOf(t, adv, "start_time"))

		weapon := f.item(42, 1)
		assert.True(t, weapon.Bool("owner"))
		assert.True(t, weapon.Bool("equipped"))
		assert.Equal(t, int64(1), intOf(t, weapon, "slot"))

		assert.Empty(t, f.rows(models.CollBattles, nil))
		assert.Equal(t, int64(1), f.m.Stats().CorrelationMisses)

		cur, err := store.LoadCursor(f.ctx, f.st, f.m.Cursor())
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.Equal(t, uint64(2), cur.BlockNumber)
	})
}

func TestAdventurerUpsertIsIdempotent(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		raw := f.raw(events.KindAdventurerUpgraded, f.record(events.KindAdventurerUpgraded, 3, nil))
		ev, err := f.cat.Decode(raw)
		require.NoError(t, err)
		meta := chain.Meta{BlockNumber: 9, BlockTime: t0, TxHash: raw.TxHash}

		require.NoError(t, f.m.Apply(f.ctx, meta, ev))
		first := f.one(models.CollAdventurers, store.Fields{"adventurer_id": id(3)})

		require.NoError(t, f.m.Apply(f.ctx, meta, ev))
		second := f.one(models.CollAdventurers, store.Fields{"adventurer_id": id(3)})

		assert.Equal(t, first, second)
		assert.Len(t, f.rows(models.CollBags, nil), 1)
	})
}

func TestEquipSwapsOnlyListedItems(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindStartGame, 5, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 12)
			eventstest.SetEquipped(rec, events.SlotChest, 30)
		})
		f.apply(t0.Add(time.Minute), events.KindPurchasedItems, 5, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 12)
			eventstest.SetEquipped(rec, events.SlotChest, 30)
			rec["purchases"] = []any{abi.Record{
				"item": abi.Record{
					"id":        big.NewInt(42),
					"tier":      big.NewInt(2),
					"item_type": big.NewInt(1),
					"slot":      big.NewInt(1),
				},
				"price": big.NewInt(20),
			}}
		})

		bought := f.item(42, 5)
		assert.True(t, bought.Bool("owner"))
		assert.False(t, bought.Bool("equipped"))
		assert.Equal(t, int64(20), intOf(t, bought, "cost"))
		assert.Equal(t, t0.Add(time.Minute), timeOf(t, bought, "purchased_time"))

		chest := f.item(30, 5)

		f.apply(t0.Add(2*time.Minute), events.KindEquippedItems, 5, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 42)
			eventstest.SetEquipped(rec, events.SlotChest, 30)
			eventstest.SetIDs(rec, "equipped_items", 42)
			eventstest.SetIDs(rec, "unequipped_items", 12)
		})

		equipped := f.item(42, 5)
		assert.True(t, equipped.Bool("equipped"))
		assert.True(t, equipped.Bool("owner"))

		displaced := f.item(12, 5)
		assert.False(t, displaced.Bool("equipped"))
		assert.True(t, displaced.Bool("owner"))

		assert.Equal(t, chest, f.item(30, 5))
		assert.Len(t, f.rows(models.CollItems, nil), 3)
	})
}

func TestBattleCarriesDiscoveryTime(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindDiscoveredBeast, 42, func(rec abi.Record) {
			eventstest.SetEncounter(rec, 7, 99, 50)
		})

		discovery := f.one(models.CollDiscoveries, nil)
		assert.Equal(t, indexer.DiscoveryBeast, discovery["discovery_type"])
		assert.Equal(t, int64(7), intOf(t, discovery, "entity"))
		assert.Equal(t, int64(50), intOf(t, discovery, "entity_health"))
		assert.Nil(t, discovery["obstacle"])
		assert.Nil(t, discovery["sub_discovery_type"])

		t1 := t0.Add(10 * time.Minute)
		f.apply(t1, events.KindAttackedBeast, 42, func(rec abi.Record) {
			eventstest.SetEncounter(rec, 7, 99, 35)
			eventstest.Set(rec, "damage", 15)
		})

		battle := f.one(models.CollBattles, nil)
		assert.Equal(t, t0, timeOf(t, battle, "discovery_time"))
		assert.Equal(t, t1, timeOf(t, battle, "block_time"))
		assert.Equal(t, indexer.AttackerAdventurer, battle["attacker"])
		assert.Equal(t, int64(15), intOf(t, battle, "damage_dealt"))
		assert.Equal(t, int64(0), intOf(t, battle, "damage_taken"))
		assert.Equal(t, codec.EncodeID(big.NewInt(99)), battle["seed"])

		beast := f.one(models.CollBeasts, store.Fields{"beast": 7})
		assert.Equal(t, int64(35), intOf(t, beast, "health"))
		assert.Equal(t, t0, timeOf(t, beast, "created_time"))
	})
}

func TestCorrelationMissSkipsOnlyBattle(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		attack := f.raw(events.KindAttackedByBeast, f.record(events.KindAttackedByBeast, 8, func(rec abi.Record) {
			eventstest.SetEncounter(rec, 3, 4, 10)
		}))
		gold := f.raw(events.KindDiscoveredGold, f.record(events.KindDiscoveredGold, 9, func(rec abi.Record) {
			eventstest.Set(rec, "amount", 12)
		}))
		require.NoError(t, f.block(t0, attack, gold))

		assert.Empty(t, f.rows(models.CollBattles, nil))
		found := f.one(models.CollDiscoveries, nil)
		assert.Equal(t, indexer.SubGold, found["sub_discovery_type"])
		assert.Equal(t, int64(12), intOf(t, found, "output_amount"))
		assert.Nil(t, found["entity"])

		// 冒险者快照仍然写入
		f.one(models.CollAdventurers, store.Fields{"adventurer_id": id(8)})

		stats := f.m.Stats()
		assert.Equal(t, int64(1), stats.CorrelationMisses)
		assert.Equal(t, int64(1), stats.Applied)
		assert.Equal(t, uint64(1), stats.LastBlock)
	})
}

func TestBeastHealthNeverIncreases(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindDiscoveredBeast, 2, func(rec abi.Record) {
			eventstest.SetEncounter(rec, 11, 5, 50)
		})

		health := func() int64 {
			return intOf(t, f.one(models.CollBeasts, store.Fields{"beast": 11}), "health")
		}
		var seen []int64
		for i, hp := range []uint64{40, 45, 20} {
			f.apply(t0.Add(time.Duration(i+1)*time.Minute), events.KindAttackedBeast, 2, func(rec abi.Record) {
				eventstest.SetEncounter(rec, 11, 5, uint16(hp))
			})
			seen = append(seen, health())
		}
		assert.Equal(t, []int64{40, 40, 20}, seen)

		beast := f.one(models.CollBeasts, store.Fields{"beast": 11})
		assert.Nil(t, beast["slain_on_time"])

		slainAt := t0.Add(time.Hour)
		slay := func(at time.Time) {
			f.apply(at, events.KindSlayedBeast, 2, func(rec abi.Record) {
				eventstest.SetEncounter(rec, 11, 5, 0)
			})
		}
		slay(slainAt)
		slay(slainAt.Add(time.Hour))

		beast = f.one(models.CollBeasts, store.Fields{"beast": 11})
		assert.Equal(t, int64(0), intOf(t, beast, "health"))
		assert.Equal(t, slainAt, timeOf(t, beast, "slain_on_time"))
		assert.Len(t, f.rows(models.CollBattles, store.Fields{"beast": 11}), 5)
	})
}

func TestAmbushOpensEncounter(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindAmbushedByBeast, 6, func(rec abi.Record) {
			eventstest.SetEncounter(rec, 20, 77, 60)
			eventstest.Set(rec, "damage", 9)
			eventstest.Set(rec, "location", 3)
		})

		discovery := f.one(models.CollDiscoveries, nil)
		assert.True(t, discovery.Bool("ambushed"))
		assert.Equal(t, int64(9), intOf(t, discovery, "damage_taken"))
		assert.Equal(t, int64(3), intOf(t, discovery, "damage_location"))

		battle := f.one(models.CollBattles, nil)
		assert.Equal(t, indexer.AttackerBeast, battle["attacker"])
		assert.Equal(t, int64(9), intOf(t, battle, "damage_taken"))
		assert.Equal(t, t0, timeOf(t, battle, "discovery_time"))

		f.one(models.CollBeasts, store.Fields{"beast": 20, "seed": codec.EncodeID(big.NewInt(77))})
	})
}

func TestIdlePenaltyHasNoEncounter(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindIdleDeathPenalty, 4, nil)

		battle := f.one(models.CollBattles, nil)
		assert.Equal(t, indexer.AttackerPenalty, battle["attacker"])
		assert.Nil(t, battle["beast"])
		assert.Nil(t, battle["seed"])
		assert.Equal(t, t0, timeOf(t, battle, "discovery_time"))
		assert.Equal(t, int64(0), f.m.Stats().CorrelationMisses)
	})
}

func TestObstacleSyncsEquippedItemXP(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindStartGame, 1, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 42)
		})
		f.apply(t0.Add(time.Minute), events.KindHitByObstacle, 1, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 42)
			eventstest.State(rec).Sub("adventurer").Sub("equipment").Sub("weapon")["xp"] = big.NewInt(17)
			rec.Sub("obstacle")["id"] = big.NewInt(0)
		})

		assert.Equal(t, int64(17), intOf(t, f.item(42, 1), "xp"))

		d := f.one(models.CollDiscoveries, nil)
		assert.Equal(t, indexer.DiscoveryObstacle, d["discovery_type"])
		assert.False(t, d.Bool("dodged_obstacle"))
		assert.Nil(t, d["obstacle"])
		assert.Nil(t, d["entity"])
	})
}

func TestItemLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		offer := func(at time.Time, price int64) {
			f.apply(at, events.KindNewItemsAvailable, 7, func(rec abi.Record) {
				rec["items"] = []any{abi.Record{
					"item":  abi.Record{"id": big.NewInt(50), "tier": big.NewInt(3), "item_type": big.NewInt(2), "slot": big.NewInt(4)},
					"price": big.NewInt(price),
				}}
			})
		}
		offer(t0, 10)
		offered := f.item(50, 7)
		assert.False(t, offered.Bool("owner"))
		assert.Equal(t, int64(10), intOf(t, offered, "cost"))
		assert.Equal(t, t0, timeOf(t, offered, "created_time"))

		f.apply(t0.Add(time.Minute), events.KindPurchasedItems, 7, func(rec abi.Record) {
			rec["purchases"] = []any{abi.Record{
				"item":  abi.Record{"id": big.NewInt(50), "tier": big.NewInt(3), "item_type": big.NewInt(2), "slot": big.NewInt(4)},
				"price": big.NewInt(10),
			}}
		})

		// 已拥有的物品不会被再次上架覆盖
		offer(t0.Add(2*time.Minute), 99)
		owned := f.item(50, 7)
		assert.True(t, owned.Bool("owner"))
		assert.Equal(t, int64(10), intOf(t, owned, "cost"))
		assert.Equal(t, t0, timeOf(t, owned, "created_time"))

		f.apply(t0.Add(3*time.Minute), events.KindItemSpecialUnlocked, 7, func(rec abi.Record) {
			eventstest.Set(rec, "id", 50)
			rec["specials"] = abi.Record{"special1": big.NewInt(5), "special2": big.NewInt(0), "special3": big.NewInt(8)}
		})
		special := f.item(50, 7)
		assert.Equal(t, int64(5), intOf(t, special, "special1"))
		assert.Nil(t, special["special2"])
		assert.Equal(t, int64(8), intOf(t, special, "special3"))

		f.apply(t0.Add(4*time.Minute), events.KindDroppedItems, 7, func(rec abi.Record) {
			eventstest.SetIDs(rec, "item_ids", 50)
		})
		dropped := f.item(50, 7)
		assert.False(t, dropped.Bool("owner"))
		assert.False(t, dropped.Bool("equipped"))
		assert.Nil(t, dropped["owner_address"])
	})
}

func TestTerminalLogs(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindNewHighScore, 1, func(rec abi.Record) {
			eventstest.Set(rec, "rank", 1)
			rec["prize"] = new(big.Int).Lsh(big.NewInt(1), 200)
		})
		f.apply(t0, events.KindAdventurerLeveledUp, 1, func(rec abi.Record) {
			eventstest.Set(rec, "previous_level", 2)
			eventstest.Set(rec, "new_level", 3)
		})
		f.apply(t0, events.KindAdventurerDied, 1, func(rec abi.Record) {
			eventstest.Set(rec, "killed_by_beast", 7)
			eventstest.Set(rec, "killed_by_obstacle", 0)
		})

		score := f.one(models.CollScores, nil)
		assert.Equal(t, codec.EncodeID(new(big.Int).Lsh(big.NewInt(1), 200)), score["prize"])

		level := f.one(models.CollLevelUps, nil)
		assert.Equal(t, int64(3), intOf(t, level, "new_level"))

		death := f.one(models.CollDeaths, nil)
		assert.Equal(t, int64(7), intOf(t, death, "killed_by_beast"))
		assert.Nil(t, death["killed_by_obstacle"])
		assert.Equal(t, id(1), death["adventurer_id"])

		// 阵亡后的战斗只告警不阻止
		f.apply(t0.Add(time.Minute), events.KindIdleDeathPenalty, 1, nil)
		assert.Equal(t, int64(1), f.m.Stats().CombatAfterDeath)
		f.one(models.CollBattles, nil)
	})
}

func TestHandleBlockSkipsForeignAndUndecodable(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		good := f.raw(events.KindDiscoveredXP, f.record(events.KindDiscoveredXP, 1, nil))

		foreign := good
		foreign.FromAddress = codec.FeltFromUint64(1)

		unknown := good
		unknown.Keys = []codec.Felt{events.SelectorOf("Transfer")}

		truncated := good
		truncated.Data = good.Data[:len(good.Data)-1]

		require.NoError(t, f.block(t0, foreign, unknown, truncated, good))

		stats := f.m.Stats()
		assert.Equal(t, int64(4), stats.Events)
		assert.Equal(t, int64(1), stats.ForeignEvents)
		assert.Equal(t, int64(1), stats.UnknownSelectors)
		assert.Equal(t, int64(1), stats.DecodeErrors)
		assert.Equal(t, int64(1), stats.Applied)
		assert.Len(t, f.rows(models.CollDiscoveries, nil), 1)
	})
}

// failingStore 追加日志时返回存储不可用
type failingStore struct {
	*store.MemoryStore
}

func (s *failingStore) InsertLog(ctx context.Context, collection string, values store.Fields) error {
	return errors.New(errors.ErrStoreUnavailable, "disk full")
}

func (s *failingStore) Tx(ctx context.Context, fn func(store.Store) error) error {
	return s.MemoryStore.Tx(ctx, func(store.Store) error { return fn(s) })
}

// notifications 记录提交后的通知
type notifications struct {
	got []indexer.Applied
}

func (n *notifications) Notify(a indexer.Applied) {
	n.got = append(n.got, a)
}

func TestNotifyAfterCommit(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		n := &notifications{}
		f.m = indexer.New(f.cat, f.st, contract,
			indexer.WithClock(func() time.Time { return wall }),
			indexer.WithLogger(zap.NewNop()),
			indexer.WithNotifier(n),
		)

		xp := f.raw(events.KindDiscoveredXP, f.record(events.KindDiscoveredXP, 3, nil))
		// 没有发现记录的攻击只计关联失败，不通知
		miss := f.raw(events.KindAttackedBeast, f.record(events.KindAttackedBeast, 3, nil))
		require.NoError(t, f.block(t0, xp, miss))

		require.Len(t, n.got, 1)
		assert.Equal(t, events.KindDiscoveredXP.String(), n.got[0].Event)
		assert.Equal(t, id(3), n.got[0].AdventurerID)
		assert.Equal(t, uint64(1), n.got[0].BlockNumber)
		assert.Equal(t, t0, n.got[0].BlockTime)
		assert.Equal(t, codec.EncodeID(big.NewInt(1000)), n.got[0].TxHash)
	})
}

func TestStoreFailureAbortsBlock(t *testing.T) {
	mem := store.NewMemoryStore()
	f := newFixture(t, &failingStore{mem})
	n := &notifications{}
	f.m = indexer.New(f.cat, f.m.Store(), contract, indexer.WithLogger(zap.NewNop()), indexer.WithNotifier(n))

	err := f.block(t0, f.raw(events.KindDiscoveredHealth, f.record(events.KindDiscoveredHealth, 1, nil)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))

	// 整个区块回滚，检查点不前进
	assert.Zero(t, mem.Count(models.CollAdventurers))
	assert.Zero(t, mem.Count(models.CollStreamCursors))
	assert.Equal(t, int64(0), f.m.Stats().Blocks)
	assert.Empty(t, n.got)
}

// cursorStore 推进检查点时失败，用于让区块在最后一步回滚
type cursorStore struct {
	*store.MemoryStore
	fail bool
}

func (s *cursorStore) Upsert(ctx context.Context, collection string, key, values store.Fields) error {
	if s.fail && collection == models.CollStreamCursors {
		return errors.New(errors.ErrStoreUnavailable, "cursor locked")
	}
	return s.MemoryStore.Upsert(ctx, collection, key, values)
}

func (s *cursorStore) Tx(ctx context.Context, fn func(store.Store) error) error {
	return s.MemoryStore.Tx(ctx, func(store.Store) error { return fn(s) })
}

func TestDeathIsRememberedOnlyAfterCommit(t *testing.T) {
	st := &cursorStore{MemoryStore: store.NewMemoryStore(), fail: true}
	f := newFixture(t, st)

	died := func() chain.Event {
		return f.raw(events.KindAdventurerDied, f.record(events.KindAdventurerDied, 1, nil))
	}
	idle := func() chain.Event {
		return f.raw(events.KindIdleDeathPenalty, f.record(events.KindIdleDeathPenalty, 1, nil))
	}

	// 阵亡所在区块回滚后不算阵亡
	require.Error(t, f.block(t0, died()))
	st.fail = false
	require.NoError(t, f.block(t0.Add(time.Minute), idle()))
	assert.Zero(t, f.m.Stats().CombatAfterDeath)

	// 同一区块内先阵亡后战斗
	require.NoError(t, f.block(t0.Add(2*time.Minute), died(), idle()))
	assert.Equal(t, int64(1), f.m.Stats().CombatAfterDeath)

	// 重启后从死亡日志恢复
	restarted := newFixture(t, st)
	restarted.n = f.n
	require.NoError(t, restarted.block(t0.Add(3*time.Minute), idle()))
	assert.Equal(t, int64(1), restarted.m.Stats().CombatAfterDeath)
}

func TestEveryKindApplies(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		for seed := int64(0); seed < 3; seed++ {
			var evs []chain.Event
			for _, k := range events.AllKinds() {
				rec := eventstest.Sample(f.cat, k, seed*100+int64(k))
				evs = append(evs, f.raw(k, rec))
			}
			require.NoError(t, f.block(t0.Add(time.Duration(seed)*time.Hour), evs...))
		}
		stats := f.m.Stats()
		assert.Equal(t, int64(3*len(events.AllKinds())), stats.Applied+stats.CorrelationMisses)
		assert.Zero(t, stats.DecodeErrors)
	})
}

func TestWideIntegersSurviveStorage(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		maxU64 := uint64(1<<64 - 1)
		maxU128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
		maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

		f.apply(t0, events.KindStartGame, 1, func(rec abi.Record) {
			eventstest.Set(rec.Sub("adventurer_meta"), "start_block", maxU64)
			eventstest.Set(rec, "reveal_block", 1<<63)
		})
		f.apply(t0, events.KindDiscoveredBeast, 1, func(rec abi.Record) {
			eventstest.SetEncounter(rec, 7, 0, 20)
			rec["seed"] = maxU128
		})
		f.apply(t0, events.KindNewHighScore, 1, func(rec abi.Record) {
			eventstest.Set(rec, "rank", 1)
			rec["prize"] = maxU256
		})

		adv := f.one(models.CollAdventurers, store.Fields{"adventurer_id": id(1)})
		assert.Equal(t, codec.EncodeID(new(big.Int).SetUint64(maxU64)), adv["start_block"])
		assert.Equal(t, codec.EncodeID(new(big.Int).SetUint64(1<<63)), adv["reveal_block"])

		beast := f.one(models.CollBeasts, nil)
		assert.Equal(t, codec.EncodeID(maxU128), beast["seed"])

		score := f.one(models.CollScores, nil)
		assert.Equal(t, codec.EncodeID(maxU256), score["prize"])
	})
}

func TestOfferKeepsEquippedItem(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.apply(t0, events.KindStartGame, 1, func(rec abi.Record) {
			eventstest.SetEquipped(rec, events.SlotWeapon, 42)
		})
		before := f.item(42, 1)
		require.True(t, before.Bool("owner"))
		require.True(t, before.Bool("equipped"))
		owner := before["owner_address"]
		require.NotNil(t, owner)

		f.apply(t0.Add(time.Minute), events.KindNewItemsAvailable, 1, func(rec abi.Record) {
			rec["items"] = []any{abi.Record{
				"item":  abi.Record{"id": big.NewInt(42), "tier": big.NewInt(5), "item_type": big.NewInt(1), "slot": big.NewInt(1)},
				"price": big.NewInt(3),
			}}
		})

		after := f.item(42, 1)
		assert.True(t, after.Bool("owner"))
		assert.True(t, after.Bool("equipped"))
		assert.Equal(t, owner, after["owner_address"])
		assert.Equal(t, timeOf(t, before, "created_time"), timeOf(t, after, "created_time"))
	})
}
