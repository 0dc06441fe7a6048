package events_test

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/survivor-indexer/internal/abi"
	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/events"
	"github.com/wfunc/survivor-indexer/internal/events/eventstest"
)

var contract = codec.FeltFromUint64(0xabc)

func TestSelectorOf(t *testing.T) {
	// ERC20 Transfer 事件的已知选择器
	assert.Equal(t,
		"0x99cd8bde557814842a3121e8ddfd433a539b8c9f14bf31ebf108d12e6196e9",
		events.SelectorOf("Transfer").Hex())
}

func TestCatalogSelectors(t *testing.T) {
	cat, err := events.NewCatalog()
	require.NoError(t, err)

	limit := new(big.Int).Lsh(big.NewInt(1), 250)
	seen := make(map[string]events.Kind)
	for _, k := range events.AllKinds() {
		sel := cat.Selector(k)
		assert.Less(t, sel.Big().Cmp(limit), 0, "%s", k)
		_, dup := seen[sel.Hex()]
		assert.False(t, dup, "%s", k)
		seen[sel.Hex()] = k

		back, ok := cat.Lookup(sel)
		require.True(t, ok)
		assert.Equal(t, k, back)

		parsed, ok := events.ParseKind(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)

		_, ok = cat.Registry().Schema(k.String())
		assert.True(t, ok, "%s 缺少结构定义", k)
	}
	assert.Len(t, seen, 25)
}

func TestDecodeStartGame(t *testing.T) {
	cat := events.MustCatalog()

	rec := eventstest.Sample(cat, events.KindStartGame, 1)
	eventstest.SetAdventurer(rec, 1, 100)
	eventstest.ClearEquipment(rec)
	eventstest.SetEquipped(rec, events.SlotWeapon, 42)
	name, err := codec.EncodeShortString("loaf", 31)
	require.NoError(t, err)
	rec.Sub("adventurer_meta")["name"] = name

	raw, err := eventstestRaw(cat, events.KindStartGame, rec)
	require.NoError(t, err)

	ev, err := cat.Decode(raw)
	require.NoError(t, err)

	start, ok := ev.(events.StartGame)
	require.True(t, ok)
	assert.Equal(t, events.KindStartGame, start.Kind())
	assert.Equal(t, uint64(1), start.State.AdventurerID.Big().Uint64())
	assert.Equal(t, uint16(100), start.State.Adventurer.Health)
	assert.Equal(t, "loaf", start.Metadata.Name)

	weapon, ok := start.State.Adventurer.Equipment.Weapon.ID.Get()
	assert.True(t, ok)
	assert.Equal(t, uint8(42), weapon)
	assert.False(t, start.State.Adventurer.Equipment.Chest.ID.Valid())
}

func eventstestRaw(cat *events.Catalog, k events.Kind, rec abi.Record) (chain.Event, error) {
	return eventstest.Raw(cat, k, rec, contract, 0)
}

func TestDecodeErrors(t *testing.T) {
	cat := events.MustCatalog()

	_, err := cat.Decode(chain.Event{})
	assert.True(t, errors.Is(err, errors.ErrUnknownSelector))

	_, err = cat.Decode(chain.Event{Keys: []codec.Felt{events.SelectorOf("Unrelated")}})
	assert.True(t, errors.Is(err, errors.ErrUnknownSelector))

	rec := eventstest.Sample(cat, events.KindDiscoveredGold, 2)
	raw, err := eventstestRaw(cat, events.KindDiscoveredGold, rec)
	require.NoError(t, err)

	// 尾部多余数据
	extra := raw
	extra.Data = append(append([]codec.Felt{}, raw.Data...), codec.FeltFromUint64(1))
	_, err = cat.Decode(extra)
	assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))

	// 截断
	short := raw
	short.Data = raw.Data[:len(raw.Data)-1]
	_, err = cat.Decode(short)
	assert.True(t, errors.Is(err, errors.ErrMalformedPayload))
}

func TestZeroIdentifiersBecomeAbsent(t *testing.T) {
	cat := events.MustCatalog()

	rec := eventstest.Sample(cat, events.KindAdventurerDied, 3)
	eventstest.Set(rec, "killed_by_beast", 0)
	eventstest.Set(rec, "killed_by_obstacle", 5)
	raw, err := eventstestRaw(cat, events.KindAdventurerDied, rec)
	require.NoError(t, err)

	ev, err := cat.Decode(raw)
	require.NoError(t, err)
	died := ev.(events.AdventurerDied)
	assert.False(t, died.KilledByBeast.Valid())
	assert.Equal(t, uint8(5), died.KilledByObstacle.Or(0))
}

func TestDecodeEquippedItems(t *testing.T) {
	cat := events.MustCatalog()

	rec := eventstest.Sample(cat, events.KindEquippedItems, 4)
	rec["equipped_items"] = []any{big.NewInt(12)}
	rec["unequipped_items"] = []any{big.NewInt(3)}
	raw, err := eventstestRaw(cat, events.KindEquippedItems, rec)
	require.NoError(t, err)

	ev, err := cat.Decode(raw)
	require.NoError(t, err)
	eq := ev.(events.EquippedItems)
	assert.Equal(t, []uint8{12}, eq.Equipped)
	assert.Equal(t, []uint8{3}, eq.Unequipped)

	var _ events.BagEvent = eq
}

func TestProperty_EveryKindRoundTrips(t *testing.T) {
	cat := events.MustCatalog()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("每种事件的随机负载都能解码为对应类型", prop.ForAll(
		func(seed int64) bool {
			for _, k := range events.AllKinds() {
				rec := eventstest.Sample(cat, k, seed)
				raw, err := eventstestRaw(cat, k, rec)
				if err != nil {
					return false
				}
				ev, err := cat.Decode(raw)
				if err != nil || ev.Kind() != k {
					return false
				}
				// 消耗的槽位与负载长度一致
				back, err := cat.Registry().Decode(k.String(), raw.Data)
				if err != nil || len(back) != len(rec) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
