package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/survivor-indexer/internal/database"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/models"
	"github.com/wfunc/survivor-indexer/internal/store"
)

const adv = "0x0000000000000000000000000000000000000000000000000000000000000001"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// eachStore 对两种实现运行同一组用例
func eachStore(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemoryStore())
	})
	t.Run("gorm", func(t *testing.T) {
		db := database.SetupTestDB()
		defer database.CleanupTestDB(db)
		s, err := store.NewGormStore(db)
		require.NoError(t, err)
		fn(t, s)
	})
}

func itemKey(id int) store.Fields {
	return store.Fields{"item_id": id, "adventurer_id": adv}
}

func TestUpsertIsIdempotent(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		values := store.Fields{"owner": true, "equipped": false, "xp": 3, "created_time": t0}

		require.NoError(t, s.Upsert(ctx, models.CollItems, itemKey(42), values))
		require.NoError(t, s.Upsert(ctx, models.CollItems, itemKey(42), values))

		rows, err := s.FindLatest(ctx, models.CollItems, itemKey(42), "created_time", 10)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		xp, _ := rows[0].Int("xp")
		assert.Equal(t, int64(3), xp)
		assert.True(t, rows[0].Bool("owner"))
	})
}

func TestRowsAreTypedByColumn(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, models.CollItems, itemKey(7), store.Fields{
			"owner": true, "equipped": false, "slot": 3, "created_time": t0,
		}))

		rows, err := s.FindLatest(ctx, models.CollItems, itemKey(7), "created_time", 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, true, rows[0]["owner"])
		assert.Equal(t, false, rows[0]["equipped"])
		assert.Equal(t, int64(3), rows[0]["slot"])
		created, ok := rows[0]["created_time"].(time.Time)
		require.True(t, ok, "%T", rows[0]["created_time"])
		assert.True(t, t0.Equal(created))
	})
}

func TestUpsertOnlyTouchesSuppliedColumns(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, models.CollItems, itemKey(7),
			store.Fields{"owner": true, "xp": 10, "cost": 5, "created_time": t0}))
		require.NoError(t, s.Upsert(ctx, models.CollItems, itemKey(7),
			store.Fields{"equipped": true}))

		rows, err := s.FindLatest(ctx, models.CollItems, itemKey(7), "created_time", 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		cost, _ := rows[0].Int("cost")
		assert.Equal(t, int64(5), cost)
		assert.True(t, rows[0].Bool("equipped"))
		assert.True(t, rows[0].Bool("owner"))
	})
}

func TestFindLatestOrdering(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		for i, at := range []time.Time{t0, t0.Add(2 * time.Hour), t0.Add(time.Hour)} {
			require.NoError(t, s.InsertLog(ctx, models.CollDiscoveries, store.Fields{
				"adventurer_id":  adv,
				"discovery_type": "beast",
				"entity":         7,
				"seed":           "0x63",
				"entity_health":  i,
				"discovery_time": at,
			}))
		}
		// 不相关的遭遇
		require.NoError(t, s.InsertLog(ctx, models.CollDiscoveries, store.Fields{
			"adventurer_id":  adv,
			"discovery_type": "beast",
			"entity":         8,
			"seed":           "0x63",
			"discovery_time": t0.Add(5 * time.Hour),
		}))

		match := store.Fields{"entity": 7, "adventurer_id": adv, "seed": "0x63"}
		rows, err := s.FindLatest(ctx, models.CollDiscoveries, match, "discovery_time", 1)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		at, ok := rows[0].Time("discovery_time")
		require.True(t, ok)
		assert.True(t, at.Equal(t0.Add(2*time.Hour)), "got %s", at)

		rows, err = s.FindLatest(ctx, models.CollDiscoveries, store.Fields{"entity": 99}, "discovery_time", 1)
		require.NoError(t, err)
		assert.Empty(t, rows)

		// nil 匹配空引用
		require.NoError(t, s.InsertLog(ctx, models.CollDiscoveries, store.Fields{
			"adventurer_id":  adv,
			"discovery_type": "item",
			"entity":         nil,
			"discovery_time": t0,
		}))
		rows, err = s.FindLatest(ctx, models.CollDiscoveries, store.Fields{"entity": nil}, "discovery_time", 5)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestTxRollback(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		boom := fmt.Errorf("boom")

		err := s.Tx(ctx, func(tx store.Store) error {
			require.NoError(t, tx.Upsert(ctx, models.CollItems, itemKey(1), store.Fields{"owner": true, "created_time": t0}))
			return boom
		})
		assert.Equal(t, boom, err)

		rows, err := s.FindLatest(ctx, models.CollItems, itemKey(1), "created_time", 1)
		require.NoError(t, err)
		assert.Empty(t, rows)

		require.NoError(t, s.Tx(ctx, func(tx store.Store) error {
			return tx.Upsert(ctx, models.CollItems, itemKey(1), store.Fields{"owner": true, "created_time": t0})
		}))
		rows, err = s.FindLatest(ctx, models.CollItems, itemKey(1), "created_time", 1)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})
}

func TestCursorRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		c, err := store.LoadCursor(ctx, s, "survivor")
		require.NoError(t, err)
		assert.Nil(t, c)

		require.NoError(t, store.SaveCursor(ctx, s, store.Cursor{Name: "survivor", BlockNumber: 10, BlockHash: "0xa"}))
		require.NoError(t, store.SaveCursor(ctx, s, store.Cursor{Name: "survivor", BlockNumber: 11, BlockHash: "0xb"}))

		c, err = store.LoadCursor(ctx, s, "survivor")
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, uint64(11), c.BlockNumber)
		assert.Equal(t, "0xb", c.BlockHash)
	})
}

func TestGormStoreRejectsUnknownColumns(t *testing.T) {
	db := database.SetupTestDB()
	defer database.CleanupTestDB(db)
	s, err := store.NewGormStore(db)
	require.NoError(t, err)

	err = s.Upsert(context.Background(), models.CollItems, itemKey(1), store.Fields{"colour": "red"})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))

	err = s.InsertLog(context.Background(), "nope", store.Fields{"a": 1})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))
}

func TestGormStoreUnavailable(t *testing.T) {
	db := database.SetupTestDB()
	s, err := store.NewGormStore(db)
	require.NoError(t, err)
	database.CleanupTestDB(db)

	err = s.Upsert(context.Background(), models.CollItems, itemKey(1), store.Fields{"owner": true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStoreUnavailable))
	assert.True(t, errors.IsRetryable(err))
}

func TestGormStoreFind(t *testing.T) {
	db := database.SetupTestDB()
	defer database.CleanupTestDB(db)
	s, err := store.NewGormStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	names := []string{"loaf", "lilith", "bran"}
	for i, name := range names {
		id := fmt.Sprintf("0x%064x", i+1)
		require.NoError(t, s.Upsert(ctx, models.CollAdventurers,
			store.Fields{"adventurer_id": id},
			store.Fields{"name": name, "xp": (i + 1) * 10, "health": 100, "last_updated_time": t0, "timestamp": t0}))
	}

	tests := []struct {
		name  string
		query store.Query
		want  []string
	}{
		{"eq", store.Query{Filters: []store.Filter{{Field: "name", Op: store.OpEq, Values: []string{"bran"}}}}, []string{"bran"}},
		{"gte desc", store.Query{Filters: []store.Filter{{Field: "xp", Op: store.OpGte, Values: []string{"20"}}}, OrderBy: "xp", Desc: true}, []string{"bran", "lilith"}},
		{"in", store.Query{Filters: []store.Filter{{Field: "xp", Op: store.OpIn, Values: []string{"10", "30"}}}, OrderBy: "xp"}, []string{"loaf", "bran"}},
		{"notIn", store.Query{Filters: []store.Filter{{Field: "xp", Op: store.OpNotIn, Values: []string{"10", "30"}}}}, []string{"lilith"}},
		{"startsWith", store.Query{Filters: []store.Filter{{Field: "name", Op: store.OpStartsWith, Values: []string{"l"}}}, OrderBy: "name"}, []string{"lilith", "loaf"}},
		{"contains", store.Query{Filters: []store.Filter{{Field: "name", Op: store.OpContains, Values: []string{"ra"}}}}, []string{"bran"}},
		{"endsWith", store.Query{Filters: []store.Filter{{Field: "name", Op: store.OpEndsWith, Values: []string{"th"}}}}, []string{"lilith"}},
		{"skip limit", store.Query{OrderBy: "xp", Skip: 1, Limit: 1}, []string{"lilith"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			if q.Limit == 0 {
				q.Limit = 20
			}
			rows, err := s.Find(ctx, models.CollAdventurers, q)
			require.NoError(t, err)
			got := make([]string, len(rows))
			for i, r := range rows {
				got[i], _ = r.String("name")
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = s.Find(ctx, models.CollAdventurers, store.Query{Filters: []store.Filter{{Field: "password", Op: store.OpEq, Values: []string{"x"}}}, Limit: 1})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))

	_, err = s.Find(ctx, models.CollAdventurers, store.Query{Filters: []store.Filter{{Field: "xp", Op: store.OpContains, Values: []string{"1"}}}, Limit: 1})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))

	_, err = s.Find(ctx, models.CollAdventurers, store.Query{Filters: []store.Filter{{Field: "xp", Op: store.OpEq, Values: []string{"abc"}}}, Limit: 1})
	assert.True(t, errors.Is(err, errors.ErrInvalidParam))
}
