package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/survivor-indexer/internal/config"
	"github.com/wfunc/survivor-indexer/internal/store"
)

func TestCacheHitAndMiss(t *testing.T) {
	c := New(config.CacheConfig{Enabled: true, Size: 2, TTL: time.Minute})

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []byte("1"))
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	// 超过容量时淘汰最久未用的键
	c.Set("b", []byte("2"))
	c.Set("c", []byte("3"))
	_, ok = c.Get("a")
	assert.False(t, ok)

	stats := c.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	c.Purge()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestCacheExpires(t *testing.T) {
	c := New(config.CacheConfig{Enabled: true, Size: 8, TTL: 20 * time.Millisecond})
	c.Set("a", []byte("1"))
	assert.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestDisabledCache(t *testing.T) {
	c := New(config.CacheConfig{Enabled: false, Size: 8})
	c.Set("a", []byte("1"))
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.False(t, c.Stats().Enabled)
}

func TestKeyIgnoresFilterOrder(t *testing.T) {
	a := store.Query{
		Filters: []store.Filter{
			{Field: "health", Op: store.OpGt, Values: []string{"0"}},
			{Field: "owner", Op: store.OpEq, Values: []string{"0x1"}},
		},
		OrderBy: "xp", Desc: true, Limit: 20,
	}
	b := a
	b.Filters = []store.Filter{a.Filters[1], a.Filters[0]}

	assert.Equal(t, Key("adventurers", a), Key("adventurers", b))
	assert.NotEqual(t, Key("adventurers", a), Key("items", a))

	b.Skip = 20
	assert.NotEqual(t, Key("adventurers", a), Key("adventurers", b))

	// 值中的分隔符不会造成碰撞
	x := store.Query{Filters: []store.Filter{{Field: "name", Op: store.OpIn, Values: []string{"a,b"}}}}
	y := store.Query{Filters: []store.Filter{{Field: "name", Op: store.OpIn, Values: []string{"a", "b"}}}}
	assert.NotEqual(t, Key("adventurers", x), Key("adventurers", y))
}
