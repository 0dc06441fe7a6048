// Package cache 缓存查询接口的响应，按序列化后的查询条件作为键。
package cache

import (
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/wfunc/survivor-indexer/internal/config"
	"github.com/wfunc/survivor-indexer/internal/store"
)

// Cache 有大小上限和过期时间的响应缓存，禁用时所有读取都未命中
type Cache struct {
	lru    *expirable.LRU[string, []byte]
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats 缓存统计
type Stats struct {
	Enabled bool  `json:"enabled"`
	Size    int   `json:"size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// New 按配置创建缓存
func New(cfg config.CacheConfig) *Cache {
	c := &Cache{}
	if !cfg.Enabled || cfg.Size <= 0 {
		return c
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	c.lru = expirable.NewLRU[string, []byte](cfg.Size, nil, ttl)
	return c
}

// Get 读取缓存
func (c *Cache) Get(key string) ([]byte, bool) {
	if c.lru == nil {
		c.misses.Add(1)
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set 写入缓存
func (c *Cache) Set(key string, value []byte) {
	if c.lru != nil {
		c.lru.Add(key, value)
	}
}

// Purge 清空
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Stats 统计快照
func (c *Cache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if c.lru != nil {
		s.Enabled = true
		s.Size = c.lru.Len()
	}
	return s
}

// Key 由集合和查询条件生成缓存键，过滤条件的顺序不影响结果
func Key(collection string, q store.Query) string {
	filters := make([]string, 0, len(q.Filters))
	for _, f := range q.Filters {
		values := make([]string, len(f.Values))
		for i, v := range f.Values {
			values[i] = strconv.Quote(v)
		}
		filters = append(filters, f.Field+"["+string(f.Op)+"]="+strings.Join(values, ","))
	}
	sort.Strings(filters)

	var b strings.Builder
	b.WriteString(collection)
	b.WriteString("?")
	b.WriteString(strings.Join(filters, "&"))
	b.WriteString("&orderBy=")
	b.WriteString(q.OrderBy)
	if q.Desc {
		b.WriteString(":desc")
	}
	b.WriteString("&skip=")
	b.WriteString(strconv.Itoa(q.Skip))
	b.WriteString("&limit=")
	b.WriteString(strconv.Itoa(q.Limit))
	return b.String()
}
