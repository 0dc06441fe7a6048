package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// MemoryStore 内存存储，用于测试和空跑
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string][]Fields
	seq  int64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string][]Fields)}
}

// normalize 统一整数类型，便于比较
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func matches(row, match Fields) bool {
	for k, want := range match {
		got, ok := row[k]
		if !ok {
			got = nil
		}
		if !equalValue(got, normalize(want)) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

func copyRow(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Upsert 实现 Store
func (m *MemoryStore) Upsert(ctx context.Context, collection string, key, values Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows[collection] {
		if matches(row, key) {
			for k, v := range values {
				row[k] = normalize(v)
			}
			return nil
		}
	}
	m.insert(collection, Merge(key, values))
	return nil
}

func (m *MemoryStore) insert(collection string, values Fields) {
	m.seq++
	row := make(Fields, len(values)+1)
	for k, v := range values {
		row[k] = normalize(v)
	}
	row["id"] = m.seq
	m.rows[collection] = append(m.rows[collection], row)
}

// InsertLog 实现 Store
func (m *MemoryStore) InsertLog(ctx context.Context, collection string, values Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(collection, values)
	return nil
}

// FindLatest 实现 Store
func (m *MemoryStore) FindLatest(ctx context.Context, collection string, match Fields, sortField string, limit int) ([]Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []Fields
	for _, row := range m.rows[collection] {
		if matches(row, match) {
			found = append(found, row)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		c := compare(found[i][sortField], found[j][sortField])
		if c != 0 {
			return c > 0
		}
		return found[i]["id"].(int64) > found[j]["id"].(int64)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]Fields, len(found))
	for i, row := range found {
		out[i] = copyRow(row)
	}
	return out, nil
}

func compare(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	// nil 排在最后
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return 0
}

// Tx 实现 Store，fn 失败时恢复快照
func (m *MemoryStore) Tx(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot, seq := m.snapshot()
	if err := fn(m); err != nil {
		m.mu.Lock()
		m.rows, m.seq = snapshot, seq
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) snapshot() (map[string][]Fields, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]Fields, len(m.rows))
	for coll, rows := range m.rows {
		cp := make([]Fields, len(rows))
		for i, r := range rows {
			cp[i] = copyRow(r)
		}
		out[coll] = cp
	}
	return out, m.seq
}

// All 返回集合中的全部行（按写入顺序）
func (m *MemoryStore) All(collection string) []Fields {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Fields, len(m.rows[collection]))
	for i, r := range m.rows[collection] {
		out[i] = copyRow(r)
	}
	return out
}

// Count 集合行数
func (m *MemoryStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[collection])
}

// String 调试输出
func (m *MemoryStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("MemoryStore(%d collections, seq=%d)", len(m.rows), m.seq)
}
