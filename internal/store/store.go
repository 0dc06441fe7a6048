// Package store 定义物化器使用的聚合存储接口，并提供基于 GORM 和内存的实现。
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Fields 列名到存储值的映射，值为 string、整数、bool、time.Time 或 nil
type Fields map[string]any

// Store 聚合存储：按自然键覆盖写、追加日志、按条件取最新
type Store interface {
	// Upsert 按自然键写入，只覆盖 values 中给出的列
	Upsert(ctx context.Context, collection string, key, values Fields) error
	// InsertLog 追加不可变的日志行
	InsertLog(ctx context.Context, collection string, values Fields) error
	// FindLatest 按 sortField 降序返回匹配的前 limit 行
	FindLatest(ctx context.Context, collection string, match Fields, sortField string, limit int) ([]Fields, error)
	// Tx 在一个事务中执行 fn，fn 返回错误时回滚
	Tx(ctx context.Context, fn func(Store) error) error
}

// Merge 合并多组字段，后者覆盖前者
func Merge(parts ...Fields) Fields {
	out := make(Fields)
	for _, p := range parts {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// Int 读取整数列（驱动可能返回 int64、float64、[]byte 或字符串）
func (f Fields) Int(name string) (int64, bool) {
	switch v := f[name].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool 读取布尔列（SQLite 以整数保存）
func (f Fields) Bool(name string) bool {
	if b, ok := f[name].(bool); ok {
		return b
	}
	n, ok := f.Int(name)
	return ok && n != 0
}

// String 读取字符串列
func (f Fields) String(name string) (string, bool) {
	switch v := f[name].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// 驱动以文本返回时间时可能使用的格式
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time 读取时间列
func (f Fields) Time(name string) (time.Time, bool) {
	return asTime(f[name])
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case []byte:
		return asTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
