package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"github.com/wfunc/survivor-indexer/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// GormStore 基于 GORM 的存储，集合对应同名表
type GormStore struct {
	db      *gorm.DB
	schemas map[string]*schema.Schema
}

// NewGormStore 创建存储并解析所有集合的表结构
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db, schemas: make(map[string]*schema.Schema)}
	cache := &sync.Map{}
	for _, c := range models.Collections() {
		sch, err := schema.Parse(c.Model, cache, db.NamingStrategy)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInvalidSchema, "解析表结构 %s", c.Name)
		}
		s.schemas[c.Name] = sch
	}
	return s, nil
}

// DB 底层连接
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Schema 集合的表结构
func (s *GormStore) Schema(collection string) (*schema.Schema, bool) {
	sch, ok := s.schemas[collection]
	return sch, ok
}

func (s *GormStore) checkColumns(collection string, parts ...Fields) (*schema.Schema, error) {
	sch, ok := s.schemas[collection]
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidParam, "未知集合 %s", collection)
	}
	for _, p := range parts {
		for col := range p {
			if _, ok := sch.FieldsByDBName[col]; !ok {
				return nil, errors.Newf(errors.ErrInvalidParam, "集合 %s 没有列 %s", collection, col)
			}
		}
	}
	return sch, nil
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unavailable(err error, op, collection string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, errors.ErrStoreUnavailable, "%s %s", op, collection)
}

// Upsert 实现 Store，冲突时只更新 values 中的列
func (s *GormStore) Upsert(ctx context.Context, collection string, key, values Fields) error {
	if _, err := s.checkColumns(collection, key, values); err != nil {
		return err
	}
	start := time.Now()

	conflict := clause.OnConflict{}
	for _, k := range sortedKeys(key) {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: k})
	}
	updates := sortedKeys(values)
	if len(updates) == 0 {
		conflict.DoNothing = true
	} else {
		conflict.DoUpdates = clause.AssignmentColumns(updates)
	}

	row := map[string]interface{}(Merge(key, values))
	err := s.db.WithContext(ctx).Table(collection).Clauses(conflict).Create(row).Error
	logger.LogDatabaseOperation("upsert", collection, time.Since(start), err)
	return unavailable(err, "upsert", collection)
}

// InsertLog 实现 Store
func (s *GormStore) InsertLog(ctx context.Context, collection string, values Fields) error {
	if _, err := s.checkColumns(collection, values); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.WithContext(ctx).Table(collection).Create(map[string]interface{}(Merge(values))).Error
	logger.LogDatabaseOperation("insert", collection, time.Since(start), err)
	return unavailable(err, "insert", collection)
}

// FindLatest 实现 Store，排序相同时按写入顺序取后写入的
func (s *GormStore) FindLatest(ctx context.Context, collection string, match Fields, sortField string, limit int) ([]Fields, error) {
	if _, err := s.checkColumns(collection, match, Fields{sortField: nil}); err != nil {
		return nil, err
	}
	start := time.Now()

	q := s.db.WithContext(ctx).Table(collection)
	for _, k := range sortedKeys(match) {
		q = q.Where(clause.Eq{Column: clause.Column{Name: k}, Value: match[k]})
	}
	var rows []map[string]interface{}
	err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: sortField}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Limit(limit).
		Find(&rows).Error
	logger.LogDatabaseOperation("find_latest", collection, time.Since(start), err)
	if err != nil {
		return nil, unavailable(err, "find_latest", collection)
	}

	return normalizeRows(s.schemas[collection], rows), nil
}

// normalizeRows 按列类型统一驱动返回的值（SQLite 的 numeric 列会以 float64 返回 bool）
func normalizeRows(sch *schema.Schema, rows []map[string]interface{}) []Fields {
	out := make([]Fields, len(rows))
	for i, r := range rows {
		row := Fields(r)
		for col, v := range row {
			field, ok := sch.FieldsByDBName[col]
			if !ok || v == nil {
				continue
			}
			row[col] = normalizeValue(field.DataType, row, col)
		}
		out[i] = row
	}
	return out
}

func normalizeValue(dt schema.DataType, row Fields, col string) any {
	switch dt {
	case schema.Bool:
		return row.Bool(col)
	case schema.Int, schema.Uint:
		if n, ok := row.Int(col); ok {
			return n
		}
	case schema.Time:
		if t, ok := row.Time(col); ok {
			return t
		}
	case schema.String:
		if b, ok := row[col].([]byte); ok {
			return string(b)
		}
	}
	return row[col]
}

// Tx 实现 Store，fn 内的所有操作使用同一个事务
func (s *GormStore) Tx(ctx context.Context, fn func(Store) error) error {
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormStore{db: tx, schemas: s.schemas})
		return fnErr
	})
	if err != nil && fnErr == nil {
		// 开启或提交失败
		return unavailable(err, "transaction", "")
	}
	return err
}
