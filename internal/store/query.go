package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Op 过滤运算符
type Op string

const (
	OpEq         Op = "eq"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
)

// ParseOp 解析运算符
func ParseOp(s string) (Op, bool) {
	switch op := Op(s); op {
	case OpEq, OpIn, OpNotIn, OpLt, OpLte, OpGt, OpGte, OpContains, OpStartsWith, OpEndsWith:
		return op, true
	}
	return "", false
}

// Filter 单个过滤条件，值为原始文本，按列类型转换
type Filter struct {
	Field  string
	Op     Op
	Values []string
}

// Query 查询条件
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Skip    int
	Limit   int
}

// Find 按过滤条件分页查询集合
func (s *GormStore) Find(ctx context.Context, collection string, q Query) ([]Fields, error) {
	sch, ok := s.schemas[collection]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "未知集合 %s", collection)
	}
	start := time.Now()

	tx := s.db.WithContext(ctx).Table(collection)
	for _, f := range q.Filters {
		expr, err := filterExpr(sch, f)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(expr)
	}

	if q.OrderBy != "" {
		if _, ok := sch.FieldsByDBName[q.OrderBy]; !ok {
			return nil, errors.Newf(errors.ErrInvalidParam, "不能按 %s 排序", q.OrderBy)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Desc})
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})

	var rows []map[string]interface{}
	err := tx.Offset(q.Skip).Limit(q.Limit).Find(&rows).Error
	logger.LogDatabaseOperation("query", collection, time.Since(start), err)
	if err != nil {
		return nil, unavailable(err, "query", collection)
	}

	return normalizeRows(sch, rows), nil
}

func filterExpr(sch *schema.Schema, f Filter) (clause.Expression, error) {
	field, ok := sch.FieldsByDBName[f.Field]
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidParam, "不能按 %s 过滤", f.Field)
	}
	if len(f.Values) == 0 {
		return nil, errors.Newf(errors.ErrInvalidParam, "%s[%s] 缺少值", f.Field, f.Op)
	}
	col := clause.Column{Name: field.DBName}

	switch f.Op {
	case OpContains, OpStartsWith, OpEndsWith:
		if field.DataType != schema.String {
			return nil, errors.Newf(errors.ErrInvalidParam, "%s 不是字符串列", f.Field)
		}
		pattern := escapeLike(f.Values[0])
		switch f.Op {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern += "%"
		default:
			pattern = "%" + pattern
		}
		return clause.Expr{SQL: "? LIKE ? ESCAPE '!'", Vars: []interface{}{col, pattern}}, nil
	}

	values := make([]interface{}, len(f.Values))
	for i, raw := range f.Values {
		v, err := convertValue(field, raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	switch f.Op {
	case OpEq:
		return clause.Eq{Column: col, Value: values[0]}, nil
	case OpIn:
		return clause.IN{Column: col, Values: values}, nil
	case OpNotIn:
		return clause.Not(clause.IN{Column: col, Values: values}), nil
	case OpLt:
		return clause.Lt{Column: col, Value: values[0]}, nil
	case OpLte:
		return clause.Lte{Column: col, Value: values[0]}, nil
	case OpGt:
		return clause.Gt{Column: col, Value: values[0]}, nil
	case OpGte:
		return clause.Gte{Column: col, Value: values[0]}, nil
	}
	return nil, errors.Newf(errors.ErrInvalidParam, "不支持的运算符 %s", f.Op)
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// convertValue 把查询文本转换为列类型，"null" 表示空引用
func convertValue(field *schema.Field, raw string) (interface{}, error) {
	if raw == "null" && !field.NotNull {
		return nil, nil
	}
	var (
		v   interface{}
		err error
	)
	switch field.DataType {
	case schema.Int:
		v, err = strconv.ParseInt(raw, 10, 64)
	case schema.Uint:
		v, err = strconv.ParseUint(raw, 10, 64)
	case schema.Float:
		v, err = strconv.ParseFloat(raw, 64)
	case schema.Bool:
		v, err = strconv.ParseBool(raw)
	case schema.Time:
		var t time.Time
		t, err = time.Parse(time.RFC3339, raw)
		v = t.UTC()
	default:
		v = raw
	}
	if err != nil {
		return nil, errors.Newf(errors.ErrInvalidParam, "%s 的值 %q 无效", field.DBName, raw)
	}
	return v, nil
}
