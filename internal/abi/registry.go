package abi

import (
	"sort"

	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
)

// Registry 不可变的结构定义表，启动时构造一次后显式传递
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry 构造并校验结构定义表
func NewRegistry(schemas ...Schema) (*Registry, error) {
	reg := &Registry{schemas: make(map[string]Schema, len(schemas))}

	for _, s := range schemas {
		if s.Name == "" {
			return nil, errors.New(errors.ErrInvalidSchema, "结构名不能为空")
		}
		if _, dup := reg.schemas[s.Name]; dup {
			return nil, errors.Newf(errors.ErrInvalidSchema, "结构 %s 重复定义", s.Name)
		}
		if len(s.Fields) == 0 {
			return nil, errors.Newf(errors.ErrInvalidSchema, "结构 %s 没有字段", s.Name)
		}
		fields := make([]Field, len(s.Fields))
		copy(fields, s.Fields)
		reg.schemas[s.Name] = Schema{Name: s.Name, Fields: fields}
	}

	for _, s := range reg.schemas {
		seen := make(map[string]struct{}, len(s.Fields))
		for _, f := range s.Fields {
			if f.Name == "" {
				return nil, errors.Newf(errors.ErrInvalidSchema, "结构 %s 存在空字段名", s.Name)
			}
			if _, dup := seen[f.Name]; dup {
				return nil, errors.Newf(errors.ErrInvalidSchema, "结构 %s 字段 %s 重复", s.Name, f.Name)
			}
			seen[f.Name] = struct{}{}
			if err := reg.checkType(s.Name+"."+f.Name, f.Type); err != nil {
				return nil, err
			}
		}
	}

	// 递归引用会让解码无法终止
	state := make(map[string]int, len(reg.schemas))
	for name := range reg.schemas {
		if err := reg.checkCycle(name, state); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// MustRegistry 构造失败时panic，仅用于静态定义
func MustRegistry(schemas ...Schema) *Registry {
	reg, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return reg
}

func (r *Registry) checkType(path string, t Type) error {
	switch t.Kind {
	case KindUint:
		if t.Width <= 0 || t.Width > codec.MaxScalarWidth {
			return errors.Newf(errors.ErrInvalidSchema, "%s: 无效的整数位宽 %d", path, t.Width)
		}
	case KindBytes:
		if t.Width <= 0 || t.Width > codec.MaxShortBytes {
			return errors.Newf(errors.ErrInvalidSchema, "%s: 无效的字节长度 %d", path, t.Width)
		}
	case KindFelt, KindU256, KindBool:
	case KindStruct:
		if _, ok := r.schemas[t.Ref]; !ok {
			return errors.Newf(errors.ErrInvalidSchema, "%s: 引用了未定义的结构 %s", path, t.Ref)
		}
	case KindFixedArray:
		if t.Len <= 0 {
			return errors.Newf(errors.ErrInvalidSchema, "%s: 定长数组长度必须为正", path)
		}
		if t.Elem == nil {
			return errors.Newf(errors.ErrInvalidSchema, "%s: 数组缺少元素类型", path)
		}
		return r.checkType(path+"[]", *t.Elem)
	case KindArray:
		if t.Elem == nil {
			return errors.Newf(errors.ErrInvalidSchema, "%s: 数组缺少元素类型", path)
		}
		return r.checkType(path+"[]", *t.Elem)
	default:
		return errors.Newf(errors.ErrInvalidSchema, "%s: 未知类型 %s", path, t.Kind)
	}
	return nil
}

const (
	visiting = 1
	visited  = 2
)

func (r *Registry) checkCycle(name string, state map[string]int) error {
	switch state[name] {
	case visiting:
		return errors.Newf(errors.ErrInvalidSchema, "结构 %s 存在递归引用", name)
	case visited:
		return nil
	}
	state[name] = visiting
	for _, f := range r.schemas[name].Fields {
		for _, ref := range structRefs(f.Type) {
			if err := r.checkCycle(ref, state); err != nil {
				return err
			}
		}
	}
	state[name] = visited
	return nil
}

func structRefs(t Type) []string {
	switch t.Kind {
	case KindStruct:
		return []string{t.Ref}
	case KindFixedArray, KindArray:
		return structRefs(*t.Elem)
	default:
		return nil
	}
}

// Schema 查找结构定义
func (r *Registry) Schema(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Names 所有结构名（已排序）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len 结构数量
func (r *Registry) Len() int {
	return len(r.schemas)
}
