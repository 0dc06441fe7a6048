package abi

import (
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
)

// Decode 按结构定义解码线上值，消耗的槽位数必须与 len(data) 完全一致
func (r *Registry) Decode(ref string, data []codec.Felt) (Record, error) {
	reader := codec.NewReader(data)
	rec, err := r.decodeStruct(ref, reader)
	if err != nil {
		return nil, err
	}
	if reader.Remaining() != 0 {
		return nil, errors.Newf(errors.ErrSchemaMismatch,
			"schema=%s consumed=%d len=%d", ref, reader.Pos(), len(data))
	}
	return rec, nil
}

func (r *Registry) decodeStruct(ref string, reader *codec.Reader) (Record, error) {
	schema, ok := r.schemas[ref]
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidSchema, "未定义的结构 %s", ref)
	}
	rec := make(Record, len(schema.Fields))
	for _, f := range schema.Fields {
		v, err := r.decodeValue(f.Type, reader)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrMalformedPayload, "field=%s.%s", ref, f.Name)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func (r *Registry) decodeValue(t Type, reader *codec.Reader) (any, error) {
	switch t.Kind {
	case KindUint:
		return reader.Uint(t.Width)
	case KindFelt:
		f, err := reader.Felt()
		if err != nil {
			return nil, err
		}
		return f.Big(), nil
	case KindU256:
		return reader.Uint256()
	case KindBool:
		return reader.Bool()
	case KindBytes:
		return reader.FixedBytes(t.Width)
	case KindStruct:
		return r.decodeStruct(t.Ref, reader)
	case KindFixedArray:
		return r.decodeElems(*t.Elem, t.Len, reader)
	case KindArray:
		n, err := reader.Uint64(32)
		if err != nil {
			return nil, err
		}
		// 每个元素至少占一个槽位
		if n > uint64(reader.Remaining()) {
			return nil, errors.Newf(errors.ErrMalformedPayload,
				"数组长度 %d 超过剩余槽位 %d", n, reader.Remaining())
		}
		return r.decodeElems(*t.Elem, int(n), reader)
	default:
		return nil, errors.Newf(errors.ErrInvalidSchema, "未知类型 %s", t.Kind)
	}
}

func (r *Registry) decodeElems(elem Type, n int, reader *codec.Reader) ([]any, error) {
	out := make([]any, n)
	for i := range out {
		v, err := r.decodeValue(elem, reader)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
