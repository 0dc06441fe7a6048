package abi

import (
	"math/big"

	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
)

// Encode 按结构定义把记录编码为线上值，是 Decode 的逆操作
func (r *Registry) Encode(ref string, rec Record) ([]codec.Felt, error) {
	w := codec.NewWriter()
	if err := r.encodeStruct(ref, rec, w); err != nil {
		return nil, err
	}
	data, err := w.Felts()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrMalformedPayload, "schema=%s", ref)
	}
	return data, nil
}

func (r *Registry) encodeStruct(ref string, rec Record, w *codec.Writer) error {
	schema, ok := r.schemas[ref]
	if !ok {
		return errors.Newf(errors.ErrInvalidSchema, "未定义的结构 %s", ref)
	}
	for _, f := range schema.Fields {
		v, ok := rec[f.Name]
		if !ok {
			return errors.Newf(errors.ErrSchemaMismatch, "缺少字段 %s.%s", ref, f.Name)
		}
		if err := r.encodeValue(f.Type, v, w); err != nil {
			return errors.Wrapf(err, errors.ErrSchemaMismatch, "field=%s.%s", ref, f.Name)
		}
	}
	return nil
}

func (r *Registry) encodeValue(t Type, v any, w *codec.Writer) error {
	switch t.Kind {
	case KindUint, KindFelt, KindU256:
		x, ok := v.(*big.Int)
		if !ok || x == nil {
			return errors.Newf(errors.ErrSchemaMismatch, "%s 需要整数, 实际 %T", t, v)
		}
		switch t.Kind {
		case KindUint:
			w.PutUint(t.Width, x)
		case KindU256:
			w.PutUint256(x)
		default:
			f, err := codec.NewFelt(x)
			if err != nil {
				return errors.Wrap(err, errors.ErrSchemaMismatch)
			}
			w.PutFelt(f)
		}
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return errors.Newf(errors.ErrSchemaMismatch, "bool 需要布尔值, 实际 %T", v)
		}
		w.PutBool(b)
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return errors.Newf(errors.ErrSchemaMismatch, "%s 需要字节串, 实际 %T", t, v)
		}
		w.PutFixedBytes(t.Width, b)
	case KindStruct:
		sub, ok := v.(Record)
		if !ok {
			return errors.Newf(errors.ErrSchemaMismatch, "%s 需要记录, 实际 %T", t, v)
		}
		return r.encodeStruct(t.Ref, sub, w)
	case KindFixedArray, KindArray:
		elems, ok := v.([]any)
		if !ok {
			return errors.Newf(errors.ErrSchemaMismatch, "%s 需要数组, 实际 %T", t, v)
		}
		if t.Kind == KindFixedArray && len(elems) != t.Len {
			return errors.Newf(errors.ErrSchemaMismatch, "%s 长度为 %d", t, len(elems))
		}
		if t.Kind == KindArray {
			w.PutUint64(32, uint64(len(elems)))
		}
		for _, e := range elems {
			if err := r.encodeValue(*t.Elem, e, w); err != nil {
				return err
			}
		}
	default:
		return errors.Newf(errors.ErrInvalidSchema, "未知类型 %s", t.Kind)
	}
	return nil
}
