// Package abitest 为结构定义生成随机的合法记录，供编解码往返测试使用。
package abitest

import (
	"math/big"
	"math/rand"

	"github.com/wfunc/survivor-indexer/internal/abi"
	"github.com/wfunc/survivor-indexer/internal/codec"
)

// MaxArrayLen 变长数组的最大随机长度
const MaxArrayLen = 4

// Sample 生成符合结构定义的随机记录
func Sample(reg *abi.Registry, ref string, rnd *rand.Rand) abi.Record {
	schema, ok := reg.Schema(ref)
	if !ok {
		return nil
	}
	rec := make(abi.Record, len(schema.Fields))
	for _, f := range schema.Fields {
		rec[f.Name] = value(reg, f.Type, rnd)
	}
	return rec
}

func value(reg *abi.Registry, t abi.Type, rnd *rand.Rand) any {
	switch t.Kind {
	case abi.KindUint:
		return randBits(rnd, t.Width)
	case abi.KindFelt:
		return new(big.Int).Rand(rnd, codec.Modulus)
	case abi.KindU256:
		return randBits(rnd, 256)
	case abi.KindBool:
		return rnd.Intn(2) == 1
	case abi.KindBytes:
		b := make([]byte, t.Width)
		rnd.Read(b)
		return b
	case abi.KindStruct:
		return Sample(reg, t.Ref, rnd)
	case abi.KindFixedArray:
		return elems(reg, *t.Elem, t.Len, rnd)
	case abi.KindArray:
		return elems(reg, *t.Elem, rnd.Intn(MaxArrayLen+1), rnd)
	default:
		return nil
	}
}

func elems(reg *abi.Registry, t abi.Type, n int, rnd *rand.Rand) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = value(reg, t, rnd)
	}
	return out
}

// randBits 偏向边界值的随机整数
func randBits(rnd *rand.Rand, bits int) *big.Int {
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	switch rnd.Intn(4) {
	case 0:
		return new(big.Int)
	case 1:
		return limit.Sub(limit, big.NewInt(1))
	default:
		return new(big.Int).Rand(rnd, limit)
	}
}
