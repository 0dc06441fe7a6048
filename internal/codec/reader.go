package codec

import (
	"math/big"

	"github.com/wfunc/survivor-indexer/internal/errors"
)

// MaxScalarWidth 单个槽位可承载的最大整数位宽
const MaxScalarWidth = 128

// MaxShortBytes 单个槽位可承载的最大字节数
const MaxShortBytes = 31

var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Reader 线上值游标，每次读取按消耗的槽位数前进
type Reader struct {
	data []Felt
	pos  int
}

// NewReader 创建游标
func NewReader(data []Felt) *Reader {
	return &Reader{data: data}
}

// Pos 已消耗的槽位数
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining 剩余槽位数
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *Reader) next(what string) (*big.Int, error) {
	if r.pos >= len(r.data) {
		return nil, errors.Newf(errors.ErrMalformedPayload,
			"读取 %s 越界: offset=%d len=%d", what, r.pos, len(r.data))
	}
	v := r.data[r.pos].int()
	r.pos++
	return v, nil
}

// Felt 读取原始线上值
func (r *Reader) Felt() (Felt, error) {
	v, err := r.next("felt")
	if err != nil {
		return Felt{}, err
	}
	return Felt{v: v}, nil
}

// Uint 读取位宽不超过128的无符号整数（占1个槽位）
func (r *Reader) Uint(width int) (*big.Int, error) {
	if width <= 0 || width > MaxScalarWidth {
		return nil, errors.Newf(errors.ErrInvalidSchema, "无效的整数位宽: %d", width)
	}
	v, err := r.next("uint")
	if err != nil {
		return nil, err
	}
	if v.BitLen() > width {
		return nil, errors.Newf(errors.ErrMalformedPayload,
			"u%d 溢出: offset=%d value=0x%s", width, r.pos-1, v.Text(16))
	}
	return new(big.Int).Set(v), nil
}

// Uint64 读取位宽不超过64的整数
func (r *Reader) Uint64(width int) (uint64, error) {
	if width > 64 {
		return 0, errors.Newf(errors.ErrInvalidSchema, "位宽 %d 超出 uint64", width)
	}
	v, err := r.Uint(width)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// Uint256 读取 low、high 两个槽位，结果为 high*2^128 + low
func (r *Reader) Uint256() (*big.Int, error) {
	low, err := r.Uint(128)
	if err != nil {
		return nil, err
	}
	high, err := r.Uint(128)
	if err != nil {
		return nil, err
	}
	return high.Mul(high, two128).Add(high, low), nil
}

// Bool 读取布尔值，只接受0和1
func (r *Reader) Bool() (bool, error) {
	v, err := r.next("bool")
	if err != nil {
		return false, err
	}
	switch {
	case v.Sign() == 0:
		return false, nil
	case v.IsInt64() && v.Int64() == 1:
		return true, nil
	default:
		return false, errors.Newf(errors.ErrMalformedPayload,
			"无效的布尔值: offset=%d value=0x%s", r.pos-1, v.Text(16))
	}
}

// FixedBytes 读取n字节的大端字节串（n<=31，占1个槽位）
func (r *Reader) FixedBytes(n int) ([]byte, error) {
	if n <= 0 || n > MaxShortBytes {
		return nil, errors.Newf(errors.ErrInvalidSchema, "无效的字节长度: %d", n)
	}
	v, err := r.next("bytes")
	if err != nil {
		return nil, err
	}
	if v.BitLen() > n*8 {
		return nil, errors.Newf(errors.ErrMalformedPayload,
			"bytes%d 溢出: offset=%d", n, r.pos-1)
	}
	return v.FillBytes(make([]byte, n)), nil
}
