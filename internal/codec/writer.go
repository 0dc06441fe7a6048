package codec

import (
	"fmt"
	"math/big"
)

// Writer 按解码顺序写出线上值，是 Reader 的逆操作
type Writer struct {
	data []Felt
	err  error
}

// NewWriter 创建写入器
func NewWriter() *Writer {
	return &Writer{}
}

// Felts 返回已写入的线上值和第一个错误
func (w *Writer) Felts() ([]Felt, error) {
	return w.data, w.err
}

// Len 已写入的槽位数
func (w *Writer) Len() int {
	return len(w.data)
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// PutFelt 写入原始线上值
func (w *Writer) PutFelt(f Felt) *Writer {
	w.data = append(w.data, f)
	return w
}

// PutUint 写入位宽不超过128的整数
func (w *Writer) PutUint(width int, v *big.Int) *Writer {
	if width <= 0 || width > MaxScalarWidth || v.Sign() < 0 || v.BitLen() > width {
		w.fail(fmt.Errorf("值 %s 不能编码为 u%d", v.String(), width))
		return w
	}
	w.data = append(w.data, Felt{v: new(big.Int).Set(v)})
	return w
}

// PutUint64 写入小整数
func (w *Writer) PutUint64(width int, v uint64) *Writer {
	return w.PutUint(width, new(big.Int).SetUint64(v))
}

// PutUint256 拆分为 low、high 两个槽位写入
func (w *Writer) PutUint256(v *big.Int) *Writer {
	if v.Sign() < 0 || v.BitLen() > 256 {
		w.fail(fmt.Errorf("值 %s 不能编码为 u256", v.String()))
		return w
	}
	high, low := new(big.Int).QuoRem(v, two128, new(big.Int))
	w.PutUint(128, low)
	return w.PutUint(128, high)
}

// PutBool 写入布尔值
func (w *Writer) PutBool(b bool) *Writer {
	if b {
		return w.PutUint64(1, 1)
	}
	return w.PutUint64(1, 0)
}

// PutFixedBytes 写入n字节的大端字节串
func (w *Writer) PutFixedBytes(n int, b []byte) *Writer {
	if n <= 0 || n > MaxShortBytes || len(b) > n {
		w.fail(fmt.Errorf("字节串长度 %d 不能编码为 bytes%d", len(b), n))
		return w
	}
	w.data = append(w.data, Felt{v: new(big.Int).SetBytes(b)})
	return w
}
