// Package codec 实现合约事件负载的线上表示：
// 由域元素组成的扁平序列（每个元素都是小于域模数的无符号整数），以及由其派生的存储编码。
package codec

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Modulus 域模数 P = 2^251 + 17*2^192 + 1，所有线上值都小于 P
var Modulus = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	p.Add(p, new(big.Int).Lsh(big.NewInt(17), 192))
	return p.Add(p, big.NewInt(1))
}()

// Felt 单个线上值（零值表示0，创建后不可变）
type Felt struct {
	v *big.Int
}

func (f Felt) int() *big.Int {
	if f.v == nil {
		return new(big.Int)
	}
	return f.v
}

// NewFelt 创建线上值，x 必须在 [0, P) 范围内
func NewFelt(x *big.Int) (Felt, error) {
	if x.Sign() < 0 || x.Cmp(Modulus) >= 0 {
		return Felt{}, fmt.Errorf("felt out of range: %s", x.String())
	}
	return Felt{v: new(big.Int).Set(x)}, nil
}

// FeltFromUint64 由小整数创建线上值
func FeltFromUint64(x uint64) Felt {
	return Felt{v: new(big.Int).SetUint64(x)}
}

// MustFelt 解析失败时panic，仅用于常量和测试
func MustFelt(s string) Felt {
	f, err := ParseFelt(s)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseFelt 解析0x前缀的十六进制或十进制字符串
func ParseFelt(s string) (Felt, error) {
	x, ok := new(big.Int), false
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return FeltFromUint64(0), nil
		}
		_, ok = x.SetString(s[2:], 16)
	} else {
		_, ok = x.SetString(s, 10)
	}
	if !ok {
		return Felt{}, fmt.Errorf("invalid felt %q", s)
	}
	return NewFelt(x)
}

// Big 返回值的副本
func (f Felt) Big() *big.Int {
	return new(big.Int).Set(f.int())
}

// IsZero 是否为0
func (f Felt) IsZero() bool {
	return f.int().Sign() == 0
}

// Equal 比较两个线上值
func (f Felt) Equal(o Felt) bool {
	return f.int().Cmp(o.int()) == 0
}

// Hex 最短的0x十六进制形式
func (f Felt) Hex() string {
	return "0x" + f.int().Text(16)
}

func (f Felt) String() string {
	return f.Hex()
}

// MarshalJSON 编码为十六进制字符串
func (f Felt) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Hex())
}

// UnmarshalJSON 接受十六进制或十进制字符串
func (f *Felt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("felt must be a string: %w", err)
	}
	parsed, err := ParseFelt(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// FeltsFromUint64 构造负载的便捷方法
func FeltsFromUint64(values ...uint64) []Felt {
	out := make([]Felt, len(values))
	for i, x := range values {
		out[i] = FeltFromUint64(x)
	}
	return out
}
