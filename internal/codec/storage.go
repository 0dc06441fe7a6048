package codec

import (
	"bytes"
	"fmt"
	"math/big"
)

// IDWidth 存储标识符的十六进制位数（定宽，字典序与数值序一致）
const IDWidth = 64

// EncodeID 将标识符编码为定宽大端十六进制字符串
func EncodeID(v *big.Int) string {
	return fmt.Sprintf("0x%0*x", IDWidth, v)
}

// EncodeFeltID 将线上值编码为存储标识符
func EncodeFeltID(f Felt) string {
	return EncodeID(f.int())
}

// DecodeID 解析存储标识符
func DecodeID(s string) (*big.Int, error) {
	f, err := ParseFelt(s)
	if err != nil {
		return nil, err
	}
	return f.Big(), nil
}

// DecodeShortString 将短字符串（大端字节，高位补零）还原为文本
func DecodeShortString(b []byte) string {
	return string(bytes.TrimLeft(b, "\x00"))
}

// EncodeShortString 将文本编码为短字符串字节
func EncodeShortString(s string, n int) ([]byte, error) {
	if len(s) > n {
		return nil, fmt.Errorf("字符串 %q 超过 %d 字节", s, n)
	}
	out := make([]byte, n)
	copy(out[n-len(s):], s)
	return out, nil
}
