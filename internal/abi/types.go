// Package abi 声明式描述合约结构体和事件的字段布局，并按布局在线上值与记录之间转换。
package abi

import (
	"fmt"
	"math/big"
)

// Kind 字段类型种类
type Kind int

const (
	KindUint Kind = iota + 1
	KindFelt
	KindU256
	KindBool
	KindBytes
	KindStruct
	KindFixedArray
	KindArray
)

var kindNames = map[Kind]string{
	KindUint:       "uint",
	KindFelt:       "felt",
	KindU256:       "u256",
	KindBool:       "bool",
	KindBytes:      "bytes",
	KindStruct:     "struct",
	KindFixedArray: "fixed_array",
	KindArray:      "array",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type 字段类型
type Type struct {
	Kind  Kind
	Width int    // uint 位宽或 bytes 长度
	Ref   string // struct 引用的结构名
	Len   int    // fixed_array 长度
	Elem  *Type  // 数组元素类型
}

// Uint 位宽不超过128的无符号整数
func Uint(width int) Type { return Type{Kind: KindUint, Width: width} }

// Felt 原始线上值
func Felt() Type { return Type{Kind: KindFelt} }

// U256 占两个槽位的256位整数
func U256() Type { return Type{Kind: KindU256} }

// Bool 布尔值
func Bool() Type { return Type{Kind: KindBool} }

// Bytes n字节短字符串
func Bytes(n int) Type { return Type{Kind: KindBytes, Width: n} }

// Struct 嵌套结构
func Struct(ref string) Type { return Type{Kind: KindStruct, Ref: ref} }

// FixedArray 定长数组
func FixedArray(elem Type, n int) Type { return Type{Kind: KindFixedArray, Elem: &elem, Len: n} }

// Array 带长度前缀的变长数组
func Array(elem Type) Type { return Type{Kind: KindArray, Elem: &elem} }

func (t Type) String() string {
	switch t.Kind {
	case KindUint:
		return fmt.Sprintf("u%d", t.Width)
	case KindBytes:
		return fmt.Sprintf("bytes%d", t.Width)
	case KindStruct:
		return t.Ref
	case KindFixedArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case KindArray:
		return fmt.Sprintf("Array<%s>", t.Elem)
	default:
		return t.Kind.String()
	}
}

// Field 命名字段
type Field struct {
	Name string
	Type Type
}

// F 构造字段
func F(name string, t Type) Field {
	return Field{Name: name, Type: t}
}

// Schema 按声明顺序排列的字段列表
type Schema struct {
	Name   string
	Fields []Field
}

// NewSchema 构造结构定义
func NewSchema(name string, fields ...Field) Schema {
	return Schema{Name: name, Fields: fields}
}

// Record 解码结果，值类型为 *big.Int、bool、[]byte、Record 或 []any
type Record map[string]any

// Big 读取整数字段（缺失或类型不符时返回nil）
func (r Record) Big(name string) *big.Int {
	v, _ := r[name].(*big.Int)
	return v
}

// Sub 读取嵌套结构字段
func (r Record) Sub(name string) Record {
	v, _ := r[name].(Record)
	return v
}
