// Package chain 定义上游事件流交付的区块和原始事件。
package chain

import (
	"time"

	"github.com/wfunc/survivor-indexer/internal/codec"
)

// Finality 区块确认层级
type Finality string

const (
	FinalityPending   Finality = "pending"
	FinalityAccepted  Finality = "accepted"
	FinalityFinalized Finality = "finalized"
)

// Block 一个区块内按顺序排列的合约事件
type Block struct {
	Number    uint64     `json:"number"`
	Hash      codec.Felt `json:"hash"`
	Timestamp time.Time  `json:"timestamp"`
	Finality  Finality   `json:"finality"`
	Events    []Event    `json:"events"`
}

// IsFinalized 是否为不会再被修订的区块，缺省层级不算最终确认
func (b Block) IsFinalized() bool {
	return b.Finality == FinalityFinalized
}

// Event 原始合约事件，Keys[0] 为选择器
type Event struct {
	FromAddress codec.Felt   `json:"from_address"`
	Keys        []codec.Felt `json:"keys"`
	Data        []codec.Felt `json:"data"`
	TxHash      codec.Felt   `json:"transaction_hash"`
	Index       int          `json:"index"`
}

// Selector 事件选择器，没有 key 时返回 false
func (e Event) Selector() (codec.Felt, bool) {
	if len(e.Keys) == 0 {
		return codec.Felt{}, false
	}
	return e.Keys[0], true
}

// Meta 处理单个事件时携带的区块上下文
type Meta struct {
	BlockNumber uint64
	BlockTime   time.Time
	TxHash      codec.Felt
	EventIndex  int
}

// MetaOf 由区块和事件构造上下文
func MetaOf(b Block, e Event) Meta {
	return Meta{
		BlockNumber: b.Number,
		BlockTime:   b.Timestamp.UTC(),
		TxHash:      e.TxHash,
		EventIndex:  e.Index,
	}
}
