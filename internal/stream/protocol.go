// Package stream 从上游事件流按顺序读取区块，并驱动物化器应用它们。
package stream

import (
	"context"
	"encoding/json"

	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
)

// MessageType 消息类型
type MessageType string

const (
	// MessageData 一个区块的事件
	MessageData MessageType = "data"
	// MessageInvalidate 从 From 开始的区块已失效
	MessageInvalidate MessageType = "invalidate"
	// MessageHeartbeat 心跳
	MessageHeartbeat MessageType = "heartbeat"
)

// Message 事件流消息
type Message struct {
	Type  MessageType  `json:"type"`
	Block *chain.Block `json:"block,omitempty"`
	From  uint64       `json:"from,omitempty"`
}

// Subscribe 连接后发送的订阅请求
type Subscribe struct {
	Type            string         `json:"type"`
	SessionID       string         `json:"session_id"`
	ContractAddress codec.Felt     `json:"contract_address"`
	StartBlock      uint64         `json:"start_block"`
	Finality        chain.Finality `json:"finality"`
}

// Source 有序的消息来源
type Source interface {
	// Next 阻塞直到下一条消息，来源耗尽时返回 io.EOF
	Next(ctx context.Context) (*Message, error)
	Close() error
}

// Opener 从指定区块（含）开始打开一个来源
type Opener func(ctx context.Context, from uint64) (Source, error)

// parseMessage 解析一帧消息
func parseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat)
	}
	switch msg.Type {
	case MessageData:
		if msg.Block == nil {
			return nil, errors.New(errors.ErrMessageFormat, "data message without block")
		}
	case MessageInvalidate, MessageHeartbeat:
	case "":
		return nil, errors.New(errors.ErrMessageFormat, "消息类型不能为空")
	}
	return &msg, nil
}
