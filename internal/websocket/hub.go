// Package websocket 把已提交的物化事件实时推送给订阅者。
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/survivor-indexer/internal/indexer"
	"go.uber.org/zap"
)

// 消息类型
const (
	MessageTypeConnected   = "connected"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSubscribed  = "subscribed"
	MessageTypeEvent       = "event"
	MessageTypeError       = "error"
)

// Message 推送消息
type Message struct {
	Type         string          `json:"type"`
	AdventurerID string          `json:"adventurer_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

// Hub 订阅连接管理中心，所有连接状态只在 Run 中修改
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	dropped atomic.Int64
	logger  *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行直到 ctx 取消，退出时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			h.logger.Info("订阅客户端连接", zap.String("client_id", c.ID))
			h.sendTo(c, &Message{Type: MessageTypeConnected, Timestamp: time.Now().Unix()})

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				delete(h.clients, c.ID)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("订阅客户端断开", zap.String("client_id", c.ID))

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

func (h *Hub) broadcastMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.matches(msg.AdventurerID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", c.ID))
		}
	}
}

// sendTo 发送给仍在线的单个客户端
func (h *Hub) sendTo(c *Client, msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// Notify 实现 indexer.Notifier，缓冲区满时丢弃
func (h *Hub) Notify(a indexer.Applied) {
	data, err := json.Marshal(a)
	if err != nil {
		h.logger.Error("序列化事件失败", zap.Error(err))
		return
	}
	msg := &Message{
		Type:         MessageTypeEvent,
		AdventurerID: a.AdventurerID,
		Data:         data,
		Timestamp:    time.Now().Unix(),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// Register 注册客户端，Hub 已停止时返回 false
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Count 在线客户端数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped 因缓冲区满丢弃的消息数
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
