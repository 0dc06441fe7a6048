package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送订阅指令
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client 订阅连接，subs 为空时接收全部事件
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]struct{}
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[string]struct{}),
	}
}

func (c *Client) matches(adventurerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[adventurerID]
	return ok
}

func (c *Client) subscribe(adventurerID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.subs[adventurerID] = struct{}{}
	} else {
		delete(c.subs, adventurerID)
	}
}

// ReadPump 读取订阅指令。退出时只注销，连接由 WritePump 发完剩余消息后关闭
func (c *Client) ReadPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		if !c.handleMessage(data) {
			return
		}
	}
}

// handleMessage 处理订阅指令，返回 false 时断开连接
func (c *Client) handleMessage(data []byte) bool {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("消息格式错误")
		return false
	}

	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if msg.AdventurerID == "" {
			c.sendError("adventurer_id 不能为空")
			return true
		}
		c.subscribe(msg.AdventurerID, msg.Type == MessageTypeSubscribe)
		c.hub.sendTo(c, &Message{
			Type:         MessageTypeSubscribed,
			AdventurerID: msg.AdventurerID,
			Timestamp:    time.Now().Unix(),
		})
		return true

	default:
		c.hub.logger.Warn("收到不支持的消息类型",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type))
		c.sendError("不支持的消息类型: " + msg.Type)
		return false
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]string{"error": message})
	c.hub.sendTo(c, &Message{Type: MessageTypeError, Data: data, Timestamp: time.Now().Unix()})
}

// WritePump 写入消息，每条消息一帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道，缓冲中的消息此前已全部写出
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS 升级连接并注册订阅者，adventurer_id 查询参数作为初始订阅
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("WebSocket升级失败", zap.Error(err))
			return
		}

		client := NewClient(hub, conn)
		for _, id := range c.QueryArray("adventurer_id") {
			client.subscribe(id, true)
		}
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
