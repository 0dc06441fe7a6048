package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"go.uber.org/zap"
)

const (
	// 写超时
	writeWait = 10 * time.Second

	// 最大消息大小
	maxMessageSize = 16 * 1024 * 1024
)

// WebSocketOptions 连接参数
type WebSocketOptions struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	DialTimeout  time.Duration
	SessionID    string
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	// ping周期必须小于pong超时
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = o.PongTimeout * 9 / 10
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	return o
}

type frame struct {
	msg *Message
	err error
}

// WebSocketSource 通过 WebSocket 订阅事件流
type WebSocketSource struct {
	conn   *websocket.Conn
	opts   WebSocketOptions
	frames chan frame
	done   chan struct{}
	once   sync.Once
	log    *zap.Logger
}

// DialWebSocket 建立连接并发送订阅请求
func DialWebSocket(ctx context.Context, url string, sub Subscribe, opts WebSocketOptions) (*WebSocketSource, error) {
	opts = opts.withDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: opts.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrStreamConnect, "url=%s", url)
	}

	sub.Type = "subscribe"
	sub.SessionID = opts.SessionID
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.ErrStreamConnect, "subscribe")
	}

	s := &WebSocketSource{
		conn:   conn,
		opts:   opts,
		frames: make(chan frame, 64),
		done:   make(chan struct{}),
		log: logger.GetModuleLogger(logger.ModuleStream).With(
			zap.String("session_id", opts.SessionID),
		),
	}
	go s.readPump()
	go s.pingPump()

	s.log.Info("事件流已连接",
		zap.String("url", url),
		zap.Uint64("start_block", sub.StartBlock),
	)
	return s, nil
}

// WebSocketOpener 每次打开都从给定区块重新订阅
func WebSocketOpener(url string, contract codec.Felt, opts WebSocketOptions) Opener {
	return func(ctx context.Context, from uint64) (Source, error) {
		return DialWebSocket(ctx, url, Subscribe{
			ContractAddress: contract,
			StartBlock:      from,
			Finality:        chain.FinalityFinalized,
		}, opts)
	}
}

// readPump 读取消息
func (s *WebSocketSource) readPump() {
	defer close(s.frames)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			code := errors.ErrStreamReceive
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				code = errors.ErrStreamClosed
			}
			s.push(frame{err: errors.Wrap(err, code)})
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		msg, err := parseMessage(data)
		if !s.push(frame{msg: msg, err: err}) || err != nil {
			return
		}
	}
}

func (s *WebSocketSource) push(f frame) bool {
	select {
	case s.frames <- f:
		return true
	case <-s.done:
		return false
	}
}

// pingPump 定时发送ping
func (s *WebSocketSource) pingPump() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.log.Debug("发送ping失败", zap.Error(err))
				return
			}
		case <-s.done:
			return
		}
	}
}

// Next 实现 Source
func (s *WebSocketSource) Next(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return nil, errors.New(errors.ErrStreamClosed)
		}
		return f.msg, f.err
	}
}

// Close 实现 Source
func (s *WebSocketSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}
