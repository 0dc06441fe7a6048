package stream

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"github.com/wfunc/survivor-indexer/internal/store"
	"go.uber.org/zap"
)

// BlockHandler 在一个事务中应用区块并推进检查点
type BlockHandler interface {
	HandleBlock(ctx context.Context, b chain.Block) error
}

// Options 驱动参数
type Options struct {
	CursorName    string
	StartBlock    uint64
	RetryTimes    int
	RetryInterval time.Duration
	MaxRetryDelay time.Duration
}

// Driver 读取事件流，跳过已应用的区块，按顺序交给处理器
type Driver struct {
	open    Opener
	handler BlockHandler
	store   store.Store
	opts    Options
	session string
	log     *zap.Logger

	last *store.Cursor
}

// NewDriver 创建驱动
func NewDriver(open Opener, handler BlockHandler, st store.Store, opts Options) *Driver {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.MaxRetryDelay < opts.RetryInterval {
		opts.MaxRetryDelay = opts.RetryInterval
	}
	session := uuid.New().String()
	return &Driver{
		open:    open,
		handler: handler,
		store:   st,
		opts:    opts,
		session: session,
		log:     logger.GetModuleLogger(logger.ModuleStream).With(zap.String("session_id", session)),
	}
}

// SessionID 本次运行的会话标识
func (d *Driver) SessionID() string {
	return d.session
}

// Cursor 最后应用的区块
func (d *Driver) Cursor() *store.Cursor {
	return d.last
}

// Run 运行直到来源耗尽、ctx 取消或遇到致命错误
func (d *Driver) Run(ctx context.Context) error {
	err := d.retry(ctx, "load_cursor", func() error {
		cur, err := store.LoadCursor(ctx, d.store, d.opts.CursorName)
		d.last = cur
		return err
	})
	if err != nil {
		return err
	}

	from := d.opts.StartBlock
	if d.last != nil {
		// 从检查点区块本身开始，用于校验其哈希
		from = d.last.BlockNumber
		d.log.Info("从检查点恢复",
			zap.Uint64("block", d.last.BlockNumber),
			zap.String("hash", d.last.BlockHash),
		)
	}

	failures := 0
	for {
		before := d.last
		var src Source
		err := d.retry(ctx, "open_source", func() error {
			var err error
			src, err = d.open(ctx, from)
			return err
		})
		if err != nil {
			return err
		}

		err = d.consume(ctx, src)
		src.Close()

		switch {
		case err == nil, stderrors.Is(err, io.EOF):
			d.log.Info("事件流结束")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, errors.ErrStreamReceive), errors.Is(err, errors.ErrStreamClosed):
			// 连续断开且没有进展时按重试次数放弃
			if d.last == before {
				failures++
			} else {
				failures = 0
			}
			if failures > d.opts.RetryTimes {
				return err
			}
			d.log.Warn("事件流断开，重新连接", zap.Int("failures", failures), zap.Error(err))
			if d.last != nil {
				from = d.last.BlockNumber
			}
			if err := sleep(ctx, d.opts.RetryInterval); err != nil {
				return err
			}
		default:
			if errors.IsCritical(err) {
				d.log.Error("致命错误，停止事件流",
					zap.Int("code", int(errors.GetCode(err))),
					zap.Error(err),
				)
			}
			return err
		}
	}
}

// consume 读取一个来源直到出错，同一来源内最终确认的区块号不能倒退
func (d *Driver) consume(ctx context.Context, src Source) error {
	var seen uint64
	for {
		msg, err := src.Next(ctx)
		if err != nil {
			return err
		}

		switch msg.Type {
		case MessageHeartbeat:
			logger.LogStreamMessage(string(msg.Type), 0, 0)
		case MessageInvalidate:
			d.log.Error("上游数据被回滚", zap.Uint64("from", msg.From))
			return errors.Newf(errors.ErrReorgDetected, "invalidate from block %d", msg.From)
		case MessageData:
			b := msg.Block
			logger.LogStreamMessage(string(msg.Type), b.Number, len(b.Events))
			if !b.IsFinalized() {
				d.log.Debug("忽略未最终确认的区块",
					zap.Uint64("block", b.Number),
					zap.String("finality", string(b.Finality)),
				)
				continue
			}
			if b.Number < seen {
				return errors.Newf(errors.ErrBlockOutOfOrder, "block %d after %d", b.Number, seen)
			}
			seen = b.Number
			if err := d.handle(ctx, *b); err != nil {
				return err
			}
		default:
			d.log.Warn("忽略不支持的消息类型", zap.String("type", string(msg.Type)))
		}
	}
}

func (d *Driver) handle(ctx context.Context, b chain.Block) error {
	if d.last != nil {
		switch {
		case b.Number < d.last.BlockNumber:
			return nil
		case b.Number == d.last.BlockNumber:
			if b.Hash.Hex() == d.last.BlockHash {
				return nil
			}
			d.log.Error("已应用区块的哈希不一致",
				zap.Uint64("block", b.Number),
				zap.String("applied", d.last.BlockHash),
				zap.String("incoming", b.Hash.Hex()),
			)
			return errors.Newf(errors.ErrReorgDetected, "block %d hash %s != %s",
				b.Number, b.Hash.Hex(), d.last.BlockHash)
		}
	}

	err := d.retry(ctx, "handle_block", func() error {
		return d.handler.HandleBlock(ctx, b)
	})
	if err != nil {
		return err
	}
	d.last = &store.Cursor{Name: d.opts.CursorName, BlockNumber: b.Number, BlockHash: b.Hash.Hex()}
	return nil
}

// retry 对可重试错误做指数退避，超过次数后返回最后一次错误
func (d *Driver) retry(ctx context.Context, op string, fn func() error) error {
	delay := d.opts.RetryInterval
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.IsRetryable(err) || attempt > d.opts.RetryTimes {
			return err
		}

		d.log.Warn("操作失败，稍后重试",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > d.opts.MaxRetryDelay {
			delay = d.opts.MaxRetryDelay
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
