// Package indexer 把解码后的合约事件按区块顺序应用到聚合存储。
package indexer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/survivor-indexer/internal/chain"
	"github.com/wfunc/survivor-indexer/internal/codec"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/events"
	"github.com/wfunc/survivor-indexer/internal/logger"
	"github.com/wfunc/survivor-indexer/internal/store"
	"go.uber.org/zap"
)

// Stats 物化计数
type Stats struct {
	Blocks            atomic.Int64
	Events            atomic.Int64
	Applied           atomic.Int64
	ForeignEvents     atomic.Int64
	UnknownSelectors  atomic.Int64
	DecodeErrors      atomic.Int64
	CorrelationMisses atomic.Int64
	CombatAfterDeath  atomic.Int64
	LastBlock         atomic.Uint64
}

// StatsSnapshot 计数快照
type StatsSnapshot struct {
	Blocks            int64  `json:"blocks"`
	Events            int64  `json:"events"`
	Applied           int64  `json:"applied"`
	ForeignEvents     int64  `json:"foreign_events"`
	UnknownSelectors  int64  `json:"unknown_selectors"`
	DecodeErrors      int64  `json:"decode_errors"`
	CorrelationMisses int64  `json:"correlation_misses"`
	CombatAfterDeath  int64  `json:"combat_after_death"`
	LastBlock         uint64 `json:"last_block"`
}

// Applied 已提交的事件通知
type Applied struct {
	Event        string    `json:"event"`
	AdventurerID string    `json:"adventurer_id"`
	BlockNumber  uint64    `json:"block_number"`
	BlockTime    time.Time `json:"block_time"`
	TxHash       string    `json:"tx_hash"`
	EventIndex   int       `json:"event_index"`
}

// Notifier 接收已提交事件，不能阻塞
type Notifier interface {
	Notify(a Applied)
}

// Materializer 事件物化器，单线程按顺序调用
type Materializer struct {
	catalog        *events.Catalog
	store          store.Store
	contract       codec.Felt
	cursor         string
	warnAfterDeath bool
	now            func() time.Time
	log            *zap.Logger
	notifier       Notifier

	stats Stats

	mu   sync.Mutex
	dead map[string]struct{}
}

// Option 物化器选项
type Option func(*Materializer)

// WithCursor 检查点名称
func WithCursor(name string) Option {
	return func(m *Materializer) { m.cursor = name }
}

// WithClock 写入时间来源
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithLogger 日志器
func WithLogger(log *zap.Logger) Option {
	return func(m *Materializer) { m.log = log }
}

// WithWarnAfterDeath 阵亡后仍收到战斗事件时是否告警
func WithWarnAfterDeath(warn bool) Option {
	return func(m *Materializer) { m.warnAfterDeath = warn }
}

// WithNotifier 区块提交后逐个通知已应用的事件
func WithNotifier(n Notifier) Option {
	return func(m *Materializer) { m.notifier = n }
}

// New 创建物化器，只处理 contract 发出的事件
func New(catalog *events.Catalog, st store.Store, contract codec.Felt, opts ...Option) *Materializer {
	m := &Materializer{
		catalog:        catalog,
		store:          st,
		contract:       contract,
		cursor:         "survivor",
		warnAfterDeath: true,
		now:            time.Now,
		log:            logger.GetModuleLogger(logger.ModuleIndexer),
		dead:           make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cursor 检查点名称
func (m *Materializer) Cursor() string {
	return m.cursor
}

// Store 底层存储
func (m *Materializer) Store() store.Store {
	return m.store
}

// Stats 计数快照
func (m *Materializer) Stats() StatsSnapshot {
	return StatsSnapshot{
		Blocks:            m.stats.Blocks.Load(),
		Events:            m.stats.Events.Load(),
		Applied:           m.stats.Applied.Load(),
		ForeignEvents:     m.stats.ForeignEvents.Load(),
		UnknownSelectors:  m.stats.UnknownSelectors.Load(),
		DecodeErrors:      m.stats.DecodeErrors.Load(),
		CorrelationMisses: m.stats.CorrelationMisses.Load(),
		CombatAfterDeath:  m.stats.CombatAfterDeath.Load(),
		LastBlock:         m.stats.LastBlock.Load(),
	}
}

// HandleBlock 在一个事务中应用整个区块并推进检查点
func (m *Materializer) HandleBlock(ctx context.Context, b chain.Block) error {
	var (
		applied []Applied
		deaths  map[string]struct{}
	)
	err := m.store.Tx(ctx, func(tx store.Store) error {
		applied = applied[:0]
		deaths = make(map[string]struct{})
		for _, raw := range b.Events {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, errors.ErrCanceled)
			}
			m.stats.Events.Add(1)

			if !raw.FromAddress.Equal(m.contract) {
				m.stats.ForeignEvents.Add(1)
				continue
			}

			ev, err := m.catalog.Decode(raw)
			if err != nil {
				// 只有单个事件范围的错误可以跳过，其余错误中止整个区块
				if !errors.IsEventLocal(err) {
					return err
				}
				m.skipUndecodable(b, raw, err)
				continue
			}
			a, err := m.apply(ctx, tx, deaths, chain.MetaOf(b, raw), ev)
			if err != nil {
				return err
			}
			if a != nil {
				applied = append(applied, *a)
			}
		}
		return store.SaveCursor(ctx, tx, store.Cursor{
			Name:        m.cursor,
			BlockNumber: b.Number,
			BlockHash:   b.Hash.Hex(),
		})
	})
	if err != nil {
		m.log.Error("区块应用失败",
			zap.Uint64("block", b.Number),
			zap.String("hash", b.Hash.Hex()),
			zap.Error(err),
		)
		return err
	}

	m.stats.Blocks.Add(1)
	m.stats.LastBlock.Store(b.Number)
	m.markDead(deaths)
	for _, a := range applied {
		m.notify(a)
	}
	return nil
}

func (m *Materializer) notify(a Applied) {
	if m.notifier != nil {
		m.notifier.Notify(a)
	}
}

func (m *Materializer) skipUndecodable(b chain.Block, raw chain.Event, err error) {
	sel, _ := raw.Selector()
	if errors.Is(err, errors.ErrUnknownSelector) {
		m.stats.UnknownSelectors.Add(1)
		m.log.Debug("跳过未知事件",
			zap.Uint64("block", b.Number),
			zap.String("selector", sel.Hex()),
			zap.String("tx_hash", raw.TxHash.Hex()),
		)
		return
	}
	m.stats.DecodeErrors.Add(1)
	kind, _ := m.catalog.Lookup(sel)
	m.log.Error("事件解码失败，已跳过",
		zap.String("event", kind.String()),
		zap.Uint64("block", b.Number),
		zap.String("tx_hash", raw.TxHash.Hex()),
		zap.Int("event_index", raw.Index),
		zap.Error(err),
	)
}

// Apply 直接应用一个已解码的事件（不推进检查点）
func (m *Materializer) Apply(ctx context.Context, meta chain.Meta, ev events.Event) error {
	deaths := make(map[string]struct{})
	a, err := m.apply(ctx, m.store, deaths, meta, ev)
	if err != nil {
		return err
	}
	m.markDead(deaths)
	if a != nil {
		m.notify(*a)
	}
	return nil
}

// apply 应用单个事件，关联失败时返回 nil, nil。本次阵亡的冒险者记入 deaths，提交后才并入阵亡集合
func (m *Materializer) apply(ctx context.Context, s store.Store, deaths map[string]struct{}, meta chain.Meta, ev events.Event) (*Applied, error) {
	start := time.Now()
	h := &handler{
		m:    m,
		s:    s,
		ctx:  ctx,
		meta: meta,
		now:  m.now().UTC(),
		dead: deaths,
		adv:  storageID(ev.AdventurerState().AdventurerID),
	}

	err := h.handle(ev)
	if err != nil {
		if errors.Is(err, errors.ErrCorrelationMiss) {
			m.stats.CorrelationMisses.Add(1)
			m.log.Warn("关联失败，跳过依赖写入",
				zap.String("event", ev.Kind().String()),
				zap.String("adventurer_id", h.adv),
				zap.Uint64("block", meta.BlockNumber),
				zap.String("tx_hash", meta.TxHash.Hex()),
				zap.String("reason", err.Error()),
			)
			return nil, nil
		}
		return nil, errors.Wrapf(err, errors.ErrUnknown, "event=%s adventurer=%s block=%d",
			ev.Kind(), h.adv, meta.BlockNumber)
	}

	m.stats.Applied.Add(1)
	logger.LogIndexerEvent(m.log, ev.Kind().String(), meta.BlockNumber, h.adv, time.Since(start))
	return &Applied{
		Event:        ev.Kind().String(),
		AdventurerID: h.adv,
		BlockNumber:  meta.BlockNumber,
		BlockTime:    meta.BlockTime,
		TxHash:       storageID(meta.TxHash),
		EventIndex:   meta.EventIndex,
	}, nil
}

func (m *Materializer) markDead(advs map[string]struct{}) {
	if len(advs) == 0 {
		return
	}
	m.mu.Lock()
	for adv := range advs {
		m.dead[adv] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *Materializer) isDead(adv string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dead[adv]
	return ok
}
