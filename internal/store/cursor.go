package store

import (
	"context"
	"time"

	"github.com/wfunc/survivor-indexer/internal/models"
)

// Cursor 最后完整应用的区块
type Cursor struct {
	Name        string
	BlockNumber uint64
	BlockHash   string
}

// LoadCursor 读取检查点，不存在时返回 nil
func LoadCursor(ctx context.Context, s Store, name string) (*Cursor, error) {
	rows, err := s.FindLatest(ctx, models.CollStreamCursors, Fields{"name": name}, "block_number", 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	n, _ := rows[0].Int("block_number")
	hash, _ := rows[0].String("block_hash")
	return &Cursor{Name: name, BlockNumber: uint64(n), BlockHash: hash}, nil
}

// SaveCursor 写入检查点，应与区块数据在同一事务中调用
func SaveCursor(ctx context.Context, s Store, c Cursor) error {
	return s.Upsert(ctx, models.CollStreamCursors,
		Fields{"name": c.Name},
		Fields{
			"block_number": c.BlockNumber,
			"block_hash":   c.BlockHash,
			"updated_at":   time.Now().UTC(),
		},
	)
}
