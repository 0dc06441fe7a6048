package database

import (
	"fmt"

	"github.com/wfunc/survivor-indexer/internal/logger"
	"github.com/wfunc/survivor-indexer/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 自动迁移所有物化集合的表结构
func Migrate(db *gorm.DB) error {
	// SQLite 文件库用锁文件避免多个进程同时迁移
	if dbPath := sqlitePath(db); dbPath != "" {
		CleanupStaleLocks(dbPath)
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")

	for _, c := range models.Collections() {
		if err := db.AutoMigrate(c.Model); err != nil {
			logger.Error("迁移失败",
				zap.String("table", c.Name),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("table", c.Name))
	}

	logger.Info("数据库迁移完成")
	return nil
}
