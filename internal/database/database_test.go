package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/survivor-indexer/internal/config"
	"github.com/wfunc/survivor-indexer/internal/models"
	gormlogger "gorm.io/gorm/logger"
)

func fileConfig(t *testing.T) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             filepath.Join(t.TempDir(), "data", "indexer.db"),
		MaxIdleConns:    2,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "silent",
	}
}

func TestMigrateCreatesEveryCollection(t *testing.T) {
	cfg := fileConfig(t)
	db, err := Open(cfg)
	require.NoError(t, err)
	defer CleanupTestDB(db)

	require.NoError(t, Migrate(db))
	// 重复迁移不报错
	require.NoError(t, Migrate(db))

	for _, c := range models.Collections() {
		assert.True(t, db.Migrator().HasTable(c.Name), "缺少表 %s", c.Name)
	}
	assert.True(t, db.Migrator().HasIndex(&models.Item{}, "idx_item_adventurer"))

	// 迁移结束后锁文件已释放
	_, err = os.Stat(cfg.DSN + ".migration.lock")
	assert.True(t, os.IsNotExist(err))
}

func TestReopenAndMigrateKeepsRows(t *testing.T) {
	cfg := fileConfig(t)
	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Create(&models.Adventurer{AdventurerID: "0x01", Name: "first"}).Error)

	var got models.Adventurer
	require.NoError(t, db.Where("adventurer_id = ?", "0x01").First(&got).Error)
	CleanupTestDB(db)

	db, err = Open(cfg)
	require.NoError(t, err)
	defer CleanupTestDB(db)
	require.NoError(t, Migrate(db))

	var again models.Adventurer
	require.NoError(t, db.Where("adventurer_id = ?", "0x01").First(&again).Error)
	assert.Equal(t, "first", again.Name)
}

func TestMigrateRemovesStaleLock(t *testing.T) {
	cfg := fileConfig(t)
	db, err := Open(cfg)
	require.NoError(t, err)
	defer CleanupTestDB(db)

	lock := sqlitePath(db) + ".migration.lock"
	require.NoError(t, os.WriteFile(lock, nil, 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lock, old, old))

	require.NoError(t, Migrate(db))
	_, err = os.Stat(lock)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db := SetupTestDB()
	assert.NoError(t, Ping(context.Background(), db))

	CleanupTestDB(db)
	assert.Error(t, Ping(context.Background(), db))
	assert.Error(t, Ping(context.Background(), nil))
}

func TestSQLitePath(t *testing.T) {
	db := SetupTestDB()
	defer CleanupTestDB(db)
	assert.Empty(t, sqlitePath(db))
	assert.True(t, isMemoryDSN("file::memory:?cache=shared"))
	assert.False(t, isMemoryDSN("./data/indexer.db"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, parseLogLevel("error"))
	assert.Equal(t, gormlogger.Info, parseLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel(""))
}
