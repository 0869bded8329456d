package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/defensoria-civil/divorcios/storage"
)

// =============================================================================
// 🗄️ 数据库辅助
// =============================================================================

// NewSQLiteStore 返回迁移完成的内存 SQLite 仓储，测试结束时关闭.
// 单连接保证所有查询看到同一个 :memory: 数据库.
func NewSQLiteStore(t testing.TB) *storage.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, storage.AutoMigrate(db))
	return storage.New(db)
}
