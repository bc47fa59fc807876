// Package dbtest 为测试提供已迁移的临时 SQLite 数据库
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"entgo.io/ent/dialect"

	"github.com/redink-ai/redink/internal/infra/persistence/database"
)

// Open 在 t.TempDir() 中创建数据库并执行迁移，测试结束时自动关闭
func Open(t *testing.T) (*sql.DB, string) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.NewMigrationService(db, dialect.SQLite).RunMigrations(context.Background()); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}
	return db, dialect.SQLite
}
