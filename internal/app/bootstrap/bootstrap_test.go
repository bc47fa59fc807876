package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redink-ai/redink/internal/infra/persistence/database/dbtest"
	"github.com/redink-ai/redink/internal/infra/persistence/ent"
	"github.com/redink-ai/redink/pkg/domain/model"
)

func TestLoadOrCreateIDSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("全新安装生成随机种子并复用", func(t *testing.T) {
		db, dialectName := dbtest.Open(t)
		dataDir := t.TempDir()
		b := NewBootstrapper(db, dialectName, dataDir)
		users := ent.NewUserRepo(db, dialectName)

		first, err := b.loadOrCreateIDSeed(ctx, users)
		if err != nil {
			t.Fatalf("loadOrCreateIDSeed: %v", err)
		}
		if first == "" {
			t.Fatal("全新安装应生成非空种子")
		}
		second, err := b.loadOrCreateIDSeed(ctx, users)
		if err != nil {
			t.Fatalf("loadOrCreateIDSeed: %v", err)
		}
		if first != second {
			t.Errorf("第二次读取的种子不同: %q != %q", second, first)
		}
	})

	t.Run("已有用户时使用兼容模式", func(t *testing.T) {
		db, dialectName := dbtest.Open(t)
		dataDir := t.TempDir()
		users := ent.NewUserRepo(db, dialectName)
		if err := users.Create(ctx, &model.User{Username: "alice", PasswordHash: "x", IsActive: true, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("创建用户失败: %v", err)
		}

		seed, err := NewBootstrapper(db, dialectName, dataDir).loadOrCreateIDSeed(ctx, users)
		if err != nil {
			t.Fatalf("loadOrCreateIDSeed: %v", err)
		}
		if seed != "" {
			t.Errorf("兼容模式种子应为空，得到 %q", seed)
		}
		if _, err := os.Stat(filepath.Join(dataDir, idSeedFile)); err != nil {
			t.Errorf("种子文件应被写入: %v", err)
		}
	})
}

func TestInitializeDatabaseIsIdempotent(t *testing.T) {
	db, dialectName := dbtest.Open(t)
	b := NewBootstrapper(db, dialectName, t.TempDir())
	if err := b.InitializeDatabase(context.Background()); err != nil {
		t.Fatalf("重复迁移不应失败: %v", err)
	}
}
