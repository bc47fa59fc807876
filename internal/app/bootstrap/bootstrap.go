/*
 * @Description: 启动引导：建表迁移、ID 编码器、旧数据导入
 * @Author: 安知鱼
 * @Date: 2025-07-12 16:20:31
 * @LastEditTime: 2026-09-11 21:08:44
 * @LastEditors: 安知鱼
 */
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/redink-ai/redink/internal/infra/persistence/database"
	"github.com/redink-ai/redink/internal/pkg/security"
	"github.com/redink-ai/redink/pkg/domain/repository"
	"github.com/redink-ai/redink/pkg/idgen"
	"github.com/redink-ai/redink/pkg/service/legacy"
)

// idSeedFile 保存 sqids 字母表种子，位于数据目录下，不随配置文件分发
const idSeedFile = ".id_seed"

type Bootstrapper struct {
	db      *sql.DB
	dialect string
	dataDir string
}

func NewBootstrapper(db *sql.DB, dialectName, dataDir string) *Bootstrapper {
	return &Bootstrapper{db: db, dialect: dialectName, dataDir: dataDir}
}

// InitializeDatabase 建表并执行增量迁移
func (b *Bootstrapper) InitializeDatabase(ctx context.Context) error {
	log.Println("--- 开始执行数据库初始化引导程序 ---")
	if err := database.NewMigrationService(b.db, b.dialect).RunMigrations(ctx); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Println("--- 数据库初始化引导程序执行完成 ---")
	return nil
}

// InitIDEncoder 读取或创建 ID 种子并初始化 sqids 编码器
func (b *Bootstrapper) InitIDEncoder(ctx context.Context, users repository.UserRepository) error {
	seed, err := b.loadOrCreateIDSeed(ctx, users)
	if err != nil {
		return err
	}
	if err := idgen.InitSqidsEncoderWithSeed(seed); err != nil {
		return err
	}
	log.Println("✅ ID 编码器初始化成功")
	return nil
}

// loadOrCreateIDSeed 种子文件存在时直接使用（空内容表示兼容模式）。
// 文件不存在但已有用户时写入空种子，保证已发出的公共 ID 仍能解码。
func (b *Bootstrapper) loadOrCreateIDSeed(ctx context.Context, users repository.UserRepository) (string, error) {
	path := filepath.Join(b.dataDir, idSeedFile)
	data, err := os.ReadFile(path)
	if err == nil {
		seed := strings.TrimSpace(string(data))
		if seed == "" {
			log.Println("📦 使用兼容模式（默认字母表）")
		} else {
			log.Println("📦 已加载 IDSeed")
		}
		return seed, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("读取 IDSeed 失败: %w", err)
	}

	n, err := users.Count(ctx)
	if err != nil {
		log.Printf("警告: 无法查询用户数量: %v，按已有用户处理", err)
		n = 1
	}

	var seed string
	if n > 0 {
		log.Println("⚠️  检测到已有用户但没有 IDSeed，使用兼容模式（默认字母表）")
	} else {
		if seed, err = security.RandomSecret(16); err != nil {
			return "", fmt.Errorf("生成 IDSeed 失败: %w", err)
		}
		log.Println("✅ 全新安装，已生成随机 IDSeed")
	}

	if err := os.MkdirAll(b.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("创建数据目录失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		return "", fmt.Errorf("保存 IDSeed 失败: %w", err)
	}
	return seed, nil
}

// ImportLegacy 导入旧版 JSON/YAML 数据，目标表非空时自动跳过。失败只记日志，不阻止启动。
func ImportLegacy(ctx context.Context, txManager repository.TransactionManager, historyDir, providerDir string) *legacy.Report {
	report, err := legacy.NewImporter(txManager, historyDir, providerDir).Run(ctx)
	if err != nil {
		log.Printf("[迁移] ⚠️ 导入旧数据失败: %v", err)
	}
	if report != nil && (report.Records > 0 || report.Providers > 0 || len(report.Failed) > 0) {
		log.Printf("[迁移] %s", report.Summary())
	}
	return report
}
