/*
 * @Description: 数据库表结构与迁移服务
 * @Author: 安知鱼
 * @Date: 2025-12-08
 * @LastEditTime: 2026-09-01 21:30:52
 */
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"entgo.io/ent/dialect"
)

// MigrationService 数据库迁移服务
type MigrationService struct {
	db      *sql.DB
	dialect string
}

// NewMigrationService 创建迁移服务，dialectName 为 ent 方言名
func NewMigrationService(db *sql.DB, dialectName string) *MigrationService {
	return &MigrationService{
		db:      db,
		dialect: dialectName,
	}
}

// RunMigrations 建表并执行增量迁移
func (m *MigrationService) RunMigrations(ctx context.Context) error {
	log.Println("📋 开始执行数据库迁移...")

	if err := m.ensureTables(ctx); err != nil {
		return fmt.Errorf("建表失败: %w", err)
	}

	// 早期版本没有多用户，补齐 user_id 字段
	for _, table := range []string{"history_records", "provider_configs"} {
		if err := m.migrateUserID(ctx, table); err != nil {
			return fmt.Errorf("%s.user_id 字段迁移失败: %w", table, err)
		}
	}

	log.Println("✅ 数据库迁移完成")
	return nil
}

func (m *MigrationService) ensureTables(ctx context.Context) error {
	statements, err := schemaFor(m.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行 DDL 失败: %w\n%s", err, stmt)
		}
	}
	return nil
}

// migrateUserID 为旧表添加 user_id 字段
func (m *MigrationService) migrateUserID(ctx context.Context, table string) error {
	exists, err := m.columnExists(ctx, table, "user_id")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Printf("  → 为 %s 添加 user_id 字段...", table)
	var stmt string
	switch m.dialect {
	case dialect.MySQL:
		stmt = fmt.Sprintf("ALTER TABLE %s ADD COLUMN user_id BIGINT UNSIGNED NULL", table)
	case dialect.Postgres:
		stmt = fmt.Sprintf("ALTER TABLE %s ADD COLUMN user_id BIGINT NULL", table)
	default:
		stmt = fmt.Sprintf("ALTER TABLE %s ADD COLUMN user_id INTEGER NULL", table)
	}
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("添加 user_id 字段失败: %w", err)
	}
	log.Printf("  ✓ %s.user_id 字段添加成功", table)
	return nil
}

func (m *MigrationService) columnExists(ctx context.Context, tableName, columnName string) (bool, error) {
	var query string
	switch m.dialect {
	case dialect.MySQL:
		query = `
			SELECT COUNT(*)
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = DATABASE()
			AND TABLE_NAME = ?
			AND COLUMN_NAME = ?
		`
	case dialect.Postgres:
		query = `
			SELECT COUNT(*)
			FROM information_schema.columns
			WHERE table_name = $1
			AND column_name = $2
		`
	case dialect.SQLite:
		query = `
			SELECT COUNT(*)
			FROM pragma_table_info(?)
			WHERE name = ?
		`
	default:
		return false, fmt.Errorf("不支持的数据库类型: %s", m.dialect)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, query, tableName, columnName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func schemaFor(dialectName string) ([]string, error) {
	switch dialectName {
	case dialect.SQLite:
		return sqliteSchema, nil
	case dialect.MySQL:
		return mysqlSchema, nil
	case dialect.Postgres:
		return postgresSchema, nil
	}
	return nil, fmt.Errorf("不支持的数据库类型: %s", dialectName)
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username VARCHAR(50) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		last_login_at DATETIME NULL
	)`,
	`CREATE TABLE IF NOT EXISTS history_records (
		id VARCHAR(36) PRIMARY KEY,
		user_id INTEGER NULL,
		title VARCHAR(500) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		thumbnail VARCHAR(255) NULL,
		task_id VARCHAR(50) NULL,
		outline_text TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_records_task_id ON history_records (task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_records_created_at ON history_records (created_at)`,
	`CREATE TABLE IF NOT EXISTS outline_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id VARCHAR(36) NOT NULL REFERENCES history_records (id) ON DELETE CASCADE,
		page_index INTEGER NOT NULL,
		page_type VARCHAR(20) NOT NULL DEFAULT 'content',
		content TEXT NOT NULL,
		UNIQUE (record_id, page_index)
	)`,
	`CREATE TABLE IF NOT EXISTS task_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id VARCHAR(36) NOT NULL REFERENCES history_records (id) ON DELETE CASCADE,
		image_index INTEGER NOT NULL,
		filename VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE (record_id, image_index)
	)`,
	`CREATE TABLE IF NOT EXISTS provider_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NULL,
		category VARCHAR(20) NOT NULL,
		name VARCHAR(100) NOT NULL,
		provider_type VARCHAR(50) NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		base_url VARCHAR(500) NOT NULL DEFAULT '',
		model VARCHAR(100) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 0,
		extra_config TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (category, name)
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME(6) NOT NULL,
		last_login_at DATETIME(6) NULL
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS history_records (
		id VARCHAR(36) PRIMARY KEY,
		user_id BIGINT UNSIGNED NULL,
		title VARCHAR(500) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		thumbnail VARCHAR(255) NULL,
		task_id VARCHAR(50) NULL,
		outline_text LONGTEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_history_records_task_id (task_id),
		INDEX idx_history_records_created_at (created_at)
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS outline_pages (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		record_id VARCHAR(36) NOT NULL,
		page_index INT NOT NULL,
		page_type VARCHAR(20) NOT NULL DEFAULT 'content',
		content TEXT NOT NULL,
		UNIQUE KEY uq_outline_pages_record_index (record_id, page_index),
		CONSTRAINT fk_outline_pages_record FOREIGN KEY (record_id) REFERENCES history_records (id) ON DELETE CASCADE
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS task_images (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		record_id VARCHAR(36) NOT NULL,
		image_index INT NOT NULL,
		filename VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE KEY uq_task_images_record_index (record_id, image_index),
		CONSTRAINT fk_task_images_record FOREIGN KEY (record_id) REFERENCES history_records (id) ON DELETE CASCADE
	) DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS provider_configs (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NULL,
		category VARCHAR(20) NOT NULL,
		name VARCHAR(100) NOT NULL,
		provider_type VARCHAR(50) NOT NULL,
		api_key TEXT NOT NULL,
		base_url VARCHAR(500) NOT NULL DEFAULT '',
		model VARCHAR(100) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		extra_config TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_provider_configs_category_name (category, name)
	) DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		last_login_at TIMESTAMPTZ NULL
	)`,
	`CREATE TABLE IF NOT EXISTS history_records (
		id VARCHAR(36) PRIMARY KEY,
		user_id BIGINT NULL,
		title VARCHAR(500) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'draft',
		thumbnail VARCHAR(255) NULL,
		task_id VARCHAR(50) NULL,
		outline_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_records_task_id ON history_records (task_id)`,
	`CREATE INDEX IF NOT EXISTS idx_history_records_created_at ON history_records (created_at)`,
	`CREATE TABLE IF NOT EXISTS outline_pages (
		id BIGSERIAL PRIMARY KEY,
		record_id VARCHAR(36) NOT NULL REFERENCES history_records (id) ON DELETE CASCADE,
		page_index INT NOT NULL,
		page_type VARCHAR(20) NOT NULL DEFAULT 'content',
		content TEXT NOT NULL,
		UNIQUE (record_id, page_index)
	)`,
	`CREATE TABLE IF NOT EXISTS task_images (
		id BIGSERIAL PRIMARY KEY,
		record_id VARCHAR(36) NOT NULL REFERENCES history_records (id) ON DELETE CASCADE,
		image_index INT NOT NULL,
		filename VARCHAR(255) NOT NULL DEFAULT '',
		UNIQUE (record_id, image_index)
	)`,
	`CREATE TABLE IF NOT EXISTS provider_configs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NULL,
		category VARCHAR(20) NOT NULL,
		name VARCHAR(100) NOT NULL,
		provider_type VARCHAR(50) NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		base_url VARCHAR(500) NOT NULL DEFAULT '',
		model VARCHAR(100) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		extra_config TEXT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (category, name)
	)`,
}
