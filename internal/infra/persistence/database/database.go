/*
 * @Description: 数据库连接管理 (支持多种数据库)
 * @Author: 安知鱼
 * @Date: 2025-07-12 16:09:46
 * @LastEditTime: 2026-09-01 20:47:13
 * @LastEditors: 安知鱼
 */
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/redink-ai/redink/pkg/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DialectFor 把配置中的数据库类型转换为 ent 方言名
func DialectFor(dbType string) (string, error) {
	switch dbType {
	case "", "sqlite", "sqlite3":
		return dialect.SQLite, nil
	case "mysql", "mariadb":
		return dialect.MySQL, nil
	case "postgres", "postgresql":
		return dialect.Postgres, nil
	default:
		return "", fmt.Errorf("不支持的数据库驱动: %s (支持: mysql/mariadb, postgres, sqlite)", dbType)
	}
}

// NewSQLDB 创建并返回一个标准的 *sql.DB 连接池，以及对应的 ent 方言名。
func NewSQLDB(cfg *config.Config) (*sql.DB, string, error) {
	driver := cfg.GetString(config.KeyDBType)
	if driver == "" {
		log.Println("提示: 配置文件中未指定 'Database.Type'，将默认使用 'sqlite'")
		driver = "sqlite"
	}
	dialectName, err := DialectFor(driver)
	if err != nil {
		return nil, "", err
	}

	dbUser := cfg.GetString(config.KeyDBUser)
	dbPass := cfg.GetString(config.KeyDBPassword)
	dbHost := cfg.GetString(config.KeyDBHost)
	dbPort := cfg.GetString(config.KeyDBPort)
	dbName := cfg.GetString(config.KeyDBName)

	var dsn string
	switch dialectName {
	case dialect.MySQL:
		if dbUser == "" || dbHost == "" || dbPort == "" || dbName == "" {
			return nil, "", fmt.Errorf("MySQL 连接参数不完整 (需要 User, Host, Port, Name)")
		}
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			dbUser, dbPass, dbHost, dbPort, dbName)
	case dialect.Postgres:
		if dbUser == "" || dbHost == "" || dbPort == "" || dbName == "" {
			return nil, "", fmt.Errorf("PostgreSQL 连接参数不完整 (需要 User, Host, Port, Name)")
		}
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPass, dbName)
	case dialect.SQLite:
		dataDir := cfg.GetString(config.KeyDBPath)
		if dataDir == "" {
			dataDir = "./data"
		}
		if dbName == "" {
			dbName = "redink.db"
		}
		finalPath := filepath.Join(dataDir, dbName)
		log.Printf("【提示】SQLite 数据库路径: %s\n", finalPath)
		db, err := OpenSQLite(finalPath)
		if err != nil {
			return nil, "", err
		}
		log.Printf("✅ %s 数据库连接池创建成功！\n", displayName(driver))
		return db, dialectName, nil
	}

	db, err := sql.Open(dialectName, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("打开 sql.DB 连接失败 (驱动: %s): %w", dialectName, err)
	}

	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)

	if err := pingWithTimeout(db); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("无法 Ping 通数据库 (%s@%s:%s): %w", dbUser, dbHost, dbPort, err)
	}

	log.Printf("✅ %s 数据库连接池创建成功！\n", displayName(driver))
	return db, dialectName, nil
}

// OpenSQLite 打开（必要时创建）一个 SQLite 数据库文件并启用外键约束。
// SQLite 只允许单写者，连接池限制为 1 以避免 database is locked。
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("无法创建数据库目录: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := pingWithTimeout(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法 Ping 通 SQLite 数据库 (%s): %w", path, err)
	}
	return db, nil
}

func pingWithTimeout(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func displayName(driver string) string {
	return cases.Title(language.English).String(driver)
}
