/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-07-13 23:40:12
 * @LastEditTime: 2026-08-22 12:01:36
 * @LastEditors: 安知鱼
 */
package ent

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redink-ai/redink/pkg/domain/repository"
)

// txManager 在一个 *sql.Tx 上组装所有仓储。
type txManager struct {
	db      *sql.DB
	dialect string
}

// NewTransactionManager 是 txManager 的构造函数。
func NewTransactionManager(db *sql.DB, dialectName string) repository.TransactionManager {
	return &txManager{db: db, dialect: dialectName}
}

// NewRepositories 组装不在事务中的仓储
func NewRepositories(db *sql.DB, dialectName string) repository.Repositories {
	return reposOn(base{q: db, dialect: dialectName})
}

func reposOn(b base) repository.Repositories {
	return repository.Repositories{
		History:  &historyRepo{b},
		User:     &userRepo{b},
		Provider: &providerConfigRepo{b},
	}
}

// Do 实现了 TransactionManager 接口。
func (tm *txManager) Do(ctx context.Context, fn func(repos repository.Repositories) error) error {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()

	repos := reposOn(base{q: tx, dialect: tm.dialect})

	if err := fn(repos); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("事务执行失败: %w, 回滚事务也失败: %v", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}
