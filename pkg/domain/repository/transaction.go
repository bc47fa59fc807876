/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-07-02 00:43:46
 * @LastEditTime: 2026-08-22 11:05:10
 * @LastEditors: 安知鱼
 */
package repository

import "context"

// Repositories 结构体聚合了所有在单个事务中可能用到的仓储接口。
type Repositories struct {
	History  HistoryRepository
	User     UserRepository
	Provider ProviderConfigRepository
}

// TransactionManager 定义了事务管理器的接口。
type TransactionManager interface {
	// Do 方法接收一个函数，该函数会在一个事务中被调用。
	// 如果函数返回错误，事务将回滚；否则，事务将提交。
	Do(ctx context.Context, fn func(repos Repositories) error) error
}
