/*
 * @Description: 服务商配置仓储接口
 * @Author: 安知鱼
 * @Date: 2026-08-22 11:02:47
 */
package repository

import (
	"context"

	"github.com/redink-ai/redink/pkg/domain/model"
)

// ProviderConfigRepository 以 (category, name) 为键管理服务商配置
type ProviderConfigRepository interface {
	ListByCategory(ctx context.Context, category model.ProviderCategory) ([]*model.ProviderConfig, error)
	FindByName(ctx context.Context, category model.ProviderCategory, name string) (*model.ProviderConfig, error)

	// Upsert 按 (category, name) 插入或更新，不修改 is_active
	Upsert(ctx context.Context, cfg *model.ProviderConfig) error

	// DeleteExcept 删除该类别下不在 keep 中的配置
	DeleteExcept(ctx context.Context, category model.ProviderCategory, keep []string) (int64, error)

	// SetActive 激活指定名称并停用同类别的其它配置；name 为空时全部停用
	SetActive(ctx context.Context, category model.ProviderCategory, name string) error

	Count(ctx context.Context) (int64, error)
}
