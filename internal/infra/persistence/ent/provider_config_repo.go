/*
 * @Description: 服务商配置仓储实现
 * @Author: 安知鱼
 * @Date: 2026-08-22 11:30:40
 * @LastEditTime: 2026-09-05 16:10:12
 * @LastEditors: 安知鱼
 */
package ent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
)

const tableProviderConfigs = "provider_configs"

var providerColumns = []string{
	"id", "user_id", "category", "name", "provider_type", "api_key", "base_url", "model",
	"is_active", "extra_config", "created_at", "updated_at",
}

type providerConfigRepo struct {
	base
}

// NewProviderConfigRepo 是 providerConfigRepo 的构造函数。
func NewProviderConfigRepo(db *sql.DB, dialectName string) repository.ProviderConfigRepository {
	return &providerConfigRepo{base{q: db, dialect: dialectName}}
}

func (r *providerConfigRepo) ListByCategory(ctx context.Context, category model.ProviderCategory) ([]*model.ProviderConfig, error) {
	sel := r.sb().Select(providerColumns...).
		From(entsql.Table(tableProviderConfigs)).
		Where(entsql.EQ("category", string(category))).
		OrderBy("id")
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("查询服务商配置失败: %w", err)
	}
	defer rows.Close()

	list := []*model.ProviderConfig{}
	for rows.Next() {
		cfg, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, cfg)
	}
	return list, rows.Err()
}

func (r *providerConfigRepo) FindByName(ctx context.Context, category model.ProviderCategory, name string) (*model.ProviderConfig, error) {
	sel := r.sb().Select(providerColumns...).
		From(entsql.Table(tableProviderConfigs)).
		Where(entsql.And(entsql.EQ("category", string(category)), entsql.EQ("name", name))).
		Limit(1)
	cfg, err := scanProvider(r.queryRow(ctx, sel))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("查询服务商配置失败: %w", err)
	}
	return cfg, nil
}

func (r *providerConfigRepo) Upsert(ctx context.Context, cfg *model.ProviderConfig) error {
	now := time.Now()
	existing, err := r.FindByName(ctx, cfg.Category, cfg.Name)
	if err != nil && !errors.Is(err, constant.ErrNotFound) {
		return err
	}

	extra, err := cfg.ExtraConfig.Value()
	if err != nil {
		return fmt.Errorf("序列化额外配置失败: %w", err)
	}

	if existing != nil {
		stmt := r.sb().Update(tableProviderConfigs).
			Set("provider_type", cfg.Type).
			Set("api_key", cfg.APIKey).
			Set("base_url", cfg.BaseURL).
			Set("model", cfg.Model).
			Set("extra_config", extra).
			Set("updated_at", r.timeArg(now)).
			Where(entsql.EQ("id", int64(existing.ID)))
		if _, err := r.exec(ctx, stmt); err != nil {
			return fmt.Errorf("更新服务商配置失败: %w", err)
		}
		cfg.ID = existing.ID
		cfg.IsActive = existing.IsActive
		cfg.CreatedAt = existing.CreatedAt
		cfg.UpdatedAt = now
		return nil
	}

	ins := r.sb().Insert(tableProviderConfigs).
		Columns("user_id", "category", "name", "provider_type", "api_key", "base_url", "model",
			"is_active", "extra_config", "created_at", "updated_at").
		Values(nullableUint(cfg.UserID), string(cfg.Category), cfg.Name, cfg.Type, cfg.APIKey, cfg.BaseURL,
			cfg.Model, cfg.IsActive, extra, r.timeArg(now), r.timeArg(now))
	id, err := r.insertReturningID(ctx, ins)
	if err != nil {
		return fmt.Errorf("新增服务商配置失败: %w", err)
	}
	cfg.ID = id
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	return nil
}

func (r *providerConfigRepo) DeleteExcept(ctx context.Context, category model.ProviderCategory, keep []string) (int64, error) {
	preds := []*entsql.Predicate{entsql.EQ("category", string(category))}
	if len(keep) > 0 {
		args := make([]any, len(keep))
		for i, name := range keep {
			args[i] = name
		}
		preds = append(preds, entsql.NotIn("name", args...))
	}
	res, err := r.exec(ctx, r.sb().Delete(tableProviderConfigs).Where(and(preds...)))
	if err != nil {
		return 0, fmt.Errorf("删除服务商配置失败: %w", err)
	}
	return res.RowsAffected()
}

func (r *providerConfigRepo) SetActive(ctx context.Context, category model.ProviderCategory, name string) error {
	off := r.sb().Update(tableProviderConfigs).
		Set("is_active", false).
		Where(entsql.EQ("category", string(category)))
	if _, err := r.exec(ctx, off); err != nil {
		return fmt.Errorf("停用服务商失败: %w", err)
	}
	if name == "" {
		return nil
	}

	on := r.sb().Update(tableProviderConfigs).
		Set("is_active", true).
		Where(entsql.And(entsql.EQ("category", string(category)), entsql.EQ("name", name)))
	res, err := r.exec(ctx, on)
	if err != nil {
		return fmt.Errorf("激活服务商失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("激活服务商 %s 失败: %w", name, constant.ErrNotFound)
	}
	return nil
}

func (r *providerConfigRepo) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, tableProviderConfigs)
}

func scanProvider(s rowScanner) (*model.ProviderConfig, error) {
	var (
		cfg       model.ProviderConfig
		id        int64
		userID    sql.NullInt64
		category  string
		createdAt nullTime
		updatedAt nullTime
	)
	if err := s.Scan(&id, &userID, &category, &cfg.Name, &cfg.Type, &cfg.APIKey, &cfg.BaseURL, &cfg.Model,
		&cfg.IsActive, &cfg.ExtraConfig, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	cfg.ID = uint(id)
	cfg.UserID = uintPtr(userID)
	cfg.Category = model.ProviderCategory(category)
	cfg.CreatedAt = createdAt.Time
	cfg.UpdatedAt = updatedAt.Time
	return &cfg, nil
}
