/*
 * @Description: 用户仓储接口
 * @Author: 安知鱼
 * @Date: 2026-08-23 09:12:05
 */
package repository

import (
	"context"
	"time"

	"github.com/redink-ai/redink/pkg/domain/model"
)

type UserRepository interface {
	// Create 写入用户并回填自增ID
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
	Count(ctx context.Context) (int64, error)
}
