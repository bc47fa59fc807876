/*
 * @Description: 用户仓储实现
 * @Author: 安知鱼
 * @Date: 2025-06-15 13:02:41
 * @LastEditTime: 2026-08-22 15:48:09
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
	"github.com/redink-ai/redink/pkg/idgen"
)

const tableUsers = "users"

var userColumns = []string{"id", "username", "password_hash", "is_active", "created_at", "last_login_at"}

// userRepo 是 UserRepository 的实现
type userRepo struct {
	base
}

// NewUserRepo 是 userRepo 的构造函数
func NewUserRepo(db *sql.DB, dialectName string) repository.UserRepository {
	return &userRepo{base{q: db, dialect: dialectName}}
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	ins := r.sb().Insert(tableUsers).
		Columns("username", "password_hash", "is_active", "created_at").
		Values(u.Username, u.PasswordHash, u.IsActive, r.timeArg(u.CreatedAt))
	id, err := r.insertReturningID(ctx, ins)
	if err != nil {
		return fmt.Errorf("创建用户失败: %w", err)
	}
	u.ID = id
	u.PublicID, err = idgen.GeneratePublicID(id, idgen.EntityTypeUser)
	return err
}

func (r *userRepo) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return r.findOne(ctx, entsql.EQ("id", int64(id)))
}

// FindByUsername 按用户名查找用户
func (r *userRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, entsql.EQ("username", username))
}

func (r *userRepo) findOne(ctx context.Context, pred *entsql.Predicate) (*model.User, error) {
	sel := r.sb().Select(userColumns...).From(entsql.Table(tableUsers)).Where(pred).Limit(1)

	var (
		u         model.User
		id        int64
		createdAt nullTime
		lastLogin nullTime
	)
	err := r.queryRow(ctx, sel).Scan(&id, &u.Username, &u.PasswordHash, &u.IsActive, &createdAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, constant.ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	u.ID = uint(id)
	u.CreatedAt = createdAt.Time
	u.LastLoginAt = lastLogin.ptr()
	if u.PublicID, err = idgen.GeneratePublicID(u.ID, idgen.EntityTypeUser); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	stmt := r.sb().Update(tableUsers).Set("last_login_at", r.timeArg(at)).Where(entsql.EQ("id", int64(id)))
	if _, err := r.exec(ctx, stmt); err != nil {
		return fmt.Errorf("更新最后登录时间失败: %w", err)
	}
	return nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	return r.count(ctx, tableUsers)
}
