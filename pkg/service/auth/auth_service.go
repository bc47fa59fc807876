/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-08-22 12:41:16
 * @LastEditTime: 2026-09-08 11:05:33
 * @LastEditors: 安知鱼
 */
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	jwtauth "github.com/redink-ai/redink/internal/pkg/auth"
	"github.com/redink-ai/redink/internal/pkg/security"
	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/domain/repository"
	"github.com/redink-ai/redink/pkg/idgen"
)

// AuthService 定义了所有认证相关的业务逻辑接口
type AuthService interface {
	Register(ctx context.Context, username, password string) (*model.LoginResult, error)
	Login(ctx context.Context, username, password string) (*model.LoginResult, error)
	// GetUserByID 接收内部数据库 ID
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	// Refresh 为仍然有效的用户重新签发令牌
	Refresh(ctx context.Context, userID uint) (*model.LoginResult, error)
	// EnsureDefaultUser 用户表为空时创建默认账号，并把无主记录划给它。
	// 已有其它用户而没有默认账号时返回 nil。
	EnsureDefaultUser(ctx context.Context) (*model.User, error)
}

type authService struct {
	userRepo  repository.UserRepository
	txManager repository.TransactionManager
	tokens    *jwtauth.TokenManager
	now       func() time.Time
}

// NewAuthService 是 authService 的构造函数
func NewAuthService(userRepo repository.UserRepository, txManager repository.TransactionManager, tokens *jwtauth.TokenManager) AuthService {
	return &authService{userRepo: userRepo, txManager: txManager, tokens: tokens, now: time.Now}
}

func validateCredentials(username, password string) error {
	if username == "" {
		return constant.Validationf("用户名不能为空")
	}
	if n := utf8.RuneCountInString(username); n < model.UsernameMinLen || n > model.UsernameMaxLen {
		return constant.Validationf("用户名长度需在 %d-%d 个字符之间", model.UsernameMinLen, model.UsernameMaxLen)
	}
	if password == "" {
		return constant.Validationf("密码不能为空")
	}
	if len(password) < model.PasswordMinLen {
		return constant.Validationf("密码长度不能少于 %d 位", model.PasswordMinLen)
	}
	return nil
}

func (s *authService) Register(ctx context.Context, username, password string) (*model.LoginResult, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: 用户名已被使用", constant.ErrConflict)
	} else if !errors.Is(err, constant.ErrNotFound) {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}
	user := &model.User{Username: username, PasswordHash: hash, IsActive: true, CreatedAt: s.now().UTC()}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: 注册失败: %v", constant.ErrPersistence, err)
	}

	log.Printf("✅ [认证] 用户注册成功: %s", username)
	return s.issue(user)
}

func (s *authService) Login(ctx context.Context, username, password string) (*model.LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, constant.Validationf("用户名和密码不能为空")
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, constant.ErrNotFound) {
			return nil, fmt.Errorf("%w: 用户名或密码错误", constant.ErrUnauthorized)
		}
		return nil, err
	}
	if !security.CheckPasswordHash(password, user.PasswordHash) {
		return nil, fmt.Errorf("%w: 用户名或密码错误", constant.ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: 账户已被禁用", constant.ErrForbidden)
	}

	now := s.now().UTC()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Printf("⚠️  [认证] 更新最后登录时间失败: %v", err)
	} else {
		user.LastLoginAt = &now
	}

	log.Printf("✅ [认证] 用户登录成功: %s", username)
	return s.issue(user)
}

func (s *authService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, constant.ErrNotFound) {
			return nil, fmt.Errorf("%w: 用户不存在", constant.ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) Refresh(ctx context.Context, userID uint) (*model.LoginResult, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: 账户已被禁用", constant.ErrForbidden)
	}
	return s.issue(user)
}

func (s *authService) issue(user *model.User) (*model.LoginResult, error) {
	token, expiresAt, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("生成令牌失败: %w", err)
	}
	if user.PublicID == "" {
		if user.PublicID, err = idgen.GeneratePublicID(user.ID, idgen.EntityTypeUser); err != nil {
			return nil, err
		}
	}
	return &model.LoginResult{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: user}, nil
}

func (s *authService) EnsureDefaultUser(ctx context.Context) (*model.User, error) {
	var (
		user    *model.User
		created bool
		secret  string
	)
	err := s.txManager.Do(ctx, func(repos repository.Repositories) error {
		existing, err := repos.User.FindByUsername(ctx, model.DefaultAdminUsername)
		switch {
		case err == nil:
			user = existing
		case errors.Is(err, constant.ErrNotFound):
			n, err := repos.User.Count(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
			if secret, err = security.RandomSecret(12); err != nil {
				return err
			}
			hash, err := security.HashPassword(secret)
			if err != nil {
				return err
			}
			user = &model.User{Username: model.DefaultAdminUsername, PasswordHash: hash, IsActive: true, CreatedAt: s.now().UTC()}
			if err := repos.User.Create(ctx, user); err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		assigned, err := repos.History.AssignOwnerless(ctx, user.ID)
		if err != nil {
			return err
		}
		if assigned > 0 {
			log.Printf("[认证] 已将 %d 条无主历史记录分配给用户 %s", assigned, user.Username)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("初始化默认用户失败: %w", err)
	}
	if created {
		log.Printf("✅ [认证] 已创建默认用户 %s，初始密码: %s（请登录后尽快修改）", user.Username, secret)
	}
	return user, nil
}
