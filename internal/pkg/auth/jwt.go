/*
 * @Description:
 * @Author: 安知鱼
 * @Date: 2025-06-28 00:21:55
 * @LastEditTime: 2026-09-08 09:30:17
 * @LastEditors: 安知鱼
 */
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/redink-ai/redink/pkg/constant"
	"github.com/redink-ai/redink/pkg/idgen"
)

const issuer = "redink"

// TokenManager 负责签发和校验访问令牌
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器，secret 不能为空
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT Secret 不能为空")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Generate 为用户签发访问令牌，返回令牌和过期时间
func (m *TokenManager) Generate(userID uint, username string) (string, time.Time, error) {
	publicUserID, err := idgen.GeneratePublicID(userID, idgen.EntityTypeUser)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("生成用户公共ID失败: %w", err)
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := CustomClaims{
		UserID:   publicUserID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse 解析并校验令牌，失败统一返回 constant.ErrInvalidToken
func (m *TokenManager) Parse(tokenStr string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: 登录已过期", constant.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", constant.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, constant.ErrInvalidToken
	}
	return claims, nil
}

// UserDBID 把 Claims 中的公共ID解码为数据库ID
func (c *CustomClaims) UserDBID() (uint, error) {
	return idgen.DecodePublicID(c.UserID, idgen.EntityTypeUser)
}
