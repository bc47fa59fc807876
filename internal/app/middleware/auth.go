// internal/app/middleware/auth.go
package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/pkg/auth"
	"github.com/redink-ai/redink/pkg/domain/model"
	"github.com/redink-ai/redink/pkg/response"
)

// CurrentUserKey 是 gin.Context 中保存当前用户的键
const CurrentUserKey = "current_user"

// UserLookup 按数据库ID查询用户，由 AuthService 实现
type UserLookup interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
}

type Middleware struct {
	tokens *auth.TokenManager
	users  UserLookup
}

func NewMiddleware(tokens *auth.TokenManager, users UserLookup) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// bearerToken 从 Authorization 头中取出 Bearer 令牌
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.Request.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// authenticate 解析令牌并确认用户仍然存在且未被禁用
func (m *Middleware) authenticate(c *gin.Context, tokenString string) (*auth.CustomClaims, *model.User, string) {
	claims, err := m.tokens.Parse(tokenString)
	if err != nil {
		return nil, nil, "无效或过期的Token"
	}
	userID, err := claims.UserDBID()
	if err != nil {
		return nil, nil, "无效或过期的Token"
	}
	user, err := m.users.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		return nil, nil, "用户不存在"
	}
	if !user.IsActive {
		return nil, nil, "用户已被禁用"
	}
	return claims, user, ""
}

// JWTAuth 是一个强制性的JWT认证中间件
func (m *Middleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.Fail(c, http.StatusUnauthorized, "请求未携带Token，无权限访问")
			c.Abort()
			return
		}

		claims, user, reason := m.authenticate(c, tokenString)
		if user == nil {
			log.Printf("[认证] %s %s 认证失败: %s", c.Request.Method, c.Request.URL.Path, reason)
			response.Fail(c, http.StatusUnauthorized, reason)
			c.Abort()
			return
		}

		c.Set(auth.ClaimsKey, claims)
		c.Set(CurrentUserKey, user)
		c.Next()
	}
}

// JWTAuthOptional 是一个可选的JWT认证中间件。
// 没有Token或Token无效时以游客身份继续，有效时写入当前用户。
func (m *Middleware) JWTAuthOptional() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		if claims, user, _ := m.authenticate(c, tokenString); user != nil {
			c.Set(auth.ClaimsKey, claims)
			c.Set(CurrentUserKey, user)
		}
		c.Next()
	}
}

// CurrentUser 返回当前登录用户，游客返回 nil
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// CurrentUserID 返回当前用户的数据库ID，游客返回 nil
func CurrentUserID(c *gin.Context) *uint {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}
