/*
 * @Description: 用户领域模型
 * @Author: 安知鱼
 * @Date: 2025-06-15 11:30:55
 * @LastEditTime: 2026-08-22 10:14:36
 * @LastEditors: 安知鱼
 */
package model

import "time"

// 用户名与密码的长度约束
const (
	UsernameMinLen = 3
	UsernameMaxLen = 50
	PasswordMinLen = 6
)

// DefaultAdminUsername 初始化时创建的默认账号
const DefaultAdminUsername = "admin"

type User struct {
	ID           uint       `json:"-"`
	PublicID     string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// LoginResult 登录或刷新令牌的返回值
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}
