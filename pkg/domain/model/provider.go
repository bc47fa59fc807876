/*
 * @Description: 服务商配置领域模型
 * @Author: 安知鱼
 * @Date: 2026-08-22 10:15:48
 * @LastEditTime: 2026-09-05 16:02:19
 * @LastEditors: 安知鱼
 */
package model

import (
	"fmt"
	"strings"
	"time"
)

// ProviderCategory 服务商类别
type ProviderCategory string

const (
	CategoryText  ProviderCategory = "text"
	CategoryImage ProviderCategory = "image"
)

// ParseProviderCategory 校验类别字符串
func ParseProviderCategory(s string) (ProviderCategory, error) {
	switch ProviderCategory(s) {
	case CategoryText, CategoryImage:
		return ProviderCategory(s), nil
	}
	return "", fmt.Errorf("未知的服务商类别: %q", s)
}

// ProviderConfig 数据库中的一条服务商配置
type ProviderConfig struct {
	ID          uint             `json:"id"`
	UserID      *uint            `json:"user_id,omitempty"`
	Category    ProviderCategory `json:"category"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	APIKey      string           `json:"-"`
	BaseURL     string           `json:"base_url"`
	Model       string           `json:"model"`
	IsActive    bool             `json:"is_active"`
	ExtraConfig JSONMap          `json:"extra_config,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// MaskAPIKey 只保留首尾各 4 位，短密钥全部遮盖
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
