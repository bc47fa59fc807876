/*
 * @Description: 上游服务错误分类
 * @Author: 安知鱼
 * @Date: 2026-08-22 15:48:02
 * @LastEditTime: 2026-09-04 10:03:44
 * @LastEditors: 安知鱼
 */
package provider

import (
	"fmt"
	"strings"

	"github.com/redink-ai/redink/pkg/constant"
)

// ErrorKind 上游错误的粗分类，仅用于给用户更友好的提示
type ErrorKind string

const (
	KindAuth    ErrorKind = "auth"
	KindModel   ErrorKind = "model"
	KindNetwork ErrorKind = "network"
	KindQuota   ErrorKind = "quota"
	KindUnknown ErrorKind = "unknown"
)

type kindRule struct {
	kind    ErrorKind
	markers []string
}

// 按顺序匹配，先命中者为准
var kindRules = []kindRule{
	{KindAuth, []string{"api_key", "unauthorized", "401"}},
	{KindModel, []string{"model", "404"}},
	{KindNetwork, []string{"timeout", "连接"}},
	{KindQuota, []string{"rate", "429", "quota"}},
}

var kindTitles = map[ErrorKind]string{
	KindAuth:    "API 认证失败",
	KindModel:   "模型访问失败",
	KindNetwork: "网络连接失败",
	KindQuota:   "API 配额限制",
	KindUnknown: "生成失败",
}

var kindHints = map[ErrorKind][]string{
	KindAuth:    {"API Key 无效或已过期", "API Key 没有访问该模型的权限"},
	KindModel:   {"模型名称不正确", "没有访问该模型的权限"},
	KindNetwork: {"网络连接不稳定", "API 服务暂时不可用", "Base URL 配置错误"},
	KindQuota:   {"API 调用次数超限", "账户配额用尽"},
	KindUnknown: {"服务商配置错误或密钥无效", "网络连接问题", "模型无法访问或不存在"},
}

var kindSolutions = map[ErrorKind]string{
	KindAuth:    "在系统设置页面检查并更新 API Key",
	KindModel:   "在系统设置页面检查模型名称配置",
	KindNetwork: "检查网络连接，稍后重试",
	KindQuota:   "等待配额重置，或升级 API 套餐",
	KindUnknown: "在系统设置页面检查服务商配置",
}

// Classify 根据错误文本中的特征词判断错误类别
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, rule := range kindRules {
		for _, m := range rule.markers {
			if strings.Contains(lower, m) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}

// ProviderError 包装上游错误，保留原始错误文本
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// NewProviderError 分类并包装上游错误
func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: Classify(err), Err: err}
}

// Title 简短的错误类别描述
func (e *ProviderError) Title() string {
	return kindTitles[e.Kind]
}

// Error 返回面向用户的详细说明，其中始终包含原始错误
func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Title())
	b.WriteString("。\n")
	if e.Provider != "" {
		fmt.Fprintf(&b, "服务商: %s\n", e.Provider)
	}
	fmt.Fprintf(&b, "错误详情: %v\n可能原因：\n", e.Err)
	for i, h := range kindHints[e.Kind] {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h)
	}
	b.WriteString("解决方案：")
	b.WriteString(kindSolutions[e.Kind])
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, constant.ErrProvider) 成立
func (e *ProviderError) Is(target error) bool { return target == constant.ErrProvider }
