/*
 * @Description: 业务错误分类
 * @Author: 安知鱼
 * @Date: 2025-06-27 12:08:15
 * @LastEditTime: 2026-09-03 21:16:40
 * @LastEditors: 安知鱼
 */
package constant

import (
	"errors"
	"fmt"
)

// 定义业务逻辑相关的标准错误
var (
	// ErrNotFound 表示资源未找到（记录或任务目录），可以由 Handler 转换为 404
	ErrNotFound = errors.New("资源未找到")

	// ErrValidation 表示请求参数或记录引用格式错误，可以由 Handler 转换为 400
	ErrValidation = errors.New("参数校验失败")

	// ErrConfiguration 表示没有可用的服务商配置，可以由 Handler 转换为 400
	ErrConfiguration = errors.New("服务商配置错误")

	// ErrPersistence 表示数据库事务失败（已回滚），可以由 Handler 转换为 500
	ErrPersistence = errors.New("数据持久化失败")

	// ErrProvider 表示上游生成服务调用失败，可以由 Handler 转换为 502
	ErrProvider = errors.New("生成服务调用失败")

	// ErrForbidden 表示无权访问，可以由 Handler 转换为 403
	ErrForbidden = errors.New("操作禁止")

	// ErrConflict 表示资源冲突，可以由 Handler 转换为 409
	ErrConflict = errors.New("资源冲突")

	// ErrUnauthorized 表示未授权，可以由 Handler 转换为 401
	ErrUnauthorized = errors.New("未经授权的访问")

	// ErrInvalidToken 表示无效的令牌，可以由 Handler 转换为 401
	ErrInvalidToken = errors.New("无效令牌")

	// ErrInvalidPublicID 表示无效的公共ID，可以由 Handler 转换为 400
	ErrInvalidPublicID = errors.New("无效的公共ID")
)

// ConfigurationError 携带面向用户的解决方案提示
type ConfigurationError struct {
	Reason string
	Hint   string
}

func (e *ConfigurationError) Error() string {
	if e.Hint == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s\n解决方案：%s", e.Reason, e.Hint)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError 构造一个带提示的配置错误
func NewConfigurationError(reason, hint string) error {
	return &ConfigurationError{Reason: reason, Hint: hint}
}

// Validationf 构造一个包装 ErrValidation 的错误
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
