/*
 * @Description: 统一响应结构
 * @Author: 安知鱼
 * @Date: 2025-06-15 12:16:18
 * @LastEditTime: 2026-09-04 09:12:33
 * @LastEditors: 安知鱼
 */
package response

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/pkg/constant"
)

// Response 是统一的API返回结构体
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

// Fail 失败响应
func Fail(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailWithData 失败响应，附带额外的数据（例如解决方案提示）
func FailWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// SuccessWithStatus 成功响应，但允许自定义 HTTP 状态码。
func SuccessWithStatus(c *gin.Context, code int, data interface{}, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// StatusFor 把业务错误映射为 HTTP 状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, constant.ErrValidation), errors.Is(err, constant.ErrConfiguration),
		errors.Is(err, constant.ErrInvalidPublicID):
		return http.StatusBadRequest
	case errors.Is(err, constant.ErrUnauthorized), errors.Is(err, constant.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, constant.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, constant.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, constant.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, constant.ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error 根据错误类型输出失败响应。配置错误会把解决方案放进 data.hint。
func Error(c *gin.Context, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("[%s %s] 内部错误: %v", c.Request.Method, c.FullPath(), err)
	}

	var cfgErr *constant.ConfigurationError
	if errors.As(err, &cfgErr) {
		FailWithData(c, code, cfgErr.Reason, gin.H{"hint": cfgErr.Hint})
		return
	}
	Fail(c, code, err.Error())
}
