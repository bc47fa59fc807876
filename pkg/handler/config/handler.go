/*
 * @Description: 服务商配置 Handler
 * @Author: 安知鱼
 * @Date: 2025-10-19
 * @LastEditTime: 2026-09-12 17:40:03
 * @LastEditors: 安知鱼
 */
package config_handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/pkg/response"
	"github.com/redink-ai/redink/pkg/service/provider"
)

// ConfigHandler 封装了服务商配置相关的控制器方法
type ConfigHandler struct {
	providerSvc provider.Service
}

// NewConfigHandler 是 ConfigHandler 的构造函数
func NewConfigHandler(providerSvc provider.Service) *ConfigHandler {
	return &ConfigHandler{providerSvc: providerSvc}
}

// GetConfig 获取文本和图片两个类别的配置，api_key 已遮盖
// @Summary      获取服务商配置
// @Tags         配置管理
// @Produce      json
// @Success      200  {object}  response.Response{data=provider.ConfigView}  "获取成功"
// @Router       /config [get]
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	view, err := h.providerSvc.GetConfig(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view, "获取配置成功")
}

// UpdateConfig 保存配置，空的 api_key 保留原值
// @Summary      更新服务商配置
// @Tags         配置管理
// @Accept       json
// @Produce      json
// @Param        body  body      provider.UpdateConfigRequest  true  "配置内容"
// @Success      200   {object}  response.Response  "保存成功"
// @Failure      400   {object}  response.Response  "参数错误"
// @Router       /config [post]
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var req provider.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	if req.TextGeneration == nil && req.ImageGeneration == nil {
		response.Fail(c, http.StatusBadRequest, "至少需要提供一个类别的配置")
		return
	}
	if err := h.providerSvc.UpdateConfig(c.Request.Context(), &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil, "配置已保存")
}

// TestConnection 测试服务商连通性
// @Summary      测试服务商连接
// @Tags         配置管理
// @Accept       json
// @Produce      json
// @Param        body  body      provider.TestConnectionRequest  true  "连接参数"
// @Success      200   {object}  response.Response{data=provider.TestResult}  "测试完成"
// @Failure      502   {object}  response.Response  "上游服务错误"
// @Router       /config/test [post]
func (h *ConfigHandler) TestConnection(c *gin.Context) {
	var req provider.TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求体格式错误: "+err.Error())
		return
	}
	result, err := h.providerSvc.TestConnection(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !result.Success {
		response.FailWithData(c, http.StatusBadRequest, result.Message, result)
		return
	}
	response.Success(c, result, result.Message)
}
