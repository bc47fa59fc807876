package auth_handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/app/middleware"
	"github.com/redink-ai/redink/pkg/response"
	"github.com/redink-ai/redink/pkg/service/auth"
)

// AuthHandler 封装了所有认证相关的控制器方法
type AuthHandler struct {
	authSvc auth.AuthService
}

// NewAuthHandler 是 AuthHandler 的构造函数，用于依赖注入
func NewAuthHandler(authSvc auth.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// CredentialsRequest 注册和登录共用的请求结构
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 处理用户注册请求
// @Summary      用户注册
// @Tags         用户认证
// @Accept       json
// @Produce      json
// @Param        body  body      CredentialsRequest  true  "注册信息"
// @Success      200   {object}  response.Response{data=model.LoginResult}  "注册成功"
// @Failure      400   {object}  response.Response  "参数错误"
// @Failure      409   {object}  response.Response  "用户名已存在"
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "用户名和密码不能为空")
		return
	}

	result, err := h.authSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	log.Printf("[认证] ✅ 新用户注册: %s", result.User.Username)
	response.Success(c, result, "注册成功")
}

// Login 处理用户登录请求
// @Summary      用户登录
// @Tags         用户认证
// @Accept       json
// @Produce      json
// @Param        body  body      CredentialsRequest  true  "登录信息"
// @Success      200   {object}  response.Response{data=model.LoginResult}  "登录成功"
// @Failure      401   {object}  response.Response  "用户名或密码错误"
// @Failure      403   {object}  response.Response  "用户已被禁用"
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "用户名和密码不能为空")
		return
	}

	result, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "登录成功")
}

// Logout 令牌是无状态的，登出由客户端丢弃令牌完成
func (h *AuthHandler) Logout(c *gin.Context) {
	if user := middleware.CurrentUser(c); user != nil {
		log.Printf("[认证] 用户登出: %s", user.Username)
	}
	response.Success(c, nil, "登出成功")
}

// Me 返回当前登录用户
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, "未登录")
		return
	}
	response.Success(c, user, "获取成功")
}

// Refresh 为当前用户签发新令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, "未登录")
		return
	}
	result, err := h.authSvc.Refresh(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "刷新成功")
}
