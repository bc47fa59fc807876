/*
 * @Description: 路由注册
 * @Author: 安知鱼
 * @Date: 2025-06-15 11:30:55
 * @LastEditTime: 2026-09-12 18:26:37
 * @LastEditors: 安知鱼
 */
package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/app/middleware"
	"github.com/redink-ai/redink/internal/pkg/version"
	auth_handler "github.com/redink-ai/redink/pkg/handler/auth"
	config_handler "github.com/redink-ai/redink/pkg/handler/config"
	history_handler "github.com/redink-ai/redink/pkg/handler/history"
	image_handler "github.com/redink-ai/redink/pkg/handler/image"
	outline_handler "github.com/redink-ai/redink/pkg/handler/outline"
	"github.com/redink-ai/redink/pkg/response"
)

// NoCacheMiddleware 禁止 API 响应被浏览器或 CDN 缓存
func NoCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate, private, max-age=0")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}

// Options 路由层的可调参数
type Options struct {
	// CORSOrigins 为空或包含 "*" 时允许任意来源
	CORSOrigins []string
	// GenerateRateLimit 每个 IP 每分钟允许的生成请求数，<=0 时不限流
	GenerateRateLimit int
	GenerateBurst     int
	// CacheType 仅用于健康检查输出
	CacheType string
}

// Router 封装了应用的所有路由和其依赖的处理器。
type Router struct {
	authHandler    *auth_handler.AuthHandler
	configHandler  *config_handler.ConfigHandler
	outlineHandler *outline_handler.OutlineHandler
	imageHandler   *image_handler.ImageHandler
	historyHandler *history_handler.HistoryHandler
	mw             *middleware.Middleware
	opts           Options
	startedAt      time.Time
}

// NewRouter 是 Router 的构造函数，通过依赖注入接收所有处理器。
func NewRouter(
	authHandler *auth_handler.AuthHandler,
	configHandler *config_handler.ConfigHandler,
	outlineHandler *outline_handler.OutlineHandler,
	imageHandler *image_handler.ImageHandler,
	historyHandler *history_handler.HistoryHandler,
	mw *middleware.Middleware,
	opts Options,
) *Router {
	return &Router{
		authHandler:    authHandler,
		configHandler:  configHandler,
		outlineHandler: outlineHandler,
		imageHandler:   imageHandler,
		historyHandler: historyHandler,
		mw:             mw,
		opts:           opts,
		startedAt:      time.Now(),
	}
}

// Setup 将所有路由注册到 Gin 引擎。
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.RequestID(), middleware.Cors(r.opts.CORSOrigins))

	// 图片需要被浏览器缓存，单独分组
	media := engine.Group("/api")
	media.GET("/images/:task_id/:filename", r.imageHandler.Serve)

	api := engine.Group("/api")
	api.Use(NoCacheMiddleware())
	api.GET("/health", r.health)

	r.registerAuthRoutes(api)
	r.registerConfigRoutes(api)
	r.registerGenerateRoutes(api)
	r.registerHistoryRoutes(api)
}

func (r *Router) health(c *gin.Context) {
	response.Success(c, gin.H{
		"status":  "ok",
		"version": version.GetVersion(),
		"cache":   r.opts.CacheType,
		"uptime":  time.Since(r.startedAt).Round(time.Second).String(),
	}, "服务正常运行")
}

func (r *Router) registerAuthRoutes(api *gin.RouterGroup) {
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", r.authHandler.Register)
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/logout", r.authHandler.Logout)
		authGroup.POST("/refresh", r.mw.JWTAuth(), r.authHandler.Refresh)
		authGroup.GET("/me", r.mw.JWTAuth(), r.authHandler.Me)
	}
}

func (r *Router) registerConfigRoutes(api *gin.RouterGroup) {
	configGroup := api.Group("/config")
	{
		configGroup.GET("", r.configHandler.GetConfig)
		configGroup.POST("", r.configHandler.UpdateConfig)
		configGroup.POST("/test", r.configHandler.TestConnection)
	}
}

// registerGenerateRoutes 大纲与图片生成，会调用外部服务商，按 IP 限流
func (r *Router) registerGenerateRoutes(api *gin.RouterGroup) {
	handlers := []gin.HandlerFunc{r.mw.JWTAuthOptional()}
	if r.opts.GenerateRateLimit > 0 {
		handlers = append(handlers, middleware.RateLimit(r.opts.GenerateRateLimit, r.opts.GenerateBurst))
	}
	gen := api.Group("", handlers...)
	{
		gen.POST("/outline", r.outlineHandler.Generate)
		gen.POST("/generate", r.imageHandler.Generate)
	}
}

func (r *Router) registerHistoryRoutes(api *gin.RouterGroup) {
	historyGroup := api.Group("/history", r.mw.JWTAuthOptional())
	{
		historyGroup.GET("", r.historyHandler.List)
		historyGroup.POST("", r.historyHandler.Create)
		historyGroup.GET("/search", r.historyHandler.Search)
		historyGroup.GET("/stats", r.historyHandler.Statistics)
		historyGroup.POST("/sync", r.historyHandler.SyncAll)
		historyGroup.POST("/sync/:task_id", r.historyHandler.SyncTask)
		historyGroup.GET("/:id", r.historyHandler.Get)
		historyGroup.PUT("/:id", r.historyHandler.Update)
		historyGroup.DELETE("/:id", r.historyHandler.Delete)
		historyGroup.GET("/:id/preview", r.historyHandler.Preview)
	}
}
