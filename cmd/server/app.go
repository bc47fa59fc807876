/*
 * @Description: 应用装配
 * @Author: 安知鱼
 * @Date: 2025-10-17 10:35:28
 * @LastEditTime: 2026-09-12 19:15:28
 * @LastEditors: 安知鱼
 */
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/redink-ai/redink/internal/app/bootstrap"
	"github.com/redink-ai/redink/internal/app/listener"
	"github.com/redink-ai/redink/internal/app/middleware"
	"github.com/redink-ai/redink/internal/app/task"
	"github.com/redink-ai/redink/internal/infra/persistence/database"
	ent_impl "github.com/redink-ai/redink/internal/infra/persistence/ent"
	"github.com/redink-ai/redink/internal/infra/router"
	"github.com/redink-ai/redink/internal/infra/storage"
	jwtauth "github.com/redink-ai/redink/internal/pkg/auth"
	"github.com/redink-ai/redink/internal/pkg/event"
	"github.com/redink-ai/redink/internal/pkg/security"
	"github.com/redink-ai/redink/internal/pkg/version"
	"github.com/redink-ai/redink/pkg/config"
	"github.com/redink-ai/redink/pkg/domain/repository"
	auth_handler "github.com/redink-ai/redink/pkg/handler/auth"
	config_handler "github.com/redink-ai/redink/pkg/handler/config"
	history_handler "github.com/redink-ai/redink/pkg/handler/history"
	image_handler "github.com/redink-ai/redink/pkg/handler/image"
	outline_handler "github.com/redink-ai/redink/pkg/handler/outline"
	"github.com/redink-ai/redink/pkg/service/auth"
	"github.com/redink-ai/redink/pkg/service/history"
	image_service "github.com/redink-ai/redink/pkg/service/image"
	"github.com/redink-ai/redink/pkg/service/legacy"
	"github.com/redink-ai/redink/pkg/service/outline"
	"github.com/redink-ai/redink/pkg/service/preview"
	"github.com/redink-ai/redink/pkg/service/provider"
	"github.com/redink-ai/redink/pkg/service/thumbnail"
	"github.com/redink-ai/redink/pkg/service/utility"
)

// Core 是命令行子命令与 HTTP 服务共用的基础组件：配置、数据库、仓储和历史记录服务
type Core struct {
	Cfg        *config.Config
	DB         *sql.DB
	Dialect    string
	TxManager  repository.TransactionManager
	Users      repository.UserRepository
	Providers  repository.ProviderConfigRepository
	History    history.Service
	EventBus   *event.EventBus
	HistoryDir string
}

// Close 关闭数据库连接和事件总线
func (c *Core) Close() {
	log.Println("执行清理操作：关闭数据库连接...")
	c.EventBus.Shutdown()
	c.DB.Close()
}

// ImportLegacy 按配置的目录导入旧版数据
func (c *Core) ImportLegacy(ctx context.Context) *legacy.Report {
	return bootstrap.ImportLegacy(ctx, c.TxManager,
		c.Cfg.GetString(config.KeyLegacyHistoryDir), c.Cfg.GetString(config.KeyLegacyProviderDir))
}

// NewCore 加载配置、连接数据库并执行迁移
func NewCore(ctx context.Context, configPath string) (*Core, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	sqlDB, dialectName, err := database.NewSQLDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建数据库连接池失败: %w", err)
	}

	dataDir := cfg.GetString(config.KeyDBPath)
	if dataDir == "" {
		dataDir = "data"
	}
	bootstrapper := bootstrap.NewBootstrapper(sqlDB, dialectName, dataDir)
	if err := bootstrapper.InitializeDatabase(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	users := ent_impl.NewUserRepo(sqlDB, dialectName)
	if err := bootstrapper.InitIDEncoder(ctx, users); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("初始化 ID 编码器失败: %w", err)
	}

	historyDir := cfg.GetString(config.KeyHistoryDir)
	bus := event.NewEventBus()
	txManager := ent_impl.NewTransactionManager(sqlDB, dialectName)
	historySvc := history.NewService(ent_impl.NewHistoryRepo(sqlDB, dialectName), txManager, historyDir,
		history.WithEventBus(bus))

	return &Core{
		Cfg:        cfg,
		DB:         sqlDB,
		Dialect:    dialectName,
		TxManager:  txManager,
		Users:      users,
		Providers:  ent_impl.NewProviderConfigRepo(sqlDB, dialectName),
		History:    historySvc,
		EventBus:   bus,
		HistoryDir: historyDir,
	}, nil
}

// App 结构体，用于封装 HTTP 服务的所有核心组件
type App struct {
	core      *Core
	engine    *gin.Engine
	scheduler *task.Scheduler
}

func (a *App) PrintBanner() {
	banner := `
   ██████╗ ███████╗██████╗ ██╗███╗   ██╗██╗  ██╗
   ██╔══██╗██╔════╝██╔══██╗██║████╗  ██║██║ ██╔╝
   ██████╔╝█████╗  ██║  ██║██║██╔██╗ ██║█████╔╝
   ██╔══██╗██╔══╝  ██║  ██║██║██║╚██╗██║██╔═██╗
   ██║  ██║███████╗██████╔╝██║██║ ╚████║██║  ██╗
   ╚═╝  ╚═╝╚══════╝╚═════╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
`
	log.Println(banner)
	log.Println("--------------------------------------------------------")
	log.Printf(" 红墨 RedInk: %s", version.GetVersionString())
	log.Println("--------------------------------------------------------")
}

// NewApp 是应用的构造函数，它执行所有的初始化和依赖注入工作
func NewApp(ctx context.Context, configPath string) (*App, func(), error) {
	// --- Phase 1: 配置、数据库、历史记录 ---
	core, err := NewCore(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg := core.Cfg

	// --- Phase 2: 缓存（Redis 不可用时降级为内存） ---
	redisClient, err := database.NewRedisClient(ctx, cfg)
	if err != nil {
		core.Close()
		return nil, nil, fmt.Errorf("redis 初始化失败: %w", err)
	}
	cacheSvc := utility.NewCacheServiceWithFallback(redisClient)

	cleanup := func() {
		core.Close()
		if redisClient != nil {
			log.Println("关闭 Redis 连接...")
			redisClient.Close()
		}
	}

	// --- Phase 3: 旧数据导入与默认用户 ---
	// 先导入旧记录，默认用户创建时会接管这些无主记录
	core.ImportLegacy(ctx)

	secret := cfg.GetString(config.KeyJWTSecret)
	if secret == "" {
		if secret, err = security.RandomSecret(32); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("生成 JWT 密钥失败: %w", err)
		}
		log.Println("⚠️  [认证] 未配置 JWT.Secret，已生成临时密钥，重启后令牌失效")
	}
	tokens, err := jwtauth.NewTokenManager(secret, time.Duration(cfg.GetInt(config.KeyJWTExpireHours))*time.Hour)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	authSvc := auth.NewAuthService(core.Users, core.TxManager, tokens)
	if _, err := authSvc.EnsureDefaultUser(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Phase 4: 业务服务 ---
	providerSvc := provider.NewService(core.Providers, core.TxManager,
		provider.NewConfigCache(core.Providers, cacheSvc), provider.NewOpenAIClientFactory())
	for _, st := range providerSvc.ValidateOnStartup(ctx) {
		if st.Ready {
			log.Printf("✅ [服务商] %s: %s", st.Category, st.Provider)
		} else {
			log.Printf("⚠️  [服务商] %s 未就绪: %s", st.Category, st.Message)
		}
	}

	store, err := storage.NewLocalStorage(core.HistoryDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	thumbs := thumbnail.NewGenerator(thumbnail.DefaultWidth, thumbnail.DefaultQuality)

	scheduler := task.NewScheduler(core.History, thumbs, cfg.GetString(config.KeySyncCron))
	if err := scheduler.RegisterJobs(); err != nil {
		cleanup()
		return nil, nil, err
	}
	listener.NewThumbnailListener(core.EventBus, scheduler)

	outlineSvc := outline.NewService(providerSvc, core.History,
		outline.LoadPromptTemplate(cfg.GetString(config.KeyOutlinePromptFile)))
	imageSvc := image_service.NewService(providerSvc, core.History, store)
	previewSvc := preview.NewService(core.History)

	// --- Phase 5: HTTP ---
	debug := cfg.GetBool(config.KeyServerDebug)
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	if debug {
		engine.Use(gin.Logger())
	}

	mw := middleware.NewMiddleware(tokens, authSvc)
	appRouter := router.NewRouter(
		auth_handler.NewAuthHandler(authSvc),
		config_handler.NewConfigHandler(providerSvc),
		outline_handler.NewOutlineHandler(outlineSvc),
		image_handler.NewImageHandler(imageSvc, store, thumbs),
		history_handler.NewHistoryHandler(core.History, previewSvc),
		mw,
		router.Options{
			CORSOrigins:       cfg.GetStringSlice(config.KeyCORSOrigins),
			GenerateRateLimit: cfg.GetInt(config.KeyOutlineRateLimit),
			GenerateBurst:     cfg.GetInt(config.KeyOutlineBurst),
			CacheType:         string(utility.GetCacheServiceType(cacheSvc)),
		},
	)
	appRouter.Setup(engine)

	return &App{core: core, engine: engine, scheduler: scheduler}, cleanup, nil
}

func (a *App) Engine() *gin.Engine {
	return a.engine
}

// Run 启动后台任务和 HTTP 服务，ctx 取消后优雅退出
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	port := a.core.Cfg.GetString(config.KeyServerPort)
	if port == "" {
		port = "12398"
	}
	srv := &http.Server{Addr: ":" + port, Handler: a.engine}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("应用程序启动成功，正在监听端口: %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("收到退出信号，正在关闭 HTTP 服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *App) Stop() {
	if a.scheduler != nil {
		a.scheduler.Stop()
		log.Println("任务调度器已停止。")
	}
}
