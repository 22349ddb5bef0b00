package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collabboard/internal/auth"
	httpHandler "collabboard/internal/handler/http"
	wsHandler "collabboard/internal/handler/websocket"
	"collabboard/internal/hub"
	gormpersistence "collabboard/internal/infra/persistence/gorm"
	"collabboard/internal/infra/setup"
	redisstate "collabboard/internal/infra/state/redis"
	"collabboard/internal/metrics"
	"collabboard/internal/middleware"
	"collabboard/internal/registry"
	"collabboard/internal/roomstate"
	"collabboard/internal/service"
	"collabboard/internal/worker"
)

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Registry    *registry.Memory
	Rooms       *roomstate.Memory
	Sweeper     *roomstate.Sweeper
	Presence    *redisstate.RedisPresenceRepository
	Hub         *hub.Hub
	Metrics     *metrics.Metrics
	HttpServer  *http.Server

	stopSweeper context.CancelFunc
}

func newLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel) // LoadConfig 已校验
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	// 各组件使用 logrus 包级函数，保持同样的格式与级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}
	log := newLogger(cfg)
	log.Infof("Logger initialized (Level: %s)", log.GetLevel().String())

	// 基础设施
	db, err := setup.InitDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.WithField("driver", cfg.DB.Driver).Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	asynqClient := asynq.NewClient(redisOpt)
	log.Info("Redis and asynq client initialized")

	m := metrics.New(prometheus.NewRegistry())

	// Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	chatRepo := gormpersistence.NewGormChatRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	actionRepo := gormpersistence.NewGormActionRepository(db)
	presenceRepo := redisstate.NewRedisPresenceRepository(redisClient, cfg.KeyPrefix)

	// 进程重启后内存注册表为空，清除上一次运行遗留的在线标记
	resetCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := presenceRepo.Reset(resetCtx); err != nil {
		log.WithError(err).Warn("Failed to reset stale presence flags")
	}
	cancel()

	// 内存状态
	reg := registry.New(registry.Conf{Grace: cfg.PresenceGrace})
	rooms := roomstate.NewMemory(roomstate.Conf{Capacity: cfg.StrokeLogCapacity, SnapshotEvents: cfg.SnapshotEvents})
	sweeper := roomstate.NewSweeper(rooms, cfg.RoomSweepInterval, cfg.RoomInactivityTimeout)
	sweeper.OnSweep(func(removed []string, remaining int) {
		m.RoomsSwept(len(removed))
		m.SetRooms(remaining)
		if len(removed) > 0 {
			log.WithField("rooms", len(removed)).Info("Swept inactive rooms")
		}
	})

	// Hub 与服务
	hubInstance := hub.NewHub(reg, m)
	whiteboard := service.NewWhiteboardService(rooms, userRepo, hubInstance, asynqClient, service.WhiteboardOptions{
		EraseOwnStrokesOnly: cfg.EraseOwnStrokesOnly,
		Archive:             cfg.ArchiveStrokes,
	})
	delivery := service.NewDeliveryService(chatRepo, messageRepo, reg, hubInstance, asynqClient, service.DeliveryConfig{Metrics: m})
	presence := service.NewPresenceService(reg, hubInstance, presenceRepo, m)
	hubInstance.Attach(whiteboard, delivery)
	reg.Subscribe(presence)
	reg.Subscribe(delivery)
	log.Info("Services and hub initialized")

	workerServer := worker.NewWorkerServer(redisOpt, cfg.WorkerConcurrency, messageRepo, actionRepo, log)

	// Handlers
	resolver := auth.NewJWTResolver(cfg.JWTSecret)
	ws := wsHandler.NewWebSocketHandler(hubInstance, cfg.CORSAllowedOrigin, 0)
	chatHandler := httpHandler.NewChatHandler(delivery)
	presenceHandler := httpHandler.NewPresenceHandler(presence)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	limited := router.Group("", middleware.RateLimit(redisClient, cfg.KeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow))
	limited.GET("/ws", middleware.Auth(resolver), ws.HandleConnection)

	api := limited.Group("/api", middleware.Auth(resolver))
	{
		api.GET("/presence", presenceHandler.List)
		api.GET("/presence/:userId", presenceHandler.Get)
		api.GET("/chats/:chatId/unread", chatHandler.Unread)
		api.GET("/chats/:chatId/messages", chatHandler.History)
		api.POST("/chats/:chatId/messages", chatHandler.Send)
		api.POST("/chats/:chatId/read", chatHandler.MarkRead)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Registry:    reg,
		Rooms:       rooms,
		Sweeper:     sweeper,
		Presence:    presenceRepo,
		Hub:         hubInstance,
		Metrics:     m,
		HttpServer:  httpServer,
	}, nil
}

// Start 启动后台 goroutine 和 HTTP 服务器
func (a *App) Start() error {
	if err := a.AsynqServer.Start(); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopSweeper = cancel
	go a.Sweeper.Run(ctx)

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

// Shutdown 优雅地关闭应用：先停止接入，再断开连接，最后关闭后台任务与存储
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	// 被劫持的 WebSocket 连接不受 http.Server.Shutdown 管理
	a.Hub.Close()
	a.Registry.Close()
	if a.stopSweeper != nil {
		a.stopSweeper()
	}

	a.AsynqServer.Shutdown()
	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}
