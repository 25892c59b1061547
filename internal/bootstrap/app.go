package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Moonflower-labs/livechat/internal/bridge"
	"github.com/Moonflower-labs/livechat/internal/bus"
	httpHandler "github.com/Moonflower-labs/livechat/internal/handler/http"
	wsHandler "github.com/Moonflower-labs/livechat/internal/handler/websocket"
	"github.com/Moonflower-labs/livechat/internal/hub"
	"github.com/Moonflower-labs/livechat/internal/infra/broker/redisbroker"
	gormpersistence "github.com/Moonflower-labs/livechat/internal/infra/persistence/gorm"
	"github.com/Moonflower-labs/livechat/internal/infra/setup"
	"github.com/Moonflower-labs/livechat/internal/middleware"
	"github.com/Moonflower-labs/livechat/internal/service"
	"github.com/Moonflower-labs/livechat/internal/tasks"
	"github.com/Moonflower-labs/livechat/internal/worker"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	AppEnv          string // 应用环境 (development/production)
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load() // 忽略错误，允许只使用环境变量

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		// --- 默认值 ---
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
	}

	// 处理 Redis DB
	redisDBStr := os.Getenv("REDIS_DB")
	cfg.RedisDB, _ = strconv.Atoi(redisDBStr) // 忽略错误，默认为 0

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 结构体包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	Broker      *redisbroker.Broker
	Bridge      *bridge.Bridge
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // cfg.LogLevel 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	msgBroker := redisbroker.New(redisClient)
	if err := msgBroker.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect message broker: %w", err)
	}
	log.Info("Message broker connected")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repositories
	log.Info("Initializing repositories...")
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	sessionRepo := gormpersistence.NewGormLiveSessionRepository(db)
	log.Info("Repositories initialized")

	// 5. 初始化事件总线与桥接器
	eventBus := bus.Default()
	chatBridge := bridge.New(eventBus, msgBroker, bus.TopicChat, "chat")
	log.Info("Event bus and bridge initialized")

	// 6. 初始化 Services
	log.Info("Initializing services...")
	chatService := service.NewChatService(messageRepo, eventBus)
	presenceService := service.NewPresenceService(msgBroker)
	roomService := service.NewRoomService(roomRepo, messageRepo, msgBroker)
	sessionService := service.NewLiveSessionService(sessionRepo)
	log.Info("Services initialized")

	// 7. 初始化 Hub
	hubInstance := hub.NewHub(msgBroker, eventBus, chatService, presenceService)
	log.Info("Hub initialized")

	// 8. 初始化 Handlers
	log.Info("Initializing handlers...")
	chatHandler := httpHandler.NewChatHandler(chatService, presenceService, eventBus)
	roomHandler := httpHandler.NewRoomHandler(roomService, asynqClient)
	sessionHandler := httpHandler.NewSessionHandler(sessionService)
	websocketHandler := wsHandler.NewHandler(hubInstance, roomService)
	log.Info("Handlers initialized")

	// 9. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, chatService, presenceService, log)
	log.Info("Worker server initialized")

	// 10. 初始化 Gin Engine 和路由
	log.Info("Setting up Gin router...")
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))

	router.Use(func(c *gin.Context) { /* CORS */
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000" // 开发默认
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	// --- 设置路由 ---
	api := router.Group("/api")
	chatRoutes := api.Group("/chat").Use(middleware.Auth(cfg.JWTSecret))
	{
		chatRoutes.GET("/stream", chatHandler.Stream)
		chatRoutes.GET("/messages/missed", chatHandler.MissedMessages)
		chatRoutes.POST("/messages", chatHandler.SendMessage)
		chatRoutes.POST("/join", chatHandler.JoinRoom)
		chatRoutes.POST("/leave", chatHandler.LeaveRoom)
		chatRoutes.POST("/heartbeat", chatHandler.Heartbeat)
	}
	roomRoutes := api.Group("/rooms").Use(middleware.Auth(cfg.JWTSecret))
	{
		roomRoutes.POST("", roomHandler.CreateRoom)
		roomRoutes.GET("", roomHandler.ListRooms)
		roomRoutes.GET("/:id", roomHandler.GetRoom)
		roomRoutes.DELETE("/:id", roomHandler.DeleteRoom)
		roomRoutes.DELETE("/:id/messages", roomHandler.ClearChat)
	}
	sessionRoutes := api.Group("/sessions")
	{
		sessionRoutes.GET("", sessionHandler.ListSessions)
		sessionRoutes.GET("/:id", sessionHandler.GetSession)

		authedSessions := sessionRoutes.Group("").Use(middleware.Auth(cfg.JWTSecret))
		{
			authedSessions.POST("", sessionHandler.CreateSession)
			authedSessions.PUT("/:id", sessionHandler.UpdateSession)
			authedSessions.DELETE("/:id", sessionHandler.DeleteSession)
		}
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/chat/:roomId", websocketHandler.Serve)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 11. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
		// SSE 是长连接，WriteTimeout 必须保持为零值
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 12. 组装 App 对象
	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		Broker:         msgBroker,
		Bridge:         chatBridge,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")

	return app, nil
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() error {
	a.Log.Info("Starting application background routines...")

	if err := a.Bridge.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	a.Log.Info("Bridge started")

	go a.Hub.Run()
	a.Log.Info("Hub routine started")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	// 启动 HTTP 服务器
	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	// 周期性清理心跳过期的在线成员
	taskPayload, err := tasks.NewPresenceSweepTask()
	if err != nil {
		a.Log.Errorf("Failed to create presence sweep task payload: %v", err)
		return
	}
	task := asynq.NewTask(tasks.TypePresenceSweep, taskPayload)

	schedule := "@every 1m"
	entryID, err := a.scheduler.Register(schedule, task, asynq.Queue("low"))
	if err != nil {
		a.Log.Errorf("Could not register periodic presence sweep task: %v", err)
	} else {
		a.Log.Infof("Periodic presence sweep task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	}

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := a.scheduler.Run(); err != nil {
			if !errors.Is(err, asynq.ErrServerClosed) {
				a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			} else {
				a.Log.Info("Asynq scheduler stopped.")
			}
		}
	}()
}

// Shutdown 优雅地关闭应用
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止桥接器，本地事件不再外发
	if a.Bridge != nil {
		a.Bridge.Stop()
	}

	// 2. 停止 Hub 的订阅
	if a.Hub != nil {
		a.Hub.StopAllSubscriptions()
	}

	// 3. 停止调度器
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}

	// 4. 优雅关闭 Worker Server
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 5. 优雅关闭 HTTP 服务器
	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 6. 关闭消息代理的订阅连接
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Log.Errorf("Error closing message broker: %v", err)
		}
	}

	// 7. 关闭 Asynq Client
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}

	// 8. 关闭 Redis 连接
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage != "" {
			entry.Error(errorMessage)
		} else {
			if statusCode >= 500 {
				entry.Error("Server error")
			} else if statusCode >= 400 {
				entry.Warn("Client error")
			} else {
				entry.Info("Request handled")
			}
		}
	}
}
