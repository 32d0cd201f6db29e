// Package main runs the collab HTTP API with WebSocket delivery and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/collabspace/backend/config"
	"github.com/collabspace/backend/internal/auth"
	"github.com/collabspace/backend/internal/emaillogs"
	"github.com/collabspace/backend/internal/invitations"
	"github.com/collabspace/backend/internal/membership"
	"github.com/collabspace/backend/internal/messages"
	"github.com/collabspace/backend/internal/middleware"
	"github.com/collabspace/backend/internal/notifications"
	"github.com/collabspace/backend/internal/presence"
	"github.com/collabspace/backend/internal/readstatus"
	"github.com/collabspace/backend/internal/realtime"
	"github.com/collabspace/backend/internal/spaces"
	"github.com/collabspace/backend/internal/store/postgres"
	"github.com/collabspace/backend/internal/worker"
	"github.com/collabspace/backend/pkg/database"
	"github.com/collabspace/backend/pkg/queue"
	"github.com/collabspace/backend/pkg/redis"
	"github.com/collabspace/backend/pkg/response"
	"github.com/collabspace/backend/pkg/scheduler"
	"github.com/collabspace/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Avatars are optional; without S3 a data-URL avatar is rejected.
	var avatars spaces.AvatarStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			AvatarsBucket:   cfg.AWS.AvatarsBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			avatars = s3Client
		}
	}

	st := postgres.New(pool)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Realtime
	pres := presence.New()
	hubOpts := realtime.HubOptions{SendBuffer: cfg.Realtime.SendBuffer}
	if cfg.Realtime.RedisFanout {
		bridge := realtime.NewRedisPubSub(rdb.Client, logger)
		hubOpts.Publisher = bridge
		hubOpts.Subscriber = bridge
	}
	hub := realtime.NewHub(pres, logger, hubOpts)
	router := notifications.NewRouter(st, hub, pres, logger)

	// Background: scheduled expiry, periodic sweep
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	sched := scheduler.New(logger, time.Now)
	go sched.Run(workerCtx)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	invites := invitations.New(st, sched, jobQueue, invitations.Options{
		TTL:    cfg.Invitations.TTL,
		Logger: logger,
	})
	go worker.NewExpirySweeper(invites, cfg.Invitations.SweepInterval, logger).Run(workerCtx)

	// Domain services
	members := membership.New(st, logger, time.Now)
	reads := readstatus.New(st)
	spaceSvc := spaces.NewService(spaces.Deps{
		Store:       st,
		Members:     members,
		Invitations: invites,
		Avatars:     avatars,
		Notifier:    router,
		Logger:      logger,
		Now:         time.Now,
	})
	messageSvc := messages.NewService(st, members, reads, router, logger, time.Now)
	hub.SetAuthorizer(spaceSvc.CanJoinRoom)

	spaceHandler := spaces.NewHandler(spaceSvc)
	messageHandler := messages.NewHandler(messageSvc)
	notificationHandler := notifications.NewHandler(notifications.NewInbox(st))
	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(st), spaceSvc)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	engine.Use(middleware.Logger(logger))

	engine.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(ctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "connections": hub.ConnectionCount()})
	})

	// WebSocket (token in query; no Authorization header required)
	engine.GET("/ws", realtime.ServeWs(hub, logger, jwtService.UserID))

	api := engine.Group("")
	api.Use(middleware.JWT(jwtService))
	spaceHandler.Register(api)
	messageHandler.Register(api)
	notificationHandler.Register(api)
	api.GET("/collabs/:id/emails", emailLogsHandler.ListBySpace)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workerCancel()
	if err := spaceSvc.Wait(shutdownCtx); err != nil {
		logger.Warn("pending invitation sends abandoned", zap.Error(err))
	}
	if err := router.Flush(shutdownCtx); err != nil {
		logger.Warn("pending notification writes abandoned", zap.Error(err))
	}
	hub.Close()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
