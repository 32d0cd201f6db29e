// Package main runs the background worker: invitation emails and the expiry sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/collabspace/backend/config"
	"github.com/collabspace/backend/internal/emaillogs"
	"github.com/collabspace/backend/internal/invitations"
	"github.com/collabspace/backend/internal/mail"
	"github.com/collabspace/backend/internal/store/postgres"
	"github.com/collabspace/backend/internal/worker"
	"github.com/collabspace/backend/pkg/database"
	"github.com/collabspace/backend/pkg/queue"
	"github.com/collabspace/backend/pkg/redis"
	"github.com/collabspace/backend/pkg/scheduler"
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

	var sender mail.Sender
	if cfg.Email.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			User:     cfg.Email.SMTPUser,
			Pass:     cfg.Email.SMTPPass,
			From:     cfg.Email.FromAddress,
			FromName: cfg.Email.FromName,
		})
	} else {
		logger.Warn("SMTP_HOST not set, invitation emails are only logged")
		sender = mail.NewLogSender(logger)
	}

	st := postgres.New(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	// Expiry here runs through the sweep only; the API process owns the timers.
	invites := invitations.New(st, nopScheduler{}, jobQueue, invitations.Options{
		TTL:    cfg.Invitations.TTL,
		Logger: logger,
	})
	mailer := worker.NewInvitationMailer(jobQueue, sender, invites, emaillogs.NewRepository(st), cfg.Email.AppURL, logger)
	sweeper := worker.NewExpirySweeper(invites, cfg.Invitations.SweepInterval, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mailer.Run(workerCtx)
	go sweeper.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

type nopScheduler struct{}

func (nopScheduler) Schedule(string, time.Time, scheduler.Action) {}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
