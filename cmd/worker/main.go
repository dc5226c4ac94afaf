// Package main runs the background consistency worker (drift sweeps, violation scans).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nimbusdesk/backend/config"
	"github.com/nimbusdesk/backend/internal/categories"
	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/contexts"
	"github.com/nimbusdesk/backend/internal/memberships"
	"github.com/nimbusdesk/backend/internal/principals"
	"github.com/nimbusdesk/backend/internal/projection"
	"github.com/nimbusdesk/backend/internal/tickets"
	"github.com/nimbusdesk/backend/internal/visibility"
	"github.com/nimbusdesk/backend/internal/worker"
	"github.com/nimbusdesk/backend/pkg/database"
	"github.com/nimbusdesk/backend/pkg/queue"
	"github.com/nimbusdesk/backend/pkg/redis"
	"github.com/nimbusdesk/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled, reports will not be archived", zap.Error(err))
		}
	}

	contextRepo := contexts.NewRepository(pool)
	principalRepo := principals.NewRepository(pool)
	membershipRepo := memberships.NewRepository(pool)
	categoryRepo := categories.NewRepository(pool)
	ticketRepo := tickets.NewRepository(pool)

	resolver := visibility.NewResolver(principalRepo, membershipRepo, contextRepo, categoryRepo, ticketRepo, logger)
	guardian := projection.NewGuardian(principalRepo, membershipRepo, contextRepo, logger)
	validator := consistency.NewValidator(resolver, contextRepo, ticketRepo, categoryRepo, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	sweeper := worker.NewSweeper(guardian, validator, jobQueue, rdb.Client, s3Client, cfg.Sweep.PageSize, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sweeper.Run(runCtx)
	logger.Info("consistency worker started")

	if cfg.Sweep.IntervalMinutes > 0 {
		go sweeper.RunScheduled(runCtx, time.Duration(cfg.Sweep.IntervalMinutes)*time.Minute)
		logger.Info("scheduled sweep enabled", zap.Int("interval_minutes", cfg.Sweep.IntervalMinutes))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	cancel()
	time.Sleep(time.Second)
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
