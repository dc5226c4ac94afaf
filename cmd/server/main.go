// Package main runs the helpdesk context-resolution HTTP server with graceful shutdown.
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

	"github.com/nimbusdesk/backend/config"
	"github.com/nimbusdesk/backend/internal/admin"
	"github.com/nimbusdesk/backend/internal/auth"
	"github.com/nimbusdesk/backend/internal/categories"
	"github.com/nimbusdesk/backend/internal/consistency"
	"github.com/nimbusdesk/backend/internal/contexts"
	"github.com/nimbusdesk/backend/internal/memberships"
	"github.com/nimbusdesk/backend/internal/middleware"
	"github.com/nimbusdesk/backend/internal/models"
	"github.com/nimbusdesk/backend/internal/principals"
	"github.com/nimbusdesk/backend/internal/projection"
	"github.com/nimbusdesk/backend/internal/tickets"
	"github.com/nimbusdesk/backend/internal/visibility"
	"github.com/nimbusdesk/backend/pkg/database"
	"github.com/nimbusdesk/backend/pkg/queue"
	"github.com/nimbusdesk/backend/pkg/redis"
	"github.com/nimbusdesk/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Repositories
	contextRepo := contexts.NewRepository(pool)
	principalRepo := principals.NewRepository(pool)
	membershipRepo := memberships.NewRepository(pool)
	categoryRepo := categories.NewRepository(pool)
	ticketRepo := tickets.NewRepository(pool)

	// Visibility resolution and consistency checking
	resolver := visibility.NewResolver(principalRepo, membershipRepo, contextRepo, categoryRepo, ticketRepo, logger)
	guardian := projection.NewGuardian(principalRepo, membershipRepo, contextRepo, logger)
	validator := consistency.NewValidator(resolver, contextRepo, ticketRepo, categoryRepo, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Handlers
	contextHandler := contexts.NewHandler(contextRepo, resolver)
	principalHandler := principals.NewHandler(principalRepo, guardian, logger)
	membershipHandler := memberships.NewHandler(membershipRepo, logger)
	categoryHandler := categories.NewHandler(categoryRepo, resolver)
	ticketHandler := tickets.NewHandler(ticketRepo, resolver, validator, logger)
	adminHandler := admin.NewHandler(jobQueue, validator, s3Client, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// The caller's own effective contexts
		api.GET("/me/contexts", contextHandler.MyContexts)

		// Contexts (tenant boundaries; admin manages, everyone lists)
		api.GET("/contexts", contextHandler.List)
		api.POST("/contexts", middleware.RequireRole(models.RoleAdmin), contextHandler.Create)
		api.PATCH("/contexts/:id/deactivate", middleware.RequireRole(models.RoleAdmin), contextHandler.Deactivate)
		api.PATCH("/contexts/:id/reactivate", middleware.RequireRole(models.RoleAdmin), contextHandler.Reactivate)

		// Membership ledger (admin only)
		api.GET("/contexts/:id/members", middleware.RequireRole(models.RoleAdmin), membershipHandler.ListMembers)
		api.POST("/contexts/:id/members", middleware.RequireRole(models.RoleAdmin), membershipHandler.Grant)
		api.DELETE("/contexts/:id/members/:principalId", middleware.RequireRole(models.RoleAdmin), membershipHandler.Revoke)

		// Principals and their projection state (admin only)
		api.GET("/principals", middleware.RequireRole(models.RoleAdmin), principalHandler.List)
		api.POST("/principals", middleware.RequireRole(models.RoleAdmin), principalHandler.Create)
		api.GET("/principals/:id", middleware.RequireRole(models.RoleAdmin), principalHandler.Get)
		api.GET("/principals/:id/drift", middleware.RequireRole(models.RoleAdmin), principalHandler.Drift)
		api.POST("/principals/:id/repair", middleware.RequireRole(models.RoleAdmin), principalHandler.Repair)

		// Categories
		api.GET("/categories", categoryHandler.List)
		api.POST("/categories", middleware.RequireRole(models.RoleAdmin), categoryHandler.Create)
		api.PATCH("/categories/:id/deactivate", middleware.RequireRole(models.RoleAdmin), categoryHandler.Deactivate)

		// Tickets
		api.GET("/tickets", ticketHandler.List)
		api.POST("/tickets", ticketHandler.Create)
		api.GET("/tickets/:id", tickets.RequireTicketVisibility(ticketRepo, resolver), ticketHandler.Get)

		// Consistency tooling (admin only)
		api.POST("/admin/sweeps", middleware.RequireRole(models.RoleAdmin), adminHandler.EnqueueSweep)
		api.POST("/admin/scans", middleware.RequireRole(models.RoleAdmin), adminHandler.EnqueueScan)
		api.GET("/admin/violations", middleware.RequireRole(models.RoleAdmin), adminHandler.Violations)
		api.GET("/admin/reports/download-url", middleware.RequireRole(models.RoleAdmin), adminHandler.ReportDownloadURL)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
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
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
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
