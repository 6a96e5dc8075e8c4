// Package main runs the project tracking HTTP server with graceful shutdown.
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

	"github.com/myprojectr/backend/config"
	"github.com/myprojectr/backend/internal/ai"
	"github.com/myprojectr/backend/internal/auth"
	"github.com/myprojectr/backend/internal/billing"
	"github.com/myprojectr/backend/internal/events"
	"github.com/myprojectr/backend/internal/ingest"
	"github.com/myprojectr/backend/internal/mail"
	"github.com/myprojectr/backend/internal/middleware"
	"github.com/myprojectr/backend/internal/projects"
	"github.com/myprojectr/backend/internal/tenants"
	"github.com/myprojectr/backend/internal/usage"
	"github.com/myprojectr/backend/pkg/dynamo"
	"github.com/myprojectr/backend/pkg/queue"
	"github.com/myprojectr/backend/pkg/redis"
	"github.com/myprojectr/backend/pkg/response"
	"github.com/myprojectr/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	db, err := dynamo.NewClient(ctx, dynamo.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		EndpointURL:     cfg.AWS.EndpointURL,
	}, logger)
	if err != nil {
		logger.Fatal("dynamodb", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		EndpointURL:          cfg.AWS.EndpointURL,
		EmailBucket:          cfg.AWS.EmailBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	aiClient := ai.NewClient(ai.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		ExtractionModel: cfg.OpenAI.ExtractionModel,
		EstimationModel: cfg.OpenAI.EstimationModel,
	}, logger)

	// Tenants
	tenantRepo := tenants.NewRepository(db, cfg.Tables.Tenants, logger)
	tenantHandler := tenants.NewHandler(tenantRepo)

	// Projects
	projectRepo := projects.NewRepository(db, cfg.Tables.Projects, logger)
	projectHandler := projects.NewHandler(projectRepo, jobQueue, s3Client, logger)

	// Events
	eventRepo := events.NewRepository(db, cfg.Tables.Events, logger)
	eventHandler := events.NewHandler(eventRepo)

	// Usage
	usageRepo := usage.NewRepository(db, cfg.Tables.Usage, cfg.Processing.UsageRetentionDays, logger)
	usageHandler := usage.NewHandler(usageRepo)

	// Inbound email pipeline
	resolver := ingest.NewResolver(projectRepo, logger)
	processor := ingest.NewProcessor(s3Client, mail.NewParser(logger), aiClient, tenantRepo,
		resolver, projectRepo, eventRepo, usageRepo, jobQueue, ingest.Config{
			MaxAttachmentSizeMB:   cfg.Processing.MaxAttachmentSizeMB,
			EnableSenderAllowlist: cfg.Processing.EnableSenderAllowlist,
			AllowedSenderDomains:  cfg.Processing.AllowedSenderDomains,
			EmailDomain:           cfg.Email.Domain,
		}, logger)
	ingestHandler := ingest.NewHandler(processor)

	// Billing
	stripeClient := billing.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, logger)
	billingHandler := billing.NewHandler(stripeClient, tenantRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhooks (no JWT; each handler authenticates its caller)
	router.POST("/webhooks/inbound-email", ingestHandler.Inbound)
	router.POST("/webhooks/stripe", billingHandler.Webhook)

	// Protected API (JWT required, tenant scope from token)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Tenant
		api.GET("/tenant", tenantHandler.Get)
		api.PATCH("/tenant", middleware.RequireRole("admin"), tenantHandler.Update)

		// Projects
		api.GET("/projects", projectHandler.List)
		api.GET("/projects/:id", projectHandler.Get)
		api.PATCH("/projects/:id", projectHandler.Update)
		api.POST("/projects/:id/estimate", projectHandler.RequestEstimate)
		api.GET("/projects/:id/attachments/url", projectHandler.AttachmentURL)

		// Events
		api.GET("/events", eventHandler.ListByTenant)
		api.GET("/projects/:id/events", eventHandler.ListByProject)

		// Usage
		api.GET("/usage", middleware.RequireRole("admin"), usageHandler.ListByDate)
		api.GET("/usage/summary", middleware.RequireRole("admin"), usageHandler.Summary)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
