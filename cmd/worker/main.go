// Package main runs the background AI job worker (estimates and replies).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/myprojectr/backend/config"
	"github.com/myprojectr/backend/internal/ai"
	"github.com/myprojectr/backend/internal/events"
	"github.com/myprojectr/backend/internal/usage"
	"github.com/myprojectr/backend/internal/worker"
	"github.com/myprojectr/backend/pkg/dynamo"
	"github.com/myprojectr/backend/pkg/mailer"
	"github.com/myprojectr/backend/pkg/queue"
	"github.com/myprojectr/backend/pkg/redis"
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

	ses, err := mailer.NewSES(ctx, mailer.Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		EndpointURL:     cfg.AWS.EndpointURL,
		FromAddress:     cfg.Email.FromAddress,
		FromName:        cfg.Email.FromName,
	}, logger)
	if err != nil {
		logger.Fatal("ses", zap.Error(err))
	}

	aiClient := ai.NewClient(ai.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		ExtractionModel: cfg.OpenAI.ExtractionModel,
		EstimationModel: cfg.OpenAI.EstimationModel,
	}, logger)

	eventRepo := events.NewRepository(db, cfg.Tables.Events, logger)
	usageRepo := usage.NewRepository(db, cfg.Tables.Usage, cfg.Processing.UsageRetentionDays, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(jobQueue, aiClient, s3Client, eventRepo, usageRepo, ses, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
