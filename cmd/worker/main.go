package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ouptel/ouptel-admin/internal/app"
	"github.com/ouptel/ouptel-admin/internal/audit"
	"github.com/ouptel/ouptel-admin/internal/auth"
	jobmetrics "github.com/ouptel/ouptel-admin/internal/jobs"
	"github.com/ouptel/ouptel-admin/internal/observability"
	"github.com/ouptel/ouptel-admin/internal/platform/cache"
	"github.com/ouptel/ouptel-admin/internal/platform/db"
	"github.com/ouptel/ouptel-admin/internal/settings"
	"github.com/ouptel/ouptel-admin/internal/shared"
	"github.com/ouptel/ouptel-admin/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)

	settingsRepo := settings.NewRepository(pool)
	settingsCache := settings.NewGroupCache(redisClient, cfg.SettingsCacheTTL, metrics)
	settingsService := settings.NewService(settingsRepo, settingsCache, settings.DefaultSchemas(), auditLogger, logger)

	authRepo := auth.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)

	cron, err := jobs.DefaultCron(cfg.AuditRetention)
	if err != nil {
		logger.Error("build cron schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Tasks: &jobs.Tasks{
			Settings: settingsService,
			Sessions: authRepo,
			Audit:    auditRepo,
			Logger:   logger,
			Metrics:  jobMetrics,
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
