package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/conductor-hq/conductor-stock/internal/app"
	jobmetrics "github.com/conductor-hq/conductor-stock/internal/jobs"
	"github.com/conductor-hq/conductor-stock/internal/observability"
	"github.com/conductor-hq/conductor-stock/internal/platform/cache"
	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
	"github.com/conductor-hq/conductor-stock/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	appMetrics := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(appMetrics.Registerer())

	stockRepo := stock.NewRepository(pool, cfg.TxMaxRetries)
	reservationsRepo := reservations.NewRepository(pool, cfg.TxMaxRetries)
	reservationsService := reservations.NewService(reservationsRepo, auditLogger, appMetrics, logger)

	expiryTask, err := jobs.NewReservationExpiryTask(jobs.ReservationExpiryPayload{BatchSize: 500})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{RetentionHours: 72})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReservationExpiry, Handler: jobs.NewReservationExpiryHandler(reservationsService, metrics, logger)},
			{Type: jobs.TaskLowStockScan, Handler: jobs.NewLowStockScanHandler(stockRepo, metrics, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReservationSweepCron, Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LowStockScanCron, Task: jobs.NewLowStockScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
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
