package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/conductor-hq/conductor-stock/internal/app"
	"github.com/conductor-hq/conductor-stock/internal/counts"
	"github.com/conductor-hq/conductor-stock/internal/kits"
	"github.com/conductor-hq/conductor-stock/internal/locations"
	"github.com/conductor-hq/conductor-stock/internal/observability"
	"github.com/conductor-hq/conductor-stock/internal/platform/cache"
	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
	"github.com/conductor-hq/conductor-stock/internal/transfers"
	"github.com/conductor-hq/conductor-stock/jobs"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(os.Args[2:]))
	}
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
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
	metrics := observability.NewMetrics()

	levelCache := stock.NewLevelCache(redisClient, cfg.StockCacheTTL)
	stockRepo := stock.NewRepository(pool, cfg.TxMaxRetries)
	stockService := stock.NewService(stockRepo, auditLogger, idempotencyStore, metrics, levelCache, stock.ServiceConfig{
		AllowNegativeAdjustments: cfg.AllowNegativeAdjustments,
	})
	stockHandler := stock.NewHandler(logger, stockService)

	locationsRepo := locations.NewRepository(pool)
	locationsService := locations.NewService(locationsRepo, auditLogger)
	locationsHandler := locations.NewHandler(logger, locationsService)

	reservationsRepo := reservations.NewRepository(pool, cfg.TxMaxRetries)
	reservationsService := reservations.NewService(reservationsRepo, auditLogger, metrics, logger)
	reservationsHandler := reservations.NewHandler(logger, reservationsService)

	transfersRepo := transfers.NewRepository(pool, cfg.TxMaxRetries)
	transfersService := transfers.NewService(transfersRepo, auditLogger, metrics, logger)
	transfersHandler := transfers.NewHandler(logger, transfersService)

	countsRepo := counts.NewRepository(pool, cfg.TxMaxRetries)
	countsService := counts.NewService(countsRepo, auditLogger, metrics, logger, counts.ServiceConfig{
		AllowNegativeAdjustments: cfg.AllowNegativeAdjustments,
	})
	countsHandler := counts.NewHandler(logger, countsService)

	kitsRepo := kits.NewRepository(pool, cfg.TxMaxRetries)
	kitsService := kits.NewService(kitsRepo, auditLogger, metrics, logger)
	kitsHandler := kits.NewHandler(logger, kitsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		LocationsHandler:    locationsHandler,
		StockHandler:        stockHandler,
		ReservationsHandler: reservationsHandler,
		TransfersHandler:    transfersHandler,
		CountsHandler:       countsHandler,
		KitsHandler:         kitsHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
