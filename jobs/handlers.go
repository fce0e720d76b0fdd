package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/conductor-hq/conductor-stock/internal/jobs"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// ReservationExpirer is the slice of the reservation service the sweep needs.
type ReservationExpirer interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// LowStockScanner is the slice of the stock repository the scan needs.
type LowStockScanner interface {
	ScanLowStock(ctx context.Context) ([]stock.LowStockAlert, error)
}

// KeyCleaner prunes processed idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewReservationExpiryHandler returns the asynq handler for the expiry sweep.
func NewReservationExpiryHandler(expirer ReservationExpirer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("reservation_expiry")
		var payload ReservationExpiryPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		if payload.BatchSize <= 0 {
			payload.BatchSize = 500
		}
		expired, err := expirer.ExpireDue(ctx, time.Now().UTC(), payload.BatchSize)
		if err != nil {
			logger.Error("reservation expiry sweep failed", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddExpired(expired)
		if expired > 0 {
			logger.Info("reservation expiry sweep", slog.Int("expired", expired))
		}
		return tracker.End(nil)
	}
}

// NewLowStockScanHandler returns the asynq handler for the low-stock scan.
// Flagged pairs are logged for alerting pipelines to pick up.
func NewLowStockScanHandler(scanner LowStockScanner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("low_stock_scan")
		alerts, err := scanner.ScanLowStock(ctx)
		if err != nil {
			logger.Error("low stock scan failed", slog.Any("error", err))
			return tracker.End(err)
		}
		metrics.AddLowStockAlerts(len(alerts))
		for _, alert := range alerts {
			logger.Warn("low stock",
				slog.Int64("tenant_id", alert.TenantID),
				slog.Int64("item_id", alert.Entry.ItemID),
				slog.Int64("location_id", alert.Entry.LocationID),
				slog.Float64("available", alert.Entry.Available),
				slog.Float64("reorder_point", alert.Entry.ReorderPoint),
				slog.Float64("economic_order_qty", alert.Entry.EconomicOrder))
		}
		return tracker.End(nil)
	}
}

// NewIdempotencyCleanupHandler returns the asynq handler pruning aged keys.
func NewIdempotencyCleanupHandler(cleaner KeyCleaner, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("idempotency_cleanup")
		var payload IdempotencyCleanupPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		if payload.RetentionHours <= 0 {
			payload.RetentionHours = 72
		}
		err := cleaner.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour)
		if err != nil {
			logger.Error("idempotency cleanup failed", slog.Any("error", err))
		}
		return tracker.End(err)
	}
}
