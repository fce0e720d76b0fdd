package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/conductor-hq/conductor-stock/internal/jobs"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

func newTestMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

type fakeExpirer struct {
	gotLimit int
	expired  int
	err      error
}

func (f *fakeExpirer) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	f.gotLimit = limit
	return f.expired, f.err
}

func TestReservationExpiryHandlerUsesPayloadBatchSize(t *testing.T) {
	expirer := &fakeExpirer{expired: 3}
	handler := NewReservationExpiryHandler(expirer, newTestMetrics(), slog.Default())

	payload, err := json.Marshal(ReservationExpiryPayload{BatchSize: 25})
	require.NoError(t, err)

	err = handler(context.Background(), asynq.NewTask(TaskReservationExpiry, payload))
	require.NoError(t, err)
	require.Equal(t, 25, expirer.gotLimit)
}

func TestReservationExpiryHandlerDefaultsBatchSize(t *testing.T) {
	expirer := &fakeExpirer{}
	handler := NewReservationExpiryHandler(expirer, newTestMetrics(), slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskReservationExpiry, nil))
	require.NoError(t, err)
	require.Equal(t, 500, expirer.gotLimit)
}

func TestReservationExpiryHandlerSkipsRetryOnBadPayload(t *testing.T) {
	expirer := &fakeExpirer{}
	handler := NewReservationExpiryHandler(expirer, newTestMetrics(), slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskReservationExpiry, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, expirer.gotLimit)
}

func TestReservationExpiryHandlerPropagatesSweepError(t *testing.T) {
	sweepErr := errors.New("sweep failed")
	handler := NewReservationExpiryHandler(&fakeExpirer{err: sweepErr}, newTestMetrics(), slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskReservationExpiry, nil))
	require.ErrorIs(t, err, sweepErr)
}

type fakeScanner struct {
	alerts []stock.LowStockAlert
	err    error
	calls  int
}

func (f *fakeScanner) ScanLowStock(ctx context.Context) ([]stock.LowStockAlert, error) {
	f.calls++
	return f.alerts, f.err
}

func TestLowStockScanHandler(t *testing.T) {
	scanner := &fakeScanner{alerts: []stock.LowStockAlert{
		{TenantID: 1, Entry: stock.LowStockEntry{ItemID: 101, LocationID: 7, Available: 3, ReorderPoint: 10}},
	}}
	handler := NewLowStockScanHandler(scanner, newTestMetrics(), slog.Default())

	err := handler(context.Background(), NewLowStockScanTask())
	require.NoError(t, err)
	require.Equal(t, 1, scanner.calls)
}

func TestLowStockScanHandlerPropagatesError(t *testing.T) {
	scanErr := errors.New("scan failed")
	handler := NewLowStockScanHandler(&fakeScanner{err: scanErr}, newTestMetrics(), slog.Default())

	err := handler(context.Background(), NewLowStockScanTask())
	require.ErrorIs(t, err, scanErr)
}

type fakeCleaner struct {
	gotOlderThan time.Duration
	err          error
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.gotOlderThan = olderThan
	return f.err
}

func TestIdempotencyCleanupHandlerRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewIdempotencyCleanupHandler(cleaner, newTestMetrics(), slog.Default())

	payload, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: 24})
	require.NoError(t, err)

	err = handler(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, payload))
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, cleaner.gotOlderThan)
}

func TestIdempotencyCleanupHandlerDefaultRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewIdempotencyCleanupHandler(cleaner, newTestMetrics(), slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.NoError(t, err)
	require.Equal(t, 72*time.Hour, cleaner.gotOlderThan)
}
