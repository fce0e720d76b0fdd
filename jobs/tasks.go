package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReservationExpiry sweeps active reservations past their expiry.
	TaskReservationExpiry = "stock:reservation_expiry"
	// TaskLowStockScan flags item/location pairs at or below their reorder point.
	TaskLowStockScan = "stock:low_stock_scan"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "stock:idempotency_cleanup"
)

// ReservationExpiryPayload bounds one sweep run.
type ReservationExpiryPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewReservationExpiryTask constructs the expiry sweep task.
func NewReservationExpiryTask(payload ReservationExpiryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationExpiry, data), nil
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// IdempotencyCleanupPayload carries the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
