package stock

import (
	"context"
	"errors"
	"time"
)

// ErrLevelNotFound indicates a missing level row; callers treat it as a zero
// level for the pair.
var ErrLevelNotFound = errors.New("stock level not found")

// TxLedger is the transactional surface over stock_levels and stock_movements.
// Modules that post movements as part of their own unit of work (reservations,
// transfers, counts, kits) embed this interface in their TxRepository so the
// ledger and their rows commit or roll back together.
type TxLedger interface {
	GetLevelForUpdate(ctx context.Context, tenantID, itemID, locationID int64) (Level, error)
	UpsertLevel(ctx context.Context, level Level) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	GetMovementForUpdate(ctx context.Context, tenantID, movementID int64) (Movement, error)
	MarkMovementReversed(ctx context.Context, tenantID, movementID, reversedBy int64, reason string, at time.Time) error
	ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error)
	LocationExists(ctx context.Context, tenantID, locationID int64) (bool, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	GetLevel(ctx context.Context, tenantID, itemID, locationID int64) (Level, error)
	GetMovement(ctx context.Context, tenantID, movementID int64) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	ListLowStock(ctx context.Context, tenantID, locationID int64) ([]LowStockEntry, error)
	Valuation(ctx context.Context, tenantID int64) (ValuationSummary, error)
	UpdateLevelPolicy(ctx context.Context, input PolicyInput) error
}
