package kits

import (
	"context"

	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// TxRepository is the transactional surface for kit expansion: the embedded
// ledger plus reservation-row inserts, so an expansion that fails on any
// constituent rolls back whole.
type TxRepository interface {
	stock.TxLedger

	GetKit(ctx context.Context, tenantID, id int64) (Kit, error)
	InsertReservation(ctx context.Context, r reservations.Reservation) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Kit, error)
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Kit, int, error)
	Create(ctx context.Context, kit Kit) (Kit, error)
	SetActive(ctx context.Context, tenantID, id int64, active bool) error
}
