package reservations

import (
	"context"
	"time"

	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// TxRepository is the transactional surface for reservation rows plus the
// embedded ledger, so holds, releases, consumption movements and the
// reservation row itself commit in one unit of work.
type TxRepository interface {
	stock.TxLedger

	GetReservationForUpdate(ctx context.Context, tenantID, id int64) (Reservation, error)
	InsertReservation(ctx context.Context, r Reservation) (int64, error)
	UpdateReservation(ctx context.Context, r Reservation) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Reservation, error)
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Reservation, int, error)
	ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]expiredRef, error)
}

type expiredRef struct {
	TenantID int64
	ID       int64
}
