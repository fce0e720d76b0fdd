package counts

import (
	"context"

	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// TxRepository is the transactional surface for inventory rows plus the
// embedded ledger, so snapshots, adjustments and count state commit in one
// unit of work.
type TxRepository interface {
	stock.TxLedger

	GetInventoryForUpdate(ctx context.Context, tenantID, id int64) (Inventory, error)
	InsertInventory(ctx context.Context, inv Inventory) (int64, error)
	UpdateInventory(ctx context.Context, inv Inventory) error
	InsertCount(ctx context.Context, c Count) (int64, error)
	UpdateCount(ctx context.Context, c Count) error
	ListItemIDsWithStock(ctx context.Context, tenantID, locationID int64) ([]int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Inventory, error)
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Inventory, int, error)
}
