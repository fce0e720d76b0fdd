package transfers

import (
	"context"

	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// TxRepository is the transactional surface for transfer rows plus the
// embedded ledger, so holds, movement legs and transfer state commit in one
// unit of work.
type TxRepository interface {
	stock.TxLedger

	GetTransferForUpdate(ctx context.Context, tenantID, id int64) (Transfer, error)
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateLine(ctx context.Context, line Line) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenantID, id int64) (Transfer, error)
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Transfer, int, error)
}
