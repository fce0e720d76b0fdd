package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, maxRetries int) *Repository {
	return &Repository{pool: pool, maxRetries: maxRetries}
}

type txStore struct {
	*stock.TxStore
	tx pgx.Tx
}

// WithTx runs fn in a repeatable-read transaction with bounded retries on
// serialization conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfers repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{TxStore: stock.NewTxStore(tx), tx: tx})
	})
}

const transferSelect = `SELECT id, tenant_id, transfer_number, from_location_id, to_location_id, status,
 COALESCE(note,''), COALESCE(requested_by,0), COALESCE(approved_by,0), approved_at,
 COALESCE(shipped_by,0), shipped_at, COALESCE(received_by,0), received_at,
 COALESCE(cancel_reason,''), created_at, updated_at
FROM stock_transfers`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	err := row.Scan(&t.ID, &t.TenantID, &t.TransferNumber, &t.FromLocationID, &t.ToLocationID, &t.Status,
		&t.Note, &t.RequestedBy, &t.ApprovedBy, &t.ApprovedAt,
		&t.ShippedBy, &t.ShippedAt, &t.ReceivedBy, &t.ReceivedAt,
		&t.CancelReason, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrNotFound
	}
	return t, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, transferID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, item_id, requested_qty, shipped_qty, received_qty, unit_cost
FROM stock_transfer_lines WHERE transfer_id=$1 ORDER BY id`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ItemID, &l.RequestedQty, &l.ShippedQty, &l.ReceivedQty, &l.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *txStore) GetTransferForUpdate(ctx context.Context, tenantID, id int64) (Transfer, error) {
	t, err := scanTransfer(s.tx.QueryRow(ctx, transferSelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return Transfer{}, err
	}
	t.Lines, err = loadLines(ctx, s.tx, t.ID)
	return t, err
}

func (s *txStore) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_transfers
(tenant_id, transfer_number, from_location_id, to_location_id, status, note, requested_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,0),NOW(),NOW())
RETURNING id`,
		t.TenantID, t.TransferNumber, t.FromLocationID, t.ToLocationID, t.Status, t.Note, t.RequestedBy).Scan(&id)
	return id, err
}

func (s *txStore) UpdateTransfer(ctx context.Context, t Transfer) error {
	tag, err := s.tx.Exec(ctx, `UPDATE stock_transfers
SET status=$3, approved_by=NULLIF($4,0), approved_at=$5, shipped_by=NULLIF($6,0), shipped_at=$7,
    received_by=NULLIF($8,0), received_at=$9, cancel_reason=NULLIF($10,''), updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
		t.TenantID, t.ID, t.Status, t.ApprovedBy, t.ApprovedAt, t.ShippedBy, t.ShippedAt,
		t.ReceivedBy, t.ReceivedAt, t.CancelReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *txStore) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_transfer_lines
(transfer_id, item_id, requested_qty, shipped_qty, received_qty, unit_cost)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`,
		line.TransferID, line.ItemID, line.RequestedQty, line.ShippedQty, line.ReceivedQty, line.UnitCost).Scan(&id)
	return id, err
}

func (s *txStore) UpdateLine(ctx context.Context, line Line) error {
	tag, err := s.tx.Exec(ctx, `UPDATE stock_transfer_lines
SET shipped_qty=$2, received_qty=$3, unit_cost=$4
WHERE id=$1`, line.ID, line.ShippedQty, line.ReceivedQty, line.UnitCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Transfer, error) {
	t, err := scanTransfer(r.pool.QueryRow(ctx, transferSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return Transfer{}, err
	}
	t.Lines, err = loadLines(ctx, r.pool, t.ID)
	return t, err
}

func (r *Repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Transfer, int, error) {
	conds := []string{"tenant_id=$1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.Status != "" {
		add("status=$%d", filters.Status)
	}
	if filters.FromLocationID != 0 {
		add("from_location_id=$%d", filters.FromLocationID)
	}
	if filters.ToLocationID != 0 {
		add("to_location_id=$%d", filters.ToLocationID)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transfers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := r.pool.Query(ctx, transferSelect+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Lines, err = loadLines(ctx, r.pool, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}
