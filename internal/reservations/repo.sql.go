package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// Repository persists reservations in PostgreSQL.
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
// serialization conflicts. The callback sees reservation rows and the ledger
// through one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("reservations repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{TxStore: stock.NewTxStore(tx), tx: tx})
	})
}

const reservationSelect = `SELECT id, tenant_id, item_id, location_id, reservation_type,
 COALESCE(reference_id,''), reserved_qty, consumed_qty, status, expires_at,
 COALESCE(created_by,0), created_at, updated_at
FROM stock_reservations`

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.TenantID, &res.ItemID, &res.LocationID, &res.Type,
		&res.ReferenceID, &res.ReservedQty, &res.ConsumedQty, &res.Status, &res.ExpiresAt,
		&res.CreatedBy, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrNotFound
	}
	return res, err
}

func (s *txStore) GetReservationForUpdate(ctx context.Context, tenantID, id int64) (Reservation, error) {
	return scanReservation(s.tx.QueryRow(ctx, reservationSelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (s *txStore) InsertReservation(ctx context.Context, res Reservation) (int64, error) {
	return InsertReservationTx(ctx, s.tx, res)
}

// InsertReservationTx appends a reservation row on a caller-held transaction.
// The kit composer uses it to join reservation rows to its own unit of work.
func InsertReservationTx(ctx context.Context, tx pgx.Tx, res Reservation) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO stock_reservations
(tenant_id, item_id, location_id, reservation_type, reference_id, reserved_qty, consumed_qty, status, expires_at, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,NULLIF($10,0),NOW(),NOW())
RETURNING id`,
		res.TenantID, res.ItemID, res.LocationID, res.Type, res.ReferenceID,
		res.ReservedQty, res.ConsumedQty, res.Status, res.ExpiresAt, res.CreatedBy).Scan(&id)
	return id, err
}

func (s *txStore) UpdateReservation(ctx context.Context, res Reservation) error {
	tag, err := s.tx.Exec(ctx, `UPDATE stock_reservations
SET reserved_qty=$3, consumed_qty=$4, status=$5, expires_at=$6, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
		res.TenantID, res.ID, res.ReservedQty, res.ConsumedQty, res.Status, res.ExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Reservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, reservationSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *Repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Reservation, int, error) {
	conds := []string{"tenant_id=$1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.ItemID != 0 {
		add("item_id=$%d", filters.ItemID)
	}
	if filters.LocationID != 0 {
		add("location_id=$%d", filters.LocationID)
	}
	if filters.Status != "" {
		add("status=$%d", filters.Status)
	}
	if filters.Type != "" {
		add("reservation_type=$%d", filters.Type)
	}
	if filters.ReferenceID != "" {
		add("reference_id=$%d", filters.ReferenceID)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_reservations`+where, args...).Scan(&total); err != nil {
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
	rows, err := r.pool.Query(ctx, reservationSelect+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, res)
	}
	return out, total, rows.Err()
}

// ListExpiredIDs returns active reservations whose expiry has passed, oldest
// first, for the expiry sweep.
func (r *Repository) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]expiredRef, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, id FROM stock_reservations
WHERE status='active' AND expires_at IS NOT NULL AND expires_at <= $1
ORDER BY expires_at ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []expiredRef
	for rows.Next() {
		var ref expiredRef
		if err := rows.Scan(&ref.TenantID, &ref.ID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
