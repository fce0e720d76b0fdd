package counts

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

// Repository persists physical inventories in PostgreSQL.
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
		return errors.New("counts repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{TxStore: stock.NewTxStore(tx), tx: tx})
	})
}

const inventorySelect = `SELECT id, tenant_id, location_id, count_type, status,
 total_items_planned, total_items_counted, total_discrepancies,
 COALESCE(planned_by,0), COALESCE(approved_by,0), approved_at, created_at, updated_at
FROM physical_inventories`

func scanInventory(row pgx.Row) (Inventory, error) {
	var inv Inventory
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.LocationID, &inv.Type, &inv.Status,
		&inv.TotalItemsPlanned, &inv.TotalItemsCounted, &inv.TotalDiscrepancies,
		&inv.PlannedBy, &inv.ApprovedBy, &inv.ApprovedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inventory{}, ErrNotFound
	}
	return inv, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadCounts(ctx context.Context, q querier, inventoryID int64) ([]Count, error) {
	rows, err := q.Query(ctx, `SELECT id, inventory_id, item_id, system_qty, counted_qty, variance, variance_percent,
 is_adjusted, COALESCE(counted_by,0), counted_at
FROM inventory_counts WHERE inventory_id=$1 ORDER BY id`, inventoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var counts []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.ID, &c.InventoryID, &c.ItemID, &c.SystemQty, &c.CountedQty, &c.Variance,
			&c.VariancePercent, &c.IsAdjusted, &c.CountedBy, &c.CountedAt); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *txStore) GetInventoryForUpdate(ctx context.Context, tenantID, id int64) (Inventory, error) {
	inv, err := scanInventory(s.tx.QueryRow(ctx, inventorySelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return Inventory{}, err
	}
	inv.Counts, err = loadCounts(ctx, s.tx, inv.ID)
	return inv, err
}

func (s *txStore) InsertInventory(ctx context.Context, inv Inventory) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO physical_inventories
(tenant_id, location_id, count_type, status, total_items_planned, total_items_counted, total_discrepancies, planned_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,0),NOW(),NOW())
RETURNING id`,
		inv.TenantID, inv.LocationID, inv.Type, inv.Status,
		inv.TotalItemsPlanned, inv.TotalItemsCounted, inv.TotalDiscrepancies, inv.PlannedBy).Scan(&id)
	return id, err
}

func (s *txStore) UpdateInventory(ctx context.Context, inv Inventory) error {
	tag, err := s.tx.Exec(ctx, `UPDATE physical_inventories
SET status=$3, total_items_planned=$4, total_items_counted=$5, total_discrepancies=$6,
    approved_by=NULLIF($7,0), approved_at=$8, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
		inv.TenantID, inv.ID, inv.Status, inv.TotalItemsPlanned, inv.TotalItemsCounted,
		inv.TotalDiscrepancies, inv.ApprovedBy, inv.ApprovedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *txStore) InsertCount(ctx context.Context, c Count) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO inventory_counts
(inventory_id, item_id, system_qty, counted_qty, variance, variance_percent, is_adjusted, counted_by, counted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,0),$9)
RETURNING id`,
		c.InventoryID, c.ItemID, c.SystemQty, c.CountedQty, c.Variance, c.VariancePercent,
		c.IsAdjusted, c.CountedBy, c.CountedAt).Scan(&id)
	return id, err
}

func (s *txStore) UpdateCount(ctx context.Context, c Count) error {
	tag, err := s.tx.Exec(ctx, `UPDATE inventory_counts
SET counted_qty=$2, variance=$3, variance_percent=$4, is_adjusted=$5, counted_by=NULLIF($6,0), counted_at=$7
WHERE id=$1`,
		c.ID, c.CountedQty, c.Variance, c.VariancePercent, c.IsAdjusted, c.CountedBy, c.CountedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCountNotFound
	}
	return nil
}

// ListItemIDsWithStock returns the items with a level row at the location,
// used to expand full counts.
func (s *txStore) ListItemIDsWithStock(ctx context.Context, tenantID, locationID int64) ([]int64, error) {
	rows, err := s.tx.Query(ctx, `SELECT item_id FROM stock_levels
WHERE tenant_id=$1 AND location_id=$2 ORDER BY item_id`, tenantID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Inventory, error) {
	inv, err := scanInventory(r.pool.QueryRow(ctx, inventorySelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return Inventory{}, err
	}
	inv.Counts, err = loadCounts(ctx, r.pool, inv.ID)
	return inv, err
}

func (r *Repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Inventory, int, error) {
	conds := []string{"tenant_id=$1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.LocationID != 0 {
		add("location_id=$%d", filters.LocationID)
	}
	if filters.Status != "" {
		add("status=$%d", filters.Status)
	}
	if filters.Type != "" {
		add("count_type=$%d", filters.Type)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM physical_inventories`+where, args...).Scan(&total); err != nil {
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
	rows, err := r.pool.Query(ctx, inventorySelect+where+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Inventory
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}
