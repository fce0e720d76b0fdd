package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-hq/conductor-stock/internal/platform/db"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewRepository constructs Repository. maxRetries bounds internal retries on
// serialization conflicts.
func NewRepository(pool *pgxpool.Pool, maxRetries int) *Repository {
	return &Repository{pool: pool, maxRetries: maxRetries}
}

// TxStore implements TxLedger over a pgx transaction. Other modules embed it
// in their own transaction wrappers to join ledger writes to their unit of
// work.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps a pgx transaction with ledger operations.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction, retrying
// bounded times on serialization conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

func (r *Repository) GetLevel(ctx context.Context, tenantID, itemID, locationID int64) (Level, error) {
	return scanLevel(r.pool.QueryRow(ctx, levelSelect+` WHERE tenant_id=$1 AND item_id=$2 AND location_id=$3`,
		tenantID, itemID, locationID), tenantID, itemID, locationID)
}

func (r *Repository) GetMovement(ctx context.Context, tenantID, movementID int64) (Movement, error) {
	return scanMovement(r.pool.QueryRow(ctx, movementSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, movementID))
}

func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, movementSelect+`
 WHERE tenant_id=$1
   AND ($2::bigint IS NULL OR item_id=$2)
   AND ($3::bigint IS NULL OR location_id=$3)
   AND ($4::text IS NULL OR movement_type=$4)
   AND posted_at BETWEEN COALESCE($5, '-infinity') AND COALESCE($6, 'infinity')
 ORDER BY posted_at ASC, id ASC
 LIMIT $7`,
		filter.TenantID, nullInt(filter.ItemID), nullInt(filter.LocationID), nullString(string(filter.Type)),
		nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *Repository) ListLowStock(ctx context.Context, tenantID, locationID int64) ([]LowStockEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, location_id, available_qty, reorder_point, economic_order_qty
FROM stock_levels
WHERE tenant_id=$1 AND ($2::bigint IS NULL OR location_id=$2) AND reorder_point > 0 AND available_qty <= reorder_point
ORDER BY location_id, item_id`, tenantID, nullInt(locationID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []LowStockEntry
	for rows.Next() {
		var e LowStockEntry
		if err := rows.Scan(&e.ItemID, &e.LocationID, &e.Available, &e.ReorderPoint, &e.EconomicOrder); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Repository) Valuation(ctx context.Context, tenantID int64) (ValuationSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT location_id, COUNT(*), COALESCE(SUM(current_qty),0), COALESCE(SUM(total_value),0)
FROM stock_levels
WHERE tenant_id=$1
GROUP BY location_id
ORDER BY location_id`, tenantID)
	if err != nil {
		return ValuationSummary{}, err
	}
	defer rows.Close()
	var summary ValuationSummary
	for rows.Next() {
		var e ValuationEntry
		if err := rows.Scan(&e.LocationID, &e.Items, &e.TotalQty, &e.TotalValue); err != nil {
			return ValuationSummary{}, err
		}
		summary.Items += e.Items
		summary.TotalQty += e.TotalQty
		summary.TotalValue += e.TotalValue
		summary.Locations = append(summary.Locations, e)
	}
	return summary, rows.Err()
}

// ScanLowStock is the cross-tenant variant used by the periodic scan job.
func (r *Repository) ScanLowStock(ctx context.Context) ([]LowStockAlert, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, item_id, location_id, available_qty, reorder_point, economic_order_qty
FROM stock_levels
WHERE reorder_point > 0 AND available_qty <= reorder_point
ORDER BY tenant_id, location_id, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var alerts []LowStockAlert
	for rows.Next() {
		var a LowStockAlert
		if err := rows.Scan(&a.TenantID, &a.Entry.ItemID, &a.Entry.LocationID,
			&a.Entry.Available, &a.Entry.ReorderPoint, &a.Entry.EconomicOrder); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *Repository) UpdateLevelPolicy(ctx context.Context, input PolicyInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_levels
SET minimum_level=$4, maximum_level=$5, reorder_point=$6, economic_order_qty=$7, updated_at=NOW()
WHERE tenant_id=$1 AND item_id=$2 AND location_id=$3`,
		input.TenantID, input.ItemID, input.LocationID,
		input.MinimumLevel, input.MaximumLevel, input.ReorderPoint, input.EconomicOrder)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, err = r.pool.Exec(ctx, `INSERT INTO stock_levels (tenant_id, item_id, location_id, current_qty, reserved_qty, available_qty, minimum_level, maximum_level, reorder_point, economic_order_qty, unit_cost, total_value, updated_at)
VALUES ($1,$2,$3,0,0,0,$4,$5,$6,$7,0,0,NOW())`,
			input.TenantID, input.ItemID, input.LocationID,
			input.MinimumLevel, input.MaximumLevel, input.ReorderPoint, input.EconomicOrder)
	}
	return err
}

const levelSelect = `SELECT tenant_id, item_id, location_id, current_qty, reserved_qty, available_qty,
 minimum_level, maximum_level, reorder_point, economic_order_qty, unit_cost, total_value,
 COALESCE(last_movement_at, '0001-01-01T00:00:00Z'), updated_at
FROM stock_levels`

const movementSelect = `SELECT id, tenant_id, item_id, location_id, movement_type, qty, unit_cost,
 reference_type, COALESCE(reference_id, ''), note, COALESCE(actor_id, 0), COALESCE(approved_by, 0), COALESCE(approved_at, '0001-01-01T00:00:00Z'),
 is_reversed, COALESCE(reversed_by, 0), COALESCE(reversed_at, '0001-01-01T00:00:00Z'), COALESCE(reverse_reason, ''), COALESCE(reversal_of, 0), posted_at
FROM stock_movements`

func (s *TxStore) GetLevelForUpdate(ctx context.Context, tenantID, itemID, locationID int64) (Level, error) {
	return scanLevel(s.tx.QueryRow(ctx, levelSelect+` WHERE tenant_id=$1 AND item_id=$2 AND location_id=$3 FOR UPDATE`,
		tenantID, itemID, locationID), tenantID, itemID, locationID)
}

func (s *TxStore) UpsertLevel(ctx context.Context, level Level) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_levels (tenant_id, item_id, location_id, current_qty, reserved_qty, available_qty, minimum_level, maximum_level, reorder_point, economic_order_qty, unit_cost, total_value, last_movement_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())
ON CONFLICT (tenant_id, item_id, location_id) DO UPDATE SET
 current_qty=EXCLUDED.current_qty, reserved_qty=EXCLUDED.reserved_qty, available_qty=EXCLUDED.available_qty,
 unit_cost=EXCLUDED.unit_cost, total_value=EXCLUDED.total_value,
 last_movement_at=COALESCE(EXCLUDED.last_movement_at, stock_levels.last_movement_at), updated_at=NOW()`,
		level.TenantID, level.ItemID, level.LocationID, level.Current, level.Reserved, level.Available,
		level.MinimumLevel, level.MaximumLevel, level.ReorderPoint, level.EconomicOrder,
		level.UnitCost, level.TotalValue, nullTime(level.LastMovementAt))
	return err
}

func (s *TxStore) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements (tenant_id, item_id, location_id, movement_type, qty, unit_cost, reference_type, reference_id, note, actor_id, approved_by, approved_at, reversal_of, posted_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id`,
		m.TenantID, m.ItemID, m.LocationID, string(m.Type), m.Quantity, m.UnitCost,
		m.ReferenceType, nullString(m.ReferenceID), m.Note, nullInt(m.ActorID),
		nullInt(m.ApprovedBy), nullTime(m.ApprovedAt), nullInt(m.ReversalOf), m.PostedAt).Scan(&id)
	return id, err
}

func (s *TxStore) GetMovementForUpdate(ctx context.Context, tenantID, movementID int64) (Movement, error) {
	return scanMovement(s.tx.QueryRow(ctx, movementSelect+` WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, movementID))
}

func (s *TxStore) MarkMovementReversed(ctx context.Context, tenantID, movementID, reversedBy int64, reason string, at time.Time) error {
	tag, err := s.tx.Exec(ctx, `UPDATE stock_movements
SET is_reversed=TRUE, reversed_by=$3, reversed_at=$4, reverse_reason=$5
WHERE tenant_id=$1 AND id=$2 AND is_reversed=FALSE`,
		tenantID, movementID, nullInt(reversedBy), at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementReversed
	}
	return nil
}

func (s *TxStore) ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE tenant_id=$1 AND id=$2)`, tenantID, itemID).Scan(&exists)
	return exists, err
}

func (s *TxStore) LocationExists(ctx context.Context, tenantID, locationID int64) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_locations WHERE tenant_id=$1 AND id=$2 AND is_active)`, tenantID, locationID).Scan(&exists)
	return exists, err
}

func scanLevel(row pgx.Row, tenantID, itemID, locationID int64) (Level, error) {
	var level Level
	err := row.Scan(&level.TenantID, &level.ItemID, &level.LocationID, &level.Current, &level.Reserved, &level.Available,
		&level.MinimumLevel, &level.MaximumLevel, &level.ReorderPoint, &level.EconomicOrder,
		&level.UnitCost, &level.TotalValue, &level.LastMovementAt, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Level{TenantID: tenantID, ItemID: itemID, LocationID: locationID}, ErrLevelNotFound
		}
		return Level{}, err
	}
	return level, nil
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var typ string
	err := row.Scan(&m.ID, &m.TenantID, &m.ItemID, &m.LocationID, &typ, &m.Quantity, &m.UnitCost,
		&m.ReferenceType, &m.ReferenceID, &m.Note, &m.ActorID, &m.ApprovedBy, &m.ApprovedAt,
		&m.IsReversed, &m.ReversedBy, &m.ReversedAt, &m.ReverseReason, &m.ReversalOf, &m.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	m.Type = MovementType(typ)
	return m, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
