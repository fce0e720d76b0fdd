package kits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-hq/conductor-stock/internal/platform/db"
	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// Repository persists service kits in PostgreSQL.
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
		return errors.New("kits repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{TxStore: stock.NewTxStore(tx), tx: tx})
	})
}

const kitSelect = `SELECT id, tenant_id, name, COALESCE(kit_type,''), COALESCE(equipment_type,''),
 COALESCE(maintenance_type,''), estimated_cost, is_active, created_at, updated_at
FROM service_kits`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanKit(row pgx.Row) (Kit, error) {
	var k Kit
	err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.KitType, &k.EquipmentType,
		&k.MaintenanceType, &k.EstimatedCost, &k.IsActive, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Kit{}, ErrNotFound
	}
	return k, err
}

func loadKit(ctx context.Context, q rowQuerier, tenantID, id int64) (Kit, error) {
	kit, err := scanKit(q.QueryRow(ctx, kitSelect+` WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return Kit{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, kit_id, item_id, quantity, is_optional, priority
FROM service_kit_items WHERE kit_id=$1 ORDER BY priority, id`, kit.ID)
	if err != nil {
		return Kit{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.KitID, &item.ItemID, &item.Quantity, &item.IsOptional, &item.Priority); err != nil {
			return Kit{}, err
		}
		kit.Items = append(kit.Items, item)
	}
	return kit, rows.Err()
}

func (s *txStore) GetKit(ctx context.Context, tenantID, id int64) (Kit, error) {
	return loadKit(ctx, s.tx, tenantID, id)
}

func (s *txStore) InsertReservation(ctx context.Context, res reservations.Reservation) (int64, error) {
	return reservations.InsertReservationTx(ctx, s.tx, res)
}

func (r *Repository) Get(ctx context.Context, tenantID, id int64) (Kit, error) {
	return loadKit(ctx, r.pool, tenantID, id)
}

func (r *Repository) Create(ctx context.Context, kit Kit) (Kit, error) {
	err := db.WithTxRetry(ctx, r.pool, r.maxRetries, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO service_kits
(tenant_id, name, kit_type, equipment_type, maintenance_type, estimated_cost, is_active, created_at, updated_at)
VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),NULLIF($5,''),$6,TRUE,NOW(),NOW())
RETURNING id, created_at, updated_at`,
			kit.TenantID, kit.Name, kit.KitType, kit.EquipmentType, kit.MaintenanceType, kit.EstimatedCost).
			Scan(&kit.ID, &kit.CreatedAt, &kit.UpdatedAt)
		if err != nil {
			return err
		}
		kit.IsActive = true
		for i := range kit.Items {
			item := &kit.Items[i]
			item.KitID = kit.ID
			if err := tx.QueryRow(ctx, `INSERT INTO service_kit_items
(kit_id, item_id, quantity, is_optional, priority)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`, item.KitID, item.ItemID, item.Quantity, item.IsOptional, item.Priority).Scan(&item.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Kit{}, err
	}
	return kit, nil
}

func (r *Repository) SetActive(ctx context.Context, tenantID, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE service_kits SET is_active=$3, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Kit, int, error) {
	conds := []string{"tenant_id=$1"}
	args := []any{tenantID}
	if filters.KitType != "" {
		args = append(args, filters.KitType)
		conds = append(conds, fmt.Sprintf("kit_type=$%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_kits`+where, args...).Scan(&total); err != nil {
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
	rows, err := r.pool.Query(ctx, kitSelect+where+
		fmt.Sprintf(" ORDER BY name, id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Kit
	for rows.Next() {
		kit, err := scanKit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, kit)
	}
	return out, total, rows.Err()
}
