package locations

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists locations.
type Repository interface {
	List(ctx context.Context, tenantID int64, filters ListFilters) ([]Location, int, error)
	Get(ctx context.Context, tenantID, id int64) (Location, error)
	Create(ctx context.Context, location Location) (Location, error)
	Update(ctx context.Context, location Location) error
	SetActive(ctx context.Context, tenantID, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const locationColumns = `id, tenant_id, name, code, location_type, address, latitude, longitude,
 COALESCE(manager_id, 0), capacity, occupancy, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Location, int, error) {
	query := `SELECT ` + locationColumns + ` FROM stock_locations WHERE tenant_id = $1`
	countQuery := `SELECT COUNT(*) FROM stock_locations WHERE tenant_id = $1`
	args := []any{tenantID}
	argCount := 1

	appendCond := func(cond string, value any) {
		argCount++
		placeholder := "$" + strconv.Itoa(argCount)
		query += ` AND ` + cond + placeholder
		countQuery += ` AND ` + cond + placeholder
		args = append(args, value)
	}

	if filters.Search != "" {
		appendCond(`(name ILIKE `, "%"+filters.Search+"%")
		// The same placeholder covers both columns.
		query += ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		countQuery += ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
	}
	if filters.Type != "" {
		appendCond(`location_type = `, string(filters.Type))
	}
	if filters.IsActive != nil {
		appendCond(`is_active = `, *filters.IsActive)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY code ASC`
	if filters.Limit > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, (page-1)*filters.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, loc)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id int64) (Location, error) {
	loc, err := scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM stock_locations WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, ErrNotFound
		}
		return Location{}, err
	}
	return loc, nil
}

func (r *repository) Create(ctx context.Context, location Location) (Location, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_locations (tenant_id, name, code, location_type, address, latitude, longitude, manager_id, capacity, occupancy, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,TRUE,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		location.TenantID, location.Name, location.Code, string(location.Type), location.Address,
		location.Latitude, location.Longitude, nullInt(location.ManagerID), location.Capacity, location.Occupancy).
		Scan(&location.ID, &location.CreatedAt, &location.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Location{}, ErrDuplicateCode
		}
		return Location{}, err
	}
	location.IsActive = true
	return location, nil
}

func (r *repository) Update(ctx context.Context, location Location) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_locations
SET name=$3, code=$4, location_type=$5, address=$6, latitude=$7, longitude=$8, manager_id=$9, capacity=$10, occupancy=$11, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
		location.TenantID, location.ID, location.Name, location.Code, string(location.Type),
		location.Address, location.Latitude, location.Longitude, nullInt(location.ManagerID),
		location.Capacity, location.Occupancy)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, tenantID, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_locations SET is_active=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLocation(row pgx.Row) (Location, error) {
	var loc Location
	var typ string
	err := row.Scan(&loc.ID, &loc.TenantID, &loc.Name, &loc.Code, &typ, &loc.Address, &loc.Latitude, &loc.Longitude,
		&loc.ManagerID, &loc.Capacity, &loc.Occupancy, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		return Location{}, err
	}
	loc.Type = LocationType(typ)
	return loc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
