package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	levels    map[string]Level
	movements map[int64]Movement
	order     []int64
	items     map[int64]bool
	locations map[int64]bool
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		levels:    make(map[string]Level),
		movements: make(map[int64]Movement),
		items:     map[int64]bool{1: true, 2: true},
		locations: map[int64]bool{1: true, 2: true},
	}
}

func levelTestKey(tenantID, itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, itemID, locationID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetLevel(ctx context.Context, tenantID, itemID, locationID int64) (Level, error) {
	if level, ok := r.levels[levelTestKey(tenantID, itemID, locationID)]; ok {
		return level, nil
	}
	return Level{TenantID: tenantID, ItemID: itemID, LocationID: locationID}, ErrLevelNotFound
}

func (r *memoryRepo) GetMovement(ctx context.Context, tenantID, movementID int64) (Movement, error) {
	if m, ok := r.movements[movementID]; ok && m.TenantID == tenantID {
		return m, nil
	}
	return Movement{}, ErrMovementNotFound
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, id := range r.order {
		m := r.movements[id]
		if m.TenantID != filter.TenantID {
			continue
		}
		if filter.ItemID != 0 && m.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != 0 && m.LocationID != filter.LocationID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context, tenantID, locationID int64) ([]LowStockEntry, error) {
	var out []LowStockEntry
	for _, level := range r.levels {
		if level.TenantID != tenantID || level.ReorderPoint <= 0 || level.Available > level.ReorderPoint {
			continue
		}
		out = append(out, LowStockEntry{ItemID: level.ItemID, LocationID: level.LocationID, Available: level.Available, ReorderPoint: level.ReorderPoint})
	}
	return out, nil
}

func (r *memoryRepo) Valuation(ctx context.Context, tenantID int64) (ValuationSummary, error) {
	byLocation := make(map[int64]*ValuationEntry)
	for _, level := range r.levels {
		if level.TenantID != tenantID {
			continue
		}
		entry, ok := byLocation[level.LocationID]
		if !ok {
			entry = &ValuationEntry{LocationID: level.LocationID}
			byLocation[level.LocationID] = entry
		}
		entry.Items++
		entry.TotalQty += level.Current
		entry.TotalValue += level.TotalValue
	}
	var summary ValuationSummary
	for _, entry := range byLocation {
		summary.Items += entry.Items
		summary.TotalQty += entry.TotalQty
		summary.TotalValue += entry.TotalValue
		summary.Locations = append(summary.Locations, *entry)
	}
	return summary, nil
}

func (r *memoryRepo) UpdateLevelPolicy(ctx context.Context, input PolicyInput) error {
	key := levelTestKey(input.TenantID, input.ItemID, input.LocationID)
	level, ok := r.levels[key]
	if !ok {
		level = Level{TenantID: input.TenantID, ItemID: input.ItemID, LocationID: input.LocationID}
	}
	level.MinimumLevel = input.MinimumLevel
	level.MaximumLevel = input.MaximumLevel
	level.ReorderPoint = input.ReorderPoint
	level.EconomicOrder = input.EconomicOrder
	r.levels[key] = level
	return nil
}

func (tx *memoryTx) GetLevelForUpdate(ctx context.Context, tenantID, itemID, locationID int64) (Level, error) {
	return tx.repo.GetLevel(ctx, tenantID, itemID, locationID)
}

func (tx *memoryTx) UpsertLevel(ctx context.Context, level Level) error {
	tx.repo.levels[levelTestKey(level.TenantID, level.ItemID, level.LocationID)] = level
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements[m.ID] = m
	tx.repo.order = append(tx.repo.order, m.ID)
	return m.ID, nil
}

func (tx *memoryTx) GetMovementForUpdate(ctx context.Context, tenantID, movementID int64) (Movement, error) {
	return tx.repo.GetMovement(ctx, tenantID, movementID)
}

func (tx *memoryTx) MarkMovementReversed(ctx context.Context, tenantID, movementID, reversedBy int64, reason string, at time.Time) error {
	m, ok := tx.repo.movements[movementID]
	if !ok || m.TenantID != tenantID {
		return ErrMovementNotFound
	}
	if m.IsReversed {
		return ErrMovementReversed
	}
	m.IsReversed = true
	m.ReversedBy = reversedBy
	m.ReversedAt = at
	m.ReverseReason = reason
	tx.repo.movements[movementID] = m
	return nil
}

func (tx *memoryTx) ItemExists(ctx context.Context, tenantID, itemID int64) (bool, error) {
	return tx.repo.items[itemID], nil
}

func (tx *memoryTx) LocationExists(ctx context.Context, tenantID, locationID int64) (bool, error) {
	return tx.repo.locations[locationID], nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil, ServiceConfig{})
}

func TestRecordMovementInboundAndOutbound(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, level, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 10, UnitCost: 100})
	require.NoError(t, err)
	require.InDelta(t, 10, level.Current, 1e-9)
	require.InDelta(t, 10, level.Available, 1e-9)
	require.InDelta(t, 100, level.UnitCost, 1e-9)

	_, level, err = svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 5, UnitCost: 130})
	require.NoError(t, err)
	require.InDelta(t, 15, level.Current, 1e-9)
	require.InDelta(t, 110, level.UnitCost, 1e-6)

	movement, level, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementOut, Quantity: 8})
	require.NoError(t, err)
	require.InDelta(t, -8, movement.Quantity, 1e-9)
	require.InDelta(t, 7, level.Current, 1e-9)
	require.InDelta(t, 7, level.Available, 1e-9)
}

func TestOutboundMovementPersistsAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 10, UnitCost: 25})
	require.NoError(t, err)

	// The stored outbound row carries the average cost, not the zero the
	// caller supplied, so the log alone reconstructs value.
	movement, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementOut, Quantity: 4})
	require.NoError(t, err)
	require.InDelta(t, 25, movement.UnitCost, 1e-9)
	require.InDelta(t, 25, repo.movements[movement.ID].UnitCost, 1e-9)
}

func TestRecordMovementInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementOut, Quantity: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.movements)
}

func TestRecordMovementUnknownReferences(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 99, LocationID: 1, Type: MovementIn, Quantity: 1})
	require.ErrorIs(t, err, ErrUnknownItem)

	_, _, err = svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 99, Type: MovementIn, Quantity: 1})
	require.ErrorIs(t, err, ErrUnknownLocation)
}

func TestAdjustmentBypassAllowsNegative(t *testing.T) {
	repo := newMemoryRepo()
	strict := newTestService(repo)
	ctx := context.Background()

	_, _, err := strict.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementAdjustment, Quantity: -3})
	require.ErrorIs(t, err, ErrInsufficientStock)

	relaxed := NewService(repo, nil, nil, nil, nil, ServiceConfig{AllowNegativeAdjustments: true})
	_, level, err := relaxed.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementAdjustment, Quantity: -3})
	require.NoError(t, err)
	require.InDelta(t, -3, level.Current, 1e-9)
}

func TestReverseMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	movement, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 10, UnitCost: 50})
	require.NoError(t, err)

	compensating, level, err := svc.ReverseMovement(ctx, 1, movement.ID, 7, "posted in error")
	require.NoError(t, err)
	require.InDelta(t, -10, compensating.Quantity, 1e-9)
	require.Equal(t, movement.ID, compensating.ReversalOf)
	require.InDelta(t, 0, level.Current, 1e-9)
	require.True(t, repo.movements[movement.ID].IsReversed)

	// Second reversal must fail without further ledger change.
	_, _, err = svc.ReverseMovement(ctx, 1, movement.ID, 7, "again")
	require.ErrorIs(t, err, ErrMovementReversed)
	stored, err := repo.GetLevel(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 0, stored.Current, 1e-9)
}

func TestMovementLogReconstructsLevel(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	inputs := []MovementInput{
		{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 100, UnitCost: 10},
		{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementOut, Quantity: 40},
		{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementReturn, Quantity: 5, UnitCost: 10},
		{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementAdjustment, Quantity: -2},
	}
	for _, input := range inputs {
		_, _, err := svc.RecordMovement(ctx, input)
		require.NoError(t, err)
	}

	movements, err := svc.ListMovements(ctx, MovementFilter{TenantID: 1, ItemID: 1, LocationID: 1})
	require.NoError(t, err)
	var sum float64
	for _, m := range movements {
		sum += m.Quantity
	}
	level, err := svc.GetLevel(ctx, 1, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, level.Current, sum, 1e-9)
	require.InDelta(t, 63, level.Current, 1e-9)
}

func TestLowStockProjection(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.UpdatePolicy(ctx, PolicyInput{TenantID: 1, ItemID: 1, LocationID: 1, ReorderPoint: 20}))
	_, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 5, UnitCost: 1})
	require.NoError(t, err)

	entries, err := svc.ListLowStock(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.InDelta(t, 5, entries[0].Available, 1e-9)
}

func TestValuationAggregatesAcrossLocations(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, _, err := svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 1, LocationID: 1, Type: MovementIn, Quantity: 10, UnitCost: 4})
	require.NoError(t, err)
	_, _, err = svc.RecordMovement(ctx, MovementInput{TenantID: 1, ItemID: 2, LocationID: 2, Type: MovementIn, Quantity: 3, UnitCost: 50})
	require.NoError(t, err)

	summary, err := svc.Valuation(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Items)
	require.InDelta(t, 13, summary.TotalQty, 1e-9)
	require.InDelta(t, 190, summary.TotalValue, 1e-9)
	require.Len(t, summary.Locations, 2)

	_, err = svc.Valuation(ctx, 0)
	require.Error(t, err)
}
