package stock

import (
	"context"
	"fmt"
	"time"
)

// PostMovementTx posts one movement inside a caller-held transaction: the
// referenced rows are checked, the level row is locked and recomputed, and
// the immutable movement row is appended. Quantity on the input movement is
// already signed. Modules that fold movements into their own unit of work
// (reservations, transfers, counts, kits) call this against their embedded
// TxLedger so ledger and module rows commit together.
func PostMovementTx(ctx context.Context, tx TxLedger, m Movement, allowNegativeAdjustment bool) (Movement, Level, error) {
	ok, err := tx.ItemExists(ctx, m.TenantID, m.ItemID)
	if err != nil {
		return Movement{}, Level{}, err
	}
	if !ok {
		return Movement{}, Level{}, fmt.Errorf("%w: %d", ErrUnknownItem, m.ItemID)
	}
	ok, err = tx.LocationExists(ctx, m.TenantID, m.LocationID)
	if err != nil {
		return Movement{}, Level{}, err
	}
	if !ok {
		return Movement{}, Level{}, fmt.Errorf("%w: %d", ErrUnknownLocation, m.LocationID)
	}

	level, err := tx.GetLevelForUpdate(ctx, m.TenantID, m.ItemID, m.LocationID)
	if err != nil && err != ErrLevelNotFound {
		return Movement{}, Level{}, err
	}
	if m.PostedAt.IsZero() {
		m.PostedAt = time.Now().UTC()
	}
	avgCost := level.UnitCost
	if err := Apply(&level, m.Quantity, m.UnitCost, m.Type, m.PostedAt, allowNegativeAdjustment); err != nil {
		return Movement{}, Level{}, err
	}
	// Outbound rows carry the average cost in force before the draw, so the
	// append-only log reconstructs value without the level row.
	if m.Quantity < 0 && m.UnitCost == 0 {
		m.UnitCost = avgCost
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, Level{}, err
	}
	m.ID = id
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return Movement{}, Level{}, err
	}
	return m, level, nil
}

// HoldTx reserves quantity against the level row inside a caller-held
// transaction. No movement is recorded; only Reserved and Available change.
func HoldTx(ctx context.Context, tx TxLedger, tenantID, itemID, locationID int64, qty float64) (Level, error) {
	level, err := tx.GetLevelForUpdate(ctx, tenantID, itemID, locationID)
	if err != nil && err != ErrLevelNotFound {
		return Level{}, err
	}
	if err := Hold(&level, qty); err != nil {
		return Level{}, err
	}
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return Level{}, err
	}
	return level, nil
}

// ReleaseTx returns an unconsumed hold back to Available.
func ReleaseTx(ctx context.Context, tx TxLedger, tenantID, itemID, locationID int64, qty float64) (Level, error) {
	level, err := tx.GetLevelForUpdate(ctx, tenantID, itemID, locationID)
	if err != nil {
		return Level{}, err
	}
	if err := Release(&level, qty); err != nil {
		return Level{}, err
	}
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return Level{}, err
	}
	return level, nil
}

// ConsumeTx converts a held quantity into an outbound movement: the hold is
// released and an OUT movement for the same quantity is appended, all on the
// locked level row. m.Quantity carries the positive consumed magnitude.
func ConsumeTx(ctx context.Context, tx TxLedger, m Movement) (Movement, Level, error) {
	level, err := tx.GetLevelForUpdate(ctx, m.TenantID, m.ItemID, m.LocationID)
	if err != nil {
		return Movement{}, Level{}, err
	}
	if m.PostedAt.IsZero() {
		m.PostedAt = time.Now().UTC()
	}
	qty := m.Quantity
	avgCost := level.UnitCost
	if err := Consume(&level, qty, m.PostedAt); err != nil {
		return Movement{}, Level{}, err
	}
	m.Type = MovementOut
	m.Quantity = -qty
	if m.UnitCost == 0 {
		m.UnitCost = avgCost
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, Level{}, err
	}
	m.ID = id
	if err := tx.UpsertLevel(ctx, level); err != nil {
		return Movement{}, Level{}, err
	}
	return m, level, nil
}
