package stock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireInvariants(t *testing.T, level Level) {
	t.Helper()
	require.InDelta(t, level.Current-level.Reserved, level.Available, 1e-9)
	require.GreaterOrEqual(t, level.Current, -1e-9)
	require.GreaterOrEqual(t, level.Reserved, -1e-9)
	require.LessOrEqual(t, level.Reserved, level.Current+1e-9)
}

func TestHoldConsumeCancelScenario(t *testing.T) {
	now := time.Now().UTC()
	level := Level{TenantID: 1, ItemID: 1, LocationID: 1}
	require.NoError(t, Apply(&level, 100, 10, MovementIn, now, false))
	requireInvariants(t, level)

	// Reserve 30: available drops, current untouched.
	require.NoError(t, Hold(&level, 30))
	require.InDelta(t, 100, level.Current, 1e-9)
	require.InDelta(t, 30, level.Reserved, 1e-9)
	require.InDelta(t, 70, level.Available, 1e-9)
	requireInvariants(t, level)

	// Consume 20 of the hold: stock leaves, available unchanged.
	require.NoError(t, Consume(&level, 20, now))
	require.InDelta(t, 80, level.Current, 1e-9)
	require.InDelta(t, 10, level.Reserved, 1e-9)
	require.InDelta(t, 70, level.Available, 1e-9)
	requireInvariants(t, level)

	// Cancel the remaining 10: available restored to on-hand.
	require.NoError(t, Release(&level, 10))
	require.InDelta(t, 0, level.Reserved, 1e-9)
	require.InDelta(t, 80, level.Available, 1e-9)
	requireInvariants(t, level)
}

func TestHoldBeyondAvailableFails(t *testing.T) {
	now := time.Now().UTC()
	level := Level{}
	require.NoError(t, Apply(&level, 80, 5, MovementIn, now, false))

	before := level
	require.ErrorIs(t, Hold(&level, 150), ErrInsufficientAvailable)
	require.Equal(t, before, level)
}

func TestOutboundCannotTouchReservedStock(t *testing.T) {
	now := time.Now().UTC()
	level := Level{}
	require.NoError(t, Apply(&level, 50, 5, MovementIn, now, false))
	require.NoError(t, Hold(&level, 40))

	// Only 10 available; an unreserved draw of 20 must fail.
	require.ErrorIs(t, Apply(&level, -20, 0, MovementOut, now, false), ErrInsufficientAvailable)
	require.NoError(t, Apply(&level, -10, 0, MovementOut, now, false))
	requireInvariants(t, level)
}

func TestReleaseExceedsHold(t *testing.T) {
	level := Level{Current: 10, Reserved: 5, Available: 5}
	require.ErrorIs(t, Release(&level, 8), ErrReleaseExceedsHold)
}

func TestMovingAverageCost(t *testing.T) {
	now := time.Now().UTC()
	level := Level{}
	require.NoError(t, Apply(&level, 10, 100, MovementIn, now, false))
	require.NoError(t, Apply(&level, 5, 130, MovementIn, now, false))
	require.InDelta(t, 110, level.UnitCost, 1e-6)
	require.InDelta(t, 15*110, level.TotalValue, 1e-6)

	require.NoError(t, Apply(&level, -15, 0, MovementOut, now, false))
	require.InDelta(t, 0, level.Current, 1e-9)
	require.InDelta(t, 0, level.UnitCost, 1e-9)
}

func TestZeroQuantityRejected(t *testing.T) {
	level := Level{}
	require.ErrorIs(t, Apply(&level, 0, 0, MovementIn, time.Now(), false), ErrInvalidQuantity)
	require.ErrorIs(t, Hold(&level, 0), ErrInvalidQuantity)
	require.ErrorIs(t, Release(&level, 0), ErrInvalidQuantity)
}
