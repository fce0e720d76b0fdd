package stock

import (
	"math"
	"time"
)

// qtyEpsilon absorbs float drift when comparing quantities.
const qtyEpsilon = 1e-6

// QtyExceeds reports whether qty is greater than bound by more than float
// drift. Limit checks against a fractional remainder use this instead of a
// raw > so drawing the exact remainder passes.
func QtyExceeds(qty, bound float64) bool {
	return qty > bound+qtyEpsilon
}

// QtyDepleted reports whether a remaining quantity has reached zero within
// float drift.
func QtyDepleted(qty float64) bool {
	return qty < qtyEpsilon
}

// Apply posts a signed quantity change onto a level row and recomputes the
// derived fields. Inbound deltas fold the unit cost into a moving average;
// outbound deltas are priced at the current average. The caller holds the row
// lock and persists the result in the same transaction as the movement row.
//
// Outbound deltas may only draw from the available (unreserved) portion, so
// Reserved <= Current survives every movement. Adjustments bypass both floor
// checks when allowNegativeAdjustment is set, which reconciliation counts use
// to record shrinkage past a stale reservation.
func Apply(level *Level, delta, unitCost float64, typ MovementType, postedAt time.Time, allowNegativeAdjustment bool) error {
	if math.Abs(delta) < qtyEpsilon {
		return ErrInvalidQuantity
	}
	if unitCost < 0 {
		return ErrInvalidUnitCost
	}
	newCurrent := level.Current + delta
	if delta < 0 {
		bypass := typ == MovementAdjustment && allowNegativeAdjustment
		if !bypass {
			if newCurrent < -qtyEpsilon {
				return ErrInsufficientStock
			}
			if newCurrent < level.Reserved-qtyEpsilon {
				return ErrInsufficientAvailable
			}
		}
		if math.Abs(newCurrent) < qtyEpsilon {
			newCurrent = 0
		}
		if newCurrent <= 0 {
			level.UnitCost = 0
		}
	} else {
		totalCost := level.Current*level.UnitCost + delta*unitCost
		if newCurrent > qtyEpsilon {
			level.UnitCost = totalCost / newCurrent
		}
	}
	level.Current = newCurrent
	level.Available = level.Current - level.Reserved
	level.TotalValue = level.Current * level.UnitCost
	level.LastMovementAt = postedAt
	return nil
}

// Hold reserves quantity against future consumption without moving stock.
// The hold reduces Available only; Current is untouched.
func Hold(level *Level, qty float64) error {
	if qty < qtyEpsilon {
		return ErrInvalidQuantity
	}
	if qty > level.Available+qtyEpsilon {
		return ErrInsufficientAvailable
	}
	level.Reserved += qty
	level.Available = level.Current - level.Reserved
	return nil
}

// Release returns an unconsumed hold back to Available.
func Release(level *Level, qty float64) error {
	if qty < qtyEpsilon {
		return ErrInvalidQuantity
	}
	if qty > level.Reserved+qtyEpsilon {
		return ErrReleaseExceedsHold
	}
	level.Reserved -= qty
	if math.Abs(level.Reserved) < qtyEpsilon {
		level.Reserved = 0
	}
	level.Available = level.Current - level.Reserved
	return nil
}

// Consume turns a held quantity into an outbound movement: the hold is
// released and the same quantity leaves Current, so Available is unchanged by
// construction.
func Consume(level *Level, qty float64, postedAt time.Time) error {
	if err := Release(level, qty); err != nil {
		return err
	}
	return Apply(level, -qty, 0, MovementOut, postedAt, false)
}
