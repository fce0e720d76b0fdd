package counts

import (
	"errors"
	"time"
)

// Type classifies the count scope.
type Type string

const (
	// TypeFull counts every item held at the location.
	TypeFull Type = "full"
	// TypeCycle counts a planned rotating subset.
	TypeCycle Type = "cycle"
	// TypeSpot is an ad hoc check of specific items.
	TypeSpot Type = "spot"
)

// Status is the inventory lifecycle state.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Inventory is one physical count session at a location. Planning snapshots
// the system quantities; counting fills in the observed ones; approval emits
// adjustment movements for the variances and completes the session.
type Inventory struct {
	ID                 int64      `json:"id"`
	TenantID           int64      `json:"tenant_id"`
	LocationID         int64      `json:"location_id"`
	Type               Type       `json:"type"`
	Status             Status     `json:"status"`
	TotalItemsPlanned  int        `json:"total_items_planned"`
	TotalItemsCounted  int        `json:"total_items_counted"`
	TotalDiscrepancies int        `json:"total_discrepancies"`
	PlannedBy          int64      `json:"planned_by,omitempty"`
	ApprovedBy         int64      `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Counts             []Count    `json:"counts"`
}

// Count is one item line in an inventory. SystemQty is the ledger quantity
// snapshotted at planning time; Variance is CountedQty minus SystemQty once
// counted.
type Count struct {
	ID              int64      `json:"id"`
	InventoryID     int64      `json:"inventory_id"`
	ItemID          int64      `json:"item_id"`
	SystemQty       float64    `json:"system_qty"`
	CountedQty      *float64   `json:"counted_qty,omitempty"`
	Variance        float64    `json:"variance"`
	VariancePercent float64    `json:"variance_percent"`
	IsAdjusted      bool       `json:"is_adjusted"`
	CountedBy       int64      `json:"counted_by,omitempty"`
	CountedAt       *time.Time `json:"counted_at,omitempty"`
}

// Counted reports whether the line has an observed quantity recorded.
func (c Count) Counted() bool {
	return c.CountedQty != nil
}

// PlanInput carries the fields of a new inventory plan.
type PlanInput struct {
	TenantID   int64
	LocationID int64
	Type       Type
	ItemIDs    []int64
	ActorID    int64
}

// ListFilters narrows inventory listings.
type ListFilters struct {
	Page       int
	Limit      int
	LocationID int64
	Status     Status
	Type       Type
}

var (
	// ErrNotFound indicates an unknown inventory id.
	ErrNotFound = errors.New("counts: inventory not found")
	// ErrCountNotFound indicates the item is not on the inventory.
	ErrCountNotFound = errors.New("counts: item is not planned on this inventory")
	// ErrInvalidTransition indicates an operation not valid in the current state.
	ErrInvalidTransition = errors.New("counts: invalid state transition")
	// ErrIncompleteCount indicates approval before all planned lines are counted.
	ErrIncompleteCount = errors.New("counts: not all planned items have been counted")
	// ErrNoItems indicates a plan without items.
	ErrNoItems = errors.New("counts: at least one item is required")
	// ErrInvalidType indicates an unknown count type.
	ErrInvalidType = errors.New("counts: unknown count type")
	// ErrNegativeQuantity indicates a negative counted quantity.
	ErrNegativeQuantity = errors.New("counts: counted quantity cannot be negative")
)

func validTypes() map[Type]bool {
	return map[Type]bool{TypeFull: true, TypeCycle: true, TypeSpot: true}
}
