package stock

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (receiving, manual entry).
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement (consumption).
	MovementOut MovementType = "OUT"
	// MovementTransfer marks the legs of an inter-location transfer.
	MovementTransfer MovementType = "TRANSFER"
	// MovementAdjustment indicates count reconciliation or manual adjustments.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReturn represents goods coming back from a ticket or customer.
	MovementReturn MovementType = "RETURN"
)

// Level summarises on-hand stock for one item at one location.
// Available is always Current minus Reserved; the row is mutated only through
// the movement log and reservation holds, never directly.
type Level struct {
	TenantID       int64     `json:"tenant_id"`
	ItemID         int64     `json:"item_id"`
	LocationID     int64     `json:"location_id"`
	Current        float64   `json:"current_qty"`
	Reserved       float64   `json:"reserved_qty"`
	Available      float64   `json:"available_qty"`
	MinimumLevel   float64   `json:"minimum_level"`
	MaximumLevel   float64   `json:"maximum_level"`
	ReorderPoint   float64   `json:"reorder_point"`
	EconomicOrder  float64   `json:"economic_order_qty"`
	UnitCost       float64   `json:"unit_cost"`
	TotalValue     float64   `json:"total_value"`
	LastMovementAt time.Time `json:"last_movement_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Movement is an immutable, append-only ledger record. Reversal annotates the
// original row and posts a compensating movement; history is never rewritten.
type Movement struct {
	ID            int64        `json:"id"`
	TenantID      int64        `json:"tenant_id"`
	ItemID        int64        `json:"item_id"`
	LocationID    int64        `json:"location_id"`
	Type          MovementType `json:"type"`
	Quantity      float64      `json:"quantity"` // signed: positive into the location, negative out
	UnitCost      float64      `json:"unit_cost"`
	ReferenceType string       `json:"reference_type,omitempty"`
	ReferenceID   string       `json:"reference_id,omitempty"`
	Note          string       `json:"note,omitempty"`
	ActorID       int64        `json:"actor_id"`
	ApprovedBy    int64        `json:"approved_by,omitempty"`
	ApprovedAt    time.Time    `json:"approved_at"`
	IsReversed    bool         `json:"is_reversed"`
	ReversedBy    int64        `json:"reversed_by,omitempty"`
	ReversedAt    time.Time    `json:"reversed_at"`
	ReverseReason string       `json:"reverse_reason,omitempty"`
	ReversalOf    int64        `json:"reversal_of,omitempty"`
	PostedAt      time.Time    `json:"posted_at"`
}

// MovementInput describes a request to post a movement.
type MovementInput struct {
	TenantID      int64
	ItemID        int64
	LocationID    int64
	Type          MovementType
	Quantity      float64 // positive magnitude; ADJUSTMENT may be signed
	UnitCost      float64
	ReferenceType string
	ReferenceID   string
	Note          string
	ActorID       int64
	ApprovedBy    int64
}

// PolicyInput updates replenishment thresholds on a level row.
type PolicyInput struct {
	TenantID      int64
	ItemID        int64
	LocationID    int64
	MinimumLevel  float64
	MaximumLevel  float64
	ReorderPoint  float64
	EconomicOrder float64
	ActorID       int64
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	TenantID   int64
	ItemID     int64
	LocationID int64
	Type       MovementType
	From       time.Time
	To         time.Time
	Limit      int
}

// LowStockEntry is a read-only projection row for replenishment dashboards.
type LowStockEntry struct {
	ItemID        int64   `json:"item_id"`
	LocationID    int64   `json:"location_id"`
	Available     float64 `json:"available_qty"`
	ReorderPoint  float64 `json:"reorder_point"`
	EconomicOrder float64 `json:"economic_order_qty"`
}

// LowStockAlert is a cross-tenant projection row used by the periodic scan.
type LowStockAlert struct {
	TenantID int64
	Entry    LowStockEntry
}

// ValuationEntry aggregates the levels held at one location.
type ValuationEntry struct {
	LocationID int64   `json:"location_id"`
	Items      int     `json:"items"`
	TotalQty   float64 `json:"total_qty"`
	TotalValue float64 `json:"total_value"`
}

// ValuationSummary is the tenant-wide stock valuation projection.
type ValuationSummary struct {
	Items      int              `json:"items"`
	TotalQty   float64          `json:"total_qty"`
	TotalValue float64          `json:"total_value"`
	Locations  []ValuationEntry `json:"locations"`
}

var (
	// ErrInsufficientStock triggered when an outbound movement would drive
	// the on-hand quantity below zero.
	ErrInsufficientStock = errors.New("stock: insufficient quantity on hand")
	// ErrInsufficientAvailable triggered when a hold exceeds the available
	// (unreserved) quantity.
	ErrInsufficientAvailable = errors.New("stock: insufficient available quantity")
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative cost value.
	ErrInvalidUnitCost = errors.New("stock: unit cost must be >= 0")
	// ErrUnknownItem indicates the referenced item does not exist.
	ErrUnknownItem = errors.New("stock: unknown item")
	// ErrUnknownLocation indicates the referenced location does not exist.
	ErrUnknownLocation = errors.New("stock: unknown location")
	// ErrMovementNotFound indicates the movement row is missing.
	ErrMovementNotFound = errors.New("stock: movement not found")
	// ErrMovementReversed indicates a reversal was attempted twice.
	ErrMovementReversed = errors.New("stock: movement already reversed")
	// ErrReleaseExceedsHold indicates a hold release larger than the hold.
	ErrReleaseExceedsHold = errors.New("stock: release exceeds reserved quantity")
)
