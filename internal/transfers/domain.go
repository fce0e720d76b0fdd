package transfers

import (
	"errors"
	"time"
)

// Status is the transfer workflow state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Transfer moves stock between two locations through a gated workflow:
// request holds the quantities at the source, ship posts the outbound legs,
// receive posts the inbound legs and completes once every line is fully
// received.
type Transfer struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	TransferNumber string     `json:"transfer_number"`
	FromLocationID int64      `json:"from_location_id"`
	ToLocationID   int64      `json:"to_location_id"`
	Status         Status     `json:"status"`
	Note           string     `json:"note,omitempty"`
	RequestedBy    int64      `json:"requested_by,omitempty"`
	ApprovedBy     int64      `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	ShippedBy      int64      `json:"shipped_by,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	ReceivedBy     int64      `json:"received_by,omitempty"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Lines          []Line     `json:"lines"`
}

// Line is one item on a transfer. ReceivedQty never exceeds ShippedQty, and
// ShippedQty never exceeds RequestedQty.
type Line struct {
	ID           int64   `json:"id"`
	TransferID   int64   `json:"transfer_id"`
	ItemID       int64   `json:"item_id"`
	RequestedQty float64 `json:"requested_qty"`
	ShippedQty   float64 `json:"shipped_qty"`
	ReceivedQty  float64 `json:"received_qty"`
	UnitCost     float64 `json:"unit_cost"`
}

// RequestInput carries the fields of a new transfer request.
type RequestInput struct {
	TenantID       int64
	FromLocationID int64
	ToLocationID   int64
	Note           string
	ActorID        int64
	Lines          []RequestLine
}

// RequestLine is one requested item and quantity.
type RequestLine struct {
	ItemID   int64
	Quantity float64
}

// LineQuantity addresses a line by item for ship and receive calls.
type LineQuantity struct {
	ItemID   int64
	Quantity float64
}

// ListFilters narrows transfer listings.
type ListFilters struct {
	Page           int
	Limit          int
	Status         Status
	FromLocationID int64
	ToLocationID   int64
}

var (
	// ErrNotFound indicates an unknown transfer id.
	ErrNotFound = errors.New("transfers: not found")
	// ErrInvalidTransition indicates an operation not valid in the current state.
	ErrInvalidTransition = errors.New("transfers: invalid state transition")
	// ErrSameLocation indicates source and destination are equal.
	ErrSameLocation = errors.New("transfers: source and destination must differ")
	// ErrNoLines indicates a request without lines.
	ErrNoLines = errors.New("transfers: at least one line is required")
	// ErrLineQuantity indicates a non-positive line quantity.
	ErrLineQuantity = errors.New("transfers: line quantity must be positive")
	// ErrUnknownLine indicates a ship/receive quantity for an item not on the transfer.
	ErrUnknownLine = errors.New("transfers: item is not on the transfer")
	// ErrShipExceedsRequested indicates a shipped quantity above the requested one.
	ErrShipExceedsRequested = errors.New("transfers: shipped quantity exceeds requested")
	// ErrReceiveExceedsShipped indicates a received quantity above the shipped one.
	ErrReceiveExceedsShipped = errors.New("transfers: received quantity exceeds shipped")
	// ErrNotApproved indicates shipping before approval.
	ErrNotApproved = errors.New("transfers: transfer is not approved")
)
