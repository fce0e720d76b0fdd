package reservations

import (
	"errors"
	"time"
)

// Type classifies what a reservation backs.
type Type string

const (
	TypeServiceOrder Type = "service_order"
	TypeProject      Type = "project"
	TypeCustomer     Type = "customer"
	TypeInternal     Type = "internal"
)

// Status is the reservation lifecycle state. active is the only non-terminal
// state; consumed, cancelled and expired are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusConsumed  Status = "consumed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusConsumed || s == StatusCancelled || s == StatusExpired
}

// Reservation is a hold of quantity against a future consumption. It reduces
// the level's available quantity without moving stock; consumption converts
// the held portion into an outbound movement.
type Reservation struct {
	ID          int64      `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	ItemID      int64      `json:"item_id"`
	LocationID  int64      `json:"location_id"`
	Type        Type       `json:"type"`
	ReferenceID string     `json:"reference_id,omitempty"`
	ReservedQty float64    `json:"reserved_qty"`
	ConsumedQty float64    `json:"consumed_qty"`
	Status      Status     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedBy   int64      `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Remaining is the unconsumed portion still held against the level.
func (r Reservation) Remaining() float64 {
	return r.ReservedQty - r.ConsumedQty
}

// ReserveInput carries the fields of a new reservation.
type ReserveInput struct {
	TenantID    int64
	ItemID      int64
	LocationID  int64
	Type        Type
	ReferenceID string
	Quantity    float64
	ExpiresAt   *time.Time
	ActorID     int64
}

// ListFilters narrows reservation listings.
type ListFilters struct {
	Page        int
	Limit       int
	ItemID      int64
	LocationID  int64
	Status      Status
	Type        Type
	ReferenceID string
}

var (
	// ErrNotFound indicates an unknown reservation id.
	ErrNotFound = errors.New("reservations: not found")
	// ErrInvalidTransition indicates an operation against a terminal reservation.
	ErrInvalidTransition = errors.New("reservations: invalid state transition")
	// ErrConsumeExceedsRemaining indicates consume quantity above the unconsumed hold.
	ErrConsumeExceedsRemaining = errors.New("reservations: consume exceeds remaining quantity")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("reservations: quantity must be positive")
	// ErrInvalidType indicates an unknown reservation type.
	ErrInvalidType = errors.New("reservations: unknown reservation type")
	// ErrExpiryInPast indicates an expiry not in the future.
	ErrExpiryInPast = errors.New("reservations: expiry must be in the future")
)

func validTypes() map[Type]bool {
	return map[Type]bool{TypeServiceOrder: true, TypeProject: true, TypeCustomer: true, TypeInternal: true}
}
