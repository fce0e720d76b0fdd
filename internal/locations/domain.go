package locations

import (
	"errors"
	"time"
)

// LocationType enumerates supported location kinds.
type LocationType string

const (
	// TypeFixed is a regular warehouse or storeroom.
	TypeFixed LocationType = "FIXED"
	// TypeMobile is a technician vehicle or field kit.
	TypeMobile LocationType = "MOBILE"
	// TypeVirtual groups stock without a physical site (e.g. in-repair).
	TypeVirtual LocationType = "VIRTUAL"
	// TypeConsignment holds supplier-owned stock at a customer site.
	TypeConsignment LocationType = "CONSIGNMENT"
)

// Location is a physical, mobile or virtual stock site. Locations are never
// hard-deleted while movements or levels reference them; deactivation flips
// IsActive instead.
type Location struct {
	ID          int64        `json:"id"`
	TenantID    int64        `json:"tenant_id"`
	Name        string       `json:"name"`
	Code        string       `json:"code"`
	Type        LocationType `json:"type"`
	Address     string       `json:"address,omitempty"`
	Latitude    float64      `json:"latitude,omitempty"`
	Longitude   float64      `json:"longitude,omitempty"`
	ManagerID   int64        `json:"manager_id,omitempty"`
	Capacity    float64      `json:"capacity,omitempty"`
	Occupancy   float64      `json:"occupancy,omitempty"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ListFilters narrows location listings.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	Type     LocationType
	IsActive *bool
}

var (
	// ErrNotFound indicates the location row is missing.
	ErrNotFound = errors.New("locations: not found")
	// ErrDuplicateCode indicates the code is already used within the tenant.
	ErrDuplicateCode = errors.New("locations: code already in use")
	// ErrInactive indicates an operation against a deactivated location.
	ErrInactive = errors.New("locations: location is deactivated")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("locations: invalid input")
)

func validTypes() map[LocationType]bool {
	return map[LocationType]bool{TypeFixed: true, TypeMobile: true, TypeVirtual: true, TypeConsignment: true}
}
