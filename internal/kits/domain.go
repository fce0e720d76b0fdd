package kits

import (
	"errors"
	"time"
)

// Kit is a named bundle of items prepared for a class of service work.
// Kits are templates: consuming or reserving one expands to a movement or
// hold per constituent item.
type Kit struct {
	ID              int64     `json:"id"`
	TenantID        int64     `json:"tenant_id"`
	Name            string    `json:"name"`
	KitType         string    `json:"kit_type,omitempty"`
	EquipmentType   string    `json:"equipment_type,omitempty"`
	MaintenanceType string    `json:"maintenance_type,omitempty"`
	EstimatedCost   float64   `json:"estimated_cost"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Items           []Item    `json:"items"`
}

// Item is one constituent of a kit. Optional items are expanded only when
// the caller selects them.
type Item struct {
	ID         int64   `json:"id"`
	KitID      int64   `json:"kit_id"`
	ItemID     int64   `json:"item_id"`
	Quantity   float64 `json:"quantity"`
	IsOptional bool    `json:"is_optional"`
	Priority   int     `json:"priority"`
}

// CreateInput carries the fields of a new kit template.
type CreateInput struct {
	TenantID        int64
	Name            string
	KitType         string
	EquipmentType   string
	MaintenanceType string
	EstimatedCost   float64
	ActorID         int64
	Items           []ItemInput
}

// ItemInput is one constituent in a kit definition.
type ItemInput struct {
	ItemID     int64
	Quantity   float64
	IsOptional bool
	Priority   int
}

// ExpandInput selects a kit for consumption or reservation at a location.
// Optional kit items are included only when listed in IncludeOptional.
type ExpandInput struct {
	TenantID        int64
	KitID           int64
	LocationID      int64
	ReferenceID     string
	IncludeOptional []int64
	ExpiresAt       *time.Time
	ActorID         int64
}

// ListFilters narrows kit listings.
type ListFilters struct {
	Page    int
	Limit   int
	KitType string
	Search  string
}

var (
	// ErrNotFound indicates an unknown kit id.
	ErrNotFound = errors.New("kits: not found")
	// ErrInactive indicates an expansion against a deactivated kit.
	ErrInactive = errors.New("kits: kit is deactivated")
	// ErrNoItems indicates a kit without constituents.
	ErrNoItems = errors.New("kits: at least one item is required")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("kits: invalid input")
	// ErrOptionalNotOnKit indicates a selected optional item that the kit does not carry.
	ErrOptionalNotOnKit = errors.New("kits: selected optional item is not on the kit")
)
