package locations

import (
	"context"
	"fmt"
	"strings"

	"github.com/conductor-hq/conductor-stock/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes registry operations over locations.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService constructs the registry service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns locations matching the filters with a total count.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Location, int, error) {
	if tenantID == 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	return s.repo.List(ctx, tenantID, filters)
}

// Get fetches one location.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Location, error) {
	if tenantID == 0 {
		return Location{}, shared.ErrTenantRequired
	}
	if id <= 0 {
		return Location{}, fmt.Errorf("%w: invalid id", ErrValidation)
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Create registers a new location, active by default.
func (s *Service) Create(ctx context.Context, location Location, actorID int64) (Location, error) {
	if location.TenantID == 0 {
		return Location{}, shared.ErrTenantRequired
	}
	if err := s.validate(location); err != nil {
		return Location{}, err
	}
	created, err := s.repo.Create(ctx, location)
	if err != nil {
		return Location{}, err
	}
	s.recordAudit(ctx, created.TenantID, actorID, "location:CREATE", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

// Update edits registry fields of an existing location.
func (s *Service) Update(ctx context.Context, location Location, actorID int64) error {
	if location.TenantID == 0 {
		return shared.ErrTenantRequired
	}
	if location.ID <= 0 {
		return fmt.Errorf("%w: invalid id", ErrValidation)
	}
	if err := s.validate(location); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, location); err != nil {
		return err
	}
	s.recordAudit(ctx, location.TenantID, actorID, "location:UPDATE", location.ID, map[string]any{"code": location.Code})
	return nil
}

// Deactivate soft-disables a location. Existing levels and movements keep
// their references; new movements against the location are rejected.
func (s *Service) Deactivate(ctx context.Context, tenantID, id, actorID int64) error {
	if tenantID == 0 {
		return shared.ErrTenantRequired
	}
	if err := s.repo.SetActive(ctx, tenantID, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "location:DEACTIVATE", id, nil)
	return nil
}

// Reactivate re-enables a deactivated location.
func (s *Service) Reactivate(ctx context.Context, tenantID, id, actorID int64) error {
	if tenantID == 0 {
		return shared.ErrTenantRequired
	}
	if err := s.repo.SetActive(ctx, tenantID, id, true); err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "location:REACTIVATE", id, nil)
	return nil
}

func (s *Service) validate(location Location) error {
	if strings.TrimSpace(location.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(location.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	if !validTypes()[location.Type] {
		return fmt.Errorf("%w: unknown location type %q", ErrValidation, location.Type)
	}
	if location.Capacity < 0 || location.Occupancy < 0 {
		return fmt.Errorf("%w: capacity and occupancy must be >= 0", ErrValidation)
	}
	if location.Capacity > 0 && location.Occupancy > location.Capacity {
		return fmt.Errorf("%w: occupancy exceeds capacity", ErrValidation)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_location",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
