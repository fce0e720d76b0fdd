package kits

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives movement and reservation counters.
type MetricsPort interface {
	ObserveMovement(movementType string)
	ObserveReservationTransition(status string)
}

// Service manages kit templates and their expansion. Expansion is
// all-or-nothing: the first constituent short on stock rolls back the whole
// kit, so a ticket is never left half-equipped.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// Create registers a kit template.
func (s *Service) Create(ctx context.Context, input CreateInput) (Kit, error) {
	if input.TenantID == 0 {
		return Kit{}, shared.ErrTenantRequired
	}
	if strings.TrimSpace(input.Name) == "" {
		return Kit{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Kit{}, ErrNoItems
	}
	kit := Kit{
		TenantID:        input.TenantID,
		Name:            input.Name,
		KitType:         input.KitType,
		EquipmentType:   input.EquipmentType,
		MaintenanceType: input.MaintenanceType,
		EstimatedCost:   input.EstimatedCost,
	}
	for _, item := range input.Items {
		if item.ItemID <= 0 || item.Quantity <= 0 {
			return Kit{}, fmt.Errorf("%w: item and positive quantity required", ErrValidation)
		}
		kit.Items = append(kit.Items, Item{
			ItemID:     item.ItemID,
			Quantity:   item.Quantity,
			IsOptional: item.IsOptional,
			Priority:   item.Priority,
		})
	}
	created, err := s.repo.Create(ctx, kit)
	if err != nil {
		return Kit{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "kit:CREATE", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Consume expands the kit into an immediate outbound movement per selected
// constituent. The first item short on available stock fails the whole
// expansion; nothing is drawn.
func (s *Service) Consume(ctx context.Context, input ExpandInput) ([]stock.Movement, error) {
	if input.TenantID == 0 {
		return nil, shared.ErrTenantRequired
	}
	var movements []stock.Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		selected, err := s.expand(ctx, tx, input)
		if err != nil {
			return err
		}
		for _, item := range selected {
			movement := stock.Movement{
				TenantID:      input.TenantID,
				ItemID:        item.ItemID,
				LocationID:    input.LocationID,
				Type:          stock.MovementOut,
				Quantity:      -item.Quantity,
				ReferenceType: "service_kit",
				ReferenceID:   input.ReferenceID,
				ActorID:       input.ActorID,
			}
			posted, _, err := stock.PostMovementTx(ctx, tx, movement, false)
			if err != nil {
				return fmt.Errorf("item %d: %w", item.ItemID, err)
			}
			movements = append(movements, posted)
			if s.metrics != nil {
				s.metrics.ObserveMovement(string(stock.MovementOut))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "kit:CONSUME", input.KitID, map[string]any{
		"location_id": input.LocationID, "reference_id": input.ReferenceID, "items": len(movements),
	})
	return movements, nil
}

// Reserve expands the kit into one hold per selected constituent. The first
// item short on available stock fails the whole expansion; no reservation is
// left behind.
func (s *Service) Reserve(ctx context.Context, input ExpandInput) ([]reservations.Reservation, error) {
	if input.TenantID == 0 {
		return nil, shared.ErrTenantRequired
	}
	var created []reservations.Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		selected, err := s.expand(ctx, tx, input)
		if err != nil {
			return err
		}
		for _, item := range selected {
			if _, err := stock.HoldTx(ctx, tx, input.TenantID, item.ItemID, input.LocationID, item.Quantity); err != nil {
				return fmt.Errorf("item %d: %w", item.ItemID, err)
			}
			reservation := reservations.Reservation{
				TenantID:    input.TenantID,
				ItemID:      item.ItemID,
				LocationID:  input.LocationID,
				Type:        reservations.TypeServiceOrder,
				ReferenceID: input.ReferenceID,
				ReservedQty: item.Quantity,
				Status:      reservations.StatusActive,
				ExpiresAt:   input.ExpiresAt,
				CreatedBy:   input.ActorID,
			}
			reservation.ID, err = tx.InsertReservation(ctx, reservation)
			if err != nil {
				return err
			}
			created = append(created, reservation)
			if s.metrics != nil {
				s.metrics.ObserveReservationTransition(string(reservations.StatusActive))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "kit:RESERVE", input.KitID, map[string]any{
		"location_id": input.LocationID, "reference_id": input.ReferenceID, "items": len(created),
	})
	return created, nil
}

// expand loads the kit and selects its non-optional items plus the explicitly
// included optional ones.
func (s *Service) expand(ctx context.Context, tx TxRepository, input ExpandInput) ([]Item, error) {
	ok, err := tx.LocationExists(ctx, input.TenantID, input.LocationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", stock.ErrUnknownLocation, input.LocationID)
	}
	kit, err := tx.GetKit(ctx, input.TenantID, input.KitID)
	if err != nil {
		return nil, err
	}
	if !kit.IsActive {
		return nil, ErrInactive
	}

	optional := make(map[int64]bool, len(input.IncludeOptional))
	for _, id := range input.IncludeOptional {
		optional[id] = true
	}
	var selected []Item
	for _, item := range kit.Items {
		if item.IsOptional && !optional[item.ItemID] {
			continue
		}
		delete(optional, item.ItemID)
		selected = append(selected, item)
	}
	for id := range optional {
		return nil, fmt.Errorf("%w: %d", ErrOptionalNotOnKit, id)
	}
	if len(selected) == 0 {
		return nil, ErrNoItems
	}
	return selected, nil
}

// Get fetches one kit with its items.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Kit, error) {
	if tenantID == 0 {
		return Kit{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns kits matching the filters with a total count.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Kit, int, error) {
	if tenantID == 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, filters)
}

// Deactivate soft-disables a kit template.
func (s *Service) Deactivate(ctx context.Context, tenantID, id, actorID int64) error {
	if tenantID == 0 {
		return shared.ErrTenantRequired
	}
	if err := s.repo.SetActive(ctx, tenantID, id, false); err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, actorID, "kit:DEACTIVATE", id, nil)
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
		Entity:   "service_kit",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
