package stock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/conductor-hq/conductor-stock/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives movement counters.
type MetricsPort interface {
	ObserveMovement(movementType string)
}

// Service coordinates ledger and movement-log operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	cache       *LevelCache
	allowNeg    bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeAdjustments bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, cache *LevelCache, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, cache: cache, allowNeg: cfg.AllowNegativeAdjustments}
}

// RecordMovement validates and posts a movement, adjusting the level row in
// the same transaction. IN and RETURN add stock, OUT draws from the available
// portion, ADJUSTMENT carries its own sign. TRANSFER legs are posted by the
// transfers module and rejected here.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (Movement, Level, error) {
	if input.TenantID == 0 {
		return Movement{}, Level{}, shared.ErrTenantRequired
	}
	if input.ItemID == 0 || input.LocationID == 0 {
		return Movement{}, Level{}, errors.New("stock: item and location required")
	}
	if input.UnitCost < 0 {
		return Movement{}, Level{}, ErrInvalidUnitCost
	}

	var delta float64
	switch input.Type {
	case MovementIn, MovementReturn:
		if input.Quantity <= 0 {
			return Movement{}, Level{}, ErrInvalidQuantity
		}
		delta = input.Quantity
	case MovementOut:
		if input.Quantity <= 0 {
			return Movement{}, Level{}, ErrInvalidQuantity
		}
		delta = -input.Quantity
	case MovementAdjustment:
		if math.Abs(input.Quantity) < qtyEpsilon {
			return Movement{}, Level{}, ErrInvalidQuantity
		}
		delta = input.Quantity
	default:
		return Movement{}, Level{}, fmt.Errorf("stock: unsupported movement type %q", input.Type)
	}

	movement := Movement{
		TenantID:      input.TenantID,
		ItemID:        input.ItemID,
		LocationID:    input.LocationID,
		Type:          input.Type,
		Quantity:      delta,
		UnitCost:      input.UnitCost,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Note:          input.Note,
		ActorID:       input.ActorID,
		ApprovedBy:    input.ApprovedBy,
		PostedAt:      time.Now().UTC(),
	}
	if input.ApprovedBy != 0 {
		movement.ApprovedAt = movement.PostedAt
	}

	insertedKey := ""
	if s.idempotency != nil && input.ReferenceID != "" {
		key := fmt.Sprintf("%s:%s:%s:%d:%d", input.Type, input.ReferenceType, input.ReferenceID, input.ItemID, input.LocationID)
		if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
			return Movement{}, Level{}, err
		}
		insertedKey = key
	}

	var level Level
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		var err error
		movement, level, err = PostMovementTx(ctx, tx, movement, s.allowNeg)
		return err
	})
	if err != nil {
		if insertedKey != "" {
			_ = s.idempotency.Delete(ctx, insertedKey)
		}
		return Movement{}, Level{}, err
	}
	s.afterWrite(ctx, movement, "stock:"+string(movement.Type))
	return movement, level, nil
}

// ReverseMovement posts a compensating movement with inverted sign and marks
// the original reversed. Historical quantities are never mutated in place,
// and a movement can be reversed at most once.
func (s *Service) ReverseMovement(ctx context.Context, tenantID, movementID, actorID int64, reason string) (Movement, Level, error) {
	if tenantID == 0 {
		return Movement{}, Level{}, shared.ErrTenantRequired
	}
	if reason == "" {
		return Movement{}, Level{}, errors.New("stock: reverse reason required")
	}
	var compensating Movement
	var level Level
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		original, err := tx.GetMovementForUpdate(ctx, tenantID, movementID)
		if err != nil {
			return err
		}
		if original.IsReversed {
			return ErrMovementReversed
		}
		now := time.Now().UTC()
		if err := tx.MarkMovementReversed(ctx, tenantID, movementID, actorID, reason, now); err != nil {
			return err
		}
		compensating = Movement{
			TenantID:      original.TenantID,
			ItemID:        original.ItemID,
			LocationID:    original.LocationID,
			Type:          original.Type,
			Quantity:      -original.Quantity,
			UnitCost:      original.UnitCost,
			ReferenceType: original.ReferenceType,
			ReferenceID:   original.ReferenceID,
			Note:          fmt.Sprintf("Reversal of movement %d: %s", original.ID, reason),
			ActorID:       actorID,
			ReversalOf:    original.ID,
			PostedAt:      now,
		}
		compensating, level, err = PostMovementTx(ctx, tx, compensating, s.allowNeg)
		return err
	})
	if err != nil {
		return Movement{}, Level{}, err
	}
	s.afterWrite(ctx, compensating, "stock:REVERSE")
	return compensating, level, nil
}

// GetLevel returns the level row for an item and location, consulting the
// read cache when one is configured. A missing row reads as a zero level.
func (s *Service) GetLevel(ctx context.Context, tenantID, itemID, locationID int64) (Level, error) {
	if tenantID == 0 {
		return Level{}, shared.ErrTenantRequired
	}
	load := func(ctx context.Context) (Level, error) {
		level, err := s.repo.GetLevel(ctx, tenantID, itemID, locationID)
		if errors.Is(err, ErrLevelNotFound) {
			return Level{TenantID: tenantID, ItemID: itemID, LocationID: locationID}, nil
		}
		return level, err
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, tenantID, itemID, locationID, load)
}

// ListMovements lists the movement log for an item/location window.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.TenantID == 0 {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListMovements(ctx, filter)
}

// ListLowStock returns levels at or below their reorder point.
func (s *Service) ListLowStock(ctx context.Context, tenantID, locationID int64) ([]LowStockEntry, error) {
	if tenantID == 0 {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListLowStock(ctx, tenantID, locationID)
}

// Valuation aggregates on-hand quantity and value across the tenant's levels.
func (s *Service) Valuation(ctx context.Context, tenantID int64) (ValuationSummary, error) {
	if tenantID == 0 {
		return ValuationSummary{}, shared.ErrTenantRequired
	}
	return s.repo.Valuation(ctx, tenantID)
}

// UpdatePolicy sets replenishment thresholds on a level row, creating the
// row when the pair has no stock history yet.
func (s *Service) UpdatePolicy(ctx context.Context, input PolicyInput) error {
	if input.TenantID == 0 {
		return shared.ErrTenantRequired
	}
	if input.ItemID == 0 || input.LocationID == 0 {
		return errors.New("stock: item and location required")
	}
	if input.MinimumLevel < 0 || input.MaximumLevel < 0 || input.ReorderPoint < 0 || input.EconomicOrder < 0 {
		return errors.New("stock: policy thresholds must be >= 0")
	}
	if err := s.repo.UpdateLevelPolicy(ctx, input); err != nil {
		return err
	}
	s.invalidate(ctx, input.TenantID, input.ItemID, input.LocationID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: input.TenantID,
			ActorID:  input.ActorID,
			Action:   "stock:POLICY",
			Entity:   "stock_level",
			EntityID: fmt.Sprintf("%d:%d", input.ItemID, input.LocationID),
			Meta: map[string]any{
				"minimum_level": input.MinimumLevel,
				"reorder_point": input.ReorderPoint,
			},
		})
	}
	return nil
}

// AllowNegativeAdjustments reports the configured reconciliation bypass.
func (s *Service) AllowNegativeAdjustments() bool {
	return s != nil && s.allowNeg
}

func (s *Service) afterWrite(ctx context.Context, m Movement, action string) {
	s.invalidate(ctx, m.TenantID, m.ItemID, m.LocationID)
	if s.metrics != nil {
		s.metrics.ObserveMovement(string(m.Type))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: m.TenantID,
			ActorID:  m.ActorID,
			Action:   action,
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%d", m.ID),
			Meta: map[string]any{
				"item_id":     m.ItemID,
				"location_id": m.LocationID,
				"qty":         m.Quantity,
				"reference":   fmt.Sprintf("%s:%s", m.ReferenceType, m.ReferenceID),
			},
		})
	}
}

func (s *Service) invalidate(ctx context.Context, tenantID, itemID, locationID int64) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, tenantID, itemID, locationID)
	}
}
