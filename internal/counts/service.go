package counts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives movement counters for adjustment postings.
type MetricsPort interface {
	ObserveMovement(movementType string)
}

// Service runs physical inventory sessions: plan snapshots, count recording
// and adjustment approval. Approval is strict: every planned line must be
// counted before adjustments post.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	metrics  MetricsPort
	logger   *slog.Logger
	allowNeg bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// AllowNegativeAdjustments lets reconciliation drive a level below its
	// reserved floor when shrinkage is counted past a stale hold.
	AllowNegativeAdjustments bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger, allowNeg: cfg.AllowNegativeAdjustments}
}

// Plan opens an inventory at the location and snapshots the current system
// quantity of each item. A full count with no explicit items expands to every
// item holding a level row at the location.
func (s *Service) Plan(ctx context.Context, input PlanInput) (Inventory, error) {
	if input.TenantID == 0 {
		return Inventory{}, shared.ErrTenantRequired
	}
	if !validTypes()[input.Type] {
		return Inventory{}, fmt.Errorf("%w: %q", ErrInvalidType, input.Type)
	}

	inventory := Inventory{
		TenantID:   input.TenantID,
		LocationID: input.LocationID,
		Type:       input.Type,
		Status:     StatusPlanned,
		PlannedBy:  input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.LocationExists(ctx, input.TenantID, input.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", stock.ErrUnknownLocation, input.LocationID)
		}

		itemIDs := input.ItemIDs
		if len(itemIDs) == 0 {
			if input.Type != TypeFull {
				return ErrNoItems
			}
			itemIDs, err = tx.ListItemIDsWithStock(ctx, input.TenantID, input.LocationID)
			if err != nil {
				return err
			}
			if len(itemIDs) == 0 {
				return ErrNoItems
			}
		}

		inventory.TotalItemsPlanned = len(itemIDs)
		id, err := tx.InsertInventory(ctx, inventory)
		if err != nil {
			return err
		}
		inventory.ID = id

		for _, itemID := range itemIDs {
			ok, err := tx.ItemExists(ctx, input.TenantID, itemID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %d", stock.ErrUnknownItem, itemID)
			}
			level, err := tx.GetLevelForUpdate(ctx, input.TenantID, itemID, input.LocationID)
			if err != nil && err != stock.ErrLevelNotFound {
				return err
			}
			count := Count{InventoryID: inventory.ID, ItemID: itemID, SystemQty: level.Current}
			count.ID, err = tx.InsertCount(ctx, count)
			if err != nil {
				return err
			}
			inventory.Counts = append(inventory.Counts, count)
		}
		return nil
	})
	if err != nil {
		return Inventory{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "inventory:PLAN", inventory.ID, map[string]any{
		"location_id": input.LocationID, "items": inventory.TotalItemsPlanned,
	})
	return inventory, nil
}

// RecordCount stores the observed quantity for one planned item and derives
// its variance. Counting the same item again replaces the earlier figure.
func (s *Service) RecordCount(ctx context.Context, tenantID, inventoryID, itemID int64, countedQty float64, counterID int64) (Count, error) {
	if tenantID == 0 {
		return Count{}, shared.ErrTenantRequired
	}
	if countedQty < 0 {
		return Count{}, ErrNegativeQuantity
	}

	var recorded Count
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inventory, err := tx.GetInventoryForUpdate(ctx, tenantID, inventoryID)
		if err != nil {
			return err
		}
		if inventory.Status != StatusPlanned && inventory.Status != StatusInProgress {
			return fmt.Errorf("%w: inventory is %s", ErrInvalidTransition, inventory.Status)
		}

		var line *Count
		for i := range inventory.Counts {
			if inventory.Counts[i].ItemID == itemID {
				line = &inventory.Counts[i]
				break
			}
		}
		if line == nil {
			return fmt.Errorf("%w: %d", ErrCountNotFound, itemID)
		}

		wasCounted := line.Counted()
		hadVariance := wasCounted && line.Variance != 0

		now := time.Now().UTC()
		qty := countedQty
		line.CountedQty = &qty
		line.Variance = countedQty - line.SystemQty
		if math.Abs(line.Variance) < 1e-9 {
			line.Variance = 0
		}
		if line.SystemQty != 0 {
			line.VariancePercent = line.Variance / line.SystemQty * 100
		} else {
			line.VariancePercent = 0
		}
		line.CountedBy = counterID
		line.CountedAt = &now
		if err := tx.UpdateCount(ctx, *line); err != nil {
			return err
		}

		if !wasCounted {
			inventory.TotalItemsCounted++
		}
		switch {
		case line.Variance != 0 && !hadVariance:
			inventory.TotalDiscrepancies++
		case line.Variance == 0 && hadVariance:
			inventory.TotalDiscrepancies--
		}
		inventory.Status = StatusInProgress
		recorded = *line
		return tx.UpdateInventory(ctx, inventory)
	})
	if err != nil {
		return Count{}, err
	}
	s.recordAudit(ctx, tenantID, counterID, "inventory:COUNT", inventoryID, map[string]any{
		"item_id": itemID, "counted_qty": countedQty, "variance": recorded.Variance,
	})
	return recorded, nil
}

// ApproveAdjustments posts an adjustment movement for every counted line with
// a nonzero unadjusted variance and completes the inventory. Every planned
// line must be counted first; partial approval is rejected.
func (s *Service) ApproveAdjustments(ctx context.Context, tenantID, inventoryID, approverID int64) (Inventory, error) {
	if tenantID == 0 {
		return Inventory{}, shared.ErrTenantRequired
	}
	var inventory Inventory
	adjustments := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inventory, err = tx.GetInventoryForUpdate(ctx, tenantID, inventoryID)
		if err != nil {
			return err
		}
		if inventory.Status != StatusPlanned && inventory.Status != StatusInProgress {
			return fmt.Errorf("%w: inventory is %s", ErrInvalidTransition, inventory.Status)
		}
		if inventory.TotalItemsCounted < inventory.TotalItemsPlanned {
			return fmt.Errorf("%w: %d of %d counted", ErrIncompleteCount,
				inventory.TotalItemsCounted, inventory.TotalItemsPlanned)
		}

		now := time.Now().UTC()
		for i := range inventory.Counts {
			line := &inventory.Counts[i]
			if line.IsAdjusted || line.Variance == 0 {
				continue
			}
			level, err := tx.GetLevelForUpdate(ctx, tenantID, line.ItemID, inventory.LocationID)
			if err != nil && err != stock.ErrLevelNotFound {
				return err
			}
			movement := stock.Movement{
				TenantID:      tenantID,
				ItemID:        line.ItemID,
				LocationID:    inventory.LocationID,
				Type:          stock.MovementAdjustment,
				Quantity:      line.Variance,
				UnitCost:      level.UnitCost,
				ReferenceType: "inventory_count",
				ReferenceID:   fmt.Sprintf("%d", inventory.ID),
				ActorID:       approverID,
				ApprovedBy:    approverID,
				ApprovedAt:    now,
				PostedAt:      now,
			}
			if _, _, err := stock.PostMovementTx(ctx, tx, movement, s.allowNeg); err != nil {
				return fmt.Errorf("item %d: %w", line.ItemID, err)
			}
			if s.metrics != nil {
				s.metrics.ObserveMovement(string(stock.MovementAdjustment))
			}
			line.IsAdjusted = true
			if err := tx.UpdateCount(ctx, *line); err != nil {
				return err
			}
			adjustments++
		}

		inventory.Status = StatusCompleted
		inventory.ApprovedBy = approverID
		inventory.ApprovedAt = &now
		return tx.UpdateInventory(ctx, inventory)
	})
	if err != nil {
		return Inventory{}, err
	}
	s.recordAudit(ctx, tenantID, approverID, "inventory:APPROVE", inventoryID, map[string]any{
		"adjustments": adjustments,
	})
	return inventory, nil
}

// Cancel aborts a planned or in-progress inventory without posting anything.
func (s *Service) Cancel(ctx context.Context, tenantID, inventoryID, actorID int64) (Inventory, error) {
	if tenantID == 0 {
		return Inventory{}, shared.ErrTenantRequired
	}
	var inventory Inventory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inventory, err = tx.GetInventoryForUpdate(ctx, tenantID, inventoryID)
		if err != nil {
			return err
		}
		if inventory.Status.Terminal() {
			return fmt.Errorf("%w: inventory is %s", ErrInvalidTransition, inventory.Status)
		}
		inventory.Status = StatusCancelled
		return tx.UpdateInventory(ctx, inventory)
	})
	if err != nil {
		return Inventory{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "inventory:CANCEL", inventoryID, nil)
	return inventory, nil
}

// Get fetches one inventory with its count lines.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Inventory, error) {
	if tenantID == 0 {
		return Inventory{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns inventories matching the filters with a total count.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Inventory, int, error) {
	if tenantID == 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, filters)
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "physical_inventory",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
