package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives movement counters for the transfer legs.
type MetricsPort interface {
	ObserveMovement(movementType string)
}

// Service orchestrates the transfer workflow. Requested quantities are held
// at the source until shipping, so two transfers cannot promise the same
// stock; the holds are released when the legs post or the transfer cancels.
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

func newTransferNumber() string {
	return "TRF-" + strings.ToUpper(uuid.NewString()[:8])
}

// Request creates a transfer in pending state and holds each requested
// quantity at the source location. Insufficient available stock on any line
// fails the whole request.
func (s *Service) Request(ctx context.Context, input RequestInput) (Transfer, error) {
	if input.TenantID == 0 {
		return Transfer{}, shared.ErrTenantRequired
	}
	if input.FromLocationID == input.ToLocationID {
		return Transfer{}, ErrSameLocation
	}
	if len(input.Lines) == 0 {
		return Transfer{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return Transfer{}, fmt.Errorf("%w: item %d", ErrLineQuantity, line.ItemID)
		}
	}

	transfer := Transfer{
		TenantID:       input.TenantID,
		TransferNumber: newTransferNumber(),
		FromLocationID: input.FromLocationID,
		ToLocationID:   input.ToLocationID,
		Status:         StatusPending,
		Note:           input.Note,
		RequestedBy:    input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, locationID := range []int64{input.FromLocationID, input.ToLocationID} {
			ok, err := tx.LocationExists(ctx, input.TenantID, locationID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %d", stock.ErrUnknownLocation, locationID)
			}
		}
		id, err := tx.InsertTransfer(ctx, transfer)
		if err != nil {
			return err
		}
		transfer.ID = id

		for _, req := range input.Lines {
			ok, err := tx.ItemExists(ctx, input.TenantID, req.ItemID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %d", stock.ErrUnknownItem, req.ItemID)
			}
			level, err := stock.HoldTx(ctx, tx, input.TenantID, req.ItemID, input.FromLocationID, req.Quantity)
			if err != nil {
				return fmt.Errorf("item %d: %w", req.ItemID, err)
			}
			line := Line{
				TransferID:   transfer.ID,
				ItemID:       req.ItemID,
				RequestedQty: req.Quantity,
				UnitCost:     level.UnitCost,
			}
			line.ID, err = tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			transfer.Lines = append(transfer.Lines, line)
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, input.TenantID, input.ActorID, "transfer:REQUEST", transfer.ID, map[string]any{
		"number": transfer.TransferNumber, "from": input.FromLocationID, "to": input.ToLocationID,
	})
	return transfer, nil
}

// Approve stamps the approver on a pending transfer. Shipping requires a
// prior approval.
func (s *Service) Approve(ctx context.Context, tenantID, transferID, approverID int64) (Transfer, error) {
	if tenantID == 0 {
		return Transfer{}, shared.ErrTenantRequired
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		transfer, err = tx.GetTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusPending {
			return fmt.Errorf("%w: transfer is %s", ErrInvalidTransition, transfer.Status)
		}
		if transfer.ApprovedBy != 0 {
			return fmt.Errorf("%w: already approved", ErrInvalidTransition)
		}
		now := time.Now().UTC()
		transfer.ApprovedBy = approverID
		transfer.ApprovedAt = &now
		return tx.UpdateTransfer(ctx, transfer)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, tenantID, approverID, "transfer:APPROVE", transferID, nil)
	return transfer, nil
}

// Ship posts the outbound legs at the source and moves the transfer to
// in_transit. Each hold is released in full; lines shipped short return the
// unshipped remainder to available stock. Shipped quantities above the
// requested ones are rejected.
func (s *Service) Ship(ctx context.Context, tenantID, transferID, shipperID int64, quantities []LineQuantity) (Transfer, error) {
	if tenantID == 0 {
		return Transfer{}, shared.ErrTenantRequired
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		transfer, err = tx.GetTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusPending {
			return fmt.Errorf("%w: transfer is %s", ErrInvalidTransition, transfer.Status)
		}
		if transfer.ApprovedBy == 0 {
			return ErrNotApproved
		}
		shipped, err := indexQuantities(transfer.Lines, quantities)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range transfer.Lines {
			line := &transfer.Lines[i]
			qty := shipped[line.ItemID]
			if stock.QtyExceeds(qty, line.RequestedQty) {
				return fmt.Errorf("%w: item %d: %g > %g", ErrShipExceedsRequested, line.ItemID, qty, line.RequestedQty)
			}
			if _, err := stock.ReleaseTx(ctx, tx, tenantID, line.ItemID, transfer.FromLocationID, line.RequestedQty); err != nil {
				return err
			}
			if qty > 0 {
				movement := stock.Movement{
					TenantID:      tenantID,
					ItemID:        line.ItemID,
					LocationID:    transfer.FromLocationID,
					Type:          stock.MovementTransfer,
					Quantity:      -qty,
					UnitCost:      line.UnitCost,
					ReferenceType: "transfer",
					ReferenceID:   transfer.TransferNumber,
					ActorID:       shipperID,
					PostedAt:      now,
				}
				if _, _, err := stock.PostMovementTx(ctx, tx, movement, false); err != nil {
					return err
				}
				s.observe(string(stock.MovementTransfer))
			}
			line.ShippedQty = qty
			if err := tx.UpdateLine(ctx, *line); err != nil {
				return err
			}
		}
		transfer.Status = StatusInTransit
		transfer.ShippedBy = shipperID
		transfer.ShippedAt = &now
		return tx.UpdateTransfer(ctx, transfer)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, tenantID, shipperID, "transfer:SHIP", transferID, nil)
	return transfer, nil
}

// Receive posts inbound legs at the destination for the given quantities.
// Receipt is cumulative and may be partial; the transfer completes only once
// every line's received quantity equals its shipped quantity.
func (s *Service) Receive(ctx context.Context, tenantID, transferID, receiverID int64, quantities []LineQuantity) (Transfer, error) {
	if tenantID == 0 {
		return Transfer{}, shared.ErrTenantRequired
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		transfer, err = tx.GetTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		if transfer.Status != StatusInTransit {
			return fmt.Errorf("%w: transfer is %s", ErrInvalidTransition, transfer.Status)
		}
		received, err := indexQuantities(transfer.Lines, quantities)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for i := range transfer.Lines {
			line := &transfer.Lines[i]
			qty := received[line.ItemID]
			if qty == 0 {
				continue
			}
			if stock.QtyExceeds(line.ReceivedQty+qty, line.ShippedQty) {
				return fmt.Errorf("%w: item %d", ErrReceiveExceedsShipped, line.ItemID)
			}
			movement := stock.Movement{
				TenantID:      tenantID,
				ItemID:        line.ItemID,
				LocationID:    transfer.ToLocationID,
				Type:          stock.MovementTransfer,
				Quantity:      qty,
				UnitCost:      line.UnitCost,
				ReferenceType: "transfer",
				ReferenceID:   transfer.TransferNumber,
				ActorID:       receiverID,
				PostedAt:      now,
			}
			if _, _, err := stock.PostMovementTx(ctx, tx, movement, false); err != nil {
				return err
			}
			s.observe(string(stock.MovementTransfer))
			line.ReceivedQty += qty
			if err := tx.UpdateLine(ctx, *line); err != nil {
				return err
			}
		}
		if transfer.fullyReceived() {
			transfer.Status = StatusCompleted
		}
		transfer.ReceivedBy = receiverID
		transfer.ReceivedAt = &now
		return tx.UpdateTransfer(ctx, transfer)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, tenantID, receiverID, "transfer:RECEIVE", transferID, nil)
	return transfer, nil
}

// Cancel aborts a pending or in-transit transfer. Pending holds are released;
// shipped-but-unreceived quantities return to the source with compensating
// inbound legs. Completed transfers cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, tenantID, transferID, actorID int64, reason string) (Transfer, error) {
	if tenantID == 0 {
		return Transfer{}, shared.ErrTenantRequired
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		transfer, err = tx.GetTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		switch transfer.Status {
		case StatusPending:
			for _, line := range transfer.Lines {
				if _, err := stock.ReleaseTx(ctx, tx, tenantID, line.ItemID, transfer.FromLocationID, line.RequestedQty); err != nil {
					return err
				}
			}
		case StatusInTransit:
			for _, line := range transfer.Lines {
				inTransit := line.ShippedQty - line.ReceivedQty
				if stock.QtyDepleted(inTransit) {
					continue
				}
				movement := stock.Movement{
					TenantID:      tenantID,
					ItemID:        line.ItemID,
					LocationID:    transfer.FromLocationID,
					Type:          stock.MovementTransfer,
					Quantity:      inTransit,
					UnitCost:      line.UnitCost,
					ReferenceType: "transfer_cancel",
					ReferenceID:   transfer.TransferNumber,
					Note:          reason,
					ActorID:       actorID,
					PostedAt:      now,
				}
				if _, _, err := stock.PostMovementTx(ctx, tx, movement, false); err != nil {
					return err
				}
				s.observe(string(stock.MovementTransfer))
			}
		default:
			return fmt.Errorf("%w: transfer is %s", ErrInvalidTransition, transfer.Status)
		}
		transfer.Status = StatusCancelled
		transfer.CancelReason = reason
		return tx.UpdateTransfer(ctx, transfer)
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, tenantID, actorID, "transfer:CANCEL", transferID, map[string]any{"reason": reason})
	return transfer, nil
}

// Get fetches one transfer with its lines.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Transfer, error) {
	if tenantID == 0 {
		return Transfer{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns transfers matching the filters with a total count.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Transfer, int, error) {
	if tenantID == 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, filters)
}

func (t Transfer) fullyReceived() bool {
	for _, line := range t.Lines {
		if stock.QtyExceeds(line.ShippedQty, line.ReceivedQty) {
			return false
		}
	}
	return true
}

func indexQuantities(lines []Line, quantities []LineQuantity) (map[int64]float64, error) {
	byItem := make(map[int64]bool, len(lines))
	for _, line := range lines {
		byItem[line.ItemID] = true
	}
	out := make(map[int64]float64, len(quantities))
	for _, q := range quantities {
		if !byItem[q.ItemID] {
			return nil, fmt.Errorf("%w: item %d", ErrUnknownLine, q.ItemID)
		}
		if q.Quantity < 0 {
			return nil, fmt.Errorf("%w: item %d", ErrLineQuantity, q.ItemID)
		}
		out[q.ItemID] += q.Quantity
	}
	return out, nil
}

func (s *Service) observe(movementType string) {
	if s.metrics != nil {
		s.metrics.ObserveMovement(movementType)
	}
}

func (s *Service) recordAudit(ctx context.Context, tenantID, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_transfer",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
