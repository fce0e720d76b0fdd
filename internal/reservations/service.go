package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/conductor-hq/conductor-stock/internal/shared"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives reservation state-transition counters.
type MetricsPort interface {
	ObserveReservationTransition(status string)
}

// Service manages reservation lifecycle: reserve, consume, cancel, expire.
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

// Reserve places a hold against the item's level at the location. The hold
// reduces available quantity only; current quantity is untouched until
// consumption. Fails when the requested quantity exceeds what is available.
func (s *Service) Reserve(ctx context.Context, input ReserveInput) (Reservation, error) {
	if input.TenantID == 0 {
		return Reservation{}, shared.ErrTenantRequired
	}
	if input.ItemID == 0 || input.LocationID == 0 {
		return Reservation{}, errors.New("reservations: item and location required")
	}
	if input.Quantity <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	if !validTypes()[input.Type] {
		return Reservation{}, fmt.Errorf("%w: %q", ErrInvalidType, input.Type)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now()) {
		return Reservation{}, ErrExpiryInPast
	}

	reservation := Reservation{
		TenantID:    input.TenantID,
		ItemID:      input.ItemID,
		LocationID:  input.LocationID,
		Type:        input.Type,
		ReferenceID: input.ReferenceID,
		ReservedQty: input.Quantity,
		Status:      StatusActive,
		ExpiresAt:   input.ExpiresAt,
		CreatedBy:   input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.ItemExists(ctx, input.TenantID, input.ItemID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", stock.ErrUnknownItem, input.ItemID)
		}
		ok, err = tx.LocationExists(ctx, input.TenantID, input.LocationID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", stock.ErrUnknownLocation, input.LocationID)
		}
		if _, err := stock.HoldTx(ctx, tx, input.TenantID, input.ItemID, input.LocationID, input.Quantity); err != nil {
			return err
		}
		id, err := tx.InsertReservation(ctx, reservation)
		if err != nil {
			return err
		}
		reservation.ID = id
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	s.observe(string(StatusActive))
	s.recordAudit(ctx, input.TenantID, input.ActorID, "reservation:RESERVE", reservation.ID, map[string]any{
		"item_id": input.ItemID, "location_id": input.LocationID, "qty": input.Quantity,
	})
	return reservation, nil
}

// Consume draws quantity out of the hold: the reservation's consumed quantity
// grows, an outbound movement is posted for the same amount, and the level's
// reserved and current quantities both drop. A fully consumed reservation
// transitions to consumed.
func (s *Service) Consume(ctx context.Context, tenantID, reservationID int64, qty float64, actorID int64) (Reservation, stock.Movement, error) {
	if tenantID == 0 {
		return Reservation{}, stock.Movement{}, shared.ErrTenantRequired
	}
	if qty <= 0 {
		return Reservation{}, stock.Movement{}, ErrInvalidQuantity
	}

	var (
		reservation Reservation
		movement    stock.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reservation, err = tx.GetReservationForUpdate(ctx, tenantID, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != StatusActive {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidTransition, reservation.Status)
		}
		if stock.QtyExceeds(qty, reservation.Remaining()) {
			return fmt.Errorf("%w: %g > %g", ErrConsumeExceedsRemaining, qty, reservation.Remaining())
		}

		movement, _, err = stock.ConsumeTx(ctx, tx, stock.Movement{
			TenantID:      tenantID,
			ItemID:        reservation.ItemID,
			LocationID:    reservation.LocationID,
			Quantity:      qty,
			ReferenceType: "reservation",
			ReferenceID:   fmt.Sprintf("%d", reservation.ID),
			ActorID:       actorID,
		})
		if err != nil {
			return err
		}

		reservation.ConsumedQty += qty
		if stock.QtyDepleted(reservation.Remaining()) {
			reservation.Status = StatusConsumed
		}
		return tx.UpdateReservation(ctx, reservation)
	})
	if err != nil {
		return Reservation{}, stock.Movement{}, err
	}
	if reservation.Status == StatusConsumed {
		s.observe(string(StatusConsumed))
	}
	s.recordAudit(ctx, tenantID, actorID, "reservation:CONSUME", reservation.ID, map[string]any{
		"qty": qty, "movement_id": movement.ID,
	})
	return reservation, movement, nil
}

// Cancel releases the unconsumed portion back to available and marks the
// reservation cancelled. Cancelling a terminal reservation fails with
// ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, tenantID, reservationID, actorID int64) (Reservation, error) {
	return s.terminate(ctx, tenantID, reservationID, actorID, StatusCancelled, "reservation:CANCEL")
}

// Expire is Cancel with expired status, used by the expiry sweep.
func (s *Service) Expire(ctx context.Context, tenantID, reservationID, actorID int64) (Reservation, error) {
	return s.terminate(ctx, tenantID, reservationID, actorID, StatusExpired, "reservation:EXPIRE")
}

func (s *Service) terminate(ctx context.Context, tenantID, reservationID, actorID int64, target Status, action string) (Reservation, error) {
	if tenantID == 0 {
		return Reservation{}, shared.ErrTenantRequired
	}
	var reservation Reservation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reservation, err = tx.GetReservationForUpdate(ctx, tenantID, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != StatusActive {
			return fmt.Errorf("%w: reservation is %s", ErrInvalidTransition, reservation.Status)
		}
		if remaining := reservation.Remaining(); !stock.QtyDepleted(remaining) {
			if _, err := stock.ReleaseTx(ctx, tx, tenantID, reservation.ItemID, reservation.LocationID, remaining); err != nil {
				return err
			}
		}
		reservation.Status = target
		return tx.UpdateReservation(ctx, reservation)
	})
	if err != nil {
		return Reservation{}, err
	}
	s.observe(string(target))
	s.recordAudit(ctx, tenantID, actorID, action, reservation.ID, nil)
	return reservation, nil
}

// Get fetches one reservation.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Reservation, error) {
	if tenantID == 0 {
		return Reservation{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

// List returns reservations matching the filters with a total count.
func (s *Service) List(ctx context.Context, tenantID int64, filters ListFilters) ([]Reservation, int, error) {
	if tenantID == 0 {
		return nil, 0, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, filters)
}

// ExpireDue sweeps active reservations whose expiry has passed. Each one is
// expired in its own transaction; a reservation that raced into a terminal
// state is skipped. Returns the number expired.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	refs, err := s.repo.ListExpiredIDs(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, ref := range refs {
		if _, err := s.Expire(ctx, ref.TenantID, ref.ID, 0); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			s.logger.Error("reservation expiry failed", slog.Int64("reservation_id", ref.ID), slog.Any("error", err))
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *Service) observe(status string) {
	if s.metrics != nil {
		s.metrics.ObserveReservationTransition(status)
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
		Entity:   "stock_reservation",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
