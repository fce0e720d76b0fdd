package transfers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor-stock/internal/stock"
)

type memoryStore struct {
	levels    map[string]stock.Level
	movements map[int64]stock.Movement
	transfers map[int64]Transfer
	lines     map[int64]Line
	items     map[int64]bool
	locations map[int64]bool
	nextID    int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		levels:    make(map[string]stock.Level),
		movements: make(map[int64]stock.Movement),
		transfers: make(map[int64]Transfer),
		lines:     make(map[int64]Line),
		items:     map[int64]bool{1: true, 2: true},
		locations: map[int64]bool{1: true, 2: true, 3: true},
	}
}

func levelKey(tenantID, itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, itemID, locationID)
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, s)
}

func (s *memoryStore) GetLevelForUpdate(_ context.Context, tenantID, itemID, locationID int64) (stock.Level, error) {
	if level, ok := s.levels[levelKey(tenantID, itemID, locationID)]; ok {
		return level, nil
	}
	return stock.Level{TenantID: tenantID, ItemID: itemID, LocationID: locationID}, stock.ErrLevelNotFound
}

func (s *memoryStore) UpsertLevel(_ context.Context, level stock.Level) error {
	s.levels[levelKey(level.TenantID, level.ItemID, level.LocationID)] = level
	return nil
}

func (s *memoryStore) InsertMovement(_ context.Context, m stock.Movement) (int64, error) {
	s.nextID++
	m.ID = s.nextID
	s.movements[m.ID] = m
	return m.ID, nil
}

func (s *memoryStore) GetMovementForUpdate(_ context.Context, tenantID, movementID int64) (stock.Movement, error) {
	if m, ok := s.movements[movementID]; ok && m.TenantID == tenantID {
		return m, nil
	}
	return stock.Movement{}, stock.ErrMovementNotFound
}

func (s *memoryStore) MarkMovementReversed(_ context.Context, _, movementID, _ int64, _ string, _ time.Time) error {
	m := s.movements[movementID]
	m.IsReversed = true
	s.movements[movementID] = m
	return nil
}

func (s *memoryStore) ItemExists(_ context.Context, _, itemID int64) (bool, error) {
	return s.items[itemID], nil
}

func (s *memoryStore) LocationExists(_ context.Context, _, locationID int64) (bool, error) {
	return s.locations[locationID], nil
}

func (s *memoryStore) GetTransferForUpdate(_ context.Context, tenantID, id int64) (Transfer, error) {
	t, ok := s.transfers[id]
	if !ok || t.TenantID != tenantID {
		return Transfer{}, ErrNotFound
	}
	t.Lines = nil
	for _, line := range s.lines {
		if line.TransferID == id {
			t.Lines = append(t.Lines, line)
		}
	}
	return t, nil
}

func (s *memoryStore) InsertTransfer(_ context.Context, t Transfer) (int64, error) {
	s.nextID++
	t.ID = s.nextID
	t.CreatedAt = time.Now()
	s.transfers[t.ID] = t
	return t.ID, nil
}

func (s *memoryStore) UpdateTransfer(_ context.Context, t Transfer) error {
	if _, ok := s.transfers[t.ID]; !ok {
		return ErrNotFound
	}
	stored := t
	stored.Lines = nil
	s.transfers[t.ID] = stored
	return nil
}

func (s *memoryStore) InsertLine(_ context.Context, line Line) (int64, error) {
	s.nextID++
	line.ID = s.nextID
	s.lines[line.ID] = line
	return line.ID, nil
}

func (s *memoryStore) UpdateLine(_ context.Context, line Line) error {
	if _, ok := s.lines[line.ID]; !ok {
		return ErrNotFound
	}
	s.lines[line.ID] = line
	return nil
}

func (s *memoryStore) Get(ctx context.Context, tenantID, id int64) (Transfer, error) {
	return s.GetTransferForUpdate(ctx, tenantID, id)
}

func (s *memoryStore) List(_ context.Context, tenantID int64, _ ListFilters) ([]Transfer, int, error) {
	var out []Transfer
	for _, t := range s.transfers {
		if t.TenantID == tenantID {
			out = append(out, t)
		}
	}
	return out, len(out), nil
}

func (s *memoryStore) seedLevel(tenantID, itemID, locationID int64, current, unitCost float64) {
	s.levels[levelKey(tenantID, itemID, locationID)] = stock.Level{
		TenantID:   tenantID,
		ItemID:     itemID,
		LocationID: locationID,
		Current:    current,
		Available:  current,
		UnitCost:   unitCost,
		TotalValue: current * unitCost,
	}
}

func (s *memoryStore) level(tenantID, itemID, locationID int64) stock.Level {
	return s.levels[levelKey(tenantID, itemID, locationID)]
}

func newTestService() (*Service, *memoryStore) {
	store := newMemoryStore()
	return NewService(store, nil, nil, nil), store
}

func requestTransfer(t *testing.T, svc *Service, qty float64) Transfer {
	t.Helper()
	transfer, err := svc.Request(context.Background(), RequestInput{
		TenantID:       1,
		FromLocationID: 1,
		ToLocationID:   2,
		ActorID:        9,
		Lines:          []RequestLine{{ItemID: 1, Quantity: qty}},
	})
	require.NoError(t, err)
	return transfer
}

func TestRequestHoldsSourceStock(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)

	transfer := requestTransfer(t, svc, 30)
	require.Equal(t, StatusPending, transfer.Status)
	require.NotEmpty(t, transfer.TransferNumber)
	require.Len(t, transfer.Lines, 1)
	require.Equal(t, 10.0, transfer.Lines[0].UnitCost)

	source := store.level(1, 1, 1)
	require.Equal(t, 100.0, source.Current)
	require.Equal(t, 30.0, source.Reserved)
	require.Equal(t, 70.0, source.Available)
}

func TestRequestFailsOnInsufficientAvailable(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 10)

	_, err := svc.Request(context.Background(), RequestInput{
		TenantID: 1, FromLocationID: 1, ToLocationID: 2, ActorID: 9,
		Lines: []RequestLine{{ItemID: 1, Quantity: 11}},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientAvailable)
}

func TestRequestRejectsSameLocation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Request(context.Background(), RequestInput{
		TenantID: 1, FromLocationID: 1, ToLocationID: 1, ActorID: 9,
		Lines: []RequestLine{{ItemID: 1, Quantity: 5}},
	})
	require.ErrorIs(t, err, ErrSameLocation)
}

func TestFractionalTransferCompletes(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 4)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 0.3)
	transfer, err := svc.Approve(ctx, 1, transfer.ID, 42)
	require.NoError(t, err)

	transfer, err = svc.Ship(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 0.3}})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, transfer.Status)

	// 0.1+0.2 sums to 0.30000000000000004 in floats; cumulative receipt of
	// the shipped quantity still passes the bound and completes the transfer.
	transfer, err = svc.Receive(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 0.1}})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, transfer.Status)

	transfer, err = svc.Receive(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 0.2}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, transfer.Status)

	require.InDelta(t, 9.7, store.level(1, 1, 1).Current, 1e-9)
	require.InDelta(t, 0.3, store.level(1, 1, 2).Current, 1e-9)
}

func TestShipRequiresApproval(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	transfer := requestTransfer(t, svc, 30)

	_, err := svc.Ship(context.Background(), 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 30}})
	require.ErrorIs(t, err, ErrNotApproved)
}

func TestFullTransferLifecycle(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 30)

	transfer, err := svc.Approve(ctx, 1, transfer.ID, 42)
	require.NoError(t, err)
	require.Equal(t, int64(42), transfer.ApprovedBy)

	// Approving twice is rejected.
	_, err = svc.Approve(ctx, 1, transfer.ID, 42)
	require.ErrorIs(t, err, ErrInvalidTransition)

	transfer, err = svc.Ship(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 30}})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, transfer.Status)

	source := store.level(1, 1, 1)
	require.Equal(t, 70.0, source.Current)
	require.Equal(t, 0.0, source.Reserved)
	require.Equal(t, 70.0, source.Available)

	// Partial receipt keeps the transfer in transit.
	transfer, err = svc.Receive(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 20}})
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, transfer.Status)

	dest := store.level(1, 1, 2)
	require.Equal(t, 20.0, dest.Current)
	require.Equal(t, 10.0, dest.UnitCost)

	// Receiving the rest completes the transfer.
	transfer, err = svc.Receive(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 10}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, transfer.Status)

	dest = store.level(1, 1, 2)
	require.Equal(t, 30.0, dest.Current)

	// Global conservation: total on hand equals the original 100.
	require.Equal(t, 100.0, store.level(1, 1, 1).Current+dest.Current)

	// Completed transfers cannot be cancelled.
	_, err = svc.Cancel(ctx, 1, transfer.ID, 9, "late")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestShipShortReleasesRemainder(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 30)
	_, err := svc.Approve(ctx, 1, transfer.ID, 42)
	require.NoError(t, err)

	transfer, err = svc.Ship(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 25}})
	require.NoError(t, err)
	require.Equal(t, 25.0, transfer.Lines[0].ShippedQty)

	source := store.level(1, 1, 1)
	require.Equal(t, 75.0, source.Current)
	require.Equal(t, 0.0, source.Reserved)
	require.Equal(t, 75.0, source.Available)
}

func TestShipExceedsRequested(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 30)
	_, err := svc.Approve(ctx, 1, transfer.ID, 42)
	require.NoError(t, err)

	_, err = svc.Ship(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 31}})
	require.ErrorIs(t, err, ErrShipExceedsRequested)
}

func TestReceiveExceedsShipped(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 30)
	_, err := svc.Approve(ctx, 1, transfer.ID, 42)
	require.NoError(t, err)
	_, err = svc.Ship(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 30}})
	require.NoError(t, err)

	_, err = svc.Receive(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 31}})
	require.ErrorIs(t, err, ErrReceiveExceedsShipped)
}

func TestCancelPendingReleasesHolds(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 30)
	cancelled, err := svc.Cancel(ctx, 1, transfer.ID, 9, "not needed")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	source := store.level(1, 1, 1)
	require.Equal(t, 100.0, source.Current)
	require.Equal(t, 0.0, source.Reserved)
	require.Equal(t, 100.0, source.Available)
}

func TestCancelInTransitReturnsUnreceivedToSource(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 100, 10)
	ctx := context.Background()

	transfer := requestTransfer(t, svc, 30)
	_, err := svc.Approve(ctx, 1, transfer.ID, 42)
	require.NoError(t, err)
	_, err = svc.Ship(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 30}})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, 1, transfer.ID, 9, []LineQuantity{{ItemID: 1, Quantity: 10}})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, 1, transfer.ID, 9, "truck breakdown")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	// 10 stayed at the destination, 20 came back to the source.
	require.Equal(t, 90.0, store.level(1, 1, 1).Current)
	require.Equal(t, 10.0, store.level(1, 1, 2).Current)
}
