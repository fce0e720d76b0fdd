package kits

import (
	"context"
	"fmt"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor-stock/internal/reservations"
	"github.com/conductor-hq/conductor-stock/internal/stock"
)

type memoryStore struct {
	levels       map[string]stock.Level
	movements    map[int64]stock.Movement
	reservations map[int64]reservations.Reservation
	kits         map[int64]Kit
	locations    map[int64]bool
	nextID       int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		levels:       make(map[string]stock.Level),
		movements:    make(map[int64]stock.Movement),
		reservations: make(map[int64]reservations.Reservation),
		kits:         make(map[int64]Kit),
		locations:    map[int64]bool{1: true, 2: true},
	}
}

func levelKey(tenantID, itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d:%d", tenantID, itemID, locationID)
}

// WithTx snapshots state and restores it when fn fails, matching the
// transactional all-or-nothing behavior of the SQL repository.
func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	levels := maps.Clone(s.levels)
	movements := maps.Clone(s.movements)
	reserved := maps.Clone(s.reservations)
	if err := fn(ctx, s); err != nil {
		s.levels = levels
		s.movements = movements
		s.reservations = reserved
		return err
	}
	return nil
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
	return itemID > 0 && itemID < 100, nil
}

func (s *memoryStore) LocationExists(_ context.Context, _, locationID int64) (bool, error) {
	return s.locations[locationID], nil
}

func (s *memoryStore) GetKit(_ context.Context, tenantID, id int64) (Kit, error) {
	kit, ok := s.kits[id]
	if !ok || kit.TenantID != tenantID {
		return Kit{}, ErrNotFound
	}
	return kit, nil
}

func (s *memoryStore) InsertReservation(_ context.Context, r reservations.Reservation) (int64, error) {
	s.nextID++
	r.ID = s.nextID
	s.reservations[r.ID] = r
	return r.ID, nil
}

func (s *memoryStore) Get(ctx context.Context, tenantID, id int64) (Kit, error) {
	return s.GetKit(ctx, tenantID, id)
}

func (s *memoryStore) List(_ context.Context, tenantID int64, _ ListFilters) ([]Kit, int, error) {
	var out []Kit
	for _, kit := range s.kits {
		if kit.TenantID == tenantID {
			out = append(out, kit)
		}
	}
	return out, len(out), nil
}

func (s *memoryStore) Create(_ context.Context, kit Kit) (Kit, error) {
	s.nextID++
	kit.ID = s.nextID
	kit.IsActive = true
	kit.CreatedAt = time.Now()
	for i := range kit.Items {
		s.nextID++
		kit.Items[i].ID = s.nextID
		kit.Items[i].KitID = kit.ID
	}
	s.kits[kit.ID] = kit
	return kit, nil
}

func (s *memoryStore) SetActive(_ context.Context, tenantID, id int64, active bool) error {
	kit, ok := s.kits[id]
	if !ok || kit.TenantID != tenantID {
		return ErrNotFound
	}
	kit.IsActive = active
	s.kits[id] = kit
	return nil
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

func seedBrakeKit(t *testing.T, svc *Service) Kit {
	t.Helper()
	kit, err := svc.Create(context.Background(), CreateInput{
		TenantID: 1,
		Name:     "Brake service kit",
		KitType:  "maintenance",
		ActorID:  9,
		Items: []ItemInput{
			{ItemID: 1, Quantity: 2, Priority: 1},
			{ItemID: 2, Quantity: 1, Priority: 2},
			{ItemID: 3, Quantity: 1, IsOptional: true, Priority: 3},
		},
	})
	require.NoError(t, err)
	return kit
}

func TestCreateKitValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{TenantID: 1, Name: "", Items: []ItemInput{{ItemID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, CreateInput{TenantID: 1, Name: "Empty"})
	require.ErrorIs(t, err, ErrNoItems)

	_, err = svc.Create(ctx, CreateInput{TenantID: 1, Name: "Bad qty", Items: []ItemInput{{ItemID: 1, Quantity: 0}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestConsumeKitDrawsRequiredItems(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	store.seedLevel(1, 2, 1, 10, 20)
	store.seedLevel(1, 3, 1, 10, 2)
	kit := seedBrakeKit(t, svc)

	movements, err := svc.Consume(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77", ActorID: 9,
	})
	require.NoError(t, err)
	require.Len(t, movements, 2) // optional item 3 not selected

	require.Equal(t, 8.0, store.level(1, 1, 1).Current)
	require.Equal(t, 9.0, store.level(1, 2, 1).Current)
	require.Equal(t, 10.0, store.level(1, 3, 1).Current)
}

func TestConsumeKitPricesAtAverageCost(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 25)
	store.seedLevel(1, 2, 1, 10, 80)
	kit := seedBrakeKit(t, svc)

	movements, err := svc.Consume(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77", ActorID: 9,
	})
	require.NoError(t, err)
	require.Len(t, movements, 2)

	// Both the returned movement and the stored row carry the moving average.
	want := map[int64]float64{1: 25, 2: 80}
	for _, m := range movements {
		require.Equal(t, want[m.ItemID], m.UnitCost)
		require.Equal(t, want[m.ItemID], store.movements[m.ID].UnitCost)
	}
}

func TestConsumeKitIncludesSelectedOptional(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	store.seedLevel(1, 2, 1, 10, 20)
	store.seedLevel(1, 3, 1, 10, 2)
	kit := seedBrakeKit(t, svc)

	movements, err := svc.Consume(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77",
		IncludeOptional: []int64{3}, ActorID: 9,
	})
	require.NoError(t, err)
	require.Len(t, movements, 3)
	require.Equal(t, 9.0, store.level(1, 3, 1).Current)
}

func TestConsumeKitAllOrNothing(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	// Item 2 has no stock: expansion must fail and leave item 1 untouched.
	kit := seedBrakeKit(t, svc)

	_, err := svc.Consume(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77", ActorID: 9,
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	require.Equal(t, 10.0, store.level(1, 1, 1).Current)
	require.Empty(t, store.movements)
}

func TestReserveKitAllOrNothing(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	kit := seedBrakeKit(t, svc)

	_, err := svc.Reserve(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77", ActorID: 9,
	})
	require.ErrorIs(t, err, stock.ErrInsufficientAvailable)

	require.Equal(t, 0.0, store.level(1, 1, 1).Reserved)
	require.Empty(t, store.reservations)
}

func TestReserveKitHoldsAllItems(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	store.seedLevel(1, 2, 1, 10, 20)
	kit := seedBrakeKit(t, svc)

	created, err := svc.Reserve(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77", ActorID: 9,
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, r := range created {
		require.Equal(t, reservations.StatusActive, r.Status)
		require.Equal(t, reservations.TypeServiceOrder, r.Type)
		require.Equal(t, "ticket:77", r.ReferenceID)
	}

	require.Equal(t, 2.0, store.level(1, 1, 1).Reserved)
	require.Equal(t, 1.0, store.level(1, 2, 1).Reserved)
}

func TestConsumeInactiveKit(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	store.seedLevel(1, 2, 1, 10, 20)
	kit := seedBrakeKit(t, svc)
	require.NoError(t, svc.Deactivate(context.Background(), 1, kit.ID, 9))

	_, err := svc.Consume(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77", ActorID: 9,
	})
	require.ErrorIs(t, err, ErrInactive)
}

func TestConsumeUnknownOptionalSelection(t *testing.T) {
	svc, store := newTestService()
	store.seedLevel(1, 1, 1, 10, 5)
	store.seedLevel(1, 2, 1, 10, 20)
	kit := seedBrakeKit(t, svc)

	_, err := svc.Consume(context.Background(), ExpandInput{
		TenantID: 1, KitID: kit.ID, LocationID: 1, ReferenceID: "ticket:77",
		IncludeOptional: []int64{42}, ActorID: 9,
	})
	require.ErrorIs(t, err, ErrOptionalNotOnKit)
}
