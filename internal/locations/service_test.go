package locations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor-stock/internal/shared"
)

type memoryLocationRepo struct {
	nextID    int64
	locations map[int64]Location
}

func newMemoryLocationRepo() *memoryLocationRepo {
	return &memoryLocationRepo{nextID: 1, locations: map[int64]Location{}}
}

func (r *memoryLocationRepo) List(_ context.Context, tenantID int64, filters ListFilters) ([]Location, int, error) {
	var out []Location
	for _, l := range r.locations {
		if l.TenantID != tenantID {
			continue
		}
		if filters.Type != "" && l.Type != filters.Type {
			continue
		}
		if filters.IsActive != nil && l.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (r *memoryLocationRepo) Get(_ context.Context, tenantID, id int64) (Location, error) {
	l, ok := r.locations[id]
	if !ok || l.TenantID != tenantID {
		return Location{}, ErrNotFound
	}
	return l, nil
}

func (r *memoryLocationRepo) Create(_ context.Context, location Location) (Location, error) {
	for _, l := range r.locations {
		if l.TenantID == location.TenantID && l.Code == location.Code {
			return Location{}, ErrDuplicateCode
		}
	}
	location.ID = r.nextID
	r.nextID++
	location.IsActive = true
	location.CreatedAt = time.Now()
	location.UpdatedAt = location.CreatedAt
	r.locations[location.ID] = location
	return location, nil
}

func (r *memoryLocationRepo) Update(_ context.Context, location Location) error {
	existing, ok := r.locations[location.ID]
	if !ok || existing.TenantID != location.TenantID {
		return ErrNotFound
	}
	for _, l := range r.locations {
		if l.ID != location.ID && l.TenantID == location.TenantID && l.Code == location.Code {
			return ErrDuplicateCode
		}
	}
	location.IsActive = existing.IsActive
	location.CreatedAt = existing.CreatedAt
	location.UpdatedAt = time.Now()
	r.locations[location.ID] = location
	return nil
}

func (r *memoryLocationRepo) SetActive(_ context.Context, tenantID, id int64, active bool) error {
	l, ok := r.locations[id]
	if !ok || l.TenantID != tenantID {
		return ErrNotFound
	}
	l.IsActive = active
	r.locations[id] = l
	return nil
}

func newTestService() (*Service, *memoryLocationRepo) {
	repo := newMemoryLocationRepo()
	return NewService(repo, nil), repo
}

func TestCreateLocation(t *testing.T) {
	svc, _ := newTestService()

	created, err := svc.Create(context.Background(), Location{
		TenantID: 1,
		Name:     "Main Warehouse",
		Code:     "WH-MAIN",
		Type:     TypeFixed,
		Capacity: 500,
	}, 9)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.True(t, created.IsActive)
}

func TestCreateLocationDuplicateCode(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), Location{TenantID: 1, Name: "Van 7", Code: "VAN-7", Type: TypeMobile}, 9)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), Location{TenantID: 1, Name: "Other Van", Code: "VAN-7", Type: TypeMobile}, 9)
	require.ErrorIs(t, err, ErrDuplicateCode)

	// Same code in another tenant is fine.
	_, err = svc.Create(context.Background(), Location{TenantID: 2, Name: "Van 7", Code: "VAN-7", Type: TypeMobile}, 9)
	require.NoError(t, err)
}

func TestCreateLocationValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, Location{TenantID: 1, Code: "X", Type: TypeFixed}, 9)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, Location{TenantID: 1, Name: "X", Code: "X", Type: "GARAGE"}, 9)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, Location{TenantID: 1, Name: "X", Code: "X", Type: TypeFixed, Capacity: 10, Occupancy: 20}, 9)
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, Location{Name: "X", Code: "X", Type: TypeFixed}, 9)
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestDeactivateAndReactivate(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, Location{TenantID: 1, Name: "Repair Bench", Code: "REP", Type: TypeVirtual}, 9)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, 1, created.ID, 9))
	stored, err := repo.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)

	require.NoError(t, svc.Reactivate(ctx, 1, created.ID, 9))
	stored, err = repo.Get(ctx, 1, created.ID)
	require.NoError(t, err)
	require.True(t, stored.IsActive)
}

func TestDeactivateMissingLocation(t *testing.T) {
	svc, _ := newTestService()
	require.ErrorIs(t, svc.Deactivate(context.Background(), 1, 404, 9), ErrNotFound)
}

func TestListFiltersByType(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, Location{TenantID: 1, Name: "WH", Code: "WH", Type: TypeFixed}, 9)
	require.NoError(t, err)
	_, err = svc.Create(ctx, Location{TenantID: 1, Name: "Van", Code: "VAN", Type: TypeMobile}, 9)
	require.NoError(t, err)

	fixed, total, err := svc.List(ctx, 1, ListFilters{Type: TypeFixed})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, fixed, 1)
	require.Equal(t, "WH", fixed[0].Code)
}
