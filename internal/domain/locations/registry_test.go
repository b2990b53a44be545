package locations_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/infrastructure/storage/memory"
)

func newRegistry() (*locations.Registry, *memory.Store) {
	s := memory.New()
	return locations.NewRegistry(s.Locations(), s.Directory(), s.TxManager()), s
}

func TestGetOrCreate_ReturnsSameLocation(t *testing.T) {
	reg, s := newRegistry()
	org, vehicle := id.New(), id.New()
	s.AddOwner(locations.OwnerVehicle, vehicle, org)
	ctx := context.Background()

	first, err := reg.GetOrCreateVehicleTankLocation(ctx, org, vehicle)
	require.NoError(t, err)
	assert.Equal(t, locations.TypeVehicleTank, first.Type)
	assert.Equal(t, vehicle, first.OwnerID())
	assert.True(t, first.IsActive)
	assert.Nil(t, first.WarehouseID)
	assert.Nil(t, first.FuelCardID)

	again, err := reg.GetOrCreateVehicleTankLocation(ctx, org, vehicle)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	reg, s := newRegistry()
	org, card := id.New(), id.New()
	s.AddOwner(locations.OwnerFuelCard, card, org)

	const workers = 16
	ids := make([]id.ID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc, err := reg.GetOrCreateFuelCardLocation(context.Background(), org, card)
			if assert.NoError(t, err) {
				ids[i] = loc.ID
			}
		}(i)
	}
	wg.Wait()

	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
	all, err := reg.List(context.Background(), org)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetOrCreate_ForeignOwner(t *testing.T) {
	reg, s := newRegistry()
	org, other, wh := id.New(), id.New(), id.New()
	s.AddOwner(locations.OwnerWarehouse, wh, other)
	ctx := context.Background()

	_, err := reg.GetOrCreateWarehouseLocation(ctx, org, wh)
	assert.True(t, apperror.IsNotFound(err))

	_, err = reg.GetOrCreateWarehouseLocation(ctx, org, id.New())
	assert.True(t, apperror.IsNotFound(err))

	_, err = reg.GetOrCreate(ctx, org, "PIPELINE", wh)
	assert.True(t, apperror.IsValidation(err))
}

func TestGetAndResolveActive(t *testing.T) {
	reg, s := newRegistry()
	org, other, wh := id.New(), id.New(), id.New()
	s.AddOwner(locations.OwnerWarehouse, wh, org)
	ctx := context.Background()

	loc, err := reg.GetOrCreateWarehouseLocation(ctx, org, wh)
	require.NoError(t, err)

	_, err = reg.Get(ctx, other, loc.ID)
	assert.True(t, apperror.IsNotFound(err), "locations of other organizations are hidden")

	_, err = reg.ResolveActive(ctx, org, loc.ID)
	require.NoError(t, err)

	s.SetLocationActive(loc.ID, false)
	_, err = reg.ResolveActive(ctx, org, loc.ID)
	assert.True(t, apperror.IsValidation(err))

	got, err := reg.Get(ctx, org, loc.ID)
	require.NoError(t, err, "inactive locations stay readable")
	assert.False(t, got.IsActive)
}

func TestDefaultWarehouseLocation(t *testing.T) {
	reg, s := newRegistry()
	org, wh := id.New(), id.New()
	ctx := context.Background()

	_, err := reg.DefaultWarehouseLocation(ctx, org)
	assert.True(t, apperror.IsValidation(err))

	s.AddOrganization(org, &wh)
	loc, err := reg.DefaultWarehouseLocation(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, wh, *loc.WarehouseID)
}
