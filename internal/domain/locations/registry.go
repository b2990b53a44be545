package locations

import (
	"context"
	"fmt"
	"time"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/core/tx"
	"fleetledger/pkg/logger"
)

// Registry resolves and lazily creates stock locations.
type Registry struct {
	repo Repository
	dir  Directory
	txm  tx.Manager
	now  func() time.Time
}

// NewRegistry creates a location registry.
func NewRegistry(repo Repository, dir Directory, txm tx.Manager) *Registry {
	return &Registry{
		repo: repo,
		dir:  dir,
		txm:  txm,
		now:  time.Now,
	}
}

// Directory exposes the directory collaborator for services that validate
// stock items against the same source.
func (r *Registry) Directory() Directory {
	return r.dir
}

func (r *Registry) GetOrCreateWarehouseLocation(ctx context.Context, orgID, warehouseID id.ID) (*StockLocation, error) {
	return r.GetOrCreate(ctx, orgID, TypeWarehouse, warehouseID)
}

func (r *Registry) GetOrCreateVehicleTankLocation(ctx context.Context, orgID, vehicleID id.ID) (*StockLocation, error) {
	return r.GetOrCreate(ctx, orgID, TypeVehicleTank, vehicleID)
}

func (r *Registry) GetOrCreateFuelCardLocation(ctx context.Context, orgID, fuelCardID id.ID) (*StockLocation, error) {
	return r.GetOrCreate(ctx, orgID, TypeFuelCard, fuelCardID)
}

// GetOrCreate returns the location of type t for ownerID, creating it when missing.
// Concurrent callers for the same owner end up with the same location.
func (r *Registry) GetOrCreate(ctx context.Context, orgID id.ID, t LocationType, ownerID id.ID) (*StockLocation, error) {
	if !t.Valid() {
		return nil, apperror.NewFieldValidation("type", fmt.Sprintf("unknown location type %q", t))
	}
	if id.IsNil(ownerID) {
		return nil, apperror.NewFieldValidation("ownerId", "owner id is required")
	}

	ownerOrg, err := r.dir.OwnerOrganization(ctx, t.OwnerKind(), ownerID)
	if err != nil {
		return nil, err
	}
	if ownerOrg != orgID {
		// Foreign owners are reported as missing so ids of other organizations don't leak.
		return nil, apperror.NewNotFound(string(t.OwnerKind()), ownerID)
	}

	loc, err := r.repo.FindByOwner(ctx, t, ownerID)
	if err == nil {
		return loc, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("find location: %w", err)
	}

	loc = NewStockLocation(orgID, t, ownerID, r.now())
	err = r.txm.RunInSavepoint(ctx, func(ctx context.Context) error {
		return r.repo.Create(ctx, loc)
	})
	if err == nil {
		logger.Info(ctx, "stock location created",
			"location_id", loc.ID,
			"type", t,
			"owner_id", ownerID,
		)
		return loc, nil
	}
	if !apperror.IsDuplicate(err) {
		return nil, fmt.Errorf("create location: %w", err)
	}

	// Lost the race against a concurrent creator.
	loc, err = r.repo.FindByOwner(ctx, t, ownerID)
	if err != nil {
		return nil, fmt.Errorf("re-fetch location after conflict: %w", err)
	}
	return loc, nil
}

// Get returns a location of the organization. Locations of other
// organizations are reported as not found.
func (r *Registry) Get(ctx context.Context, orgID, locationID id.ID) (*StockLocation, error) {
	loc, err := r.repo.GetByID(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if loc.OrganizationID != orgID {
		return nil, apperror.NewNotFound("stock_location", locationID)
	}
	return loc, nil
}

// ResolveActive is Get plus a check that the location accepts new movements.
func (r *Registry) ResolveActive(ctx context.Context, orgID, locationID id.ID) (*StockLocation, error) {
	loc, err := r.Get(ctx, orgID, locationID)
	if err != nil {
		return nil, err
	}
	if !loc.IsActive {
		return nil, apperror.NewValidation("stock location is inactive").
			WithDetail("locationId", locationID)
	}
	return loc, nil
}

func (r *Registry) List(ctx context.Context, orgID id.ID) ([]StockLocation, error) {
	return r.repo.ListByOrganization(ctx, orgID)
}

// DefaultWarehouseLocation returns the location of the organization's default
// warehouse. It fails with a validation error when no default is configured.
func (r *Registry) DefaultWarehouseLocation(ctx context.Context, orgID id.ID) (*StockLocation, error) {
	whID, err := r.dir.DefaultWarehouseID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("default warehouse: %w", err)
	}
	if whID == nil {
		return nil, apperror.NewValidation("organization has no default warehouse").
			WithDetail("organizationId", orgID)
	}
	return r.GetOrCreateWarehouseLocation(ctx, orgID, *whID)
}
