package locations

import (
	"context"

	"fleetledger/internal/core/id"
)

// Repository persists stock locations.
type Repository interface {
	// GetByID returns NotFound when the location does not exist.
	GetByID(ctx context.Context, locationID id.ID) (*StockLocation, error)

	// FindByOwner returns NotFound when no location of type t exists for ownerID.
	FindByOwner(ctx context.Context, t LocationType, ownerID id.ID) (*StockLocation, error)

	// Create inserts a location. A concurrent insert for the same owner
	// surfaces as a DUPLICATE_ENTRY AppError.
	Create(ctx context.Context, loc *StockLocation) error

	ListByOrganization(ctx context.Context, orgID id.ID) ([]StockLocation, error)
}

// Directory is the read-only view of entities owned by other subsystems
// (warehouses, vehicles, fuel cards, stock items, organization settings).
type Directory interface {
	// OwnerOrganization returns the organization owning the entity,
	// or NotFound when it does not exist.
	OwnerOrganization(ctx context.Context, kind OwnerKind, ownerID id.ID) (id.ID, error)

	// DefaultWarehouseID returns the organization's default warehouse, nil when unset.
	DefaultWarehouseID(ctx context.Context, orgID id.ID) (*id.ID, error)
}
