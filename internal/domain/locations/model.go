// Package locations resolves ledger locations (warehouses, vehicle tanks and
// fuel cards) for an organization, creating them on first use.
package locations

import (
	"time"

	"fleetledger/internal/core/id"
)

// LocationType is the kind of physical or logical place that can hold stock.
type LocationType string

const (
	TypeWarehouse   LocationType = "WAREHOUSE"
	TypeVehicleTank LocationType = "VEHICLE_TANK"
	TypeFuelCard    LocationType = "FUEL_CARD"
)

// Valid reports whether t is one of the known location types.
func (t LocationType) Valid() bool {
	switch t {
	case TypeWarehouse, TypeVehicleTank, TypeFuelCard:
		return true
	}
	return false
}

// OwnerKind names an entity owned by the directory collaborators.
type OwnerKind string

const (
	OwnerWarehouse OwnerKind = "warehouse"
	OwnerVehicle   OwnerKind = "vehicle"
	OwnerFuelCard  OwnerKind = "fuel_card"
	OwnerStockItem OwnerKind = "stock_item"
)

// OwnerKind returns the directory entity that backs a location of type t.
func (t LocationType) OwnerKind() OwnerKind {
	switch t {
	case TypeVehicleTank:
		return OwnerVehicle
	case TypeFuelCard:
		return OwnerFuelCard
	default:
		return OwnerWarehouse
	}
}

// StockLocation is a place stock can be held.
// Exactly one owner reference is set and it matches Type.
type StockLocation struct {
	ID             id.ID        `db:"id" json:"id"`
	OrganizationID id.ID        `db:"organization_id" json:"organizationId"`
	Type           LocationType `db:"location_type" json:"type"`
	WarehouseID    *id.ID       `db:"warehouse_id" json:"warehouseId,omitempty"`
	VehicleID      *id.ID       `db:"vehicle_id" json:"vehicleId,omitempty"`
	FuelCardID     *id.ID       `db:"fuel_card_id" json:"fuelCardId,omitempty"`
	IsActive       bool         `db:"is_active" json:"isActive"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
}

// NewStockLocation builds an active location of type t owned by ownerID.
func NewStockLocation(orgID id.ID, t LocationType, ownerID id.ID, now time.Time) *StockLocation {
	loc := &StockLocation{
		ID:             id.New(),
		OrganizationID: orgID,
		Type:           t,
		IsActive:       true,
		CreatedAt:      now,
	}
	switch t {
	case TypeWarehouse:
		loc.WarehouseID = id.Ptr(ownerID)
	case TypeVehicleTank:
		loc.VehicleID = id.Ptr(ownerID)
	case TypeFuelCard:
		loc.FuelCardID = id.Ptr(ownerID)
	}
	return loc
}

// OwnerID returns the id of the warehouse, vehicle or fuel card behind the location.
func (l *StockLocation) OwnerID() id.ID {
	switch {
	case l.WarehouseID != nil:
		return *l.WarehouseID
	case l.VehicleID != nil:
		return *l.VehicleID
	case l.FuelCardID != nil:
		return *l.FuelCardID
	}
	return id.ID{}
}
