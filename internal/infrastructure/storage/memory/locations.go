package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/fuelcards"
	"fleetledger/internal/domain/locations"
)

type locationRepo struct{ s *Store }

// Locations returns the store's location repository.
func (s *Store) Locations() locations.Repository { return locationRepo{s} }

func (r locationRepo) GetByID(ctx context.Context, locationID id.ID) (*locations.StockLocation, error) {
	var out *locations.StockLocation
	err := r.s.with(ctx, func(st *state) error {
		loc, ok := st.locations[locationID]
		if !ok {
			return apperror.NewNotFound("stock_location", locationID)
		}
		out = &loc
		return nil
	})
	return out, err
}

func (r locationRepo) FindByOwner(ctx context.Context, t locations.LocationType, ownerID id.ID) (*locations.StockLocation, error) {
	var out *locations.StockLocation
	err := r.s.with(ctx, func(st *state) error {
		for _, loc := range st.locations {
			if loc.Type == t && loc.OwnerID() == ownerID {
				out = &loc
				return nil
			}
		}
		return apperror.NewNotFound("stock_location", ownerID)
	})
	return out, err
}

func (r locationRepo) Create(ctx context.Context, loc *locations.StockLocation) error {
	return r.s.with(ctx, func(st *state) error {
		for _, e := range st.locations {
			if e.Type == loc.Type && e.OwnerID() == loc.OwnerID() {
				return apperror.NewDuplicate("stock_location", "owner", loc.OwnerID().String())
			}
		}
		st.locations[loc.ID] = *loc
		return nil
	})
}

func (r locationRepo) ListByOrganization(ctx context.Context, orgID id.ID) ([]locations.StockLocation, error) {
	out := make([]locations.StockLocation, 0)
	err := r.s.with(ctx, func(st *state) error {
		for _, loc := range st.locations {
			if loc.OrganizationID == orgID {
				out = append(out, loc)
			}
		}
		return nil
	})
	sortLocations(out)
	return out, err
}

// SetLocationActive flips the active flag of a location. Deactivation is
// owned by the directory subsystems; tests use this to simulate it.
func (s *Store) SetLocationActive(locationID id.ID, active bool) {
	_ = s.with(context.Background(), func(st *state) error {
		if loc, ok := st.locations[locationID]; ok {
			loc.IsActive = active
			st.locations[locationID] = loc
		}
		return nil
	})
}

func sortLocations(locs []locations.StockLocation) {
	sort.SliceStable(locs, func(i, j int) bool {
		a, b := locs[i], locs[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

type directory struct{ s *Store }

// Directory returns the read view of seeded organizations and owners.
// It also serves as the fuel card store.
func (s *Store) Directory() interface {
	locations.Directory
	fuelcards.CardStore
} {
	return directory{s}
}

func (d directory) OwnerOrganization(ctx context.Context, kind locations.OwnerKind, ownerID id.ID) (id.ID, error) {
	var orgID id.ID
	err := d.s.with(ctx, func(st *state) error {
		org, ok := st.owners[ownerKey{kind, ownerID}]
		if !ok {
			return apperror.NewNotFound(string(kind), ownerID)
		}
		orgID = org
		return nil
	})
	return orgID, err
}

func (d directory) DefaultWarehouseID(ctx context.Context, orgID id.ID) (*id.ID, error) {
	var out *id.ID
	err := d.s.with(ctx, func(st *state) error {
		if wh, ok := st.defaultWarehouse[orgID]; ok {
			out = id.Ptr(wh)
		}
		return nil
	})
	return out, err
}

func (d directory) ListCards(ctx context.Context, orgID *id.ID) ([]fuelcards.Card, error) {
	out := make([]fuelcards.Card, 0)
	err := d.s.with(ctx, func(st *state) error {
		for _, c := range st.cards {
			if orgID == nil || c.OrganizationID == *orgID {
				out = append(out, c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, err
}

func (d directory) SetCachedBalance(ctx context.Context, cardID id.ID, liters decimal.Decimal, _ time.Time) error {
	return d.s.with(ctx, func(st *state) error {
		c, ok := st.cards[cardID]
		if !ok {
			return apperror.NewNotFound("fuel_card", cardID)
		}
		c.BalanceLiters = liters
		st.cards[cardID] = c
		return nil
	})
}
