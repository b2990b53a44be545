package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
)

type movementRepo struct{ s *Store }

// Movements returns the store's ledger repository.
func (s *Store) Movements() stock.Repository { return movementRepo{s} }

func (r movementRepo) Insert(ctx context.Context, m *stock.Movement) error {
	if err := r.s.fault(m); err != nil {
		return err
	}
	return r.s.with(ctx, func(st *state) error {
		if m.ExternalRef != nil {
			for i := range st.movements {
				e := &st.movements[i]
				if e.OrganizationID == m.OrganizationID && e.ExternalRef != nil && *e.ExternalRef == *m.ExternalRef {
					return apperror.NewDuplicate("stock_movement", "externalRef", *m.ExternalRef)
				}
			}
		}
		for i := range st.movements {
			if st.movements[i].ID == m.ID {
				return apperror.NewDuplicate("stock_movement", "id", m.ID.String())
			}
		}
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r movementRepo) GetByID(ctx context.Context, orgID, movementID id.ID) (*stock.Movement, error) {
	var out *stock.Movement
	err := r.s.with(ctx, func(st *state) error {
		for i := range st.movements {
			m := st.movements[i]
			if m.ID == movementID && m.OrganizationID == orgID {
				out = &m
				return nil
			}
		}
		return apperror.NewNotFound("stock_movement", movementID)
	})
	return out, err
}

func (r movementRepo) GetByExternalRef(ctx context.Context, orgID id.ID, ref string) (*stock.Movement, error) {
	var out *stock.Movement
	err := r.s.with(ctx, func(st *state) error {
		for i := range st.movements {
			m := st.movements[i]
			if m.OrganizationID == orgID && m.ExternalRef != nil && *m.ExternalRef == ref {
				out = &m
				return nil
			}
		}
		return apperror.NewNotFound("stock_movement", ref)
	})
	return out, err
}

func (r movementRepo) List(ctx context.Context, f stock.MovementFilter) ([]stock.Movement, error) {
	out := make([]stock.Movement, 0)
	err := r.s.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if matches(&m, f) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return ledgerLess(&out[j], &out[i]) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []stock.Movement{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(m *stock.Movement, f stock.MovementFilter) bool {
	switch {
	case m.OrganizationID != f.OrganizationID:
		return false
	case f.StockLocationID != nil && !m.Touches(*f.StockLocationID):
		return false
	case f.StockItemID != nil && m.StockItemID != *f.StockItemID:
		return false
	case f.DocumentType != nil && (m.DocumentType == nil || *m.DocumentType != *f.DocumentType):
		return false
	case f.DocumentID != nil && (m.DocumentID == nil || *m.DocumentID != *f.DocumentID):
		return false
	case f.From != nil && m.OccurredAt.Before(*f.From):
		return false
	case f.To != nil && m.OccurredAt.After(*f.To):
		return false
	case !f.IncludeVoid && m.IsVoid:
		return false
	}
	return true
}

func (r movementRepo) ListByDocument(ctx context.Context, orgID id.ID, documentType, documentID string) ([]stock.Movement, error) {
	return r.collect(ctx, func(m *stock.Movement) bool {
		return m.OrganizationID == orgID &&
			m.DocumentType != nil && *m.DocumentType == documentType &&
			m.DocumentID != nil && *m.DocumentID == documentID
	})
}

func (r movementRepo) ListForLocation(ctx context.Context, locationID, stockItemID id.ID, from, to time.Time) ([]stock.Movement, error) {
	return r.collect(ctx, func(m *stock.Movement) bool {
		return m.StockItemID == stockItemID && m.Touches(locationID) &&
			!m.OccurredAt.Before(from) && !m.OccurredAt.After(to)
	})
}

func (r movementRepo) collect(ctx context.Context, keep func(m *stock.Movement) bool) ([]stock.Movement, error) {
	out := make([]stock.Movement, 0)
	err := r.s.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if keep(&m) {
				out = append(out, m)
			}
		}
		return nil
	})
	sortLedger(out)
	return out, err
}

func (r movementRepo) Void(ctx context.Context, orgID id.ID, movementIDs []id.ID, voidedAt time.Time, userID *string, reason string) (int64, error) {
	want := make(map[id.ID]bool, len(movementIDs))
	for _, mid := range movementIDs {
		want[mid] = true
	}

	var n int64
	err := r.s.with(ctx, func(st *state) error {
		for i := range st.movements {
			m := &st.movements[i]
			if !want[m.ID] || m.OrganizationID != orgID || m.IsVoid {
				continue
			}
			at := voidedAt
			why := reason
			m.IsVoid = true
			m.VoidedAt = &at
			m.VoidedByUserID = userID
			m.VoidReason = &why
			n++
		}
		return nil
	})
	return n, err
}

func (r movementRepo) BalanceAt(ctx context.Context, locationID, stockItemID id.ID, asOf time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.s.with(ctx, func(st *state) error {
		for i := range st.movements {
			m := &st.movements[i]
			if m.StockItemID != stockItemID || !m.ContributesToBalance() || m.OccurredAt.After(asOf) {
				continue
			}
			total = total.Add(m.SignedDelta(locationID))
		}
		return nil
	})
	return total, err
}

func (r movementRepo) BalancesAt(ctx context.Context, orgID, stockItemID id.ID, asOf time.Time) ([]stock.LocationBalance, error) {
	var locs []locations.StockLocation
	out := make([]stock.LocationBalance, 0)
	err := r.s.with(ctx, func(st *state) error {
		for _, loc := range st.locations {
			if loc.OrganizationID == orgID {
				locs = append(locs, loc)
			}
		}
		sortLocations(locs)

		for _, loc := range locs {
			total := decimal.Zero
			for i := range st.movements {
				m := &st.movements[i]
				if m.OrganizationID != orgID || m.StockItemID != stockItemID ||
					!m.ContributesToBalance() || m.OccurredAt.After(asOf) {
					continue
				}
				total = total.Add(m.SignedDelta(loc.ID))
			}
			out = append(out, stock.LocationBalance{StockLocationID: loc.ID, Balance: total})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}
	return out, nil
}
