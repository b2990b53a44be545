// Package fuelcards keeps the denormalized fuel card balance column in step
// with the ledger. The column is a display cache: only this job writes it,
// and it always recomputes from movements.
package fuelcards

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/locations"
	"fleetledger/pkg/logger"
)

// Card is the slice of a fuel card the job needs.
type Card struct {
	ID             id.ID           `db:"id"`
	OrganizationID id.ID           `db:"organization_id"`
	StockItemID    *id.ID          `db:"fuel_stock_item_id"`
	BalanceLiters  decimal.Decimal `db:"balance_liters"`
}

// CardStore reads fuel cards and writes their cached balance.
type CardStore interface {
	// ListCards returns cards of one organization, or of all when orgID is nil.
	ListCards(ctx context.Context, orgID *id.ID) ([]Card, error)
	SetCachedBalance(ctx context.Context, cardID id.ID, liters decimal.Decimal, computedAt time.Time) error
}

// LocationFinder looks up the ledger location of a card.
type LocationFinder interface {
	FindByOwner(ctx context.Context, t locations.LocationType, ownerID id.ID) (*locations.StockLocation, error)
}

// BalanceReader answers point-in-time balances.
type BalanceReader interface {
	BalanceAt(ctx context.Context, locationID, stockItemID id.ID, asOf time.Time) (decimal.Decimal, error)
}

// Result summarizes one recalculation.
type Result struct {
	Cards   int `json:"cards"`
	Updated int `json:"updated"`
}

// Recalculator rewrites fuel_cards.balance_liters from the ledger.
type Recalculator struct {
	cards    CardStore
	locs     LocationFinder
	balances BalanceReader
	now      func() time.Time
}

func NewRecalculator(cards CardStore, locs LocationFinder, balances BalanceReader) *Recalculator {
	return &Recalculator{cards: cards, locs: locs, balances: balances, now: time.Now}
}

// Run recomputes the cached balance of every card (of orgID when set).
// Cards without a fuel stock item are left untouched.
func (r *Recalculator) Run(ctx context.Context, orgID *id.ID) (*Result, error) {
	cards, err := r.cards.ListCards(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list fuel cards: %w", err)
	}

	now := r.now()
	res := &Result{}
	for _, c := range cards {
		if c.StockItemID == nil {
			continue
		}
		res.Cards++

		bal := decimal.Zero
		loc, err := r.locs.FindByOwner(ctx, locations.TypeFuelCard, c.ID)
		switch {
		case err == nil:
			bal, err = r.balances.BalanceAt(ctx, loc.ID, *c.StockItemID, now)
			if err != nil {
				return res, fmt.Errorf("balance of card %s: %w", c.ID, err)
			}
		case !apperror.IsNotFound(err):
			return res, fmt.Errorf("location of card %s: %w", c.ID, err)
		}

		if bal.Equal(c.BalanceLiters) {
			continue
		}
		if err := r.cards.SetCachedBalance(ctx, c.ID, bal, now); err != nil {
			return res, fmt.Errorf("store balance of card %s: %w", c.ID, err)
		}
		res.Updated++
	}

	logger.Info(ctx, "fuel card balances recalculated", "cards", res.Cards, "updated", res.Updated)
	return res, nil
}
