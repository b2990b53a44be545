package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/pkg/logger"
)

// BalanceEngine answers point-in-time balance questions from the ledger.
// It never reads denormalized balances.
type BalanceEngine struct {
	repo Repository
}

func NewBalanceEngine(repo Repository) *BalanceEngine {
	return &BalanceEngine{repo: repo}
}

// BalanceAt returns the signed sum of the contributing movements of
// locationID for stockItemID with occurredAt <= asOf. No movements yields zero.
func (e *BalanceEngine) BalanceAt(ctx context.Context, locationID, stockItemID id.ID, asOf time.Time) (decimal.Decimal, error) {
	bal, err := e.repo.BalanceAt(ctx, locationID, stockItemID, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance at: %w", err)
	}
	return bal, nil
}

// BalancesAt returns the balance of every location of the organization.
func (e *BalanceEngine) BalancesAt(ctx context.Context, orgID, stockItemID id.ID, asOf time.Time) ([]LocationBalance, error) {
	out, err := e.repo.BalancesAt(ctx, orgID, stockItemID, asOf)
	if err != nil {
		return nil, fmt.Errorf("balances at: %w", err)
	}
	return out, nil
}

// Statement returns the movement history of a location over [from, to] with a
// running balance. Voided and compensating rows are listed but not counted.
func (e *BalanceEngine) Statement(ctx context.Context, locationID, stockItemID id.ID, from, to time.Time) (*Statement, error) {
	if to.Before(from) {
		return nil, apperror.NewValidation("statement period end is before its start").
			WithDetail("from", from).
			WithDetail("to", to)
	}

	opening, err := e.repo.BalanceAt(ctx, locationID, stockItemID, from.Add(-time.Microsecond))
	if err != nil {
		return nil, fmt.Errorf("opening balance: %w", err)
	}

	movements, err := e.repo.ListForLocation(ctx, locationID, stockItemID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	st := &Statement{
		StockLocationID: locationID,
		StockItemID:     stockItemID,
		From:            from,
		To:              to,
		Opening:         opening,
		Receipt:         decimal.Zero,
		Expense:         decimal.Zero,
		Lines:           make([]StatementLine, 0, len(movements)),
	}

	running := opening
	for _, m := range movements {
		delta := m.SignedDelta(locationID)
		counted := m.ContributesToBalance()
		if counted {
			running = running.Add(delta)
			if delta.IsPositive() {
				st.Receipt = st.Receipt.Add(delta)
			} else {
				st.Expense = st.Expense.Add(delta.Neg())
			}
		}
		st.Lines = append(st.Lines, StatementLine{
			Movement:       m,
			Delta:          delta,
			RunningBalance: running,
			Counted:        counted,
		})
	}
	st.Closing = running

	logger.Debug(ctx, "statement built",
		"location_id", locationID,
		"stock_item_id", stockItemID,
		"lines", len(st.Lines),
	)
	return st, nil
}
