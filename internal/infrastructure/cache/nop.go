package cache

import (
	"context"

	"github.com/shopspring/decimal"

	"fleetledger/internal/domain/stock"
)

// Nop never stores anything. Used when REDIS_URL is not set, so every
// current-balance read goes to the ledger.
type Nop struct{}

var _ stock.BalanceCache = Nop{}

func (Nop) Get(context.Context, stock.BalanceKey) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (Nop) Set(context.Context, stock.BalanceKey, decimal.Decimal) error { return nil }

func (Nop) Delete(context.Context, ...stock.BalanceKey) error { return nil }
