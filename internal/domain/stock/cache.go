package stock

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
	"fleetledger/pkg/logger"
)

// BalanceKey identifies a cached current balance.
type BalanceKey struct {
	StockLocationID id.ID
	StockItemID     id.ID
}

// BalanceCache is a read-through cache for current balances.
// The ledger stays authoritative; entries expire on their own and are
// dropped whenever a movement touching the key is posted or voided.
type BalanceCache interface {
	Get(ctx context.Context, key BalanceKey) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key BalanceKey, value decimal.Decimal) error
	Delete(ctx context.Context, keys ...BalanceKey) error
}

// CachedBalances serves "balance now" reads through a BalanceCache.
type CachedBalances struct {
	engine *BalanceEngine
	cache  BalanceCache
	now    func() time.Time
}

func NewCachedBalances(engine *BalanceEngine, cache BalanceCache) *CachedBalances {
	return &CachedBalances{engine: engine, cache: cache, now: time.Now}
}

// Current returns the balance as of now. Cache failures fall back to the ledger.
func (c *CachedBalances) Current(ctx context.Context, locationID, stockItemID id.ID) (decimal.Decimal, error) {
	key := BalanceKey{StockLocationID: locationID, StockItemID: stockItemID}

	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		logger.Warn(ctx, "balance cache read failed", "error", err)
	} else if ok {
		return v, nil
	}

	bal, err := c.engine.BalanceAt(ctx, locationID, stockItemID, c.now())
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.cache.Set(ctx, key, bal); err != nil {
		logger.Warn(ctx, "balance cache write failed", "error", err)
	}
	return bal, nil
}

// Invalidate drops the cached balances of every location m touches.
// Registered as an after-post and after-void hook.
func (c *CachedBalances) Invalidate(ctx context.Context, m *Movement) error {
	var keys []BalanceKey
	for _, ref := range []*id.ID{m.StockLocationID, m.FromStockLocationID, m.ToStockLocationID} {
		if ref != nil {
			keys = append(keys, BalanceKey{StockLocationID: *ref, StockItemID: m.StockItemID})
		}
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		// A stale entry expires with its TTL; posting must not fail because of the cache.
		logger.Warn(ctx, "balance cache invalidation failed", "movement_id", m.ID, "error", err)
	}
	return nil
}
