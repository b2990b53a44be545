package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"fleetledger/internal/domain/stock"
)

const (
	balanceKeyPrefix  = "fleetledger:balance:"
	DefaultBalanceTTL = 30 * time.Second
)

// BalanceCache stores current balances as decimal strings with a TTL.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ stock.BalanceCache = (*BalanceCache)(nil)

func NewBalanceCache(rdb *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceCache{rdb: rdb, ttl: ttl}
}

func balanceKey(k stock.BalanceKey) string {
	return balanceKeyPrefix + k.StockLocationID.String() + ":" + k.StockItemID.String()
}

func (c *BalanceCache) Get(ctx context.Context, key stock.BalanceKey) (decimal.Decimal, bool, error) {
	raw, err := c.rdb.Get(ctx, balanceKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("redis get: %w", err)
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		// Corrupt entry: treat as a miss, the next Set overwrites it.
		return decimal.Zero, false, nil
	}
	return v, true, nil
}

func (c *BalanceCache) Set(ctx context.Context, key stock.BalanceKey, value decimal.Decimal) error {
	if err := c.rdb.Set(ctx, balanceKey(key), value.String(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *BalanceCache) Delete(ctx context.Context, keys ...stock.BalanceKey) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = balanceKey(k)
	}
	if err := c.rdb.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
