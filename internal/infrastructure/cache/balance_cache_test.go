package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
)

func TestBalanceKey(t *testing.T) {
	loc := id.MustParse("0190a3c4-0000-7000-8000-000000000001")
	item := id.MustParse("0190a3c4-0000-7000-8000-000000000002")

	got := balanceKey(stock.BalanceKey{StockLocationID: loc, StockItemID: item})
	assert.Equal(t, "fleetledger:balance:0190a3c4-0000-7000-8000-000000000001:0190a3c4-0000-7000-8000-000000000002", got)
}

func TestNewBalanceCache_DefaultTTL(t *testing.T) {
	c := NewBalanceCache(nil, 0)
	assert.Equal(t, DefaultBalanceTTL, c.ttl)
}
