package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/ledgertest"
)

func transfer(t *testing.T, env *ledgertest.Env, org ledgertest.Org, from, to id.ID, qty string, at time.Time, seq int) *stock.Movement {
	t.Helper()
	m, err := env.Movements.CreateTransfer(context.Background(), stock.TransferInput{
		MovementInput: stock.MovementInput{
			OrganizationID: org.ID,
			StockItemID:    org.Item,
			Quantity:       ledgertest.Qty(qty),
			OccurredAt:     at,
			OccurredSeq:    seq,
		},
		FromStockLocationID: from,
		ToStockLocationID:   to,
	})
	require.NoError(t, err)
	return m
}

func TestBalanceAt_PointInTime(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	wh := env.WarehouseLoc(t, org)

	assert.True(t, env.Balance(t, org, wh.ID, day).IsZero(), "no movements is zero")

	env.Income(t, org, wh.ID, "100", day)
	_, err := env.Movements.CreateExpense(context.Background(), stock.SingleLocationInput{
		MovementInput: stock.MovementInput{
			OrganizationID: org.ID,
			StockItemID:    org.Item,
			Quantity:       ledgertest.Qty("25.5"),
			OccurredAt:     day.Add(48 * time.Hour),
		},
		StockLocationID: wh.ID,
	})
	require.NoError(t, err)

	tests := []struct {
		asOf time.Time
		want string
	}{
		{day.Add(-time.Microsecond), "0"},
		{day, "100"},
		{day.Add(24 * time.Hour), "100"},
		{day.Add(48 * time.Hour), "74.5"},
		{day.AddDate(1, 0, 0), "74.5"},
	}
	for _, tt := range tests {
		got := env.Balance(t, org, wh.ID, tt.asOf)
		assert.True(t, got.Equal(ledgertest.Qty(tt.want)), "as of %s: got %s want %s", tt.asOf, got, tt.want)
	}

	// Repeated queries are stable.
	assert.True(t, env.Balance(t, org, wh.ID, day).Equal(env.Balance(t, org, wh.ID, day)))

	other := ledgertest.Org{ID: org.ID, Item: id.New()}
	assert.True(t, env.Balance(t, other, wh.ID, day.AddDate(1, 0, 0)).IsZero(), "other stock items are separate")
}

func TestBalancesAt_TransferConservesStock(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	wh := env.WarehouseLoc(t, org)
	tank := env.TankLoc(t, org)
	card := env.CardLoc(t, org)

	env.Income(t, org, wh.ID, "500", day)
	transfer(t, env, org, wh.ID, tank.ID, "120", day.Add(time.Hour), stock.SeqWaybill)
	transfer(t, env, org, wh.ID, card.ID, "80", day.Add(2*time.Hour), stock.SeqTopUp)
	transfer(t, env, org, tank.ID, card.ID, "20", day.Add(3*time.Hour), stock.SeqManual)

	balances, err := env.Balances.BalancesAt(context.Background(), org.ID, org.Item, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, balances, 3)

	got := make(map[id.ID]decimal.Decimal)
	total := decimal.Zero
	for _, b := range balances {
		got[b.StockLocationID] = b.Balance
		total = total.Add(b.Balance)
	}
	assert.True(t, got[wh.ID].Equal(ledgertest.Qty("300")), "warehouse %s", got[wh.ID])
	assert.True(t, got[tank.ID].Equal(ledgertest.Qty("100")), "tank %s", got[tank.ID])
	assert.True(t, got[card.ID].Equal(ledgertest.Qty("100")), "card %s", got[card.ID])
	assert.True(t, total.Equal(ledgertest.Qty("500")), "transfers never create stock")

	for _, b := range balances {
		single := env.Balance(t, org, b.StockLocationID, day.Add(24*time.Hour))
		assert.True(t, single.Equal(b.Balance), "grouped and single balance agree")
	}
}

func TestStatement(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	wh := env.WarehouseLoc(t, org)
	tank := env.TankLoc(t, org)
	ctx := context.Background()

	env.Income(t, org, wh.ID, "200", day.Add(-24*time.Hour))

	docType, docID := "WAYBILL", "WB-1"
	waybill, err := env.Movements.CreateTransfer(ctx, stock.TransferInput{
		MovementInput: stock.MovementInput{
			OrganizationID: org.ID,
			StockItemID:    org.Item,
			Quantity:       ledgertest.Qty("50"),
			OccurredAt:     day.Add(time.Hour),
			OccurredSeq:    stock.SeqWaybill,
			DocumentType:   &docType,
			DocumentID:     &docID,
		},
		FromStockLocationID: wh.ID,
		ToStockLocationID:   tank.ID,
	})
	require.NoError(t, err)
	// Same instant, lower sequence: listed first.
	env.Income(t, org, wh.ID, "10", day.Add(time.Hour))

	_, err = env.Storno.Storno(ctx, stock.StornoRequest{
		OrganizationID: org.ID, DocumentType: docType, DocumentID: docID, Reason: "typo",
	})
	require.NoError(t, err)
	transfer(t, env, org, wh.ID, tank.ID, "30", day.Add(2*time.Hour), stock.SeqWaybill)

	st, err := env.Balances.Statement(ctx, wh.ID, org.Item, day, day.Add(24*time.Hour))
	require.NoError(t, err)

	assert.True(t, st.Opening.Equal(ledgertest.Qty("200")))
	assert.True(t, st.Receipt.Equal(ledgertest.Qty("10")))
	assert.True(t, st.Expense.Equal(ledgertest.Qty("30")))
	assert.True(t, st.Closing.Equal(ledgertest.Qty("180")))
	assert.True(t, st.Closing.Equal(env.Balance(t, org, wh.ID, day.Add(24*time.Hour))))

	require.Len(t, st.Lines, 4, "voided original and its compensation stay visible")
	assert.Equal(t, stock.MovementIncome, st.Lines[0].Movement.Type)
	assert.Equal(t, waybill.ID, st.Lines[1].Movement.ID)
	assert.False(t, st.Lines[1].Counted)
	assert.True(t, st.Lines[2].Movement.IsStorno())
	assert.False(t, st.Lines[2].Counted)
	assert.True(t, st.Lines[3].Counted)
	assert.True(t, st.Lines[3].RunningBalance.Equal(st.Closing))
}

func TestStatement_RejectsInvertedPeriod(t *testing.T) {
	env := ledgertest.New()
	_, err := env.Balances.Statement(context.Background(), id.New(), id.New(), day, day.Add(-time.Hour))
	assert.True(t, apperror.IsValidation(err))
}

type mapCache struct {
	mu      sync.Mutex
	entries map[stock.BalanceKey]decimal.Decimal
	hits    int
}

func (c *mapCache) Get(_ context.Context, key stock.BalanceKey) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key stock.BalanceKey, v decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...stock.BalanceKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func TestCachedBalances_InvalidatedByLedgerWrites(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	wh := env.WarehouseLoc(t, org)
	tank := env.TankLoc(t, org)
	ctx := context.Background()

	cache := &mapCache{entries: make(map[stock.BalanceKey]decimal.Decimal)}
	cached := stock.NewCachedBalances(env.Balances, cache)
	env.Movements.Hooks().OnAfterPost(cached.Invalidate)
	env.Movements.Hooks().OnAfterVoid(cached.Invalidate)

	env.Income(t, org, wh.ID, "70", day)

	bal, err := cached.Current(ctx, wh.ID, org.Item)
	require.NoError(t, err)
	assert.True(t, bal.Equal(ledgertest.Qty("70")))

	bal, err = cached.Current(ctx, wh.ID, org.Item)
	require.NoError(t, err)
	assert.True(t, bal.Equal(ledgertest.Qty("70")))
	assert.Equal(t, 1, cache.hits)

	docType, docID := "WAYBILL", "WB-9"
	_, err = env.Movements.CreateTransfer(ctx, stock.TransferInput{
		MovementInput: stock.MovementInput{
			OrganizationID: org.ID, StockItemID: org.Item, Quantity: ledgertest.Qty("20"),
			OccurredAt: day, DocumentType: &docType, DocumentID: &docID,
		},
		FromStockLocationID: wh.ID,
		ToStockLocationID:   tank.ID,
	})
	require.NoError(t, err)

	bal, err = cached.Current(ctx, wh.ID, org.Item)
	require.NoError(t, err)
	assert.True(t, bal.Equal(ledgertest.Qty("50")), "post drops the cached entry")

	_, err = env.Storno.Storno(ctx, stock.StornoRequest{OrganizationID: org.ID, DocumentType: docType, DocumentID: docID, Reason: "cancel"})
	require.NoError(t, err)

	bal, err = cached.Current(ctx, wh.ID, org.Item)
	require.NoError(t, err)
	assert.True(t, bal.Equal(ledgertest.Qty("70")), "storno drops the cached entry")
}
