package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
)

type auditStamp struct {
	CreatedAt time.Time `db:"created_at"`
}

type stampedRow struct {
	auditStamp
	ID      id.ID  `db:"id"`
	Name    string `db:"name"`
	Ignored string `db:"-"`
	NoTag   string
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[stampedRow]()
	assert.Equal(t, []string{"created_at", "id", "name"}, cols)
}

func TestExtractDBColumns_Movement(t *testing.T) {
	cols := ExtractDBColumns[stock.Movement]()

	for _, expected := range []string{
		"id", "organization_id", "stock_item_id", "quantity", "movement_type",
		"stock_location_id", "from_stock_location_id", "to_stock_location_id",
		"occurred_at", "occurred_seq", "external_ref", "storno_of_movement_id", "is_void",
	} {
		assert.Contains(t, cols, expected)
	}
	assert.Equal(t, "id", cols[0])
}

func TestStructToMap_Movement(t *testing.T) {
	loc := id.New()
	m := stock.Movement{
		ID:              id.New(),
		Quantity:        decimal.RequireFromString("12.5"),
		Type:            stock.MovementIncome,
		StockLocationID: &loc,
	}

	got := StructToMap(&m)
	require.NotNil(t, got)

	assert.Equal(t, m.ID, got["id"])
	assert.Equal(t, stock.MovementIncome, got["movement_type"])
	assert.Equal(t, &loc, got["stock_location_id"])
	assert.Nil(t, got["from_stock_location_id"])
	assert.True(t, m.Quantity.Equal(got["quantity"].(decimal.Decimal)))
}

func TestStructToMap_NotAStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
