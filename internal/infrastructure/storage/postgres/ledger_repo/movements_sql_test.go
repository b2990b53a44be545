package ledger_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/stock"
)

func TestSignedQuantityExpr_CoversEveryEffect(t *testing.T) {
	expr := signedQuantityExpr("$1")

	assert.True(t, strings.HasPrefix(expr, "CASE"))
	assert.True(t, strings.HasSuffix(expr, "ELSE 0 END"))
	assert.Contains(t, expr, "WHEN movement_type = 'INCOME' AND stock_location_id = $1 THEN quantity")
	assert.Contains(t, expr, "WHEN movement_type = 'EXPENSE' AND stock_location_id = $1 THEN -quantity")
	assert.Contains(t, expr, "WHEN movement_type = 'TRANSFER' AND from_stock_location_id = $1 THEN -quantity")
	assert.Contains(t, expr, "WHEN movement_type = 'TRANSFER' AND to_stock_location_id = $1 THEN quantity")
	assert.Contains(t, expr, "WHEN movement_type = 'ADJUSTMENT' AND stock_location_id = $1 THEN quantity")
	assert.Equal(t, len(stock.Effects()), strings.Count(expr, "WHEN"))
}

func TestBalanceAtSQL_ExcludesVoidAndStorno(t *testing.T) {
	sql := buildBalanceAtSQL()

	assert.Contains(t, sql, "is_void = false AND storno_of_movement_id IS NULL")
	assert.Contains(t, sql, "occurred_at <= $3")
	assert.Contains(t, sql, "stock_item_id = $2")
	assert.Contains(t, sql, "COALESCE(SUM(")
}

func TestBalancesAtSQL_OneBranchPerLocationColumn(t *testing.T) {
	sql := buildBalancesAtSQL()

	assert.Equal(t, 2, strings.Count(sql, "UNION ALL"))
	assert.Contains(t, sql, "SELECT stock_location_id AS loc_id")
	assert.Contains(t, sql, "SELECT from_stock_location_id AS loc_id")
	assert.Contains(t, sql, "SELECT to_stock_location_id AS loc_id")
	assert.Contains(t, sql, "LEFT JOIN")
	assert.Contains(t, sql, "GROUP BY loc_id")
	assert.Contains(t, sql, "WHERE l.organization_id = $1")
}

func TestBuildListQuery(t *testing.T) {
	repo := NewMovementRepo(nil)
	org := id.New()
	loc := id.New()
	item := id.New()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	docType := "WAYBILL"

	tests := []struct {
		name     string
		filter   stock.MovementFilter
		contains []string
		absent   []string
		args     int
	}{
		{
			name:     "organization only",
			filter:   stock.MovementFilter{OrganizationID: org},
			contains: []string{"WHERE organization_id = $1", "is_void = $2", "ORDER BY occurred_at DESC, occurred_seq DESC"},
			absent:   []string{"LIMIT", "OFFSET"},
			args:     2,
		},
		{
			name:   "location matches any role",
			filter: stock.MovementFilter{OrganizationID: org, StockLocationID: &loc, IncludeVoid: true},
			contains: []string{
				"(stock_location_id = $2 OR from_stock_location_id = $3 OR to_stock_location_id = $4)",
			},
			absent: []string{"is_void"},
			args:   4,
		},
		{
			name: "full filter with paging",
			filter: stock.MovementFilter{
				OrganizationID: org,
				StockItemID:    &item,
				DocumentType:   &docType,
				From:           &from,
				Limit:          50,
				Offset:         100,
			},
			contains: []string{"stock_item_id = $2", "document_type = $3", "occurred_at >= $4", "LIMIT 50", "OFFSET 100"},
			args:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.buildListQuery(tt.filter).ToSql()
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, sql, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, sql, s)
			}
			assert.Len(t, args, tt.args)
		})
	}
}
