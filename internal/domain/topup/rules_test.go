package topup_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
	"fleetledger/internal/domain/topup"
	"fleetledger/internal/ledgertest"
)

func TestCreateRule_Validation(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	other := env.NewOrg()
	ctx := context.Background()

	valid := func() topup.CreateRuleInput {
		return topup.CreateRuleInput{
			OrganizationID: org.ID,
			FuelCardID:     org.Card,
			StockItemID:    org.Item,
			ScheduleType:   topup.ScheduleWeekly,
			AmountLiters:   ledgertest.Qty("60"),
		}
	}
	negative := ledgertest.Qty("-1")
	fineThreshold := decimal.RequireFromString("5.0001")
	ownCard := env.CardLoc(t, org).ID
	foreignWarehouse := env.WarehouseLoc(t, other).ID

	tests := []struct {
		name   string
		mutate func(in *topup.CreateRuleInput)
		field  string
	}{
		{"unknown schedule", func(in *topup.CreateRuleInput) { in.ScheduleType = "YEARLY" }, "scheduleType"},
		{"zero amount", func(in *topup.CreateRuleInput) { in.AmountLiters = decimal.Zero }, "amountLiters"},
		{"too precise amount", func(in *topup.CreateRuleInput) { in.AmountLiters = decimal.RequireFromString("60.0001") }, "amountLiters"},
		{"negative threshold", func(in *topup.CreateRuleInput) { in.MinBalanceLiters = &negative }, "minBalanceLiters"},
		{"too precise threshold", func(in *topup.CreateRuleInput) { in.MinBalanceLiters = &fineThreshold }, "minBalanceLiters"},
		{"bad timezone", func(in *topup.CreateRuleInput) { in.Timezone = "Nowhere/Town" }, "timezone"},
		{"foreign card", func(in *topup.CreateRuleInput) { in.FuelCardID = other.Card }, "fuelCardId"},
		{"unknown item", func(in *topup.CreateRuleInput) { in.StockItemID = id.New() }, "stockItemId"},
		{"foreign source", func(in *topup.CreateRuleInput) { in.SourceStockLocationID = &foreignWarehouse }, "sourceStockLocationId"},
		{"card as its own source", func(in *topup.CreateRuleInput) { in.SourceStockLocationID = &ownCard }, "sourceStockLocationId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := env.Rules.CreateRule(ctx, in)

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "want AppError, got %v", err)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
			assert.Equal(t, tt.field, appErr.Field())
		})
	}

	rules, err := env.Rules.ListRules(ctx, org.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestCreateRule_DefaultsToPeriodStart(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	ctx := context.Background()

	r, err := env.Rules.CreateRule(ctx, topup.CreateRuleInput{
		OrganizationID: org.ID,
		FuelCardID:     org.Card,
		StockItemID:    org.Item,
		ScheduleType:   topup.ScheduleMonthly,
		AmountLiters:   ledgertest.Qty("200"),
		Timezone:       "UTC",
	})
	require.NoError(t, err)

	assert.True(t, r.IsActive)
	assert.Equal(t, 1, r.NextRunAt.Day())
	assert.Zero(t, r.NextRunAt.Hour())
	assert.False(t, r.NextRunAt.After(time.Now()))

	got, err := env.Rules.GetRule(ctx, org.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = env.Rules.GetRule(ctx, env.NewOrg().ID, r.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSetActive(t *testing.T) {
	env := ledgertest.New()
	org := env.NewOrg()
	env.Income(t, org, env.WarehouseLoc(t, org).ID, "1000", runDay.Add(-time.Hour))
	rule := newRule(t, env, org, "25", nil)
	ctx := context.Background()

	paused, err := env.Rules.SetActive(ctx, org.ID, rule.ID, false)
	require.NoError(t, err)
	assert.False(t, paused.IsActive)
	assert.Zero(t, run(t, env, runDay).Processed, "paused rules are not claimed")

	resumed, err := env.Rules.SetActive(ctx, org.ID, rule.ID, true)
	require.NoError(t, err)
	assert.True(t, resumed.IsActive)
	assert.Equal(t, runDay, resumed.NextRunAt)
	assert.Equal(t, 1, run(t, env, runDay).ToppedUp)

	_, err = env.Rules.SetActive(ctx, env.NewOrg().ID, rule.ID, false)
	assert.True(t, apperror.IsNotFound(err))
}
