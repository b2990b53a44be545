package stock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetledger/internal/core/apperror"
	"fleetledger/internal/core/id"
)

func TestKindsTable(t *testing.T) {
	assert.Equal(t, []MovementType{MovementAdjustment, MovementExpense, MovementIncome, MovementTransfer}, MovementTypes())

	for _, mt := range MovementTypes() {
		k := kinds[mt]
		assert.NotEmpty(t, k.effects, "%s has no effects", mt)
		assert.True(t, k.compensation.Valid(), "%s compensates with unknown type", mt)
		assert.Equal(t, k.paired, kinds[k.compensation].paired, "%s and its compensation differ in shape", mt)
	}

	byRole := EffectsByRole()
	assert.Len(t, byRole[RoleLocation], 3)
	assert.Len(t, byRole[RoleFrom], 1)
	assert.Len(t, byRole[RoleTo], 1)
}

func sampleMovements(a, b id.ID) []Movement {
	q := decimal.RequireFromString("12.5")
	ms := []Movement{
		{Type: MovementIncome, Quantity: q, StockLocationID: id.Ptr(a)},
		{Type: MovementExpense, Quantity: q, StockLocationID: id.Ptr(a)},
		{Type: MovementAdjustment, Quantity: q.Neg(), StockLocationID: id.Ptr(a)},
		{Type: MovementTransfer, Quantity: q, FromStockLocationID: id.Ptr(a), ToStockLocationID: id.Ptr(b)},
	}
	org, item := id.New(), id.New()
	for i := range ms {
		ms[i].ID = id.New()
		ms[i].OrganizationID = org
		ms[i].StockItemID = item
	}
	return ms
}

func TestSignedDelta(t *testing.T) {
	a, b, other := id.New(), id.New(), id.New()
	ms := sampleMovements(a, b)

	tests := []struct {
		m     Movement
		wantA string
		wantB string
	}{
		{ms[0], "12.5", "0"},
		{ms[1], "-12.5", "0"},
		{ms[2], "-12.5", "0"},
		{ms[3], "-12.5", "12.5"},
	}
	for _, tt := range tests {
		t.Run(string(tt.m.Type), func(t *testing.T) {
			assert.True(t, tt.m.SignedDelta(a).Equal(decimal.RequireFromString(tt.wantA)), "a: %s", tt.m.SignedDelta(a))
			assert.True(t, tt.m.SignedDelta(b).Equal(decimal.RequireFromString(tt.wantB)), "b: %s", tt.m.SignedDelta(b))
			assert.True(t, tt.m.SignedDelta(other).IsZero())
		})
	}
}

func TestCompensationCancelsOriginal(t *testing.T) {
	a, b := id.New(), id.New()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	docType, docID := "WAYBILL", "WB-7"

	for _, m := range sampleMovements(a, b) {
		m.OccurredAt = at
		m.OccurredSeq = SeqWaybill
		m.DocumentType = &docType
		m.DocumentID = &docID

		t.Run(string(m.Type), func(t *testing.T) {
			c := m.Compensation()

			require.NotNil(t, c.StornoOfMovementID)
			assert.Equal(t, m.ID, *c.StornoOfMovementID)
			assert.True(t, c.IsStorno())
			assert.False(t, c.ContributesToBalance())
			assert.Equal(t, m.OccurredAt, c.OccurredAt)
			assert.Equal(t, m.OccurredSeq, c.OccurredSeq)
			assert.Equal(t, m.DocumentType, c.DocumentType)
			assert.Equal(t, m.DocumentID, c.DocumentID)
			assert.NoError(t, c.validateShape(), "compensation must be a well-formed movement")

			for _, loc := range []id.ID{a, b} {
				sum := m.SignedDelta(loc).Add(c.SignedDelta(loc))
				assert.True(t, sum.IsZero(), "location %s keeps %s", loc, sum)
			}
		})
	}
}

func TestValidateShape(t *testing.T) {
	org, item, a, b := id.New(), id.New(), id.New(), id.New()
	pos := decimal.RequireFromString("5")

	base := func(mt MovementType, q decimal.Decimal) Movement {
		return Movement{OrganizationID: org, StockItemID: item, Type: mt, Quantity: q}
	}

	tests := []struct {
		name      string
		m         func() Movement
		wantField string
	}{
		{
			name: "income ok",
			m: func() Movement {
				m := base(MovementIncome, pos)
				m.StockLocationID = id.Ptr(a)
				return m
			},
		},
		{
			name: "negative adjustment ok",
			m: func() Movement {
				m := base(MovementAdjustment, pos.Neg())
				m.StockLocationID = id.Ptr(a)
				return m
			},
		},
		{
			name: "unknown type",
			m: func() Movement {
				m := base("WRITE_OFF", pos)
				m.StockLocationID = id.Ptr(a)
				return m
			},
			wantField: "movementType",
		},
		{
			name: "zero income",
			m: func() Movement {
				m := base(MovementIncome, decimal.Zero)
				m.StockLocationID = id.Ptr(a)
				return m
			},
			wantField: "quantity",
		},
		{
			name: "negative expense",
			m: func() Movement {
				m := base(MovementExpense, pos.Neg())
				m.StockLocationID = id.Ptr(a)
				return m
			},
			wantField: "quantity",
		},
		{
			name: "zero adjustment",
			m: func() Movement {
				m := base(MovementAdjustment, decimal.Zero)
				m.StockLocationID = id.Ptr(a)
				return m
			},
			wantField: "quantity",
		},
		{
			name: "income without location",
			m: func() Movement {
				return base(MovementIncome, pos)
			},
			wantField: "stockLocationId",
		},
		{
			name: "income with transfer endpoints",
			m: func() Movement {
				m := base(MovementIncome, pos)
				m.StockLocationID = id.Ptr(a)
				m.ToStockLocationID = id.Ptr(b)
				return m
			},
			wantField: "stockLocationId",
		},
		{
			name: "transfer to itself",
			m: func() Movement {
				m := base(MovementTransfer, pos)
				m.FromStockLocationID = id.Ptr(a)
				m.ToStockLocationID = id.Ptr(a)
				return m
			},
			wantField: "toStockLocationId",
		},
		{
			name: "transfer without source",
			m: func() Movement {
				m := base(MovementTransfer, pos)
				m.ToStockLocationID = id.Ptr(b)
				return m
			},
			wantField: "fromStockLocationId",
		},
		{
			name: "missing stock item",
			m: func() Movement {
				m := base(MovementIncome, pos)
				m.StockItemID = id.ID{}
				m.StockLocationID = id.Ptr(a)
				return m
			},
			wantField: "stockItemId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.m()
			err := m.validateShape()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "want AppError, got %v", err)
			assert.Equal(t, tt.wantField, appErr.Field())
		})
	}
}
