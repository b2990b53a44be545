package stock

import (
	"sort"

	"github.com/shopspring/decimal"

	"fleetledger/internal/core/id"
)

// MovementType is the closed set of ledger entry variants.
type MovementType string

const (
	MovementIncome     MovementType = "INCOME"
	MovementExpense    MovementType = "EXPENSE"
	MovementTransfer   MovementType = "TRANSFER"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// LocationRole is the column a movement uses to reference a location.
type LocationRole string

const (
	RoleLocation LocationRole = "location"
	RoleFrom     LocationRole = "from"
	RoleTo       LocationRole = "to"
)

// Effect is the contribution of a movement type to the location in Role:
// quantity multiplied by Sign.
type Effect struct {
	Type MovementType
	Role LocationRole
	Sign int
}

type kind struct {
	paired         bool // uses from/to instead of a single location
	signedQuantity bool // quantity may be negative (never zero)
	effects        []Effect
	compensation   MovementType
	swapOnStorno   bool
	negateOnStorno bool
}

// kinds is the only place that knows how each variant moves stock.
// The SQL aggregates and the in-process delta are both derived from it.
var kinds = map[MovementType]kind{
	MovementIncome: {
		effects:      []Effect{{MovementIncome, RoleLocation, 1}},
		compensation: MovementExpense,
	},
	MovementExpense: {
		effects:      []Effect{{MovementExpense, RoleLocation, -1}},
		compensation: MovementIncome,
	},
	MovementTransfer: {
		paired: true,
		effects: []Effect{
			{MovementTransfer, RoleFrom, -1},
			{MovementTransfer, RoleTo, 1},
		},
		compensation: MovementTransfer,
		swapOnStorno: true,
	},
	MovementAdjustment: {
		signedQuantity: true,
		effects:        []Effect{{MovementAdjustment, RoleLocation, 1}},
		compensation:   MovementAdjustment,
		negateOnStorno: true,
	},
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	_, ok := kinds[t]
	return ok
}

// Paired reports whether t moves stock between two locations.
func (t MovementType) Paired() bool {
	return kinds[t].paired
}

// SignedQuantity reports whether t accepts negative quantities.
func (t MovementType) SignedQuantity() bool {
	return kinds[t].signedQuantity
}

// MovementTypes returns all movement types in a stable order.
func MovementTypes() []MovementType {
	out := make([]MovementType, 0, len(kinds))
	for t := range kinds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Effects returns every (type, role, sign) contribution, ordered by type then role.
func Effects() []Effect {
	var out []Effect
	for _, t := range MovementTypes() {
		out = append(out, kinds[t].effects...)
	}
	return out
}

// EffectsByRole groups Effects by the location column they apply to.
func EffectsByRole() map[LocationRole][]Effect {
	out := make(map[LocationRole][]Effect)
	for _, e := range Effects() {
		out[e.Role] = append(out[e.Role], e)
	}
	return out
}

func (m *Movement) locationFor(role LocationRole) *id.ID {
	switch role {
	case RoleFrom:
		return m.FromStockLocationID
	case RoleTo:
		return m.ToStockLocationID
	default:
		return m.StockLocationID
	}
}

// SignedDelta is the change m applies to locationID, ignoring void state.
func (m *Movement) SignedDelta(locationID id.ID) decimal.Decimal {
	delta := decimal.Zero
	for _, e := range kinds[m.Type].effects {
		if ref := m.locationFor(e.Role); ref != nil && *ref == locationID {
			delta = delta.Add(m.Quantity.Mul(decimal.NewFromInt(int64(e.Sign))))
		}
	}
	return delta
}

// Compensation returns the entry that cancels m: same stock item, date,
// sequence and document, with the type, direction or sign reversed.
func (m *Movement) Compensation() Movement {
	k := kinds[m.Type]
	c := Movement{
		OrganizationID:      m.OrganizationID,
		StockItemID:         m.StockItemID,
		Type:                k.compensation,
		Quantity:            m.Quantity,
		StockLocationID:     m.StockLocationID,
		FromStockLocationID: m.FromStockLocationID,
		ToStockLocationID:   m.ToStockLocationID,
		OccurredAt:          m.OccurredAt,
		OccurredSeq:         m.OccurredSeq,
		DocumentType:        m.DocumentType,
		DocumentID:          m.DocumentID,
		StornoOfMovementID:  id.Ptr(m.ID),
	}
	if k.swapOnStorno {
		c.FromStockLocationID, c.ToStockLocationID = m.ToStockLocationID, m.FromStockLocationID
	}
	if k.negateOnStorno {
		c.Quantity = m.Quantity.Neg()
	}
	return c
}
