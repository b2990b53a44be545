// Package types provides quantity helpers shared by the ledger and top-up code.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// QuantityScale is the number of fractional digits stored for quantities
// (NUMERIC(18,3) in Postgres).
const QuantityScale int32 = 3

// Quantity is an exact decimal quantity (liters, units).
type Quantity = decimal.Decimal

// FitsScale reports whether q is stored without rounding.
func FitsScale(q Quantity) bool {
	return q.Equal(q.Round(QuantityScale))
}

// ParseQuantity parses a decimal string and rejects values finer than QuantityScale.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	if !FitsScale(d) {
		return decimal.Zero, fmt.Errorf("quantity %q has more than %d fractional digits", s, QuantityScale)
	}
	return d, nil
}

// MustQuantity parses s, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	d, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return d
}
