// Package price implements the engine's fixed-point price representation.
//
// All book state is kept in integer ticks; floating point never enters the
// matching path. Conversions between decimal prices and ticks
// (FromDecimalString, ToDecimal) only happen at the ingest/display boundary
// (the CSV, JSON-lines and binary event files); the depth-snapshot wire
// shape carries integer ticks.
package price

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of ticks per unit of human currency (four decimal
// places, per spec).
const Scale = 10000

// Ticks is a non-negative integer price, denominated in 1/Scale of a unit
// of currency. The zero value means "no price" for market orders.
type Ticks int64

// FromDecimalString parses a human decimal price string (e.g. "50.1234")
// into Ticks, rounding half-to-even at the fourth fractional digit. This is
// the conversion the CSV/JSON-lines event readers use on ingest (spec §6:
// "Prices are decimal with up to four fractional digits; they round
// half-to-even on ingest").
func FromDecimalString(s string) (Ticks, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("price: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("price: negative price %q", s)
	}
	scaled := d.Mul(decimal.NewFromInt(Scale)).RoundBank(0)
	return Ticks(scaled.IntPart()), nil
}

// ToDecimal converts Ticks back to a decimal.Decimal for display, and
// (through String) for re-serializing prices into event records.
func (t Ticks) ToDecimal() decimal.Decimal {
	return decimal.New(int64(t), 0).Div(decimal.NewFromInt(Scale))
}

func (t Ticks) String() string {
	return t.ToDecimal().StringFixed(4)
}

// Valid reports whether t is usable as a limit price: limit orders
// require a strictly positive price.
func (t Ticks) Valid() bool {
	return t > 0
}
