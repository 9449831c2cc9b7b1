// Package moneyfmt renders the core's exact int64 cents values as
// shopspring/decimal.Decimal for display and reporting, the boundary
// spec.md §8 draws between the core's integer cents arithmetic and any
// human-facing or currency-formatted surface. Nothing under internal/
// imports this package; it exists for cmd/ and internal/api to call at
// the edge.
package moneyfmt

import (
	"fmt"

	"simcash/internal/domain"

	"github.com/shopspring/decimal"
)

// centsPerUnit is the scale every simcash amount is denominated at: two
// decimal places, the same scale the teacher's ledger/settlement code
// uses for its decimal.Decimal money fields.
const centsPerUnit = 100

// FromCents converts an exact cents amount into a decimal.Decimal major-unit
// value, e.g. domain.Cents(12345) -> 123.45.
func FromCents(c domain.Cents) decimal.Decimal {
	return decimal.New(int64(c), 0).Div(decimal.New(centsPerUnit, 0))
}

// ToCents converts a major-unit decimal.Decimal back into exact cents,
// rounding half-away-from-zero at the cents boundary. Used when a config
// or API payload supplies amounts as decimal strings.
func ToCents(d decimal.Decimal) domain.Cents {
	scaled := d.Mul(decimal.New(centsPerUnit, 0))
	return domain.Cents(scaled.Round(0).IntPart())
}

// Format renders a cents amount as a fixed-point string with the given
// currency code suffix, e.g. Format(12345, "USD") -> "123.45 USD".
func Format(c domain.Cents, currencyCode string) string {
	return fmt.Sprintf("%s %s", FromCents(c).StringFixed(2), currencyCode)
}

// ParseAmount parses a decimal string (as accepted in config files and API
// request bodies) into exact cents, returning an error if the string isn't
// a valid decimal.
func ParseAmount(s string) (domain.Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return ToCents(d), nil
}
