// Package money holds the fixed-point amount helpers shared by every store.
// Amounts live in NUMERIC(20,2) columns and travel through pgx as text, so a
// single parse/format pair keeps the database and decimal views consistent.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Parse converts a text amount (typically scanned from a numeric::text cast)
// into a decimal.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// Format renders an amount the way it is stored: two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// IsPositive reports whether the amount is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}
