// Package types provides common value types used across the finance engine.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount of federation credit. It is backed by an arbitrary
// precision decimal so that price*time products never lose precision.
//
// Examples:
//   - NewMoney(5).Mul(FromFloat(2)) = 10
//   - MustParse("0.25")            = 0.25
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// NewMoney creates a Money value from a whole number of units.
func NewMoney(units int64) Money { return Money{d: decimal.NewFromInt(units)} }

// FromFloat creates a Money value from a float.
func FromFloat(f float64) Money { return Money{d: decimal.NewFromFloat(f)} }

// FromDecimal wraps a decimal value.
func FromDecimal(d decimal.Decimal) Money { return Money{d: d} }

// Parse parses a decimal string such as "5.0" or "-12.75".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Arithmetic operations

// Add adds two Money values.
func (m Money) Add(other Money) Money { return Money{d: m.d.Add(other.d)} }

// Sub subtracts another Money value.
func (m Money) Sub(other Money) Money { return Money{d: m.d.Sub(other.d)} }

// Mul multiplies the amount by another amount (for example a unit price by
// a quantity of time units).
func (m Money) Mul(other Money) Money { return Money{d: m.d.Mul(other.d)} }

// Negate returns the negative of the Money value.
func (m Money) Negate() Money { return Money{d: m.d.Neg()} }

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.d.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.d.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.d.IsNegative() }

// Equal reports whether both values represent the same amount, ignoring
// trailing zeros ("5" equals "5.00").
func (m Money) Equal(other Money) bool { return m.d.Equal(other.d) }

// LessThan returns true if this amount is less than other.
func (m Money) LessThan(other Money) bool { return m.d.LessThan(other.d) }

// GreaterThan returns true if this amount is greater than other.
func (m Money) GreaterThan(other Money) bool { return m.d.GreaterThan(other.d) }

// Float64 returns the nearest float64 value and whether it is exact.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

// String returns the canonical decimal representation ("250", "0.5").
func (m Money) String() string { return m.d.String() }

// MarshalJSON encodes the amount as a JSON string to keep full precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.d.String())
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	m.d = d
	return nil
}

// Sum calculates the sum of multiple Money values.
func Sum(values ...Money) Money {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
