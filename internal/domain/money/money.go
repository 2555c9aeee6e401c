// Package money provides an exact fixed-point monetary amount with two
// fractional digits. All catalog prices, discounts, and order totals are
// expressed as Amount; binary floating point never enters the arithmetic.
package money

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ErrNegative is returned when a constructor receives a negative value.
var ErrNegative = errors.New("amount must not be negative")

// Amount is an immutable monetary value with exactly two decimal places.
// The zero value is zero money and is ready to use.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// FromString parses a decimal string such as "19.99". The value is rounded
// half-up to two places, so "19.995" becomes "20.00".
func FromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, errors.Wrapf(err, "parse amount %q", s)
	}
	return Amount{d: d.Round(2)}, nil
}

// MustFromString is FromString that panics on invalid input. Intended for
// constants and tests.
func MustFromString(s string) Amount {
	a, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromCents builds an Amount from an integer number of cents.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -2)}
}

// FromDecimal converts a decimal.Decimal (e.g. scanned from a NUMERIC
// column) into an Amount, rounding half-up to two places.
func FromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d.Round(2)}
}

// Decimal exposes the underlying decimal value, for storage codecs.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a - b. The result may be negative; callers that must not go
// below zero check IsNegative.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// MulInt returns a * n. Used for line totals (unit price times quantity).
func (a Amount) MulInt(n int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(n))}
}

// PercentOf returns p percent of a, rounded half-up to two places.
func (a Amount) PercentOf(p int64) Amount {
	return Amount{d: a.d.Mul(decimal.NewFromInt(p)).Div(hundred).Round(2)}
}

// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a and b represent the same value.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// IsNegative reports whether a is below zero.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// IsZero reports whether a is exactly zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// Cents returns the amount as an integer number of cents, the unit payment
// providers expect for line items.
func (a Amount) Cents() int64 {
	return a.d.Mul(hundred).IntPart()
}

// String renders the amount with exactly two decimal places, e.g. "44.98".
func (a Amount) String() string { return a.d.StringFixed(2) }

// Float64 returns an inexact float representation. Presentation only; never
// fed back into arithmetic.
func (a Amount) Float64() float64 { return a.d.InexactFloat64() }

// MarshalJSON encodes the amount as a JSON string with two decimal places.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare number literal.
// Numbers are parsed from their decimal text form, never through float64.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
