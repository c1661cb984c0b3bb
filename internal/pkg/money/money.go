package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CurrencyExponent is the number of fractional digits for NOK.
const CurrencyExponent = 2

// ErrInvalidAmount marks decimal inputs that cannot be represented exactly
// in minor units at the currency precision.
var ErrInvalidAmount = errors.New("amount not representable at currency precision")

// Amount is a fixed-point count of minor currency units (øre). All
// arithmetic happens on this integer form; decimal strings appear only at
// the transport/display boundary.
type Amount int64

// FromDecimalString parses a display decimal like "129.90" into minor units.
// Inputs with more fractional digits than the currency supports are rejected,
// never truncated.
func FromDecimalString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal value into minor units with an exactness check.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(CurrencyExponent)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Amount(scaled.IntPart()), nil
}

// Decimal returns the exact decimal form of the amount.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -CurrencyExponent)
}

// String formats the amount as a fixed two-decimal string, e.g. "129.90".
func (a Amount) String() string {
	return a.Decimal().StringFixed(CurrencyExponent)
}

// Add returns the sum of two amounts.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// MulQuantity multiplies the amount by an item quantity.
func (a Amount) MulQuantity(qty int64) Amount {
	return Amount(int64(a) * qty)
}

// Minor returns the raw minor-unit integer.
func (a Amount) Minor() int64 {
	return int64(a)
}
