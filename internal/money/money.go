// Package money provides the fixed-point amount type used for every
// monetary value in the system. Amounts are int64 minor units (cents,
// paise); floats are never persisted or compared.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a signed quantity of money in minor currency units.
type Amount int64

var ErrInvalidAmount = errors.New("money: invalid amount")

// Parse converts user-facing decimal input (e.g. "123.45") into minor
// units, rounding to the nearest unit at the boundary. This is the only
// place decimal input touches the core.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	a, err := FromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return a, nil
}

// FromDecimal converts a major-unit decimal to minor units, rounding
// half away from zero. Values whose minor units do not fit in int64
// are rejected; IntPart alone would silently wrap.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(2).Round(0)
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the major-unit decimal representation.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String renders the amount as a plain decimal, e.g. -3050 -> "-30.50".
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

func (a Amount) IsPositive() bool { return a > 0 }
func (a Amount) IsZero() bool     { return a == 0 }

// Abs returns the magnitude of the amount.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount { return -a }
