package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the fixed-point precision of every balance and amount.
const AmountPlaces = 2

// Rounding selects how amounts with more than two decimals are reduced.
type Rounding string

const (
	// RoundHalfEven rounds to the nearest cent, ties to the even cent.
	RoundHalfEven Rounding = "half_even"
	// RoundTruncate drops extra decimals toward zero.
	RoundTruncate Rounding = "truncate"
)

// DefaultRounding is the pinned rounding rule for transfer amounts.
const DefaultRounding = RoundHalfEven

// ParseRounding validates a configured rounding mode.
func ParseRounding(s string) (Rounding, error) {
	switch r := Rounding(s); r {
	case RoundHalfEven, RoundTruncate:
		return r, nil
	case "":
		return DefaultRounding, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Apply reduces d to AmountPlaces decimals.
func (r Rounding) Apply(d decimal.Decimal) decimal.Decimal {
	if r == RoundTruncate {
		return d.Truncate(AmountPlaces)
	}
	return d.RoundBank(AmountPlaces)
}

// ToCents converts an amount to integer minor units. d must already be rounded.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(AmountPlaces).IntPart()
}

// FromCents converts integer minor units back to an amount.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -AmountPlaces)
}
