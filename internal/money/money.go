// Package money implements integer minor-unit arithmetic for prices,
// discounts and totals. All internal computation happens in Minor; decimal
// major-unit values only appear at the catalog and import boundaries.
package money

import (
	"math"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// UnitsPerMajor is the number of minor units (paisa) in one major unit (rupee).
const UnitsPerMajor = 100

var (
	// ErrNegative is returned when a negative amount reaches a conversion
	// that only accepts non-negative values.
	ErrNegative = errors.New("amount must not be negative")
	// ErrOverflow is returned when an amount does not fit into int64 minor units.
	ErrOverflow = errors.New("amount overflows minor units")
)

var (
	hundred  = decimal.NewFromInt(UnitsPerMajor)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// Minor is an amount of money in minor currency units.
type Minor int64

// FromMajor converts a major-unit decimal (e.g. 149.99) into minor units,
// rounding half away from zero to the nearest minor unit.
func FromMajor(d decimal.Decimal) (Minor, error) {
	if d.IsNegative() {
		return 0, ErrNegative
	}
	m := d.Mul(hundred).Round(0)
	if m.GreaterThan(maxMinor) {
		return 0, ErrOverflow
	}
	return Minor(m.IntPart()), nil
}

// ParseMajor parses a decimal string in major units and converts it.
func ParseMajor(s string) (Minor, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "parse amount %q", s)
	}
	return FromMajor(d)
}

// Major returns the amount as a major-unit decimal with two fractional digits.
func (m Minor) Major() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount in major units, e.g. "1234.50".
func (m Minor) String() string {
	return m.Major().StringFixed(2)
}

// Int64 returns the raw minor-unit value.
func (m Minor) Int64() int64 { return int64(m) }

// Times multiplies a unit price by a quantity, reporting overflow.
func (m Minor) Times(qty int64) (Minor, error) {
	if m < 0 || qty < 0 {
		return 0, ErrNegative
	}
	if qty != 0 && int64(m) > math.MaxInt64/qty {
		return 0, ErrOverflow
	}
	return m * Minor(qty), nil
}

// Plus adds two non-negative amounts, reporting overflow.
func (m Minor) Plus(o Minor) (Minor, error) {
	if m < 0 || o < 0 {
		return 0, ErrNegative
	}
	if int64(m) > math.MaxInt64-int64(o) {
		return 0, ErrOverflow
	}
	return m + o, nil
}

// PercentOf returns floor(base * percent / 100). Both operands must be
// non-negative; the multiplication is split to stay within int64 for any
// base that itself fits.
func PercentOf(base Minor, percent int64) Minor {
	if base <= 0 || percent <= 0 {
		return 0
	}
	whole := int64(base) / UnitsPerMajor * percent
	rest := int64(base) % UnitsPerMajor * percent / UnitsPerMajor
	return Minor(whole + rest)
}

// Min returns the smaller amount.
func Min(a, b Minor) Minor {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger amount.
func Max(a, b Minor) Minor {
	if a > b {
		return a
	}
	return b
}

// Clamp limits v to the closed interval [lo, hi].
func Clamp(v, lo, hi Minor) Minor {
	return Max(lo, Min(v, hi))
}

// FormatINR renders an amount for humans, e.g. "Rs.1234.50".
func FormatINR(m Minor) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return sign + "Rs." + strconv.FormatInt(int64(m)/UnitsPerMajor, 10) + "." +
		twoDigits(int64(m)%UnitsPerMajor)
}

func twoDigits(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
