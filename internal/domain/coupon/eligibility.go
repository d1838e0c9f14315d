package coupon

import (
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/money"
)

// Line is a priced cart line as seen by the discount engine.
type Line struct {
	ProductID  string
	CategoryID string
	UnitPrice  money.Minor
	Quantity   int64
}

// Total returns UnitPrice * Quantity.
func (l Line) Total() (money.Minor, error) {
	return l.UnitPrice.Times(l.Quantity)
}

// Subtotal sums every line.
func Subtotal(lines []Line) (money.Minor, error) {
	var sum money.Minor
	for _, l := range lines {
		t, err := l.Total()
		if err != nil {
			return 0, errors.Wrapf(err, "line %s", l.ProductID)
		}
		if sum, err = sum.Plus(t); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// Matches reports whether a line is within the coupon's scope.
func (c *Coupon) Matches(l Line) bool {
	switch c.Scope {
	case ScopeAll:
		return true
	case ScopeCategory:
		return slices.Contains(c.EligibleIDs, l.CategoryID)
	case ScopeProduct:
		return slices.Contains(c.EligibleIDs, l.ProductID)
	default:
		return false
	}
}

// EligibleSubtotal sums the lines the coupon applies to.
func (c *Coupon) EligibleSubtotal(lines []Line) (money.Minor, error) {
	var sum money.Minor
	for _, l := range lines {
		if !c.Matches(l) {
			continue
		}
		t, err := l.Total()
		if err != nil {
			return 0, errors.Wrapf(err, "line %s", l.ProductID)
		}
		if sum, err = sum.Plus(t); err != nil {
			return 0, err
		}
	}
	return sum, nil
}

// Amount computes the raw discount before the final clamp against the
// order value.
func (c *Coupon) Amount(eligible, shipping money.Minor) money.Minor {
	switch c.Type {
	case TypePercent:
		d := money.PercentOf(eligible, c.Value)
		if c.MaxDiscount > 0 {
			d = money.Min(d, c.MaxDiscount)
		}
		return d
	case TypeFlat:
		return money.Min(money.Minor(c.Value), eligible)
	case TypeFreeShip:
		return shipping
	default:
		return 0
	}
}
