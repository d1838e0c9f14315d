package coupon

import (
	"fmt"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/money"
)

var (
	ErrNotFound          = apperr.Validation("coupon_not_found", "coupon not found")
	ErrInactive          = apperr.Validation("coupon_inactive", "coupon is not active")
	ErrNotStarted        = apperr.Validation("coupon_not_started", "coupon is not valid yet")
	ErrExpired           = apperr.Validation("coupon_expired", "coupon has expired")
	ErrNotCollected      = apperr.Validation("coupon_not_collected", "coupon has not been collected")
	ErrAlreadyUsed       = apperr.Validation("coupon_already_used", "coupon has already been used")
	ErrUserLimitReached  = apperr.Validation("user_limit_reached", "coupon usage limit for this user reached")
	ErrUsageLimitReached = apperr.Validation("usage_limit_reached", "coupon usage limit reached")
	ErrNotApplicable     = apperr.Validation("coupon_not_applicable", "coupon does not apply to any item in the cart")
	ErrAlreadyCollected  = apperr.Conflict("already_collected", "coupon already collected")
	ErrAmountTooLarge    = apperr.Validation("amount_too_large", "order amount is too large")
)

// MinOrderError is returned when the cart subtotal is below the coupon's
// minimum order value. It carries the missing amount so clients can prompt
// the shopper.
type MinOrderError struct {
	Required money.Minor
	Subtotal money.Minor
}

var _ apperr.Coded = (*MinOrderError)(nil)

// Shortfall is the amount still needed to reach the minimum.
func (e *MinOrderError) Shortfall() money.Minor {
	return e.Required - e.Subtotal
}

func (e *MinOrderError) Error() string {
	return fmt.Sprintf("add %s more to use this coupon", money.FormatINR(e.Shortfall()))
}

func (e *MinOrderError) Kind() apperr.Kind { return apperr.KindValidation }
func (e *MinOrderError) Code() string      { return "min_order_not_met" }
