package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/money"
)

// Request is the input of a pricing run.
type Request struct {
	UserID   string
	Code     string
	Lines    []Line
	Subtotal money.Minor
	Shipping money.Minor
}

// Applied describes the coupon that produced a discount.
type Applied struct {
	CouponID         string
	Code             string
	Title            string
	Type             Type
	Scope            Scope
	Value            int64
	MaxUsesPerUser   int64
	EligibleSubtotal money.Minor
	RedemptionID     string
}

// Pricing is the result of a pricing run.
type Pricing struct {
	Subtotal money.Minor
	Shipping money.Minor
	Discount money.Minor
	Total    money.Minor
	// Applied is nil when no coupon was requested.
	Applied *Applied
}

// Calculator validates a coupon for a user and cart and computes the
// discount. It never writes; settlement re-runs it inside its own flow.
type Calculator struct {
	coupons  Store
	ledger   Ledger
	now      func() time.Time
	rejected metric.Int64Counter
}

// NewCalculator creates a Calculator.
func NewCalculator(coupons Store, ledger Ledger, meter metric.Meter) (*Calculator, error) {
	rejected, err := meter.Int64Counter("checkout.coupon.rejected",
		metric.WithDescription("Coupon validations rejected, by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}
	return &Calculator{
		coupons:  coupons,
		ledger:   ledger,
		now:      time.Now,
		rejected: rejected,
	}, nil
}

// ValidateAndPrice prices the cart. An empty Code yields a pricing without
// discount. Validation short-circuits on the first failing rule, in this
// order: existence and status, window, collection, per-user limit, global
// limit, minimum order, scope.
func (c *Calculator) ValidateAndPrice(ctx context.Context, req Request) (*Pricing, error) {
	// Uses the tracer provider of the calling span.
	ctx, span := trace.SpanFromContext(ctx).TracerProvider().Tracer("checkout/coupon").
		Start(ctx, "coupon.ValidateAndPrice")
	defer span.End()

	p, err := c.validateAndPrice(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validate coupon")
		return nil, err
	}
	if p.Applied != nil {
		span.SetAttributes(attribute.String("coupon.code", p.Applied.Code))
	}
	return p, nil
}

func (c *Calculator) validateAndPrice(ctx context.Context, req Request) (*Pricing, error) {
	p := &Pricing{Subtotal: req.Subtotal, Shipping: req.Shipping}
	code := NormalizeCode(req.Code)
	if code == "" {
		return p.settle()
	}

	applied, err := c.apply(ctx, req, code)
	if err != nil {
		if cerr, ok := apperr.As(err); ok {
			c.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", cerr.Code())))
		}
		return nil, err
	}
	p.Applied = applied.applied
	p.Discount = applied.discount
	return p.settle()
}

type applyResult struct {
	applied  *Applied
	discount money.Minor
}

func (c *Calculator) apply(ctx context.Context, req Request, code string) (applyResult, error) {
	cp, err := c.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return applyResult{}, ErrNotFound
		}
		return applyResult{}, errors.Wrap(err, "find coupon")
	}
	if cp.Status != StatusActive {
		return applyResult{}, ErrInactive
	}

	now := c.now()
	if cp.StartAt != nil && now.Before(*cp.StartAt) {
		return applyResult{}, ErrNotStarted
	}
	if cp.EndAt != nil && now.After(*cp.EndAt) {
		return applyResult{}, ErrExpired
	}

	r, err := c.ledger.Find(ctx, req.UserID, cp.ID)
	if err != nil {
		if errors.Is(err, ErrNotCollected) {
			return applyResult{}, ErrNotCollected
		}
		return applyResult{}, errors.Wrap(err, "find redemption")
	}
	if r.Status != RedemptionCollected {
		return applyResult{}, ErrAlreadyUsed
	}

	if cp.MaxUsesPerUser > 0 {
		used, err := c.ledger.CountUsed(ctx, req.UserID, cp.ID)
		if err != nil {
			return applyResult{}, errors.Wrap(err, "count used redemptions")
		}
		if used >= cp.MaxUsesPerUser {
			return applyResult{}, ErrUserLimitReached
		}
	}

	if cp.Exhausted() {
		return applyResult{}, ErrUsageLimitReached
	}

	if cp.MinOrder > 0 && req.Subtotal < cp.MinOrder {
		return applyResult{}, &MinOrderError{Required: cp.MinOrder, Subtotal: req.Subtotal}
	}

	eligible, err := cp.EligibleSubtotal(req.Lines)
	if err != nil {
		return applyResult{}, errors.Wrap(err, "eligible subtotal")
	}
	if eligible == 0 && cp.Type != TypeFreeShip {
		return applyResult{}, ErrNotApplicable
	}

	return applyResult{
		applied: &Applied{
			CouponID:         cp.ID,
			Code:             cp.Code,
			Title:            cp.Title,
			Type:             cp.Type,
			Scope:            cp.Scope,
			Value:            cp.Value,
			MaxUsesPerUser:   cp.MaxUsesPerUser,
			EligibleSubtotal: eligible,
			RedemptionID:     r.ID,
		},
		discount: cp.Amount(eligible, req.Shipping),
	}, nil
}

// settle applies the final clamp and computes the total.
func (p *Pricing) settle() (*Pricing, error) {
	gross, err := p.Subtotal.Plus(p.Shipping)
	if err != nil {
		return nil, ErrAmountTooLarge
	}
	p.Discount = money.Clamp(p.Discount, 0, gross)
	p.Total = gross - p.Discount
	return p, nil
}
