package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/money"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent takes Value percent of the eligible subtotal, optionally capped.
	TypePercent Type = "PERCENT"
	// TypeFlat takes Value minor units, bounded by the eligible subtotal.
	TypeFlat Type = "FLAT"
	// TypeFreeShip waives the shipping fee.
	TypeFreeShip Type = "FREESHIP"
)

// Scope selects which cart lines count towards the eligible subtotal.
type Scope string

const (
	ScopeAll      Scope = "ALL"
	ScopeCategory Scope = "CATEGORY"
	ScopeProduct  Scope = "PRODUCT"
)

// Status is the administrative state of a coupon definition.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusPaused Status = "PAUSED"
)

// Coupon is a discount definition. Zero values of MaxDiscount, MinOrder,
// GlobalUsageLimit and MaxUsesPerUser mean "no constraint".
type Coupon struct {
	ID          string
	Code        string
	Title       string
	Description string
	Type        Type
	Scope       Scope
	// EligibleIDs holds category ids for ScopeCategory and product ids for
	// ScopeProduct. It is ignored for ScopeAll.
	EligibleIDs      []string
	Value            int64
	MaxDiscount      money.Minor
	MinOrder         money.Minor
	StartAt          *time.Time
	EndAt            *time.Time
	GlobalUsageLimit int64
	UsedCount        int64
	MaxUsesPerUser   int64
	Status           Status
}

// NormalizeCode canonicalizes user-supplied coupon codes. Lookups are
// case-insensitive; codes are stored upper-case.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the definition's own invariants. It is run before a
// definition is persisted.
func (c *Coupon) Validate() error {
	if c.Code == "" || c.Code != NormalizeCode(c.Code) {
		return apperr.Validation("coupon_invalid", "coupon code must be non-empty and upper-case")
	}
	switch c.Type {
	case TypePercent:
		if c.Value <= 0 || c.Value > 100 {
			return apperr.Validation("coupon_invalid", "percent coupon value must be within 1..100")
		}
	case TypeFlat:
		if c.Value <= 0 {
			return apperr.Validation("coupon_invalid", "flat coupon value must be positive")
		}
	case TypeFreeShip:
	default:
		return apperr.Validation("coupon_invalid", "unknown coupon type "+string(c.Type))
	}
	switch c.Scope {
	case ScopeAll:
	case ScopeCategory, ScopeProduct:
		if len(c.EligibleIDs) == 0 {
			return apperr.Validation("coupon_invalid", "scoped coupon needs eligible ids")
		}
	default:
		return apperr.Validation("coupon_invalid", "unknown coupon scope "+string(c.Scope))
	}
	if c.Status != StatusActive && c.Status != StatusPaused {
		return apperr.Validation("coupon_invalid", "unknown coupon status "+string(c.Status))
	}
	if c.MaxDiscount < 0 || c.MinOrder < 0 || c.GlobalUsageLimit < 0 || c.MaxUsesPerUser < 0 || c.UsedCount < 0 {
		return apperr.Validation("coupon_invalid", "coupon limits must not be negative")
	}
	if c.StartAt != nil && c.EndAt != nil && c.EndAt.Before(*c.StartAt) {
		return apperr.Validation("coupon_invalid", "coupon endAt precedes startAt")
	}
	return nil
}

// InWindow reports whether now falls inside [StartAt, EndAt].
func (c *Coupon) InWindow(now time.Time) bool {
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return false
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return false
	}
	return true
}

// Exhausted reports whether the global usage limit has been reached.
func (c *Coupon) Exhausted() bool {
	return c.GlobalUsageLimit > 0 && c.UsedCount >= c.GlobalUsageLimit
}

// Available reports whether the coupon can currently be collected or applied.
func (c *Coupon) Available(now time.Time) bool {
	return c.Status == StatusActive && c.InWindow(now) && !c.Exhausted()
}

// Store reads coupon definitions.
type Store interface {
	// FindByCode looks up a coupon by its normalized code. It returns
	// ErrNotFound when no such coupon exists.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// ListActive returns ACTIVE coupons whose window contains now.
	ListActive(ctx context.Context, now time.Time) ([]Coupon, error)
}
