package coupon

import (
	"context"
	"time"
)

// RedemptionStatus is the lifecycle state of a user's claim on a coupon.
type RedemptionStatus string

const (
	RedemptionCollected RedemptionStatus = "COLLECTED"
	RedemptionUsed      RedemptionStatus = "USED"
	RedemptionExpired   RedemptionStatus = "EXPIRED"
)

// Redemption records that a user collected a coupon and, later, which
// order consumed it. There is at most one per (UserID, CouponID).
type Redemption struct {
	ID          string
	UserID      string
	CouponID    string
	CouponCode  string
	Status      RedemptionStatus
	CollectedAt time.Time
	UsedAt      *time.Time
	OrderID     string
}

// MarkUsed moves a COLLECTED redemption to USED. Any other starting state
// is rejected with ErrAlreadyUsed.
func (r *Redemption) MarkUsed(orderID string, at time.Time) error {
	if r.Status != RedemptionCollected {
		return ErrAlreadyUsed
	}
	r.Status = RedemptionUsed
	r.UsedAt = &at
	r.OrderID = orderID
	return nil
}

// Ledger persists redemptions.
type Ledger interface {
	// Create inserts a COLLECTED redemption. It returns ErrAlreadyCollected
	// if the user already holds one for the coupon.
	Create(ctx context.Context, r *Redemption) error
	// Find returns the user's redemption of couponID, or ErrNotCollected.
	Find(ctx context.Context, userID, couponID string) (*Redemption, error)
	// CountUsed returns how many of the user's redemptions of couponID are USED.
	CountUsed(ctx context.Context, userID, couponID string) (int64, error)
	// ListByUser returns every redemption of the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]Redemption, error)
}

// SettlementWriter is the part of the ledger that runs inside the order
// settlement transaction. Implementations must make each call atomic with
// the surrounding order insert.
type SettlementWriter interface {
	// CountUsed returns how many of the user's redemptions of couponID are USED.
	CountUsed(ctx context.Context, userID, couponID string) (int64, error)
	// MarkUsed flips the redemption from COLLECTED to USED. It returns
	// ErrAlreadyUsed when the redemption is not COLLECTED any more.
	MarkUsed(ctx context.Context, redemptionID, orderID string, at time.Time) error
	// ConsumeUsage increments the coupon's used count unless the global
	// limit is already reached, in which case it returns ErrUsageLimitReached.
	ConsumeUsage(ctx context.Context, couponID string) error
}
