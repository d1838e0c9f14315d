package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service implements the collection side of the redemption ledger and the
// public coupon listing.
type Service struct {
	coupons Store
	ledger  Ledger
	now     func() time.Time
	newID   func() string
}

// NewService creates a Service.
func NewService(coupons Store, ledger Ledger) *Service {
	return &Service{
		coupons: coupons,
		ledger:  ledger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Available lists coupons that are active, in their window and not
// exhausted.
func (s *Service) Available(ctx context.Context) ([]Coupon, error) {
	now := s.now()
	list, err := s.coupons.ListActive(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "list active coupons")
	}
	out := list[:0]
	for _, c := range list {
		if c.Available(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Collect creates a COLLECTED redemption for the user. Retrying is safe:
// a second call fails with ErrAlreadyCollected and changes nothing.
func (s *Service) Collect(ctx context.Context, userID, code string) (*Redemption, error) {
	c, err := s.coupons.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	if c.Status != StatusActive {
		return nil, ErrInactive
	}
	now := s.now()
	if c.StartAt != nil && now.Before(*c.StartAt) {
		return nil, ErrNotStarted
	}
	if c.EndAt != nil && now.After(*c.EndAt) {
		return nil, ErrExpired
	}
	if c.Exhausted() {
		return nil, ErrUsageLimitReached
	}

	r := &Redemption{
		ID:          s.newID(),
		UserID:      userID,
		CouponID:    c.ID,
		CouponCode:  c.Code,
		Status:      RedemptionCollected,
		CollectedAt: now,
	}
	if err := s.ledger.Create(ctx, r); err != nil {
		if errors.Is(err, ErrAlreadyCollected) {
			return nil, ErrAlreadyCollected
		}
		return nil, errors.Wrap(err, "create redemption")
	}
	return r, nil
}

// Mine lists the user's redemptions.
func (s *Service) Mine(ctx context.Context, userID string) ([]Redemption, error) {
	list, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list redemptions")
	}
	return list, nil
}
