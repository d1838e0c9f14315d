package memory

import (
	"context"
	"sort"
	"time"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
)

// CouponRepository implements coupon.Store and coupon.Ledger.
type CouponRepository struct {
	db *DB
}

var (
	_ coupon.Store  = (*CouponRepository)(nil)
	_ coupon.Ledger = (*CouponRepository)(nil)
)

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.coupons[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := cloneCoupon(c)
	return &cp, nil
}

func (r *CouponRepository) ListActive(_ context.Context, now time.Time) ([]coupon.Coupon, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []coupon.Coupon
	for _, c := range r.db.coupons {
		if c.Status == coupon.StatusActive && c.InWindow(now) {
			out = append(out, cloneCoupon(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func redemptionKey(userID, couponID string) string {
	return userID + "\x00" + couponID
}

func (r *CouponRepository) Create(_ context.Context, red *coupon.Redemption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	key := redemptionKey(red.UserID, red.CouponID)
	if _, ok := r.db.redemptions[key]; ok {
		return coupon.ErrAlreadyCollected
	}
	cp := *red
	r.db.redemptions[key] = &cp
	return nil
}

func (r *CouponRepository) Find(_ context.Context, userID, couponID string) (*coupon.Redemption, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	red, ok := r.db.redemptions[redemptionKey(userID, couponID)]
	if !ok {
		return nil, coupon.ErrNotCollected
	}
	cp := *red
	return &cp, nil
}

func (r *CouponRepository) CountUsed(_ context.Context, userID, couponID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.countUsed(userID, couponID), nil
}

func (r *CouponRepository) ListByUser(_ context.Context, userID string) ([]coupon.Redemption, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []coupon.Redemption
	for _, red := range r.db.redemptions {
		if red.UserID == userID {
			out = append(out, *red)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollectedAt.After(out[j].CollectedAt) })
	return out, nil
}

// Caller holds db.mu.
func (db *DB) countUsed(userID, couponID string) int64 {
	red, ok := db.redemptions[redemptionKey(userID, couponID)]
	if ok && red.Status == coupon.RedemptionUsed {
		return 1
	}
	return 0
}
