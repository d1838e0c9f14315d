package memory

import (
	"context"
	"sort"
	"time"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// OrderRepository implements order.Store.
type OrderRepository struct {
	db *DB
}

var _ order.Store = (*OrderRepository)(nil)

func (r *OrderRepository) FindByPaymentRef(_ context.Context, ref string) (*order.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if ref == "" {
		return nil, order.ErrNotFound
	}
	for _, o := range r.db.orders {
		if o.PaymentRef == ref {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *OrderRepository) FindByCode(_ context.Context, code string) (*order.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.orders {
		if o.Code == code {
			return cloneOrder(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *OrderRepository) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []order.Order
	for _, o := range r.db.orders {
		if o.CustomerID == customerID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) UpdatePaymentStatus(_ context.Context, orderID string, from, to order.PaymentStatus) (*order.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.orders {
		if o.ID != orderID {
			continue
		}
		if o.PaymentStatus != from {
			return nil, order.ErrPaymentStatusChanged
		}
		o.PaymentStatus = to
		return cloneOrder(o), nil
	}
	return nil, order.ErrNotFound
}

// InTx holds the database lock for the whole of fn and reverts every write
// fn made if it fails.
func (r *OrderRepository) InTx(_ context.Context, fn func(tx order.Tx) error) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx := &orderTx{db: r.db}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// orderTx runs with db.mu held.
type orderTx struct {
	db   *DB
	undo []func()
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) Insert(_ context.Context, o *order.Order) error {
	for _, existing := range t.db.orders {
		if existing.Code == o.Code {
			return order.ErrCodeTaken
		}
		if o.PaymentRef != "" && existing.PaymentRef == o.PaymentRef {
			return order.ErrDuplicatePaymentRef
		}
	}
	n := len(t.db.orders)
	t.db.orders = append(t.db.orders, cloneOrder(o))
	t.undo = append(t.undo, func() { t.db.orders = t.db.orders[:n] })
	return nil
}

func (t *orderTx) CountUsed(_ context.Context, userID, couponID string) (int64, error) {
	return t.db.countUsed(userID, couponID), nil
}

func (t *orderTx) MarkUsed(_ context.Context, redemptionID, orderID string, at time.Time) error {
	for _, red := range t.db.redemptions {
		if red.ID != redemptionID {
			continue
		}
		prev := *red
		if err := red.MarkUsed(orderID, at); err != nil {
			return err
		}
		t.undo = append(t.undo, func() { *red = prev })
		return nil
	}
	return coupon.ErrNotCollected
}

func (t *orderTx) ConsumeUsage(_ context.Context, couponID string) error {
	for _, c := range t.db.coupons {
		if c.ID != couponID {
			continue
		}
		if c.Exhausted() {
			return coupon.ErrUsageLimitReached
		}
		c.UsedCount++
		t.undo = append(t.undo, func() { c.UsedCount-- })
		return nil
	}
	return coupon.ErrNotFound
}
