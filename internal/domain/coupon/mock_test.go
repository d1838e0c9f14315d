package coupon

import (
	"context"
	"sort"
	"sync"
	"time"
)

type mockStore struct {
	coupons map[string]*Coupon
	err     error
}

func newMockStore(coupons ...Coupon) *mockStore {
	m := &mockStore{coupons: make(map[string]*Coupon)}
	for i := range coupons {
		c := coupons[i]
		m.coupons[c.Code] = &c
	}
	return m
}

func (m *mockStore) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) ListActive(_ context.Context, now time.Time) ([]Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []Coupon
	for _, c := range m.coupons {
		if c.Status == StatusActive && c.InWindow(now) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type mockLedger struct {
	mu      sync.Mutex
	records map[[2]string]*Redemption
	err     error
}

func newMockLedger(records ...Redemption) *mockLedger {
	m := &mockLedger{records: make(map[[2]string]*Redemption)}
	for i := range records {
		r := records[i]
		m.records[[2]string{r.UserID, r.CouponID}] = &r
	}
	return m
}

func (m *mockLedger) Create(_ context.Context, r *Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := [2]string{r.UserID, r.CouponID}
	if _, ok := m.records[key]; ok {
		return ErrAlreadyCollected
	}
	cp := *r
	m.records[key] = &cp
	return nil
}

func (m *mockLedger) Find(_ context.Context, userID, couponID string) (*Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.records[[2]string{userID, couponID}]
	if !ok {
		return nil, ErrNotCollected
	}
	cp := *r
	return &cp, nil
}

func (m *mockLedger) CountUsed(_ context.Context, userID, couponID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[[2]string{userID, couponID}]; ok && r.Status == RedemptionUsed {
		return 1, nil
	}
	return 0, nil
}

func (m *mockLedger) ListByUser(_ context.Context, userID string) ([]Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Redemption
	for k, r := range m.records {
		if k[0] == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}
