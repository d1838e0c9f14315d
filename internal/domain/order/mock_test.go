package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/money"
)

type mockProductRepo struct {
	products map[string]product.Product
	err      error

	// gate, when set, holds the first lookup until it is closed.
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	m := &mockProductRepo{products: make(map[string]product.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.gate != nil {
		first := false
		m.once.Do(func() { first = true })
		if first {
			close(m.entered)
			<-m.gate
		}
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func newTestProduct(id, category, price string) product.Product {
	return product.Product{
		ID:         id,
		Name:       "Product " + id,
		Price:      decimal.RequireFromString(price),
		CategoryID: category,
		Image:      "https://cdn.example.com/" + id + ".jpg",
	}
}

type mockPricer struct {
	discount *coupon.Applied
	amount   int64
	err      error
	calls    []coupon.Request
}

func (m *mockPricer) ValidateAndPrice(_ context.Context, req coupon.Request) (*coupon.Pricing, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	p := &coupon.Pricing{Subtotal: req.Subtotal, Shipping: req.Shipping}
	if req.Code != "" {
		p.Applied = m.discount
		p.Discount = min(req.Subtotal+req.Shipping, money.Minor(m.amount))
	}
	p.Total = p.Subtotal + p.Shipping - p.Discount
	return p, nil
}

type mockAddressRepo struct {
	addresses map[string]address.Address
}

func (m *mockAddressRepo) GetByID(_ context.Context, userID, id string) (*address.Address, error) {
	a, ok := m.addresses[id]
	if !ok || a.UserID != userID {
		return nil, address.ErrNotFound
	}
	return &a, nil
}

type txCall struct {
	op   string
	args []string
}

// mockStore implements Store and Tx with staged writes.
type mockStore struct {
	mu        sync.Mutex
	orders    []*Order
	takenCode map[string]bool
	usedCount int64
	usedLimit int64
	markErr   error
	calls     []txCall
}

func newMockStore() *mockStore {
	return &mockStore{takenCode: make(map[string]bool)}
}

func (m *mockStore) FindByPaymentRef(_ context.Context, ref string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentRef == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) FindByCode(_ context.Context, code string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Code == code {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) ListByCustomer(_ context.Context, customerID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *mockStore) UpdatePaymentStatus(_ context.Context, orderID string, from, to PaymentStatus) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID != orderID {
			continue
		}
		if o.PaymentStatus != from {
			return nil, ErrPaymentStatusChanged
		}
		o.PaymentStatus = to
		cp := *o
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &mockTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.orders = append(m.orders, tx.inserted...)
	m.usedCount += tx.consumed
	return nil
}

type mockTx struct {
	store    *mockStore
	inserted []*Order
	consumed int64
}

func (t *mockTx) Insert(_ context.Context, o *Order) error {
	t.store.calls = append(t.store.calls, txCall{op: "insert", args: []string{o.Code}})
	if t.store.takenCode[o.Code] {
		return ErrCodeTaken
	}
	for _, existing := range t.store.orders {
		if o.PaymentRef != "" && existing.PaymentRef == o.PaymentRef {
			return ErrDuplicatePaymentRef
		}
	}
	cp := *o
	t.inserted = append(t.inserted, &cp)
	return nil
}

func (t *mockTx) CountUsed(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (t *mockTx) MarkUsed(_ context.Context, redemptionID, orderID string, _ time.Time) error {
	t.store.calls = append(t.store.calls, txCall{op: "mark", args: []string{redemptionID, orderID}})
	return t.store.markErr
}

func (t *mockTx) ConsumeUsage(_ context.Context, couponID string) error {
	t.store.calls = append(t.store.calls, txCall{op: "consume", args: []string{couponID}})
	if t.store.usedLimit > 0 && t.store.usedCount+t.consumed >= t.store.usedLimit {
		return coupon.ErrUsageLimitReached
	}
	t.consumed++
	return nil
}

type mockNotifier struct {
	orders []*Order
	err    error
}

func (m *mockNotifier) OrderSettled(_ context.Context, o *Order) error {
	m.orders = append(m.orders, o)
	return m.err
}

var errBoom = errors.New("boom")
