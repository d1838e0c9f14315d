package order

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/money"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *mockStore
	pricer   *mockPricer
	notifier *mockNotifier
	products *mockProductRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMockStore(),
		pricer:   &mockPricer{},
		notifier: &mockNotifier{},
		products: newProductRepo(
			newTestProduct("shirt", "tops", "499.00"),
			newTestProduct("mug", "home", "250.50"),
		),
	}
	addresses := &mockAddressRepo{addresses: map[string]address.Address{
		"a1": {ID: "a1", UserID: "u1", FullName: "Asha Rao", Phone: "9845000000", Line1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001"},
	}}

	codes := NewCodeAllocator(3)
	seq := 0
	codes.intn = func(int) int {
		seq++
		return seq
	}
	codes.now = func() time.Time { return fixedNow }

	svc, err := NewService(Params{
		Catalog:        product.NewReader(f.products),
		Pricer:         f.pricer,
		Addresses:      addresses,
		Store:          f.store,
		Notifier:       f.notifier,
		Codes:          codes,
		Config:         Config{DefaultShipping: 4900, FreeShippingOver: 200000},
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return "o" + strconv.Itoa(ids)
	}
	f.svc = svc
	return f
}

func baseRequest() SettleRequest {
	return SettleRequest{
		UserID:        "u1",
		Lines:         []CartLine{{ProductID: "shirt", Size: "M", Quantity: 2}, {ProductID: "mug", Quantity: 1}},
		AddressID:     "a1",
		PaymentMethod: PaymentUPI,
		PaymentRef:    "pay_123",
	}
}

func TestSettle_CreatesOrder(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "#100001", o.Code)
	assert.Equal(t, money.Minor(124850), o.Subtotal)
	assert.Equal(t, money.Minor(4900), o.Shipping)
	assert.Equal(t, money.Minor(0), o.Discount)
	assert.Equal(t, money.Minor(129750), o.Total)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, StatusPlaced, o.Status)
	assert.Nil(t, o.Coupon)
	assert.Equal(t, fixedNow, o.CreatedAt)

	require.Len(t, o.Items, 2)
	assert.Equal(t, LineItem{
		ProductID: "shirt",
		Name:      "Product shirt",
		Size:      "M",
		Image:     "https://cdn.example.com/shirt.jpg",
		Quantity:  2,
		UnitPrice: 49900,
		LineTotal: 99800,
	}, o.Items[0])
	assert.Equal(t, "Bengaluru", o.Address.City)
	assert.Equal(t, "IN", o.Address.Country)

	require.Len(t, f.notifier.orders, 1)
	assert.Equal(t, o.Code, f.notifier.orders[0].Code)
}

func TestSettle_IdempotentOnPaymentRef(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	second, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Code, second.Code)
	assert.Len(t, f.store.orders, 1)
	assert.Len(t, f.notifier.orders, 1)
}

func TestSettle_ConcurrentRetries(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	codes := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.Settle(context.Background(), baseRequest())
			errs[i] = err
			if err == nil {
				codes[i] = o.Code
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, codes[0], codes[i])
	}
	assert.Len(t, f.store.orders, 1)
}

func TestSettle_PaymentRefOfAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)

	req := baseRequest()
	req.UserID = "u2"
	req.AddressID = ""
	req.Address = &address.Address{FullName: "B", Phone: "1", Line1: "x", City: "y", State: "z", PostalCode: "110001"}
	_, err = f.svc.Settle(context.Background(), req)
	require.ErrorIs(t, err, ErrPaymentRefInUse)
}

func TestSettle_ConcurrentPaymentRefOfAnotherCustomer(t *testing.T) {
	f := newFixture(t)
	f.products.gate = make(chan struct{})
	f.products.entered = make(chan struct{})

	type result struct {
		order *Order
		err   error
	}
	first := make(chan result, 1)
	go func() {
		o, err := f.svc.Settle(context.Background(), baseRequest())
		first <- result{o, err}
	}()
	<-f.products.entered

	req := baseRequest()
	req.UserID = "u2"
	req.AddressID = ""
	req.Address = &address.Address{FullName: "Vikram Shah", Phone: "9812345678", Line1: "Tower B", City: "Gurugram", State: "HR", PostalCode: "122002"}
	second := make(chan result, 1)
	go func() {
		o, err := f.svc.Settle(context.Background(), req)
		second <- result{o, err}
	}()

	var u2 result
	select {
	case u2 = <-second:
	case <-time.After(2 * time.Second):
		close(f.products.gate)
		t.Fatal("second customer waited for the first customer's checkout")
	}
	close(f.products.gate)
	u1 := <-first

	require.NoError(t, u2.err)
	assert.Equal(t, "u2", u2.order.CustomerID)
	assert.Equal(t, "Gurugram", u2.order.Address.City)

	require.ErrorIs(t, u1.err, ErrPaymentRefInUse)
	assert.Nil(t, u1.order)
	assert.Len(t, f.store.orders, 1)
}

func TestSettle_WithCoupon(t *testing.T) {
	f := newFixture(t)
	f.pricer.discount = &coupon.Applied{CouponID: "c1", Code: "SAVE10", Title: "10% off", Type: coupon.TypePercent, Scope: coupon.ScopeAll, Value: 10, RedemptionID: "r1"}
	f.pricer.amount = 12485

	req := baseRequest()
	req.CouponCode = "save10"
	o, err := f.svc.Settle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, money.Minor(12485), o.Discount)
	assert.Equal(t, o.Subtotal+o.Shipping-o.Discount, o.Total)
	require.NotNil(t, o.Coupon)
	assert.Equal(t, CouponSnapshot{Code: "SAVE10", Title: "10% off", Type: coupon.TypePercent, Scope: coupon.ScopeAll, Value: 10}, *o.Coupon)

	assert.Equal(t, []txCall{
		{op: "insert", args: []string{"#100001"}},
		{op: "mark", args: []string{"r1", o.ID}},
		{op: "consume", args: []string{"c1"}},
	}, f.store.calls)
	assert.Equal(t, int64(1), f.store.usedCount)
}

func TestSettle_UsageLimitRollsBack(t *testing.T) {
	f := newFixture(t)
	f.pricer.discount = &coupon.Applied{CouponID: "c1", Code: "ONCE", RedemptionID: "r1"}
	f.pricer.amount = 100
	f.store.usedLimit = 1
	f.store.usedCount = 1

	req := baseRequest()
	req.CouponCode = "ONCE"
	_, err := f.svc.Settle(context.Background(), req)
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.notifier.orders)
}

func TestSettle_MarkUsedTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.pricer.discount = &coupon.Applied{CouponID: "c1", Code: "X", RedemptionID: "r1"}
	f.store.markErr = coupon.ErrAlreadyUsed

	req := baseRequest()
	req.CouponCode = "X"
	_, err := f.svc.Settle(context.Background(), req)
	require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	assert.Empty(t, f.store.orders)
}

func TestSettle_CodeCollisionRetries(t *testing.T) {
	f := newFixture(t)
	f.store.takenCode["#100001"] = true
	f.store.takenCode["#100002"] = true

	o, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "#100003", o.Code)
}

func TestSettle_CodeFallback(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		f.store.takenCode["#"+strconv.Itoa(100000+i)] = true
	}

	o, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "#"+strconv.FormatInt(fixedNow.UnixMilli(), 10), o.Code)
}

func TestSettle_CodeExhausted(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		f.store.takenCode["#"+strconv.Itoa(100000+i)] = true
	}
	f.store.takenCode["#"+strconv.FormatInt(fixedNow.UnixMilli(), 10)] = true

	_, err := f.svc.Settle(context.Background(), baseRequest())
	require.ErrorIs(t, err, ErrCodeExhausted)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSettle_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *SettleRequest)
		wantKind apperr.Kind
		wantCode string
	}{
		{name: "empty items", mutate: func(r *SettleRequest) { r.Lines = nil }, wantKind: apperr.KindValidation, wantCode: "items_required"},
		{name: "zero quantity", mutate: func(r *SettleRequest) { r.Lines[0].Quantity = 0 }, wantKind: apperr.KindValidation, wantCode: "invalid_quantity"},
		{name: "unknown product", mutate: func(r *SettleRequest) { r.Lines[1].ProductID = "ghost" }, wantKind: apperr.KindNotFound, wantCode: "product_not_found"},
		{name: "bad payment method", mutate: func(r *SettleRequest) { r.PaymentMethod = "BARTER" }, wantKind: apperr.KindValidation, wantCode: "invalid_payment_method"},
		{name: "no address", mutate: func(r *SettleRequest) { r.AddressID = "" }, wantKind: apperr.KindValidation, wantCode: "address_required"},
		{name: "foreign address", mutate: func(r *SettleRequest) { r.UserID = "u2"; r.PaymentRef = "" }, wantKind: apperr.KindNotFound, wantCode: "address_not_found"},
		{name: "invalid inline address", mutate: func(r *SettleRequest) {
			r.AddressID = ""
			r.Address = &address.Address{FullName: "A"}
		}, wantKind: apperr.KindValidation, wantCode: "address_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := baseRequest()
			tt.mutate(&req)

			_, err := f.svc.Settle(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
			assert.Empty(t, f.store.orders)
		})
	}
}

func TestSettle_CouponErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.pricer.err = &coupon.MinOrderError{Required: 200000, Subtotal: 124850}

	req := baseRequest()
	req.CouponCode = "BIG"
	_, err := f.svc.Settle(context.Background(), req)

	var minErr *coupon.MinOrderError
	require.ErrorAs(t, err, &minErr)
	assert.Equal(t, "min_order_not_met", apperr.CodeOf(err))
}

func TestSettle_NotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errBoom

	o, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, o.Code)
}

func TestSettle_InlineAddress(t *testing.T) {
	f := newFixture(t)
	req := baseRequest()
	req.AddressID = ""
	req.Address = &address.Address{ID: "spoofed", UserID: "u9", FullName: "Ravi", Phone: "1", Line1: "x", City: "Pune", State: "MH", PostalCode: "411001"}

	o, err := f.svc.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "u1", o.Address.UserID)
	assert.Empty(t, o.Address.ID)
	assert.Equal(t, "Pune", o.Address.City)
}

func TestQuote_Shipping(t *testing.T) {
	free := money.Minor(0)
	tests := []struct {
		name         string
		lines        []CartLine
		shipping     *money.Minor
		wantShipping money.Minor
	}{
		{name: "default fee", lines: []CartLine{{ProductID: "mug", Quantity: 1}}, wantShipping: 4900},
		{name: "free over threshold", lines: []CartLine{{ProductID: "shirt", Quantity: 5}}, wantShipping: 0},
		{name: "explicit fee", lines: []CartLine{{ProductID: "shirt", Quantity: 5}}, shipping: &free, wantShipping: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p, err := f.svc.Quote(context.Background(), QuoteRequest{UserID: "u1", Lines: tt.lines, Shipping: tt.shipping})
			require.NoError(t, err)
			assert.Equal(t, tt.wantShipping, p.Shipping)
			assert.Empty(t, f.store.orders)
		})
	}
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t)
	o, err := f.svc.Settle(context.Background(), baseRequest())
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), "u1", o.Code[1:])
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.Get(context.Background(), "u2", o.Code)
	require.ErrorIs(t, err, ErrNotFound)

	list, err := f.svc.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConfirmPayment(t *testing.T) {
	tests := []struct {
		name    string
		steps   []PaymentStatus
		want    PaymentStatus
		wantErr error
	}{
		{name: "paid", steps: []PaymentStatus{PaymentPaid}, want: PaymentPaid},
		{name: "repeat paid", steps: []PaymentStatus{PaymentPaid, PaymentPaid}, want: PaymentPaid},
		{name: "failed then paid", steps: []PaymentStatus{PaymentFailed, PaymentPaid}, want: PaymentPaid},
		{name: "paid then failed", steps: []PaymentStatus{PaymentPaid, PaymentFailed}, wantErr: ErrPaymentTransition},
		{name: "pending is not a callback", steps: []PaymentStatus{PaymentPending}, wantErr: ErrInvalidPaymentStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Settle(context.Background(), baseRequest())
			require.NoError(t, err)

			var o *Order
			for _, st := range tt.steps {
				o, err = f.svc.ConfirmPayment(context.Background(), "pay_123", st)
			}
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, o.PaymentStatus)
		})
	}
}

func TestConfirmPayment_UnknownRef(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ConfirmPayment(context.Background(), "nope", PaymentPaid)
	require.ErrorIs(t, err, ErrNotFound)
}
