package memory_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/storage/memory"
)

type env struct {
	db      *memory.DB
	coupons *coupon.Service
	orders  *order.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := memory.New()
	db.PutProduct(product.Product{ID: "shirt", Name: "Shirt", Price: decimal.RequireFromString("999.00"), CategoryID: "tops"})
	db.PutProduct(product.Product{ID: "mug", Name: "Mug", Price: decimal.RequireFromString("149.50"), CategoryID: "home"})

	calc, err := coupon.NewCalculator(db.Coupons(), db.Coupons(), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	orders, err := order.NewService(order.Params{
		Catalog:        product.NewReader(db.Products()),
		Pricer:         calc,
		Addresses:      db.Addresses(),
		Store:          db.Orders(),
		Config:         order.Config{DefaultShipping: 4900},
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	require.NoError(t, err)
	return &env{db: db, coupons: coupon.NewService(db.Coupons(), db.Coupons()), orders: orders}
}

func inline() *address.Address {
	return &address.Address{FullName: "Asha", Phone: "98450", Line1: "12 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001"}
}

func settleReq(userID, code, ref string) order.SettleRequest {
	return order.SettleRequest{
		UserID:        userID,
		Lines:         []order.CartLine{{ProductID: "shirt", Quantity: 1}},
		CouponCode:    code,
		Address:       inline(),
		PaymentMethod: order.PaymentCard,
		PaymentRef:    ref,
	}
}

func TestGlobalLimit_ConcurrentSettlement(t *testing.T) {
	e := newEnv(t)
	e.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "LAST1", Type: coupon.TypeFlat, Scope: coupon.ScopeAll, Value: 10000, GlobalUsageLimit: 1, Status: coupon.StatusActive})

	const users = 16
	for i := 0; i < users; i++ {
		_, err := e.coupons.Collect(context.Background(), "u"+strconv.Itoa(i), "last1")
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		limited   int
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := "u" + strconv.Itoa(i)
			_, err := e.orders.Settle(context.Background(), settleReq(uid, "LAST1", "pay-"+uid))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, coupon.ErrUsageLimitReached):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, users-1, limited)
	c, ok := e.db.Coupon("LAST1")
	require.True(t, ok)
	assert.Equal(t, int64(1), c.UsedCount)
	assert.Equal(t, 1, e.db.OrderCount())
}

func TestSameUserTwoTabs(t *testing.T) {
	e := newEnv(t)
	e.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "ONCE", Type: coupon.TypePercent, Scope: coupon.ScopeAll, Value: 10, Status: coupon.StatusActive})
	_, err := e.coupons.Collect(context.Background(), "u1", "ONCE")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.orders.Settle(context.Background(), settleReq("u1", "ONCE", "tab-"+strconv.Itoa(i)))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	}
	assert.Equal(t, 1, ok)

	c, _ := e.db.Coupon("ONCE")
	assert.Equal(t, int64(1), c.UsedCount)

	mine, err := e.coupons.Mine(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, coupon.RedemptionUsed, mine[0].Status)
	assert.NotEmpty(t, mine[0].OrderID)
}

func TestFailedSettlementRollsBack(t *testing.T) {
	e := newEnv(t)
	e.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "GONE", Type: coupon.TypeFlat, Scope: coupon.ScopeAll, Value: 100, GlobalUsageLimit: 1, Status: coupon.StatusActive})
	_, err := e.coupons.Collect(context.Background(), "u1", "GONE")
	require.NoError(t, err)

	// Another process consumed the last use after this user collected.
	e.db.PutCoupon(coupon.Coupon{ID: "c1", Code: "GONE", Type: coupon.TypeFlat, Scope: coupon.ScopeAll, Value: 100, GlobalUsageLimit: 1, UsedCount: 1, Status: coupon.StatusActive})

	_, err = e.orders.Settle(context.Background(), settleReq("u1", "GONE", "pay-1"))
	require.ErrorIs(t, err, coupon.ErrUsageLimitReached)
	assert.Equal(t, 0, e.db.OrderCount())

	red, err := e.db.Coupons().Find(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, coupon.RedemptionCollected, red.Status)
}

func TestSettlement_SnapshotsSurviveCatalogChange(t *testing.T) {
	e := newEnv(t)
	o, err := e.orders.Settle(context.Background(), settleReq("u1", "", "pay-1"))
	require.NoError(t, err)

	e.db.PutProduct(product.Product{ID: "shirt", Name: "Shirt v2", Price: decimal.RequireFromString("1299.00"), CategoryID: "tops"})

	got, err := e.orders.Get(context.Background(), "u1", o.Code)
	require.NoError(t, err)
	assert.Equal(t, "Shirt", got.Items[0].Name)
	assert.Equal(t, int64(99900), got.Items[0].UnitPrice.Int64())
	assert.Equal(t, got.Subtotal+got.Shipping-got.Discount, got.Total)
}

func TestInTx_RevertsPartialWrites(t *testing.T) {
	db := memory.New()
	db.PutCoupon(coupon.Coupon{ID: "c1", Code: "X", Status: coupon.StatusActive})
	boom := errors.New("boom")

	err := db.Orders().InTx(context.Background(), func(tx order.Tx) error {
		if err := tx.Insert(context.Background(), &order.Order{ID: "o1", Code: "#100001", CreatedAt: time.Now()}); err != nil {
			return err
		}
		if err := tx.ConsumeUsage(context.Background(), "c1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, db.OrderCount())
	c, _ := db.Coupon("X")
	assert.Equal(t, int64(0), c.UsedCount)
}

func TestOrderTx_CodeAndPaymentRefUniqueness(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	require.NoError(t, db.Orders().InTx(ctx, func(tx order.Tx) error {
		return tx.Insert(ctx, &order.Order{ID: "o1", Code: "#100001", PaymentRef: "p1"})
	}))

	err := db.Orders().InTx(ctx, func(tx order.Tx) error {
		return tx.Insert(ctx, &order.Order{ID: "o2", Code: "#100001", PaymentRef: "p2"})
	})
	require.ErrorIs(t, err, order.ErrCodeTaken)

	err = db.Orders().InTx(ctx, func(tx order.Tx) error {
		return tx.Insert(ctx, &order.Order{ID: "o3", Code: "#100002", PaymentRef: "p1"})
	})
	require.ErrorIs(t, err, order.ErrDuplicatePaymentRef)
}
