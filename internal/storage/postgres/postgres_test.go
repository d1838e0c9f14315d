//go:build integration

package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/money"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkout",
				"POSTGRES_PASSWORD": "checkout",
				"POSTGRES_DB":       "checkout",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://checkout:checkout@%s:%s/checkout?sslmode=disable", host, port.Port())
	pool, err := NewPool(ctx, dsn, 16)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestPostgres(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	products := NewProductRepository(pool)
	addresses := NewAddressRepository(pool)
	coupons := NewCouponRepository(pool)
	orders := NewOrderRepository(pool)

	t.Run("products", func(t *testing.T) {
		require.NoError(t, products.Upsert(ctx, product.Product{ID: "p1", Name: "Tee", Price: decimal.RequireFromString("499.99"), CategoryID: "tops"}))
		got, err := products.GetByIDs(ctx, []string{"p1", "missing"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, decimal.RequireFromString("499.99").Equal(got[0].Price))
	})

	t.Run("addresses", func(t *testing.T) {
		require.NoError(t, addresses.Upsert(ctx, address.Address{ID: "a1", UserID: "u1", FullName: "A", Phone: "1", Line1: "l", City: "c", State: "s", PostalCode: "560001", Country: "IN"}))
		a, err := addresses.GetByID(ctx, "u1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "560001", a.PostalCode)

		_, err = addresses.GetByID(ctx, "u2", "a1")
		require.ErrorIs(t, err, address.ErrNotFound)
	})

	t.Run("collect once", func(t *testing.T) {
		c := &coupon.Coupon{ID: "c-once", Code: "ONCE", Type: coupon.TypeFlat, Scope: coupon.ScopeAll, Value: 100, Status: coupon.StatusActive}
		require.NoError(t, coupons.Upsert(ctx, c))

		red := &coupon.Redemption{ID: "r1", UserID: "u1", CouponID: "c-once", Status: coupon.RedemptionCollected, CollectedAt: time.Now()}
		require.NoError(t, coupons.Create(ctx, red))
		red.ID = "r2"
		require.ErrorIs(t, coupons.Create(ctx, red), coupon.ErrAlreadyCollected)

		got, err := coupons.Find(ctx, "u1", "c-once")
		require.NoError(t, err)
		assert.Equal(t, "ONCE", got.CouponCode)
		assert.Equal(t, coupon.RedemptionCollected, got.Status)
	})

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		c, err := coupons.FindByCode(ctx, "once")
		require.NoError(t, err)
		assert.Equal(t, "c-once", c.ID)

		_, err = coupons.FindByCode(ctx, "nope")
		require.ErrorIs(t, err, coupon.ErrNotFound)
	})

	t.Run("global limit under contention", func(t *testing.T) {
		c := &coupon.Coupon{ID: "c-last", Code: "LAST", Type: coupon.TypeFlat, Scope: coupon.ScopeAll, Value: 100, GlobalUsageLimit: 3, Status: coupon.StatusActive}
		require.NoError(t, coupons.Upsert(ctx, c))

		var (
			wg sync.WaitGroup
			mu sync.Mutex
			ok int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := orders.InTx(ctx, func(tx order.Tx) error {
					return tx.ConsumeUsage(ctx, "c-last")
				})
				if err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, coupon.ErrUsageLimitReached)
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, ok)
		got, err := coupons.FindByCode(ctx, "LAST")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.UsedCount)
	})

	t.Run("settlement writes", func(t *testing.T) {
		o := &order.Order{
			ID:            "o1",
			Code:          "#100001",
			CustomerID:    "u1",
			Items:         []order.LineItem{{ProductID: "p1", Name: "Tee", Quantity: 2, UnitPrice: 49999, LineTotal: 99998}},
			Subtotal:      99998,
			Shipping:      4900,
			Discount:      100,
			Total:         104798,
			Coupon:        &order.CouponSnapshot{Code: "ONCE", Type: coupon.TypeFlat, Scope: coupon.ScopeAll, Value: 100},
			Address:       address.Address{UserID: "u1", FullName: "A", City: "c", PostalCode: "560001", Country: "IN"},
			PaymentMethod: order.PaymentUPI,
			PaymentStatus: order.PaymentPending,
			PaymentRef:    "pay-1",
			Status:        order.StatusPlaced,
			CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		}
		require.NoError(t, orders.InTx(ctx, func(tx order.Tx) error {
			if err := tx.Insert(ctx, o); err != nil {
				return err
			}
			if err := tx.MarkUsed(ctx, "r1", o.ID, o.CreatedAt); err != nil {
				return err
			}
			return tx.ConsumeUsage(ctx, "c-once")
		}))

		got, err := orders.FindByPaymentRef(ctx, "pay-1")
		require.NoError(t, err)
		assert.Equal(t, o.Items, got.Items)
		assert.Equal(t, *o.Coupon, *got.Coupon)
		assert.Equal(t, money.Minor(104798), got.Total)
		assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

		used, err := coupons.CountUsed(ctx, "u1", "c-once")
		require.NoError(t, err)
		assert.Equal(t, int64(1), used)

		err = orders.InTx(ctx, func(tx order.Tx) error {
			return tx.MarkUsed(ctx, "r1", "o2", time.Now())
		})
		require.ErrorIs(t, err, coupon.ErrAlreadyUsed)

		dup := *o
		dup.ID = "o2"
		err = orders.InTx(ctx, func(tx order.Tx) error { return tx.Insert(ctx, &dup) })
		require.ErrorIs(t, err, order.ErrCodeTaken)

		dup.Code = "#100002"
		err = orders.InTx(ctx, func(tx order.Tx) error { return tx.Insert(ctx, &dup) })
		require.ErrorIs(t, err, order.ErrDuplicatePaymentRef)
	})

	t.Run("payment status compare and set", func(t *testing.T) {
		got, err := orders.UpdatePaymentStatus(ctx, "o1", order.PaymentPending, order.PaymentPaid)
		require.NoError(t, err)
		assert.Equal(t, order.PaymentPaid, got.PaymentStatus)

		_, err = orders.UpdatePaymentStatus(ctx, "o1", order.PaymentPending, order.PaymentFailed)
		require.ErrorIs(t, err, order.ErrPaymentStatusChanged)
	})

	t.Run("list by customer", func(t *testing.T) {
		for i := 2; i < 5; i++ {
			o := &order.Order{
				ID: "ol" + strconv.Itoa(i), Code: "#20000" + strconv.Itoa(i), CustomerID: "u9",
				Items: []order.LineItem{}, Address: address.Address{UserID: "u9"},
				PaymentMethod: order.PaymentCOD, PaymentStatus: order.PaymentPending, Status: order.StatusPlaced,
				CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, orders.InTx(ctx, func(tx order.Tx) error { return tx.Insert(ctx, o) }))
		}
		list, err := orders.ListByCustomer(ctx, "u9")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "#200004", list[0].Code)
	})
}
