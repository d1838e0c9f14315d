// Package memory implements the storage interfaces in process memory. It
// mirrors the atomicity guarantees of the postgres package and backs tests
// and local runs without a database.
package memory

import (
	"slices"
	"sync"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
)

// DB holds every table behind a single lock. Repositories are views over it.
type DB struct {
	mu          sync.Mutex
	products    map[string]product.Product
	addresses   map[string]address.Address
	coupons     map[string]*coupon.Coupon // by code
	redemptions map[string]*coupon.Redemption
	orders      []*order.Order
}

// New creates an empty DB.
func New() *DB {
	return &DB{
		products:    make(map[string]product.Product),
		addresses:   make(map[string]address.Address),
		coupons:     make(map[string]*coupon.Coupon),
		redemptions: make(map[string]*coupon.Redemption),
	}
}

// Products returns the catalog repository.
func (db *DB) Products() *ProductRepository { return &ProductRepository{db: db} }

// Addresses returns the address repository.
func (db *DB) Addresses() *AddressRepository { return &AddressRepository{db: db} }

// Coupons returns the coupon definition store and redemption ledger.
func (db *DB) Coupons() *CouponRepository { return &CouponRepository{db: db} }

// Orders returns the order store.
func (db *DB) Orders() *OrderRepository { return &OrderRepository{db: db} }

// PutProduct inserts or replaces a product.
func (db *DB) PutProduct(p product.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = p
}

// PutAddress inserts or replaces an address.
func (db *DB) PutAddress(a address.Address) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.addresses[a.ID] = a
}

// PutCoupon inserts or replaces a coupon definition.
func (db *DB) PutCoupon(c coupon.Coupon) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c.EligibleIDs = slices.Clone(c.EligibleIDs)
	db.coupons[c.Code] = &c
}

// Coupon returns a copy of the stored coupon.
func (db *DB) Coupon(code string) (coupon.Coupon, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.coupons[code]
	if !ok {
		return coupon.Coupon{}, false
	}
	return cloneCoupon(c), true
}

// OrderCount returns the number of stored orders.
func (db *DB) OrderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

func cloneCoupon(c *coupon.Coupon) coupon.Coupon {
	cp := *c
	cp.EligibleIDs = slices.Clone(c.EligibleIDs)
	return cp
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.Coupon != nil {
		c := *o.Coupon
		cp.Coupon = &c
	}
	return &cp
}
