package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/money"
)

const (
	orderColumns = `id, code, customer_id, items, subtotal, shipping, discount, total,
		coupon, address, payment_method, payment_status, COALESCE(payment_ref, ''), status, created_at`

	insertOrderSQL = `INSERT INTO orders (id, code, customer_id, items, subtotal, shipping, discount, total,
			coupon, address, payment_method, payment_status, payment_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), $14, $15)
		ON CONFLICT (code) DO NOTHING`

	getOrderByPaymentRefSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_ref = $1`
	getOrderByCodeSQL       = `SELECT ` + orderColumns + ` FROM orders WHERE code = $1`
	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $3
		WHERE id = $1 AND payment_status = $2
		RETURNING ` + orderColumns

	paymentRefConstraint = "orders_payment_ref_key"
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// FindByPaymentRef returns the order carrying ref.
func (r *OrderRepository) FindByPaymentRef(ctx context.Context, ref string) (*order.Order, error) {
	if ref == "" {
		return nil, order.ErrNotFound
	}
	return r.findOne(ctx, getOrderByPaymentRefSQL, ref)
}

// FindByCode returns the order with the given #NNNNNN code.
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByCodeSQL, code)
}

func (r *OrderRepository) findOne(ctx context.Context, sql string, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return list, nil
}

// UpdatePaymentStatus performs a compare-and-set on payment_status.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, orderID string, from, to order.PaymentStatus) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updatePaymentStatusSQL, orderID, string(from), string(to))
	if err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrPaymentStatusChanged
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

// InTx runs fn in a READ COMMITTED transaction. Every write fn performs goes
// through row-level conditional statements, so that isolation level is
// enough for the settlement invariants.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return execTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&orderTx{q: tx})
	})
}

type orderTx struct {
	q querier
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	items, couponSnap, addr, err := encodeSnapshots(o)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, insertOrderSQL,
		o.ID, o.Code, o.CustomerID, items,
		o.Subtotal.Int64(), o.Shipping.Int64(), o.Discount.Int64(), o.Total.Int64(),
		couponSnap, addr, string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentRef,
		string(o.Status), o.CreatedAt,
	)
	if err != nil {
		if name, ok := uniqueConstraint(err); ok && name == paymentRefConstraint {
			return order.ErrDuplicatePaymentRef
		}
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrCodeTaken
	}
	return nil
}

func (t *orderTx) CountUsed(ctx context.Context, userID, couponID string) (int64, error) {
	return countUsed(ctx, t.q, userID, couponID)
}

func (t *orderTx) MarkUsed(ctx context.Context, redemptionID, orderID string, at time.Time) error {
	return markUsed(ctx, t.q, redemptionID, orderID, at)
}

func (t *orderTx) ConsumeUsage(ctx context.Context, couponID string) error {
	return consumeUsage(ctx, t.q, couponID)
}

// Snapshot documents stored in JSONB columns. Field names are part of the
// stored format.
type (
	lineItemDoc struct {
		ProductID string `json:"product_id"`
		Name      string `json:"name"`
		Size      string `json:"size,omitempty"`
		Image     string `json:"image,omitempty"`
		Quantity  int64  `json:"quantity"`
		UnitPrice int64  `json:"unit_price"`
		LineTotal int64  `json:"line_total"`
	}
	couponDoc struct {
		Code  string `json:"code"`
		Title string `json:"title"`
		Type  string `json:"type"`
		Scope string `json:"scope"`
		Value int64  `json:"value"`
	}
	addressDoc struct {
		ID         string `json:"id,omitempty"`
		UserID     string `json:"user_id"`
		FullName   string `json:"full_name"`
		Phone      string `json:"phone"`
		Line1      string `json:"line1"`
		Line2      string `json:"line2,omitempty"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	}
)

func encodeSnapshots(o *order.Order) (items, couponSnap, addr []byte, err error) {
	docs := make([]lineItemDoc, len(o.Items))
	for i, it := range o.Items {
		docs[i] = lineItemDoc{
			ProductID: it.ProductID,
			Name:      it.Name,
			Size:      it.Size,
			Image:     it.Image,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Int64(),
			LineTotal: it.LineTotal.Int64(),
		}
	}
	if items, err = json.Marshal(docs); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal order items")
	}
	if c := o.Coupon; c != nil {
		couponSnap, err = json.Marshal(couponDoc{
			Code: c.Code, Title: c.Title, Type: string(c.Type), Scope: string(c.Scope), Value: c.Value,
		})
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "marshal coupon snapshot")
		}
	}
	a := o.Address
	addr, err = json.Marshal(addressDoc{
		ID: a.ID, UserID: a.UserID, FullName: a.FullName, Phone: a.Phone, Line1: a.Line1,
		Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
	})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal address snapshot")
	}
	return items, couponSnap, addr, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                                   order.Order
		items, couponSnap, addr             []byte
		subtotal, shipping, discount, total int64
		method, payStatus, status           string
	)
	if err := row.Scan(&o.ID, &o.Code, &o.CustomerID, &items, &subtotal, &shipping, &discount, &total,
		&couponSnap, &addr, &method, &payStatus, &o.PaymentRef, &status, &o.CreatedAt); err != nil {
		return o, err
	}
	o.Subtotal = money.Minor(subtotal)
	o.Shipping = money.Minor(shipping)
	o.Discount = money.Minor(discount)
	o.Total = money.Minor(total)
	o.PaymentMethod = order.PaymentMethod(method)
	o.PaymentStatus = order.PaymentStatus(payStatus)
	o.Status = order.Status(status)

	var docs []lineItemDoc
	if err := json.Unmarshal(items, &docs); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	o.Items = make([]order.LineItem, len(docs))
	for i, d := range docs {
		o.Items[i] = order.LineItem{
			ProductID: d.ProductID,
			Name:      d.Name,
			Size:      d.Size,
			Image:     d.Image,
			Quantity:  d.Quantity,
			UnitPrice: money.Minor(d.UnitPrice),
			LineTotal: money.Minor(d.LineTotal),
		}
	}
	if len(couponSnap) > 0 {
		var c couponDoc
		if err := json.Unmarshal(couponSnap, &c); err != nil {
			return o, errors.Wrap(err, "unmarshal coupon snapshot")
		}
		o.Coupon = &order.CouponSnapshot{
			Code: c.Code, Title: c.Title, Type: coupon.Type(c.Type), Scope: coupon.Scope(c.Scope), Value: c.Value,
		}
	}
	var a addressDoc
	if err := json.Unmarshal(addr, &a); err != nil {
		return o, errors.Wrap(err, "unmarshal address snapshot")
	}
	o.Address = address.Address{
		ID: a.ID, UserID: a.UserID, FullName: a.FullName, Phone: a.Phone, Line1: a.Line1,
		Line2: a.Line2, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country,
	}
	return o, nil
}
