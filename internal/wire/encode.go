package wire

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/money"
)

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func optStrField(e *jx.Encoder, name, v string) {
	if v != "" {
		strField(e, name, v)
	}
}

func intField(e *jx.Encoder, name string, v int64) {
	e.FieldStart(name)
	e.Int64(v)
}

func minorField(e *jx.Encoder, name string, v money.Minor) {
	intField(e, name, v.Int64())
}

func timeField(e *jx.Encoder, name string, t time.Time) {
	strField(e, name, t.UTC().Format(time.RFC3339))
}

func optTimeField(e *jx.Encoder, name string, t *time.Time) {
	if t != nil {
		timeField(e, name, *t)
	}
}

// EncodeCoupon writes a public coupon listing entry.
func EncodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	strField(e, "code", c.Code)
	strField(e, "title", c.Title)
	optStrField(e, "description", c.Description)
	strField(e, "type", string(c.Type))
	strField(e, "scope", string(c.Scope))
	if c.Scope != coupon.ScopeAll {
		e.FieldStart("eligibleIds")
		e.ArrStart()
		for _, id := range c.EligibleIDs {
			e.Str(id)
		}
		e.ArrEnd()
	}
	if c.Type != coupon.TypeFreeShip {
		intField(e, "value", c.Value)
	}
	if c.MaxDiscount > 0 {
		minorField(e, "maxDiscount", c.MaxDiscount)
	}
	if c.MinOrder > 0 {
		minorField(e, "minOrder", c.MinOrder)
	}
	optTimeField(e, "startAt", c.StartAt)
	optTimeField(e, "endAt", c.EndAt)
	if c.GlobalUsageLimit > 0 {
		intField(e, "remaining", c.GlobalUsageLimit-c.UsedCount)
	}
	if c.MaxUsesPerUser > 0 {
		intField(e, "maxUsesPerUser", c.MaxUsesPerUser)
	}
	e.ObjEnd()
}

// EncodeCoupons writes {"coupons": [...]}.
func EncodeCoupons(e *jx.Encoder, list []coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("coupons")
	e.ArrStart()
	for i := range list {
		EncodeCoupon(e, &list[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodeRedemption writes a redemption record.
func EncodeRedemption(e *jx.Encoder, r *coupon.Redemption) {
	e.ObjStart()
	strField(e, "id", r.ID)
	strField(e, "couponCode", r.CouponCode)
	strField(e, "status", string(r.Status))
	timeField(e, "collectedAt", r.CollectedAt)
	optTimeField(e, "usedAt", r.UsedAt)
	optStrField(e, "orderId", r.OrderID)
	e.ObjEnd()
}

// EncodeRedemptions writes {"redemptions": [...]}.
func EncodeRedemptions(e *jx.Encoder, list []coupon.Redemption) {
	e.ObjStart()
	e.FieldStart("redemptions")
	e.ArrStart()
	for i := range list {
		EncodeRedemption(e, &list[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodePricing writes a validation result.
func EncodePricing(e *jx.Encoder, p *coupon.Pricing) {
	e.ObjStart()
	minorField(e, "subtotal", p.Subtotal)
	minorField(e, "shipping", p.Shipping)
	minorField(e, "discount", p.Discount)
	minorField(e, "total", p.Total)
	e.FieldStart("applied")
	if a := p.Applied; a != nil {
		e.ObjStart()
		strField(e, "code", a.Code)
		strField(e, "title", a.Title)
		strField(e, "type", string(a.Type))
		strField(e, "scope", string(a.Scope))
		intField(e, "value", a.Value)
		minorField(e, "eligibleSubtotal", a.EligibleSubtotal)
		strField(e, "redemptionId", a.RedemptionID)
		e.ObjEnd()
	} else {
		e.Null()
	}
	e.ObjEnd()
}

// EncodeOrder writes an order with its snapshots.
func EncodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	strField(e, "id", o.ID)
	strField(e, "code", o.Code)
	strField(e, "customerId", o.CustomerID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		strField(e, "productId", it.ProductID)
		strField(e, "name", it.Name)
		optStrField(e, "size", it.Size)
		optStrField(e, "image", it.Image)
		intField(e, "quantity", it.Quantity)
		minorField(e, "unitPrice", it.UnitPrice)
		minorField(e, "lineTotal", it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	minorField(e, "subtotal", o.Subtotal)
	minorField(e, "shipping", o.Shipping)
	minorField(e, "discount", o.Discount)
	minorField(e, "total", o.Total)
	if c := o.Coupon; c != nil {
		e.FieldStart("coupon")
		e.ObjStart()
		strField(e, "code", c.Code)
		strField(e, "title", c.Title)
		strField(e, "type", string(c.Type))
		strField(e, "scope", string(c.Scope))
		intField(e, "value", c.Value)
		e.ObjEnd()
	}
	e.FieldStart("address")
	encodeAddress(e, &o.Address)
	e.FieldStart("payment")
	e.ObjStart()
	strField(e, "method", string(o.PaymentMethod))
	strField(e, "status", string(o.PaymentStatus))
	optStrField(e, "ref", o.PaymentRef)
	e.ObjEnd()
	strField(e, "status", string(o.Status))
	timeField(e, "createdAt", o.CreatedAt)
	e.ObjEnd()
}

// EncodeOrders writes {"orders": [...]}.
func EncodeOrders(e *jx.Encoder, list []order.Order) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range list {
		EncodeOrder(e, &list[i])
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeAddress(e *jx.Encoder, a *address.Address) {
	e.ObjStart()
	strField(e, "fullName", a.FullName)
	strField(e, "phone", a.Phone)
	strField(e, "line1", a.Line1)
	optStrField(e, "line2", a.Line2)
	strField(e, "city", a.City)
	strField(e, "state", a.State)
	strField(e, "postalCode", a.PostalCode)
	strField(e, "country", a.Country)
	e.ObjEnd()
}

// Detail is an extra key on an error body.
type Detail struct {
	Key   string
	Value int64
}

// EncodeError writes the error envelope used by every failing endpoint.
func EncodeError(e *jx.Encoder, code, reason, message string, details ...Detail) {
	e.ObjStart()
	strField(e, "code", code)
	strField(e, "reason", reason)
	strField(e, "message", message)
	for _, d := range details {
		intField(e, d.Key, d.Value)
	}
	e.ObjEnd()
}

// OrderEvent is the notification envelope for a settled order.
type OrderEvent struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Order      *order.Order
}

// EncodeOrderEvent writes a notification envelope.
func EncodeOrderEvent(e *jx.Encoder, ev OrderEvent) {
	e.ObjStart()
	strField(e, "id", ev.ID)
	strField(e, "type", ev.Type)
	timeField(e, "occurredAt", ev.OccurredAt)
	e.FieldStart("order")
	EncodeOrder(e, ev.Order)
	e.ObjEnd()
}
