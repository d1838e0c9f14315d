package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/money"
)

// PaymentMethod is an opaque payment channel identifier.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentCard   PaymentMethod = "CARD"
	PaymentUPI    PaymentMethod = "UPI"
	PaymentWallet PaymentMethod = "WALLET"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentCard, PaymentUPI, PaymentWallet:
		return true
	}
	return false
}

// PaymentStatus tracks the external payment confirmation.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// CanTransition reports whether a payment callback may move s to next.
// PAID is terminal; a FAILED payment may still be retried into PAID.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentFailed
	case PaymentFailed:
		return next == PaymentPaid
	}
	return false
}

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPlaced    Status = "PLACED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Order is an immutable settlement record. Only the payment and order
// status change after creation.
type Order struct {
	ID            string
	Code          string
	CustomerID    string
	Items         []LineItem
	Subtotal      money.Minor
	Shipping      money.Minor
	Discount      money.Minor
	Total         money.Minor
	Coupon        *CouponSnapshot
	Address       address.Address
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentRef    string
	Status        Status
	CreatedAt     time.Time
}

// LineItem is a product as it was priced at settlement.
type LineItem struct {
	ProductID string
	Name      string
	Size      string
	Image     string
	Quantity  int64
	UnitPrice money.Minor
	LineTotal money.Minor
}

// CouponSnapshot is the coupon as applied to the order.
type CouponSnapshot struct {
	Code  string
	Title string
	Type  coupon.Type
	Scope coupon.Scope
	Value int64
}

// NormalizeCode accepts order codes with or without the leading '#'.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.HasPrefix(code, "#") {
		return code
	}
	return "#" + code
}

var (
	ErrNotFound             = apperr.NotFound("order_not_found", "order not found")
	ErrEmptyItems           = apperr.Validation("items_required", "at least one item is required")
	ErrInvalidPaymentMethod = apperr.Validation("invalid_payment_method", "unsupported payment method")
	ErrInvalidPaymentStatus = apperr.Validation("invalid_payment_status", "payment status must be PAID or FAILED")
	ErrAddressRequired      = apperr.Validation("address_required", "addressId or address is required")
	ErrPaymentRefInUse      = apperr.Conflict("payment_ref_in_use", "payment reference belongs to another customer")
	ErrPaymentTransition    = apperr.Conflict("payment_transition", "payment status cannot change any more")
	ErrCodeExhausted        = apperr.Conflict("order_code_exhausted", "could not allocate an order code")

	// ErrCodeTaken is returned by Tx.Insert when the order code collides.
	ErrCodeTaken = errors.New("order code taken")
	// ErrDuplicatePaymentRef is returned by Tx.Insert when another order
	// already carries the payment reference.
	ErrDuplicatePaymentRef = errors.New("duplicate payment reference")
	// ErrPaymentStatusChanged is returned by Store.UpdatePaymentStatus when
	// the stored status no longer matches the expected one.
	ErrPaymentStatusChanged = errors.New("payment status changed concurrently")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

var _ apperr.Coded = (*InvalidQuantityError)(nil)

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Kind() apperr.Kind { return apperr.KindValidation }
func (e *InvalidQuantityError) Code() string      { return "invalid_quantity" }

// Store persists orders.
type Store interface {
	FindByPaymentRef(ctx context.Context, ref string) (*Order, error)
	FindByCode(ctx context.Context, code string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	// UpdatePaymentStatus moves the order from one payment status to another
	// and returns the updated order. It returns ErrPaymentStatusChanged if the
	// stored status is not from.
	UpdatePaymentStatus(ctx context.Context, orderID string, from, to PaymentStatus) (*Order, error)
	// InTx runs fn in a single storage transaction. Nothing fn wrote is
	// visible unless it returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes settlement performs atomically.
type Tx interface {
	coupon.SettlementWriter
	// Insert stores a new order. It returns ErrCodeTaken on a code collision,
	// leaving the transaction usable, and ErrDuplicatePaymentRef when the
	// payment reference is already recorded.
	Insert(ctx context.Context, o *Order) error
}

// Notifier is told about every newly settled order.
type Notifier interface {
	OrderSettled(ctx context.Context, o *Order) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) OrderSettled(context.Context, *Order) error { return nil }
