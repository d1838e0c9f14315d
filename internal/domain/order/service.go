package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/money"
)

// Catalog takes per-request product snapshots.
type Catalog interface {
	Snapshot(ctx context.Context, ids []string) (product.Snapshot, error)
}

// Pricer validates a coupon and prices a cart.
type Pricer interface {
	ValidateAndPrice(ctx context.Context, req coupon.Request) (*coupon.Pricing, error)
}

// Config holds pricing defaults.
type Config struct {
	// DefaultShipping is charged when the client does not pass a fee.
	DefaultShipping money.Minor
	// FreeShippingOver waives shipping for subtotals at or above it. Zero
	// disables the rule.
	FreeShippingOver money.Minor
}

// CartLine is a requested product and quantity.
type CartLine struct {
	ProductID string
	Size      string
	Quantity  int64
}

// QuoteRequest prices a cart without side effects.
type QuoteRequest struct {
	UserID     string
	Lines      []CartLine
	CouponCode string
	Shipping   *money.Minor
}

// SettleRequest is the checkout input.
type SettleRequest struct {
	UserID     string
	Lines      []CartLine
	CouponCode string
	// AddressID selects a saved address. Address is used when it is empty.
	AddressID     string
	Address       *address.Address
	PaymentMethod PaymentMethod
	// PaymentRef is the idempotency key; repeating it replays the order.
	PaymentRef string
	Shipping   *money.Minor
}

// Params are the dependencies of Service.
type Params struct {
	Catalog        Catalog
	Pricer         Pricer
	Addresses      address.Repository
	Store          Store
	Notifier       Notifier
	Codes          *CodeAllocator
	Config         Config
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service implements quoting, settlement and payment confirmation.
type Service struct {
	catalog   Catalog
	pricer    Pricer
	addresses address.Repository
	store     Store
	notifier  Notifier
	codes     *CodeAllocator
	cfg       Config

	inflight singleflight.Group
	now      func() time.Time
	newID    func() string

	tracer   trace.Tracer
	settled  metric.Int64Counter
	replayed metric.Int64Counter
	discount metric.Int64Counter
}

// NewService creates an order Service.
func NewService(p Params) (*Service, error) {
	if p.Notifier == nil {
		p.Notifier = NopNotifier{}
	}
	if p.Codes == nil {
		p.Codes = NewCodeAllocator(DefaultCodeAttempts)
	}
	meter := p.MeterProvider.Meter("checkout/order")
	settled, err := meter.Int64Counter("checkout.order.settled",
		metric.WithDescription("Orders created"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create settled counter")
	}
	replayed, err := meter.Int64Counter("checkout.order.replayed",
		metric.WithDescription("Settlements answered with an existing order"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create replayed counter")
	}
	discount, err := meter.Int64Counter("checkout.order.discount",
		metric.WithDescription("Discount granted on settled orders"),
		metric.WithUnit("{paisa}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create discount counter")
	}

	return &Service{
		catalog:   p.Catalog,
		pricer:    p.Pricer,
		addresses: p.Addresses,
		store:     p.Store,
		notifier:  p.Notifier,
		codes:     p.Codes,
		cfg:       p.Config,
		now:       time.Now,
		newID:     uuid.NewString,
		tracer:    p.TracerProvider.Tracer("checkout/order"),
		settled:   settled,
		replayed:  replayed,
		discount:  discount,
	}, nil
}

// Quote prices a cart and validates the coupon without writing anything.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*coupon.Pricing, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote")
	defer span.End()

	priced, err := s.priceLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	pricing, err := s.pricer.ValidateAndPrice(ctx, coupon.Request{
		UserID:   req.UserID,
		Code:     req.CouponCode,
		Lines:    priced.lines,
		Subtotal: priced.subtotal,
		Shipping: s.shipping(req.Shipping, priced.subtotal),
	})
	if err != nil {
		return nil, errors.Wrap(err, "validate coupon")
	}
	return pricing, nil
}

// Settle creates the order for a checkout. Repeating a PaymentRef returns
// the order created by the first call.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Settle")
	defer span.End()

	o, err := s.settle(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.code", o.Code))
	return o, nil
}

func (s *Service) settle(ctx context.Context, req SettleRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.PaymentRef == "" {
		return s.create(ctx, req)
	}

	// Concurrent retries of one checkout within this process collapse into
	// a single creation; across customers and processes the unique
	// payment_ref decides.
	v, err, _ := s.inflight.Do(req.UserID+"\x00"+req.PaymentRef, func() (any, error) {
		existing, err := s.replay(ctx, req)
		if err != nil || existing != nil {
			return existing, err
		}
		return s.create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	o := v.(*Order)
	if o.CustomerID != req.UserID {
		return nil, ErrPaymentRefInUse
	}
	return o, nil
}

func (s *Service) replay(ctx context.Context, req SettleRequest) (*Order, error) {
	existing, err := s.store.FindByPaymentRef(ctx, req.PaymentRef)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "find order by payment ref")
	case existing.CustomerID != req.UserID:
		return nil, ErrPaymentRefInUse
	}
	s.replayed.Add(ctx, 1)
	zctx.From(ctx).Info("Replayed settlement",
		zap.String("order_code", existing.Code),
		zap.String("payment_ref", req.PaymentRef),
	)
	return existing, nil
}

func (s *Service) create(ctx context.Context, req SettleRequest) (*Order, error) {
	priced, err := s.priceLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	addr, err := s.resolveAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	pricing, err := s.pricer.ValidateAndPrice(ctx, coupon.Request{
		UserID:   req.UserID,
		Code:     req.CouponCode,
		Lines:    priced.lines,
		Subtotal: priced.subtotal,
		Shipping: s.shipping(req.Shipping, priced.subtotal),
	})
	if err != nil {
		return nil, errors.Wrap(err, "validate coupon")
	}

	now := s.now()
	o := &Order{
		ID:            s.newID(),
		CustomerID:    req.UserID,
		Items:         priced.items,
		Subtotal:      pricing.Subtotal,
		Shipping:      pricing.Shipping,
		Discount:      pricing.Discount,
		Total:         pricing.Total,
		Address:       addr.Snapshot(),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
		PaymentRef:    req.PaymentRef,
		Status:        StatusPlaced,
		CreatedAt:     now,
	}
	if a := pricing.Applied; a != nil {
		o.Coupon = &CouponSnapshot{
			Code:  a.Code,
			Title: a.Title,
			Type:  a.Type,
			Scope: a.Scope,
			Value: a.Value,
		}
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		code, err := s.codes.Allocate(ctx, func(code string) (bool, error) {
			o.Code = code
			err := tx.Insert(ctx, o)
			if errors.Is(err, ErrCodeTaken) {
				return true, nil
			}
			return false, err
		})
		if err != nil {
			return err
		}
		o.Code = code

		if a := pricing.Applied; a != nil {
			if err := s.consumeCoupon(ctx, tx, req.UserID, a, o.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicatePaymentRef) {
		// Lost a race with another process settling the same payment.
		existing, rerr := s.replay(ctx, req)
		if rerr != nil {
			return nil, rerr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "persist order")
	}

	s.settled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(o.PaymentMethod)),
		attribute.Bool("coupon", o.Coupon != nil),
	))
	if o.Discount > 0 {
		s.discount.Add(ctx, o.Discount.Int64())
	}

	lg := zctx.From(ctx)
	lg.Info("Order settled",
		zap.String("order_code", o.Code),
		zap.String("customer_id", o.CustomerID),
		zap.Int64("total", o.Total.Int64()),
		zap.Int64("discount", o.Discount.Int64()),
	)
	if err := s.notifier.OrderSettled(ctx, o); err != nil {
		lg.Warn("Order notification failed", zap.String("order_code", o.Code), zap.Error(err))
	}
	return o, nil
}

// consumeCoupon finalizes the redemption inside the settlement transaction.
func (s *Service) consumeCoupon(ctx context.Context, tx Tx, userID string, a *coupon.Applied, orderID string, now time.Time) error {
	if a.MaxUsesPerUser > 0 {
		used, err := tx.CountUsed(ctx, userID, a.CouponID)
		if err != nil {
			return errors.Wrap(err, "count used redemptions")
		}
		if used >= a.MaxUsesPerUser {
			return coupon.ErrUserLimitReached
		}
	}
	if err := tx.MarkUsed(ctx, a.RedemptionID, orderID, now); err != nil {
		return errors.Wrap(err, "mark redemption used")
	}
	if err := tx.ConsumeUsage(ctx, a.CouponID); err != nil {
		return errors.Wrap(err, "consume coupon usage")
	}
	return nil
}

type pricedCart struct {
	lines    []coupon.Line
	items    []LineItem
	subtotal money.Minor
}

func (s *Service) priceLines(ctx context.Context, lines []CartLine) (pricedCart, error) {
	if len(lines) == 0 {
		return pricedCart{}, ErrEmptyItems
	}
	ids := make([]string, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return pricedCart{}, &InvalidQuantityError{ProductID: l.ProductID}
		}
		ids[i] = l.ProductID
	}

	snap, err := s.catalog.Snapshot(ctx, ids)
	if err != nil {
		return pricedCart{}, errors.Wrap(err, "catalog snapshot")
	}

	out := pricedCart{
		lines: make([]coupon.Line, len(lines)),
		items: make([]LineItem, len(lines)),
	}
	for i, l := range lines {
		e, ok := snap.Get(l.ProductID)
		if !ok {
			return pricedCart{}, &product.NotFoundError{ProductID: l.ProductID}
		}
		total, err := e.Price.Times(l.Quantity)
		if err != nil {
			return pricedCart{}, errors.Wrapf(err, "line %s", l.ProductID)
		}
		if out.subtotal, err = out.subtotal.Plus(total); err != nil {
			return pricedCart{}, errors.Wrap(err, "subtotal")
		}
		out.lines[i] = coupon.Line{
			ProductID:  e.ID,
			CategoryID: e.CategoryID,
			UnitPrice:  e.Price,
			Quantity:   l.Quantity,
		}
		out.items[i] = LineItem{
			ProductID: e.ID,
			Name:      e.Name,
			Size:      l.Size,
			Image:     e.Image,
			Quantity:  l.Quantity,
			UnitPrice: e.Price,
			LineTotal: total,
		}
	}
	return out, nil
}

func (s *Service) resolveAddress(ctx context.Context, req SettleRequest) (*address.Address, error) {
	if req.AddressID != "" {
		a, err := s.addresses.GetByID(ctx, req.UserID, req.AddressID)
		if err != nil {
			if errors.Is(err, address.ErrNotFound) {
				return nil, address.ErrNotFound
			}
			return nil, errors.Wrap(err, "get address")
		}
		return a, nil
	}
	a := *req.Address
	a.ID = ""
	a.UserID = req.UserID
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) shipping(requested *money.Minor, subtotal money.Minor) money.Minor {
	if requested != nil {
		return *requested
	}
	if s.cfg.FreeShippingOver > 0 && subtotal >= s.cfg.FreeShippingOver {
		return 0
	}
	return s.cfg.DefaultShipping
}

func (r SettleRequest) validate() error {
	if len(r.Lines) == 0 {
		return ErrEmptyItems
	}
	if !r.PaymentMethod.Valid() {
		return ErrInvalidPaymentMethod
	}
	if r.AddressID == "" && r.Address == nil {
		return ErrAddressRequired
	}
	return nil
}

// Get returns one of the customer's orders by code.
func (s *Service) Get(ctx context.Context, customerID, code string) (*Order, error) {
	o, err := s.store.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns the customer's orders, newest first.
func (s *Service) List(ctx context.Context, customerID string) ([]Order, error) {
	list, err := s.store.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return list, nil
}

// ConfirmPayment applies a payment gateway callback. Repeating a callback
// with the current status is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, ref string, status PaymentStatus) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmPayment")
	defer span.End()

	if status != PaymentPaid && status != PaymentFailed {
		return nil, ErrInvalidPaymentStatus
	}
	o, err := s.store.FindByPaymentRef(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find order by payment ref")
	}
	if o.PaymentStatus == status {
		return o, nil
	}
	if !o.PaymentStatus.CanTransition(status) {
		return nil, ErrPaymentTransition
	}

	updated, err := s.store.UpdatePaymentStatus(ctx, o.ID, o.PaymentStatus, status)
	if errors.Is(err, ErrPaymentStatusChanged) {
		// Another callback won; accept it if it reached the same state.
		current, ferr := s.store.FindByPaymentRef(ctx, ref)
		if ferr != nil {
			return nil, errors.Wrap(ferr, "reload order")
		}
		if current.PaymentStatus == status {
			return current, nil
		}
		return nil, ErrPaymentTransition
	}
	if err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}

	zctx.From(ctx).Info("Payment status updated",
		zap.String("order_code", updated.Code),
		zap.String("from", string(o.PaymentStatus)),
		zap.String("to", string(status)),
	)
	return updated, nil
}
