// Package handler is the HTTP transport of the checkout API. It decodes
// requests into typed domain requests, calls the coupon and order services
// and maps domain errors to status codes without reinterpreting them.
package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// DefaultMaxBodyBytes limits request bodies when Config leaves it unset.
const DefaultMaxBodyBytes = 64 << 10

// Config holds transport settings.
type Config struct {
	// CallbackSecret signs payment gateway callbacks. Callbacks are refused
	// while it is empty.
	CallbackSecret []byte
	MaxBodyBytes   int64
}

// Handler serves the discount and order endpoints.
type Handler struct {
	coupons *coupon.Service
	orders  *order.Service
	cfg     Config
}

// New creates a Handler.
func New(cfg Config, coupons *coupon.Service, orders *order.Service) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{coupons: coupons, orders: orders, cfg: cfg}
}

// Routes returns the API router. auth guards every per-user endpoint and
// userLimit, if set, throttles mutations per authenticated user.
func (h *Handler) Routes(auth, userLimit httpmiddleware.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Get("/discounts/available", h.availableCoupons)
	r.Post("/orders/payments/callback", h.paymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/discounts/mine", h.myCoupons)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{code}", h.getOrder)

		r.Group(func(r chi.Router) {
			if userLimit != nil {
				r.Use(userLimit)
			}
			r.Post("/discounts/collect/{code}", h.collectCoupon)
			r.Post("/discounts/validate", h.validateCoupon)
			r.Post("/orders", h.createOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("route_not_found", "no such endpoint"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, func(e *jx.Encoder) {
			encodeError(e, "method_not_allowed", "validation", "method not allowed")
		})
	})
	return r
}

// userID returns the authenticated caller. Routes guarantee it is present.
func userID(r *http.Request) (string, error) {
	sub, ok := httpmiddleware.SubjectFromContext(r.Context())
	if !ok {
		return "", apperr.Unauthorized("unauthorized", "authentication required")
	}
	return sub, nil
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("body_too_large", "request body is too large")
		}
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
