package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/wire"
)

// availableCoupons handles GET /discounts/available.
func (h *Handler) availableCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.Available(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeCoupons(e, list) })
}

// myCoupons handles GET /discounts/mine.
func (h *Handler) myCoupons(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.coupons.Mine(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeRedemptions(e, list) })
}

// collectCoupon handles POST /discounts/collect/{code}.
func (h *Handler) collectCoupon(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	red, err := h.coupons.Collect(r.Context(), uid, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { wire.EncodeRedemption(e, red) })
}

// validateCoupon handles POST /discounts/validate.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := wire.DecodeValidateRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pricing, err := h.orders.Quote(r.Context(), order.QuoteRequest{
		UserID:     uid,
		Lines:      req.Lines,
		CouponCode: req.CouponCode,
		Shipping:   req.Shipping,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodePricing(e, pricing) })
}
