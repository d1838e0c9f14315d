package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/wire"
)

// SignatureHeader carries the hex HMAC-SHA256 of a callback body.
const SignatureHeader = "X-Signature"

// createOrder handles POST /orders. A repeated paymentRef answers with the
// order created by the first attempt.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
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
	req, err := wire.DecodeSettleRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = uid

	o, err := h.orders.Settle(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

// listOrders handles GET /orders.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.orders.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrders(e, list) })
}

// getOrder handles GET /orders/{code}. The leading "#" may be omitted.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), uid, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

// paymentCallback handles POST /orders/payments/callback from the payment
// gateway. The body must be signed with the shared callback secret.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !h.validSignature(r.Header.Get(SignatureHeader), body) {
		writeError(w, r, apperr.Unauthorized("invalid_signature", "callback signature mismatch"))
		return
	}
	cb, err := wire.DecodePaymentCallback(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.ConfirmPayment(r.Context(), cb.PaymentRef, cb.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func (h *Handler) validSignature(sig string, body []byte) bool {
	if len(h.cfg.CallbackSecret) == 0 {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(h.cfg.CallbackSecret, body))
}

// Sign computes the callback signature of body.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
