package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/wire"
)

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func encodeError(e *jx.Encoder, code, reason, message string, details ...wire.Detail) {
	wire.EncodeError(e, code, reason, message, details...)
}

// writeError maps err to a response. Internal errors are logged and their
// text is never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	c, ok := apperr.As(err)
	if !ok || c.Kind() == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, func(e *jx.Encoder) {
			encodeError(e, "internal_error", apperr.KindInternal.String(), "internal server error")
		})
		return
	}

	var details []wire.Detail
	var minOrder *coupon.MinOrderError
	if errors.As(err, &minOrder) {
		details = append(details,
			wire.Detail{Key: "required", Value: minOrder.Required.Int64()},
			wire.Detail{Key: "shortfall", Value: minOrder.Shortfall().Int64()},
		)
	}

	zctx.From(r.Context()).Debug("Request rejected",
		zap.String("code", c.Code()),
		zap.Error(err),
	)
	writeJSON(w, statusOf(c.Kind()), func(e *jx.Encoder) {
		encodeError(e, c.Code(), c.Kind().String(), c.Error(), details...)
	})
}
