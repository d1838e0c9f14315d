// Package wire converts between JSON payloads and domain requests and
// results. Decoding is strict: unknown fields, wrong types and trailing
// data are rejected before any business logic runs.
package wire

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/apperr"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/money"
)

// MaxItems bounds the number of cart lines accepted in one request.
const MaxItems = 100

// ValidateRequest is the body of POST /discounts/validate.
type ValidateRequest struct {
	CouponCode string
	Lines      []order.CartLine
	Shipping   *money.Minor
}

// PaymentCallback is the body of POST /orders/payments/callback.
type PaymentCallback struct {
	PaymentRef string
	Status     order.PaymentStatus
}

func invalid(err error) error {
	return apperr.Invalid("invalid_body", err)
}

// decodeObject decodes a whole document that must be a single object.
func decodeObject(data []byte, fn func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return invalid(errors.New("body must be a JSON object"))
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return invalid(err)
	}
	if d.Next() != jx.Invalid {
		return invalid(errors.New("unexpected data after object"))
	}
	return nil
}

// field annotates a field decoding error with the field name.
func field(key string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, key)
}

func unknownField(key string) error {
	return errors.Errorf("unknown field %q", key)
}

// DecodeValidateRequest parses a discount validation body.
func DecodeValidateRequest(data []byte) (ValidateRequest, error) {
	var req ValidateRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "couponCode":
			req.CouponCode, err = d.Str()
		case "items":
			req.Lines, err = decodeLines(d)
		case "shippingMinor":
			req.Shipping, err = decodeOptionalMinor(d)
		default:
			return unknownField(key)
		}
		return field(key, err)
	})
	if err != nil {
		return req, err
	}
	if req.CouponCode == "" {
		return req, apperr.Validation("invalid_body", "couponCode is required")
	}
	return req, nil
}

// DecodeSettleRequest parses an order creation body. The caller fills in
// the user id.
func DecodeSettleRequest(data []byte) (order.SettleRequest, error) {
	var req order.SettleRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			req.Lines, err = decodeLines(d)
		case "couponCode":
			req.CouponCode, err = decodeOptionalStr(d)
		case "addressId":
			req.AddressID, err = decodeOptionalStr(d)
		case "address":
			req.Address, err = decodeAddress(d)
		case "paymentMethod":
			var s string
			s, err = d.Str()
			req.PaymentMethod = order.PaymentMethod(s)
		case "paymentRef":
			req.PaymentRef, err = decodeOptionalStr(d)
		case "shippingMinor":
			req.Shipping, err = decodeOptionalMinor(d)
		default:
			return unknownField(key)
		}
		return field(key, err)
	})
	return req, err
}

// DecodePaymentCallback parses a payment gateway callback.
func DecodePaymentCallback(data []byte) (PaymentCallback, error) {
	var cb PaymentCallback
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentRef":
			cb.PaymentRef, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			cb.Status = order.PaymentStatus(s)
		default:
			return unknownField(key)
		}
		return field(key, err)
	})
	if err != nil {
		return cb, err
	}
	if cb.PaymentRef == "" {
		return cb, apperr.Validation("invalid_body", "paymentRef is required")
	}
	return cb, nil
}

func decodeLines(d *jx.Decoder) ([]order.CartLine, error) {
	var lines []order.CartLine
	err := d.Arr(func(d *jx.Decoder) error {
		if len(lines) == MaxItems {
			return errors.Errorf("at most %d items allowed", MaxItems)
		}
		var l order.CartLine
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "productId":
				l.ProductID, err = d.Str()
			case "size":
				l.Size, err = decodeOptionalStr(d)
			case "quantity":
				l.Quantity, err = d.Int64()
			default:
				return unknownField(string(key))
			}
			return field(string(key), err)
		}); err != nil {
			return err
		}
		if l.ProductID == "" {
			return errors.New("productId is required")
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

func decodeAddress(d *jx.Decoder) (*address.Address, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var a address.Address
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var (
			dst *string
			k   = string(key)
		)
		switch k {
		case "fullName":
			dst = &a.FullName
		case "phone":
			dst = &a.Phone
		case "line1":
			dst = &a.Line1
		case "line2":
			dst = &a.Line2
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		case "postalCode":
			dst = &a.PostalCode
		case "country":
			dst = &a.Country
		default:
			return unknownField(k)
		}
		v, err := decodeOptionalStr(d)
		*dst = v
		return field(k, err)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func decodeOptionalStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeOptionalMinor(d *jx.Decoder) (*money.Minor, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int64()
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, money.ErrNegative
	}
	m := money.Minor(v)
	return &m, nil
}

func decodeOptionalTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
