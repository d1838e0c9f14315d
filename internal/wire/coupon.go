package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/money"
)

// DecodeCouponDefinition parses one coupon definition as used by import
// files. Monetary fields (flat value, maxDiscount, minOrder) are in major
// units; percent values are plain integers.
func DecodeCouponDefinition(data []byte) (*coupon.Coupon, error) {
	c := &coupon.Coupon{Scope: coupon.ScopeAll, Status: coupon.StatusActive}
	var value decimal.Decimal
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Str()
		case "code":
			var s string
			s, err = d.Str()
			c.Code = coupon.NormalizeCode(s)
		case "title":
			c.Title, err = decodeOptionalStr(d)
		case "description":
			c.Description, err = decodeOptionalStr(d)
		case "type":
			var s string
			s, err = d.Str()
			c.Type = coupon.Type(s)
		case "scope":
			var s string
			s, err = d.Str()
			c.Scope = coupon.Scope(s)
		case "eligibleIds":
			err = d.Arr(func(d *jx.Decoder) error {
				id, err := d.Str()
				c.EligibleIDs = append(c.EligibleIDs, id)
				return err
			})
		case "value":
			value, err = decodeDecimal(d)
		case "maxDiscount":
			c.MaxDiscount, err = decodeMajor(d)
		case "minOrder":
			c.MinOrder, err = decodeMajor(d)
		case "startAt":
			c.StartAt, err = decodeOptionalTime(d)
		case "endAt":
			c.EndAt, err = decodeOptionalTime(d)
		case "globalUsageLimit":
			c.GlobalUsageLimit, err = decodeOptionalInt(d)
		case "maxUsesPerUser":
			c.MaxUsesPerUser, err = decodeOptionalInt(d)
		case "status":
			var s string
			s, err = d.Str()
			c.Status = coupon.Status(s)
		default:
			return unknownField(key)
		}
		return field(key, err)
	})
	if err != nil {
		return nil, err
	}

	switch c.Type {
	case coupon.TypePercent:
		if !value.IsInteger() {
			return nil, invalid(errors.New("percent value must be an integer"))
		}
		c.Value = value.IntPart()
	case coupon.TypeFlat:
		m, err := money.FromMajor(value)
		if err != nil {
			return nil, invalid(errors.Wrap(err, "value"))
		}
		c.Value = m.Int64()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(n))
}

func decodeMajor(d *jx.Decoder) (money.Minor, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	v, err := decodeDecimal(d)
	if err != nil {
		return 0, err
	}
	return money.FromMajor(v)
}

func decodeOptionalInt(d *jx.Decoder) (int64, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int64()
}
