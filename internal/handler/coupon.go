package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/internal/wire"
)

type validateCouponRequest struct {
	Code     string
	UserID   string
	Subtotal decimal.Decimal
}

// ValidateCoupon checks a code against a subtotal and reports the discount it
// would give, or 422 with the rejection reason.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	req, err := decodeValidateCoupon(data)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	rule, err := h.pricing.ValidateCoupon(r.Context(), req.Code, req.UserID, req.Subtotal)
	if err != nil {
		var verr *coupon.ValidationError
		if errors.As(err, &verr) {
			writeCouponError(w, http.StatusUnprocessableEntity, verr)
			return
		}
		writeInternal(w, r, err)
		return
	}

	amount := promotion.Amount(rule, req.Subtotal)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("rule", func(e *jx.Encoder) { encodeRule(e, rule) })
			wire.MoneyField(e, "discountAmount", amount)
			e.Field("freeShipping", func(e *jx.Encoder) {
				_, ok := rule.Benefit.(promotion.FreeShipping)
				e.Bool(ok)
			})
		})
	})
}

func decodeValidateCoupon(data []byte) (validateCouponRequest, error) {
	var req validateCouponRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "userId":
			req.UserID, err = optionalStr(d)
		case "subtotal":
			req.Subtotal, err = wire.Decimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return req, err
	}
	if req.Subtotal.IsNegative() {
		return req, errors.New("subtotal must not be negative")
	}
	return req, nil
}
