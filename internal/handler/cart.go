package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

// CartSummary prices a cart with product, automatic and coupon discounts.
func (h *Handler) CartSummary(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	req, err := decodeCartRequest(data)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	summary, err := h.pricing.ComputeCartSummary(r.Context(), req)
	if err != nil {
		writeCartError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, summary) })
}

// writeCartError converts domain errors to HTTP responses.
func writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, pricing.ErrEmptyItems) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var iqErr *pricing.InvalidQuantityError
	if errors.As(err, &iqErr) {
		writeError(w, http.StatusUnprocessableEntity, iqErr.Error())
		return
	}

	var pnfErr *pricing.ProductNotFoundError
	if errors.As(err, &pnfErr) {
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
		return
	}

	var verr *coupon.ValidationError
	if errors.As(err, &verr) {
		writeCouponError(w, http.StatusUnprocessableEntity, verr)
		return
	}

	writeInternal(w, r, err)
}

func decodeCartRequest(data []byte) (pricing.CartRequest, error) {
	var req pricing.CartRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = optionalStr(d)
		case "couponCode":
			req.CouponCode, err = optionalStr(d)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeCartItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}

func decodeCartItem(d *jx.Decoder) (pricing.CartItem, error) {
	var item pricing.CartItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "quantity":
			item.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return item, err
}
