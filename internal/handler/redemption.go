package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/wire"
)

type redemptionRequest struct {
	UserID         string
	RuleID         string
	OrderID        string
	DiscountAmount decimal.Decimal
}

// CreateRedemption records that an order used a coupon. Called by checkout
// after the order is placed.
func (h *Handler) CreateRedemption(w http.ResponseWriter, r *http.Request) {
	data, err := h.readBody(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	req, err := decodeRedemption(data)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	rd, err := h.redeemer.Redeem(r.Context(), req.UserID, req.RuleID, req.OrderID, req.DiscountAmount)
	if err != nil {
		var verr *coupon.ValidationError
		switch {
		case errors.Is(err, coupon.ErrInvalidRedemption):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, coupon.ErrNotFound) && errors.As(err, &verr):
			writeCouponError(w, http.StatusNotFound, verr)
		case errors.As(err, &verr):
			writeCouponError(w, http.StatusConflict, verr)
		default:
			writeInternal(w, r, err)
		}
		return
	}

	zctx.From(r.Context()).Info("Coupon redeemed",
		zap.String("rule_id", rd.RuleID),
		zap.String("order_id", rd.OrderID),
		zap.String("key", apiKeyName(r.Context())),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeRedemption(e, rd) })
}

func decodeRedemption(data []byte) (redemptionRequest, error) {
	var req redemptionRequest
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "userId":
			req.UserID, err = d.Str()
		case "ruleId":
			req.RuleID, err = d.Str()
		case "orderId":
			req.OrderID, err = d.Str()
		case "discountAmount":
			req.DiscountAmount, err = wire.Decimal(d)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	return req, err
}
