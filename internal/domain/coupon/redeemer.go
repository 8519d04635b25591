package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidRedemption is returned when a redemption request lacks required fields.
var ErrInvalidRedemption = errors.New("redemption requires user, rule and order")

// Redeemer records coupon use once an order has been placed.
type Redeemer struct {
	store RedemptionStore
	now   func() time.Time
}

// NewRedeemer creates a Redeemer writing to the given store.
func NewRedeemer(store RedemptionStore) *Redeemer {
	return &Redeemer{store: store, now: time.Now}
}

// Redeem stamps and persists a redemption. Limit violations detected by the
// store surface as ErrAlreadyUsed or ErrUsedUp.
func (r *Redeemer) Redeem(ctx context.Context, userID, ruleID, orderID string, amount decimal.Decimal) (*Redemption, error) {
	if userID == "" || ruleID == "" || orderID == "" {
		return nil, ErrInvalidRedemption
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	rd := &Redemption{
		ID:             uuid.New().String(),
		UserID:         userID,
		RuleID:         ruleID,
		OrderID:        orderID,
		DiscountAmount: amount.Round(2),
		UsedAt:         r.now().UTC(),
	}
	if err := r.store.Redeem(ctx, rd); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, errors.Wrap(err, "redeem coupon")
	}
	return rd, nil
}
