// Package coupon validates and redeems shopper-entered promotion codes.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Reason classifies why a coupon cannot be applied.
type Reason string

const (
	ReasonNotFound     Reason = "not_found"
	ReasonExpired      Reason = "expired"
	ReasonBelowMinimum Reason = "below_minimum"
	ReasonAlreadyUsed  Reason = "already_used"
	ReasonUsedUp       Reason = "used_up"
)

// ValidationError reports a coupon that cannot be applied to the current cart.
// Match a reason with errors.Is against the sentinels below.
type ValidationError struct {
	Code   string
	Reason Reason
	// Required is the minimum order amount for ReasonBelowMinimum.
	Required decimal.Decimal
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonNotFound:
		return fmt.Sprintf("coupon %q does not exist", e.Code)
	case ReasonExpired:
		return fmt.Sprintf("coupon %q is not valid at this time", e.Code)
	case ReasonBelowMinimum:
		return fmt.Sprintf("coupon %q requires a minimum order of %s", e.Code, e.Required.StringFixed(2))
	case ReasonAlreadyUsed:
		return fmt.Sprintf("coupon %q has already been used", e.Code)
	case ReasonUsedUp:
		return fmt.Sprintf("coupon %q is no longer available", e.Code)
	default:
		return fmt.Sprintf("coupon %q cannot be applied", e.Code)
	}
}

// Is matches on Reason only, so errors.Is(err, ErrExpired) holds for any code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is matching.
var (
	ErrNotFound     = &ValidationError{Reason: ReasonNotFound}
	ErrExpired      = &ValidationError{Reason: ReasonExpired}
	ErrBelowMinimum = &ValidationError{Reason: ReasonBelowMinimum}
	ErrAlreadyUsed  = &ValidationError{Reason: ReasonAlreadyUsed}
	ErrUsedUp       = &ValidationError{Reason: ReasonUsedUp}
)

// Redemption records one use of a coupon by a user on an order.
type Redemption struct {
	ID             string
	UserID         string
	RuleID         string
	OrderID        string
	DiscountAmount decimal.Decimal
	UsedAt         time.Time
}

// RedemptionStore persists redemptions. Redeem must atomically enforce the
// per-user and global usage limits, returning ErrAlreadyUsed or ErrUsedUp.
type RedemptionStore interface {
	Redeem(ctx context.Context, rd *Redemption) error
}
