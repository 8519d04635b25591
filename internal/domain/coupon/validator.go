package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// Validator checks whether a coupon code can be applied to a cart.
type Validator interface {
	Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*promotion.Rule, error)
}

// RepoValidator implements Validator on top of a promotion.Store.
type RepoValidator struct {
	store promotion.Store
	now   func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given store.
func NewRepoValidator(store promotion.Store) *RepoValidator {
	return &RepoValidator{store: store, now: time.Now}
}

// Validate runs the coupon checks in a fixed order and stops at the first
// failure: existence, activity window, minimum order amount, per-user limit and
// global limit. It never changes the rule. Rejections are *ValidationError;
// any other error comes from the store.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*promotion.Rule, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &ValidationError{Code: code, Reason: ReasonNotFound}
	}

	rule, err := v.store.FetchRuleByCode(ctx, code)
	if err != nil {
		if errors.Is(err, promotion.ErrRuleNotFound) {
			return nil, &ValidationError{Code: code, Reason: ReasonNotFound}
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	if rule == nil || !rule.IsActive {
		return nil, &ValidationError{Code: code, Reason: ReasonNotFound}
	}

	switch {
	case rule.Status == promotion.StatusUsedUp:
		return nil, &ValidationError{Code: code, Reason: ReasonUsedUp}
	case rule.Status != promotion.StatusActive, !rule.ActiveAt(v.now()):
		return nil, &ValidationError{Code: code, Reason: ReasonExpired}
	}

	if subtotal.LessThan(rule.MinimumOrderAmount) {
		return nil, &ValidationError{Code: code, Reason: ReasonBelowMinimum, Required: rule.MinimumOrderAmount}
	}

	if userID != "" {
		used, err := v.store.CountUserRedemptions(ctx, userID, rule.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count redemptions")
		}
		if used >= perUserLimit(rule) {
			return nil, &ValidationError{Code: code, Reason: ReasonAlreadyUsed}
		}
	}

	if rule.Exhausted() {
		return nil, &ValidationError{Code: code, Reason: ReasonUsedUp}
	}

	return rule, nil
}

func perUserLimit(rule *promotion.Rule) int {
	if rule.UsageLimitPerUser <= 0 {
		return 1
	}
	return rule.UsageLimitPerUser
}
