// Package promotion models promotional rules and the pure functions that
// match them to products, compute their monetary effect, and pick a winner.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrRuleNotFound is returned when no rule exists for a coupon code.
var ErrRuleNotFound = errors.New("promotional rule not found")

// Status is the lifecycle state of a rule.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
	StatusUsedUp   Status = "used_up"
)

// Level says where a rule applies: to individual products or to the whole order.
type Level string

const (
	// LevelProduct rules compete for a single product's price.
	LevelProduct Level = "product"
	// LevelOrder rules apply to the cart subtotal.
	LevelOrder Level = "order"
)

// Rule is a promotional rule. A rule with a non-empty Code is a coupon and is
// only applied when the shopper enters that code.
type Rule struct {
	ID      string
	Code    string
	Name    string
	Benefit Benefit

	MinimumOrderAmount decimal.Decimal
	UsageLimit         *int
	UsageLimitPerUser  int
	UsedCount          int

	Status   Status
	StartsAt time.Time
	EndsAt   *time.Time
	IsActive bool
	IsGlobal bool
	VendorID string
	Level    Level
	Scope    Scope

	CreatedAt time.Time
}

// Scope lists the catalog entities a rule is associated with.
type Scope struct {
	ProductIDs  []string
	CategoryIDs []string
	BrandIDs    []string
	VendorIDs   []string
}

// Empty reports whether the scope has no associations at all.
func (s Scope) Empty() bool {
	return len(s.ProductIDs) == 0 && len(s.CategoryIDs) == 0 &&
		len(s.BrandIDs) == 0 && len(s.VendorIDs) == 0
}

// IsCoupon reports whether the rule requires a code.
func (r *Rule) IsCoupon() bool {
	return r.Code != ""
}

// ActiveAt reports whether now falls inside the rule's activity window.
// Both bounds are inclusive.
func (r *Rule) ActiveAt(now time.Time) bool {
	if now.Before(r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

// Exhausted reports whether the global usage limit has been reached.
func (r *Rule) Exhausted() bool {
	return r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit
}

// Eligible reports whether the rule may be applied at all at the given instant,
// independently of any product or cart.
func (r *Rule) Eligible(now time.Time) bool {
	return r.IsActive &&
		r.Status == StatusActive &&
		r.ActiveAt(now) &&
		!r.Exhausted()
}

// ScopeFilter is the union of catalog identifiers for a batch of products.
type ScopeFilter struct {
	ProductIDs  []string
	CategoryIDs []string
	BrandIDs    []string
	VendorIDs   []string
}

// Store is the read side of the rule store. Every method is a single
// round-trip; callers must batch instead of looping.
type Store interface {
	// FetchEligibleRules returns product-level automatic rules that are eligible
	// at now and either associated with any identifier in the filter or global
	// with no associations. Returned rules carry their full Scope.
	FetchEligibleRules(ctx context.Context, filter ScopeFilter, now time.Time) ([]Rule, error)
	// FetchGlobalAutomaticRules returns eligible global order-level rules without a code.
	FetchGlobalAutomaticRules(ctx context.Context, now time.Time) ([]Rule, error)
	// FetchRuleByCode looks a coupon up by case-insensitive code.
	// It returns ErrRuleNotFound when no such rule exists.
	FetchRuleByCode(ctx context.Context, code string) (*Rule, error)
	// CountUserRedemptions returns how many times userID redeemed ruleID.
	CountUserRedemptions(ctx context.Context, userID, ruleID string) (int, error)
}
