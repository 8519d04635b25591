package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// ruleSelectSQL projects a rule with its scope associations folded into arrays.
const ruleSelectSQL = `SELECT r.id, r.code, r.name, r.kind, r.value, r.max_discount_amount,
		r.minimum_order_amount, r.usage_limit, r.usage_limit_per_user, r.used_count,
		r.status, r.starts_at, r.ends_at, r.is_active, r.is_global, r.vendor_id, r.level, r.created_at,
		ARRAY(SELECT product_id FROM rule_products WHERE rule_id = r.id ORDER BY product_id) AS product_ids,
		ARRAY(SELECT category_id FROM rule_categories WHERE rule_id = r.id ORDER BY category_id) AS category_ids,
		ARRAY(SELECT brand_id FROM rule_brands WHERE rule_id = r.id ORDER BY brand_id) AS brand_ids,
		ARRAY(SELECT vendor_id FROM rule_vendors WHERE rule_id = r.id ORDER BY vendor_id) AS vendor_ids
	FROM promotional_rules r`

const eligibleFilterSQL = `r.is_active = TRUE
		AND r.status = 'active'
		AND r.starts_at <= $1
		AND (r.ends_at IS NULL OR r.ends_at >= $1)
		AND (r.usage_limit IS NULL OR r.used_count < r.usage_limit)`

const (
	fetchEligibleRulesSQL = `WITH matched AS (
		SELECT rule_id FROM rule_products WHERE product_id = ANY($2)
		UNION SELECT rule_id FROM rule_categories WHERE category_id = ANY($3)
		UNION SELECT rule_id FROM rule_brands WHERE brand_id = ANY($4)
		UNION SELECT rule_id FROM rule_vendors WHERE vendor_id = ANY($5)
	)
	SELECT * FROM (` + ruleSelectSQL + `
		WHERE r.code IS NULL AND r.level = 'product' AND ` + eligibleFilterSQL + `
	) x
	WHERE x.id IN (SELECT rule_id FROM matched)
		OR (x.is_global AND cardinality(x.product_ids) = 0 AND cardinality(x.category_ids) = 0
			AND cardinality(x.brand_ids) = 0 AND cardinality(x.vendor_ids) = 0)
	ORDER BY x.created_at, x.id`

	fetchGlobalAutomaticRulesSQL = ruleSelectSQL + `
	WHERE r.code IS NULL AND r.is_global = TRUE AND r.level = 'order' AND ` + eligibleFilterSQL + `
	ORDER BY r.created_at, r.id`

	fetchRuleByCodeSQL = ruleSelectSQL + `
	WHERE UPPER(r.code) = UPPER($1)`

	countUserRedemptionsSQL = `SELECT count(*) FROM rule_redemptions WHERE user_id = $1 AND rule_id = $2`

	countActiveRulesSQL = `SELECT count(*) FROM promotional_rules r WHERE ` + eligibleFilterSQL
)

var _ promotion.Store = (*RuleRepository)(nil)

// RuleRepository implements promotion.Store backed by PostgreSQL.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository returns a RuleRepository that uses the given pool.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// FetchEligibleRules returns eligible product-level automatic rules associated
// with any identifier in filter, plus store-wide rules without associations,
// in a single query.
func (r *RuleRepository) FetchEligibleRules(ctx context.Context, filter promotion.ScopeFilter, now time.Time) ([]promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, fetchEligibleRulesSQL, now,
		nonNil(filter.ProductIDs), nonNil(filter.CategoryIDs), nonNil(filter.BrandIDs), nonNil(filter.VendorIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("fetching eligible rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("fetching eligible rules: %w", err)
	}
	warnMalformed(ctx, rules)
	return rules, nil
}

// FetchGlobalAutomaticRules returns eligible code-less order-level rules.
func (r *RuleRepository) FetchGlobalAutomaticRules(ctx context.Context, now time.Time) ([]promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, fetchGlobalAutomaticRulesSQL, now)
	if err != nil {
		return nil, fmt.Errorf("fetching automatic rules: %w", err)
	}
	rules, err := pgx.CollectRows(rows, scanRule)
	if err != nil {
		return nil, fmt.Errorf("fetching automatic rules: %w", err)
	}
	warnMalformed(ctx, rules)
	return rules, nil
}

// FetchRuleByCode looks up a rule by code, case-insensitively, regardless of
// its state. Returns promotion.ErrRuleNotFound when no rule has the code.
func (r *RuleRepository) FetchRuleByCode(ctx context.Context, code string) (*promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, fetchRuleByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding rule by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrRuleNotFound
		}
		return nil, fmt.Errorf("finding rule by code %q: %w", code, err)
	}
	warnMalformed(ctx, []promotion.Rule{rule})
	return &rule, nil
}

// CountUserRedemptions returns how many times the user redeemed the rule.
func (r *RuleRepository) CountUserRedemptions(ctx context.Context, userID, ruleID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserRedemptionsSQL, userID, ruleID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting redemptions of %q by %q: %w", ruleID, userID, err)
	}
	return n, nil
}

// CountActiveRules returns the number of rules eligible right now.
func (r *RuleRepository) CountActiveRules(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countActiveRulesSQL, time.Now()).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active rules: %w", err)
	}
	return n, nil
}

func scanRule(row pgx.CollectableRow) (promotion.Rule, error) {
	var (
		rule        promotion.Rule
		code        *string
		kind        string
		value       decimal.Decimal
		maxDiscount decimal.NullDecimal
		status      string
		vendorID    *string
		level       string
	)
	err := row.Scan(
		&rule.ID, &code, &rule.Name, &kind, &value, &maxDiscount,
		&rule.MinimumOrderAmount, &rule.UsageLimit, &rule.UsageLimitPerUser, &rule.UsedCount,
		&status, &rule.StartsAt, &rule.EndsAt, &rule.IsActive, &rule.IsGlobal, &vendorID, &level, &rule.CreatedAt,
		&rule.Scope.ProductIDs, &rule.Scope.CategoryIDs, &rule.Scope.BrandIDs, &rule.Scope.VendorIDs,
	)
	if err != nil {
		return rule, err
	}

	if code != nil {
		rule.Code = *code
	}
	if vendorID != nil {
		rule.VendorID = *vendorID
	}
	rule.Status = promotion.Status(status)
	rule.Level = promotion.Level(level)

	// An unknown kind leaves Benefit nil, which prices at zero.
	if b, err := promotion.ParseBenefit(kind, value, maxDiscount); err == nil {
		rule.Benefit = b
	}
	return rule, nil
}

func warnMalformed(ctx context.Context, rules []promotion.Rule) {
	for i := range rules {
		if rules[i].Benefit == nil {
			zctx.From(ctx).Warn("Rule has unknown kind, ignoring its benefit",
				zap.String("rule_id", rules[i].ID),
			)
		}
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
