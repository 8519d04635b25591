package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

const (
	upsertRuleSQL = `INSERT INTO promotional_rules (
			id, code, name, kind, value, max_discount_amount, minimum_order_amount,
			usage_limit, usage_limit_per_user, status, starts_at, ends_at,
			is_active, is_global, vendor_id, level, created_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			max_discount_amount = EXCLUDED.max_discount_amount,
			minimum_order_amount = EXCLUDED.minimum_order_amount,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user,
			status = EXCLUDED.status,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			is_active = EXCLUDED.is_active,
			is_global = EXCLUDED.is_global,
			vendor_id = EXCLUDED.vendor_id,
			level = EXCLUDED.level`

	deleteRuleProductsSQL   = `DELETE FROM rule_products WHERE rule_id = $1`
	deleteRuleCategoriesSQL = `DELETE FROM rule_categories WHERE rule_id = $1`
	deleteRuleBrandsSQL     = `DELETE FROM rule_brands WHERE rule_id = $1`
	deleteRuleVendorsSQL    = `DELETE FROM rule_vendors WHERE rule_id = $1`

	insertRuleProductsSQL   = `INSERT INTO rule_products (rule_id, product_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
	insertRuleCategoriesSQL = `INSERT INTO rule_categories (rule_id, category_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
	insertRuleBrandsSQL     = `INSERT INTO rule_brands (rule_id, brand_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
	insertRuleVendorsSQL    = `INSERT INTO rule_vendors (rule_id, vendor_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
)

// UpsertRule writes a rule and replaces its scope associations atomically.
// The usage counter of an existing rule is left untouched.
func (r *RuleRepository) UpsertRule(ctx context.Context, rule promotion.Rule) error {
	value, maxDiscount := promotion.BenefitValue(rule.Benefit)
	kind := ""
	if rule.Benefit != nil {
		kind = string(rule.Benefit.Kind())
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertRuleSQL,
			rule.ID, rule.Code, rule.Name, kind, value, maxDiscount, rule.MinimumOrderAmount,
			rule.UsageLimit, rule.UsageLimitPerUser, string(rule.Status), rule.StartsAt, rule.EndsAt,
			rule.IsActive, rule.IsGlobal, rule.VendorID, string(rule.Level), rule.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upserting rule %q: %w", rule.ID, err)
		}

		batch := &pgx.Batch{}
		batch.Queue(deleteRuleProductsSQL, rule.ID)
		batch.Queue(deleteRuleCategoriesSQL, rule.ID)
		batch.Queue(deleteRuleBrandsSQL, rule.ID)
		batch.Queue(deleteRuleVendorsSQL, rule.ID)
		batch.Queue(insertRuleProductsSQL, rule.ID, nonNil(rule.Scope.ProductIDs))
		batch.Queue(insertRuleCategoriesSQL, rule.ID, nonNil(rule.Scope.CategoryIDs))
		batch.Queue(insertRuleBrandsSQL, rule.ID, nonNil(rule.Scope.BrandIDs))
		batch.Queue(insertRuleVendorsSQL, rule.ID, nonNil(rule.Scope.VendorIDs))

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("replacing scope of rule %q: %w", rule.ID, err)
		}
		return nil
	})
}
