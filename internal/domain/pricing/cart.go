package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// CartItem is a requested quantity of a product.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Line is a priced cart line.
type Line struct {
	Product  catalog.Product
	Quantity int
	Discount Discount
	// Total is the discounted unit price times quantity.
	Total decimal.Decimal
}

// Automatic is the outcome of ranking order-level automatic rules.
type Automatic struct {
	Rule *promotion.Rule
	// FreeShipping is set when a qualifying free-shipping rule exists,
	// whether or not it won the monetary ranking.
	FreeShipping bool
}

// Summary is the full breakdown of a cart.
type Summary struct {
	Lines []Line

	// OriginalSubtotal is the sum of undiscounted line prices.
	OriginalSubtotal     decimal.Decimal
	ProductDiscountTotal decimal.Decimal
	// Subtotal is the sum of line totals after product discounts.
	Subtotal decimal.Decimal

	AutomaticRule           *promotion.Rule
	AutomaticDiscountAmount decimal.Decimal
	CouponRule              *promotion.Rule
	CouponDiscountAmount    decimal.Decimal

	TaxRate decimal.Decimal
	Tax     decimal.Decimal
	Total   decimal.Decimal

	FreeShipping bool
}

// PriceLines builds cart lines from products and their resolved discounts.
// Products without a resolved discount are priced at their base price.
func PriceLines(items []CartItem, products map[string]catalog.Product, discounts map[string]Discount) []Line {
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		p := products[item.ProductID]
		disc, ok := discounts[p.ID]
		if !ok {
			disc = noDiscount(p)
		}
		lines = append(lines, Line{
			Product:  p,
			Quantity: item.Quantity,
			Discount: disc,
			Total:    disc.FinalPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2),
		})
	}
	return lines
}

// Subtotal sums line totals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total)
	}
	return sum
}

// SelectAutomatic picks the order-level automatic rule worth the most on
// subtotal. Only eligible global rules without a code whose minimum order
// amount is met are considered.
func SelectAutomatic(rules []promotion.Rule, subtotal decimal.Decimal, now time.Time) Automatic {
	var (
		auto       Automatic
		candidates []*promotion.Rule
	)
	for i := range rules {
		r := &rules[i]
		if r.IsCoupon() || !r.IsGlobal || r.Level != promotion.LevelOrder || !r.Eligible(now) {
			continue
		}
		if subtotal.LessThan(r.MinimumOrderAmount) {
			continue
		}
		if _, ok := r.Benefit.(promotion.FreeShipping); ok {
			auto.FreeShipping = true
			continue
		}
		candidates = append(candidates, r)
	}
	auto.Rule = promotion.SelectBest(subtotal, candidates).Rule
	return auto
}

// Aggregate folds lines, the automatic rule and the coupon into a Summary.
// Automatic and coupon amounts are both computed against the subtotal after
// product discounts and are additive. Tax is charged on what remains, and the
// total is never negative.
func Aggregate(lines []Line, auto Automatic, coupon *promotion.Rule, taxRate decimal.Decimal) Summary {
	original := decimal.Zero
	for _, l := range lines {
		original = original.Add(l.Discount.BasePrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	original = original.Round(2)
	subtotal := Subtotal(lines).Round(2)

	productDiscount := original.Sub(subtotal)
	if productDiscount.IsNegative() {
		productDiscount = decimal.Zero
	}

	autoAmount := orderAmount(auto.Rule, subtotal)
	couponAmount := orderAmount(coupon, subtotal)

	taxable := subtotal.Sub(autoAmount).Sub(couponAmount)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	taxable = taxable.Round(2)

	if taxRate.IsNegative() {
		taxRate = decimal.Zero
	}
	tax := taxable.Mul(taxRate).Round(2)

	s := Summary{
		Lines:                   lines,
		OriginalSubtotal:        original,
		ProductDiscountTotal:    productDiscount,
		Subtotal:                subtotal,
		AutomaticDiscountAmount: autoAmount,
		CouponDiscountAmount:    couponAmount,
		TaxRate:                 taxRate,
		Tax:                     tax,
		Total:                   taxable.Add(tax),
		FreeShipping:            auto.FreeShipping,
	}
	if autoAmount.IsPositive() {
		s.AutomaticRule = auto.Rule
	}
	if coupon != nil {
		s.CouponRule = coupon
		if _, ok := coupon.Benefit.(promotion.FreeShipping); ok {
			s.FreeShipping = true
		}
	}
	return s
}

// orderAmount is promotion.Amount gated by the rule's minimum order amount.
func orderAmount(rule *promotion.Rule, subtotal decimal.Decimal) decimal.Decimal {
	if rule == nil || subtotal.LessThan(rule.MinimumOrderAmount) {
		return decimal.Zero
	}
	return promotion.Amount(rule, subtotal)
}
