package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/internal/wire"
)

func encodeProduct(e *jx.Encoder, p catalog.Product, d pricing.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		wire.MoneyField(e, "price", p.Price)
		optStr(e, "categoryId", p.CategoryID)
		optStr(e, "brandId", p.BrandID)
		optStr(e, "vendorId", p.VendorID)
		e.Field("discount", func(e *jx.Encoder) { encodeDiscount(e, d) })
	})
}

func encodeDiscount(e *jx.Encoder, d pricing.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(d.ProductID) })
		wire.MoneyField(e, "basePrice", d.BasePrice)
		wire.MoneyField(e, "discountAmount", d.DiscountAmount)
		wire.MoneyField(e, "finalPrice", d.FinalPrice)
		e.Field("hasDiscount", func(e *jx.Encoder) { e.Bool(d.HasDiscount()) })
		e.Field("appliedRule", func(e *jx.Encoder) { encodeRule(e, d.Applied) })
		e.Field("candidateRuleIds", func(e *jx.Encoder) {
			e.ArrStart()
			for _, c := range d.Candidates {
				e.Str(c.ID)
			}
			e.ArrEnd()
		})
	})
}

// encodeRule writes the public view of a rule, or null.
func encodeRule(e *jx.Encoder, r *promotion.Rule) {
	if r == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(r.ID) })
		optStr(e, "code", r.Code)
		e.Field("name", func(e *jx.Encoder) { e.Str(r.Name) })
		if r.Benefit != nil {
			value, maxDiscount := promotion.BenefitValue(r.Benefit)
			e.Field("kind", func(e *jx.Encoder) { e.Str(string(r.Benefit.Kind())) })
			e.Field("value", func(e *jx.Encoder) { e.Str(value.String()) })
			if maxDiscount.Valid {
				wire.MoneyField(e, "maxDiscountAmount", maxDiscount.Decimal)
			}
		}
		wire.MoneyField(e, "minimumOrderAmount", r.MinimumOrderAmount)
		e.Field("level", func(e *jx.Encoder) { e.Str(string(r.Level)) })
		e.Field("isGlobal", func(e *jx.Encoder) { e.Bool(r.IsGlobal) })
		optStr(e, "vendorId", r.VendorID)
		e.Field("startsAt", func(e *jx.Encoder) { e.Str(r.StartsAt.UTC().Format(time.RFC3339)) })
		if r.EndsAt != nil {
			e.Field("endsAt", func(e *jx.Encoder) { e.Str(r.EndsAt.UTC().Format(time.RFC3339)) })
		}
	})
}

func encodeSummary(e *jx.Encoder, s *pricing.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, l := range s.Lines {
				encodeLine(e, l)
			}
			e.ArrEnd()
		})
		wire.MoneyField(e, "originalSubtotal", s.OriginalSubtotal)
		wire.MoneyField(e, "productDiscountTotal", s.ProductDiscountTotal)
		wire.MoneyField(e, "subtotal", s.Subtotal)
		e.Field("automaticDiscount", func(e *jx.Encoder) {
			encodeOrderDiscount(e, s.AutomaticRule, s.AutomaticDiscountAmount)
		})
		e.Field("coupon", func(e *jx.Encoder) {
			encodeOrderDiscount(e, s.CouponRule, s.CouponDiscountAmount)
		})
		e.Field("freeShipping", func(e *jx.Encoder) { e.Bool(s.FreeShipping) })
		e.Field("taxRate", func(e *jx.Encoder) { e.Str(s.TaxRate.String()) })
		wire.MoneyField(e, "tax", s.Tax)
		wire.MoneyField(e, "total", s.Total)
	})
}

func encodeLine(e *jx.Encoder, l pricing.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.Product.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Product.Name) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		wire.MoneyField(e, "unitPrice", l.Product.Price)
		wire.MoneyField(e, "unitDiscount", l.Discount.DiscountAmount)
		wire.MoneyField(e, "unitFinalPrice", l.Discount.FinalPrice)
		wire.MoneyField(e, "lineTotal", l.Total)
		if l.Discount.Applied != nil {
			e.Field("appliedRuleId", func(e *jx.Encoder) { e.Str(l.Discount.Applied.ID) })
		}
	})
}

func encodeOrderDiscount(e *jx.Encoder, r *promotion.Rule, amount decimal.Decimal) {
	if r == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("rule", func(e *jx.Encoder) { encodeRule(e, r) })
		wire.MoneyField(e, "amount", amount)
	})
}

func encodeRedemption(e *jx.Encoder, rd *coupon.Redemption) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(rd.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(rd.UserID) })
		e.Field("ruleId", func(e *jx.Encoder) { e.Str(rd.RuleID) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(rd.OrderID) })
		wire.MoneyField(e, "discountAmount", rd.DiscountAmount)
		e.Field("usedAt", func(e *jx.Encoder) { e.Str(rd.UsedAt.Format(time.RFC3339)) })
	})
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		e.Field(name, func(e *jx.Encoder) { e.Str(v) })
	}
}
