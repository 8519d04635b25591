package promotion

import (
	"slices"
	"time"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
)

type scopeKind uint8

const (
	scopeProduct scopeKind = iota
	scopeCategory
	scopeBrand
	scopeVendor
)

type scopeKey struct {
	kind scopeKind
	id   string
}

// Match returns, for every product, the rules that may apply to it. A rule is
// a candidate when it is eligible at now, is a product-level automatic rule,
// passes its vendor restriction and either is global without associations or
// is associated with the product, its category, its brand or its vendor.
// Candidates keep the order of rules and appear at most once per product.
// Products without candidates are absent from the result.
func Match(products []catalog.Product, rules []Rule, now time.Time) map[string][]*Rule {
	index := make(map[scopeKey][]int)
	var global []int

	for i := range rules {
		r := &rules[i]
		if r.IsCoupon() || r.Level == LevelOrder || !r.Eligible(now) {
			continue
		}
		if r.IsGlobal && r.Scope.Empty() {
			global = append(global, i)
			continue
		}
		add := func(kind scopeKind, ids []string) {
			for _, id := range ids {
				k := scopeKey{kind: kind, id: id}
				index[k] = append(index[k], i)
			}
		}
		add(scopeProduct, r.Scope.ProductIDs)
		add(scopeCategory, r.Scope.CategoryIDs)
		add(scopeBrand, r.Scope.BrandIDs)
		add(scopeVendor, r.Scope.VendorIDs)
	}

	out := make(map[string][]*Rule, len(products))
	for _, p := range products {
		hits := slices.Clone(global)
		hits = append(hits, index[scopeKey{scopeProduct, p.ID}]...)
		if p.CategoryID != "" {
			hits = append(hits, index[scopeKey{scopeCategory, p.CategoryID}]...)
		}
		if p.BrandID != "" {
			hits = append(hits, index[scopeKey{scopeBrand, p.BrandID}]...)
		}
		if p.VendorID != "" {
			hits = append(hits, index[scopeKey{scopeVendor, p.VendorID}]...)
		}
		if len(hits) == 0 {
			continue
		}

		slices.Sort(hits)
		hits = slices.Compact(hits)

		var candidates []*Rule
		for _, i := range hits {
			r := &rules[i]
			if r.VendorID != "" && r.VendorID != p.VendorID {
				continue
			}
			candidates = append(candidates, r)
		}
		if len(candidates) > 0 {
			out[p.ID] = candidates
		}
	}
	return out
}
