package promotion

import "github.com/shopspring/decimal"

// Selection is the outcome of picking the best rule for a base amount.
type Selection struct {
	Rule           *Rule
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
}

// Applied reports whether a rule was selected.
func (s Selection) Applied() bool {
	return s.Rule != nil
}

// SelectBest picks the candidate giving the largest discount on base.
// Candidates worth nothing are ignored. Ties go to the most recently created
// rule and then to the greater ID, so the result does not depend on input order.
// FinalPrice is exactly base minus DiscountAmount; callers pass base in cents.
func SelectBest(base decimal.Decimal, candidates []*Rule) Selection {
	var (
		best       *Rule
		bestAmount = zero
	)
	for _, r := range candidates {
		amount := Amount(r, base)
		if !amount.IsPositive() {
			continue
		}
		if best == nil || beats(amount, r, bestAmount, best) {
			best, bestAmount = r, amount
		}
	}

	final := base.Sub(bestAmount)
	if final.IsNegative() {
		final = zero
	}
	return Selection{
		Rule:           best,
		DiscountAmount: bestAmount,
		FinalPrice:     final,
	}
}

// Best is SelectBest over rules held by value, for callers that rank a rule
// set against one shared base such as a cart subtotal.
func Best(base decimal.Decimal, rules []Rule) Selection {
	candidates := make([]*Rule, len(rules))
	for i := range rules {
		candidates[i] = &rules[i]
	}
	return SelectBest(base, candidates)
}

func beats(amount decimal.Decimal, r *Rule, bestAmount decimal.Decimal, best *Rule) bool {
	if c := amount.Cmp(bestAmount); c != 0 {
		return c > 0
	}
	if !r.CreatedAt.Equal(best.CreatedAt) {
		return r.CreatedAt.After(best.CreatedAt)
	}
	return r.ID > best.ID
}
