package promotion

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Amount returns the money rule takes off base. The result is rounded half-up
// to cents and always lies in [0, base]. Malformed rules (negative values,
// percentages above 100, missing benefit) are clamped rather than rejected.
func Amount(rule *Rule, base decimal.Decimal) decimal.Decimal {
	if rule == nil || !base.IsPositive() {
		return zero
	}

	var amount decimal.Decimal
	switch b := rule.Benefit.(type) {
	case Percentage:
		pct := clamp(b.Value, zero, hundred)
		amount = base.Mul(pct).Div(hundred)
		if b.Cap.Valid && !b.Cap.Decimal.IsNegative() {
			amount = decimal.Min(amount, b.Cap.Decimal)
		}
	case FixedAmount:
		amount = decimal.Min(decimal.Max(b.Value, zero), base)
	default:
		// FreeShipping and unknown variants do not touch merchandise price.
		return zero
	}

	amount = amount.Round(2)
	if amount.GreaterThan(base) {
		amount = base
	}
	return amount
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(v, lo), hi)
}
