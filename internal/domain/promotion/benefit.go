package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind names a benefit variant as stored in the database.
type Kind string

const (
	KindPercentage   Kind = "percentage"
	KindFixedAmount  Kind = "fixed_amount"
	KindFreeShipping Kind = "free_shipping"
)

// Benefit is the effect a rule has once applied. It is a closed set of
// variants: Percentage, FixedAmount and FreeShipping.
type Benefit interface {
	Kind() Kind
	benefit()
}

// Percentage takes Value percent off the base, optionally capped.
type Percentage struct {
	Value decimal.Decimal
	Cap   decimal.NullDecimal
}

// FixedAmount takes a flat Value off the base, never more than the base.
type FixedAmount struct {
	Value decimal.Decimal
}

// FreeShipping waives shipping and does not reduce merchandise prices.
type FreeShipping struct{}

func (Percentage) Kind() Kind   { return KindPercentage }
func (FixedAmount) Kind() Kind  { return KindFixedAmount }
func (FreeShipping) Kind() Kind { return KindFreeShipping }

func (Percentage) benefit()   {}
func (FixedAmount) benefit()  {}
func (FreeShipping) benefit() {}

// ParseBenefit builds a Benefit from its stored representation. The cap is
// only meaningful for percentage rules and is ignored otherwise.
func ParseBenefit(kind string, value decimal.Decimal, maxDiscount decimal.NullDecimal) (Benefit, error) {
	switch Kind(kind) {
	case KindPercentage:
		return Percentage{Value: value, Cap: maxDiscount}, nil
	case KindFixedAmount:
		return FixedAmount{Value: value}, nil
	case KindFreeShipping:
		return FreeShipping{}, nil
	default:
		return nil, errors.Errorf("unknown benefit kind %q", kind)
	}
}

// BenefitValue returns the value and cap columns for b, the inverse of ParseBenefit.
func BenefitValue(b Benefit) (value decimal.Decimal, maxDiscount decimal.NullDecimal) {
	switch v := b.(type) {
	case Percentage:
		return v.Value, v.Cap
	case FixedAmount:
		return v.Value, decimal.NullDecimal{}
	default:
		return decimal.Zero, decimal.NullDecimal{}
	}
}
