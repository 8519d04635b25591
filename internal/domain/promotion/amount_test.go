package promotion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func capOf(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name    string
		benefit Benefit
		base    decimal.Decimal
		want    decimal.Decimal
	}{
		{
			name:    "percentage 20 of 100",
			benefit: Percentage{Value: d("20")},
			base:    d("100"),
			want:    d("20"),
		},
		{
			name:    "percentage capped",
			benefit: Percentage{Value: d("50"), Cap: capOf("10")},
			base:    d("100"),
			want:    d("10"),
		},
		{
			name:    "cap above computed amount is inert",
			benefit: Percentage{Value: d("5"), Cap: capOf("10")},
			base:    d("100"),
			want:    d("5"),
		},
		{
			name:    "percentage above 100 clamped to base",
			benefit: Percentage{Value: d("150")},
			base:    d("40"),
			want:    d("40"),
		},
		{
			name:    "negative percentage clamped to zero",
			benefit: Percentage{Value: d("-10")},
			base:    d("40"),
			want:    d("0"),
		},
		{
			name:    "percentage rounds half up",
			benefit: Percentage{Value: d("15")},
			base:    d("0.10"),
			want:    d("0.02"),
		},
		{
			name:    "fixed below base",
			benefit: FixedAmount{Value: d("30")},
			base:    d("100"),
			want:    d("30"),
		},
		{
			name:    "fixed above base bounded by base",
			benefit: FixedAmount{Value: d("40")},
			base:    d("30"),
			want:    d("30"),
		},
		{
			name:    "negative fixed is zero",
			benefit: FixedAmount{Value: d("-5")},
			base:    d("30"),
			want:    d("0"),
		},
		{
			name:    "free shipping leaves merchandise untouched",
			benefit: FreeShipping{},
			base:    d("30"),
			want:    d("0"),
		},
		{
			name:    "missing benefit is zero",
			benefit: nil,
			base:    d("30"),
			want:    d("0"),
		},
		{
			name:    "zero base",
			benefit: FixedAmount{Value: d("10")},
			base:    d("0"),
			want:    d("0"),
		},
		{
			name:    "negative base",
			benefit: Percentage{Value: d("10")},
			base:    d("-10"),
			want:    d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Amount(&Rule{Benefit: tt.benefit}, tt.base)
			assert.True(t, tt.want.Equal(got), "expected amount %s, got %s", tt.want, got)
			assert.False(t, got.IsNegative())
			if tt.base.IsPositive() {
				assert.True(t, got.LessThanOrEqual(tt.base))
			}
		})
	}
}

func TestAmount_NilRule(t *testing.T) {
	assert.True(t, Amount(nil, d("10")).IsZero())
}

func TestParseBenefit(t *testing.T) {
	b, err := ParseBenefit("percentage", d("10"), capOf("5"))
	assert.NoError(t, err)
	assert.Equal(t, KindPercentage, b.Kind())

	value, maxDiscount := BenefitValue(b)
	assert.True(t, value.Equal(d("10")))
	assert.True(t, maxDiscount.Valid)

	b, err = ParseBenefit("fixed_amount", d("3"), capOf("5"))
	assert.NoError(t, err)
	_, maxDiscount = BenefitValue(b)
	assert.False(t, maxDiscount.Valid, "cap only applies to percentage rules")

	b, err = ParseBenefit("free_shipping", decimal.Zero, decimal.NullDecimal{})
	assert.NoError(t, err)
	assert.Equal(t, KindFreeShipping, b.Kind())

	_, err = ParseBenefit("buy_one_get_one", d("1"), decimal.NullDecimal{})
	assert.Error(t, err)
}
