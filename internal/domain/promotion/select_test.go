package promotion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBest(t *testing.T) {
	older := testNow.Add(-48 * time.Hour)
	newer := testNow.Add(-time.Hour)

	withCreated := func(r Rule, at time.Time) *Rule {
		r.CreatedAt = at
		return &r
	}

	tests := []struct {
		name       string
		base       decimal.Decimal
		candidates []*Rule
		wantRule   string
		wantAmount decimal.Decimal
		wantFinal  decimal.Decimal
	}{
		{
			name:       "single percentage",
			base:       d("100"),
			candidates: []*Rule{withCreated(activeRule("pct20", Percentage{Value: d("20")}), older)},
			wantRule:   "pct20",
			wantAmount: d("20"),
			wantFinal:  d("80"),
		},
		{
			name: "larger fixed beats percentage",
			base: d("100"),
			candidates: []*Rule{
				withCreated(activeRule("pct20", Percentage{Value: d("20")}), older),
				withCreated(activeRule("fixed30", FixedAmount{Value: d("30")}), older),
			},
			wantRule:   "fixed30",
			wantAmount: d("30"),
			wantFinal:  d("70"),
		},
		{
			name:       "capped percentage",
			base:       d("100"),
			candidates: []*Rule{withCreated(activeRule("pct50", Percentage{Value: d("50"), Cap: capOf("10")}), older)},
			wantRule:   "pct50",
			wantAmount: d("10"),
			wantFinal:  d("90"),
		},
		{
			name: "tie goes to newer rule",
			base: d("100"),
			candidates: []*Rule{
				withCreated(activeRule("new", FixedAmount{Value: d("10")}), newer),
				withCreated(activeRule("old", Percentage{Value: d("10")}), older),
			},
			wantRule:   "new",
			wantAmount: d("10"),
			wantFinal:  d("90"),
		},
		{
			name: "full tie goes to greater id",
			base: d("100"),
			candidates: []*Rule{
				withCreated(activeRule("b", FixedAmount{Value: d("10")}), older),
				withCreated(activeRule("a", FixedAmount{Value: d("10")}), older),
			},
			wantRule:   "b",
			wantAmount: d("10"),
			wantFinal:  d("90"),
		},
		{
			name: "zero amount candidates discarded",
			base: d("100"),
			candidates: []*Rule{
				withCreated(activeRule("ship", FreeShipping{}), newer),
				withCreated(activeRule("zero", Percentage{Value: d("0")}), newer),
			},
			wantAmount: d("0"),
			wantFinal:  d("100"),
		},
		{
			name:       "no candidates",
			base:       d("15.50"),
			wantAmount: d("0"),
			wantFinal:  d("15.50"),
		},
		{
			name:       "fixed above base floors final at zero",
			base:       d("30"),
			candidates: []*Rule{withCreated(activeRule("fixed40", FixedAmount{Value: d("40")}), older)},
			wantRule:   "fixed40",
			wantAmount: d("30"),
			wantFinal:  d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBest(tt.base, tt.candidates)
			if tt.wantRule == "" {
				assert.False(t, got.Applied())
			} else {
				require.True(t, got.Applied())
				assert.Equal(t, tt.wantRule, got.Rule.ID)
			}
			assert.True(t, tt.wantAmount.Equal(got.DiscountAmount), "expected amount %s, got %s", tt.wantAmount, got.DiscountAmount)
			assert.True(t, tt.wantFinal.Equal(got.FinalPrice), "expected final %s, got %s", tt.wantFinal, got.FinalPrice)
		})
	}
}

func TestSelectBest_FinalIsBaseMinusDiscount(t *testing.T) {
	bases := []string{"10.005", "0.005", "9.99", "0", "1234.5"}
	candidates := []*Rule{
		nil,
		ptr(activeRule("fixed1", FixedAmount{Value: d("1")})),
		ptr(activeRule("pct10", Percentage{Value: d("10")})),
		ptr(activeRule("pct33", Percentage{Value: d("33.33"), Cap: capOf("2.50")})),
	}

	for _, b := range bases {
		for _, c := range candidates {
			base := d(b)
			var rules []*Rule
			if c != nil {
				rules = []*Rule{c}
			}
			sel := SelectBest(base, rules)
			assert.True(t, base.Sub(sel.DiscountAmount).Equal(sel.FinalPrice),
				"base %s: %s - %s != %s", b, base, sel.DiscountAmount, sel.FinalPrice)
			assert.False(t, sel.FinalPrice.IsNegative())
			assert.False(t, sel.FinalPrice.GreaterThan(base))
		}
	}

	sel := SelectBest(d("10.005"), nil)
	assert.True(t, d("10.005").Equal(sel.FinalPrice))
}

func TestSelectBest_OrderIndependent(t *testing.T) {
	a := activeRule("a", FixedAmount{Value: d("10")})
	b := activeRule("b", Percentage{Value: d("10")})
	c := activeRule("c", FixedAmount{Value: d("7")})

	forward := SelectBest(d("100"), []*Rule{&a, &b, &c})
	backward := SelectBest(d("100"), []*Rule{&c, &b, &a})

	require.True(t, forward.Applied())
	assert.Equal(t, forward.Rule.ID, backward.Rule.ID)
	assert.Equal(t, "b", forward.Rule.ID)
}

func TestBest(t *testing.T) {
	rules := []Rule{
		activeRule("small", FixedAmount{Value: d("5")}),
		activeRule("big", Percentage{Value: d("10")}),
	}
	got := Best(d("200"), rules)
	require.True(t, got.Applied())
	assert.Equal(t, "big", got.Rule.ID)
	assert.True(t, d("20").Equal(got.DiscountAmount))
}

func ptr(r Rule) *Rule { return &r }
