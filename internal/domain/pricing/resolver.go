// Package pricing resolves product discounts in batches and folds them,
// together with automatic and coupon promotions, into cart totals.
package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

const instrumentationName = "github.com/xenking/storefront-pricing/internal/domain/pricing"

// DefaultFetchTimeout bounds a single rule store round-trip.
const DefaultFetchTimeout = 2 * time.Second

// Discount is the resolved price of one product.
type Discount struct {
	ProductID      string
	BasePrice      decimal.Decimal
	Candidates     []*promotion.Rule
	Applied        *promotion.Rule
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
}

// HasDiscount reports whether a rule was applied.
func (d Discount) HasDiscount() bool {
	return d.Applied != nil
}

func noDiscount(p catalog.Product) Discount {
	base := basePrice(p)
	return Discount{
		ProductID:      p.ID,
		BasePrice:      base,
		DiscountAmount: decimal.Zero,
		FinalPrice:     base,
	}
}

// basePrice is the product price in cents, the unit every discount is
// computed in.
func basePrice(p catalog.Product) decimal.Decimal {
	return p.Price.Round(2)
}

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	fetchTimeout   time.Duration
	now            func() time.Time
}

// Option configures a Resolver.
type Option func(*options)

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithFetchTimeout bounds each rule store call.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithClock overrides the time source used for eligibility checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Resolver computes the best discount for many products with one rule fetch.
type Resolver struct {
	store   promotion.Store
	timeout time.Duration
	now     func() time.Time

	tracer        trace.Tracer
	fetchFailures metric.Int64Counter
	applied       metric.Int64Counter
}

// NewResolver creates a Resolver reading rules from store.
func NewResolver(store promotion.Store, opts ...Option) (*Resolver, error) {
	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		fetchTimeout:   DefaultFetchTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	fetchFailures, err := meter.Int64Counter("pricing.rule_fetch.failures",
		metric.WithDescription("Rule store fetches that failed or timed out"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create fetch failures counter")
	}
	applied, err := meter.Int64Counter("pricing.discounts.applied",
		metric.WithDescription("Products priced with a discount applied"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create applied counter")
	}

	return &Resolver{
		store:         store,
		timeout:       o.fetchTimeout,
		now:           o.now,
		tracer:        o.tracerProvider.Tracer(instrumentationName),
		fetchFailures: fetchFailures,
		applied:       applied,
	}, nil
}

// Resolve returns a Discount for every product, keyed by product ID.
// Rule store failures degrade to prices without discounts; they are logged
// and counted but never returned.
func (r *Resolver) Resolve(ctx context.Context, products []catalog.Product) map[string]Discount {
	out := make(map[string]Discount, len(products))
	if len(products) == 0 {
		return out
	}

	ctx, span := r.tracer.Start(ctx, "pricing.Resolve",
		trace.WithAttributes(attribute.Int("pricing.products", len(products))),
	)
	defer span.End()

	now := r.now()
	rules, err := r.fetch(ctx, scopeFilter(products), now)
	if err != nil {
		zctx.From(ctx).Warn("Rule fetch failed, pricing without discounts",
			zap.Int("products", len(products)),
			zap.Error(err),
		)
		r.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "eligible")))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rule fetch failed")
		for _, p := range products {
			out[p.ID] = noDiscount(p)
		}
		return out
	}
	span.SetAttributes(attribute.Int("pricing.rules", len(rules)))

	candidates := promotion.Match(products, rules, now)
	var discounted int64
	for _, p := range products {
		base := basePrice(p)
		sel := promotion.SelectBest(base, candidates[p.ID])
		out[p.ID] = Discount{
			ProductID:      p.ID,
			BasePrice:      base,
			Candidates:     candidates[p.ID],
			Applied:        sel.Rule,
			DiscountAmount: sel.DiscountAmount,
			FinalPrice:     sel.FinalPrice,
		}
		if sel.Applied() {
			discounted++
		}
	}
	if discounted > 0 {
		r.applied.Add(ctx, discounted)
	}
	return out
}

func (r *Resolver) fetch(ctx context.Context, filter promotion.ScopeFilter, now time.Time) ([]promotion.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.store.FetchEligibleRules(ctx, filter, now)
}

// automaticRules fetches order-level rules under the same timeout. Failures
// are logged and reported as no rules; cancellation by the caller is not a
// failure.
func (r *Resolver) automaticRules(ctx context.Context, now time.Time) []promotion.Rule {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rules, err := r.store.FetchGlobalAutomaticRules(fetchCtx, now)
	if err != nil {
		if ctx.Err() != nil {
			// Caller is gone, not the store.
			return nil
		}
		zctx.From(ctx).Warn("Automatic rule fetch failed, skipping order discounts", zap.Error(err))
		r.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "automatic")))
		return nil
	}
	return rules
}

// scopeFilter collects the distinct identifiers of products.
func scopeFilter(products []catalog.Product) promotion.ScopeFilter {
	var f promotion.ScopeFilter
	seen := make(map[string]struct{}, len(products)*4)
	add := func(dst *[]string, prefix, id string) {
		if id == "" {
			return
		}
		key := prefix + id
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		*dst = append(*dst, id)
	}
	for _, p := range products {
		add(&f.ProductIDs, "p:", p.ID)
		add(&f.CategoryIDs, "c:", p.CategoryID)
		add(&f.BrandIDs, "b:", p.BrandID)
		add(&f.VendorIDs, "v:", p.VendorID)
	}
	return f
}
