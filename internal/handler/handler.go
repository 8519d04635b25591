// Package handler exposes the pricing engine over HTTP with hand-written
// jx codecs.
package handler

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// Pricing is the subset of *pricing.Service the handlers call.
type Pricing interface {
	ListProducts(ctx context.Context) ([]catalog.Product, map[string]pricing.Discount, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, pricing.Discount, error)
	ResolveDiscountsForProducts(ctx context.Context, products []catalog.Product) map[string]pricing.Discount
	ValidateCoupon(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*promotion.Rule, error)
	ComputeCartSummary(ctx context.Context, req pricing.CartRequest) (*pricing.Summary, error)
}

// Redeemer records coupon redemptions.
type Redeemer interface {
	Redeem(ctx context.Context, userID, ruleID, orderID string, amount decimal.Decimal) (*coupon.Redemption, error)
}

// Authenticator resolves API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key, scope string) (*auth.APIKeyInfo, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// CouponLimiter throttles coupon validation per client. Nil disables it.
	CouponLimiter *httpmiddleware.Limiter
	// MaxBodyBytes caps request bodies. Zero means 1 MiB.
	MaxBodyBytes int64
}

// Handler serves the public pricing API.
type Handler struct {
	pricing  Pricing
	redeemer Redeemer
	auth     Authenticator

	couponLimiter *httpmiddleware.Limiter
	maxBody       int64
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, svc Pricing, redeemer Redeemer, authn Authenticator) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		pricing:       svc,
		redeemer:      redeemer,
		auth:          authn,
		couponLimiter: cfg.CouponLimiter,
		maxBody:       cfg.MaxBodyBytes,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern string, fn http.HandlerFunc, mws ...httpmiddleware.Middleware) {
		mux.Handle(pattern, httpmiddleware.Route(pattern, httpmiddleware.Wrap(fn, mws...)))
	}

	var couponMW []httpmiddleware.Middleware
	if h.couponLimiter != nil {
		couponMW = append(couponMW, h.couponLimiter.Middleware())
	}

	route("GET /api/products", h.ListProducts)
	route("GET /api/products/{id}", h.GetProduct)
	route("POST /api/products/discounts", h.ResolveDiscounts)
	route("POST /api/coupons/validate", h.ValidateCoupon, couponMW...)
	route("POST /api/cart/summary", h.CartSummary)
	route("POST /api/redemptions", h.CreateRedemption, h.requireAPIKey(auth.ScopeRedeem))
}
