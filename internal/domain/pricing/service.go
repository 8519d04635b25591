package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

// ErrEmptyItems is returned when a cart has no items.
var ErrEmptyItems = errors.New("items required")

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// CartRequest is the input of ComputeCartSummary.
type CartRequest struct {
	UserID     string
	Items      []CartItem
	CouponCode string
}

// ServiceConfig holds pricing settings.
type ServiceConfig struct {
	// TaxRate is a fraction, e.g. 0.08 for 8%.
	TaxRate decimal.Decimal
}

// Service exposes product pricing, coupon validation and cart summaries.
type Service struct {
	cfg      ServiceConfig
	products catalog.Repository
	resolver *Resolver
	coupons  coupon.Validator
}

// NewService creates a pricing Service.
func NewService(
	cfg ServiceConfig,
	products catalog.Repository,
	resolver *Resolver,
	coupons coupon.Validator,
) *Service {
	return &Service{
		cfg:      cfg,
		products: products,
		resolver: resolver,
		coupons:  coupons,
	}
}

// ResolveDiscountsForProducts returns the best discount for every product.
func (s *Service) ResolveDiscountsForProducts(ctx context.Context, products []catalog.Product) map[string]Discount {
	return s.resolver.Resolve(ctx, products)
}

// ValidateCoupon checks a coupon code against a user and subtotal.
func (s *Service) ValidateCoupon(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*promotion.Rule, error) {
	return s.coupons.Validate(ctx, code, userID, subtotal)
}

// ListProducts returns the catalog with a resolved discount per product.
func (s *Service) ListProducts(ctx context.Context) ([]catalog.Product, map[string]Discount, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list products")
	}
	return products, s.resolver.Resolve(ctx, products), nil
}

// GetProduct returns one product with its resolved discount.
func (s *Service) GetProduct(ctx context.Context, id string) (*catalog.Product, Discount, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, Discount{}, err
	}
	return p, s.resolver.Resolve(ctx, []catalog.Product{*p})[p.ID], nil
}

// ComputeCartSummary prices every line, then applies the best automatic
// order discount and the coupon, if any, and computes tax and total.
// An invalid coupon fails the whole call with a *coupon.ValidationError so the
// shopper learns why it was rejected.
func (s *Service) ComputeCartSummary(ctx context.Context, req CartRequest) (*Summary, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	ctx, span := s.resolver.tracer.Start(ctx, "pricing.ComputeCartSummary",
		trace.WithAttributes(attribute.Int("pricing.items", len(req.Items))),
	)
	defer span.End()

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get products")
		return nil, fmt.Errorf("get products: %w", err)
	}

	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}
	unique := make([]catalog.Product, 0, len(byID))
	seen := make(map[string]struct{}, len(byID))
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if _, dup := seen[p.ID]; !dup {
			seen[p.ID] = struct{}{}
			unique = append(unique, p)
		}
	}

	discounts := s.resolver.Resolve(ctx, unique)
	lines := PriceLines(req.Items, byID, discounts)
	subtotal := Subtotal(lines).Round(2)

	now := s.resolver.now()
	code := strings.TrimSpace(req.CouponCode)

	var (
		auto       Automatic
		couponRule *promotion.Rule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auto = SelectAutomatic(s.resolver.automaticRules(gctx, now), subtotal, now)
		return nil
	})
	if code != "" {
		g.Go(func() error {
			rule, err := s.coupons.Validate(gctx, code, req.UserID, subtotal)
			if err != nil {
				return fmt.Errorf("validate coupon: %w", err)
			}
			couponRule = rule
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	summary := Aggregate(lines, auto, couponRule, s.cfg.TaxRate)
	span.SetAttributes(
		attribute.String("pricing.subtotal", summary.Subtotal.StringFixed(2)),
		attribute.String("pricing.total", summary.Total.StringFixed(2)),
	)
	return &summary, nil
}
