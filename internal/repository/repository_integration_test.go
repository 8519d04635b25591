//go:build integration

package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/catalog"
	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dc, err := tc.NewDockerCompose("testdata/docker-compose.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}
	defer func() {
		if err := dc.Down(context.Background(), tc.RemoveOrphans(true), tc.RemoveVolumes(true)); err != nil {
			log.Printf("compose down: %v", err)
		}
	}()

	err = dc.
		WaitForService("postgres", wait.ForListeningPort("5432/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Printf("compose up: %v", err)
		return 1
	}

	pg, err := dc.ServiceContainer(ctx, "postgres")
	if err != nil {
		log.Printf("postgres container: %v", err)
		return 1
	}
	host, err := pg.Host(ctx)
	if err != nil {
		log.Printf("host: %v", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Printf("mapped port: %v", err)
		return 1
	}

	url := fmt.Sprintf("postgres://pricing:pricing@%s:%s/pricing?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, url)
	if err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}
	return m.Run()
}

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newRule(id string) promotion.Rule {
	return promotion.Rule{
		ID:                id,
		Name:              "Rule " + id,
		Benefit:           promotion.Percentage{Value: dec("10")},
		UsageLimitPerUser: 1,
		Status:            promotion.StatusActive,
		StartsAt:          t0,
		IsActive:          true,
		Level:             promotion.LevelProduct,
		CreatedAt:         t0,
	}
}

// assertBenefit compares benefits numerically; NUMERIC columns come back
// with a fixed scale.
func assertBenefit(t *testing.T, want, got promotion.Benefit) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Kind(), got.Kind())
	wantValue, wantCap := promotion.BenefitValue(want)
	gotValue, gotCap := promotion.BenefitValue(got)
	assert.True(t, wantValue.Equal(gotValue), "value: want %s, got %s", wantValue, gotValue)
	assert.Equal(t, wantCap.Valid, gotCap.Valid)
	if wantCap.Valid {
		assert.True(t, wantCap.Decimal.Equal(gotCap.Decimal), "cap: want %s, got %s", wantCap.Decimal, gotCap.Decimal)
	}
}

func reset(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`TRUNCATE products, promotional_rules, rule_products, rule_categories, rule_brands, rule_vendors,
			rule_redemptions, api_keys CASCADE`)
	require.NoError(t, err)
}

func ruleIDs(rules []promotion.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func TestProductRepository(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewProductRepository(testPool)

	require.NoError(t, repo.Upsert(ctx, catalog.Product{ID: "p1", Name: "Jacket", Price: dec("129.90"), CategoryID: "c1", BrandID: "b1", VendorID: "v1"}))
	require.NoError(t, repo.Upsert(ctx, catalog.Product{ID: "p2", Name: "Socks", Price: dec("4.50")}))
	require.NoError(t, repo.Upsert(ctx, catalog.Product{ID: "p2", Name: "Wool socks", Price: dec("6.00")}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Wool socks", all[1].Name)

	p, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, dec("129.90").Equal(p.Price))
	assert.Equal(t, "v1", p.VendorID)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	some, err := repo.GetByIDs(ctx, []string{"p2", "missing"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "p2", some[0].ID)
}

func TestRuleRepository_FetchEligibleRules(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewRuleRepository(testPool)
	now := t0.Add(24 * time.Hour)

	byProduct := newRule("by-product")
	byProduct.Scope.ProductIDs = []string{"p1"}

	byCategory := newRule("by-category")
	byCategory.Scope.CategoryIDs = []string{"c1"}

	byBrand := newRule("by-brand")
	byBrand.Scope.BrandIDs = []string{"b9"}

	storeWide := newRule("store-wide")
	storeWide.IsGlobal = true

	globalScoped := newRule("global-scoped")
	globalScoped.IsGlobal = true
	globalScoped.Scope.VendorIDs = []string{"v2"}

	expired := newRule("expired")
	expired.Scope.ProductIDs = []string{"p1"}
	end := t0.Add(time.Hour)
	expired.EndsAt = &end

	exhausted := newRule("exhausted")
	exhausted.Scope.ProductIDs = []string{"p1"}
	limit := 0
	exhausted.UsageLimit = &limit

	couponRule := newRule("coupon")
	couponRule.Code = "SAVE10"
	couponRule.Scope.ProductIDs = []string{"p1"}

	orderLevel := newRule("order-level")
	orderLevel.IsGlobal = true
	orderLevel.Level = promotion.LevelOrder

	for _, r := range []promotion.Rule{byProduct, byCategory, byBrand, storeWide, globalScoped, expired, exhausted, couponRule, orderLevel} {
		require.NoError(t, repo.UpsertRule(ctx, r), r.ID)
	}

	rules, err := repo.FetchEligibleRules(ctx, promotion.ScopeFilter{
		ProductIDs:  []string{"p1"},
		CategoryIDs: []string{"c1"},
		VendorIDs:   []string{"v1"},
	}, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"by-product", "by-category", "store-wide"}, ruleIDs(rules))

	for _, r := range rules {
		if r.ID == "by-category" {
			assert.Equal(t, []string{"c1"}, r.Scope.CategoryIDs)
			assert.Empty(t, r.Scope.ProductIDs)
			assertBenefit(t, promotion.Percentage{Value: dec("10")}, r.Benefit)
		}
	}

	rules, err = repo.FetchEligibleRules(ctx, promotion.ScopeFilter{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"store-wide"}, ruleIDs(rules))

	auto, err := repo.FetchGlobalAutomaticRules(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"order-level"}, ruleIDs(auto))

	n, err := repo.CountActiveRules(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestRuleRepository_UpsertReplacesScope(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewRuleRepository(testPool)

	r := newRule("r1")
	r.Scope.ProductIDs = []string{"p1", "p2"}
	require.NoError(t, repo.UpsertRule(ctx, r))

	r.Scope = promotion.Scope{BrandIDs: []string{"b1"}}
	r.Benefit = promotion.FixedAmount{Value: dec("5")}
	require.NoError(t, repo.UpsertRule(ctx, r))

	rules, err := repo.FetchEligibleRules(ctx, promotion.ScopeFilter{ProductIDs: []string{"p1"}}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rules)

	rules, err = repo.FetchEligibleRules(ctx, promotion.ScopeFilter{BrandIDs: []string{"b1"}}, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assertBenefit(t, promotion.FixedAmount{Value: dec("5")}, rules[0].Benefit)
}

func TestRuleRepository_FetchRuleByCode(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewRuleRepository(testPool)

	r := newRule("c1")
	r.Code = "Spring25"
	r.Level = promotion.LevelOrder
	r.Status = promotion.StatusExpired
	r.Benefit = promotion.Percentage{Value: dec("25"), Cap: decimal.NewNullDecimal(dec("40"))}
	require.NoError(t, repo.UpsertRule(ctx, r))

	got, err := repo.FetchRuleByCode(ctx, "SPRING25")
	require.NoError(t, err)
	assert.Equal(t, "Spring25", got.Code)
	assert.Equal(t, promotion.StatusExpired, got.Status)
	assertBenefit(t, promotion.Percentage{Value: dec("25"), Cap: decimal.NewNullDecimal(dec("40"))}, got.Benefit)

	_, err = repo.FetchRuleByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, promotion.ErrRuleNotFound)

	dup := newRule("c2")
	dup.Code = "SPRING25"
	assert.Error(t, repo.UpsertRule(ctx, dup), "codes are unique case-insensitively")
}

func TestRedemptionRepository(t *testing.T) {
	reset(t)
	ctx := context.Background()
	rules := NewRuleRepository(testPool)
	repo := NewRedemptionRepository(testPool)

	r := newRule("c1")
	r.Code = "ONCE"
	limit := 2
	r.UsageLimit = &limit
	require.NoError(t, rules.UpsertRule(ctx, r))

	redeem := func(id, user, order string) error {
		return repo.Redeem(ctx, &coupon.Redemption{
			ID: id, UserID: user, RuleID: "c1", OrderID: order,
			DiscountAmount: dec("5"), UsedAt: t0,
		})
	}

	require.NoError(t, redeem("rd1", "u1", "o1"))
	assert.ErrorIs(t, redeem("rd2", "u1", "o2"), coupon.ErrAlreadyUsed)

	n, err := rules.CountUserRedemptions(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, redeem("rd3", "u2", "o3"))
	assert.ErrorIs(t, redeem("rd4", "u3", "o4"), coupon.ErrUsedUp)

	got, err := rules.FetchRuleByCode(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsedCount)
	assert.Equal(t, promotion.StatusUsedUp, got.Status)

	err = repo.Redeem(ctx, &coupon.Redemption{ID: "rd5", UserID: "u1", RuleID: "missing", OrderID: "o5", UsedAt: t0})
	assert.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestRedemptionRepository_ConcurrentLimit(t *testing.T) {
	reset(t)
	ctx := context.Background()
	rules := NewRuleRepository(testPool)
	repo := NewRedemptionRepository(testPool)

	r := newRule("flash")
	r.Code = "FLASH"
	limit := 5
	r.UsageLimit = &limit
	require.NoError(t, rules.UpsertRule(ctx, r))

	const attempts = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		usedUp  int
		unknown []error
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Redeem(ctx, &coupon.Redemption{
				ID:     fmt.Sprintf("rd-%d", i),
				UserID: fmt.Sprintf("u-%d", i),
				RuleID: "flash", OrderID: fmt.Sprintf("o-%d", i),
				UsedAt: t0,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case isUsedUp(err):
				usedUp++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, limit, ok)
	assert.Equal(t, attempts-limit, usedUp)

	got, err := rules.FetchRuleByCode(ctx, "FLASH")
	require.NoError(t, err)
	assert.Equal(t, limit, got.UsedCount)
}

func isUsedUp(err error) bool {
	var verr *coupon.ValidationError
	return errors.As(err, &verr) && verr.Reason == coupon.ReasonUsedUp
}

func TestAPIKeyRepository(t *testing.T) {
	reset(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(testPool)
	a := auth.NewAuthenticator(repo, []byte("pepper"))

	require.NoError(t, repo.Upsert(ctx, auth.APIKeyInfo{
		ID: "checkout", KeyHash: a.Hash("secret"), Name: "checkout", Scopes: []string{auth.ScopeRedeem},
	}))

	info, err := a.Authenticate(ctx, "secret", auth.ScopeRedeem)
	require.NoError(t, err)
	assert.Equal(t, "checkout", info.Name)

	_, err = a.Authenticate(ctx, "other", auth.ScopeRedeem)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = repo.FindByHash(ctx, a.Hash("missing"))
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
