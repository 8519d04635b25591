package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/coupon"
	"github.com/xenking/storefront-pricing/internal/domain/pricing"
	"github.com/xenking/storefront-pricing/internal/handler"
	"github.com/xenking/storefront-pricing/internal/repository"
	"github.com/xenking/storefront-pricing/pkg/health"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("tax_rate", cfg.Tax().String()),
		zap.Duration("rule_fetch_timeout", cfg.RuleFetchTimeout),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)
	redemptionRepo := repository.NewRedemptionRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)

	// Health checks.
	healthSvc := health.New()
	healthSvc.Register(health.Check{
		Name:    "postgres",
		Probe:   health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(pool),
	})
	healthSvc.Register(health.Check{
		Name:    "rules",
		Probe:   health.Readiness,
		Timeout: 5 * time.Second,
		Func:    health.ActiveRulesCheck(ruleRepo),
	})
	healthSvc.Register(health.Check{
		Name:  "goroutines",
		Probe: health.Liveness,
		Func:  health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	resolver, err := pricing.NewResolver(ruleRepo,
		pricing.WithTracerProvider(m.TracerProvider()),
		pricing.WithMeterProvider(m.MeterProvider()),
		pricing.WithFetchTimeout(cfg.RuleFetchTimeout),
	)
	if err != nil {
		return errors.Wrap(err, "create resolver")
	}
	pricingService := pricing.NewService(
		pricing.ServiceConfig{TaxRate: cfg.Tax()},
		productRepo,
		resolver,
		coupon.NewRepoValidator(ruleRepo),
	)
	redeemer := coupon.NewRedeemer(redemptionRepo)
	authenticator := auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	couponLimiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.CouponRateLimit.Max,
		Window: cfg.CouponRateLimit.Window,
	})
	go couponLimiter.RunSweeper(ctx)

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{CouponLimiter: couponLimiter},
		pricingService,
		redeemer,
		authenticator,
	)

	mux := http.NewServeMux()
	mux.Handle("GET /livez", httpmiddleware.Route("GET /livez", http.HandlerFunc(healthSvc.LiveEndpoint)))
	mux.Handle("GET /readyz", httpmiddleware.Route("GET /readyz", http.HandlerFunc(healthSvc.ReadyEndpoint)))
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("pricing-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
