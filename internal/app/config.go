package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (PRICING_ prefix), flags, or YAML config files.
type Config struct {
	Addr             string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL      string        `usage:"PostgreSQL connection URL (PRICING_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper     string        `usage:"HMAC pepper for API key hashing (PRICING_API_KEY_PEPPER)" flag:"api-key-pepper"`
	TaxRate          string        `default:"0" usage:"Sales tax rate as a fraction, e.g. 0.08" flag:"tax-rate"`
	RuleFetchTimeout time.Duration `default:"2s" usage:"Deadline for loading promotional rules per request" flag:"rule-fetch-timeout"`
	CouponRateLimit  RateLimitConfig
	Graceful         GracefulConfig
}

// RateLimitConfig controls the per-client limit on coupon validation.
type RateLimitConfig struct {
	Max    int           `default:"30" usage:"Max coupon validations per client and window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PRICING",
		Files:     []string{"config.yaml", "/etc/pricing/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PRICING_DATABASE_URL or DATABASE_URL")
	}
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return errors.Wrapf(err, "parse tax rate %q", c.TaxRate)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.Errorf("tax rate %s must be between 0 and 1", rate)
	}
	if c.RuleFetchTimeout <= 0 {
		return errors.Errorf("rule fetch timeout must be positive, got %s", c.RuleFetchTimeout)
	}
	return nil
}

// Tax returns the tax rate. Only call it on a validated Config.
func (c *Config) Tax() decimal.Decimal {
	return decimal.RequireFromString(c.TaxRate)
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's PRICING_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
