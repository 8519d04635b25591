package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/repository"
	"github.com/xenking/storefront-pricing/internal/ruleimport"
)

type options struct {
	databaseURL   string
	rulesGlob     string
	productsFile  string
	workers       int
	expectedRules uint
	apiKey        string
	apiKeyName    string
	apiKeyPepper  string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.rulesGlob, "rules", "data/rules-*.jsonl.gz", "glob of gzipped JSON-lines rule dumps")
	flag.StringVar(&opts.productsFile, "products-file", "", "optional JSON array of products to upsert first")
	flag.IntVar(&opts.workers, "workers", 4, "concurrent rule writers")
	flag.UintVar(&opts.expectedRules, "expected-rules", 1_000_000, "expected rule count, sizes the duplicate filter")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to provision with the redeem scope (or PRICING_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyName, "api-key-name", "checkout", "name of the provisioned API key")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PRICING_API_KEY_PEPPER env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("PRICING_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("PRICING_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("rule import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("rule import completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(opts.rulesGlob)
	if err != nil {
		return errors.Wrapf(err, "glob %s", opts.rulesGlob)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if opts.productsFile != "" {
		data, err := os.ReadFile(opts.productsFile)
		if err != nil {
			return errors.Wrap(err, "read products file")
		}
		products, err := ruleimport.DecodeProducts(data)
		if err != nil {
			return errors.Wrap(err, "parse products")
		}
		slog.Info("upserting products", slog.Int("count", len(products)))
		if err := ruleimport.ImportProducts(ctx, repository.NewProductRepository(pool), products); err != nil {
			return err
		}
	}

	if opts.apiKey != "" {
		if err := provisionAPIKey(ctx, repository.NewAPIKeyRepository(pool), opts); err != nil {
			return errors.Wrap(err, "provision api key")
		}
	}

	if len(files) == 0 {
		slog.Info("no rule files matched", slog.String("glob", opts.rulesGlob))
		return nil
	}

	slog.Info("importing rules", slog.Int("files", len(files)), slog.Int("workers", opts.workers))

	im := ruleimport.New(ruleimport.Config{
		Workers:       opts.workers,
		ExpectedRules: opts.expectedRules,
		Progress: func(written int64) {
			slog.Info("progress", slog.Int64("written", written))
		},
	}, repository.NewRuleRepository(pool))

	stats, err := im.Run(ctx, files)
	slog.Info("import finished",
		slog.Int64("read", stats.Read),
		slog.Int64("written", stats.Written),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("invalid", stats.Invalid),
	)
	return err
}

func provisionAPIKey(ctx context.Context, keys *repository.APIKeyRepository, opts options) error {
	a := auth.NewAuthenticator(keys, []byte(opts.apiKeyPepper))
	err := keys.Upsert(ctx, auth.APIKeyInfo{
		ID:      opts.apiKeyName,
		KeyHash: a.Hash(opts.apiKey),
		Name:    opts.apiKeyName,
		Scopes:  []string{auth.ScopeRedeem},
	})
	if err != nil {
		return err
	}
	slog.Info("provisioned api key", slog.String("name", opts.apiKeyName))
	return nil
}
