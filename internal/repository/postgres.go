// Package repository implements the catalog, rule, redemption and API key
// stores on PostgreSQL with pgx.
package repository

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/db"
)

// migrationLockID serializes concurrent RunMigrations calls across processes.
const migrationLockID = 7_342_118

// NewPool opens a pool whose connections decode NUMERIC into decimal.Decimal.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// RunMigrations applies every embedded migration in order inside one
// transaction. The statements are idempotent, so reruns are safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := db.Migrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("locking migrations: %w", err)
		}
		for _, m := range migrations {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("running migration %s: %w", m.Name, err)
			}
		}
		return nil
	})
}
