package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process runs more than limit goroutines.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds limit %d", n, limit)
		}
		return nil
	}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(p.Ping(ctx), "ping")
	}
}

// RuleCounter reports how many promotional rules are currently active.
type RuleCounter interface {
	CountActiveRules(ctx context.Context) (int, error)
}

// ActiveRulesCheck fails when the rule store cannot be queried. An empty
// store is healthy: it only means no discounts apply.
func ActiveRulesCheck(c RuleCounter) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := c.CountActiveRules(ctx); err != nil {
			return errors.Wrap(err, "count active rules")
		}
		return nil
	}
}
