package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-pricing/internal/domain/coupon"
)

const (
	lockRedemptionSQL = `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`

	userRedemptionStateSQL = `SELECT COALESCE(r.code, r.id), r.usage_limit_per_user,
		(SELECT count(*) FROM rule_redemptions rr WHERE rr.rule_id = r.id AND rr.user_id = $2)
		FROM promotional_rules r WHERE r.id = $1`

	// claimRedemptionSQL only succeeds while the rule is live and below its
	// limit; the row that reaches the limit flips the status to used_up.
	claimRedemptionSQL = `UPDATE promotional_rules
		SET used_count = used_count + 1,
			status = CASE
				WHEN usage_limit IS NOT NULL AND used_count + 1 >= usage_limit THEN 'used_up'
				ELSE status
			END
		WHERE id = $1
			AND is_active = TRUE
			AND status = 'active'
			AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING used_count`

	insertRedemptionSQL = `INSERT INTO rule_redemptions (id, user_id, rule_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ coupon.RedemptionStore = (*RedemptionRepository)(nil)

// RedemptionRepository implements coupon.RedemptionStore backed by PostgreSQL.
type RedemptionRepository struct {
	pool *pgxpool.Pool
}

// NewRedemptionRepository returns a RedemptionRepository that uses the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// Redeem records a redemption in one transaction. Concurrent redemptions by
// the same user of the same rule are serialized by an advisory lock; the
// global limit is enforced by a conditional increment.
func (r *RedemptionRepository) Redeem(ctx context.Context, rd *coupon.Redemption) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning redemption: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, lockRedemptionSQL, rd.UserID, rd.RuleID); err != nil {
		return fmt.Errorf("locking redemption: %w", err)
	}

	var (
		code          string
		perUser, used int
	)
	err = tx.QueryRow(ctx, userRedemptionStateSQL, rd.RuleID, rd.UserID).Scan(&code, &perUser, &used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &coupon.ValidationError{Code: rd.RuleID, Reason: coupon.ReasonNotFound}
		}
		return fmt.Errorf("reading redemption state: %w", err)
	}
	if perUser <= 0 {
		perUser = 1
	}
	if used >= perUser {
		return &coupon.ValidationError{Code: code, Reason: coupon.ReasonAlreadyUsed}
	}

	var usedCount int
	err = tx.QueryRow(ctx, claimRedemptionSQL, rd.RuleID).Scan(&usedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &coupon.ValidationError{Code: code, Reason: coupon.ReasonUsedUp}
		}
		return fmt.Errorf("claiming redemption: %w", err)
	}

	_, err = tx.Exec(ctx, insertRedemptionSQL,
		rd.ID, rd.UserID, rd.RuleID, rd.OrderID, rd.DiscountAmount, rd.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting redemption: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redemption: %w", err)
	}
	return nil
}
