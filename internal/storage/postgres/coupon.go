package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/money"
)

const (
	couponColumns = `id, code, title, description, type, scope, eligible_ids, value,
		max_discount, min_order, start_at, end_at, global_usage_limit, used_count,
		max_uses_per_user, status`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listActiveCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE status = 'ACTIVE'
			AND (start_at IS NULL OR start_at <= $1)
			AND (end_at IS NULL OR end_at >= $1)
		ORDER BY code`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, $14, $15)
		ON CONFLICT (code) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			type = EXCLUDED.type, scope = EXCLUDED.scope, eligible_ids = EXCLUDED.eligible_ids,
			value = EXCLUDED.value, max_discount = EXCLUDED.max_discount,
			min_order = EXCLUDED.min_order, start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at,
			global_usage_limit = EXCLUDED.global_usage_limit,
			max_uses_per_user = EXCLUDED.max_uses_per_user, status = EXCLUDED.status`

	createRedemptionSQL = `INSERT INTO coupon_redemptions (id, user_id, coupon_id, status, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, coupon_id) DO NOTHING`

	redemptionColumns = `r.id, r.user_id, r.coupon_id, c.code, r.status, r.collected_at, r.used_at,
		COALESCE(r.order_id, '')`

	findRedemptionSQL = `SELECT ` + redemptionColumns + `
		FROM coupon_redemptions r JOIN coupons c ON c.id = r.coupon_id
		WHERE r.user_id = $1 AND r.coupon_id = $2`

	listRedemptionsSQL = `SELECT ` + redemptionColumns + `
		FROM coupon_redemptions r JOIN coupons c ON c.id = r.coupon_id
		WHERE r.user_id = $1 ORDER BY r.collected_at DESC`

	countUsedSQL = `SELECT count(*) FROM coupon_redemptions
		WHERE user_id = $1 AND coupon_id = $2 AND status = 'USED'`

	markRedemptionUsedSQL = `UPDATE coupon_redemptions
		SET status = 'USED', used_at = $3, order_id = $2
		WHERE id = $1 AND status = 'COLLECTED'`

	// The limit check and the increment are one statement so concurrent
	// settlements cannot overshoot global_usage_limit.
	consumeCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (global_usage_limit = 0 OR used_count < global_usage_limit)`
)

var (
	_ coupon.Store  = (*CouponRepository)(nil)
	_ coupon.Ledger = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Store and coupon.Ledger backed by
// PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrapf(err, "query coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "scan coupon %q", code)
	}
	return &c, nil
}

// ListActive returns ACTIVE coupons whose window contains now.
func (r *CouponRepository) ListActive(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listActiveCouponsSQL, now)
	if err != nil {
		return nil, errors.Wrap(err, "query active coupons")
	}
	list, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, errors.Wrap(err, "scan active coupons")
	}
	return list, nil
}

// Upsert inserts a coupon definition or replaces the definition of an
// existing code. The running used_count is never overwritten.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	eligible := c.EligibleIDs
	if eligible == nil {
		eligible = []string{}
	}
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.ID, c.Code, c.Title, c.Description, string(c.Type), string(c.Scope), eligible, c.Value,
		c.MaxDiscount.Int64(), c.MinOrder.Int64(), c.StartAt, c.EndAt, c.GlobalUsageLimit,
		c.MaxUsesPerUser, string(c.Status),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert coupon %q", c.Code)
	}
	return nil
}

// Create inserts a COLLECTED redemption. The (user_id, coupon_id) unique
// key decides concurrent collections.
func (r *CouponRepository) Create(ctx context.Context, red *coupon.Redemption) error {
	tag, err := r.pool.Exec(ctx, createRedemptionSQL,
		red.ID, red.UserID, red.CouponID, string(red.Status), red.CollectedAt)
	if err != nil {
		return errors.Wrap(err, "insert redemption")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrAlreadyCollected
	}
	return nil
}

// Find returns the user's redemption of couponID.
func (r *CouponRepository) Find(ctx context.Context, userID, couponID string) (*coupon.Redemption, error) {
	rows, err := r.pool.Query(ctx, findRedemptionSQL, userID, couponID)
	if err != nil {
		return nil, errors.Wrap(err, "query redemption")
	}
	red, err := pgx.CollectExactlyOneRow(rows, scanRedemption)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotCollected
		}
		return nil, errors.Wrap(err, "scan redemption")
	}
	return &red, nil
}

// CountUsed counts the user's USED redemptions of couponID.
func (r *CouponRepository) CountUsed(ctx context.Context, userID, couponID string) (int64, error) {
	return countUsed(ctx, r.pool, userID, couponID)
}

// ListByUser returns the user's redemptions, newest first.
func (r *CouponRepository) ListByUser(ctx context.Context, userID string) ([]coupon.Redemption, error) {
	rows, err := r.pool.Query(ctx, listRedemptionsSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query redemptions")
	}
	list, err := pgx.CollectRows(rows, scanRedemption)
	if err != nil {
		return nil, errors.Wrap(err, "scan redemptions")
	}
	return list, nil
}

func countUsed(ctx context.Context, q querier, userID, couponID string) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, countUsedSQL, userID, couponID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count used redemptions")
	}
	return n, nil
}

func markUsed(ctx context.Context, q querier, redemptionID, orderID string, at time.Time) error {
	tag, err := q.Exec(ctx, markRedemptionUsedSQL, redemptionID, orderID, at)
	if err != nil {
		return errors.Wrap(err, "mark redemption used")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrAlreadyUsed
	}
	return nil
}

func consumeUsage(ctx context.Context, q querier, couponID string) error {
	tag, err := q.Exec(ctx, consumeCouponUsageSQL, couponID)
	if err != nil {
		return errors.Wrap(err, "consume coupon usage")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c                   coupon.Coupon
		typ, scope, status  string
		maxDiscount, minOrd int64
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Title, &c.Description, &typ, &scope, &c.EligibleIDs, &c.Value,
		&maxDiscount, &minOrd, &c.StartAt, &c.EndAt, &c.GlobalUsageLimit, &c.UsedCount,
		&c.MaxUsesPerUser, &status,
	)
	c.Type = coupon.Type(typ)
	c.Scope = coupon.Scope(scope)
	c.Status = coupon.Status(status)
	c.MaxDiscount = money.Minor(maxDiscount)
	c.MinOrder = money.Minor(minOrd)
	return c, err
}

func scanRedemption(row pgx.CollectableRow) (coupon.Redemption, error) {
	var (
		red    coupon.Redemption
		status string
	)
	err := row.Scan(&red.ID, &red.UserID, &red.CouponID, &red.CouponCode, &status,
		&red.CollectedAt, &red.UsedAt, &red.OrderID)
	red.Status = coupon.RedemptionStatus(status)
	return red, err
}
