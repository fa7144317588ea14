package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sourcemart/internal/domain/coupon"
)

const (
	findCouponByCodeSQL = `SELECT id::text, code, type, value, min_amount, max_amount,
		usage_limit, usage_count, valid_from, valid_until, is_active
		FROM coupons
		WHERE code = $1 AND is_active = TRUE AND valid_from <= $2 AND valid_until >= $2`

	// The guard makes concurrent redemptions of the last use race safely:
	// at most one UPDATE matches.
	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its normalized code whose validity
// window contains at. Returns coupon.ErrNotFound when none matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string, at time.Time) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findCouponByCodeSQL, coupon.NormalizeCode(code), at)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage atomically bumps the usage counter while it is below the limit.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsageSQL, id)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, couponExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", id, err)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageLimitReached
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c          coupon.Coupon
		typ        string
		usageLimit *int32
		usageCount int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &typ, &c.Value, &c.MinAmount, &c.MaxAmount,
		&usageLimit, &usageCount, &c.ValidFrom, &c.ValidUntil, &c.Active,
	)
	c.Type = coupon.Type(typ)
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.UsageCount = int(usageCount)
	return c, err
}
