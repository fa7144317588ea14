package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
	"github.com/xenking/sourcemart/internal/seed"
)

const (
	upsertUserSQL = `INSERT INTO users (id, name, email, is_active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, is_active = EXCLUDED.is_active`

	upsertProductSQL = `INSERT INTO products (id, title, price, is_active, seller_id, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, price = EXCLUDED.price,
			is_active = EXCLUDED.is_active, seller_id = EXCLUDED.seller_id, deleted_at = EXCLUDED.deleted_at`

	// usage_count is only taken from the fixture on first insert.
	upsertCouponSQL = `INSERT INTO coupons (id, code, type, value, min_amount, max_amount,
			usage_limit, usage_count, valid_from, valid_until, is_active)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO UPDATE SET type = EXCLUDED.type, value = EXCLUDED.value,
			min_amount = EXCLUDED.min_amount, max_amount = EXCLUDED.max_amount,
			usage_limit = EXCLUDED.usage_limit, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, is_active = EXCLUDED.is_active`

	addCartEntrySQL = `INSERT INTO cart_items (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
)

var _ seed.Target = (*Seeder)(nil)

// Seeder writes catalog fixtures with idempotent upserts.
type Seeder struct {
	pool *pgxpool.Pool
}

// NewSeeder returns a Seeder that uses the given pool.
func NewSeeder(pool *pgxpool.Pool) *Seeder {
	return &Seeder{pool: pool}
}

// UpsertUser inserts or updates a user.
func (s *Seeder) UpsertUser(ctx context.Context, u user.User) error {
	if _, err := s.pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email, u.Active); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// UpsertProduct inserts or updates a product.
func (s *Seeder) UpsertProduct(ctx context.Context, p product.Product) error {
	if _, err := s.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.Title, p.Price, p.Active, p.SellerID, p.DeletedAt,
	); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

// UpsertCoupon inserts or updates a coupon keyed by code, keeping its usage count.
func (s *Seeder) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	if _, err := s.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// UpsertCoupons upserts coupons in a single round trip.
func (s *Seeder) UpsertCoupons(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL, couponArgs(c)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for _, c := range coupons {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
		}
	}
	return results.Close()
}

func couponArgs(c coupon.Coupon) []any {
	var usageLimit *int32
	if c.UsageLimit != nil {
		limit := int32(*c.UsageLimit)
		usageLimit = &limit
	}
	return []any{
		c.ID, coupon.NormalizeCode(c.Code), string(c.Type), c.Value, c.MinAmount, c.MaxAmount,
		usageLimit, int32(c.UsageCount), c.ValidFrom, c.ValidUntil, c.Active,
	}
}

// AddCartEntry puts a product in a buyer's cart.
func (s *Seeder) AddCartEntry(ctx context.Context, buyerID, productID string) error {
	if _, err := s.pool.Exec(ctx, addCartEntrySQL, buyerID, productID); err != nil {
		return fmt.Errorf("adding cart entry %s/%s: %w", buyerID, productID, err)
	}
	return nil
}
