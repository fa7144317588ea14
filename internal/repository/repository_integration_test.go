//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/sourcemart/db"
	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/domain/order"
	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
	"github.com/xenking/sourcemart/internal/seed"
)

const (
	seller     = "7b0e3c1a-4f5d-4c2b-9a1e-0c6d2f8b1a01"
	buyer      = "7b0e3c1a-4f5d-4c2b-9a1e-0c6d2f8b1a03"
	starterKit = "3f2a9c4e-1b7d-4e8a-b5c6-9d0e1f2a3b01"
	landing    = "3f2a9c4e-1b7d-4e8a-b5c6-9d0e1f2a3b03"
	missing    = "99999999-9999-4999-8999-999999999999"
)

var at = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("sourcemart"),
		postgres.WithUsername("sourcemart"),
		postgres.WithPassword("sourcemart"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(dsn))
	require.NoError(t, RunMigrations(dsn), "migrations are idempotent")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	catalog, err := seed.Parse(db.Catalog)
	require.NoError(t, err)
	require.NoError(t, seed.Apply(ctx, NewSeeder(pool), catalog))
	return pool
}

func cartEntries(t *testing.T, pool *pgxpool.Pool, buyerID string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM cart_items WHERE user_id = $1`, buyerID).Scan(&n))
	return n
}

func TestRepositories(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	t.Run("Products", func(t *testing.T) {
		repo := NewProductRepository(pool)
		p, err := repo.GetByID(ctx, starterKit)
		require.NoError(t, err)
		assert.Equal(t, "Go Microservice Starter Kit", p.Title)
		assert.True(t, p.Price.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, seller, p.SellerID)
		assert.True(t, p.Available())

		_, err = repo.GetByID(ctx, missing)
		assert.ErrorIs(t, err, product.ErrNotFound)
	})
	t.Run("Users", func(t *testing.T) {
		repo := NewUserRepository(pool)
		u, err := repo.GetByID(ctx, buyer)
		require.NoError(t, err)
		assert.Equal(t, "Ada Byrne", u.Name)
		assert.True(t, u.Active)

		_, err = repo.GetByID(ctx, missing)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
	t.Run("Coupons", func(t *testing.T) {
		repo := NewCouponRepository(pool)

		c, err := repo.FindByCode(ctx, "welcome20", at)
		require.NoError(t, err)
		assert.Equal(t, coupon.TypePercentage, c.Type)
		require.True(t, c.MaxAmount.Valid)
		assert.Equal(t, "15", c.MaxAmount.Decimal.String())
		assert.Nil(t, c.UsageLimit)

		_, err = repo.FindByCode(ctx, "SUMMER2023", at)
		assert.ErrorIs(t, err, coupon.ErrNotFound, "outside validity window")

		launch, err := repo.FindByCode(ctx, "LAUNCH", at)
		require.NoError(t, err)
		assert.True(t, launch.Exhausted())
		assert.ErrorIs(t, repo.IncrementUsage(ctx, launch.ID), coupon.ErrUsageLimitReached)
		assert.ErrorIs(t, repo.IncrementUsage(ctx, uuid.NewString()), coupon.ErrNotFound)

		require.NoError(t, repo.IncrementUsage(ctx, c.ID))
		c, err = repo.FindByCode(ctx, "WELCOME20", at)
		require.NoError(t, err)
		assert.Equal(t, 1, c.UsageCount)
	})
	t.Run("UpsertCouponsKeepsUsage", func(t *testing.T) {
		seeder := NewSeeder(pool)
		limit := 5
		require.NoError(t, seeder.UpsertCoupons(ctx, []coupon.Coupon{
			{Code: "BULK1", Type: coupon.TypeFixed, Value: decimal.NewFromInt(3), UsageLimit: &limit, ValidFrom: at.Add(-time.Hour), ValidUntil: at.Add(time.Hour), Active: true},
			{Code: "WELCOME20", Type: coupon.TypePercentage, Value: decimal.NewFromInt(25), ValidFrom: at.Add(-time.Hour), ValidUntil: at.Add(time.Hour), Active: true},
		}))

		repo := NewCouponRepository(pool)
		bulk, err := repo.FindByCode(ctx, "bulk1", at)
		require.NoError(t, err)
		require.NotNil(t, bulk.UsageLimit)
		assert.Equal(t, 5, *bulk.UsageLimit)

		w, err := repo.FindByCode(ctx, "WELCOME20", at)
		require.NoError(t, err)
		assert.Equal(t, "25", w.Value.String())
		assert.Equal(t, 1, w.UsageCount)
	})
	t.Run("Orders", func(t *testing.T) {
		repo := NewOrderRepository(pool)
		o := &order.Order{
			ID:            uuid.NewString(),
			Number:        "ORD-1-AAA",
			BuyerID:       buyer,
			Subtotal:      decimal.NewFromInt(10),
			TotalAmount:   decimal.NewFromInt(10),
			Status:        order.StatusPending,
			PaymentMethod: order.PaymentStripe,
			PaymentStatus: order.PaymentPending,
		}
		require.NoError(t, repo.CreateHeader(ctx, o))
		assert.False(t, o.CreatedAt.IsZero())

		dup := *o
		dup.ID = uuid.NewString()
		assert.ErrorIs(t, repo.CreateHeader(ctx, &dup), order.ErrDuplicateNumber)

		require.NoError(t, repo.CreateLine(ctx, &order.Line{
			ID: uuid.NewString(), OrderID: o.ID, ProductID: landing,
			ProductTitle: "Terraform AWS Landing Zone", Price: decimal.NewFromInt(10),
		}))

		require.NoError(t, repo.DeleteHeader(ctx, o.ID))
		require.NoError(t, repo.DeleteHeader(ctx, o.ID), "idempotent")

		var lines int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM order_items WHERE order_id = $1`, o.ID).Scan(&lines))
		assert.Zero(t, lines, "lines cascade with the header")
	})
	t.Run("Carts", func(t *testing.T) {
		repo := NewCartRepository(pool)
		before := cartEntries(t, pool, buyer)
		require.NoError(t, repo.DeleteEntry(ctx, buyer, landing))
		require.NoError(t, repo.DeleteEntry(ctx, buyer, landing))
		assert.Equal(t, before-1, cartEntries(t, pool, buyer))
	})
}

func TestCheckout_Postgres(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	svc, err := checkout.NewService(checkout.Config{}, checkout.Deps{
		Products: NewProductRepository(pool),
		Users:    NewUserRepository(pool),
		Coupons:  NewCouponRepository(pool),
		Orders:   NewOrderRepository(pool),
		Carts:    NewCartRepository(pool),
	}, checkout.WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	rc, err := svc.CreateOrder(ctx, checkout.CreateOrderRequest{
		ProductID:     starterKit,
		BuyerID:       buyer,
		PaymentMethod: "bank_transfer",
		CouponCode:    "welcome20",
	})
	require.NoError(t, err)
	assert.Equal(t, "85.00", rc.Order.TotalAmount.StringFixed(2))
	require.NotNil(t, rc.Coupon)

	var total decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT total_amount FROM orders WHERE id = $1`, rc.Order.ID).Scan(&total))
	assert.True(t, total.Equal(decimal.NewFromInt(85)))

	var title string
	require.NoError(t, pool.QueryRow(ctx, `SELECT product_title FROM order_items WHERE order_id = $1`, rc.Order.ID).Scan(&title))
	assert.Equal(t, "Go Microservice Starter Kit", title)

	c, err := NewCouponRepository(pool).FindByCode(ctx, "WELCOME20", at)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsageCount)
	assert.Equal(t, 1, cartEntries(t, pool, buyer), "purchased product left the cart")

	_, err = svc.CreateOrder(ctx, checkout.CreateOrderRequest{ProductID: starterKit, BuyerID: seller, PaymentMethod: "paypal"})
	var elig *checkout.EligibilityError
	require.ErrorAs(t, err, &elig)
	assert.Equal(t, checkout.ReasonSelfPurchaseForbidden, elig.Reason)
}
