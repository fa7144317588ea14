package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sourcemart/internal/domain/cart"
)

const deleteCartEntrySQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// DeleteEntry removes a product from the buyer's cart. Zero affected rows is success.
func (r *CartRepository) DeleteEntry(ctx context.Context, buyerID, productID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartEntrySQL, buyerID, productID); err != nil {
		return fmt.Errorf("deleting cart entry %s/%s: %w", buyerID, productID, err)
	}
	return nil
}
