package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/sourcemart/internal/domain/product"
)

// Soft-deleted and inactive rows are returned too; checkout decides what is sellable.
const getProductByIDSQL = `SELECT id::text AS id, title, price, is_active, seller_id::text AS seller_id, deleted_at
	FROM products WHERE id = $1`

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

type productRow struct {
	ID        string          `db:"id"`
	Title     string          `db:"title"`
	Price     decimal.Decimal `db:"price"`
	IsActive  bool            `db:"is_active"`
	SellerID  string          `db:"seller_id"`
	DeletedAt *time.Time      `db:"deleted_at"`
}

func (r productRow) product() *product.Product {
	return &product.Product{
		ID:        r.ID,
		Title:     r.Title,
		Price:     r.Price,
		Active:    r.IsActive,
		SellerID:  r.SellerID,
		DeletedAt: r.DeletedAt,
	}
}

// GetByID returns the product with the given id or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("querying product %s: %w", id, err)
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[productRow])
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, product.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("scanning product %s: %w", id, err)
	}
	return row.product(), nil
}
