package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/sourcemart/internal/domain/order"
)

const (
	orderNumberConstraint = "orders_order_number_key"

	createOrderHeaderSQL = `INSERT INTO orders (id, order_number, user_id, total_amount,
		discount_amount, tax_amount, status, payment_method, payment_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11::timestamptz, now()))
		RETURNING created_at`

	createOrderLineSQL = `INSERT INTO order_items (id, order_id, product_id, product_title, price)
		VALUES ($1, $2, $3, $4, $5)`

	// order_items rows go with the header via ON DELETE CASCADE.
	deleteOrderHeaderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateHeader inserts the order header and reads back created_at.
func (r *OrderRepository) CreateHeader(ctx context.Context, o *order.Order) error {
	var createdAt any = o.CreatedAt
	if o.CreatedAt.IsZero() {
		createdAt = nil
	}
	err := r.pool.QueryRow(ctx, createOrderHeaderSQL,
		o.ID, o.Number, o.BuyerID, o.TotalAmount,
		o.DiscountAmount, o.TaxAmount, string(o.Status), string(o.PaymentMethod),
		string(o.PaymentStatus), o.Notes, createdAt,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, orderNumberConstraint) {
			return order.ErrDuplicateNumber
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// CreateLine inserts a line for an existing header.
func (r *OrderRepository) CreateLine(ctx context.Context, l *order.Line) error {
	_, err := r.pool.Exec(ctx, createOrderLineSQL,
		l.ID, l.OrderID, l.ProductID, l.ProductTitle, l.Price,
	)
	if err != nil {
		return fmt.Errorf("creating line for order %q: %w", l.OrderID, err)
	}
	return nil
}

// DeleteHeader removes the header and its lines. Missing headers are not an error.
func (r *OrderRepository) DeleteHeader(ctx context.Context, orderID string) error {
	if _, err := r.pool.Exec(ctx, deleteOrderHeaderSQL, orderID); err != nil {
		return fmt.Errorf("deleting order %q: %w", orderID, err)
	}
	return nil
}
