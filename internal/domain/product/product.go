package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a purchasable digital good. It is read-only to checkout.
type Product struct {
	ID       string
	Title    string
	Price    decimal.Decimal
	Active   bool
	SellerID string
	// DeletedAt is set when the product has been soft-deleted.
	DeletedAt *time.Time
}

// Available reports whether the product can currently be sold.
func (p *Product) Available() bool {
	return p.Active && p.DeletedAt == nil
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
}
