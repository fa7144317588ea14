package cart

import "context"

// Repository mutates the buyer's cart.
type Repository interface {
	// DeleteEntry removes the (buyer, product) entry. Removing an absent entry
	// is not an error.
	DeleteEntry(ctx context.Context, buyerID, productID string) error
}
