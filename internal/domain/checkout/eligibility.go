package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
)

// Eligible holds the validated records for a purchase.
type Eligible struct {
	Product *product.Product
	Buyer   *user.User
}

// Eligibility checks whether a buyer may purchase a product. Both order
// creation and the availability query go through Check.
type Eligibility struct {
	products product.Repository
	users    user.Repository
	timeout  time.Duration
}

// NewEligibility creates an Eligibility. A positive timeout bounds each lookup.
func NewEligibility(products product.Repository, users user.Repository, timeout time.Duration) *Eligibility {
	return &Eligibility{products: products, users: users, timeout: timeout}
}

// Check validates identifiers, then checks in order: product available, buyer
// active, buyer is not the seller. It performs no writes.
func (e *Eligibility) Check(ctx context.Context, productID, buyerID string) (*Eligible, error) {
	if err := validateID("productId", productID); err != nil {
		return nil, err
	}
	if err := validateID("userId", buyerID); err != nil {
		return nil, err
	}

	p, err := e.product(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &EligibilityError{Reason: ReasonProductUnavailable, ProductID: productID, BuyerID: buyerID}
		}
		return nil, &PersistenceError{Step: StepValidate, Err: errors.Wrap(err, "get product")}
	}
	if !p.Available() {
		return nil, &EligibilityError{Reason: ReasonProductUnavailable, ProductID: productID, BuyerID: buyerID}
	}

	u, err := e.user(ctx, buyerID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &EligibilityError{Reason: ReasonBuyerIneligible, ProductID: productID, BuyerID: buyerID, Product: p}
		}
		return nil, &PersistenceError{Step: StepValidate, Err: errors.Wrap(err, "get buyer")}
	}
	if !u.Active {
		return nil, &EligibilityError{Reason: ReasonBuyerIneligible, ProductID: productID, BuyerID: buyerID, Product: p}
	}

	if strings.EqualFold(p.SellerID, u.ID) {
		return nil, &EligibilityError{Reason: ReasonSelfPurchaseForbidden, ProductID: productID, BuyerID: buyerID, Product: p}
	}

	return &Eligible{Product: p, Buyer: u}, nil
}

func (e *Eligibility) product(ctx context.Context, id string) (*product.Product, error) {
	ctx, cancel := withStepTimeout(ctx, e.timeout)
	defer cancel()
	return e.products.GetByID(ctx, id)
}

func (e *Eligibility) user(ctx context.Context, id string) (*user.User, error) {
	ctx, cancel := withStepTimeout(ctx, e.timeout)
	defer cancel()
	return e.users.GetByID(ctx, id)
}

func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &InputError{Field: field, Message: "is required"}
	}
	if _, err := uuid.Parse(id); err != nil {
		return &InputError{Field: field, Message: "must be a UUID"}
	}
	return nil
}

func withStepTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
