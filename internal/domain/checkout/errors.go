package checkout

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/sourcemart/internal/domain/product"
)

// Reason identifies which eligibility precondition failed.
type Reason string

const (
	ReasonProductUnavailable    Reason = "PRODUCT_UNAVAILABLE"
	ReasonBuyerIneligible       Reason = "BUYER_INELIGIBLE"
	ReasonSelfPurchaseForbidden Reason = "SELF_PURCHASE_FORBIDDEN"
)

// Sentinel errors for eligibility failures. EligibilityError unwraps to one of them.
var (
	ErrProductUnavailable    = errors.New("product not found or unavailable")
	ErrBuyerIneligible       = errors.New("buyer not found or inactive")
	ErrSelfPurchaseForbidden = errors.New("cannot purchase your own product")
)

// EligibilityError indicates a business precondition for purchasing failed.
// Nothing has been written when it is returned.
type EligibilityError struct {
	Reason    Reason
	ProductID string
	BuyerID   string
	// Product is set when the product was resolved before the failing check.
	Product *product.Product
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("%s (product %s, buyer %s)", e.Unwrap(), e.ProductID, e.BuyerID)
}

func (e *EligibilityError) Unwrap() error {
	switch e.Reason {
	case ReasonBuyerIneligible:
		return ErrBuyerIneligible
	case ReasonSelfPurchaseForbidden:
		return ErrSelfPurchaseForbidden
	default:
		return ErrProductUnavailable
	}
}

// InputError indicates a missing or malformed request field.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Message
}

// Step names a stage of order creation.
type Step string

const (
	StepValidate        Step = "validate"
	StepPrice           Step = "price"
	StepInsertHeader    Step = "insert_order_header"
	StepInsertLine      Step = "insert_order_line"
	StepCompensate      Step = "compensate"
	StepIncrementCoupon Step = "increment_coupon_usage"
	StepDeleteCartEntry Step = "delete_cart_entry"
	StepPublishEvent    Step = "publish_order_created"
)

// PersistenceError indicates an infrastructure failure. Any compensation has
// already run when it is returned; Compensated reports whether the store is
// left without a header for the failed order.
type PersistenceError struct {
	Step        Step
	Compensated bool
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
