package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrDuplicateNumber is returned by Repository.CreateHeader when the order
// number is already taken.
var ErrDuplicateNumber = errors.New("order number already exists")

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentStatus is the settlement state of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentMethod is one of the supported ways to pay for an order.
type PaymentMethod string

const (
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentStripe       PaymentMethod = "stripe"
	PaymentMoMo         PaymentMethod = "momo"
	PaymentZaloPay      PaymentMethod = "zalopay"
)

var paymentMethods = []PaymentMethod{
	PaymentBankTransfer,
	PaymentPayPal,
	PaymentStripe,
	PaymentMoMo,
	PaymentZaloPay,
}

// PaymentMethods returns every supported payment method.
func PaymentMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(paymentMethods))
	copy(out, paymentMethods)
	return out
}

// ParsePaymentMethod converts s to a PaymentMethod.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	for _, m := range paymentMethods {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Order is the transactional header of a purchase.
type Order struct {
	ID     string
	Number string
	// BuyerID references the purchasing user.
	BuyerID        string
	Subtotal       decimal.Decimal
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	// TaxAmount is always zero for now.
	TaxAmount     decimal.Decimal
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	Notes         string
	// CouponCode is informational; the header stores only the applied amount.
	CouponCode string
	CreatedAt  time.Time
}

// Line is a single purchased product with its title and price frozen at
// purchase time.
type Line struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductTitle string
	Price        decimal.Decimal
}

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	// CreateHeader inserts o and sets o.CreatedAt. It returns
	// ErrDuplicateNumber when o.Number is already used.
	CreateHeader(ctx context.Context, o *Order) error
	// CreateLine inserts l for an existing header.
	CreateLine(ctx context.Context, l *Line) error
	// DeleteHeader removes the header and any lines it owns.
	DeleteHeader(ctx context.Context, orderID string) error
}

// CreatedEvent is published after an order has been created.
type CreatedEvent struct {
	OrderID       string
	OrderNumber   string
	BuyerID       string
	ProductID     string
	SellerID      string
	TotalAmount   decimal.Decimal
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
}
