package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Kind tags the result of evaluating a coupon against an order.
type Kind int

const (
	// Ignored means the coupon does not apply and the order proceeds at full price.
	Ignored Kind = iota
	// Applied means the coupon applies and Outcome.Discount is set.
	Applied
	// Failed means the coupon could not be evaluated because of a store error.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "ignored"
	}
}

// Reason explains why a coupon was not applied.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonNoCode          Reason = "no_code"
	ReasonNotFound        Reason = "not_found"
	ReasonInactive        Reason = "inactive"
	ReasonNotStarted      Reason = "not_started"
	ReasonExpired         Reason = "expired"
	ReasonUsageExhausted  Reason = "usage_exhausted"
	ReasonBelowMinimum    Reason = "below_minimum"
	ReasonUnsupportedType Reason = "unsupported_type"
	ReasonLookupFailed    Reason = "lookup_failed"
)

// Outcome is the tagged result of coupon evaluation.
type Outcome struct {
	Kind     Kind
	Reason   Reason
	Coupon   *Coupon
	Discount decimal.Decimal
	// Cause holds the store error for Failed outcomes.
	Cause error
}

// IsApplied reports whether the coupon applies.
func (o Outcome) IsApplied() bool {
	return o.Kind == Applied
}

// Err converts a non-applied outcome into an error for strict coupon flows.
// It returns nil for applied outcomes.
func (o Outcome) Err() error {
	switch o.Kind {
	case Applied:
		return nil
	case Failed:
		return errors.Wrap(o.Cause, "lookup coupon")
	}
	switch o.Reason {
	case ReasonInactive:
		return ErrInactive
	case ReasonNotStarted, ReasonExpired:
		return ErrExpired
	case ReasonUsageExhausted:
		return ErrUsageLimitReached
	case ReasonBelowMinimum:
		return ErrBelowMinimum
	case ReasonUnsupportedType:
		return ErrUnsupportedType
	default:
		return ErrNotFound
	}
}

func ignored(c *Coupon, reason Reason) Outcome {
	return Outcome{Kind: Ignored, Reason: reason, Coupon: c, Discount: decimal.Zero}
}

// Evaluate checks whether c can be applied to an order with the given subtotal
// at time now, and computes the bounded discount when it can.
func Evaluate(c *Coupon, subtotal decimal.Decimal, now time.Time) Outcome {
	if c == nil {
		return ignored(nil, ReasonNotFound)
	}
	if !c.Active {
		return ignored(c, ReasonInactive)
	}
	if now.Before(c.ValidFrom) {
		return ignored(c, ReasonNotStarted)
	}
	if now.After(c.ValidUntil) {
		return ignored(c, ReasonExpired)
	}
	if c.Exhausted() {
		return ignored(c, ReasonUsageExhausted)
	}
	if c.MinAmount.Valid && subtotal.LessThan(c.MinAmount.Decimal) {
		return ignored(c, ReasonBelowMinimum)
	}

	amount, err := Discount(c, subtotal)
	if err != nil {
		return ignored(c, ReasonUnsupportedType)
	}
	return Outcome{Kind: Applied, Coupon: c, Discount: amount}
}

// Discount computes the discount c grants on subtotal. The result is never
// negative and never exceeds subtotal. No eligibility checks are made.
func Discount(c *Coupon, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	var raw decimal.Decimal
	switch c.Type {
	case TypePercentage:
		raw = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxAmount.Valid {
			raw = decimal.Min(raw, c.MaxAmount.Decimal)
		}
	case TypeFixed:
		raw = c.Value
	default:
		return decimal.Zero, errors.Wrapf(ErrUnsupportedType, "%q", c.Type)
	}

	raw = decimal.Min(raw, subtotal)
	if raw.IsNegative() {
		return decimal.Zero, nil
	}
	return raw, nil
}
