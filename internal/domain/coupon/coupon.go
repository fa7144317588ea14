package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported coupon discount strategies.
type Type string

const (
	// TypePercentage takes a percentage of the subtotal, optionally capped by MaxAmount.
	TypePercentage Type = "percentage"
	// TypeFixed takes a fixed monetary amount, capped at the subtotal.
	TypeFixed Type = "fixed"
)

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixed
}

var (
	// ErrNotFound is returned when no active coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been switched off.
	ErrInactive = errors.New("coupon inactive")
	// ErrExpired is returned when a coupon is outside its valid time window.
	ErrExpired = errors.New("coupon expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrBelowMinimum is returned when the subtotal is below the coupon floor.
	ErrBelowMinimum = errors.New("order amount below coupon minimum")
	// ErrUnsupportedType is returned for coupons with an unknown discount type.
	ErrUnsupportedType = errors.New("unsupported discount type")
)

// Coupon is a discount policy identified by a unique, upper-cased code.
type Coupon struct {
	ID    string
	Code  string
	Type  Type
	Value decimal.Decimal
	// MinAmount is the optional subtotal floor.
	MinAmount decimal.NullDecimal
	// MaxAmount caps percentage discounts. Ignored for fixed coupons.
	MaxAmount  decimal.NullDecimal
	UsageLimit *int
	UsageCount int
	ValidFrom  time.Time
	ValidUntil time.Time
	Active     bool
}

// Exhausted reports whether the coupon has no redemptions left.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit
}

// NormalizeCode trims and upper-cases a user supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	// FindByCode returns the active coupon with the given normalized code whose
	// validity window contains at. It returns ErrNotFound otherwise.
	FindByCode(ctx context.Context, code string, at time.Time) (*Coupon, error)
	// IncrementUsage atomically bumps the usage counter. It returns
	// ErrUsageLimitReached when the limit guard rejects the increment.
	IncrementUsage(ctx context.Context, id string) error
}
