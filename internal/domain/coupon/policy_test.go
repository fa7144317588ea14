package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func nd(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(v))
}

func intPtr(v int) *int { return &v }

var (
	fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	dayAgo   = fixedNow.Add(-24 * time.Hour)
	dayAhead = fixedNow.Add(24 * time.Hour)
)

func activeCoupon(t Type, value string) *Coupon {
	return &Coupon{
		ID:         "c1",
		Code:       "PROMO",
		Type:       t,
		Value:      d(value),
		ValidFrom:  dayAgo,
		ValidUntil: dayAhead,
		Active:     true,
	}
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   *Coupon
		subtotal string
		want     string
		wantErr  error
	}{
		{
			name:     "percentage without cap",
			coupon:   activeCoupon(TypePercentage, "20"),
			subtotal: "100",
			want:     "20",
		},
		{
			name: "percentage capped by max amount",
			coupon: func() *Coupon {
				c := activeCoupon(TypePercentage, "20")
				c.MaxAmount = nd("15")
				return c
			}(),
			subtotal: "100",
			want:     "15",
		},
		{
			name: "percentage below cap keeps computed value",
			coupon: func() *Coupon {
				c := activeCoupon(TypePercentage, "10")
				c.MaxAmount = nd("50")
				return c
			}(),
			subtotal: "100",
			want:     "10",
		},
		{
			name:     "percentage over 100 is bounded by subtotal",
			coupon:   activeCoupon(TypePercentage, "150"),
			subtotal: "40",
			want:     "40",
		},
		{
			name:     "fixed below subtotal",
			coupon:   activeCoupon(TypeFixed, "9"),
			subtotal: "100",
			want:     "9",
		},
		{
			name:     "fixed larger than subtotal is capped",
			coupon:   activeCoupon(TypeFixed, "50"),
			subtotal: "10",
			want:     "10",
		},
		{
			name: "max amount does not apply to fixed coupons",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "30")
				c.MaxAmount = nd("5")
				return c
			}(),
			subtotal: "100",
			want:     "30",
		},
		{
			name:     "zero subtotal",
			coupon:   activeCoupon(TypePercentage, "25"),
			subtotal: "0",
			want:     "0",
		},
		{
			name:     "cents are kept exact",
			coupon:   activeCoupon(TypePercentage, "15"),
			subtotal: "29.97",
			want:     "4.4955",
		},
		{
			name:     "unsupported type",
			coupon:   activeCoupon(Type("bogus"), "10"),
			subtotal: "10",
			wantErr:  ErrUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discount(tt.coupon, d(tt.subtotal))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestDiscount_Bounded(t *testing.T) {
	subtotals := []string{"0", "0.01", "1", "9.99", "10", "99.5", "100", "12345.67"}
	coupons := []*Coupon{
		activeCoupon(TypePercentage, "0"),
		activeCoupon(TypePercentage, "33.33"),
		activeCoupon(TypePercentage, "100"),
		activeCoupon(TypePercentage, "250"),
		activeCoupon(TypeFixed, "0"),
		activeCoupon(TypeFixed, "5"),
		activeCoupon(TypeFixed, "100000"),
	}
	capped := activeCoupon(TypePercentage, "40")
	capped.MaxAmount = nd("7.5")
	coupons = append(coupons, capped)

	for _, c := range coupons {
		for _, s := range subtotals {
			subtotal := d(s)
			got, err := Discount(c, subtotal)
			require.NoError(t, err)
			assert.False(t, got.IsNegative(), "%s %s on %s is negative", c.Type, c.Value, s)
			assert.True(t, got.LessThanOrEqual(subtotal), "%s %s on %s exceeds subtotal: %s", c.Type, c.Value, s, got)
		}
	}

	for _, s := range subtotals {
		subtotal := d(s)
		got, err := Discount(capped, subtotal)
		require.NoError(t, err)
		want := decimal.Min(subtotal.Mul(d("0.4")), d("7.5"))
		assert.True(t, want.Equal(got), "capped on %s: expected %s, got %s", s, want, got)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		coupon     func() *Coupon
		subtotal   string
		wantKind   Kind
		wantReason Reason
		wantAmount string
	}{
		{
			name:       "applies within window",
			coupon:     func() *Coupon { return activeCoupon(TypePercentage, "10") },
			subtotal:   "100",
			wantKind:   Applied,
			wantAmount: "10",
		},
		{
			name:       "nil coupon is not found",
			coupon:     func() *Coupon { return nil },
			subtotal:   "100",
			wantKind:   Ignored,
			wantReason: ReasonNotFound,
		},
		{
			name: "inactive",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "5")
				c.Active = false
				return c
			},
			subtotal:   "100",
			wantKind:   Ignored,
			wantReason: ReasonInactive,
		},
		{
			name: "not started yet",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "5")
				c.ValidFrom = dayAhead
				c.ValidUntil = dayAhead.Add(time.Hour)
				return c
			},
			subtotal:   "100",
			wantKind:   Ignored,
			wantReason: ReasonNotStarted,
		},
		{
			name: "expired",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "5")
				c.ValidUntil = fixedNow.Add(-time.Second)
				return c
			},
			subtotal:   "100",
			wantKind:   Ignored,
			wantReason: ReasonExpired,
		},
		{
			name: "window bounds are inclusive",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "5")
				c.ValidFrom = fixedNow
				c.ValidUntil = fixedNow
				return c
			},
			subtotal:   "100",
			wantKind:   Applied,
			wantAmount: "5",
		},
		{
			name: "usage exhausted",
			coupon: func() *Coupon {
				c := activeCoupon(TypePercentage, "10")
				c.UsageLimit = intPtr(1)
				c.UsageCount = 1
				return c
			},
			subtotal:   "100",
			wantKind:   Ignored,
			wantReason: ReasonUsageExhausted,
		},
		{
			name: "usage under limit",
			coupon: func() *Coupon {
				c := activeCoupon(TypePercentage, "10")
				c.UsageLimit = intPtr(5)
				c.UsageCount = 4
				return c
			},
			subtotal:   "100",
			wantKind:   Applied,
			wantAmount: "10",
		},
		{
			name: "below minimum amount",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "5")
				c.MinAmount = nd("50")
				return c
			},
			subtotal:   "49.99",
			wantKind:   Ignored,
			wantReason: ReasonBelowMinimum,
		},
		{
			name: "exactly minimum amount",
			coupon: func() *Coupon {
				c := activeCoupon(TypeFixed, "5")
				c.MinAmount = nd("50")
				return c
			},
			subtotal:   "50",
			wantKind:   Applied,
			wantAmount: "5",
		},
		{
			name:       "unsupported type is ignored",
			coupon:     func() *Coupon { return activeCoupon(Type("bogo"), "1") },
			subtotal:   "100",
			wantKind:   Ignored,
			wantReason: ReasonUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.coupon(), d(tt.subtotal), fixedNow)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantReason, got.Reason)
			if tt.wantKind == Applied {
				assert.True(t, d(tt.wantAmount).Equal(got.Discount),
					"expected amount %s, got %s", tt.wantAmount, got.Discount)
				return
			}
			assert.True(t, got.Discount.IsZero())
		})
	}
}

func TestOutcome_Err(t *testing.T) {
	assert.NoError(t, Outcome{Kind: Applied}.Err())
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonNotFound}.Err(), ErrNotFound)
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonNoCode}.Err(), ErrNotFound)
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonExpired}.Err(), ErrExpired)
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonNotStarted}.Err(), ErrExpired)
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonUsageExhausted}.Err(), ErrUsageLimitReached)
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonBelowMinimum}.Err(), ErrBelowMinimum)
	assert.ErrorIs(t, Outcome{Kind: Ignored, Reason: ReasonInactive}.Err(), ErrInactive)

	err := Outcome{Kind: Failed, Reason: ReasonLookupFailed, Cause: assert.AnError}.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "SAVE10", NormalizeCode("  save10 "))
	assert.Equal(t, "", NormalizeCode("   "))
}
