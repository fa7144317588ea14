package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Evaluator resolves coupon codes against a Repository and evaluates them.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// WithClock returns a copy of e that reads the current time from now.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	return &Evaluator{repo: e.repo, now: now}
}

// Resolve looks up code and evaluates it against subtotal. It never returns an
// error: unknown, expired, exhausted or otherwise unusable coupons produce an
// Ignored outcome, store failures a Failed one.
func (e *Evaluator) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) Outcome {
	code = NormalizeCode(code)
	if code == "" {
		return ignored(nil, ReasonNoCode)
	}

	now := e.now()
	c, err := e.repo.FindByCode(ctx, code, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ignored(nil, ReasonNotFound)
		}
		return Outcome{Kind: Failed, Reason: ReasonLookupFailed, Discount: decimal.Zero, Cause: err}
	}

	return Evaluate(c, subtotal, now)
}
