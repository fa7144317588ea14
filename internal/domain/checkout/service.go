package checkout

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/internal/domain/cart"
	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/domain/order"
	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
)

// EventPublisher announces created orders to downstream consumers.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, e order.CreatedEvent) error
}

// Config tunes the order creation flow.
type Config struct {
	// StepTimeout bounds every store call. Zero disables the bound.
	StepTimeout time.Duration
	// CompensationAttempts is how many times a header rollback is tried.
	CompensationAttempts int
	// CompensationBackoff is the base delay between rollback attempts.
	CompensationBackoff time.Duration
	PaymentURLBase      string
	RedirectURLBase     string
	// PaymentMethods restricts accepted methods. Empty means all supported.
	PaymentMethods []order.PaymentMethod
}

func (c Config) withDefaults() Config {
	if c.CompensationAttempts <= 0 {
		c.CompensationAttempts = 3
	}
	if c.CompensationBackoff <= 0 {
		c.CompensationBackoff = 50 * time.Millisecond
	}
	if c.PaymentURLBase == "" {
		c.PaymentURLBase = "/checkout/payment"
	}
	if c.RedirectURLBase == "" {
		c.RedirectURLBase = "/orders"
	}
	if len(c.PaymentMethods) == 0 {
		c.PaymentMethods = order.PaymentMethods()
	}
	return c
}

// Deps are the stores the service reads and writes. Events is optional.
type Deps struct {
	Products product.Repository
	Users    user.Repository
	Coupons  coupon.Repository
	Orders   order.Repository
	Carts    cart.Repository
	Events   EventPublisher
}

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the meter provider used for checkout counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider used for step spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNumberFunc overrides the order number generator.
func WithNumberFunc(f order.NumberFunc) Option {
	return func(s *Service) { s.number = f }
}

// CreateOrderRequest is the input of a buy-now purchase.
type CreateOrderRequest struct {
	ProductID     string
	BuyerID       string
	PaymentMethod string
	CouponCode    string
	Notes         string
}

// AppliedCoupon describes the coupon that reduced the order total.
type AppliedCoupon struct {
	Code     string
	Type     coupon.Type
	Value    decimal.Decimal
	Discount decimal.Decimal
}

// NextSteps points the client at the follow-up flows.
type NextSteps struct {
	PaymentURL  string
	RedirectURL string
}

// Receipt is the result of a successful purchase.
type Receipt struct {
	Order     *order.Order
	Line      *order.Line
	Product   *product.Product
	Buyer     *user.User
	Coupon    *AppliedCoupon
	NextSteps NextSteps
}

// Service orchestrates order creation and availability checks.
type Service struct {
	cfg        Config
	eligible   *Eligibility
	coupons    *coupon.Evaluator
	couponRepo coupon.Repository
	orders     order.Repository
	carts      cart.Repository
	events     EventPublisher

	meterProvider metric.MeterProvider
	metrics       *metrics
	tracer        trace.Tracer
	now           func() time.Time
	number        order.NumberFunc
}

// NewService creates a checkout Service.
func NewService(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("products repository is required")
	case deps.Users == nil:
		return nil, errors.New("users repository is required")
	case deps.Coupons == nil:
		return nil, errors.New("coupons repository is required")
	case deps.Orders == nil:
		return nil, errors.New("orders repository is required")
	case deps.Carts == nil:
		return nil, errors.New("carts repository is required")
	}

	cfg = cfg.withDefaults()
	s := &Service{
		cfg:           cfg,
		eligible:      NewEligibility(deps.Products, deps.Users, cfg.StepTimeout),
		couponRepo:    deps.Coupons,
		orders:        deps.Orders,
		carts:         deps.Carts,
		events:        deps.Events,
		meterProvider: otel.GetMeterProvider(),
		tracer:        otel.Tracer(instrumentationName),
		now:           time.Now,
		number:        order.NewNumber,
	}
	for _, o := range opts {
		o(s)
	}

	m, err := newMetrics(s.meterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	s.metrics = m
	s.coupons = coupon.NewEvaluator(deps.Coupons).WithClock(s.now)

	return s, nil
}

// PaymentMethods returns the accepted payment methods.
func (s *Service) PaymentMethods() []order.PaymentMethod {
	return slices.Clone(s.cfg.PaymentMethods)
}

// Coupons returns the evaluator used to price orders.
func (s *Service) Coupons() *coupon.Evaluator {
	return s.coupons
}

// CreateOrder validates the purchase, prices it, persists the order header and
// line, then runs best-effort side effects. On error nothing is left behind
// unless the returned PersistenceError reports a failed compensation.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrder",
		trace.WithAttributes(
			attribute.String("product.id", req.ProductID),
			attribute.String("buyer.id", req.BuyerID),
		),
	)
	defer span.End()

	rcpt, err := s.createOrder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", rcpt.Order.ID))
	return rcpt, nil
}

func (s *Service) createOrder(ctx context.Context, req CreateOrderRequest) (*Receipt, error) {
	method, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	var el *Eligible
	if err := s.step(ctx, StepValidate, func(ctx context.Context) (err error) {
		el, err = s.eligible.Check(ctx, req.ProductID, req.BuyerID)
		return err
	}); err != nil {
		return nil, err
	}

	var outcome coupon.Outcome
	_ = s.step(ctx, StepPrice, func(ctx context.Context) error {
		ctx, cancel := withStepTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
		outcome = s.coupons.Resolve(ctx, req.CouponCode, el.Product.Price.Round(2))
		return nil
	})
	s.logCouponOutcome(ctx, req.CouponCode, outcome)

	o := s.buildOrder(el, method, req.Notes, outcome)
	line := &order.Line{
		ID:           uuid.NewString(),
		OrderID:      o.ID,
		ProductID:    el.Product.ID,
		ProductTitle: el.Product.Title,
		Price:        o.Subtotal,
	}

	if err := s.step(ctx, StepInsertHeader, func(ctx context.Context) error {
		return s.insertHeader(ctx, o)
	}); err != nil {
		// A failed insert may still have committed, so the header is removed
		// unless the store rejected it outright.
		compensated := true
		if !errors.Is(err, order.ErrDuplicateNumber) {
			compensated = s.compensate(ctx, o)
		}
		return nil, &PersistenceError{Step: StepInsertHeader, Compensated: compensated, Err: err}
	}

	if err := s.step(ctx, StepInsertLine, func(ctx context.Context) error {
		ctx, cancel := withStepTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
		return s.orders.CreateLine(ctx, line)
	}); err != nil {
		compensated := s.compensate(ctx, o)
		return nil, &PersistenceError{Step: StepInsertLine, Compensated: compensated, Err: err}
	}

	s.afterCommit(ctx, o, el, outcome)
	s.metrics.orderCreated(ctx, o.PaymentMethod, outcome.IsApplied())

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)

	return s.receipt(o, line, el, outcome), nil
}

func (s *Service) validateRequest(req CreateOrderRequest) (order.PaymentMethod, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return "", &InputError{Field: "productId", Message: "is required"}
	}
	if strings.TrimSpace(req.BuyerID) == "" {
		return "", &InputError{Field: "userId", Message: "is required"}
	}
	if req.PaymentMethod == "" {
		return "", &InputError{Field: "paymentMethod", Message: "is required"}
	}
	method, ok := order.ParsePaymentMethod(req.PaymentMethod)
	if !ok || !slices.Contains(s.cfg.PaymentMethods, method) {
		return "", &InputError{Field: "paymentMethod", Message: "is not supported"}
	}
	return method, nil
}

func (s *Service) buildOrder(el *Eligible, method order.PaymentMethod, notes string, outcome coupon.Outcome) *order.Order {
	subtotal := el.Product.Price.Round(2)
	discount := decimal.Zero
	code := ""
	if outcome.IsApplied() {
		discount = outcome.Discount.Round(2)
		code = outcome.Coupon.Code
	}
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	now := s.now()
	return &order.Order{
		ID:             uuid.NewString(),
		Number:         s.number(now),
		BuyerID:        el.Buyer.ID,
		Subtotal:       subtotal,
		TotalAmount:    total,
		DiscountAmount: discount,
		TaxAmount:      decimal.Zero,
		Status:         order.StatusPending,
		PaymentMethod:  method,
		PaymentStatus:  order.PaymentPending,
		Notes:          strings.TrimSpace(notes),
		CouponCode:     code,
		CreatedAt:      now,
	}
}

// insertHeader retries once with a fresh number when the generated one collides.
func (s *Service) insertHeader(ctx context.Context, o *order.Order) error {
	for attempt := 0; ; attempt++ {
		err := func() error {
			ctx, cancel := withStepTimeout(ctx, s.cfg.StepTimeout)
			defer cancel()
			return s.orders.CreateHeader(ctx, o)
		}()
		if err == nil {
			return nil
		}
		if !errors.Is(err, order.ErrDuplicateNumber) || attempt > 0 {
			return err
		}
		zctx.From(ctx).Warn("Order number collision, regenerating",
			zap.String("order_number", o.Number),
		)
		o.Number = s.number(s.now())
	}
}

// compensate removes the header written for o. It runs detached from ctx
// cancellation and reports whether the header is gone.
func (s *Service) compensate(ctx context.Context, o *order.Order) bool {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.String("order_number", o.Number))

	var lastErr error
	_ = s.step(ctx, StepCompensate, func(ctx context.Context) error {
		for attempt := 1; attempt <= s.cfg.CompensationAttempts; attempt++ {
			lastErr = func() error {
				ctx, cancel := withStepTimeout(ctx, s.cfg.StepTimeout)
				defer cancel()
				return s.orders.DeleteHeader(ctx, o.ID)
			}()
			if lastErr == nil {
				return nil
			}
			lg.Warn("Compensation attempt failed", zap.Int("attempt", attempt), zap.Error(lastErr))
			if attempt < s.cfg.CompensationAttempts {
				time.Sleep(time.Duration(attempt) * s.cfg.CompensationBackoff)
			}
		}
		return lastErr
	})

	if lastErr != nil {
		s.metrics.compensation(ctx, false)
		lg.Error("Orphaned order header",
			zap.String("reconcile", "manual"),
			zap.Error(lastErr),
		)
		return false
	}
	s.metrics.compensation(ctx, true)
	return true
}

// afterCommit runs side effects whose failure must not undo the order.
func (s *Service) afterCommit(ctx context.Context, o *order.Order, el *Eligible, outcome coupon.Outcome) {
	ctx = context.WithoutCancel(ctx)

	if outcome.IsApplied() {
		s.bestEffort(ctx, StepIncrementCoupon, func(ctx context.Context) error {
			return s.couponRepo.IncrementUsage(ctx, outcome.Coupon.ID)
		}, zap.String("coupon_code", outcome.Coupon.Code))
	}

	s.bestEffort(ctx, StepDeleteCartEntry, func(ctx context.Context) error {
		return s.carts.DeleteEntry(ctx, o.BuyerID, el.Product.ID)
	})

	if s.events != nil {
		s.bestEffort(ctx, StepPublishEvent, func(ctx context.Context) error {
			return s.events.PublishOrderCreated(ctx, order.CreatedEvent{
				OrderID:       o.ID,
				OrderNumber:   o.Number,
				BuyerID:       o.BuyerID,
				ProductID:     el.Product.ID,
				SellerID:      el.Product.SellerID,
				TotalAmount:   o.TotalAmount,
				PaymentMethod: o.PaymentMethod,
				CreatedAt:     o.CreatedAt,
			})
		})
	}
}

func (s *Service) bestEffort(ctx context.Context, step Step, fn func(ctx context.Context) error, fields ...zap.Field) {
	err := s.step(ctx, step, func(ctx context.Context) error {
		ctx, cancel := withStepTimeout(ctx, s.cfg.StepTimeout)
		defer cancel()
		return fn(ctx)
	})
	if err == nil {
		return
	}
	s.metrics.bestEffortFailed(ctx, step)
	zctx.From(ctx).Warn("Best-effort step failed",
		append(fields, zap.String("step", string(step)), zap.Error(err))...,
	)
}

func (s *Service) logCouponOutcome(ctx context.Context, code string, outcome coupon.Outcome) {
	if outcome.IsApplied() || outcome.Reason == coupon.ReasonNoCode {
		return
	}
	s.metrics.couponNotApplied(ctx, outcome.Reason)

	lg := zctx.From(ctx)
	fields := []zap.Field{
		zap.String("coupon_code", coupon.NormalizeCode(code)),
		zap.String("reason", string(outcome.Reason)),
	}
	if outcome.Kind == coupon.Failed {
		lg.Warn("Coupon lookup failed, continuing without discount", append(fields, zap.Error(outcome.Cause))...)
		return
	}
	lg.Info("Coupon not applied", fields...)
}

// step wraps fn in a span named after the step.
func (s *Service) step(ctx context.Context, step Step, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "checkout."+string(step))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
		return err
	}
	return nil
}

func (s *Service) receipt(o *order.Order, line *order.Line, el *Eligible, outcome coupon.Outcome) *Receipt {
	r := &Receipt{
		Order:   o,
		Line:    line,
		Product: el.Product,
		Buyer:   el.Buyer,
		NextSteps: NextSteps{
			PaymentURL:  joinURL(s.cfg.PaymentURLBase, o.ID),
			RedirectURL: joinURL(s.cfg.RedirectURLBase, o.ID),
		},
	}
	if outcome.IsApplied() {
		r.Coupon = &AppliedCoupon{
			Code:     outcome.Coupon.Code,
			Type:     outcome.Coupon.Type,
			Value:    outcome.Coupon.Value,
			Discount: o.DiscountAmount,
		}
	}
	return r
}

func joinURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}
