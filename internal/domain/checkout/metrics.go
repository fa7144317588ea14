package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/domain/order"
)

const instrumentationName = "github.com/xenking/sourcemart/internal/domain/checkout"

type metrics struct {
	ordersCreated      metric.Int64Counter
	compensations      metric.Int64Counter
	bestEffortFailures metric.Int64Counter
	couponIgnored      metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	var (
		m   metrics
		err error
	)
	if m.ordersCreated, err = meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Orders created by the buy-now flow"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if m.compensations, err = meter.Int64Counter("checkout.compensations",
		metric.WithDescription("Order header rollbacks after a failed line insert"),
	); err != nil {
		return nil, errors.Wrap(err, "compensations counter")
	}
	if m.bestEffortFailures, err = meter.Int64Counter("checkout.best_effort.failures",
		metric.WithDescription("Failed post-order side effects"),
	); err != nil {
		return nil, errors.Wrap(err, "best effort failures counter")
	}
	if m.couponIgnored, err = meter.Int64Counter("checkout.coupon.ignored",
		metric.WithDescription("Coupon codes supplied but not applied"),
	); err != nil {
		return nil, errors.Wrap(err, "coupon ignored counter")
	}
	return &m, nil
}

func (m *metrics) orderCreated(ctx context.Context, method order.PaymentMethod, withCoupon bool) {
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(method)),
		attribute.Bool("coupon", withCoupon),
	))
}

func (m *metrics) compensation(ctx context.Context, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *metrics) bestEffortFailed(ctx context.Context, step Step) {
	m.bestEffortFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(step))))
}

func (m *metrics) couponNotApplied(ctx context.Context, reason coupon.Reason) {
	m.couponIgnored.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}
