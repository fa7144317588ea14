// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/domain/order"
)

// EventOrderCreated is the type header value of order creation messages.
const EventOrderCreated = "order.created"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events to a single topic.
type Publisher struct {
	writer     messageWriter
	topic      string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

var _ checkout.EventPublisher = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(p *Publisher)

// WithTracerProvider sets the tracer provider used for producer spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Publisher) { p.tracer = tp.Tracer("github.com/xenking/sourcemart/internal/events") }
}

// WithPropagator overrides the global text map propagator.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(p *Publisher) { p.propagator = prop }
}

// NewPublisher creates a Publisher for brokers and topic.
func NewPublisher(brokers []string, topic string, opts ...Option) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
	}
	return newPublisher(w, topic, opts...)
}

func newPublisher(w messageWriter, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		writer:     w,
		topic:      topic,
		tracer:     otel.Tracer("github.com/xenking/sourcemart/internal/events"),
		propagator: otel.GetTextMapPropagator(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PublishOrderCreated writes ev keyed by order id, so events of one order
// stay on one partition.
func (p *Publisher) PublishOrderCreated(ctx context.Context, ev order.CreatedEvent) error {
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: encodeCreated(ev),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventOrderCreated)},
		},
	}

	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(ev.OrderID),
			attribute.String("order.number", ev.OrderNumber),
		),
	)
	defer span.End()

	p.propagator.Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "write order.created")
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeCreated(ev order.CreatedEvent) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("type")
	e.Str(EventOrderCreated)
	e.FieldStart("orderId")
	e.Str(ev.OrderID)
	e.FieldStart("orderNumber")
	e.Str(ev.OrderNumber)
	e.FieldStart("buyerId")
	e.Str(ev.BuyerID)
	e.FieldStart("productId")
	e.Str(ev.ProductID)
	e.FieldStart("sellerId")
	e.Str(ev.SellerID)
	e.FieldStart("totalAmount")
	e.Str(ev.TotalAmount.StringFixed(2))
	e.FieldStart("paymentMethod")
	e.Str(string(ev.PaymentMethod))
	e.FieldStart("createdAt")
	e.Str(ev.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}
