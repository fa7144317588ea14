package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/sourcemart/internal/domain/order"
	"github.com/xenking/sourcemart/internal/domain/product"
)

// Availability is the advisory answer to "can this buyer purchase this product".
type Availability struct {
	CanBuy bool
	// Reason is set when CanBuy is false.
	Reason Reason
	// Product is set whenever the product was resolved.
	Product        *product.Product
	PaymentMethods []order.PaymentMethod
}

// CheckAvailability runs the same eligibility checks as CreateOrder without
// writing anything. Eligibility failures are reported in the result; input and
// store errors are returned.
func (s *Service) CheckAvailability(ctx context.Context, productID, buyerID string) (*Availability, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CheckAvailability",
		trace.WithAttributes(
			attribute.String("product.id", productID),
			attribute.String("buyer.id", buyerID),
		),
	)
	defer span.End()

	el, err := s.eligible.Check(ctx, productID, buyerID)
	if err != nil {
		var eligErr *EligibilityError
		if errors.As(err, &eligErr) {
			span.SetAttributes(attribute.String("reason", string(eligErr.Reason)))
			return &Availability{Reason: eligErr.Reason, Product: eligErr.Product}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "check availability")
		return nil, err
	}

	return &Availability{
		CanBuy:         true,
		Product:        el.Product,
		PaymentMethods: s.PaymentMethods(),
	}, nil
}
