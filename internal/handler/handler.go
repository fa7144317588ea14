// Package handler exposes checkout over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/idempotency"
)

// Checkout is the order flow served by the handler. *checkout.Service
// implements it.
type Checkout interface {
	CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (*checkout.Receipt, error)
	CheckAvailability(ctx context.Context, productID, buyerID string) (*checkout.Availability, error)
}

// Coupons resolves coupon codes. *coupon.Evaluator implements it.
type Coupons interface {
	Resolve(ctx context.Context, code string, subtotal decimal.Decimal) coupon.Outcome
}

// Handler serves the checkout API.
type Handler struct {
	orders  Checkout
	coupons Coupons
	guard   idempotency.Guard
}

// Option configures a Handler.
type Option func(h *Handler)

// WithIdempotency enables Idempotency-Key handling on order creation.
func WithIdempotency(g idempotency.Guard) Option {
	return func(h *Handler) { h.guard = g }
}

// New creates a Handler.
func New(orders Checkout, coupons Coupons, opts ...Option) *Handler {
	h := &Handler{orders: orders, coupons: coupons}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orders/create-order", h.CreateOrder)
		r.Get("/orders/check-availability", h.CheckAvailability)
		r.Get("/coupons/{code}/validate", h.ValidateCoupon)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
}
