package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKey    = 255
)

// CreateOrder handles POST /api/orders/create-order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := decodeCreateOrder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	key, ok := h.idempotencyKey(w, r, body.UserID)
	if !ok {
		return
	}
	fingerprint := body.fingerprint()
	if key != "" {
		stored, err := h.guard.Reserve(ctx, key, fingerprint)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			writeError(w, http.StatusConflict, "IDEMPOTENCY_CONFLICT", err.Error())
			return
		case errors.Is(err, idempotency.ErrKeyReused):
			writeError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", err.Error())
			return
		case err != nil:
			// Proceed unguarded rather than refuse the purchase.
			zctx.From(ctx).Warn("Idempotency guard unavailable", zap.Error(err))
			key = ""
		case stored != nil:
			w.Header().Set(headerReplayed, "true")
			writeJSON(w, stored.Status, stored.Body)
			return
		}
	}

	rc, err := h.orders.CreateOrder(ctx, checkout.CreateOrderRequest{
		ProductID:     body.ProductID,
		BuyerID:       body.UserID,
		PaymentMethod: body.PaymentMethod,
		CouponCode:    body.CouponCode,
		Notes:         body.Notes,
	})
	if err != nil {
		if key != "" {
			if rerr := h.guard.Release(context.WithoutCancel(ctx), key); rerr != nil {
				zctx.From(ctx).Warn("Release idempotency key", zap.Error(rerr))
			}
		}
		h.writeCheckoutError(ctx, w, err)
		return
	}

	resp := encodeReceipt(rc)
	if key != "" {
		stored := idempotency.Response{Status: http.StatusCreated, Body: resp, Fingerprint: fingerprint}
		if err := h.guard.Complete(context.WithoutCancel(ctx), key, stored); err != nil {
			zctx.From(ctx).Warn("Store idempotent response", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// idempotencyKey returns the buyer-scoped key, or "" when the request is not
// guarded. It writes a 400 and returns false for malformed keys.
func (h *Handler) idempotencyKey(w http.ResponseWriter, r *http.Request, buyerID string) (string, bool) {
	raw := r.Header.Get(headerIdempotencyKey)
	if h.guard == nil || raw == "" {
		return "", true
	}
	if len(raw) > maxIdempotencyKey {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Idempotency-Key is too long")
		return "", false
	}
	return buyerID + ":" + raw, true
}

// CheckAvailability handles GET /api/orders/check-availability.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := h.orders.CheckAvailability(r.Context(), q.Get("productId"), q.Get("userId"))
	if err != nil {
		h.writeCheckoutError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeAvailability(a))
}

// writeCheckoutError maps checkout errors to statuses. Persistence detail is
// logged and never returned.
func (h *Handler) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		inputErr *checkout.InputError
		eligErr  *checkout.EligibilityError
		persErr  *checkout.PersistenceError
	)
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", inputErr.Error())
	case errors.As(err, &eligErr):
		status := http.StatusNotFound
		if eligErr.Reason == checkout.ReasonSelfPurchaseForbidden {
			status = http.StatusBadRequest
		}
		writeError(w, status, string(eligErr.Reason), eligErr.Unwrap().Error())
	case errors.As(err, &persErr):
		zctx.From(ctx).Error("Checkout failed",
			zap.String("step", string(persErr.Step)),
			zap.Bool("compensated", persErr.Compensated),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "failed to process order")
	default:
		zctx.From(ctx).Error("Checkout failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
