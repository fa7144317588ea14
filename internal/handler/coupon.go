package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/internal/domain/coupon"
)

// ValidateCoupon handles GET /api/coupons/{code}/validate?amount=. Unlike
// checkout, it reports why a coupon does not apply.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "amount: must be a non-negative number")
		return
	}

	o := h.coupons.Resolve(r.Context(), code, amount.Round(2))

	var e jx.Encoder
	e.ObjStart()
	switch o.Kind {
	case coupon.Applied:
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("code")
		e.Str(o.Coupon.Code)
		e.FieldStart("type")
		e.Str(string(o.Coupon.Type))
		e.FieldStart("discountAmount")
		encodeMoney(&e, o.Discount)
		e.ObjEnd()
		writeJSON(w, http.StatusOK, e.Bytes())
	case coupon.Failed:
		zctx.From(r.Context()).Error("Coupon lookup failed", zap.Error(o.Err()))
		writeError(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "failed to look up coupon")
	default:
		e.FieldStart("valid")
		e.Bool(false)
		e.FieldStart("reason")
		e.Str(string(o.Reason))
		e.FieldStart("message")
		e.Str(o.Err().Error())
		e.ObjEnd()
		writeJSON(w, http.StatusUnprocessableEntity, e.Bytes())
	}
}
