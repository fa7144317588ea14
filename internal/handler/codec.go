package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/sourcemart/internal/domain/checkout"
	"github.com/xenking/sourcemart/internal/domain/order"
	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
	"github.com/xenking/sourcemart/internal/idempotency"
)

const maxBodySize = 64 << 10

type createOrderBody struct {
	ProductID     string
	UserID        string
	PaymentMethod string
	CouponCode    string
	Notes         string
}

// fingerprint identifies the purchase the body asks for.
func (b createOrderBody) fingerprint() string {
	return idempotency.Fingerprint(b.ProductID, b.UserID, b.PaymentMethod, b.CouponCode, b.Notes)
}

// decodeCreateOrder reads the create-order body. Optional fields may be null.
func decodeCreateOrder(r io.Reader) (createOrderBody, error) {
	var b createOrderBody
	data, err := io.ReadAll(r)
	if err != nil {
		return b, errors.Wrap(err, "read body")
	}
	if len(data) == 0 {
		return b, errors.New("request body is empty")
	}

	str := func(d *jx.Decoder, dst *string) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	fields := map[string]*string{
		"productId":     &b.ProductID,
		"userId":        &b.UserID,
		"paymentMethod": &b.PaymentMethod,
		"couponCode":    &b.CouponCode,
		"notes":         &b.Notes,
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		dst, ok := fields[string(key)]
		if !ok {
			return d.Skip()
		}
		if err := str(d, dst); err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	}); err != nil {
		return b, errors.Wrap(err, "decode body")
	}
	return b, nil
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.Number)
	e.FieldStart("userId")
	e.Str(o.BuyerID)
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("discountAmount")
	encodeMoney(e, o.DiscountAmount)
	e.FieldStart("taxAmount")
	encodeMoney(e, o.TaxAmount)
	e.FieldStart("totalAmount")
	encodeMoney(e, o.TotalAmount)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("notes")
	if o.Notes == "" {
		e.Null()
	} else {
		e.Str(o.Notes)
	}
	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("sellerId")
	e.Str(p.SellerID)
	e.ObjEnd()
}

func encodeBuyer(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID)
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("email")
	e.Str(u.Email)
	e.ObjEnd()
}

func encodeReceipt(rc *checkout.Receipt) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("order")
	encodeOrder(&e, rc.Order)
	e.FieldStart("product")
	encodeProduct(&e, rc.Product)
	e.FieldStart("buyer")
	encodeBuyer(&e, rc.Buyer)
	e.FieldStart("coupon")
	if c := rc.Coupon; c == nil {
		e.Null()
	} else {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("type")
		e.Str(string(c.Type))
		e.FieldStart("value")
		e.Raw([]byte(c.Value.String()))
		e.FieldStart("discountAmount")
		encodeMoney(&e, c.Discount)
		e.ObjEnd()
	}
	e.FieldStart("nextSteps")
	e.ObjStart()
	e.FieldStart("paymentUrl")
	e.Str(rc.NextSteps.PaymentURL)
	e.FieldStart("redirectUrl")
	e.Str(rc.NextSteps.RedirectURL)
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeAvailability(a *checkout.Availability) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("canBuy")
	e.Bool(a.CanBuy)
	if !a.CanBuy {
		e.FieldStart("reason")
		e.Str(string(a.Reason))
	}
	if a.Product != nil {
		e.FieldStart("product")
		encodeProduct(&e, a.Product)
	}
	if a.CanBuy {
		e.FieldStart("availablePaymentMethods")
		e.ArrStart()
		for _, m := range a.PaymentMethods {
			e.Str(string(m))
		}
		e.ArrEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes {"success":false,"error":msg,"code":code}.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(false)
	e.FieldStart("error")
	e.Str(msg)
	e.FieldStart("code")
	e.Str(code)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}
