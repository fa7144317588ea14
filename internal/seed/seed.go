// Package seed loads the demo catalog into a store.
package seed

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/internal/domain/coupon"
	"github.com/xenking/sourcemart/internal/domain/product"
	"github.com/xenking/sourcemart/internal/domain/user"
)

// CartEntry is a product sitting in a buyer's cart.
type CartEntry struct {
	BuyerID   string
	ProductID string
}

// Catalog is the parsed seed fixture.
type Catalog struct {
	Users    []user.User
	Products []product.Product
	Coupons  []coupon.Coupon
	Cart     []CartEntry
}

// Target is a store that can be seeded. Upserts must be idempotent.
type Target interface {
	UpsertUser(ctx context.Context, u user.User) error
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
	AddCartEntry(ctx context.Context, buyerID, productID string) error
}

// Apply writes c into t. Users go first so products can reference sellers.
func Apply(ctx context.Context, t Target, c *Catalog) error {
	lg := zctx.From(ctx)

	for _, u := range c.Users {
		if err := t.UpsertUser(ctx, u); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
	}
	for _, p := range c.Products {
		if err := t.UpsertProduct(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	for _, cp := range c.Coupons {
		if err := t.UpsertCoupon(ctx, cp); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", cp.Code)
		}
	}
	for _, e := range c.Cart {
		if err := t.AddCartEntry(ctx, e.BuyerID, e.ProductID); err != nil {
			return errors.Wrapf(err, "add cart entry %s/%s", e.BuyerID, e.ProductID)
		}
	}

	lg.Info("Catalog seeded",
		zap.Int("users", len(c.Users)),
		zap.Int("products", len(c.Products)),
		zap.Int("coupons", len(c.Coupons)),
		zap.Int("cart_entries", len(c.Cart)),
	)
	return nil
}

// Parse decodes a catalog fixture.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "users":
			return d.Arr(func(d *jx.Decoder) error {
				u, err := decodeUser(d)
				if err != nil {
					return err
				}
				c.Users = append(c.Users, u)
				return nil
			})
		case "products":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodeProduct(d)
				if err != nil {
					return err
				}
				c.Products = append(c.Products, p)
				return nil
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				cp, err := decodeCoupon(d)
				if err != nil {
					return err
				}
				c.Coupons = append(c.Coupons, cp)
				return nil
			})
		case "cart":
			return d.Arr(func(d *jx.Decoder) error {
				var e CartEntry
				if err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
					switch string(key) {
					case "userId":
						e.BuyerID, err = d.Str()
					case "productId":
						e.ProductID, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return errors.Wrap(err, "cart entry")
				}
				c.Cart = append(c.Cart, e)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return &c, nil
}

func decodeUser(d *jx.Decoder) (u user.User, _ error) {
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "id":
			u.ID, err = d.Str()
		case "name":
			u.Name, err = d.Str()
		case "email":
			u.Email, err = d.Str()
		case "active":
			u.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return u, errors.Wrap(err, "user")
	}
	return u, nil
}

func decodeProduct(d *jx.Decoder) (p product.Product, _ error) {
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "id":
			p.ID, err = d.Str()
		case "title":
			p.Title, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "active":
			p.Active, err = d.Bool()
		case "sellerId":
			p.SellerID, err = d.Str()
		case "deletedAt":
			var t time.Time
			if t, err = decodeTime(d); err == nil {
				p.DeletedAt = &t
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return p, errors.Wrap(err, "product")
	}
	return p, nil
}

func decodeCoupon(d *jx.Decoder) (c coupon.Coupon, _ error) {
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) (err error) {
		switch string(key) {
		case "id":
			c.ID, err = d.Str()
		case "code":
			c.Code, err = d.Str()
			c.Code = coupon.NormalizeCode(c.Code)
		case "type":
			var s string
			s, err = d.Str()
			c.Type = coupon.Type(s)
		case "value":
			c.Value, err = decodeDecimal(d)
		case "minAmount":
			c.MinAmount.Decimal, err = decodeDecimal(d)
			c.MinAmount.Valid = err == nil
		case "maxAmount":
			c.MaxAmount.Decimal, err = decodeDecimal(d)
			c.MaxAmount.Valid = err == nil
		case "usageLimit":
			var n int
			if n, err = d.Int(); err == nil {
				c.UsageLimit = &n
			}
		case "usageCount":
			c.UsageCount, err = d.Int()
		case "validFrom":
			c.ValidFrom, err = decodeTime(d)
		case "validUntil":
			c.ValidUntil, err = decodeTime(d)
		case "active":
			c.Active, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && !c.Type.Valid() {
		err = errors.Wrapf(coupon.ErrUnsupportedType, "%q", c.Type)
	}
	if err != nil {
		return c, errors.Wrapf(err, "coupon %s", c.Code)
	}
	return c, nil
}

// decodeDecimal accepts both JSON strings and numbers.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("unexpected %s for decimal", d.Next())
	}
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}
