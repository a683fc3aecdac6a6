package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON object body and calls fn for every field.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(fn); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return err
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func field(key string, err error) error {
	if err == nil {
		return nil
	}
	return badRequest("invalid %s: %v", key, err)
}

// readString accepts null as the empty string.
func readString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// readDecimal accepts a JSON number or a numeric string.
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
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
		return decimal.Zero, errors.New("expected number")
	}
}

func readOptDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := readDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readUUID(d *jx.Decoder) (uuid.UUID, error) {
	s, err := d.Str()
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(s)
}

func readOptUUID(d *jx.Decoder) (*uuid.UUID, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	id, err := readUUID(d)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func readStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func readTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

func readAddress(d *jx.Decoder) (order.Address, error) {
	var a order.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var (
			dst *string
			err error
		)
		switch key {
		case "full_name":
			dst = &a.FullName
		case "email":
			dst = &a.Email
		case "phone":
			dst = &a.Phone
		case "line1":
			dst = &a.Line1
		case "line2":
			dst = &a.Line2
		case "city":
			dst = &a.City
		case "state":
			dst = &a.State
		case "postal_code":
			dst = &a.PostalCode
		case "country":
			dst = &a.Country
		default:
			return d.Skip()
		}
		*dst, err = readString(d)
		return err
	})
	return a, err
}

// writeJSON encodes the value written by fn as the response body.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeArray[T any](w http.ResponseWriter, items []T, enc func(e *jx.Encoder, v *T)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range items {
				enc(e, &items[i])
			}
		})
	})
}

// Money is written as a number with two decimals.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.StringFixed(2)))
}

func encodeOptMoney(e *jx.Encoder, v *decimal.Decimal) {
	if v == nil {
		e.Null()
		return
	}
	encodeMoney(e, *v)
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	encodeTime(e, *t)
}

func encodeUUID(e *jx.Encoder, id uuid.UUID) {
	e.Str(id.String())
}

func encodeStrings(e *jx.Encoder, v []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range v {
			e.Str(s)
		}
	})
}

func encodeCategory(e *jx.Encoder, c *product.Category) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, c.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("slug", func(e *jx.Encoder) { e.Str(c.Slug) })
		e.Field("description", func(e *jx.Encoder) { e.Str(c.Description) })
		e.Field("image", func(e *jx.Encoder) { e.Str(c.Image) })
		e.Field("parent_id", func(e *jx.Encoder) {
			if c.ParentID == nil {
				e.Null()
				return
			}
			encodeUUID(e, *c.ParentID)
		})
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
		e.Field("sort_order", func(e *jx.Encoder) { e.Int(c.SortOrder) })
	})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("slug", func(e *jx.Encoder) { e.Str(p.Slug) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("short_description", func(e *jx.Encoder) { e.Str(p.ShortDescription) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("original_price", func(e *jx.Encoder) { encodeOptMoney(e, p.OriginalPrice) })
		e.Field("discount_percentage", func(e *jx.Encoder) { encodeMoney(e, p.DiscountPercentage()) })
		e.Field("stock_quantity", func(e *jx.Encoder) { e.Int(p.StockQuantity) })
		e.Field("in_stock", func(e *jx.Encoder) { e.Bool(p.InStock()) })
		e.Field("low_stock", func(e *jx.Encoder) { e.Bool(p.LowStock()) })
		e.Field("category_id", func(e *jx.Encoder) { encodeUUID(e, p.CategoryID) })
		e.Field("brand", func(e *jx.Encoder) { e.Str(p.Brand) })
		e.Field("images", func(e *jx.Encoder) { encodeStrings(e, p.Images) })
		e.Field("tags", func(e *jx.Encoder) { encodeStrings(e, p.Tags) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
		e.Field("featured", func(e *jx.Encoder) { e.Bool(p.Featured) })
		e.Field("rating_average", func(e *jx.Encoder) { encodeMoney(e, p.RatingAverage) })
		e.Field("rating_count", func(e *jx.Encoder) { e.Int(p.RatingCount) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		e.Field("updated_at", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	})
}

func encodeReview(e *jx.Encoder, r *product.Review) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, r.ID) })
		e.Field("user_id", func(e *jx.Encoder) { encodeUUID(e, r.UserID) })
		e.Field("product_id", func(e *jx.Encoder) { encodeUUID(e, r.ProductID) })
		e.Field("rating", func(e *jx.Encoder) { e.Int(r.Rating) })
		e.Field("title", func(e *jx.Encoder) { e.Str(r.Title) })
		e.Field("comment", func(e *jx.Encoder) { e.Str(r.Comment) })
		e.Field("verified_purchase", func(e *jx.Encoder) { e.Bool(r.Verified) })
		e.Field("approved", func(e *jx.Encoder) { e.Bool(r.Approved) })
		e.Field("helpful_count", func(e *jx.Encoder) { e.Int(r.HelpfulCount) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, r.CreatedAt) })
	})
}

func encodeRating(e *jx.Encoder, r product.Rating) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("rating_average", func(e *jx.Encoder) { encodeMoney(e, r.Average) })
		e.Field("rating_count", func(e *jx.Encoder) { e.Int(r.Count) })
	})
}

func encodeWishlistEntry(e *jx.Encoder, w *product.WishlistEntry) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, w.ID) })
		e.Field("product", func(e *jx.Encoder) { encodeProduct(e, &w.Product) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, w.CreatedAt) })
	})
}

func encodeCart(e *jx.Encoder, s *cart.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range s.Lines {
					l := &s.Lines[i]
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { encodeUUID(e, l.ID) })
						e.Field("product", func(e *jx.Encoder) { encodeProduct(e, &l.Product) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("total_price", func(e *jx.Encoder) { encodeMoney(e, l.Total()) })
					})
				}
			})
		})
		e.Field("item_count", func(e *jx.Encoder) { e.Int(s.ItemCount) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, s.Subtotal) })
	})
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(c.Kind)) })
		e.Field("discount_value", func(e *jx.Encoder) { encodeMoney(e, c.Value) })
		e.Field("minimum_amount", func(e *jx.Encoder) { encodeOptMoney(e, c.MinimumAmount) })
		e.Field("maximum_discount", func(e *jx.Encoder) { encodeOptMoney(e, c.MaximumDiscount) })
		e.Field("usage_limit", func(e *jx.Encoder) {
			if c.UsageLimit == nil {
				e.Null()
				return
			}
			e.Int(*c.UsageLimit)
		})
		e.Field("used_count", func(e *jx.Encoder) { e.Int(c.UsedCount) })
		e.Field("valid_from", func(e *jx.Encoder) { encodeTime(e, c.ValidFrom) })
		e.Field("valid_until", func(e *jx.Encoder) { encodeTime(e, c.ValidUntil) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
	})
}

// encodePreview omits the coupon's usage counters: the endpoint is public.
func encodePreview(e *jx.Encoder, p *coupon.Preview) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(p.Coupon.Code) })
		e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(p.Coupon.Kind)) })
		e.Field("valid", func(e *jx.Encoder) { e.Bool(p.Valid) })
		if p.Reason != "" {
			e.Field("reason", func(e *jx.Encoder) { e.Str(string(p.Reason)) })
		}
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, p.Discount) })
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("full_name", func(e *jx.Encoder) { e.Str(a.FullName) })
		e.Field("email", func(e *jx.Encoder) { e.Str(a.Email) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		e.Field("line1", func(e *jx.Encoder) { e.Str(a.Line1) })
		if a.Line2 != "" {
			e.Field("line2", func(e *jx.Encoder) { e.Str(a.Line2) })
		}
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("postal_code", func(e *jx.Encoder) { e.Str(a.PostalCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, o.ID) })
		e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("user_id", func(e *jx.Encoder) { encodeUUID(e, o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
		e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
		e.Field("discount_amount", func(e *jx.Encoder) { encodeMoney(e, o.DiscountAmount) })
		e.Field("tax_amount", func(e *jx.Encoder) { encodeMoney(e, o.TaxAmount) })
		e.Field("shipping_amount", func(e *jx.Encoder) { encodeMoney(e, o.ShippingAmount) })
		e.Field("total_amount", func(e *jx.Encoder) { encodeMoney(e, o.TotalAmount) })
		e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		e.Field("shipping_address", func(e *jx.Encoder) { encodeAddress(e, &o.Shipping) })
		e.Field("billing_address", func(e *jx.Encoder) { encodeAddress(e, &o.Billing) })
		e.Field("notes", func(e *jx.Encoder) { e.Str(o.Notes) })
		e.Field("tracking_number", func(e *jx.Encoder) { e.Str(o.TrackingNumber) })
		e.Field("shipped_at", func(e *jx.Encoder) { encodeOptTime(e, o.ShippedAt) })
		e.Field("delivered_at", func(e *jx.Encoder) { encodeOptTime(e, o.DeliveredAt) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Items {
					it := &o.Items[i]
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { encodeUUID(e, it.ProductID) })
						e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("product_price", func(e *jx.Encoder) { encodeMoney(e, it.ProductPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("total_price", func(e *jx.Encoder) { encodeMoney(e, it.TotalPrice) })
					})
				}
			})
		})
	})
}

func encodeStatusChange(e *jx.Encoder, c *order.StatusChange) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(c.Status)) })
		e.Field("notes", func(e *jx.Encoder) { e.Str(c.Notes) })
		e.Field("changed_by", func(e *jx.Encoder) {
			if c.ChangedBy == nil {
				e.Null()
				return
			}
			encodeUUID(e, *c.ChangedBy)
		})
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, c.CreatedAt) })
	})
}

func encodeUser(e *jx.Encoder, u *user.User) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { encodeUUID(e, u.ID) })
		e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
		e.Field("first_name", func(e *jx.Encoder) { e.Str(u.FirstName) })
		e.Field("last_name", func(e *jx.Encoder) { e.Str(u.LastName) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(u.Phone) })
		e.Field("role", func(e *jx.Encoder) { e.Str(string(u.Role)) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(u.Active) })
		e.Field("created_at", func(e *jx.Encoder) { encodeTime(e, u.CreatedAt) })
	})
}

func encodeSession(e *jx.Encoder, s *user.Session) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("user", func(e *jx.Encoder) { encodeUser(e, s.User) })
		e.Field("access_token", func(e *jx.Encoder) { e.Str(s.Token) })
		e.Field("token_type", func(e *jx.Encoder) { e.Str("Bearer") })
		e.Field("expires_at", func(e *jx.Encoder) { encodeTime(e, s.ExpiresAt) })
	})
}
