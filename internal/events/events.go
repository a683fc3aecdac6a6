// Package events publishes order lifecycle events to RabbitMQ.
package events

import (
	"context"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
)

// Routing keys of published events.
const (
	KeyOrderPlaced        = "order.placed"
	KeyOrderStatusChanged = "order.status_changed"
)

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

var _ order.Publisher = Nop{}

// OrderPlaced implements order.Publisher.
func (Nop) OrderPlaced(context.Context, *order.Order) error { return nil }

// StatusChanged implements order.Publisher.
func (Nop) StatusChanged(context.Context, *order.Order, order.Status) error { return nil }

// EncodeOrderPlaced renders the order.placed message body.
func EncodeOrderPlaced(o *order.Order) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		encodeHeader(e, o)
		e.Field("subtotal", func(e *jx.Encoder) { e.Str(o.Subtotal.StringFixed(2)) })
		e.Field("discount_amount", func(e *jx.Encoder) { e.Str(o.DiscountAmount.StringFixed(2)) })
		e.Field("tax_amount", func(e *jx.Encoder) { e.Str(o.TaxAmount.StringFixed(2)) })
		e.Field("shipping_amount", func(e *jx.Encoder) { e.Str(o.ShippingAmount.StringFixed(2)) })
		e.Field("total_amount", func(e *jx.Encoder) { e.Str(o.TotalAmount.StringFixed(2)) })
		if o.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(o.CouponCode) })
		}
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Shipping.Email) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID.String()) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("price", func(e *jx.Encoder) { e.Str(it.ProductPrice.StringFixed(2)) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					})
				}
			})
		})
	})
	return e.Bytes()
}

// EncodeStatusChanged renders the order.status_changed message body.
func EncodeStatusChanged(o *order.Order, from order.Status) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		encodeHeader(e, o)
		e.Field("from", func(e *jx.Encoder) { e.Str(string(from)) })
		e.Field("payment_status", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
	})
	return e.Bytes()
}

func encodeHeader(e *jx.Encoder, o *order.Order) {
	e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID.String()) })
	e.Field("order_number", func(e *jx.Encoder) { e.Str(o.Number) })
	e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID.String()) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("at", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339)) })
}
