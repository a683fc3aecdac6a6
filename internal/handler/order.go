package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
)

func orderParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "order"))
	if err != nil {
		return uuid.Nil, badRequest("invalid order id")
	}
	return id, nil
}

// checkout places an order from the caller's cart.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req order.CheckoutRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "coupon_code":
			req.CouponCode, err = readString(d)
		case "payment_method":
			var m string
			m, err = readString(d)
			req.PaymentMethod = order.PaymentMethod(m)
		case "shipping_address":
			req.Shipping, err = readAddress(d)
		case "billing_address":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var a order.Address
			if a, err = readAddress(d); err == nil {
				req.Billing = &a
			}
		case "notes":
			req.Notes, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Orders.Checkout(r.Context(), userID(r), req)
	if errors.Is(err, coupon.ErrNotFound) {
		// An unknown code is a rejected coupon from the buyer's point of view.
		err = errors.Wrap(coupon.ErrInvalidCoupon, "unknown coupon code")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, orders, encodeOrder)
}

func (h *Handler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{Status: order.Status(q.Get("status"))}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, badRequest("invalid %s", name))
				return
			}
			*dst = n
		}
	}

	orders, err := h.Orders.ListAll(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, orders, encodeOrder)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Get(r.Context(), userID(r), id, isAdmin(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := orderParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := h.Orders.History(r.Context(), userID(r), id, isAdmin(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, history, encodeStatusChange)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.Cancel(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var status, note string
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "status":
			status, err = readString(d)
		case "notes":
			note, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err == nil && status == "" {
		err = badRequest("status is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Orders.UpdateStatus(r.Context(), id, order.Status(status), note, userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

func (h *Handler) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	id, err := orderParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var paymentID string
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "payment_id" {
			return d.Skip()
		}
		var err error
		paymentID, err = readString(d)
		return field(key, err)
	})
	if err == nil && paymentID == "" {
		err = badRequest("payment_id is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Orders.MarkPaid(r.Context(), id, paymentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
