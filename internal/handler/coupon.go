package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// previewCoupon evaluates a code against an order amount without
// redeeming it. A rejected coupon is a 200 with valid=false and a reason.
func (h *Handler) previewCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code      string
		amount    decimal.Decimal
		hasAmount bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = readString(d)
		case "amount":
			hasAmount = true
			amount, err = readDecimal(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	switch {
	case err != nil:
	case code == "":
		err = badRequest("code is required")
	case !hasAmount || amount.IsNegative():
		err = badRequest("amount must be a non-negative number")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.Coupons.Preview(r.Context(), code, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePreview(e, p) })
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.Coupons.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, coupons, encodeCoupon)
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	c := coupon.Coupon{Active: true}
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			c.Code, err = readString(d)
		case "discount_type":
			var kind string
			kind, err = readString(d)
			c.Kind = coupon.Kind(kind)
		case "discount_value":
			c.Value, err = readDecimal(d)
		case "minimum_amount":
			c.MinimumAmount, err = readOptDecimal(d)
		case "maximum_discount":
			c.MaximumDiscount, err = readOptDecimal(d)
		case "usage_limit":
			c.UsageLimit, err = readOptInt(d)
		case "valid_from":
			c.ValidFrom, err = readTime(d)
		case "valid_until":
			c.ValidUntil, err = readTime(d)
		case "active":
			c.Active, err = d.Bool()
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err == nil && c.ValidUntil.IsZero() {
		err = badRequest("valid_until is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c.ValidFrom.IsZero() {
		c.ValidFrom = time.Now().UTC()
	}

	created, err := h.Coupons.Create(r.Context(), &c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCoupon(e, created) })
}

func (h *Handler) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Coupons.Deactivate(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
