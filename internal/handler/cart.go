package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/cart"
)

func writeCart(w http.ResponseWriter, status int, s *cart.Summary) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeCart(e, s) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.Carts.Get(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, s)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Carts.Clear(r.Context(), userID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var productID uuid.UUID
	qty := 1
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			productID, err = readUUID(d)
		case "quantity":
			qty, err = d.Int()
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err == nil && productID == uuid.Nil {
		err = badRequest("product_id is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Carts.Add(r.Context(), userID(r), productID, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusCreated, s)
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := productParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var qty int
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		qty, err = d.Int()
		return field(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Carts.SetQuantity(r.Context(), userID(r), productID, qty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, s)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	productID, err := productParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Carts.Remove(r.Context(), userID(r), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, s)
}
