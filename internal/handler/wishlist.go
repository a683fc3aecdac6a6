package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
)

func (h *Handler) listWishlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Wishlists.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, entries, encodeWishlistEntry)
}

func (h *Handler) addToWishlist(w http.ResponseWriter, r *http.Request) {
	var productID uuid.UUID
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "product_id" {
			return d.Skip()
		}
		id, err := readUUID(d)
		productID = id
		return field(key, err)
	})
	if err == nil && productID == uuid.Nil {
		err = badRequest("product_id is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Wishlists.Add(r.Context(), userID(r), productID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	productID, err := productParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Wishlists.Remove(r.Context(), userID(r), productID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleWishlist(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	on, err := h.Wishlists.Toggle(r.Context(), userID(r), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { encodeUUID(e, p.ID) })
			e.Field("in_wishlist", func(e *jx.Encoder) { e.Bool(on) })
		})
	})
}
