package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/product"
)

func reviewParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "review"))
	if err != nil {
		return uuid.Nil, badRequest("invalid review id")
	}
	return id, nil
}

func decodeReview(w http.ResponseWriter, r *http.Request) (product.ReviewInput, error) {
	var in product.ReviewInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rating":
			in.Rating, err = d.Int()
		case "title":
			in.Title, err = readString(d)
		case "comment":
			in.Comment, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	return in, err
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reviews, err := h.Reviews.List(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, reviews, encodeReview)
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookupProduct(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeReview(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	review, err := h.Reviews.Create(r.Context(), userID(r), p.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReview(e, review) })
}

func (h *Handler) updateReview(w http.ResponseWriter, r *http.Request) {
	id, err := reviewParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := decodeReview(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	review, err := h.Reviews.Update(r.Context(), userID(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReview(e, review) })
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, err := reviewParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Reviews.Delete(r.Context(), userID(r), id, isAdmin(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markHelpful(w http.ResponseWriter, r *http.Request) {
	id, err := reviewParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Reviews.MarkHelpful(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setApproval moderates a review and returns the product's new rating.
func (h *Handler) setApproval(w http.ResponseWriter, r *http.Request) {
	id, err := reviewParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var (
		approved bool
		seen     bool
	)
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "approved" {
			return d.Skip()
		}
		seen = true
		v, err := d.Bool()
		approved = v
		return field(key, err)
	})
	if err == nil && !seen {
		err = badRequest("approved is required")
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	rating, err := h.Reviews.SetApproved(r.Context(), id, approved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRating(e, rating) })
}
