package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/user"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in user.RegisterInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			in.Email, err = readString(d)
		case "password":
			in.Password, err = readString(d)
		case "first_name":
			in.FirstName, err = readString(d)
		case "last_name":
			in.LastName, err = readString(d)
		case "phone":
			in.Phone, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = readString(d)
		case "password":
			password, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Accounts.Login(r.Context(), email, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Accounts.Profile(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in user.ProfileInput
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "first_name":
			in.FirstName, err = readString(d)
		case "last_name":
			in.LastName, err = readString(d)
		case "phone":
			in.Phone, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Accounts.UpdateProfile(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var current, next string
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "old_password":
			current, err = readString(d)
		case "new_password":
			next, err = readString(d)
		default:
			return d.Skip()
		}
		return field(key, err)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Accounts.ChangePassword(r.Context(), userID(r), current, next); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := user.Filter{Search: q.Get("search")}
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
	users, err := h.Accounts.ListUsers(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArray(w, users, encodeUser)
}

func (h *Handler) updateUserAccess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, r, badRequest("invalid user id"))
		return
	}

	var in user.AccessInput
	err = decodeBody(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "role":
			v, err := d.Str()
			if err != nil {
				return field(key, err)
			}
			role := user.Role(v)
			in.Role = &role
		case "active":
			v, err := d.Bool()
			if err != nil {
				return field(key, err)
			}
			in.Active = &v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if in.Role == nil && in.Active == nil {
		writeError(w, r, badRequest("role or active is required"))
		return
	}

	u, err := h.Accounts.UpdateAccess(r.Context(), userID(r), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeUser(e, u) })
}
