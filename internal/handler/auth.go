package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/user"
)

type claimsKey struct{}

func claimsFrom(ctx context.Context) (*user.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*user.Claims)
	return c, ok
}

// caller returns the authenticated user. Routes using it sit behind
// requireUser.
func caller(r *http.Request) *user.Claims {
	c, _ := claimsFrom(r.Context())
	return c
}

// authenticate resolves a bearer token into claims. Requests without a
// token pass through anonymously; a bad token is rejected.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, r, user.ErrInvalidToken)
			return
		}
		claims, err := h.Accounts.Authenticate(strings.TrimSpace(token))
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		ctx = zctx.With(ctx, zap.Stringer("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := claimsFrom(r.Context()); !ok {
			writeError(w, r, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := claimsFrom(r.Context())
		switch {
		case !ok:
			writeError(w, r, errUnauthenticated)
		case !c.IsAdmin():
			writeError(w, r, errAdminOnly)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func isAdmin(r *http.Request) bool {
	c, ok := claimsFrom(r.Context())
	return ok && c.IsAdmin()
}

func userID(r *http.Request) uuid.UUID {
	return caller(r).UserID
}
