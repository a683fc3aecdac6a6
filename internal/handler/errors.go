package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var (
	errUnauthenticated = errors.New("authentication required")
	errAdminOnly       = errors.New("admin access required")
	errRoute           = errors.New("route not found")
	errMethod          = errors.New("method not allowed")
)

// requestError is malformed input detected by a handler.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// statusOf maps an error to its HTTP status. Unknown errors are 500.
func statusOf(err error) int {
	var (
		reqErr      *requestError
		cartQty     *cart.InvalidQuantityError
		orderQty    *order.InvalidQuantityError
		unavailable *order.ProductUnavailableError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.As(err, &cartQty),
		errors.As(err, &orderQty),
		errors.Is(err, user.ErrInvalidInput),
		errors.Is(err, user.ErrWeakPassword),
		errors.Is(err, product.ErrInvalidProduct),
		errors.Is(err, product.ErrInvalidRating),
		errors.Is(err, coupon.ErrInvalidDefinition),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest

	case errors.Is(err, errUnauthenticated),
		errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, user.ErrInvalidToken):
		return http.StatusUnauthorized

	case errors.Is(err, errAdminOnly),
		errors.Is(err, user.ErrInactive),
		errors.Is(err, product.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, errRoute),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrCategoryNotFound),
		errors.Is(err, product.ErrReviewNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, errMethod):
		return http.StatusMethodNotAllowed

	case errors.Is(err, product.ErrDuplicateSlug),
		errors.Is(err, product.ErrDuplicateReview),
		errors.Is(err, product.ErrAlreadyWishlisted),
		errors.Is(err, coupon.ErrDuplicateCode),
		errors.Is(err, user.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, cart.ErrProductUnavailable),
		errors.As(err, &unavailable),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrInvalidOrderState):
		return http.StatusUnprocessableEntity

	case errors.Is(err, user.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError writes {"code","message"}. Internal errors are logged and
// their details hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
