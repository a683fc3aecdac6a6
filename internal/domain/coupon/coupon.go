package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported coupon discount strategies.
type Kind string

const (
	// KindPercentage takes a percentage of the order amount.
	KindPercentage Kind = "percentage"
	// KindFixedAmount takes a fixed monetary amount, capped at the order amount.
	KindFixedAmount Kind = "fixed_amount"
)

// Valid reports whether k is a known discount kind.
func (k Kind) Valid() bool {
	return k == KindPercentage || k == KindFixedAmount
}

var (
	// ErrInvalidCoupon is the umbrella error for every reason a coupon is
	// not applicable to an order. Use errors.Is to test for it.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrNotFound is returned when no coupon carries the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when creating a coupon whose code is taken.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidDefinition is returned when an administrator submits a
	// coupon that violates its own invariants.
	ErrInvalidDefinition = errors.New("invalid coupon definition")
)

// Reason explains why a coupon yields no discount.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonNotYetValid  Reason = "not_yet_valid"
	ReasonExpired      Reason = "expired"
	ReasonExhausted    Reason = "exhausted"
	ReasonBelowMinimum Reason = "below_minimum"
)

// RejectedError reports that a coupon exists but cannot be applied.
// It matches ErrInvalidCoupon under errors.Is.
type RejectedError struct {
	Code   string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

// Is makes RejectedError match ErrInvalidCoupon.
func (e *RejectedError) Is(target error) bool {
	return target == ErrInvalidCoupon
}

// Coupon is a redeemable discount code. Coupons are never deleted, only
// deactivated.
type Coupon struct {
	ID              uuid.UUID
	Code            string
	Kind            Kind
	Value           decimal.Decimal
	MinimumAmount   *decimal.Decimal
	MaximumDiscount *decimal.Decimal
	UsageLimit      *int
	UsedCount       int
	ValidFrom       time.Time
	ValidUntil      time.Time
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository provides persistence for coupons.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// FindByCodeForUpdate is FindByCode that also row-locks the coupon
	// until the surrounding transaction ends.
	FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Deactivate(ctx context.Context, code string) error
	// Redeem increments the usage counter. It must fail with a
	// RejectedError{Reason: ReasonExhausted} instead of exceeding the limit.
	Redeem(ctx context.Context, id uuid.UUID) error
}
