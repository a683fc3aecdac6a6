package coupon

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// IsValid reports whether the coupon is redeemable at now: it is active, now
// falls inside [ValidFrom, ValidUntil] and the usage limit is not reached.
func IsValid(c *Coupon, now time.Time) bool {
	return rejection(c, now) == ""
}

// Check returns a *RejectedError describing why the coupon would not discount
// amount at now, or nil when it applies.
func Check(c *Coupon, amount decimal.Decimal, now time.Time) error {
	reason := rejection(c, now)
	if reason == "" && belowMinimum(c, amount) {
		reason = ReasonBelowMinimum
	}
	if reason == "" {
		return nil
	}
	return &RejectedError{Code: c.Code, Reason: reason}
}

// CalculateDiscount returns the discount the coupon grants on amount at now.
// Invalid coupons and amounts below the minimum yield zero rather than an
// error. The result is rounded to cents, never negative and never greater
// than amount or the coupon's maximum discount.
func CalculateDiscount(c *Coupon, amount decimal.Decimal, now time.Time) decimal.Decimal {
	if c == nil || !IsValid(c, now) || belowMinimum(c, amount) {
		return decimal.Zero
	}

	var raw decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		raw = amount.Mul(c.Value).Div(hundred)
	case KindFixedAmount:
		raw = c.Value
	default:
		return decimal.Zero
	}
	raw = raw.Round(2)

	if c.MaximumDiscount != nil {
		raw = decimal.Min(raw, *c.MaximumDiscount)
	}
	raw = decimal.Min(raw, amount)

	if raw.IsNegative() {
		return decimal.Zero
	}
	return raw
}

func rejection(c *Coupon, now time.Time) Reason {
	switch {
	case !c.Active:
		return ReasonInactive
	case now.Before(c.ValidFrom):
		return ReasonNotYetValid
	case now.After(c.ValidUntil):
		return ReasonExpired
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return ReasonExhausted
	}
	return ""
}

func belowMinimum(c *Coupon, amount decimal.Decimal) bool {
	return c.MinimumAmount != nil && amount.LessThan(*c.MinimumAmount)
}

// NormalizeCode trims and upper-cases a coupon code. Codes are stored and
// compared in this form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks an administrator-supplied coupon definition.
func Validate(c *Coupon) error {
	switch {
	case NormalizeCode(c.Code) == "":
		return errors.Wrap(ErrInvalidDefinition, "code is required")
	case len(NormalizeCode(c.Code)) > 50:
		return errors.Wrap(ErrInvalidDefinition, "code is longer than 50 characters")
	case !c.Kind.Valid():
		return errors.Wrapf(ErrInvalidDefinition, "unknown kind %q", c.Kind)
	case c.Value.IsNegative():
		return errors.Wrap(ErrInvalidDefinition, "value must not be negative")
	case !centPrecise(c.Value):
		return errors.Wrap(ErrInvalidDefinition, "value has more than 2 decimal places")
	case c.Kind == KindPercentage && c.Value.GreaterThan(hundred):
		return errors.Wrap(ErrInvalidDefinition, "percentage must not exceed 100")
	case c.MinimumAmount != nil && c.MinimumAmount.IsNegative():
		return errors.Wrap(ErrInvalidDefinition, "minimum amount must not be negative")
	case c.MaximumDiscount != nil && c.MaximumDiscount.IsNegative():
		return errors.Wrap(ErrInvalidDefinition, "maximum discount must not be negative")
	case c.MinimumAmount != nil && !centPrecise(*c.MinimumAmount),
		c.MaximumDiscount != nil && !centPrecise(*c.MaximumDiscount):
		return errors.Wrap(ErrInvalidDefinition, "amounts have more than 2 decimal places")
	case c.UsageLimit != nil && *c.UsageLimit < 1:
		return errors.Wrap(ErrInvalidDefinition, "usage limit must be at least 1")
	case c.UsedCount < 0:
		return errors.Wrap(ErrInvalidDefinition, "used count must not be negative")
	case c.UsageLimit != nil && c.UsedCount > *c.UsageLimit:
		return errors.Wrap(ErrInvalidDefinition, "used count exceeds usage limit")
	case c.ValidUntil.Before(c.ValidFrom):
		return errors.Wrap(ErrInvalidDefinition, "validity window ends before it starts")
	}
	return nil
}

// centPrecise reports whether d fits the stored NUMERIC(12, 2) scale without
// rounding.
func centPrecise(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
