package coupon

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func ip(v int) *int {
	return &v
}

func activeCoupon(kind Kind, value string) *Coupon {
	return &Coupon{
		Code:       "TEST",
		Kind:       kind,
		Value:      d(value),
		ValidFrom:  fixedNow.Add(-24 * time.Hour),
		ValidUntil: fixedNow.Add(24 * time.Hour),
		Active:     true,
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Coupon)
		want   bool
	}{
		{name: "active inside window", modify: func(*Coupon) {}, want: true},
		{name: "inactive", modify: func(c *Coupon) { c.Active = false }, want: false},
		{name: "starts in the future", modify: func(c *Coupon) { c.ValidFrom = fixedNow.Add(time.Minute) }, want: false},
		{name: "ended in the past", modify: func(c *Coupon) { c.ValidUntil = fixedNow.Add(-time.Minute) }, want: false},
		{name: "window bounds are inclusive", modify: func(c *Coupon) {
			c.ValidFrom = fixedNow
			c.ValidUntil = fixedNow
		}, want: true},
		{name: "usage below limit", modify: func(c *Coupon) {
			c.UsageLimit = ip(10)
			c.UsedCount = 9
		}, want: true},
		{name: "usage at limit", modify: func(c *Coupon) {
			c.UsageLimit = ip(10)
			c.UsedCount = 10
		}, want: false},
		{name: "no limit ignores used count", modify: func(c *Coupon) { c.UsedCount = 9999 }, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon(KindPercentage, "10")
			tt.modify(c)
			assert.Equal(t, tt.want, IsValid(c, fixedNow))
		})
	}
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name   string
		coupon *Coupon
		amount string
		want   string
	}{
		{
			name:   "percentage of amount",
			coupon: activeCoupon(KindPercentage, "10"),
			amount: "100",
			want:   "10",
		},
		{
			name:   "percentage 100 equals amount",
			coupon: activeCoupon(KindPercentage, "100"),
			amount: "42.50",
			want:   "42.50",
		},
		{
			name:   "percentage rounds to cents",
			coupon: activeCoupon(KindPercentage, "33.33"),
			amount: "10.01",
			want:   "3.34",
		},
		{
			name:   "fixed amount",
			coupon: activeCoupon(KindFixedAmount, "9"),
			amount: "100",
			want:   "9",
		},
		{
			name:   "fixed amount clipped to order amount",
			coupon: activeCoupon(KindFixedAmount, "150"),
			amount: "100",
			want:   "100",
		},
		{
			name: "maximum discount caps percentage",
			coupon: func() *Coupon {
				c := activeCoupon(KindPercentage, "50")
				c.MaximumDiscount = dp("20")
				return c
			}(),
			amount: "100",
			want:   "20",
		},
		{
			name: "maximum discount above raw has no effect",
			coupon: func() *Coupon {
				c := activeCoupon(KindFixedAmount, "5")
				c.MaximumDiscount = dp("20")
				return c
			}(),
			amount: "100",
			want:   "5",
		},
		{
			name: "below minimum amount",
			coupon: func() *Coupon {
				c := activeCoupon(KindPercentage, "10")
				c.MinimumAmount = dp("50")
				return c
			}(),
			amount: "49.99",
			want:   "0",
		},
		{
			name: "exactly minimum amount",
			coupon: func() *Coupon {
				c := activeCoupon(KindPercentage, "10")
				c.MinimumAmount = dp("50")
				return c
			}(),
			amount: "50",
			want:   "5",
		},
		{
			name: "expired coupon yields zero",
			coupon: func() *Coupon {
				c := activeCoupon(KindFixedAmount, "10")
				c.ValidUntil = fixedNow.Add(-time.Hour)
				return c
			}(),
			amount: "1000",
			want:   "0",
		},
		{
			name: "exhausted coupon yields zero",
			coupon: func() *Coupon {
				c := activeCoupon(KindFixedAmount, "10")
				c.UsageLimit = ip(3)
				c.UsedCount = 3
				return c
			}(),
			amount: "100",
			want:   "0",
		},
		{
			name: "inactive coupon yields zero",
			coupon: func() *Coupon {
				c := activeCoupon(KindPercentage, "10")
				c.Active = false
				return c
			}(),
			amount: "100",
			want:   "0",
		},
		{
			name:   "nil coupon yields zero",
			coupon: nil,
			amount: "100",
			want:   "0",
		},
		{
			name:   "zero amount",
			coupon: activeCoupon(KindFixedAmount, "10"),
			amount: "0",
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDiscount(tt.coupon, d(tt.amount), fixedNow)
			assert.True(t, d(tt.want).Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestCalculateDiscount_Bounds(t *testing.T) {
	amounts := []string{"0.01", "1", "9.99", "100", "250.75", "10000"}
	values := []string{"0", "1", "12.5", "50", "99.99", "100"}

	for _, a := range amounts {
		for _, v := range values {
			amount := d(a)

			uncapped := activeCoupon(KindPercentage, v)
			got := CalculateDiscount(uncapped, amount, fixedNow)
			want := amount.Mul(d(v)).Div(hundred).Round(2)
			assert.True(t, want.Equal(got), "amount %s value %s: expected %s, got %s", a, v, want, got)
			assert.True(t, got.LessThanOrEqual(amount), "discount %s exceeds amount %s", got, a)

			capped := activeCoupon(KindPercentage, v)
			capped.MaximumDiscount = dp("7.5")
			got = CalculateDiscount(capped, amount, fixedNow)
			assert.True(t, got.LessThanOrEqual(d("7.5")), "discount %s exceeds cap", got)
			assert.False(t, got.IsNegative())
		}
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Coupon)
		amount string
		reason Reason
	}{
		{name: "applies", modify: func(*Coupon) {}, amount: "100"},
		{name: "inactive", modify: func(c *Coupon) { c.Active = false }, amount: "100", reason: ReasonInactive},
		{name: "not yet valid", modify: func(c *Coupon) { c.ValidFrom = fixedNow.Add(time.Hour) }, amount: "100", reason: ReasonNotYetValid},
		{name: "expired", modify: func(c *Coupon) { c.ValidUntil = fixedNow.Add(-time.Hour) }, amount: "100", reason: ReasonExpired},
		{name: "exhausted", modify: func(c *Coupon) {
			c.UsageLimit = ip(1)
			c.UsedCount = 1
		}, amount: "100", reason: ReasonExhausted},
		{name: "below minimum", modify: func(c *Coupon) { c.MinimumAmount = dp("200") }, amount: "100", reason: ReasonBelowMinimum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon(KindPercentage, "10")
			tt.modify(c)

			err := Check(c, d(tt.amount), fixedNow)
			if tt.reason == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrInvalidCoupon)
			var rej *RejectedError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, "TEST", rej.Code)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Coupon)
		wantErr bool
	}{
		{name: "valid percentage", modify: func(*Coupon) {}},
		{name: "empty code", modify: func(c *Coupon) { c.Code = "  " }, wantErr: true},
		{name: "unknown kind", modify: func(c *Coupon) { c.Kind = "bogus" }, wantErr: true},
		{name: "negative value", modify: func(c *Coupon) { c.Value = d("-1") }, wantErr: true},
		{name: "percentage above 100", modify: func(c *Coupon) { c.Value = d("100.01") }, wantErr: true},
		{name: "fixed above 100 is fine", modify: func(c *Coupon) {
			c.Kind = KindFixedAmount
			c.Value = d("150")
		}},
		{name: "zero usage limit", modify: func(c *Coupon) { c.UsageLimit = ip(0) }, wantErr: true},
		{name: "used above limit", modify: func(c *Coupon) {
			c.UsageLimit = ip(2)
			c.UsedCount = 3
		}, wantErr: true},
		{name: "window reversed", modify: func(c *Coupon) { c.ValidUntil = c.ValidFrom.Add(-time.Second) }, wantErr: true},
		{name: "negative maximum discount", modify: func(c *Coupon) { c.MaximumDiscount = dp("-5") }, wantErr: true},
		{name: "code of 50 characters after trimming", modify: func(c *Coupon) {
			c.Code = "  " + strings.Repeat("a", 50) + "  "
		}},
		{name: "code longer than 50 characters", modify: func(c *Coupon) { c.Code = strings.Repeat("A", 51) }, wantErr: true},
		{name: "value with sub-cent digits", modify: func(c *Coupon) { c.Value = d("10.005") }, wantErr: true},
		{name: "trailing zeros are fine", modify: func(c *Coupon) { c.Value = d("10.500") }},
		{name: "minimum with sub-cent digits", modify: func(c *Coupon) { c.MinimumAmount = dp("20.001") }, wantErr: true},
		{name: "maximum with sub-cent digits", modify: func(c *Coupon) { c.MaximumDiscount = dp("5.555") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon(KindPercentage, "10")
			tt.modify(c)

			err := Validate(c)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDefinition)
				return
			}
			require.NoError(t, err)
		})
	}
}
