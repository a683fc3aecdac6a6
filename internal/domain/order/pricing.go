package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// TaxRule computes the tax of an order from its subtotal and discount.
type TaxRule interface {
	Tax(subtotal, discount decimal.Decimal) decimal.Decimal
}

// TaxBasis selects the amount a RateTax applies to.
type TaxBasis string

const (
	// BasisSubtotal taxes the subtotal before discounts.
	BasisSubtotal TaxBasis = "subtotal"
	// BasisDiscounted taxes the subtotal after discounts.
	BasisDiscounted TaxBasis = "discounted"
)

// RateTax is a flat rate tax, e.g. 0.16 for 16%.
type RateTax struct {
	Rate  decimal.Decimal
	Basis TaxBasis
}

// Tax implements TaxRule.
func (t RateTax) Tax(subtotal, discount decimal.Decimal) decimal.Decimal {
	base := subtotal
	if t.Basis == BasisDiscounted {
		base = subtotal.Sub(discount)
	}
	return base.Mul(t.Rate).Round(2)
}

// NoTax charges no tax.
type NoTax struct{}

// Tax implements TaxRule.
func (NoTax) Tax(_, _ decimal.Decimal) decimal.Decimal { return decimal.Zero }

// ShippingPolicy charges a flat fee unless the subtotal reaches FreeOver.
type ShippingPolicy struct {
	Flat     decimal.Decimal
	FreeOver *decimal.Decimal
}

// Amount returns the shipping charge for a subtotal.
func (p ShippingPolicy) Amount(subtotal decimal.Decimal) decimal.Decimal {
	if p.FreeOver != nil && subtotal.GreaterThanOrEqual(*p.FreeOver) {
		return decimal.Zero
	}
	return p.Flat
}

// Line is a product and quantity to be priced into an order.
type Line struct {
	ProductID uuid.UUID
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// BuildInput holds everything Build needs. Coupon and Tax may be nil.
type BuildInput struct {
	Lines    []Line
	Coupon   *coupon.Coupon
	Shipping decimal.Decimal
	Tax      TaxRule
	Now      time.Time
}

// Build prices lines into a new pending order. It snapshots product names
// and prices, applies the coupon discount to the subtotal, adds tax and
// shipping, and refuses to produce a negative total. The returned order has
// no number or owner yet.
func Build(in BuildInput) (*Order, error) {
	if len(in.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if in.Shipping.IsNegative() {
		return nil, errors.Wrap(ErrInvalidOrderState, "negative shipping amount")
	}

	items := make([]Item, len(in.Lines))
	subtotal := decimal.Zero
	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
		total := l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		items[i] = Item{
			ID:           uuid.New(),
			ProductID:    l.ProductID,
			ProductName:  l.Name,
			ProductPrice: l.Price,
			Quantity:     l.Quantity,
			TotalPrice:   total,
		}
		subtotal = subtotal.Add(total)
	}

	discount := decimal.Zero
	code := ""
	if in.Coupon != nil {
		discount = coupon.CalculateDiscount(in.Coupon, subtotal, in.Now)
		if discount.IsPositive() {
			code = in.Coupon.Code
		}
	}

	tax := decimal.Zero
	if in.Tax != nil {
		tax = in.Tax.Tax(subtotal, discount).Round(2)
	}
	if tax.IsNegative() {
		return nil, errors.Wrap(ErrInvalidOrderState, "negative tax amount")
	}

	o := &Order{
		ID:             uuid.New(),
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		Subtotal:       subtotal,
		TaxAmount:      tax,
		ShippingAmount: in.Shipping.Round(2),
		DiscountAmount: discount,
		CouponCode:     code,
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
		Items:          items,
	}
	o.TotalAmount = RecomputeTotal(o)
	if o.TotalAmount.IsNegative() {
		return nil, errors.Wrapf(ErrInvalidOrderState, "negative total %s", o.TotalAmount)
	}
	return o, nil
}

// RecomputeTotal derives the total from the order's stored amounts.
func RecomputeTotal(o *Order) decimal.Decimal {
	return o.Subtotal.
		Add(o.TaxAmount).
		Add(o.ShippingAmount).
		Sub(o.DiscountAmount)
}

// VerifyTotals checks the stored subtotal and total against the items and
// amounts they derive from.
func VerifyTotals(o *Order) error {
	subtotal := decimal.Zero
	for _, it := range o.Items {
		want := it.ProductPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
		if !it.TotalPrice.Equal(want) {
			return errors.Wrapf(ErrInvalidOrderState, "item %s total %s, want %s", it.ProductID, it.TotalPrice, want)
		}
		subtotal = subtotal.Add(it.TotalPrice)
	}
	if len(o.Items) > 0 && !o.Subtotal.Equal(subtotal) {
		return errors.Wrapf(ErrInvalidOrderState, "subtotal %s, want %s", o.Subtotal, subtotal)
	}
	if want := RecomputeTotal(o); !o.TotalAmount.Equal(want) {
		return errors.Wrapf(ErrInvalidOrderState, "total %s, want %s", o.TotalAmount, want)
	}
	if o.TotalAmount.IsNegative() {
		return errors.Wrap(ErrInvalidOrderState, "negative total")
	}
	return nil
}
