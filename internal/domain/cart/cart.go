package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrItemNotFound is returned when the product is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrProductUnavailable is returned when adding an inactive product.
	ErrProductUnavailable = errors.New("product unavailable")
)

// InvalidQuantityError indicates a non-positive cart quantity.
type InvalidQuantityError struct {
	ProductID uuid.UUID
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity %d must be greater than 0 for product %s", e.Quantity, e.ProductID)
}

// Item is a product placed in a user's cart. There is at most one item per
// (user, product).
type Item struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is a cart item joined with the current product record.
type Line struct {
	Item
	Product product.Product
}

// Total is the line price at the product's current price.
func (l Line) Total() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Summary is the priced content of a cart.
type Summary struct {
	Lines     []Line
	Subtotal  decimal.Decimal
	ItemCount int
}

// Summarize prices the lines at current product prices.
func Summarize(lines []Line) *Summary {
	s := &Summary{Lines: lines, Subtotal: decimal.Zero}
	for _, l := range lines {
		s.Subtotal = s.Subtotal.Add(l.Total())
		s.ItemCount += l.Quantity
	}
	s.Subtotal = s.Subtotal.Round(2)
	return s
}

// Repository defines cart persistence.
type Repository interface {
	// ListCart returns the user's cart lines, oldest first.
	ListCart(ctx context.Context, userID uuid.UUID) ([]Line, error)
	// AddItem inserts the item or adds its quantity to an existing one.
	AddItem(ctx context.Context, item *Item) error
	// SetQuantity reports whether the item existed.
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (bool, error)
	// RemoveItem reports whether the item existed.
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (bool, error)
	ClearCart(ctx context.Context, userID uuid.UUID) error
}
