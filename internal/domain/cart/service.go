package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/product"
)

// ProductGetter loads catalog products.
type ProductGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

// Service manages shopping carts.
type Service struct {
	carts    Repository
	products ProductGetter
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products ProductGetter) *Service {
	return &Service{
		carts:    carts,
		products: products,
		now:      time.Now,
	}
}

// Get returns the user's priced cart.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	lines, err := s.carts.ListCart(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	return Summarize(lines), nil
}

// Add puts qty units of a product in the cart, merging with an existing line.
func (s *Service) Add(ctx context.Context, userID, productID uuid.UUID, qty int) (*Summary, error) {
	if qty <= 0 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: qty}
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrProductUnavailable
	}

	now := s.now()
	if err := s.carts.AddItem(ctx, &Item{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Quantity:  qty,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, errors.Wrap(err, "add item")
	}
	return s.Get(ctx, userID)
}

// SetQuantity replaces the quantity of a cart line.
func (s *Service) SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*Summary, error) {
	if qty <= 0 {
		return nil, &InvalidQuantityError{ProductID: productID, Quantity: qty}
	}
	ok, err := s.carts.SetQuantity(ctx, userID, productID, qty)
	if err != nil {
		return nil, errors.Wrap(err, "set quantity")
	}
	if !ok {
		return nil, ErrItemNotFound
	}
	return s.Get(ctx, userID)
}

// Remove drops a product from the cart.
func (s *Service) Remove(ctx context.Context, userID, productID uuid.UUID) (*Summary, error) {
	ok, err := s.carts.RemoveItem(ctx, userID, productID)
	if err != nil {
		return nil, errors.Wrap(err, "remove item")
	}
	if !ok {
		return nil, ErrItemNotFound
	}
	return s.Get(ctx, userID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.carts.ClearCart(ctx, userID)
}
