package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrAlreadyWishlisted is returned when adding a product that is already on
// the user's wishlist.
var ErrAlreadyWishlisted = errors.New("product already in wishlist")

// WishlistEntry is a product saved by a user.
type WishlistEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Product   Product
	CreatedAt time.Time
}

// WishlistRepository defines wishlist persistence. Entries are unique per
// (user, product).
type WishlistRepository interface {
	ListWishlist(ctx context.Context, userID uuid.UUID) ([]WishlistEntry, error)
	AddToWishlist(ctx context.Context, id, userID, productID uuid.UUID) error
	// RemoveFromWishlist reports whether an entry existed.
	RemoveFromWishlist(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// WishlistService manages users' wishlists.
type WishlistService struct {
	wishlist WishlistRepository
	products Repository
}

// NewWishlistService creates a WishlistService.
func NewWishlistService(wishlist WishlistRepository, products Repository) *WishlistService {
	return &WishlistService{wishlist: wishlist, products: products}
}

// List returns the user's wishlist, newest first.
func (s *WishlistService) List(ctx context.Context, userID uuid.UUID) ([]WishlistEntry, error) {
	return s.wishlist.ListWishlist(ctx, userID)
}

// Add saves a product to the user's wishlist.
func (s *WishlistService) Add(ctx context.Context, userID, productID uuid.UUID) error {
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	return s.wishlist.AddToWishlist(ctx, uuid.New(), userID, productID)
}

// Remove deletes a product from the user's wishlist.
func (s *WishlistService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	ok, err := s.wishlist.RemoveFromWishlist(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Toggle adds the product when absent and removes it when present. It
// reports whether the product is on the wishlist afterwards.
func (s *WishlistService) Toggle(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	removed, err := s.wishlist.RemoveFromWishlist(ctx, userID, productID)
	if err != nil {
		return false, err
	}
	if removed {
		return false, nil
	}
	if err := s.Add(ctx, userID, productID); err != nil {
		return false, err
	}
	return true, nil
}
