package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listWishlistSQL = `SELECT w.id, w.user_id, w.created_at, ` + productColumns + `
		FROM wishlist_items w JOIN products p ON p.id = w.product_id
		WHERE w.user_id = $1 ORDER BY w.created_at DESC`

	addToWishlistSQL = `INSERT INTO wishlist_items (id, user_id, product_id) VALUES ($1, $2, $3)`

	removeFromWishlistSQL = `DELETE FROM wishlist_items WHERE user_id = $1 AND product_id = $2`
)

var _ product.WishlistRepository = (*WishlistRepository)(nil)

// WishlistRepository implements product.WishlistRepository backed by PostgreSQL.
type WishlistRepository struct {
	db *DB
}

// NewWishlistRepository returns a WishlistRepository that uses the given DB.
func NewWishlistRepository(db *DB) *WishlistRepository {
	return &WishlistRepository{db: db}
}

// ListWishlist returns the user's wishlist, newest first.
func (r *WishlistRepository) ListWishlist(ctx context.Context, userID uuid.UUID) ([]product.WishlistEntry, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listWishlistSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wishlist: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.WishlistEntry, error) {
		var e product.WishlistEntry
		p, err := scanProductAfter(row, &e.ID, &e.UserID, &e.CreatedAt)
		e.Product = p
		return e, err
	})
}

// AddToWishlist saves a product for the user.
func (r *WishlistRepository) AddToWishlist(ctx context.Context, id, userID, productID uuid.UUID) error {
	_, err := r.db.conn(ctx).Exec(ctx, addToWishlistSQL, id, userID, productID)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "wishlist_items_user_product_key"):
		return product.ErrAlreadyWishlisted
	case isForeignKeyViolation(err):
		return product.ErrNotFound
	default:
		return fmt.Errorf("adding to wishlist: %w", err)
	}
}

// RemoveFromWishlist deletes a saved product and reports whether it existed.
func (r *WishlistRepository) RemoveFromWishlist(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, removeFromWishlistSQL, userID, productID)
	if err != nil {
		return false, fmt.Errorf("removing from wishlist: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
