package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	listCartSQL = `SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at, ` + productColumns + `
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1 ORDER BY c.created_at, c.id`

	listCartForUpdateSQL = `SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at, c.updated_at, ` + productColumns + `
		FROM cart_items c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1 ORDER BY c.created_at, c.id
		FOR UPDATE OF c`

	addCartItemSQL = `INSERT INTO cart_items (id, user_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`

	setCartQuantitySQL = `UPDATE cart_items SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2`

	removeCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository that uses the given DB.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

// ListCart returns the user's cart lines joined with current product data.
func (r *CartRepository) ListCart(ctx context.Context, userID uuid.UUID) ([]cart.Line, error) {
	return r.listCart(ctx, listCartSQL, userID)
}

// ListCartForUpdate is ListCart that also row-locks the cart items until the
// surrounding transaction ends. A concurrent checkout of the same cart waits
// and then sees the items it emptied.
func (r *CartRepository) ListCartForUpdate(ctx context.Context, userID uuid.UUID) ([]cart.Line, error) {
	return r.listCart(ctx, listCartForUpdateSQL, userID)
}

func (r *CartRepository) listCart(ctx context.Context, sql string, userID uuid.UUID) ([]cart.Line, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var (
			l   cart.Line
			qty int32
		)
		p, err := scanProductAfter(row, &l.ID, &l.UserID, &l.ProductID, &qty, &l.CreatedAt, &l.UpdatedAt)
		l.Quantity = int(qty)
		l.Product = p
		return l, err
	})
}

// AddItem inserts the item or merges its quantity into the existing one.
func (r *CartRepository) AddItem(ctx context.Context, item *cart.Item) error {
	_, err := r.db.conn(ctx).Exec(ctx, addCartItemSQL,
		item.ID, item.UserID, item.ProductID, int32(item.Quantity), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

// SetQuantity overwrites the quantity of a cart item.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, setCartQuantitySQL, userID, productID, int32(qty))
	if err != nil {
		return false, fmt.Errorf("setting cart quantity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveItem deletes a cart item.
func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, removeCartItemSQL, userID, productID)
	if err != nil {
		return false, fmt.Errorf("removing cart item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearCart deletes all items of the user's cart.
func (r *CartRepository) ClearCart(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.conn(ctx).Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}
