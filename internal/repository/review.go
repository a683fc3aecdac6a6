package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	reviewColumns = `id, user_id, product_id, rating, title, comment, verified, approved,
		helpful_count, created_at, updated_at`

	createReviewSQL = `INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getReviewSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	updateReviewSQL = `UPDATE reviews SET rating = $2, title = $3, comment = $4, approved = $5,
		updated_at = $6 WHERE id = $1`

	deleteReviewSQL = `DELETE FROM reviews WHERE id = $1`

	listReviewsSQL = `SELECT ` + reviewColumns + ` FROM reviews
		WHERE product_id = $1 AND (approved OR NOT $2)
		ORDER BY created_at DESC, id`

	incrementHelpfulSQL = `UPDATE reviews SET helpful_count = helpful_count + 1 WHERE id = $1`

	hasDeliveredPurchaseSQL = `SELECT EXISTS (
		SELECT 1 FROM orders o JOIN order_items i ON i.order_id = o.id
		WHERE o.user_id = $1 AND i.product_id = $2 AND o.status = 'delivered')`
)

var _ product.ReviewRepository = (*ReviewRepository)(nil)

// ReviewRepository implements product.ReviewRepository backed by PostgreSQL.
type ReviewRepository struct {
	db *DB
}

// NewReviewRepository returns a ReviewRepository that uses the given DB.
func NewReviewRepository(db *DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// CreateReview stores a review.
func (r *ReviewRepository) CreateReview(ctx context.Context, rv *product.Review) error {
	_, err := r.db.conn(ctx).Exec(ctx, createReviewSQL,
		rv.ID, rv.UserID, rv.ProductID, int16(rv.Rating), rv.Title, rv.Comment, rv.Verified,
		rv.Approved, int32(rv.HelpfulCount), rv.CreatedAt, rv.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "reviews_user_product_key"):
		return product.ErrDuplicateReview
	case isForeignKeyViolation(err):
		return product.ErrNotFound
	default:
		return fmt.Errorf("creating review: %w", err)
	}
}

// GetReview returns a review by id.
func (r *ReviewRepository) GetReview(ctx context.Context, id uuid.UUID) (*product.Review, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getReviewSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting review %s: %w", id, err)
	}
	rv, err := pgx.CollectExactlyOneRow(rows, scanReview)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrReviewNotFound
		}
		return nil, fmt.Errorf("getting review %s: %w", id, err)
	}
	return &rv, nil
}

// UpdateReview stores the editable fields and approval flag of a review.
func (r *ReviewRepository) UpdateReview(ctx context.Context, rv *product.Review) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updateReviewSQL,
		rv.ID, int16(rv.Rating), rv.Title, rv.Comment, rv.Approved, rv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating review %s: %w", rv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrReviewNotFound
	}
	return nil
}

// DeleteReview removes a review.
func (r *ReviewRepository) DeleteReview(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deleteReviewSQL, id)
	if err != nil {
		return fmt.Errorf("deleting review %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrReviewNotFound
	}
	return nil
}

// ListReviews returns the reviews of a product, newest first.
func (r *ReviewRepository) ListReviews(ctx context.Context, productID uuid.UUID, approvedOnly bool) ([]product.Review, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listReviewsSQL, productID, approvedOnly)
	if err != nil {
		return nil, fmt.Errorf("listing reviews of %s: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanReview)
}

// IncrementHelpful bumps the helpful counter of a review.
func (r *ReviewRepository) IncrementHelpful(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.conn(ctx).Exec(ctx, incrementHelpfulSQL, id)
	if err != nil {
		return fmt.Errorf("marking review %s helpful: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrReviewNotFound
	}
	return nil
}

// HasDeliveredPurchase reports whether the user has a delivered order
// containing the product.
func (r *ReviewRepository) HasDeliveredPurchase(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var ok bool
	if err := r.db.conn(ctx).QueryRow(ctx, hasDeliveredPurchaseSQL, userID, productID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking purchase: %w", err)
	}
	return ok, nil
}

func scanReview(row pgx.CollectableRow) (product.Review, error) {
	var (
		rv      product.Review
		rating  int16
		helpful int32
	)
	err := row.Scan(
		&rv.ID, &rv.UserID, &rv.ProductID, &rating, &rv.Title, &rv.Comment, &rv.Verified,
		&rv.Approved, &helpful, &rv.CreatedAt, &rv.UpdatedAt,
	)
	rv.Rating = int(rating)
	rv.HelpfulCount = int(helpful)
	return rv, err
}
