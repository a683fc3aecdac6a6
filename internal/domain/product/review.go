package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrReviewNotFound is returned when a requested review does not exist.
	ErrReviewNotFound = errors.New("review not found")
	// ErrDuplicateReview is returned when a user reviews the same product twice.
	ErrDuplicateReview = errors.New("product already reviewed by this user")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrForbidden is returned when a user acts on another user's review.
	ErrForbidden = errors.New("forbidden")
)

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a user's rating of a product. A user reviews a product at most once.
type Review struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ProductID    uuid.UUID
	Rating       int
	Title        string
	Comment      string
	Verified     bool
	Approved     bool
	HelpfulCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReviewInput carries the user-editable review fields.
type ReviewInput struct {
	Rating  int
	Title   string
	Comment string
}

func (in ReviewInput) validate() error {
	if in.Rating < MinRating || in.Rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// ReviewRepository defines review persistence.
type ReviewRepository interface {
	CreateReview(ctx context.Context, r *Review) error
	GetReview(ctx context.Context, id uuid.UUID) (*Review, error)
	UpdateReview(ctx context.Context, r *Review) error
	DeleteReview(ctx context.Context, id uuid.UUID) error
	// ListReviews returns the product's reviews, newest first.
	ListReviews(ctx context.Context, productID uuid.UUID, approvedOnly bool) ([]Review, error)
	IncrementHelpful(ctx context.Context, id uuid.UUID) error
	// HasDeliveredPurchase reports whether the user received the product
	// in a delivered order.
	HasDeliveredPurchase(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

// Transactor runs fn inside a single database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReviewService manages reviews and keeps product ratings in step with them.
// Every mutation recomputes the product's rating from the full review set in
// the same transaction.
type ReviewService struct {
	reviews  ReviewRepository
	products Repository
	tx       Transactor
	now      func() time.Time
}

// NewReviewService creates a ReviewService.
func NewReviewService(reviews ReviewRepository, products Repository, tx Transactor) *ReviewService {
	return &ReviewService{
		reviews:  reviews,
		products: products,
		tx:       tx,
		now:      time.Now,
	}
}

// List returns approved reviews of a product.
func (s *ReviewService) List(ctx context.Context, productID uuid.UUID) ([]Review, error) {
	return s.reviews.ListReviews(ctx, productID, true)
}

// Create adds the user's review of a product. Reviews start approved; the
// Verified flag is set when the user has a delivered order for the product.
func (s *ReviewService) Create(ctx context.Context, userID, productID uuid.UUID, in ReviewInput) (*Review, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}

	verified, err := s.reviews.HasDeliveredPurchase(ctx, userID, productID)
	if err != nil {
		return nil, errors.Wrap(err, "check purchase")
	}

	now := s.now()
	r := &Review{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		Rating:    in.Rating,
		Title:     strings.TrimSpace(in.Title),
		Comment:   strings.TrimSpace(in.Comment),
		Verified:  verified,
		Approved:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.reviews.CreateReview(ctx, r); err != nil {
			return err
		}
		_, err := s.refreshRating(ctx, productID)
		return err
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// Update edits the user's own review.
func (s *ReviewService) Update(ctx context.Context, userID, reviewID uuid.UUID, in ReviewInput) (*Review, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var r *Review
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.reviews.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if r.UserID != userID {
			return ErrForbidden
		}
		r.Rating = in.Rating
		r.Title = strings.TrimSpace(in.Title)
		r.Comment = strings.TrimSpace(in.Comment)
		r.UpdatedAt = s.now()
		if err := s.reviews.UpdateReview(ctx, r); err != nil {
			return err
		}
		_, err = s.refreshRating(ctx, r.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SetApproved approves or hides a review and returns the product's new rating.
func (s *ReviewService) SetApproved(ctx context.Context, reviewID uuid.UUID, approved bool) (Rating, error) {
	var rating Rating
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.reviews.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		r.Approved = approved
		r.UpdatedAt = s.now()
		if err := s.reviews.UpdateReview(ctx, r); err != nil {
			return err
		}
		rating, err = s.refreshRating(ctx, r.ProductID)
		return err
	})
	if err != nil {
		return Rating{}, err
	}
	zctx.From(ctx).Info("Review moderated",
		zap.Stringer("review_id", reviewID),
		zap.Bool("approved", approved),
	)
	return rating, nil
}

// Delete removes a review. Users may delete their own reviews, admins any.
func (s *ReviewService) Delete(ctx context.Context, userID, reviewID uuid.UUID, isAdmin bool) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.reviews.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if !isAdmin && r.UserID != userID {
			return ErrForbidden
		}
		if err := s.reviews.DeleteReview(ctx, reviewID); err != nil {
			return err
		}
		_, err = s.refreshRating(ctx, r.ProductID)
		return err
	})
}

// MarkHelpful increments a review's helpful counter.
func (s *ReviewService) MarkHelpful(ctx context.Context, reviewID uuid.UUID) error {
	return s.reviews.IncrementHelpful(ctx, reviewID)
}

// RefreshRating recomputes and stores a product's rating from scratch.
func (s *ReviewService) RefreshRating(ctx context.Context, productID uuid.UUID) (Rating, error) {
	var rating Rating
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rating, err = s.refreshRating(ctx, productID)
		return err
	})
	return rating, err
}

// refreshRating must run inside a transaction. The product lock makes
// concurrent review writers recompute one after another, each seeing the
// reviews committed before it.
func (s *ReviewService) refreshRating(ctx context.Context, productID uuid.UUID) (Rating, error) {
	if err := s.products.LockProduct(ctx, productID); err != nil {
		return Rating{}, errors.Wrap(err, "lock product")
	}
	all, err := s.reviews.ListReviews(ctx, productID, false)
	if err != nil {
		return Rating{}, errors.Wrap(err, "list reviews")
	}
	rating := RecomputeRating(all)
	if err := s.products.SetRating(ctx, productID, rating); err != nil {
		return Rating{}, errors.Wrap(err, "store rating")
	}
	return rating, nil
}
