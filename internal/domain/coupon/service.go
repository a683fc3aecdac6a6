package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Preview is the outcome of trying a coupon against an amount without
// redeeming it.
type Preview struct {
	Coupon   *Coupon
	Valid    bool
	Reason   Reason
	Discount decimal.Decimal
}

// Service holds coupon administration and the storefront preview.
// Redemption happens inside order checkout.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, c *Coupon) (*Coupon, error) {
	c.Code = NormalizeCode(c.Code)
	if err := Validate(c); err != nil {
		return nil, err
	}

	now := s.now()
	c.ID = uuid.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("code", c.Code),
		zap.String("kind", string(c.Kind)),
		zap.Stringer("value", c.Value),
	)
	return c, nil
}

// Get returns the coupon with the given code.
func (s *Service) Get(ctx context.Context, code string) (*Coupon, error) {
	c, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns every coupon, active or not.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

// Deactivate soft-disables a coupon.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if err := s.repo.Deactivate(ctx, code); err != nil {
		return err
	}
	zctx.From(ctx).Info("Coupon deactivated", zap.String("code", code))
	return nil
}

// Preview evaluates the coupon against amount at the current time.
func (s *Service) Preview(ctx context.Context, code string, amount decimal.Decimal) (*Preview, error) {
	c, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Preview{Coupon: c, Valid: true}
	if err := Check(c, amount, now); err != nil {
		var rej *RejectedError
		if !errors.As(err, &rej) {
			return nil, err
		}
		p.Valid = false
		p.Reason = rej.Reason
		return p, nil
	}
	p.Discount = CalculateDiscount(c, amount, now)
	return p, nil
}
