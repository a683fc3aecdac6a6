package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCouponRepo struct {
	byCode      map[string]*Coupon
	created     *Coupon
	createErr   error
	deactivated string
}

func newMockRepo(coupons ...*Coupon) *mockCouponRepo {
	m := &mockCouponRepo{byCode: make(map[string]*Coupon)}
	for _, c := range coupons {
		m.byCode[c.Code] = c
	}
	return m
}

func (m *mockCouponRepo) Create(_ context.Context, c *Coupon) error {
	m.created = c
	return m.createErr
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) FindByCodeForUpdate(ctx context.Context, code string) (*Coupon, error) {
	return m.FindByCode(ctx, code)
}

func (m *mockCouponRepo) List(_ context.Context) ([]Coupon, error) {
	out := make([]Coupon, 0, len(m.byCode))
	for _, c := range m.byCode {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCouponRepo) Deactivate(_ context.Context, code string) error {
	if _, ok := m.byCode[code]; !ok {
		return ErrNotFound
	}
	m.deactivated = code
	return nil
}

func (m *mockCouponRepo) Redeem(_ context.Context, _ uuid.UUID) error {
	return nil
}

func newTestService(repo Repository) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestService_Create(t *testing.T) {
	repo := newMockRepo()
	s := newTestService(repo)

	c := activeCoupon(KindPercentage, "15")
	c.Code = "  summer15 "

	got, err := s.Create(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "SUMMER15", got.Code)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.Same(t, got, repo.created)
}

func TestService_Create_Invalid(t *testing.T) {
	repo := newMockRepo()
	s := newTestService(repo)

	c := activeCoupon(KindPercentage, "150")

	_, err := s.Create(context.Background(), c)
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Nil(t, repo.created)
}

func TestService_Create_RepoError(t *testing.T) {
	repo := newMockRepo()
	repo.createErr = ErrDuplicateCode
	s := newTestService(repo)

	_, err := s.Create(context.Background(), activeCoupon(KindFixedAmount, "5"))
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestService_Preview(t *testing.T) {
	valid := activeCoupon(KindPercentage, "10")
	valid.Code = "TEN"
	expired := activeCoupon(KindPercentage, "10")
	expired.Code = "OLD"
	expired.ValidUntil = fixedNow.Add(-time.Hour)

	s := newTestService(newMockRepo(valid, expired))

	t.Run("valid code is case insensitive", func(t *testing.T) {
		p, err := s.Preview(context.Background(), "ten", d("80"))
		require.NoError(t, err)
		assert.True(t, p.Valid)
		assert.Empty(t, p.Reason)
		assert.True(t, d("8").Equal(p.Discount))
	})

	t.Run("expired reports reason", func(t *testing.T) {
		p, err := s.Preview(context.Background(), "OLD", d("80"))
		require.NoError(t, err)
		assert.False(t, p.Valid)
		assert.Equal(t, ReasonExpired, p.Reason)
		assert.True(t, p.Discount.IsZero())
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := s.Preview(context.Background(), "NOPE", d("80"))
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Deactivate(t *testing.T) {
	c := activeCoupon(KindPercentage, "10")
	repo := newMockRepo(c)
	s := newTestService(repo)

	require.NoError(t, s.Deactivate(context.Background(), "test"))
	assert.Equal(t, "TEST", repo.deactivated)

	err := s.Deactivate(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
