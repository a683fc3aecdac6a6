package user

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mockUserRepo struct {
	byID   map[uuid.UUID]*User
	listed []Filter
}

func newUserRepo() *mockUserRepo {
	return &mockUserRepo{byID: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) CreateUser(_ context.Context, u *User) error {
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserRepo) UpdateUser(_ context.Context, u *User) error {
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string, at time.Time) error {
	m.byID[id].PasswordHash = hash
	m.byID[id].UpdatedAt = at
	return nil
}

func (m *mockUserRepo) ListUsers(_ context.Context, f Filter) ([]User, error) {
	m.listed = append(m.listed, f)
	var out []User
	for _, u := range m.byID {
		out = append(out, *u)
	}
	return out, nil
}

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *mockUserRepo) {
	t.Helper()
	tokens, err := NewTokenIssuer(testSecret, time.Hour, "storefront")
	require.NoError(t, err)
	tokens.now = func() time.Time { return testNow }

	repo := newUserRepo()
	s := NewService(repo, tokens, NewThrottle(time.Minute, 3), bcrypt.MinCost)
	s.now = func() time.Time { return testNow }
	return s, repo
}

func TestRegisterAndLogin(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, RegisterInput{
		Email:     "  Ada@Example.COM ",
		Password:  "correct horse",
		FirstName: "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, RoleCustomer, sess.User.Role)
	assert.NotEqual(t, "correct horse", repo.byID[sess.User.ID].PasswordHash)
	assert.Equal(t, testNow.Add(time.Hour), sess.ExpiresAt)

	claims, err := s.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)
	assert.False(t, claims.IsAdmin())

	login, err := s.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = s.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "another password"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegister_Invalid(t *testing.T) {
	s, _ := newTestService(t)

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{name: "bad email", in: RegisterInput{Email: "not-an-email", Password: "long enough"}, wantErr: ErrInvalidInput},
		{name: "empty email", in: RegisterInput{Password: "long enough"}, wantErr: ErrInvalidInput},
		{name: "short password", in: RegisterInput{Email: "a@b.co", Password: "short"}, wantErr: ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLogin_Failures(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = s.Login(ctx, "nobody@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, "bob@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	repo.byID[sess.User.ID].Active = false
	_, err = s.Login(ctx, "bob@example.com", "password123")
	require.ErrorIs(t, err, ErrInactive)

	_, err = s.Login(ctx, "bob@example.com", "wrong again")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// Three attempts spent, the bucket is empty.
	_, err = s.Login(ctx, "bob@example.com", "password123")
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// Other emails are not affected.
	_, err = s.Login(ctx, "nobody@example.com", "password123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	s.now = func() time.Time { return testNow.Add(time.Minute) }
	repo.byID[sess.User.ID].Active = true
	_, err = s.Login(ctx, "bob@example.com", "password123")
	require.NoError(t, err)
}

func TestProfileAndPassword(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, RegisterInput{Email: "eve@example.com", Password: "first-password"})
	require.NoError(t, err)
	id := sess.User.ID

	u, err := s.UpdateProfile(ctx, id, ProfileInput{FirstName: " Eve ", Phone: "+254700000000"})
	require.NoError(t, err)
	assert.Equal(t, "Eve", u.FirstName)

	got, err := s.Profile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "+254700000000", got.Phone)

	err = s.ChangePassword(ctx, id, "wrong", "second-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = s.ChangePassword(ctx, id, "first-password", "short")
	require.ErrorIs(t, err, ErrWeakPassword)

	require.NoError(t, s.ChangePassword(ctx, id, "first-password", "second-password"))
	_, err = s.Login(ctx, "eve@example.com", "second-password")
	require.NoError(t, err)

	_, err = s.Profile(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTokenIssuer(t *testing.T) {
	issuer, err := NewTokenIssuer(testSecret, time.Hour, "storefront")
	require.NoError(t, err)
	issuer.now = func() time.Time { return testNow }

	u := &User{ID: uuid.New(), Email: "root@example.com", Role: RoleAdmin}
	token, _, err := issuer.Issue(u)
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, u.ID.String(), claims.Subject)

	t.Run("expired", func(t *testing.T) {
		late := *issuer
		late.now = func() time.Time { return testNow.Add(2 * time.Hour) }
		_, err := late.Parse(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewTokenIssuer(strings.Repeat("x", 32), time.Hour, "storefront")
		require.NoError(t, err)
		other.now = issuer.now
		_, err = other.Parse(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := *issuer
		other.issuer = "someone-else"
		_, err := other.Parse(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not.a.token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	_, err = NewTokenIssuer("short", time.Hour, "storefront")
	require.Error(t, err)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(10*time.Second, 2)
	now := testNow

	assert.True(t, th.Allow("a", now))
	assert.True(t, th.Allow("a", now))
	assert.False(t, th.Allow("a", now))
	assert.True(t, th.Allow("b", now))

	assert.True(t, th.Allow("a", now.Add(10*time.Second)))
	assert.False(t, th.Allow("a", now.Add(10*time.Second)))
}

func TestUpdateAccess(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	sess, err := s.Register(ctx, RegisterInput{Email: "shopper@example.com", Password: "long-enough-1"})
	require.NoError(t, err)
	target := sess.User.ID
	admin := uuid.New()

	promote := RoleAdmin
	u, err := s.UpdateAccess(ctx, admin, target, AccessInput{Role: &promote})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	assert.True(t, u.Active)

	disabled := false
	u, err = s.UpdateAccess(ctx, admin, target, AccessInput{Active: &disabled})
	require.NoError(t, err)
	assert.False(t, u.Active)
	assert.Equal(t, RoleAdmin, repo.byID[target].Role, "unset fields are kept")

	_, err = s.Login(ctx, "shopper@example.com", "long-enough-1")
	require.ErrorIs(t, err, ErrInactive)

	bogus := Role("owner")
	_, err = s.UpdateAccess(ctx, admin, target, AccessInput{Role: &bogus})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.UpdateAccess(ctx, target, target, AccessInput{Active: &disabled})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.UpdateAccess(ctx, admin, uuid.New(), AccessInput{Active: &disabled})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers_Paging(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	_, err := s.ListUsers(ctx, Filter{Search: "  ada ", Limit: 1000, Offset: -3})
	require.NoError(t, err)
	_, err = s.ListUsers(ctx, Filter{})
	require.NoError(t, err)

	assert.Equal(t, []Filter{
		{Search: "ada", Limit: 200, Offset: 0},
		{Limit: 50},
	}, repo.listed)
}
