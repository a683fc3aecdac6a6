package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterInput holds the data of a new account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// ProfileInput holds editable profile fields.
type ProfileInput struct {
	FirstName string
	LastName  string
	Phone     string
}

// AccessInput holds the administrator-editable access fields of a user. Nil
// fields are left unchanged.
type AccessInput struct {
	Role   *Role
	Active *bool
}

// Session is the result of a successful login.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}

// Service manages accounts and authentication.
type Service struct {
	users      Repository
	tokens     *TokenIssuer
	throttle   *Throttle
	bcryptCost int
	now        func() time.Time
}

// NewService creates a user Service. A zero bcryptCost selects bcrypt's
// default.
func NewService(users Repository, tokens *TokenIssuer, throttle *Throttle, bcryptCost int) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		throttle:   throttle,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a customer account and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, errors.Wrap(ErrInvalidInput, "invalid email")
	}
	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	u := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         RoleCustomer,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	zctx.From(ctx).Info("User registered", zap.Stringer("user_id", u.ID))
	return s.session(u)
}

// Login verifies credentials and issues an access token. Attempts are
// throttled per email.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if !s.throttle.Allow(email, s.now()) {
		zctx.From(ctx).Warn("Login throttled", zap.String("email", email))
		return nil, ErrTooManyAttempts
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInactive
	}
	return s.session(u)
}

func (s *Service) session(u *User) (*Session, error) {
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token, ExpiresAt: exp}, nil
}

// Authenticate resolves an access token to its claims.
func (s *Service) Authenticate(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

// Profile returns the user's account.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetUserByID(ctx, id)
}

// UpdateProfile edits the user's name and phone.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, in ProfileInput) (*User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.FirstName = strings.TrimSpace(in.FirstName)
	u.LastName = strings.TrimSpace(in.LastName)
	u.Phone = strings.TrimSpace(in.Phone)
	u.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update user")
	}
	return u, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash, s.now()); err != nil {
		return errors.Wrap(err, "update password")
	}
	zctx.From(ctx).Info("Password changed", zap.Stringer("user_id", id))
	return nil
}

// ListUsers returns accounts for administrators.
func (s *Service) ListUsers(ctx context.Context, f Filter) ([]User, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	users, err := s.users.ListUsers(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

// UpdateAccess changes the role or active flag of a user on behalf of the
// administrator actorID. Administrators cannot change their own access, so
// the store always keeps the admin making the call.
func (s *Service) UpdateAccess(ctx context.Context, actorID, id uuid.UUID, in AccessInput) (*User, error) {
	if in.Role != nil && !in.Role.Valid() {
		return nil, errors.Wrapf(ErrInvalidInput, "unknown role %q", *in.Role)
	}
	if actorID == id {
		return nil, errors.Wrap(ErrInvalidInput, "cannot change own access")
	}
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	u.UpdatedAt = s.now()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, errors.Wrap(err, "update user")
	}
	zctx.From(ctx).Info("User access changed",
		zap.Stringer("user_id", id),
		zap.Stringer("by", actorID),
		zap.String("role", string(u.Role)),
		zap.Bool("active", u.Active),
	)
	return u, nil
}
