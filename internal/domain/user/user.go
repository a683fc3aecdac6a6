package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that is in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInactive is returned when a deactivated user logs in.
	ErrInactive = errors.New("account is disabled")
	// ErrInvalidInput is returned for malformed registration or profile data.
	ErrInvalidInput = errors.New("invalid user input")
	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password too short")
	// ErrTooManyAttempts is returned when login attempts for an email are
	// throttled.
	ErrTooManyAttempts = errors.New("too many login attempts")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Role grants access to parts of the API.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User is a storefront account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Filter narrows an administrative user listing. Search matches email and
// names, ignoring case.
type Filter struct {
	Search string
	Limit  int
	Offset int
}

// IsAdmin reports whether the user administers the store.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// Repository defines user persistence. Emails are stored lower-cased and
// are unique.
type Repository interface {
	// CreateUser returns ErrEmailTaken when the email is in use.
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
	// ListUsers returns users newest first.
	ListUsers(ctx context.Context, f Filter) ([]User, error)
}
