package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/user"
)

const (
	userColumns = `id, email, password_hash, first_name, last_name, phone, role, active, created_at, updated_at`

	createUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getUserByIDSQL = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	updateUserSQL = `UPDATE users SET first_name = $2, last_name = $3, phone = $4, role = $5,
		active = $6, updated_at = $7 WHERE id = $1`

	updatePasswordSQL = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`

	listUsersSQL = `SELECT ` + userColumns + ` FROM users
		WHERE $1 = '' OR email ILIKE '%' || $1 || '%'
			OR first_name ILIKE '%' || $1 || '%' OR last_name ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository that uses the given DB.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser stores a new user.
func (r *UserRepository) CreateUser(ctx context.Context, u *user.User) error {
	_, err := r.db.conn(ctx).Exec(ctx, createUserSQL,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone, string(u.Role), u.Active,
		u.CreatedAt, u.UpdatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "users_email_key"):
		return user.ErrEmailTaken
	default:
		return fmt.Errorf("creating user: %w", err)
	}
}

// GetUserByID returns a user by id.
func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

// GetUserByEmail returns a user by normalized email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) getOne(ctx context.Context, sql string, key any) (*user.User, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// UpdateUser stores the profile, role and active flag of a user.
func (r *UserRepository) UpdateUser(ctx context.Context, u *user.User) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updateUserSQL,
		u.ID, u.FirstName, u.LastName, u.Phone, string(u.Role), u.Active, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash of a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updatePasswordSQL, id, hash, at)
	if err != nil {
		return fmt.Errorf("updating password of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// ListUsers returns users matching the filter, newest first.
func (r *UserRepository) ListUsers(ctx context.Context, f user.Filter) ([]user.User, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listUsersSQL, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return pgx.CollectRows(rows, scanUser)
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &role, &u.Active,
		&u.CreatedAt, &u.UpdatedAt,
	)
	u.Role = user.Role(role)
	return u, err
}
