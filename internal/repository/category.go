package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	categoryColumns = `id, name, slug, description, image, parent_id, active, sort_order, created_at, updated_at`

	listCategoriesSQL = `SELECT ` + categoryColumns + ` FROM categories
		WHERE active OR NOT $1 ORDER BY sort_order, name`

	getCategoryBySlugSQL = `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1`

	createCategorySQL = `INSERT INTO categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateCategorySQL = `UPDATE categories SET name = $2, slug = $3, description = $4, image = $5,
		parent_id = $6, active = $7, sort_order = $8, updated_at = $9
		WHERE id = $1`
)

var _ product.CategoryRepository = (*CategoryRepository)(nil)

// CategoryRepository implements product.CategoryRepository backed by PostgreSQL.
type CategoryRepository struct {
	db *DB
}

// NewCategoryRepository returns a CategoryRepository that uses the given DB.
func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// ListCategories returns categories ordered by sort order and name.
func (r *CategoryRepository) ListCategories(ctx context.Context, activeOnly bool) ([]product.Category, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listCategoriesSQL, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// GetCategoryBySlug returns a category by slug.
func (r *CategoryRepository) GetCategoryBySlug(ctx context.Context, slug string) (*product.Category, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getCategoryBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", slug, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", slug, err)
	}
	return &c, nil
}

// CreateCategory stores a new category.
func (r *CategoryRepository) CreateCategory(ctx context.Context, c *product.Category) error {
	_, err := r.db.conn(ctx).Exec(ctx, createCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, c.Image, c.ParentID, c.Active, int32(c.SortOrder),
		c.CreatedAt, c.UpdatedAt,
	)
	return categoryWriteErr(err, c)
}

// UpdateCategory stores the editable fields of a category.
func (r *CategoryRepository) UpdateCategory(ctx context.Context, c *product.Category) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updateCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, c.Image, c.ParentID, c.Active, int32(c.SortOrder),
		c.UpdatedAt,
	)
	if err != nil {
		return categoryWriteErr(err, c)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrCategoryNotFound
	}
	return nil
}

func categoryWriteErr(err error, c *product.Category) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, "categories_slug_key"):
		return product.ErrDuplicateSlug
	case isForeignKeyViolation(err):
		return product.ErrCategoryNotFound
	default:
		return fmt.Errorf("writing category %q: %w", c.Slug, err)
	}
}

func scanCategory(row pgx.CollectableRow) (product.Category, error) {
	var (
		c         product.Category
		sortOrder int32
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.Image, &c.ParentID, &c.Active, &sortOrder,
		&c.CreatedAt, &c.UpdatedAt,
	)
	c.SortOrder = int(sortOrder)
	return c, err
}
