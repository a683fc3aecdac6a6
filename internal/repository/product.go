package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `p.id, p.name, p.slug, p.sku, p.description, p.short_description,
		p.price, p.original_price, p.stock_quantity, p.low_stock_threshold, p.category_id,
		p.brand, p.images, p.tags, p.active, p.featured, p.rating_average, p.rating_count,
		p.created_at, p.updated_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.slug = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = ANY($1)`

	createProductSQL = `INSERT INTO products (id, name, slug, sku, description, short_description,
		price, original_price, stock_quantity, low_stock_threshold, category_id, brand, images, tags,
		active, featured, rating_average, rating_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	updateProductSQL = `UPDATE products SET name = $2, slug = $3, sku = $4, description = $5,
		short_description = $6, price = $7, original_price = $8,
		stock_quantity = COALESCE($9, stock_quantity),
		low_stock_threshold = $10, category_id = $11, brand = $12, images = $13, tags = $14,
		active = $15, featured = $16, updated_at = $17
		WHERE id = $1
		RETURNING stock_quantity, rating_average, rating_count`

	reserveStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`

	releaseStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`

	setRatingSQL = `UPDATE products SET rating_average = $2, rating_count = $3 WHERE id = $1`

	// FOR NO KEY UPDATE does not conflict with the FOR KEY SHARE locks that
	// review inserts take through their foreign key.
	lockProductSQL = `SELECT 1 FROM products WHERE id = $1 FOR NO KEY UPDATE`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses the given DB.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns active products matching the filter.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	sql, args := buildListProducts(f)
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func buildListProducts(f product.Filter) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		where = []string{"p.active"}
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString(`SELECT ` + productColumns + ` FROM products p`)
	if f.CategorySlug != "" {
		b.WriteString(` JOIN categories c ON c.id = p.category_id`)
		where = append(where, "c.slug = "+arg(f.CategorySlug))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, "(p.name ILIKE "+p+" OR p.description ILIKE "+p+" OR p.brand ILIKE "+p+")")
	}
	if f.MinPrice != nil {
		where = append(where, "p.price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "p.price <= "+arg(*f.MaxPrice))
	}
	if f.Brand != "" {
		where = append(where, "lower(p.brand) = lower("+arg(f.Brand)+")")
	}
	if f.MinRating != nil {
		where = append(where, "p.rating_average >= "+arg(*f.MinRating))
	}
	if f.FeaturedOnly {
		where = append(where, "p.featured")
	}
	if f.InStockOnly {
		where = append(where, "p.stock_quantity > 0")
	}
	b.WriteString(" WHERE " + strings.Join(where, " AND "))

	switch f.Sort {
	case product.SortPriceAsc:
		b.WriteString(" ORDER BY p.price ASC, p.id")
	case product.SortPriceDesc:
		b.WriteString(" ORDER BY p.price DESC, p.id")
	case product.SortRating:
		b.WriteString(" ORDER BY p.rating_average DESC, p.rating_count DESC, p.id")
	case product.SortName:
		b.WriteString(" ORDER BY p.name ASC, p.id")
	default:
		b.WriteString(" ORDER BY p.created_at DESC, p.id")
	}
	b.WriteString(" LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset))
	return b.String(), args
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	return r.getOne(ctx, getProductByIDSQL, id)
}

// GetBySlug returns a single product by its slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return r.getOne(ctx, getProductBySlugSQL, slug)
}

func (r *ProductRepository) getOne(ctx context.Context, sql string, key any) (*product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting product %v: %w", key, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %v: %w", key, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]product.Product, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create stores a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Slug, p.SKU, p.Description, p.ShortDescription,
		p.Price, p.OriginalPrice, int32(p.StockQuantity), int32(p.LowStockThreshold), p.CategoryID,
		p.Brand, nonNil(p.Images), nonNil(p.Tags), p.Active, p.Featured, p.RatingAverage, int32(p.RatingCount),
		p.CreatedAt, p.UpdatedAt,
	)
	return productWriteErr(err, p)
}

// Update stores the editable fields of a product. Stock is written only when
// stock is not nil, so concurrent reservations are kept; rating fields are
// left alone. p receives the stored stock and rating.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product, stock *int) error {
	var newStock *int32
	if stock != nil {
		v := int32(*stock)
		newStock = &v
	}
	var storedStock, ratingCount int32
	err := r.db.conn(ctx).QueryRow(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, p.SKU, p.Description, p.ShortDescription,
		p.Price, p.OriginalPrice, newStock, int32(p.LowStockThreshold), p.CategoryID,
		p.Brand, nonNil(p.Images), nonNil(p.Tags), p.Active, p.Featured, p.UpdatedAt,
	).Scan(&storedStock, &p.RatingAverage, &ratingCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return productWriteErr(err, p)
	}
	p.StockQuantity = int(storedStock)
	p.RatingCount = int(ratingCount)
	return nil
}

func productWriteErr(err error, p *product.Product) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, ""):
		return product.ErrDuplicateSlug
	case isForeignKeyViolation(err):
		return product.ErrCategoryNotFound
	default:
		return fmt.Errorf("writing product %q: %w", p.Slug, err)
	}
}

// ReserveStock decrements stock if enough units remain.
func (r *ProductRepository) ReserveStock(ctx context.Context, id uuid.UUID, qty int) error {
	tag, err := r.db.conn(ctx).Exec(ctx, reserveStockSQL, id, int32(qty))
	if err != nil {
		return fmt.Errorf("reserving stock of %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.conn(ctx).QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("reserving stock of %s: %w", id, err)
	}
	if !exists {
		return product.ErrNotFound
	}
	return product.ErrInsufficientStock
}

// ReleaseStock returns units to stock.
func (r *ProductRepository) ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error {
	if _, err := r.db.conn(ctx).Exec(ctx, releaseStockSQL, id, int32(qty)); err != nil {
		return fmt.Errorf("releasing stock of %s: %w", id, err)
	}
	return nil
}

// SetRating stores the derived rating of a product.
func (r *ProductRepository) SetRating(ctx context.Context, id uuid.UUID, rating product.Rating) error {
	tag, err := r.db.conn(ctx).Exec(ctx, setRatingSQL, id, rating.Average, int32(rating.Count))
	if err != nil {
		return fmt.Errorf("setting rating of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// LockProduct row-locks a product until the surrounding transaction ends.
func (r *ProductRepository) LockProduct(ctx context.Context, id uuid.UUID) error {
	var one int
	if err := r.db.conn(ctx).QueryRow(ctx, lockProductSQL, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("locking product %s: %w", id, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	return scanProductAfter(row)
}

// scanProductAfter scans a row whose product columns follow the lead columns.
func scanProductAfter(row pgx.CollectableRow, lead ...any) (product.Product, error) {
	var (
		p                  product.Product
		stock, lowStock, n int32
	)
	err := row.Scan(append(lead,
		&p.ID, &p.Name, &p.Slug, &p.SKU, &p.Description, &p.ShortDescription,
		&p.Price, &p.OriginalPrice, &stock, &lowStock, &p.CategoryID,
		&p.Brand, &p.Images, &p.Tags, &p.Active, &p.Featured, &p.RatingAverage, &n,
		&p.CreatedAt, &p.UpdatedAt,
	)...)
	p.StockQuantity = int(stock)
	p.LowStockThreshold = int(lowStock)
	p.RatingCount = int(n)
	return p, err
}
