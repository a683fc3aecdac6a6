package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CatalogService exposes the product catalog and its administration.
type CatalogService struct {
	products   Repository
	categories CategoryRepository
	now        func() time.Time
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(products Repository, categories CategoryRepository) *CatalogService {
	return &CatalogService{
		products:   products,
		categories: categories,
		now:        time.Now,
	}
}

// List returns active products matching f. Page size defaults to 20 and is
// capped at 100.
func (s *CatalogService) List(ctx context.Context, f Filter) ([]Product, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Sort == "" {
		f.Sort = SortNewest
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Brand = strings.TrimSpace(f.Brand)
	if f.MinRating != nil && (f.MinRating.IsNegative() || f.MinRating.GreaterThan(decimal.NewFromInt(MaxRating))) {
		return nil, errors.Wrapf(ErrInvalidProduct, "minimum rating %s is outside 0..%d", f.MinRating, MaxRating)
	}

	products, err := s.products.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// GetBySlug returns an active product by slug.
func (s *CatalogService) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	p, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrNotFound
	}
	return p, nil
}

// GetByID returns a product by id regardless of its active flag.
func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// Create validates and stores a new product, deriving slug and SKU when
// they are not supplied.
func (s *CatalogService) Create(ctx context.Context, p *Product) (*Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.SKU == "" {
		p.SKU = NewSKU()
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	now := s.now()
	p.ID = uuid.New()
	p.RatingAverage = decimal.Zero
	p.RatingCount = 0
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	zctx.From(ctx).Info("Product created",
		zap.Stringer("product_id", p.ID),
		zap.String("slug", p.Slug),
	)
	return p, nil
}

// Update stores changed catalog fields. Stock is only written when stock is
// set, so an edit of other fields keeps reservations made meanwhile. Rating
// fields are derived and are left as they are in storage.
func (s *CatalogService) Update(ctx context.Context, p *Product, stock *int) (*Product, error) {
	if stock != nil {
		p.StockQuantity = *stock
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.products.Update(ctx, p, stock); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// Categories lists active categories ordered by sort order then name.
func (s *CatalogService) Categories(ctx context.Context) ([]Category, error) {
	return s.categories.ListCategories(ctx, true)
}

// CreateCategory validates and stores a new category.
func (s *CatalogService) CreateCategory(ctx context.Context, c *Category) (*Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, errors.Wrap(ErrInvalidProduct, "category name is required")
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	now := s.now()
	c.ID = uuid.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.categories.CreateCategory(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return c, nil
}

// Category returns a category by slug. Inactive categories are only
// returned when includeInactive is set.
func (s *CatalogService) Category(ctx context.Context, slug string, includeInactive bool) (*Category, error) {
	c, err := s.categories.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !c.Active && !includeInactive {
		return nil, ErrCategoryNotFound
	}
	return c, nil
}

// UpdateCategory validates and stores changed category fields.
func (s *CatalogService) UpdateCategory(ctx context.Context, c *Category) (*Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	switch {
	case c.Name == "":
		return nil, errors.Wrap(ErrInvalidProduct, "category name is required")
	case c.ParentID != nil && *c.ParentID == c.ID:
		return nil, errors.Wrap(ErrInvalidProduct, "category cannot be its own parent")
	}
	if c.Slug == "" {
		c.Slug = Slugify(c.Name)
	}
	c.UpdatedAt = s.now()
	if err := s.categories.UpdateCategory(ctx, c); err != nil {
		return nil, errors.Wrap(err, "update category")
	}
	return c, nil
}

// DeactivateCategory hides a category from the storefront. Categories are
// not deleted; their products keep referring to them.
func (s *CatalogService) DeactivateCategory(ctx context.Context, slug string) error {
	c, err := s.categories.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if !c.Active {
		return nil
	}
	c.Active = false
	c.UpdatedAt = s.now()
	if err := s.categories.UpdateCategory(ctx, c); err != nil {
		return errors.Wrap(err, "deactivate category")
	}
	zctx.From(ctx).Info("Category deactivated", zap.String("slug", slug))
	return nil
}

func validateProduct(p *Product) error {
	switch {
	case p.Name == "":
		return errors.Wrap(ErrInvalidProduct, "name is required")
	case p.Slug == "":
		return errors.Wrap(ErrInvalidProduct, "slug is required")
	case p.Price.IsNegative():
		return errors.Wrap(ErrInvalidProduct, "price must not be negative")
	case p.OriginalPrice != nil && p.OriginalPrice.IsNegative():
		return errors.Wrap(ErrInvalidProduct, "original price must not be negative")
	case p.StockQuantity < 0:
		return errors.Wrap(ErrInvalidProduct, "stock must not be negative")
	case p.LowStockThreshold < 0:
		return errors.Wrap(ErrInvalidProduct, "low stock threshold must not be negative")
	case p.CategoryID == uuid.Nil:
		return errors.Wrap(ErrInvalidProduct, "category is required")
	}
	return nil
}
