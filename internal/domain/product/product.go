package product

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrCategoryNotFound is returned when a requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrDuplicateSlug is returned when a product or category slug is taken.
	ErrDuplicateSlug = errors.New("slug already exists")
	// ErrInvalidProduct is returned for product or category input that
	// violates catalog invariants.
	ErrInvalidProduct = errors.New("invalid product")
)

// Category groups products. Categories may nest through ParentID.
type Category struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description string
	Image       string
	ParentID    *uuid.UUID
	Active      bool
	SortOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product is a catalog item available for purchase. RatingAverage and
// RatingCount are derived from approved reviews, see RecomputeRating.
type Product struct {
	ID                uuid.UUID
	Name              string
	Slug              string
	SKU               string
	Description       string
	ShortDescription  string
	Price             decimal.Decimal
	OriginalPrice     *decimal.Decimal
	StockQuantity     int
	LowStockThreshold int
	CategoryID        uuid.UUID
	Brand             string
	Images            []string
	Tags              []string
	Active            bool
	Featured          bool
	RatingAverage     decimal.Decimal
	RatingCount       int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InStock reports whether at least one unit is available.
func (p *Product) InStock() bool {
	return p.StockQuantity > 0
}

// LowStock reports whether stock is at or below the low-stock threshold.
func (p *Product) LowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// DiscountPercentage is the markdown from OriginalPrice to Price in percent,
// rounded to two places. It is zero when there is no markdown.
func (p *Product) DiscountPercentage() decimal.Decimal {
	if p.OriginalPrice == nil || !p.OriginalPrice.GreaterThan(p.Price) {
		return decimal.Zero
	}
	orig := *p.OriginalPrice
	return orig.Sub(p.Price).Div(orig).Mul(decimal.NewFromInt(100)).Round(2)
}

// SortOrder selects the ordering of a product listing.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortPriceAsc  SortOrder = "price_asc"
	SortPriceDesc SortOrder = "price_desc"
	SortRating    SortOrder = "rating"
	SortName      SortOrder = "name"
)

// Filter narrows a product listing. Zero values mean "no constraint".
type Filter struct {
	CategorySlug string
	Search       string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	// Brand matches the product brand exactly, ignoring case.
	Brand string
	// MinRating keeps products whose rating average is at least this value.
	MinRating    *decimal.Decimal
	FeaturedOnly bool
	InStockOnly  bool
	Sort         SortOrder
	Limit        int
	Offset       int
}

// Repository defines catalog persistence.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	// Update stores the editable fields of p. Stock is overwritten only when
	// stock is not nil; p receives the stored stock and rating.
	Update(ctx context.Context, p *Product, stock *int) error
	// ReserveStock decrements stock only when enough units remain and
	// returns ErrInsufficientStock otherwise.
	ReserveStock(ctx context.Context, id uuid.UUID, qty int) error
	ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error
	SetRating(ctx context.Context, id uuid.UUID, r Rating) error
	// LockProduct holds the product row until the surrounding transaction
	// ends, serializing rating recomputation.
	LockProduct(ctx context.Context, id uuid.UUID) error
}

// CategoryRepository defines category persistence.
type CategoryRepository interface {
	ListCategories(ctx context.Context, activeOnly bool) ([]Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
}

// ErrInsufficientStock is returned when a reservation exceeds available stock.
var ErrInsufficientStock = errors.New("insufficient stock")

// Slugify derives a URL slug from a display name: lower-case ASCII letters
// and digits separated by single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// NewSKU returns a random stock keeping unit of the form SKU-XXXXXXXX.
func NewSKU() string {
	id := uuid.New()
	return "SKU-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
