package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/repository"
)

type catalogJSON struct {
	Categories []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		SortOrder   int    `json:"sort_order"`
	} `json:"categories"`
	Products []struct {
		Name             string           `json:"name"`
		Category         string           `json:"category"`
		Brand            string           `json:"brand"`
		Price            decimal.Decimal  `json:"price"`
		OriginalPrice    *decimal.Decimal `json:"original_price"`
		Stock            int              `json:"stock"`
		Featured         bool             `json:"featured"`
		Tags             []string         `json:"tags"`
		Images           []string         `json:"images"`
		ShortDescription string           `json:"short_description"`
	} `json:"products"`
	Coupons []struct {
		Code            string           `json:"code"`
		Kind            coupon.Kind      `json:"kind"`
		Value           decimal.Decimal  `json:"value"`
		MinimumAmount   *decimal.Decimal `json:"minimum_amount"`
		MaximumDiscount *decimal.Decimal `json:"maximum_discount"`
		UsageLimit      *int             `json:"usage_limit"`
		ValidDays       int              `json:"valid_days"`
	} `json:"coupons"`
}

type seeder struct {
	lg         *zap.Logger
	categories *repository.CategoryRepository
	products   *repository.ProductRepository
	coupons    *repository.CouponRepository
	users      *repository.UserRepository
	now        time.Time
}

func main() {
	var (
		databaseURL   string
		catalogFile   string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "", "catalog JSON file (defaults to the embedded demo catalog)")
	flag.StringVar(&adminEmail, "admin-email", "", "admin account email (or STORE_ADMIN_EMAIL env)")
	flag.StringVar(&adminPassword, "admin-password", "", "admin account password (or STORE_ADMIN_PASSWORD env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if adminEmail == "" {
		adminEmail = os.Getenv("STORE_ADMIN_EMAIL")
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("STORE_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, catalogFile, adminEmail, adminPassword); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, catalogFile, adminEmail, adminPassword string) error {
	data := db.Catalog
	if catalogFile != "" {
		var err error
		if data, err = os.ReadFile(catalogFile); err != nil {
			return errors.Wrap(err, "read catalog file")
		}
	}
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL, 0)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := repository.NewDB(pool)
	s := &seeder{
		lg:         lg,
		categories: repository.NewCategoryRepository(store),
		products:   repository.NewProductRepository(store),
		coupons:    repository.NewCouponRepository(store),
		users:      repository.NewUserRepository(store),
		now:        time.Now().UTC(),
	}

	ids, err := s.seedCategories(ctx, &catalog)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}
	if err := s.seedProducts(ctx, &catalog, ids); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := s.seedCoupons(ctx, &catalog); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if adminEmail != "" {
		if err := s.seedAdmin(ctx, adminEmail, adminPassword); err != nil {
			return errors.Wrap(err, "seed admin")
		}
	}
	return nil
}

// seedCategories creates missing categories and returns the ids of all of
// them by slug.
func (s *seeder) seedCategories(ctx context.Context, catalog *catalogJSON) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(catalog.Categories))
	for _, c := range catalog.Categories {
		slug := product.Slugify(c.Name)
		existing, err := s.categories.GetCategoryBySlug(ctx, slug)
		switch {
		case err == nil:
			ids[slug] = existing.ID
			continue
		case !errors.Is(err, product.ErrCategoryNotFound):
			return nil, err
		}

		cat := &product.Category{
			ID:          uuid.New(),
			Name:        c.Name,
			Slug:        slug,
			Description: c.Description,
			Active:      true,
			SortOrder:   c.SortOrder,
			CreatedAt:   s.now,
			UpdatedAt:   s.now,
		}
		if err := s.categories.CreateCategory(ctx, cat); err != nil {
			return nil, errors.Wrapf(err, "create %q", slug)
		}
		ids[slug] = cat.ID
		s.lg.Info("Created category", zap.String("slug", slug))
	}
	return ids, nil
}

func (s *seeder) seedProducts(ctx context.Context, catalog *catalogJSON, categories map[string]uuid.UUID) error {
	var created int
	for _, p := range catalog.Products {
		categoryID, ok := categories[p.Category]
		if !ok {
			return errors.Errorf("product %q: unknown category %q", p.Name, p.Category)
		}
		err := s.products.Create(ctx, &product.Product{
			ID:                uuid.New(),
			Name:              p.Name,
			Slug:              product.Slugify(p.Name),
			SKU:               product.NewSKU(),
			ShortDescription:  p.ShortDescription,
			Price:             p.Price,
			OriginalPrice:     p.OriginalPrice,
			StockQuantity:     p.Stock,
			LowStockThreshold: 5,
			CategoryID:        categoryID,
			Brand:             p.Brand,
			Images:            p.Images,
			Tags:              p.Tags,
			Active:            true,
			Featured:          p.Featured,
			RatingAverage:     decimal.Zero,
			CreatedAt:         s.now,
			UpdatedAt:         s.now,
		})
		switch {
		case err == nil:
			created++
		case errors.Is(err, product.ErrDuplicateSlug):
		default:
			return errors.Wrapf(err, "create %q", p.Name)
		}
	}
	s.lg.Info("Seeded products", zap.Int("created", created), zap.Int("total", len(catalog.Products)))
	return nil
}

func (s *seeder) seedCoupons(ctx context.Context, catalog *catalogJSON) error {
	coupons := make([]coupon.Coupon, 0, len(catalog.Coupons))
	for _, c := range catalog.Coupons {
		cp := coupon.Coupon{
			ID:              uuid.New(),
			Code:            coupon.NormalizeCode(c.Code),
			Kind:            c.Kind,
			Value:           c.Value,
			MinimumAmount:   c.MinimumAmount,
			MaximumDiscount: c.MaximumDiscount,
			UsageLimit:      c.UsageLimit,
			ValidFrom:       s.now,
			ValidUntil:      s.now.AddDate(0, 0, c.ValidDays),
			Active:          true,
			CreatedAt:       s.now,
			UpdatedAt:       s.now,
		}
		if err := coupon.Validate(&cp); err != nil {
			return errors.Wrapf(err, "coupon %q", c.Code)
		}
		coupons = append(coupons, cp)
	}
	if err := s.coupons.Upsert(ctx, coupons); err != nil {
		return err
	}
	s.lg.Info("Seeded coupons", zap.Int("count", len(coupons)))
	return nil
}

func (s *seeder) seedAdmin(ctx context.Context, email, password string) error {
	hash, err := user.HashPassword(password, 0)
	if err != nil {
		return err
	}
	err = s.users.CreateUser(ctx, &user.User{
		ID:           uuid.New(),
		Email:        user.NormalizeEmail(email),
		PasswordHash: hash,
		FirstName:    "Store",
		LastName:     "Admin",
		Role:         user.RoleAdmin,
		Active:       true,
		CreatedAt:    s.now,
		UpdatedAt:    s.now,
	})
	switch {
	case err == nil:
		s.lg.Info("Created admin", zap.String("email", email))
		return nil
	case errors.Is(err, user.ErrEmailTaken):
		s.lg.Info("Admin already exists", zap.String("email", email))
		return nil
	default:
		return err
	}
}
