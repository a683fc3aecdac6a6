//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/repository"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	host, err := pg.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "host: %v\n", err)
		return 1
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "port: %v\n", err)
		return 1
	}

	url := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())
	pool, err = repository.NewPool(ctx, url, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}
	return m.Run()
}

type fixture struct {
	db       *repository.DB
	users    *repository.UserRepository
	products *repository.ProductRepository
	carts    *repository.CartRepository
	coupons  *repository.CouponRepository
	orders   *repository.OrderRepository
	reviews  *repository.ReviewRepository
	category product.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := repository.NewDB(pool)
	f := &fixture{
		db:       db,
		users:    repository.NewUserRepository(db),
		products: repository.NewProductRepository(db),
		carts:    repository.NewCartRepository(db),
		coupons:  repository.NewCouponRepository(db),
		orders:   repository.NewOrderRepository(db),
		reviews:  repository.NewReviewRepository(db),
	}

	slug := "cat-" + uuid.NewString()[:8]
	now := time.Now().UTC()
	f.category = product.Category{ID: uuid.New(), Name: slug, Slug: slug, Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repository.NewCategoryRepository(db).CreateCategory(context.Background(), &f.category))
	return f
}

func (f *fixture) user(t *testing.T) *user.User {
	t.Helper()
	now := time.Now().UTC()
	u := &user.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Role:         user.RoleCustomer,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) product(t *testing.T, price string, stock int) *product.Product {
	t.Helper()
	now := time.Now().UTC()
	name := "Item " + uuid.NewString()[:8]
	p := &product.Product{
		ID:            uuid.New(),
		Name:          name,
		Slug:          product.Slugify(name),
		SKU:           product.NewSKU(),
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		CategoryID:    f.category.ID,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f *fixture) addToCart(t *testing.T, userID, productID uuid.UUID, qty int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.carts.AddItem(context.Background(), &cart.Item{
		ID: uuid.New(), UserID: userID, ProductID: productID, Quantity: qty, CreatedAt: now, UpdatedAt: now,
	}))
}

func (f *fixture) orderService(t *testing.T) *order.Service {
	t.Helper()
	s, err := order.NewService(order.Deps{
		Orders:  f.orders,
		Carts:   f.carts,
		Coupons: f.coupons,
		Stock:   f.products,
		Tx:      f.db,
		Events:  events.Nop{},
	}, order.Options{
		Tax:      order.RateTax{Rate: decimal.RequireFromString("0.10"), Basis: order.BasisDiscounted},
		Shipping: order.ShippingPolicy{Flat: decimal.NewFromInt(5)},
	})
	require.NoError(t, err)
	return s
}

var shipTo = order.Address{FullName: "Ada Lovelace", Line1: "1 Main St", City: "London", Country: "GB"}

func TestCart_AddMergesQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	p := f.product(t, "3.50", 10)

	f.addToCart(t, u.ID, p.ID, 2)
	f.addToCart(t, u.ID, p.ID, 3)

	lines, err := f.carts.ListCart(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, p.Name, lines[0].Product.Name)
}

func TestCheckout_PersistsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	p := f.product(t, "20.00", 4)
	f.addToCart(t, u.ID, p.ID, 3)

	s := f.orderService(t)
	o, err := s.Checkout(ctx, u.ID, order.CheckoutRequest{PaymentMethod: order.PaymentStripe, Shipping: shipTo})
	require.NoError(t, err)

	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.True(t, decimal.RequireFromString("71").Equal(got.TotalAmount), "got %s", got.TotalAmount)
	assert.Equal(t, shipTo, got.Shipping)
	assert.Equal(t, shipTo, got.Billing)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 3, got.Items[0].Quantity)
	require.NoError(t, order.VerifyTotals(got))

	stock, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock.StockQuantity)

	lines, err := f.carts.ListCart(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	history, err := f.orders.ListStatusChanges(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.StatusPending, history[0].Status)
}

func TestCheckout_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	plenty := f.product(t, "1.00", 10)
	scarce := f.product(t, "1.00", 1)
	f.addToCart(t, u.ID, plenty.ID, 2)
	f.addToCart(t, u.ID, scarce.ID, 2)

	_, err := f.orderService(t).Checkout(ctx, u.ID, order.CheckoutRequest{PaymentMethod: order.PaymentPaypal, Shipping: shipTo})
	require.ErrorIs(t, err, product.ErrInsufficientStock)

	got, err := f.products.GetByID(ctx, plenty.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.StockQuantity)

	orders, err := f.orders.ListOrders(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	lines, err := f.carts.ListCart(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestCheckout_SingleUseCouponUnderContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "50.00", 100)

	limit := 1
	code := "ONCE" + uuid.NewString()[:6]
	_, err := coupon.NewService(f.coupons).Create(ctx, &coupon.Coupon{
		Code:       code,
		Kind:       coupon.KindPercentage,
		Value:      decimal.NewFromInt(10),
		UsageLimit: &limit,
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(time.Hour),
		Active:     true,
	})
	require.NoError(t, err)

	const buyers = 5
	users := make([]*user.User, buyers)
	for i := range users {
		users[i] = f.user(t)
		f.addToCart(t, users[i].ID, p.ID, 1)
	}

	s := f.orderService(t)
	var (
		wg   sync.WaitGroup
		errs = make([]error, buyers)
	)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Checkout(ctx, users[i].ID, order.CheckoutRequest{
				CouponCode:    code,
				PaymentMethod: order.PaymentStripe,
				Shipping:      shipTo,
			})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		var re *coupon.RejectedError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &re):
			assert.Equal(t, coupon.ReasonExhausted, re.Reason)
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, buyers-1, rejected)

	c, err := f.coupons.FindByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestOrders_DuplicateNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	p := f.product(t, "2.00", 5)

	newOrder := func(number string) *order.Order {
		now := time.Now().UTC()
		return &order.Order{
			ID: uuid.New(), Number: number, UserID: u.ID,
			Status: order.StatusPending, PaymentStatus: order.PaymentPending, PaymentMethod: order.PaymentMpesa,
			Subtotal: decimal.NewFromInt(2), TaxAmount: decimal.Zero, ShippingAmount: decimal.Zero,
			DiscountAmount: decimal.Zero, TotalAmount: decimal.NewFromInt(2),
			Shipping: shipTo, Billing: shipTo, CreatedAt: now, UpdatedAt: now,
			Items: []order.Item{{
				ID: uuid.New(), ProductID: p.ID, ProductName: p.Name, ProductPrice: p.Price,
				Quantity: 1, TotalPrice: p.Price,
			}},
		}
	}

	number := order.NewNumberer().Next()
	require.NoError(t, f.orders.CreateOrder(ctx, newOrder(number)))
	require.ErrorIs(t, f.orders.CreateOrder(ctx, newOrder(number)), order.ErrDuplicateNumber)
}

func TestReviews_PurchaseAndRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	p := f.product(t, "9.99", 3)
	f.addToCart(t, u.ID, p.ID, 1)

	s := f.orderService(t)
	o, err := s.Checkout(ctx, u.ID, order.CheckoutRequest{PaymentMethod: order.PaymentStripe, Shipping: shipTo})
	require.NoError(t, err)

	bought, err := f.reviews.HasDeliveredPurchase(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, bought)

	admin := f.user(t).ID
	_, err = s.MarkPaid(ctx, o.ID, "pay_1")
	require.NoError(t, err)
	for _, st := range []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
		_, err = s.UpdateStatus(ctx, o.ID, st, "", admin)
		require.NoError(t, err)
	}

	bought, err = f.reviews.HasDeliveredPurchase(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, bought)

	reviews := product.NewReviewService(f.reviews, f.products, f.db)
	r, err := reviews.Create(ctx, u.ID, p.ID, product.ReviewInput{Rating: 4})
	require.NoError(t, err)
	assert.True(t, r.Verified)

	_, err = reviews.Create(ctx, u.ID, p.ID, product.ReviewInput{Rating: 5})
	require.ErrorIs(t, err, product.ErrDuplicateReview)

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(4).Equal(got.RatingAverage))
	assert.Equal(t, 1, got.RatingCount)
}

func TestReviews_ConcurrentRatingRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "15.00", 10)
	reviews := product.NewReviewService(f.reviews, f.products, f.db)

	ratings := []int{5, 4, 3, 5, 2, 1, 4, 5}
	users := make([]*user.User, len(ratings))
	for i := range users {
		users[i] = f.user(t)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(ratings))
	)
	for i := range ratings {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reviews.Create(ctx, users[i].ID, p.ID, product.ReviewInput{Rating: ratings[i]})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, len(ratings), got.RatingCount)
	assert.True(t, decimal.RequireFromString("3.63").Equal(got.RatingAverage), "got %s", got.RatingAverage)
}

func TestProducts_UpdateKeepsConcurrentReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "8.00", 10)

	stale, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.products.ReserveStock(ctx, p.ID, 2))

	stale.Description = "now with a longer cable"
	require.NoError(t, f.products.Update(ctx, stale, nil))
	assert.Equal(t, 8, stale.StockQuantity)

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.StockQuantity)
	assert.Equal(t, "now with a longer cable", got.Description)

	restock := 30
	require.NoError(t, f.products.Update(ctx, got, &restock))
	assert.Equal(t, 30, got.StockQuantity)

	missing := *got
	missing.ID = uuid.New()
	require.ErrorIs(t, f.products.Update(ctx, &missing, nil), product.ErrNotFound)
}

func TestCheckout_ConcurrentSameCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	p := f.product(t, "12.00", 10)
	f.addToCart(t, u.ID, p.ID, 2)

	s := f.orderService(t)
	const attempts = 3
	var (
		wg   sync.WaitGroup
		errs = make([]error, attempts)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Checkout(ctx, u.ID, order.CheckoutRequest{PaymentMethod: order.PaymentStripe, Shipping: shipTo})
		}(i)
	}
	wg.Wait()

	var placed int
	for _, err := range errs {
		switch {
		case err == nil:
			placed++
		default:
			assert.ErrorIs(t, err, order.ErrEmptyCart)
		}
	}
	assert.Equal(t, 1, placed)

	orders, err := f.orders.ListOrders(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.StockQuantity)
}

func TestCategories_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	categories := repository.NewCategoryRepository(f.db)

	c := f.category
	c.Name = "Renamed " + c.Slug
	c.Description = "moved"
	c.Active = false
	c.SortOrder = 7
	require.NoError(t, categories.UpdateCategory(ctx, &c))

	got, err := categories.GetCategoryBySlug(ctx, c.Slug)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.False(t, got.Active)
	assert.Equal(t, 7, got.SortOrder)

	missing := c
	missing.ID = uuid.New()
	missing.Slug = "missing-" + uuid.NewString()[:8]
	require.ErrorIs(t, categories.UpdateCategory(ctx, &missing), product.ErrCategoryNotFound)
}

func TestUsers_ListSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t)
	f.user(t)

	got, err := f.users.ListUsers(ctx, user.Filter{Search: u.Email[:12], Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, u.ID, got[0].ID)

	got, err = f.users.ListUsers(ctx, user.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
