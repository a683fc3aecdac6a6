//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/health"
)

var (
	baseURL    string
	httpClient = &http.Client{Timeout: 10 * time.Second}
	adminEmail = "admin@storefront.test"
)

const adminPassword = "admin-password-1"

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
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

	dsn, err := pg.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "endpoint: %v\n", err)
		return 1
	}
	pool, err := repository.NewPool(ctx, "postgres://store:store@"+dsn+"/store?sslmode=disable", 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pool: %v\n", err)
		return 1
	}
	defer pool.Close()
	if err := repository.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrations: %v\n", err)
		return 1
	}
	db := repository.NewDB(pool)

	if err := createAdmin(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "admin: %v\n", err)
		return 1
	}

	cfg := &Config{
		JWT:       JWTConfig{Secret: "integration-secret-0123456789abcdef", TTL: time.Hour, Issuer: "storefront-test"},
		Tax:       TaxConfig{Rate: "0.10", Basis: "discounted"},
		Shipping:  ShippingConfig{Flat: "5"},
		RateLimit: RateLimitConfig{RPS: 1000, Burst: 1000},
		Login:     LoginConfig{Every: time.Second, Burst: 5, BcryptCost: 4},
		CORS:      CORSConfig{Origins: []string{"*"}, MaxAge: 600},
	}
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", health.PingCheck(db), health.Options{})
	healthSvc.SetReady(true)

	api, err := newAPI(ctx, cfg, db, events.Nop{}, healthSvc, Providers{
		Meter:      metricnoop.NewMeterProvider(),
		Tracer:     tracenoop.NewTracerProvider(),
		Propagator: propagation.TraceContext{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		return 1
	}
	srv := httptest.NewServer(api)
	defer srv.Close()
	baseURL = srv.URL

	return m.Run()
}

func createAdmin(ctx context.Context, db *repository.DB) error {
	hash, err := user.HashPassword(adminPassword, 4)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return repository.NewUserRepository(db).CreateUser(ctx, &user.User{
		ID:           uuid.New(),
		Email:        adminEmail,
		PasswordHash: hash,
		FirstName:    "Store",
		LastName:     "Admin",
		Role:         user.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// HTTP helpers.

func call(t *testing.T, method, path, token string, body any, out any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

type session struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"user"`
}

func login(t *testing.T, email, password string) string {
	t.Helper()
	var s session
	resp := call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password}, &s)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return s.AccessToken
}

// Tests.

func TestMiddleware_RequestID(t *testing.T) {
	resp := call(t, http.MethodGet, "/livez", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+"/readyz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "custom-request-id-12345")
	resp, err = httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "custom-request-id-12345", resp.Header.Get("X-Request-ID"))
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, baseURL+"/api/products", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
}

func TestStorefront_CheckoutAndCancel(t *testing.T) {
	admin := login(t, adminEmail, adminPassword)
	suffix := uuid.NewString()[:8]

	var customer session
	resp := call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":      "buyer-" + suffix + "@storefront.test",
		"password":   "buyer-password",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	}, &customer)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "customer", customer.User.Role)
	buyer := customer.AccessToken

	var category struct {
		ID string `json:"id"`
	}
	resp = call(t, http.MethodPost, "/api/categories", admin, map[string]any{"name": "Lamps " + suffix}, &category)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var lamp struct {
		ID            string  `json:"id"`
		Slug          string  `json:"slug"`
		StockQuantity int     `json:"stock_quantity"`
		Price         float64 `json:"price"`
	}
	resp = call(t, http.MethodPost, "/api/products", admin, map[string]any{
		"name":           "Desk Lamp " + suffix,
		"price":          "40.00",
		"stock_quantity": 5,
		"category_id":    category.ID,
	}, &lamp)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	code := "SAVE20-" + suffix
	resp = call(t, http.MethodPost, "/api/coupons", admin, map[string]any{
		"code":           code,
		"discount_type":  "percentage",
		"discount_value": 20,
		"valid_until":    time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = call(t, http.MethodPost, "/api/coupons", buyer, map[string]any{"code": "NOPE"}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var cartSummary struct {
		Subtotal  float64 `json:"subtotal"`
		ItemCount int     `json:"item_count"`
	}
	resp = call(t, http.MethodPost, "/api/cart/items", buyer, map[string]any{"product_id": lamp.ID, "quantity": 2}, &cartSummary)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.InDelta(t, 80.0, cartSummary.Subtotal, 0.001)
	assert.Equal(t, 2, cartSummary.ItemCount)

	var preview struct {
		Valid    bool    `json:"valid"`
		Discount float64 `json:"discount"`
	}
	resp = call(t, http.MethodPost, "/api/coupons/preview", "", map[string]any{"code": code, "amount": 80}, &preview)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, preview.Valid)
	assert.InDelta(t, 16.0, preview.Discount, 0.001)

	type placedOrder struct {
		ID             string  `json:"id"`
		Number         string  `json:"order_number"`
		Status         string  `json:"status"`
		Subtotal       float64 `json:"subtotal"`
		DiscountAmount float64 `json:"discount_amount"`
		TaxAmount      float64 `json:"tax_amount"`
		ShippingAmount float64 `json:"shipping_amount"`
		TotalAmount    float64 `json:"total_amount"`
	}
	var placed placedOrder
	resp = call(t, http.MethodPost, "/api/orders", buyer, map[string]any{
		"coupon_code":    code,
		"payment_method": "stripe",
		"shipping_address": map[string]string{
			"full_name": "Ada Lovelace",
			"line1":     "1 Analytical St",
			"city":      "London",
			"country":   "GB",
		},
	}, &placed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", placed.Status)
	assert.InDelta(t, 80.0, placed.Subtotal, 0.001)
	assert.InDelta(t, 16.0, placed.DiscountAmount, 0.001)
	assert.InDelta(t, 6.4, placed.TaxAmount, 0.001)
	assert.InDelta(t, 5.0, placed.ShippingAmount, 0.001)
	assert.InDelta(t, 75.4, placed.TotalAmount, 0.001)
	assert.NotEmpty(t, placed.Number)

	var after struct {
		StockQuantity int `json:"stock_quantity"`
	}
	call(t, http.MethodGet, "/api/products/"+lamp.Slug, "", nil, &after)
	assert.Equal(t, 3, after.StockQuantity)

	resp = call(t, http.MethodPost, "/api/orders", buyer, map[string]any{"payment_method": "stripe"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "cart is empty after checkout")

	var mine []placedOrder
	call(t, http.MethodGet, "/api/orders", buyer, nil, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, placed.ID, mine[0].ID)

	var cancelled placedOrder
	resp = call(t, http.MethodPost, "/api/orders/"+placed.ID+"/cancel", buyer, nil, &cancelled)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", cancelled.Status)

	call(t, http.MethodGet, "/api/products/"+lamp.ID, "", nil, &after)
	assert.Equal(t, 5, after.StockQuantity)

	var history []struct {
		Status string `json:"status"`
	}
	call(t, http.MethodGet, "/api/orders/"+placed.ID+"/history", admin, nil, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "pending", history[0].Status)
	assert.Equal(t, "cancelled", history[1].Status)

	resp = call(t, http.MethodPatch, "/api/orders/"+placed.ID+"/status", admin, map[string]string{"status": "shipped"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStorefront_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "unknown product", method: http.MethodGet, path: "/api/products/no-such-product", status: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/api/nothing", status: http.StatusNotFound},
		{name: "anonymous cart", method: http.MethodGet, path: "/api/cart", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := call(t, tt.method, tt.path, "", nil, nil)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}
