package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DB.MaxConns)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := repository.NewDB(pool)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", health.PingCheck(db), health.Options{Timeout: 5 * time.Second})
	healthSvc.AddLivenessCheck("goroutines", health.GoroutineCountCheck(10000), health.Options{Timeout: time.Second})

	// Order events go to RabbitMQ when configured.
	var publisher order.Publisher = events.Nop{}
	if cfg.RabbitMQ.URL != "" {
		p, err := events.Dial(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return errors.Wrap(err, "connect rabbitmq")
		}
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close rabbitmq", zap.Error(err))
			}
		}()
		healthSvc.AddReadinessCheck("rabbitmq", p.Check, health.Options{})
		publisher = p
		lg.Info("Publishing order events", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	api, err := newAPI(ctx, cfg, db, publisher, healthSvc, Providers{
		Meter:      m.MeterProvider(),
		Tracer:     m.TracerProvider(),
		Propagator: m.TextMapPropagator(),
	})
	if err != nil {
		healthSvc.Stop()
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           api,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// Providers are the telemetry providers used by the API.
type Providers struct {
	Meter      metric.MeterProvider
	Tracer     trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// newAPI assembles repositories, services and the HTTP stack on top of db.
func newAPI(
	ctx context.Context,
	cfg *Config,
	db *repository.DB,
	publisher order.Publisher,
	healthSvc *health.Health,
	tp Providers,
) (http.Handler, error) {
	tax, err := cfg.Tax.TaxRule()
	if err != nil {
		return nil, errors.Wrap(err, "tax config")
	}
	shipping, err := cfg.Shipping.Policy()
	if err != nil {
		return nil, errors.Wrap(err, "shipping config")
	}
	tokens, err := user.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)
	if err != nil {
		return nil, errors.Wrap(err, "jwt config")
	}

	// Repositories.
	users := repository.NewUserRepository(db)
	categories := repository.NewCategoryRepository(db)
	products := repository.NewProductRepository(db)
	reviews := repository.NewReviewRepository(db)
	wishlist := repository.NewWishlistRepository(db)
	carts := repository.NewCartRepository(db)
	coupons := repository.NewCouponRepository(db)
	orders := repository.NewOrderRepository(db)

	// Domain services.
	orderService, err := order.NewService(order.Deps{
		Orders:  orders,
		Carts:   carts,
		Coupons: coupons,
		Stock:   products,
		Tx:      db,
		Events:  publisher,
	}, order.Options{
		Tax:            tax,
		Shipping:       shipping,
		MeterProvider:  tp.Meter,
		TracerProvider: tp.Tracer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	h := handler.New(handler.Services{
		Accounts:  user.NewService(users, tokens, user.NewThrottle(cfg.Login.Every, cfg.Login.Burst), cfg.Login.BcryptCost),
		Catalog:   product.NewCatalogService(products, categories),
		Reviews:   product.NewReviewService(reviews, products, db),
		Wishlists: product.NewWishlistService(wishlist, products),
		Carts:     cart.NewService(carts, products),
		Coupons:   coupon.NewService(coupons),
		Orders:    orderService,
	})

	// Router: health endpoints + API routes on one server.
	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/", h.Router(httpmiddleware.LogRequests()))

	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
			MaxAge:       cfg.CORS.MaxAge,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("storefront-api", tp.Tracer, tp.Meter, tp.Propagator),
	), nil
}
