package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DB          DBConfig
	JWT         JWTConfig
	Tax         TaxConfig
	Shipping    ShippingConfig
	RabbitMQ    RabbitMQConfig
	RateLimit   RateLimitConfig
	Login       LoginConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// DBConfig tunes the connection pool.
type DBConfig struct {
	MaxConns int32 `default:"0" usage:"Maximum pool connections, 0 keeps the pgx default" flag:"db-max-conns"`
}

// JWTConfig controls access tokens.
type JWTConfig struct {
	Secret string        `usage:"HMAC secret for access tokens, at least 32 bytes (STORE_JWT_SECRET)" flag:"jwt-secret"`
	TTL    time.Duration `default:"24h" usage:"Access token lifetime" flag:"jwt-ttl"`
	Issuer string        `default:"storefront" usage:"Access token issuer" flag:"jwt-issuer"`
}

// TaxConfig selects the tax rule applied at checkout.
type TaxConfig struct {
	Rate  string `default:"0.16" usage:"Tax rate as a fraction, 0 disables tax" flag:"tax-rate"`
	Basis string `default:"subtotal" usage:"Taxed amount: subtotal or discounted" flag:"tax-basis"`
}

// ShippingConfig is the flat shipping policy.
type ShippingConfig struct {
	Flat     string `default:"0" usage:"Flat shipping fee" flag:"shipping-flat"`
	FreeOver string `default:"" usage:"Subtotal from which shipping is free, empty never" flag:"shipping-free-over"`
}

// RabbitMQConfig enables order event publishing when URL is set.
type RabbitMQConfig struct {
	URL      string `default:"" usage:"AMQP URL, empty disables order events" flag:"rabbitmq-url"`
	Exchange string `default:"storefront.orders" usage:"Topic exchange for order events" flag:"rabbitmq-exchange"`
}

// RateLimitConfig controls the per-client token bucket limiter.
type RateLimitConfig struct {
	RPS   float64 `default:"10" usage:"Sustained requests per second per client" flag:"rate-limit-rps"`
	Burst int     `default:"50" usage:"Request burst per client" flag:"rate-limit-burst"`
}

// LoginConfig throttles login attempts per email.
type LoginConfig struct {
	Every      time.Duration `default:"12s" usage:"One login attempt is refilled per interval" flag:"login-every"`
	Burst      int           `default:"5" usage:"Login attempts allowed at once" flag:"login-burst"`
	BcryptCost int           `default:"0" usage:"bcrypt cost, 0 keeps the library default" flag:"bcrypt-cost"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
	MaxAge  int      `default:"86400" usage:"Preflight cache lifetime in seconds" flag:"cors-max-age"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a .env file when present, then configuration from
// environment variables and YAML config files, and applies platform
// defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt secret is required: set STORE_JWT_SECRET")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// TaxRule builds the checkout tax rule.
func (c TaxConfig) TaxRule() (order.TaxRule, error) {
	rate, err := decimal.NewFromString(c.Rate)
	if err != nil {
		return nil, errors.Wrapf(err, "tax rate %q", c.Rate)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.Errorf("tax rate %s out of range [0, 1)", rate)
	}
	if rate.IsZero() {
		return order.NoTax{}, nil
	}
	basis := order.TaxBasis(c.Basis)
	if basis != order.BasisSubtotal && basis != order.BasisDiscounted {
		return nil, errors.Errorf("unknown tax basis %q", c.Basis)
	}
	return order.RateTax{Rate: rate, Basis: basis}, nil
}

// Policy builds the checkout shipping policy.
func (c ShippingConfig) Policy() (order.ShippingPolicy, error) {
	var p order.ShippingPolicy
	flat, err := decimal.NewFromString(c.Flat)
	if err != nil {
		return p, errors.Wrapf(err, "shipping flat %q", c.Flat)
	}
	if flat.IsNegative() {
		return p, errors.Errorf("negative shipping fee %s", flat)
	}
	p.Flat = flat
	if c.FreeOver != "" {
		over, err := decimal.NewFromString(c.FreeOver)
		if err != nil {
			return p, errors.Wrapf(err, "shipping free over %q", c.FreeOver)
		}
		p.FreeOver = &over
	}
	return p, nil
}
