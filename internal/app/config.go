package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification drivers.
const (
	NotifyNone  = "none"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), a .env file, flags, or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DBMaxConns  int32  `default:"10" usage:"Maximum PostgreSQL connections" flag:"db-max-conns"`
	Auth        AuthConfig
	Checkout    CheckoutConfig
	Payments    PaymentsConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	UserLimit   UserLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string        `usage:"HS256 secret shared with the identity service" flag:"jwt-secret"`
	Issuer string        `default:"" usage:"Expected token issuer, empty to skip the check"`
	Leeway time.Duration `default:"30s" usage:"Allowed clock skew for exp/nbf"`
}

// CheckoutConfig holds pricing defaults.
type CheckoutConfig struct {
	DefaultShippingMinor  int64 `default:"4900" usage:"Shipping fee in paisa when the client sends none"`
	FreeShippingOverMinor int64 `default:"0" usage:"Subtotal in paisa from which shipping is free, 0 disables"`
	OrderCodeAttempts     int   `default:"8" usage:"Random order code attempts before the timestamp fallback"`
}

// PaymentsConfig configures the payment gateway callback.
type PaymentsConfig struct {
	CallbackSecret string `usage:"HMAC secret of payment callbacks" flag:"callback-secret"`
}

// NotifyConfig selects where settled orders are published.
type NotifyConfig struct {
	Driver        string   `default:"none" usage:"Notification driver: none, redis or kafka"`
	RedisAddr     string   `default:"localhost:6379" usage:"Redis address"`
	RedisPassword string   `default:"" usage:"Redis password"`
	RedisQueue    string   `default:"checkout:events:orders" usage:"Redis list for settlement events"`
	KafkaBrokers  []string `default:"localhost:9092" usage:"Kafka seed brokers"`
	KafkaTopic    string   `default:"checkout.orders.settled" usage:"Kafka topic for settlement events"`
}

// RateLimitConfig controls a token bucket limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Burst size and requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// UserLimitConfig throttles coupon and order mutations per user.
type UserLimitConfig struct {
	Max    int           `default:"20" usage:"Burst size and mutations per window per user"`
	Window time.Duration `default:"1m" usage:"Per-user window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then environment variables, YAML config files and
// flags, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix:        "KART",
		AllowUnknownEnvs: true,
		Files:            []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Auth.Secret == "" {
		return errors.New("jwt secret is required: set KART_AUTH_SECRET")
	}
	switch c.Notify.Driver {
	case NotifyNone, NotifyRedis:
	case NotifyKafka:
		if len(c.Notify.KafkaBrokers) == 0 {
			return errors.New("kafka driver needs at least one broker")
		}
	default:
		return errors.Errorf("unknown notify driver %q", c.Notify.Driver)
	}
	if c.Checkout.DefaultShippingMinor < 0 || c.Checkout.FreeShippingOverMinor < 0 {
		return errors.New("shipping amounts must not be negative")
	}
	return nil
}
