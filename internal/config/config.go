package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/storage"
	"github.com/joho/godotenv"
)

// Storage backends for cart blobs.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTPPort        string
	GRPCPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	SecureCookies   bool

	CartStorage   string
	RedisAddr     string
	RedisPassword string
	MongoURI      string
	MongoDBName   string
	Postgres      storage.Credentials

	CatalogDB   string // sqlite file; empty keeps the catalog in memory
	CatalogFile string // products imported at startup, JSON or YAML

	KafkaBrokers []string // empty disables hand-off publishing and order polling

	StockPolicy      cart.StockPolicy
	CheckoutEndpoint string
	CheckoutPhone    string
	CheckoutLocale   string

	SessionIdleTimeout time.Duration

	LogLevel string
	LogDev   bool
}

// Load reads the configuration from the environment. Values in envFiles are loaded
// first without overriding variables that are already set; missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var errs []error
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50052"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		SecureCookies:   getBool("SECURE_COOKIES", false, &errs),

		CartStorage:   strings.ToLower(getEnv("CART_STORAGE", StorageMemory)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:   getEnv("MONGO_DB_NAME", "cartdb"),
		Postgres: storage.Credentials{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432, &errs),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "storefront"),
		},

		CatalogDB:   getEnv("CATALOG_DB", ""),
		CatalogFile: getEnv("CATALOG_FILE", ""),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),

		CheckoutEndpoint: getEnv("CHECKOUT_ENDPOINT", "https://wa.me"),
		CheckoutPhone:    getEnv("CHECKOUT_PHONE", ""),
		CheckoutLocale:   getEnv("CHECKOUT_LOCALE", "es-AR"),

		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute, &errs),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDev:   getBool("LOG_DEV", false, &errs),
	}

	policy, err := cart.ParseStockPolicy(getEnv("STOCK_POLICY", "fail-open"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.StockPolicy = policy

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CartStorage {
	case StorageMemory, StorageRedis, StorageMongo, StoragePostgres:
	default:
		return fmt.Errorf("unknown CART_STORAGE %q", c.CartStorage)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return errors.New("SESSION_IDLE_TIMEOUT must be positive")
	}
	return nil
}

// CheckoutEnabled reports whether checkout links can be built.
func (c *Config) CheckoutEnabled() bool {
	return c.CheckoutEndpoint != "" && c.CheckoutPhone != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
