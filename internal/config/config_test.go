package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StorageMemory, cfg.CartStorage)
	assert.Equal(t, cart.FailOpen, cfg.StockPolicy)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.CheckoutEnabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CART_STORAGE", "Redis")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("STOCK_POLICY", "fail-closed")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")
	t.Setenv("CHECKOUT_PHONE", "+5491100000000")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageRedis, cfg.CartStorage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, cart.FailClosed, cfg.StockPolicy)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.True(t, cfg.CheckoutEnabled())
}

func TestLoad_EnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=9000\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("HTTP_PORT", "7000")
	// restored after the test; godotenv only fills unset variables
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown storage", "CART_STORAGE", "dynamo"},
		{"bad duration", "REQUEST_TIMEOUT", "soon"},
		{"bad port", "POSTGRES_PORT", "five"},
		{"bad policy", "STOCK_POLICY", "maybe"},
		{"bad bool", "LOG_DEV", "sometimes"},
		{"non-positive idle timeout", "SESSION_IDLE_TIMEOUT", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
