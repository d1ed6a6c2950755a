package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

type failingCatalog struct {
	calls atomic.Int32
}

func (f *failingCatalog) List(context.Context) ([]*domain.Product, error) {
	return nil, errors.New("catalog down")
}

func (f *failingCatalog) Get(context.Context, string, string) (*domain.Product, error) {
	f.calls.Add(1)
	return nil, errors.New("catalog down")
}

func TestOracle_KnownAndUnknown(t *testing.T) {
	c := NewMemoryCatalog(product("P1", 4), variant("V1", "B1", "Rojo", 0))
	o := NewOracle(c, circuitbreaker.DefaultConfig("catalog"), nil)
	ctx := context.Background()

	stock, known := o.StockFor(ctx, "P1", domain.NoVariant)
	assert.True(t, known)
	assert.Equal(t, 4, stock)

	stock, known = o.StockFor(ctx, "B1", "Rojo")
	assert.True(t, known)
	assert.Zero(t, stock)

	_, known = o.StockFor(ctx, "missing", domain.NoVariant)
	assert.False(t, known)
}

func TestOracle_NotFoundDoesNotTripBreaker(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("catalog")
	cfg.MaxFailures = 1
	o := NewOracle(NewMemoryCatalog(), cfg, nil)

	for i := 0; i < 3; i++ {
		_, known := o.StockFor(context.Background(), "missing", domain.NoVariant)
		assert.False(t, known)
	}
	assert.Equal(t, gobreaker.StateClosed, o.State())
}

func TestOracle_OpenBreakerSkipsCatalog(t *testing.T) {
	cfg := circuitbreaker.Config{Name: "catalog", MaxFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1}
	c := &failingCatalog{}
	o := NewOracle(c, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, known := o.StockFor(ctx, "P1", domain.NoVariant)
		assert.False(t, known)
	}
	assert.Equal(t, int32(2), c.calls.Load())
	assert.Equal(t, gobreaker.StateOpen, o.State())
}
