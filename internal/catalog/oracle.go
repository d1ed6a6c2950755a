package catalog

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Oracle answers stock questions for the cart. It never fails: lookup errors, an open
// breaker and unknown products all report the stock as unknown.
type Oracle struct {
	catalog Catalog
	breaker *gobreaker.CircuitBreaker[*domain.Product]
	group   singleflight.Group
	log     *zap.Logger
}

func NewOracle(c Catalog, cfg circuitbreaker.Config, log *zap.Logger) *Oracle {
	log = logger.OrNop(log)
	return &Oracle{
		catalog: c,
		breaker: circuitbreaker.New[*domain.Product](cfg, log),
		log:     log,
	}
}

func (o *Oracle) StockFor(ctx context.Context, productID, variantKey string) (int, bool) {
	key := domain.LineKey{ProductID: productID, VariantKey: variantKey}.String()

	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		return o.breaker.Execute(func() (*domain.Product, error) {
			p, err := o.catalog.Get(ctx, productID, variantKey)
			if errors.Is(err, ErrProductNotFound) {
				// a missing product is an answer, not a catalog failure
				return nil, nil
			}
			return p, err
		})
	})
	if err != nil {
		logger.WithContext(ctx, o.log).Warn("stock lookup failed",
			zap.String("product", key), zap.Error(err))
		return 0, false
	}

	p, _ := v.(*domain.Product)
	if p == nil {
		return 0, false
	}
	return p.Stock, true
}

// State exposes the breaker state for health reporting.
func (o *Oracle) State() gobreaker.State {
	return o.breaker.State()
}
