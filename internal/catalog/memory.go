package catalog

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

// MemoryCatalog keeps products in memory in insertion order.
type MemoryCatalog struct {
	mu       sync.RWMutex
	order    []string
	products map[string]*domain.Product // productID -> product
	variants map[domain.LineKey]string  // cart key -> productID
}

func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{
		products: make(map[string]*domain.Product),
		variants: make(map[domain.LineKey]string),
	}
	for _, p := range products {
		c.put(p)
	}
	return c
}

func (c *MemoryCatalog) List(_ context.Context) ([]*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*domain.Product, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, clone(c.products[id]))
	}
	return result, nil
}

func (c *MemoryCatalog) Get(_ context.Context, productID, variantKey string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.variants[domain.LineKey{ProductID: productID, VariantKey: variantKey}]
	if !ok {
		return nil, ErrProductNotFound
	}
	return clone(c.products[id]), nil
}

func (c *MemoryCatalog) Upsert(_ context.Context, products ...domain.Product) error {
	for _, p := range products {
		if err := validate(p); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		c.put(p)
	}
	return nil
}

// SetStock sets the stock level for a product id
func (c *MemoryCatalog) SetStock(productID string, stock int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock = stock
	return nil
}

func (c *MemoryCatalog) put(p domain.Product) {
	if old, exists := c.products[p.ID]; exists {
		delete(c.variants, old.CartKey())
	} else {
		c.order = append(c.order, p.ID)
	}
	stored := p
	stored.Sizes = append([]string(nil), p.Sizes...)
	c.products[p.ID] = &stored
	c.variants[stored.CartKey()] = p.ID
}

func clone(p *domain.Product) *domain.Product {
	c := *p
	c.Sizes = append([]string(nil), p.Sizes...)
	return &c
}
