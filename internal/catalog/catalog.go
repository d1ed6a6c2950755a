package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product")
)

// Catalog is the read side of the product catalog. Get addresses a product the way a
// cart line does: a plain product by its id, a variant by its parent id and variant key.
type Catalog interface {
	List(ctx context.Context) ([]*domain.Product, error)
	Get(ctx context.Context, productID, variantKey string) (*domain.Product, error)
}

// Writer is implemented by catalogs that accept imports.
type Writer interface {
	Upsert(ctx context.Context, products ...domain.Product) error
}

func validate(p domain.Product) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidProduct)
	case p.Title == "":
		return fmt.Errorf("%w: %s has no title", ErrInvalidProduct, p.ID)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: %s has a negative price", ErrInvalidProduct, p.ID)
	case p.ParentID != "" && p.VariantKey == domain.NoVariant:
		return fmt.Errorf("%w: variant %s has no variant key", ErrInvalidProduct, p.ID)
	}
	return nil
}
