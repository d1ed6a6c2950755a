package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Variants point at their group through ParentID and are
// addressed in the cart as (ParentID, VariantKey).
type Product struct {
	ID         string          `json:"id"`
	ParentID   string          `json:"parentId,omitempty"`
	VariantKey string          `json:"variantKey,omitempty"`
	Title      string          `json:"title"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Category   string          `json:"category"`
	Section    string          `json:"section,omitempty"` // general grouping above category, e.g. "accesorios"
	ImageURL   string          `json:"imageUrl,omitempty"`
	Sizes      []string        `json:"sizes"`
	Gender     string          `json:"gender,omitempty"`
	Color      string          `json:"color,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func (p Product) IsVariant() bool {
	return p.ParentID != "" && p.VariantKey != NoVariant
}

// CartKey is the key under which this product is stored in a cart.
func (p Product) CartKey() LineKey {
	if p.IsVariant() {
		return LineKey{ProductID: p.ParentID, VariantKey: p.VariantKey}
	}
	return LineKey{ProductID: p.ID, VariantKey: NoVariant}
}

func (p Product) InStock() bool {
	return p.Stock > 0
}
