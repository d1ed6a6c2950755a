package catalog

import (
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

// AllCategories lists every group in FilterByCategory.
const AllCategories = "todos"

// ProductGroup is a listing entry: a plain product, or a parent with its variants.
type ProductGroup struct {
	Product         domain.Product   `json:"product"`
	Variants        []domain.Product `json:"variants"`
	SelectedVariant int              `json:"selectedVariant"`
	HasVariants     bool             `json:"hasVariants"`
}

// Current is the product a listing shows: the selected variant, or the product itself.
func (g ProductGroup) Current() domain.Product {
	if g.HasVariants && g.SelectedVariant < len(g.Variants) {
		return g.Variants[g.SelectedVariant]
	}
	return g.Product
}

// GroupVariants folds variants under their parent in first-seen order. The group's
// product is based on the first variant with stock, or the first variant if none has
// any, and carries the parent id and the title without its " - variant" suffix.
func GroupVariants(products []*domain.Product) []ProductGroup {
	byParent := make(map[string][]domain.Product)
	for _, p := range products {
		if p.IsVariant() {
			byParent[p.ParentID] = append(byParent[p.ParentID], *p)
		}
	}

	groups := make([]ProductGroup, 0, len(products))
	seen := make(map[string]bool)
	for _, p := range products {
		if !p.IsVariant() {
			groups = append(groups, ProductGroup{Product: *p, Variants: []domain.Product{}})
			continue
		}
		if seen[p.ParentID] {
			continue
		}
		seen[p.ParentID] = true

		variants := byParent[p.ParentID]
		selected := 0
		for i, v := range variants {
			if v.InStock() {
				selected = i
				break
			}
		}

		base := variants[selected]
		base.ID = p.ParentID
		base.ParentID = ""
		base.VariantKey = domain.NoVariant
		base.Title, _, _ = strings.Cut(p.Title, " - ")

		groups = append(groups, ProductGroup{
			Product:         base,
			Variants:        variants,
			SelectedVariant: selected,
			HasVariants:     true,
		})
	}
	return groups
}

// FilterByCategory keeps the groups whose current product matches category, either by
// category id or by general section. Empty or AllCategories keeps everything.
func FilterByCategory(groups []ProductGroup, category string) []ProductGroup {
	if category == "" || category == AllCategories {
		return groups
	}

	result := make([]ProductGroup, 0, len(groups))
	for _, g := range groups {
		cur := g.Current()
		if cur.Category == category || cur.Section == category {
			result = append(result, g)
		}
	}
	return result
}
