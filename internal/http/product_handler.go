package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductHandler struct {
	products catalog.Catalog
	timeout  time.Duration
}

func NewProductHandler(products catalog.Catalog, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
	}
}

type ProductsResponse struct {
	Products []catalog.ProductGroup `json:"products"`
}

// List returns the catalog grouped by variant, optionally filtered by ?category=.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.products.List(ctx)
	if err != nil {
		zap.L().Error("failed to list products", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog unavailable")
		return
	}

	groups := catalog.FilterByCategory(catalog.GroupVariants(products), r.URL.Query().Get("category"))
	respondJSON(w, http.StatusOK, &ProductsResponse{Products: groups})
}

// Get returns one product; ?variant= selects a variant of a grouped product.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.products.Get(ctx, chi.URLParam(r, "productID"), r.URL.Query().Get("variant"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		zap.L().Error("failed to get product", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "catalog_unavailable", "catalog unavailable")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

