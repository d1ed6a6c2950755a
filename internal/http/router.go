package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart           *CartHandler
	Products       *ProductHandler // nil disables the product routes
	Health         func(ctx context.Context) error
	Logger         *zap.Logger
	RequestTimeout time.Duration
	SecureCookies  bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Products != nil {
			r.Route("/products", func(r chi.Router) {
				r.Get("/", cfg.Products.List)
				r.Get("/{productID}", cfg.Products.Get)
			})
		}

		r.Route("/cart", func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.SecureCookies))
			r.Get("/", cfg.Cart.GetCart)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Post("/items", cfg.Cart.AddItem)
			r.Post("/items/{productID}/quantity", cfg.Cart.ChangeQuantity)
			r.Put("/items/{productID}/sizes", cfg.Cart.SetSizes)
			r.Delete("/items/{productID}", cfg.Cart.RemoveItem)
			r.Post("/reconcile", cfg.Cart.Reconcile)
			r.Get("/checkout", cfg.Cart.Checkout)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
