package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HandoffPublisher receives checkout hand-offs; *publisher.HandoffPublisher satisfies it.
type HandoffPublisher interface {
	Publish(ctx context.Context, event publisher.HandoffEvent) error
}

type CartHandler struct {
	sessions *session.Registry
	products catalog.Catalog
	timeout  time.Duration

	handoff          HandoffPublisher
	checkoutEndpoint string
	checkoutPhone    string
	now              func() time.Time
	log              *zap.Logger
}

type CartHandlerOption func(*CartHandler)

func WithHandoffPublisher(p HandoffPublisher) CartHandlerOption {
	return func(h *CartHandler) { h.handoff = p }
}

// WithCheckoutTarget sets the messaging endpoint and phone number the checkout link
// points to. Without it the checkout response has no url.
func WithCheckoutTarget(endpoint, phone string) CartHandlerOption {
	return func(h *CartHandler) {
		h.checkoutEndpoint = endpoint
		h.checkoutPhone = phone
	}
}

func WithHandlerClock(now func() time.Time) CartHandlerOption {
	return func(h *CartHandler) { h.now = now }
}

func WithHandlerLogger(l *zap.Logger) CartHandlerOption {
	return func(h *CartHandler) { h.log = logger.OrNop(l) }
}

// NewCartHandler serves the carts held by sessions. products may be nil, in which case
// added lines are described entirely by the request body.
func NewCartHandler(sessions *session.Registry, products catalog.Catalog, timeout time.Duration, opts ...CartHandlerOption) *CartHandler {
	h := &CartHandler{
		sessions: sessions,
		products: products,
		timeout:  timeout,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type AddItemRequestDTO struct {
	ProductID     string          `json:"product_id"`
	VariantKey    string          `json:"variant_key"`
	Quantity      int             `json:"quantity"`
	Title         string          `json:"title"`
	Price         json.RawMessage `json:"price"`
	Sizes         []string        `json:"sizes"`
	SelectedSizes []string        `json:"selected_sizes"`
}

type ChangeQuantityRequestDTO struct {
	Delta      int    `json:"delta"`
	VariantKey string `json:"variant_key"`
}

type SetSizesRequestDTO struct {
	Sizes      []string `json:"sizes"`
	VariantKey string   `json:"variant_key"`
}

type LineDTO struct {
	ProductID      string          `json:"product_id"`
	VariantKey     string          `json:"variant_key,omitempty"`
	Title          string          `json:"title"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Quantity       int             `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	AvailableSizes []string        `json:"available_sizes"`
	SelectedSizes  []string        `json:"selected_sizes"`
	Gender         string          `json:"gender,omitempty"`
	Color          string          `json:"color,omitempty"`
	AddedAt        time.Time       `json:"added_at"`
}

type SummaryDTO struct {
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	LineCount  int             `json:"line_count"`
}

type CartResponse struct {
	Items       []LineDTO  `json:"items"`
	Summary     SummaryDTO `json:"summary"`
	Persistence string     `json:"persistence"`
}

type MutationResponse struct {
	CartResponse
	Applied bool `json:"applied"`
}

type AdjustmentDTO struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key,omitempty"`
	Title      string `json:"title"`
	From       int    `json:"from"`
	To         int    `json:"to"`
}

type ReconcileResponse struct {
	CartResponse
	Adjustments []AdjustmentDTO `json:"adjustments"`
}

type CheckoutResponse struct {
	Text      string `json:"text"`
	URL       string `json:"url,omitempty"`
	HandoffID string `json:"handoff_id,omitempty"`
}

func newCartResponse(s *cart.Store) CartResponse {
	lines := s.Lines()
	items := make([]LineDTO, 0, len(lines))
	for _, l := range lines {
		items = append(items, LineDTO{
			ProductID:      l.ProductID,
			VariantKey:     l.VariantKey,
			Title:          l.Title,
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			Subtotal:       l.Subtotal(),
			AvailableSizes: nonNil(l.AvailableSizes),
			SelectedSizes:  nonNil(l.SelectedSizes),
			Gender:         l.ExtraString("gender"),
			Color:          l.ExtraString("color"),
			AddedAt:        l.AddedAt,
		})
	}

	summary := s.Summary()
	persistence := "ok"
	if s.Degraded() {
		persistence = "degraded"
	}
	return CartResponse{
		Items: items,
		Summary: SummaryDTO{
			TotalItems: summary.TotalItems,
			Subtotal:   summary.Subtotal,
			LineCount:  summary.LineCount,
		},
		Persistence: persistence,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// withCart runs fn on the caller's cart under the request timeout.
func (h *CartHandler) withCart(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, s *cart.Store) error) bool {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := SessionIDFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}

	err := h.sessions.Do(ctx, sessionID, func(s *cart.Store) error {
		return fn(ctx, s)
	})
	if err != nil {
		handleCartError(w, err)
		return false
	}
	return true
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	var resp CartResponse
	ok := h.withCart(w, r, func(_ context.Context, s *cart.Store) error {
		resp = newCartResponse(s)
		return nil
	})
	if ok {
		respondJSON(w, http.StatusOK, resp)
	}
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	addReq, err := h.describe(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	var res cart.MutationResult
	var resp CartResponse
	ok := h.withCart(w, r, func(ctx context.Context, s *cart.Store) error {
		var err error
		if res, err = s.AddOrIncrement(ctx, addReq); err != nil {
			return err
		}
		resp = newCartResponse(s)
		return nil
	})
	if !ok {
		return
	}
	if res.StockExceeded != nil {
		respondStockExceeded(w, *res.StockExceeded)
		return
	}
	respondJSON(w, http.StatusCreated, MutationResponse{CartResponse: resp, Applied: res.Applied})
}

// describe fills an add request from the catalog, falling back to the request body
// when the product is unknown or the catalog cannot be reached.
func (h *CartHandler) describe(ctx context.Context, req AddItemRequestDTO) (cart.AddRequest, error) {
	addReq := cart.AddRequest{
		ProductID:     req.ProductID,
		VariantKey:    req.VariantKey,
		Quantity:      req.Quantity,
		SelectedSizes: req.SelectedSizes,
	}

	if h.products != nil {
		p, err := h.products.Get(ctx, req.ProductID, req.VariantKey)
		switch {
		case err == nil:
			addReq.Title = p.Title
			addReq.UnitPrice = p.Price
			addReq.AvailableSizes = p.Sizes
			addReq.Extra = productExtras(p)
			return addReq, nil
		case !errors.Is(err, catalog.ErrProductNotFound):
			logger.WithContext(ctx, h.log).Warn("catalog lookup failed, using request body",
				zap.String("product_id", req.ProductID), zap.Error(err))
		}
	}

	price, err := domain.ParsePrice(req.Price)
	if err != nil {
		return cart.AddRequest{}, err
	}
	addReq.Title = req.Title
	addReq.UnitPrice = price
	addReq.AvailableSizes = req.Sizes
	return addReq, nil
}

func productExtras(p *domain.Product) map[string]json.RawMessage {
	extra := make(map[string]json.RawMessage)
	for name, value := range map[string]string{"gender": p.Gender, "color": p.Color} {
		if value == "" {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			continue
		}
		extra[name] = raw
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	var req ChangeQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Delta == 0 {
		respondError(w, http.StatusBadRequest, "invalid_delta", "delta must not be zero")
		return
	}
	key := domain.LineKey{ProductID: chi.URLParam(r, "productID"), VariantKey: req.VariantKey}

	var res cart.MutationResult
	var resp CartResponse
	ok := h.withCart(w, r, func(ctx context.Context, s *cart.Store) error {
		var err error
		if res, err = s.ChangeQuantity(ctx, key, req.Delta); err != nil {
			return err
		}
		resp = newCartResponse(s)
		return nil
	})
	if !ok {
		return
	}
	if res.StockExceeded != nil {
		respondStockExceeded(w, *res.StockExceeded)
		return
	}
	respondJSON(w, http.StatusOK, MutationResponse{CartResponse: resp, Applied: res.Applied})
}

func (h *CartHandler) SetSizes(w http.ResponseWriter, r *http.Request) {
	var req SetSizesRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	key := domain.LineKey{ProductID: chi.URLParam(r, "productID"), VariantKey: req.VariantKey}

	var res cart.MutationResult
	var resp CartResponse
	ok := h.withCart(w, r, func(ctx context.Context, s *cart.Store) error {
		var err error
		if res, err = s.SetSelectedSizes(ctx, key, req.Sizes); err != nil {
			return err
		}
		resp = newCartResponse(s)
		return nil
	})
	if ok {
		respondJSON(w, http.StatusOK, MutationResponse{CartResponse: resp, Applied: res.Applied})
	}
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key := domain.LineKey{
		ProductID:  chi.URLParam(r, "productID"),
		VariantKey: r.URL.Query().Get("variant"),
	}

	var res cart.MutationResult
	var resp CartResponse
	ok := h.withCart(w, r, func(ctx context.Context, s *cart.Store) error {
		res = s.Remove(ctx, key)
		resp = newCartResponse(s)
		return nil
	})
	if ok {
		respondJSON(w, http.StatusOK, MutationResponse{CartResponse: resp, Applied: res.Applied})
	}
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	var res cart.MutationResult
	var resp CartResponse
	ok := h.withCart(w, r, func(ctx context.Context, s *cart.Store) error {
		res = s.Clear(ctx)
		resp = newCartResponse(s)
		return nil
	})
	if ok {
		respondJSON(w, http.StatusOK, MutationResponse{CartResponse: resp, Applied: res.Applied})
	}
}

func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var adjustments []cart.Adjustment
	var resp CartResponse
	ok := h.withCart(w, r, func(ctx context.Context, s *cart.Store) error {
		adjustments, _ = s.Reconcile(ctx)
		resp = newCartResponse(s)
		return nil
	})
	if !ok {
		return
	}

	dtos := make([]AdjustmentDTO, 0, len(adjustments))
	for _, a := range adjustments {
		dtos = append(dtos, AdjustmentDTO{
			ProductID:  a.Key.ProductID,
			VariantKey: a.Key.VariantKey,
			Title:      a.Title,
			From:       a.From,
			To:         a.To,
		})
	}
	respondJSON(w, http.StatusOK, ReconcileResponse{CartResponse: resp, Adjustments: dtos})
}

// Checkout returns the checkout message and link. When a hand-off publisher is set the
// cart is also published; a failed publish does not fail the request.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var lines []domain.CartLine
	var text string
	ok := h.withCart(w, r, func(_ context.Context, s *cart.Store) error {
		lines = s.Lines()
		text = s.ToCheckoutText()
		return nil
	})
	if !ok {
		return
	}
	if len(lines) == 0 {
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
		return
	}

	resp := CheckoutResponse{Text: text}
	if h.checkoutEndpoint != "" {
		link, err := cart.CheckoutLink(h.checkoutEndpoint, h.checkoutPhone, text)
		if err != nil {
			logger.WithContext(r.Context(), h.log).Error("failed to build checkout link", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "internal_error", "checkout link unavailable")
			return
		}
		resp.URL = link
	}

	if h.handoff != nil {
		sessionID := SessionIDFromContext(r.Context())
		event := publisher.NewHandoffEvent(uuid.NewString(), sessionID, lines, text, h.now())

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.handoff.Publish(ctx, event); err != nil {
			logger.WithContext(ctx, h.log).Warn("checkout handoff not published",
				zap.String("session_id", sessionID), zap.Error(err))
		} else {
			resp.HandoffID = event.HandoffID
		}
	}

	respondJSON(w, http.StatusOK, resp)
}
