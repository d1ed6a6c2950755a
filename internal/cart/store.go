package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/persistence"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidInput     = errors.New("invalid product")
	ErrLineNotFound     = errors.New("cart line not found")
	ErrStockUnavailable = errors.New("stock cannot be verified")
)

// Persister stores the whole line list of one cart.
type Persister interface {
	Load(ctx context.Context) persistence.LoadResult
	Save(ctx context.Context, lines []domain.CartLine) persistence.SaveResult
	Degraded() bool
}

// StockOracle reports the stock of a cart key; known is false when it cannot tell.
type StockOracle interface {
	StockFor(ctx context.Context, productID, variantKey string) (stock int, known bool)
}

// StockPolicy decides what quantity increases do when stock is unknown.
type StockPolicy int

const (
	FailOpen StockPolicy = iota
	FailClosed
)

func (p StockPolicy) String() string {
	if p == FailClosed {
		return "fail-closed"
	}
	return "fail-open"
}

// ParseStockPolicy accepts "fail-open" and "fail-closed".
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-open", "open":
		return FailOpen, nil
	case "fail-closed", "closed":
		return FailClosed, nil
	}
	return FailOpen, fmt.Errorf("unknown stock policy %q", s)
}

// StockExceeded is returned when an increase would go over the known stock.
type StockExceeded struct {
	Title     string `json:"title"`
	Available int    `json:"available"`
}

// MutationResult tells the caller what happened to a mutation.
type MutationResult struct {
	Applied       bool
	Degraded      bool // the cart is only kept in memory
	StockExceeded *StockExceeded
}

type AddRequest struct {
	ProductID      string
	VariantKey     string
	Quantity       int // zero means one
	Title          string
	UnitPrice      decimal.Decimal
	AvailableSizes []string
	SelectedSizes  []string
	Extra          map[string]json.RawMessage
}

// Adjustment records a quantity lowered by Reconcile.
type Adjustment struct {
	Key   domain.LineKey
	Title string
	From  int
	To    int
}

// Store is the only mutator of one cart. It is not safe for concurrent use; callers
// serialize access per cart.
type Store struct {
	persister Persister
	oracle    StockOracle
	policy    StockPolicy
	format    CheckoutFormat
	now       func() time.Time
	log       *zap.Logger

	lines []domain.CartLine
}

type Option func(*Store)

func WithStockOracle(o StockOracle) Option {
	return func(s *Store) { s.oracle = o }
}

func WithStockPolicy(p StockPolicy) Option {
	return func(s *Store) { s.policy = p }
}

func WithCheckoutFormat(f CheckoutFormat) Option {
	return func(s *Store) { s.format = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logger.OrNop(l) }
}

// NewStore builds a store and loads its lines through p.
func NewStore(ctx context.Context, p Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		policy:    FailOpen,
		format:    DefaultCheckoutFormat(),
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	res := p.Load(ctx)
	s.lines = res.Lines
	if s.lines == nil {
		s.lines = []domain.CartLine{}
	}
	if res.Dropped > 0 || res.Corrupt {
		logger.WithContext(ctx, s.log).Info("cart loaded with recovery",
			zap.Int("lines", len(s.lines)),
			zap.Int("dropped", res.Dropped),
			zap.Bool("corrupt", res.Corrupt),
			zap.Bool("restored", res.Restored))
	}
	return s
}

func (s *Store) AddOrIncrement(ctx context.Context, req AddRequest) (MutationResult, error) {
	line, err := s.newLine(req)
	if err != nil {
		return MutationResult{}, err
	}

	i := s.indexOf(line.Key())
	want := line.Quantity
	title := line.Title
	if i >= 0 {
		var ok bool
		if want, ok = domain.AddQuantity(s.lines[i].Quantity, line.Quantity); !ok {
			return MutationResult{}, fmt.Errorf("%w: quantity exceeds %d", ErrInvalidInput, domain.MaxQuantity)
		}
		title = s.lines[i].Title
	}

	exceeded, err := s.checkStock(ctx, line.Key(), want, title)
	if err != nil || exceeded != nil {
		return MutationResult{StockExceeded: exceeded, Degraded: s.persister.Degraded()}, err
	}

	if i >= 0 {
		existing := &s.lines[i]
		existing.Quantity = want
		existing.AvailableSizes = domain.NormalizeSizes(append(existing.AvailableSizes, line.AvailableSizes...))
		existing.SelectedSizes = domain.FilterSelected(
			append(existing.SelectedSizes, line.SelectedSizes...), existing.AvailableSizes)
	} else {
		s.lines = append(s.lines, line)
	}
	return s.save(ctx), nil
}

func (s *Store) ChangeQuantity(ctx context.Context, key domain.LineKey, delta int) (MutationResult, error) {
	i := s.indexOf(key)
	if i < 0 {
		return MutationResult{}, fmt.Errorf("%w: %s", ErrLineNotFound, key)
	}

	want, ok := domain.AddQuantity(s.lines[i].Quantity, delta)
	if !ok {
		return MutationResult{}, fmt.Errorf("%w: quantity exceeds %d", ErrInvalidInput, domain.MaxQuantity)
	}
	if want <= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return s.save(ctx), nil
	}

	if delta > 0 {
		exceeded, err := s.checkStock(ctx, key, want, s.lines[i].Title)
		if err != nil || exceeded != nil {
			return MutationResult{StockExceeded: exceeded, Degraded: s.persister.Degraded()}, err
		}
	}

	s.lines[i].Quantity = want
	return s.save(ctx), nil
}

// Remove deletes the line for key. A missing key is not an error.
func (s *Store) Remove(ctx context.Context, key domain.LineKey) MutationResult {
	if i := s.indexOf(key); i >= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}
	return s.save(ctx)
}

func (s *Store) Clear(ctx context.Context) MutationResult {
	s.lines = []domain.CartLine{}
	return s.save(ctx)
}

// SetSelectedSizes replaces the selected sizes of a line; sizes the line does not offer
// are dropped.
func (s *Store) SetSelectedSizes(ctx context.Context, key domain.LineKey, sizes []string) (MutationResult, error) {
	i := s.indexOf(key)
	if i < 0 {
		return MutationResult{}, fmt.Errorf("%w: %s", ErrLineNotFound, key)
	}

	s.lines[i].SelectedSizes = domain.FilterSelected(sizes, s.lines[i].AvailableSizes)
	s.lines[i].LastSizeUpdate = s.now()
	return s.save(ctx), nil
}

// Reconcile lowers every quantity above its known stock to max(1, stock). Lines with
// unknown stock are left alone.
func (s *Store) Reconcile(ctx context.Context) ([]Adjustment, MutationResult) {
	if s.oracle == nil {
		return nil, MutationResult{Degraded: s.persister.Degraded()}
	}

	var adjustments []Adjustment
	for i := range s.lines {
		l := &s.lines[i]
		stock, known := s.oracle.StockFor(ctx, l.ProductID, l.VariantKey)
		if !known || l.Quantity <= stock {
			continue
		}
		to := max(1, stock)
		if to == l.Quantity {
			continue
		}
		adjustments = append(adjustments, Adjustment{Key: l.Key(), Title: l.Title, From: l.Quantity, To: to})
		l.Quantity = to
	}

	if len(adjustments) == 0 {
		return nil, MutationResult{Degraded: s.persister.Degraded()}
	}
	logger.WithContext(ctx, s.log).Info("cart quantities adjusted to stock", zap.Int("lines", len(adjustments)))
	return adjustments, s.save(ctx)
}

func (s *Store) Summary() domain.CartSnapshot {
	return domain.Summarize(s.lines)
}

// Lines returns a copy of the lines in display order.
func (s *Store) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.Clone()
	}
	return out
}

func (s *Store) Line(key domain.LineKey) (domain.CartLine, bool) {
	if i := s.indexOf(key); i >= 0 {
		return s.lines[i].Clone(), true
	}
	return domain.CartLine{}, false
}

func (s *Store) Degraded() bool {
	return s.persister.Degraded()
}

func (s *Store) ToCheckoutText() string {
	return s.format.Render(s.lines)
}

func (s *Store) newLine(req AddRequest) (domain.CartLine, error) {
	productID := strings.TrimSpace(req.ProductID)
	title := strings.TrimSpace(req.Title)
	switch {
	case productID == "":
		return domain.CartLine{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	case title == "":
		return domain.CartLine{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	case req.UnitPrice.IsNegative():
		return domain.CartLine{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	case req.Quantity < 0:
		return domain.CartLine{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	case req.Quantity > domain.MaxQuantity:
		return domain.CartLine{}, fmt.Errorf("%w: quantity exceeds %d", ErrInvalidInput, domain.MaxQuantity)
	}

	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	available := domain.NormalizeSizes(req.AvailableSizes)
	line := domain.CartLine{
		ProductID:      productID,
		VariantKey:     strings.TrimSpace(req.VariantKey),
		Title:          title,
		UnitPrice:      req.UnitPrice,
		Quantity:       qty,
		AvailableSizes: available,
		SelectedSizes:  domain.FilterSelected(req.SelectedSizes, available),
		AddedAt:        s.now(),
	}
	for k, v := range req.Extra {
		if line.Extra == nil {
			line.Extra = make(map[string]json.RawMessage, len(req.Extra))
		}
		line.Extra[k] = append(json.RawMessage(nil), v...)
	}
	return line, nil
}

func (s *Store) checkStock(ctx context.Context, key domain.LineKey, want int, title string) (*StockExceeded, error) {
	known := false
	stock := 0
	if s.oracle != nil {
		stock, known = s.oracle.StockFor(ctx, key.ProductID, key.VariantKey)
	}
	if !known {
		if s.policy == FailClosed {
			return nil, fmt.Errorf("%w: %s", ErrStockUnavailable, key)
		}
		return nil, nil
	}
	if want > stock {
		return &StockExceeded{Title: title, Available: stock}, nil
	}
	return nil, nil
}

func (s *Store) indexOf(key domain.LineKey) int {
	for i := range s.lines {
		if s.lines[i].Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) save(ctx context.Context) MutationResult {
	res := s.persister.Save(ctx, s.lines)
	if res.Degraded {
		logger.WithContext(ctx, s.log).Warn("cart is not persisted, changes may not survive a reload")
	}
	return MutationResult{Applied: true, Degraded: res.Degraded}
}
