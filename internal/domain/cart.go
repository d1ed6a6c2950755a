package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NoVariant is the variant key of a product sold without sub-variants.
const NoVariant = ""

// MaxQuantity is the largest quantity a single line may hold.
const MaxQuantity = math.MaxInt32

// AddQuantity returns q+delta. It reports false when a positive delta would take
// the quantity past MaxQuantity.
func AddQuantity(q, delta int) (int, bool) {
	if delta > 0 && delta > MaxQuantity-q {
		return 0, false
	}
	return q + delta, true
}

// noSizeLabel is the legacy marker the storefront used for "no sizing".
const noSizeLabel = "No"

// LineKey identifies a cart line. At most one line exists per key.
type LineKey struct {
	ProductID  string
	VariantKey string
}

func (k LineKey) String() string {
	if k.VariantKey == NoVariant {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantKey
}

type CartLine struct {
	ProductID      string
	VariantKey     string
	Title          string
	UnitPrice      decimal.Decimal
	Quantity       int
	AvailableSizes []string
	SelectedSizes  []string
	AddedAt        time.Time
	LastSizeUpdate time.Time

	// Extra holds record fields this package does not interpret; they are written back as-is.
	Extra map[string]json.RawMessage
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, VariantKey: l.VariantKey}
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// ExtraString returns an extra attribute when it is a non-empty JSON string.
func (l CartLine) ExtraString(name string) string {
	raw, ok := l.Extra[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func (l CartLine) Clone() CartLine {
	c := l
	c.AvailableSizes = append([]string(nil), l.AvailableSizes...)
	c.SelectedSizes = append([]string(nil), l.SelectedSizes...)
	if l.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(l.Extra))
		for k, v := range l.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// CartSnapshot is derived from the current lines and never stored.
type CartSnapshot struct {
	TotalItems int             `json:"totalItems"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	LineCount  int             `json:"lineCount"`
}

func Summarize(lines []CartLine) CartSnapshot {
	s := CartSnapshot{Subtotal: decimal.Zero, LineCount: len(lines)}
	for _, l := range lines {
		s.TotalItems += l.Quantity
		s.Subtotal = s.Subtotal.Add(l.Subtotal())
	}
	return s
}

// NormalizeSizes trims labels and drops empty entries, the "No" marker and duplicates.
// Order of first appearance is kept.
func NormalizeSizes(sizes []string) []string {
	out := make([]string, 0, len(sizes))
	seen := make(map[string]struct{}, len(sizes))
	for _, s := range sizes {
		s = strings.TrimSpace(s)
		if s == "" || s == noSizeLabel {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FilterSelected keeps the normalized selected sizes that are present in available.
func FilterSelected(selected, available []string) []string {
	allowed := make(map[string]struct{}, len(available))
	for _, s := range available {
		allowed[s] = struct{}{}
	}
	out := make([]string, 0, len(selected))
	for _, s := range NormalizeSizes(selected) {
		if _, ok := allowed[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
