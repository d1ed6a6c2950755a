package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMalformedRecord = errors.New("malformed cart record")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidPrice    = errors.New("price must be a non-negative number")
	ErrInvalidQuantity = errors.New("quantity must be an integer >= 1")
	ErrNotAList        = errors.New("stored cart is not a list")
)

const (
	fieldProductID      = "productId"
	fieldVariantKey     = "variantKey"
	fieldTitle          = "title"
	fieldUnitPrice      = "unitPrice"
	fieldQuantity       = "quantity"
	fieldAvailableSizes = "availableSizes"
	fieldSelectedSizes  = "selectedSizes"
	fieldAddedAt        = "addedAt"
	fieldLastSizeUpdate = "lastSizeUpdate"
)

var knownFields = map[string]struct{}{
	fieldProductID:      {},
	fieldVariantKey:     {},
	fieldTitle:          {},
	fieldUnitPrice:      {},
	fieldQuantity:       {},
	fieldAvailableSizes: {},
	fieldSelectedSizes:  {},
	fieldAddedAt:        {},
	fieldLastSizeUpdate: {},
}

// ParsePrice accepts a JSON number or a numeric string and returns it as a decimal.
func ParsePrice(raw json.RawMessage) (decimal.Decimal, error) {
	d, err := parseNumber(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

func parseNumber(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, ErrMissingField
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(strings.TrimSpace(s))
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformedRecord, name)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return s, nil
}

// sizeList tolerates garbage: a non-array becomes empty and non-string entries are skipped.
func sizeList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// timestamp accepts RFC 3339 strings and unix milliseconds.
func timestamp(raw json.RawMessage) time.Time {
	if isNull(raw) {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// DecodeRecord validates one stored record and returns it as a normalized line.
func DecodeRecord(raw json.RawMessage) (CartLine, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return CartLine{}, ErrMalformedRecord
	}

	var line CartLine
	var err error
	if line.ProductID, err = requiredString(fields, fieldProductID); err != nil {
		return CartLine{}, err
	}
	if line.Title, err = requiredString(fields, fieldTitle); err != nil {
		return CartLine{}, err
	}

	priceRaw, ok := fields[fieldUnitPrice]
	if !ok {
		return CartLine{}, fmt.Errorf("%w: %s", ErrMissingField, fieldUnitPrice)
	}
	if line.UnitPrice, err = ParsePrice(priceRaw); err != nil {
		return CartLine{}, err
	}

	line.VariantKey = NoVariant
	if raw, ok := fields[fieldVariantKey]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &line.VariantKey); err != nil {
			return CartLine{}, fmt.Errorf("%w: %s is not a string", ErrMalformedRecord, fieldVariantKey)
		}
	}

	line.Quantity = 1
	if raw, ok := fields[fieldQuantity]; ok && !isNull(raw) {
		q, err := parseNumber(raw)
		if err != nil || !q.IsInteger() || q.LessThan(decimal.NewFromInt(1)) || q.GreaterThan(decimal.NewFromInt(MaxQuantity)) {
			return CartLine{}, ErrInvalidQuantity
		}
		line.Quantity = int(q.IntPart())
	}

	line.AvailableSizes = NormalizeSizes(sizeList(fields[fieldAvailableSizes]))
	line.SelectedSizes = FilterSelected(sizeList(fields[fieldSelectedSizes]), line.AvailableSizes)
	line.AddedAt = timestamp(fields[fieldAddedAt])
	line.LastSizeUpdate = timestamp(fields[fieldLastSizeUpdate])

	for name, value := range fields {
		if _, known := knownFields[name]; known {
			continue
		}
		if line.Extra == nil {
			line.Extra = make(map[string]json.RawMessage)
		}
		line.Extra[name] = value
	}
	return line, nil
}

// DecodeLines decodes a stored cart. Records are validated independently and invalid
// ones are counted in dropped. An error is returned only when data is not a JSON list.
func DecodeLines(data []byte) (lines []CartLine, dropped int, err error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotAList, err)
	}
	if records == nil {
		return nil, 0, ErrNotAList
	}

	lines = make([]CartLine, 0, len(records))
	seen := make(map[LineKey]int, len(records))
	for _, rec := range records {
		line, err := DecodeRecord(rec)
		if err != nil {
			dropped++
			continue
		}
		// a duplicated key is merged into the first occurrence, capped at MaxQuantity
		if i, dup := seen[line.Key()]; dup {
			sum, ok := AddQuantity(lines[i].Quantity, line.Quantity)
			if !ok {
				sum = MaxQuantity
			}
			lines[i].Quantity = sum
			dropped++
			continue
		}
		seen[line.Key()] = len(lines)
		lines = append(lines, line)
	}
	return lines, dropped, nil
}

// EncodeRecord renders a line in the stored record format, extras included.
func EncodeRecord(l CartLine) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(l.Extra)+len(knownFields))
	for k, v := range l.Extra {
		out[k] = v
	}

	put := func(name string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s failed: %w", name, err)
		}
		out[name] = b
		return nil
	}

	available := l.AvailableSizes
	if available == nil {
		available = []string{}
	}
	selected := l.SelectedSizes
	if selected == nil {
		selected = []string{}
	}

	if err := put(fieldProductID, l.ProductID); err != nil {
		return nil, err
	}
	if err := put(fieldVariantKey, l.VariantKey); err != nil {
		return nil, err
	}
	if err := put(fieldTitle, l.Title); err != nil {
		return nil, err
	}
	out[fieldUnitPrice] = json.RawMessage(l.UnitPrice.String())
	if err := put(fieldQuantity, l.Quantity); err != nil {
		return nil, err
	}
	if err := put(fieldAvailableSizes, available); err != nil {
		return nil, err
	}
	if err := put(fieldSelectedSizes, selected); err != nil {
		return nil, err
	}
	if !l.AddedAt.IsZero() {
		if err := put(fieldAddedAt, l.AddedAt.Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}
	if !l.LastSizeUpdate.IsZero() {
		if err := put(fieldLastSizeUpdate, l.LastSizeUpdate.Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

func EncodeLines(lines []CartLine) ([]byte, error) {
	records := make([]json.RawMessage, 0, len(lines))
	for _, l := range lines {
		rec, err := EncodeRecord(l)
		if err != nil {
			return nil, fmt.Errorf("encode line %s failed: %w", l.Key(), err)
		}
		records = append(records, rec)
	}
	return json.Marshal(records)
}
