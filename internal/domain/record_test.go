package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_NumericStringPrice(t *testing.T) {
	line, err := DecodeRecord(json.RawMessage(`{"productId":"P1","title":"Shirt","unitPrice":"100.50","quantity":"2"}`))
	require.NoError(t, err)

	assert.Equal(t, "P1", line.ProductID)
	assert.Equal(t, NoVariant, line.VariantKey)
	assert.True(t, decimal.RequireFromString("100.5").Equal(line.UnitPrice))
	assert.Equal(t, 2, line.Quantity)
	assert.Empty(t, line.AvailableSizes)
	assert.Empty(t, line.SelectedSizes)
}

func TestDecodeRecord_DefaultsQuantityToOne(t *testing.T) {
	line, err := DecodeRecord(json.RawMessage(`{"productId":"P1","title":"Shirt","unitPrice":10}`))
	require.NoError(t, err)
	assert.Equal(t, 1, line.Quantity)
}

func TestDecodeRecord_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"missing title", `{"productId":"P1","unitPrice":10}`, ErrMissingField},
		{"blank title", `{"productId":"P1","title":"  ","unitPrice":10}`, ErrMissingField},
		{"missing product id", `{"title":"Shirt","unitPrice":10}`, ErrMissingField},
		{"numeric product id", `{"productId":7,"title":"Shirt","unitPrice":10}`, ErrMalformedRecord},
		{"missing price", `{"productId":"P1","title":"Shirt"}`, ErrMissingField},
		{"negative price", `{"productId":"P1","title":"Shirt","unitPrice":-1}`, ErrInvalidPrice},
		{"garbage price", `{"productId":"P1","title":"Shirt","unitPrice":"abc"}`, ErrInvalidPrice},
		{"zero quantity", `{"productId":"P1","title":"Shirt","unitPrice":1,"quantity":0}`, ErrInvalidQuantity},
		{"fractional quantity", `{"productId":"P1","title":"Shirt","unitPrice":1,"quantity":1.5}`, ErrInvalidQuantity},
		{"quantity beyond int range", `{"productId":"P1","title":"Shirt","unitPrice":1,"quantity":9223372036854775808}`, ErrInvalidQuantity},
		{"quantity beyond line maximum", `{"productId":"P1","title":"Shirt","unitPrice":1,"quantity":2147483648}`, ErrInvalidQuantity},
		{"not an object", `"hello"`, ErrMalformedRecord},
		{"null", `null`, ErrMalformedRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord(json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeRecord_NormalizesSizes(t *testing.T) {
	raw := `{"productId":"P1","title":"Shirt","unitPrice":10,
		"availableSizes":["S"," M ","M","No","",3],
		"selectedSizes":["M","XL","M"]}`
	line, err := DecodeRecord(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"S", "M"}, line.AvailableSizes)
	assert.Equal(t, []string{"M"}, line.SelectedSizes)
}

func TestDecodeRecord_SizesNotAnArray(t *testing.T) {
	line, err := DecodeRecord(json.RawMessage(`{"productId":"P1","title":"Shirt","unitPrice":10,"availableSizes":"S,M","selectedSizes":{"a":1}}`))
	require.NoError(t, err)
	assert.Empty(t, line.AvailableSizes)
	assert.Empty(t, line.SelectedSizes)
}

func TestDecodeRecord_UnixMillisTimestamp(t *testing.T) {
	line, err := DecodeRecord(json.RawMessage(`{"productId":"P1","title":"Shirt","unitPrice":10,"addedAt":1700000000000}`))
	require.NoError(t, err)
	assert.True(t, time.UnixMilli(1700000000000).Equal(line.AddedAt))
}

func TestDecodeRecord_KeepsUnknownFields(t *testing.T) {
	line, err := DecodeRecord(json.RawMessage(`{"productId":"P1","title":"Shirt","unitPrice":10,"color":"red","image":{"url":"x.png"}}`))
	require.NoError(t, err)

	assert.Equal(t, "red", line.ExtraString("color"))
	assert.JSONEq(t, `{"url":"x.png"}`, string(line.Extra["image"]))

	encoded, err := EncodeRecord(line)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.JSONEq(t, `"red"`, string(fields["color"]))
	assert.JSONEq(t, `{"url":"x.png"}`, string(fields["image"]))
	assert.JSONEq(t, `10`, string(fields["unitPrice"]))
}

func TestDecodeLines_DropsInvalidRecordsOnly(t *testing.T) {
	data := []byte(`[
		{"productId":"P1","title":"Shirt","unitPrice":100,"quantity":1},
		{"productId":"P2","unitPrice":50,"quantity":1}
	]`)
	lines, dropped, err := DecodeLines(data)
	require.NoError(t, err)

	assert.Equal(t, 1, dropped)
	require.Len(t, lines, 1)
	assert.Equal(t, "P1", lines[0].ProductID)
}

func TestDecodeLines_MergesDuplicateKeys(t *testing.T) {
	data := []byte(`[
		{"productId":"P1","title":"Shirt","unitPrice":100,"quantity":1},
		{"productId":"P1","title":"Shirt","unitPrice":100,"quantity":2}
	]`)
	lines, dropped, err := DecodeLines(data)
	require.NoError(t, err)

	assert.Equal(t, 1, dropped)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}

func TestDecodeLines_MergeCapsAtMaxQuantity(t *testing.T) {
	data := []byte(`[
		{"productId":"P1","title":"Shirt","unitPrice":100,"quantity":2147483647},
		{"productId":"P1","title":"Shirt","unitPrice":100,"quantity":2147483647},
		{"productId":"P1","title":"Shirt","unitPrice":100,"quantity":5}
	]`)
	lines, dropped, err := DecodeLines(data)
	require.NoError(t, err)

	assert.Equal(t, 2, dropped)
	require.Len(t, lines, 1)
	assert.Equal(t, MaxQuantity, lines[0].Quantity)
}

func TestAddQuantity(t *testing.T) {
	sum, ok := AddQuantity(2, 3)
	assert.True(t, ok)
	assert.Equal(t, 5, sum)

	_, ok = AddQuantity(2, MaxQuantity)
	assert.False(t, ok)

	sum, ok = AddQuantity(2, -10)
	assert.True(t, ok)
	assert.Equal(t, -8, sum)
}

func TestDecodeLines_NotAList(t *testing.T) {
	for _, data := range []string{`{"productId":"P1"}`, `not json`, `null`} {
		_, _, err := DecodeLines([]byte(data))
		assert.ErrorIs(t, err, ErrNotAList, data)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	added := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	lines := []CartLine{
		{
			ProductID:      "P1",
			VariantKey:     NoVariant,
			Title:          "Shirt",
			UnitPrice:      decimal.RequireFromString("19.99"),
			Quantity:       2,
			AvailableSizes: []string{"S", "M"},
			SelectedSizes:  []string{"M"},
			AddedAt:        added,
		},
		{
			ProductID:      "P2",
			VariantKey:     "blue",
			Title:          "Cap",
			UnitPrice:      decimal.NewFromInt(5),
			Quantity:       1,
			AvailableSizes: []string{},
			SelectedSizes:  []string{},
			AddedAt:        added,
			LastSizeUpdate: added.Add(time.Minute),
			Extra:          map[string]json.RawMessage{"gender": json.RawMessage(`"unisex"`)},
		},
	}

	data, err := EncodeLines(lines)
	require.NoError(t, err)

	decoded, dropped, err := DecodeLines(data)
	require.NoError(t, err)
	assert.Zero(t, dropped)
	if diff := cmp.Diff(lines, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	lines := []CartLine{
		{ProductID: "P1", Title: "A", UnitPrice: decimal.RequireFromString("0.1"), Quantity: 3},
		{ProductID: "P2", Title: "B", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
	}
	s := Summarize(lines)

	assert.Equal(t, 5, s.TotalItems)
	assert.Equal(t, 2, s.LineCount)
	assert.True(t, decimal.RequireFromString("200.3").Equal(s.Subtotal), s.Subtotal.String())

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.TotalItems)
	assert.Equal(t, 0, empty.LineCount)
	assert.True(t, empty.Subtotal.IsZero())
}

func TestLineKey_String(t *testing.T) {
	assert.Equal(t, "P1", LineKey{ProductID: "P1"}.String())
	assert.Equal(t, "P1/red", LineKey{ProductID: "P1", VariantKey: "red"}.String())
}

func TestProduct_CartKey(t *testing.T) {
	plain := Product{ID: "shoe"}
	variant := Product{ID: "shirt-red", ParentID: "shirt", VariantKey: "red"}

	assert.Equal(t, LineKey{ProductID: "shoe"}, plain.CartKey())
	assert.Equal(t, LineKey{ProductID: "shirt", VariantKey: "red"}, variant.CartKey())
}
