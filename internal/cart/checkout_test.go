package cart

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"gotest.tools/v3/golden"
)

func englishFormat() CheckoutFormat {
	return CheckoutFormat{Labels: EnglishLabels, Language: language.English, Currency: "$"}
}

func TestCheckoutFormat_Render(t *testing.T) {
	lines := []domain.CartLine{
		{
			ProductID:      "R1",
			Title:          "Basic Tee",
			UnitPrice:      decimal.RequireFromString("1500.5"),
			Quantity:       2,
			AvailableSizes: []string{"S", "M"},
			SelectedSizes:  []string{"M"},
			Extra: map[string]json.RawMessage{
				"gender": json.RawMessage(`"Unisex"`),
				"color":  json.RawMessage(`"Black"`),
			},
		},
		{
			ProductID:      "G1",
			Title:          "Cap",
			UnitPrice:      decimal.NewFromInt(800),
			Quantity:       1,
			AvailableSizes: []string{"S", "L"},
		},
		{
			ProductID: "K1",
			Title:     "Keychain",
			UnitPrice: decimal.NewFromInt(150),
			Quantity:  3,
		},
	}

	want := strings.Join([]string{
		"Hi! I would like to ask about:",
		"",
		"- Product: Basic Tee",
		"- Quantity: 2",
		"- Unit price: $1,500.5",
		"- Subtotal: $3,001",
		"- Gender: Unisex",
		"- Selected sizes: M",
		"- Color: Black",
		"",
		"- Product: Cap",
		"- Quantity: 1",
		"- Unit price: $800",
		"- Subtotal: $800",
		"- Available sizes: S, L",
		"- No size selected",
		"",
		"- Product: Keychain",
		"- Quantity: 3",
		"- Unit price: $150",
		"- Subtotal: $450",
		"",
		"Total items: 6",
		"Total: $4,251",
	}, "\n")

	assert.Equal(t, want, englishFormat().Render(lines))
}

func TestCheckoutFormat_KeepsCentsOnLargeAmounts(t *testing.T) {
	lines := []domain.CartLine{{
		ProductID: "P1", Title: "Lot", UnitPrice: decimal.RequireFromString("90071992547409.99"), Quantity: 1,
	}}

	text := englishFormat().Render(lines)
	assert.Contains(t, text, "- Unit price: $90,071,992,547,409.99\n")
	assert.True(t, strings.HasSuffix(text, "Total: $90,071,992,547,409.99"))
}

func TestCheckoutFormat_RoundsToCents(t *testing.T) {
	f := englishFormat()
	lines := []domain.CartLine{{
		ProductID: "P1", Title: "Pin", UnitPrice: decimal.RequireFromString("0.125"), Quantity: 3,
	}}

	text := f.Render(lines)
	assert.Contains(t, text, "- Unit price: $0.13\n")
	assert.Contains(t, text, "- Subtotal: $0.38\n")

	es := DefaultCheckoutFormat().Render([]domain.CartLine{{
		ProductID: "P1", Title: "Gorra", UnitPrice: decimal.RequireFromString("10.25"), Quantity: 1,
	}})
	assert.True(t, strings.HasSuffix(es, "Total: $10,25"))
}

func TestCheckoutFormat_EmptyCart(t *testing.T) {
	assert.Equal(t, "", englishFormat().Render(nil))
	assert.Equal(t, "", DefaultCheckoutFormat().Render([]domain.CartLine{}))
}

func TestCheckoutFormat_DefaultIsSpanish(t *testing.T) {
	text := DefaultCheckoutFormat().Render([]domain.CartLine{{
		ProductID: "P1", Title: "Gorra", UnitPrice: decimal.NewFromInt(10), Quantity: 1,
	}})

	assert.True(t, strings.HasPrefix(text, "Hola! Quería consultar sobre:\n\n"))
	assert.Contains(t, text, "- Producto: Gorra\n")
	assert.Contains(t, text, "Total de productos: 1\n")
	assert.True(t, strings.HasSuffix(text, "Total: $10"))
}

func TestStore_ToCheckoutText(t *testing.T) {
	s := newTestStore(t, storage.NewMemoryStore(), WithCheckoutFormat(englishFormat()))
	ctx := context.Background()
	assert.Empty(t, s.ToCheckoutText())

	_, err := s.AddOrIncrement(ctx, addReq("P1", 100, 2))
	require.NoError(t, err)

	golden.Assert(t, s.ToCheckoutText(), "checkout_single_line.golden")
}

func TestCheckoutLink(t *testing.T) {
	link, err := CheckoutLink("https://wa.me", "+5491100000000", "Hola! a+b\nTotal: $10")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/5491100000000?text=Hola%21%20a%2Bb%0ATotal%3A%20%2410", link)

	link, err = CheckoutLink("https://wa.me/", "5491100000000", "")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/5491100000000?text=", link)

	_, err = CheckoutLink("wa.me", "1", "x")
	assert.Error(t, err)
}

func TestCheckoutFormatFor(t *testing.T) {
	f, err := CheckoutFormatFor("en-US")
	require.NoError(t, err)
	assert.Equal(t, EnglishLabels, f.Labels)
	assert.Equal(t, language.MustParse("en-US"), f.Language)

	f, err = CheckoutFormatFor("es-AR")
	require.NoError(t, err)
	assert.Equal(t, SpanishLabels, f.Labels)

	_, err = CheckoutFormatFor("not a locale!")
	assert.Error(t, err)
}
