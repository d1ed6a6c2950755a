package cart

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// CheckoutLabels are the fixed phrases of the checkout message.
type CheckoutLabels struct {
	Greeting       string
	Product        string
	Quantity       string
	UnitPrice      string
	Subtotal       string
	Gender         string
	SelectedSizes  string
	AvailableSizes string
	NoSizeSelected string
	Color          string
	TotalItems     string
	Total          string
}

var SpanishLabels = CheckoutLabels{
	Greeting:       "Hola! Quería consultar sobre:",
	Product:        "Producto",
	Quantity:       "Cantidad",
	UnitPrice:      "Precio unitario",
	Subtotal:       "Subtotal",
	Gender:         "Género",
	SelectedSizes:  "Talles seleccionados",
	AvailableSizes: "Talles disponibles",
	NoSizeSelected: "⚠️ Ningún talle seleccionado",
	Color:          "Color",
	TotalItems:     "Total de productos",
	Total:          "Total",
}

var EnglishLabels = CheckoutLabels{
	Greeting:       "Hi! I would like to ask about:",
	Product:        "Product",
	Quantity:       "Quantity",
	UnitPrice:      "Unit price",
	Subtotal:       "Subtotal",
	Gender:         "Gender",
	SelectedSizes:  "Selected sizes",
	AvailableSizes: "Available sizes",
	NoSizeSelected: "No size selected",
	Color:          "Color",
	TotalItems:     "Total items",
	Total:          "Total",
}

// CheckoutFormat renders the free-text order message handed off to a messaging app.
type CheckoutFormat struct {
	Labels   CheckoutLabels
	Language language.Tag // number formatting
	Currency string
}

func DefaultCheckoutFormat() CheckoutFormat {
	return CheckoutFormat{
		Labels:   SpanishLabels,
		Language: language.MustParse("es-AR"),
		Currency: "$",
	}
}

// CheckoutFormatFor picks labels by the locale's base language, Spanish unless it is
// English, and formats numbers in the locale itself.
func CheckoutFormatFor(locale string) (CheckoutFormat, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return CheckoutFormat{}, fmt.Errorf("invalid checkout locale %q: %w", locale, err)
	}
	f := DefaultCheckoutFormat()
	f.Language = tag
	if base, _ := tag.Base(); base.String() == "en" {
		f.Labels = EnglishLabels
	}
	return f, nil
}

// Render returns one block per line followed by the totals, or "" for an empty cart.
func (f CheckoutFormat) Render(lines []domain.CartLine) string {
	if len(lines) == 0 {
		return ""
	}

	p := message.NewPrinter(f.Language)
	money := func(d decimal.Decimal) string {
		return f.Currency + formatAmount(p, d)
	}

	var b strings.Builder
	b.WriteString(f.Labels.Greeting)
	b.WriteString("\n\n")

	for _, l := range lines {
		fmt.Fprintf(&b, "- %s: %s\n", f.Labels.Product, l.Title)
		fmt.Fprintf(&b, "- %s: %d\n", f.Labels.Quantity, l.Quantity)
		fmt.Fprintf(&b, "- %s: %s\n", f.Labels.UnitPrice, money(l.UnitPrice))
		fmt.Fprintf(&b, "- %s: %s\n", f.Labels.Subtotal, money(l.Subtotal()))

		if gender := l.ExtraString("gender"); gender != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Labels.Gender, gender)
		}

		switch {
		case len(l.SelectedSizes) > 0:
			fmt.Fprintf(&b, "- %s: %s\n", f.Labels.SelectedSizes, strings.Join(l.SelectedSizes, ", "))
		case len(l.AvailableSizes) > 0:
			fmt.Fprintf(&b, "- %s: %s\n", f.Labels.AvailableSizes, strings.Join(l.AvailableSizes, ", "))
			fmt.Fprintf(&b, "- %s\n", f.Labels.NoSizeSelected)
		}

		if color := l.ExtraString("color"); color != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Labels.Color, color)
		}
		b.WriteString("\n")
	}

	summary := domain.Summarize(lines)
	fmt.Fprintf(&b, "%s: %d\n", f.Labels.TotalItems, summary.TotalItems)
	fmt.Fprintf(&b, "%s: %s", f.Labels.Total, money(summary.Subtotal))
	return b.String()
}

// CheckoutLink builds the messaging link <endpoint>/<phone>?text=<message>, e.g.
// https://wa.me/5491100000000?text=Hola.
func CheckoutLink(endpoint, phone, text string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid checkout endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid checkout endpoint %q", endpoint)
	}

	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if phone != "" {
		u = u.JoinPath(phone)
	}
	u.RawQuery = "text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return u.String(), nil
}

// formatAmount rounds d to cents and prints it with the printer's grouping and
// decimal separator. Trailing zero cents are omitted. The amount never passes
// through a float.
func formatAmount(p *message.Printer, d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.Truncate(0)
	out := sign + p.Sprintf("%v", number.Decimal(whole.IntPart()))

	cents := d.Sub(whole).Shift(2).IntPart()
	if cents == 0 {
		return out
	}
	return out + decimalSeparator(p) + strings.TrimRight(fmt.Sprintf("%02d", cents), "0")
}

// decimalSeparator reads the locale's separator off a formatted 1.5.
func decimalSeparator(p *message.Printer) string {
	r := []rune(p.Sprintf("%v", number.Decimal(1.5)))
	if len(r) < 3 {
		return "."
	}
	return string(r[1 : len(r)-1])
}
