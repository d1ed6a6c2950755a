package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// fileProduct is one entry of the storefront's product file (productos.json).
type fileProduct struct {
	ID        string       `json:"id" yaml:"id"`
	Title     string       `json:"titulo" yaml:"titulo"`
	Image     string       `json:"imagen,omitempty" yaml:"imagen,omitempty"`
	Category  fileCategory `json:"categoria" yaml:"categoria"`
	Section   string       `json:"categoria_general,omitempty" yaml:"categoria_general,omitempty"`
	Price     flexPrice    `json:"precio" yaml:"precio"`
	Stock     int          `json:"stock" yaml:"stock"`
	Sizes     []string     `json:"talles" yaml:"talles"`
	Gender    string       `json:"genero,omitempty" yaml:"genero,omitempty"`
	Color     string       `json:"color,omitempty" yaml:"color,omitempty"`
	IsVariant bool         `json:"es_variante,omitempty" yaml:"es_variante,omitempty"`
	Parent    string       `json:"producto_padre,omitempty" yaml:"producto_padre,omitempty"`
	Variant   *fileVariant `json:"variante,omitempty" yaml:"variante,omitempty"`
}

type fileVariant struct {
	Type  string `json:"tipo,omitempty" yaml:"tipo,omitempty"`
	Value string `json:"valor" yaml:"valor"`
}

// fileCategory is either a bare id or an {id, nombre} object.
type fileCategory struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"nombre,omitempty" yaml:"nombre,omitempty"`
}

func (c *fileCategory) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.ID)
	}
	type plain fileCategory
	return json.Unmarshal(data, (*plain)(c))
}

func (c *fileCategory) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.ID = node.Value
		return nil
	}
	type plain fileCategory
	return node.Decode((*plain)(c))
}

// flexPrice accepts numbers and numeric strings.
type flexPrice struct {
	decimal.Decimal
}

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	d, err := domain.ParsePrice(data)
	if err != nil {
		return err
	}
	p.Decimal = d
	return nil
}

func (p *flexPrice) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil || d.IsNegative() {
		return domain.ErrInvalidPrice
	}
	p.Decimal = d
	return nil
}

// MarshalYAML writes the exact decimal text.
func (p flexPrice) MarshalYAML() (interface{}, error) {
	return p.Decimal.String(), nil
}

func (f fileProduct) toProduct() domain.Product {
	p := domain.Product{
		ID:       strings.TrimSpace(f.ID),
		Title:    strings.TrimSpace(f.Title),
		Price:    f.Price.Decimal,
		Stock:    f.Stock,
		Category: f.Category.ID,
		Section:  f.Section,
		ImageURL: f.Image,
		Sizes:    domain.NormalizeSizes(f.Sizes),
		Gender:   f.Gender,
		Color:    f.Color,
	}
	if f.IsVariant && f.Parent != "" {
		p.ParentID = f.Parent
		p.VariantKey = p.ID
		if f.Variant != nil && strings.TrimSpace(f.Variant.Value) != "" {
			p.VariantKey = strings.TrimSpace(f.Variant.Value)
		}
	}
	return p
}

func fromProduct(p *domain.Product) fileProduct {
	f := fileProduct{
		ID:       p.ID,
		Title:    p.Title,
		Image:    p.ImageURL,
		Category: fileCategory{ID: p.Category},
		Section:  p.Section,
		Price:    flexPrice{p.Price},
		Stock:    p.Stock,
		Sizes:    p.Sizes,
		Gender:   p.Gender,
		Color:    p.Color,
	}
	if p.IsVariant() {
		f.IsVariant = true
		f.Parent = p.ParentID
		f.Variant = &fileVariant{Value: p.VariantKey}
	}
	return f
}

func fromProducts(products []*domain.Product) []fileProduct {
	entries := make([]fileProduct, 0, len(products))
	for _, p := range products {
		entries = append(entries, fromProduct(p))
	}
	return entries
}

func convert(entries []fileProduct) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(entries))
	for i, e := range entries {
		p := e.toProduct()
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func DecodeJSON(r io.Reader) ([]domain.Product, error) {
	var entries []fileProduct
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode product file: %w", err)
	}
	return convert(entries)
}

func DecodeYAML(r io.Reader) ([]domain.Product, error) {
	var entries []fileProduct
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode product file: %w", err)
	}
	return convert(entries)
}

// EncodeJSON writes products in the product file layout DecodeJSON reads back.
func EncodeJSON(w io.Writer, products []*domain.Product) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fromProducts(products)); err != nil {
		return fmt.Errorf("failed to encode product file: %w", err)
	}
	return nil
}

func EncodeYAML(w io.Writer, products []*domain.Product) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(fromProducts(products)); err != nil {
		return fmt.Errorf("failed to encode product file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode product file: %w", err)
	}
	return nil
}

// LoadFile reads a product file, picking the decoder by extension.
func LoadFile(path string) ([]domain.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open product file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(f)
	default:
		return DecodeJSON(f)
	}
}
