package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const productColumns = `id, parent_id, variant_key, title, price, stock, category, section,
	image_url, sizes, gender, color, created_at`

type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite allows one writer; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)
	return &SQLiteCatalog{db: db}, nil
}

func (c *SQLiteCatalog) RunMigrations() error {
	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) List(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY rowid`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

func (c *SQLiteCatalog) Get(ctx context.Context, productID, variantKey string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ? AND variant_key = ''`
	args := []any{productID}
	if variantKey != domain.NoVariant {
		query = `SELECT ` + productColumns + ` FROM products WHERE parent_id = ? AND variant_key = ?`
		args = append(args, variantKey)
	}

	p, err := scanProduct(c.db.QueryRowContext(ctx, query+` LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *SQLiteCatalog) Upsert(ctx context.Context, products ...domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			variant_key = excluded.variant_key,
			title = excluded.title,
			price = excluded.price,
			stock = excluded.stock,
			category = excluded.category,
			section = excluded.section,
			image_url = excluded.image_url,
			sizes = excluded.sizes,
			gender = excluded.gender,
			color = excluded.color
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range products {
		if err := validate(p); err != nil {
			return err
		}
		sizes, err := json.Marshal(nonNil(p.Sizes))
		if err != nil {
			return fmt.Errorf("failed to encode sizes of %s: %w", p.ID, err)
		}
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err = tx.ExecContext(ctx, query,
			p.ID, p.ParentID, p.VariantKey, p.Title, p.Price.String(), p.Stock,
			p.Category, p.Section, p.ImageURL, string(sizes), p.Gender, p.Color,
			createdAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit products: %w", err)
	}
	return nil
}

// SetStock sets the stock level for a product id
func (c *SQLiteCatalog) SetStock(ctx context.Context, productID string, stock int) error {
	res, err := c.db.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, stock, productID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p         domain.Product
		price     string
		sizes     string
		createdAt string
	)
	err := row.Scan(
		&p.ID,
		&p.ParentID,
		&p.VariantKey,
		&p.Title,
		&price,
		&p.Stock,
		&p.Category,
		&p.Section,
		&p.ImageURL,
		&sizes,
		&p.Gender,
		&p.Color,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("product %s has invalid price %q: %w", p.ID, price, err)
	}
	if err := json.Unmarshal([]byte(sizes), &p.Sizes); err != nil {
		return nil, fmt.Errorf("product %s has invalid sizes: %w", p.ID, err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("product %s has invalid created_at: %w", p.ID, err)
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
