package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	"github.com/spf13/cobra"
)

var (
	errNoCatalogDB   = errors.New("CATALOG_DB is not set")
	errInvalidStock  = errors.New("stock must be a non-negative integer")
	errUnknownFormat = errors.New("format must be json or yaml")
)

func newCatalogCmd(envFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the product catalog database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCatalogDB(*envFile)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "catalog schema is up to date")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert products from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			products, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}

			c, err := openCatalogDB(*envFile)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Upsert(context.Background(), products...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d products\n", len(products))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-stock <product-id> <stock>",
		Short: "Set the stock level of one product or variant row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stock, err := strconv.Atoi(args[1])
			if err != nil || stock < 0 {
				return fmt.Errorf("%w: %q", errInvalidStock, args[1])
			}

			c, err := openCatalogDB(*envFile)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SetStock(context.Background(), args[0], stock); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stock of %s set to %d\n", args[0], stock)
			return nil
		},
	})

	cmd.AddCommand(newCatalogExportCmd(envFile))
	return cmd
}

func newCatalogExportCmd(envFile *string) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the catalog as a product file that import reads back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format == "" {
				format = "json"
				if ext := strings.ToLower(filepath.Ext(out)); ext == ".yaml" || ext == ".yml" {
					format = "yaml"
				}
			}
			encode := catalog.EncodeJSON
			switch format {
			case "json":
			case "yaml", "yml":
				encode = catalog.EncodeYAML
			default:
				return fmt.Errorf("%w: %q", errUnknownFormat, format)
			}

			c, err := openCatalogDB(*envFile)
			if err != nil {
				return err
			}
			defer c.Close()

			products, err := c.List(context.Background())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := encode(w, products); err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d products to %s\n", len(products), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default: from --out extension, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func openCatalogDB(envFile string) (*catalog.SQLiteCatalog, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if cfg.CatalogDB == "" {
		return nil, errNoCatalogDB
	}

	c, err := catalog.NewSQLiteCatalog(cfg.CatalogDB)
	if err != nil {
		return nil, err
	}
	if err := c.RunMigrations(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
