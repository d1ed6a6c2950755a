package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const productsJSON = `[
  {"id":"G1","titulo":"Gorra","precio":"1500","stock":3,"categoria":"gorras","talles":["Unico"]},
  {"id":"B1-rojo","titulo":"Buzo - Rojo","precio":2500,"stock":1,"categoria":{"id":"buzos","nombre":"Buzos"},
   "es_variante":true,"producto_padre":"B1","variante":{"tipo":"color","valor":"Rojo"}}
]`

func TestCatalogImport(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(file, []byte(productsJSON), 0o600))
	dbPath := filepath.Join(dir, "catalog.db")
	t.Setenv("CATALOG_DB", dbPath)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", filepath.Join(dir, "none.env"), "catalog", "import", file})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "imported 2 products")

	db, err := catalog.NewSQLiteCatalog(dbPath)
	require.NoError(t, err)
	defer db.Close()

	p, err := db.Get(context.Background(), "B1", "Rojo")
	require.NoError(t, err)
	assert.Equal(t, "Buzo - Rojo", p.Title)
	assert.Equal(t, 1, p.Stock)
}

func runCatalog(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(dir, "none.env"), "catalog"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func importFixture(t *testing.T) (dir, dbPath string) {
	t.Helper()
	dir = t.TempDir()
	file := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(file, []byte(productsJSON), 0o600))
	dbPath = filepath.Join(dir, "catalog.db")
	t.Setenv("CATALOG_DB", dbPath)

	_, err := runCatalog(t, dir, "import", file)
	require.NoError(t, err)
	return dir, dbPath
}

func TestCatalogSetStock(t *testing.T) {
	dir, dbPath := importFixture(t)

	out, err := runCatalog(t, dir, "set-stock", "B1-rojo", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "stock of B1-rojo set to 7")

	db, err := catalog.NewSQLiteCatalog(dbPath)
	require.NoError(t, err)
	defer db.Close()
	p, err := db.Get(context.Background(), "B1", "Rojo")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
}

func TestCatalogSetStock_Rejects(t *testing.T) {
	dir, _ := importFixture(t)

	_, err := runCatalog(t, dir, "set-stock", "missing", "1")
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = runCatalog(t, dir, "set-stock", "--", "G1", "-1")
	assert.ErrorIs(t, err, errInvalidStock)

	_, err = runCatalog(t, dir, "set-stock", "G1", "lots")
	assert.ErrorIs(t, err, errInvalidStock)
}

func TestCatalogExport_ReimportsCleanly(t *testing.T) {
	dir, _ := importFixture(t)

	out, err := runCatalog(t, dir, "export")
	require.NoError(t, err)
	products, err := catalog.DecodeJSON(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, products, 2)

	yamlPath := filepath.Join(dir, "export.yaml")
	_, err = runCatalog(t, dir, "export", "--out", yamlPath)
	require.NoError(t, err)
	fromFile, err := catalog.LoadFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, fromFile, 2)

	keys := map[string]int{}
	for _, p := range fromFile {
		keys[p.CartKey().ProductID+"/"+p.CartKey().VariantKey] = p.Stock
	}
	assert.Equal(t, map[string]int{"G1/": 3, "B1/Rojo": 1}, keys)

	_, err = runCatalog(t, dir, "export", "--format", "csv")
	assert.ErrorIs(t, err, errUnknownFormat)
}

func TestCatalogMigrate_RequiresDB(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "catalog", "migrate"})
	assert.ErrorIs(t, cmd.Execute(), errNoCatalogDB)
}

func TestOpenCatalog_MemoryWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(file, []byte(productsJSON), 0o600))

	c, closeFn, err := openCatalog(context.Background(), &config.Config{CatalogFile: file}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	products, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestOpenBlobStore_Memory(t *testing.T) {
	store, closeFn, err := openBlobStore(context.Background(), &config.Config{CartStorage: config.StorageMemory}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	assert.NoError(t, store.Ping(context.Background()))
}
