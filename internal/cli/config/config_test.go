package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/admin/internal/orm/transaction"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, "/admin", cfg.Admin.BasePath)
	assert.Equal(t, "ADMIN", cfg.Admin.RequiredRole)
	assert.Equal(t, 20, cfg.Admin.PageSize)
	assert.Equal(t, 100, cfg.Admin.MaxPageSize)
	assert.Equal(t, 10, cfg.Admin.MaxFileSizeMB)
	assert.Equal(t, MemoryDriver, cfg.Database.Driver)
	assert.Equal(t, "localhost:3000", cfg.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Entities)
}

const sample = `
admin:
  base_path: /backoffice
  page_size: 10
  app_title: Library
database:
  driver: sqlite3
  url: file:library.db
  isolation: serializable
  tx_timeout: 5s
  retries: 2
server:
  host: 0.0.0.0
  port: 8080
entities:
  - name: Author
    fields:
      - {name: id, type: int, primary_key: true, auto: true}
      - {name: name, type: string, max_length: 100}
  - name: Book
    fields:
      - {name: id, type: int, primary_key: true, auto: true}
      - {name: title, type: string, required: true}
      - {name: pages, type: int, min: 1}
    relationships:
      - {name: author, kind: many_to_one, target: Author, required: true}
`

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admin.yml"), []byte(sample), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/backoffice", cfg.Admin.BasePath)
	assert.Equal(t, 10, cfg.Admin.PageSize)
	assert.Equal(t, "Library", cfg.Admin.AppTitle)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())

	require.Len(t, cfg.Entities, 2)
	book := cfg.Entities[1]
	assert.Equal(t, "Book", book.Name)
	require.Len(t, book.Fields, 3)
	require.NotNil(t, book.Fields[2].Min)
	assert.Equal(t, 1.0, *book.Fields[2].Min)
	assert.Equal(t, "many_to_one", book.Relationships[0].Kind)

	opts := cfg.TransactionOptions()
	assert.Equal(t, transaction.Serializable, opts.Isolation)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	require.NotNil(t, opts.Retry)
	assert.Equal(t, 2, opts.Retry.MaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ADMIN_SERVER_PORT", "9090")
	t.Setenv("ADMIN_ADMIN_REQUIRED_ROLE", "STAFF")
	t.Setenv("ADMIN_AUTH_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "STAFF", cfg.Admin.RequiredRole)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"relative base path": "admin: {base_path: admin}",
		"trailing slash":     "admin: {base_path: /admin/}",
		"page size too big":  "admin: {page_size: 500, max_page_size: 100}",
		"negative file size": "admin: {max_file_size_mb: -1}",
		"unknown driver":     "database: {driver: oracle, url: x}",
		"missing url":        "database: {driver: postgres}",
		"bad isolation":      "database: {isolation: chaos}",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "admin.yml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
