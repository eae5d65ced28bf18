package commands

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/cli/config"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/web/auth"
)

const library = `
log:
  level: error
entities:
  - name: Author
    fields:
      - {name: id, type: int, primary_key: true, auto: true}
      - {name: name, type: string, required: true, max_length: 100}
    relationships:
      - {name: books, kind: one_to_many, target: Book, mapped_by: author}
  - name: Book
    fields:
      - {name: id, type: int, primary_key: true, auto: true}
      - {name: title, type: string, required: true}
      - {name: format, type: enum, enum: [hardcover, paperback], nullable: true}
    relationships:
      - {name: author, kind: many_to_one, target: Author, required: true}
`

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.yml")
	require.NoError(t, os.WriteFile(path, []byte(library+extra), 0o644))
	return path
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--no-color"))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "admin", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"create", "inspect", "serve", "token", "version"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	Version, GitCommit = "1.2.3", "abc123"
	t.Cleanup(func() { Version, GitCommit = "dev", "unknown" })

	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Admin version: 1.2.3")
	assert.Contains(t, out, "Git commit: abc123")
	assert.Contains(t, out, "Go version: go")
}

func TestInspect_Entities(t *testing.T) {
	out, _, err := run(t, "inspect", "--config", writeConfig(t, ""))
	require.NoError(t, err)
	assert.Contains(t, out, "Entities")
	assert.Contains(t, out, "authors")
	assert.Contains(t, out, "books")
	assert.Contains(t, out, "2 entities")
}

func TestInspect_Entity(t *testing.T) {
	path := writeConfig(t, "")

	out, _, err := run(t, "inspect", "Book", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "author_id")
	assert.Contains(t, out, "references author")
	assert.Contains(t, out, "one of hardcover|paperback")
	assert.Contains(t, out, "many_to_one")

	out, _, err = run(t, "inspect", "Author", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "REFERENCED BY")
	assert.Contains(t, out, "mapped by author")
}

func TestInspect_UnknownEntity(t *testing.T) {
	_, stderr, err := run(t, "inspect", "Bok", "--config", writeConfig(t, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Contains(t, stderr, "Did you mean: Book?")
}

func TestInspect_Routes(t *testing.T) {
	out, _, err := run(t, "inspect", "--routes", "--config", writeConfig(t, "admin:\n  base_path: /backoffice\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "/backoffice/entities/{entity}/records/{id}")
	assert.Contains(t, out, "record.related")
}

type scriptedPrompter map[string]string

func (p scriptedPrompter) Prompt(f *schema.FieldMetadata) (string, error) {
	return p[f.Name], nil
}

func TestCreate(t *testing.T) {
	path := writeConfig(t, "")

	t.Run("set without prompts", func(t *testing.T) {
		out, _, err := run(t, "create", "Author", "--set", "name=Ursula K. Le Guin", "--no-input", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "created Author 1")
		assert.Contains(t, out, `"name": "Ursula K. Le Guin"`)
	})

	t.Run("prompts for missing fields", func(t *testing.T) {
		flags := &globalFlags{configPath: path, noColor: true}
		cmd := newCreateCommand(flags, scriptedPrompter{"name": "Octavia Butler"})
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"Author"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), `"name": "Octavia Butler"`)
	})

	t.Run("validation errors are listed", func(t *testing.T) {
		_, stderr, err := run(t, "create", "Book", "--no-input", "--config", path)
		require.Error(t, err)
		_, ok := errs.AsValidation(err)
		assert.True(t, ok)
		assert.Contains(t, stderr, "title is required")
	})

	t.Run("malformed assignment", func(t *testing.T) {
		_, _, err := run(t, "create", "Author", "--set", "name", "--config", path)
		assert.ErrorContains(t, err, "expected field=value")
	})
}

func TestParseAssignments(t *testing.T) {
	values, err := parseAssignments([]string{"title=a=b", " pages =3", "isbn="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "a=b", "pages": "3", "isbn": ""}, values)

	_, err = parseAssignments([]string{"=x"})
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: s3cret\n")
	out, _, err := run(t, "token", "--subject", "ops", "--config", path)
	require.NoError(t, err)

	claims, err := auth.NewAuthService("s3cret", time.Hour).ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, []string{"ADMIN"}, claims.Roles)

	_, _, err = run(t, "token", "--subject", "ops", "--config", writeConfig(t, ""))
	assert.ErrorContains(t, err, "auth.secret")
}

func bootstrap(t *testing.T, extra string) *App {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, extra))
	require.NoError(t, err)
	app, err := Bootstrap(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestApp_Handler(t *testing.T) {
	app := bootstrap(t, "")
	h := app.Handler()

	assert.Equal(t, http.StatusNoContent, get(h, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/admin/entities", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/admin/entities/Book/records", "").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/admin/entities/Nope", "").Code)
}

func TestApp_HandlerWithAuth(t *testing.T) {
	app := bootstrap(t, "auth:\n  secret: s3cret\n")
	require.NotNil(t, app.Auth)
	h := app.Handler()

	admin, err := app.Auth.GenerateToken("ops", []string{"ADMIN"})
	require.NoError(t, err)
	viewer, err := app.Auth.GenerateToken("guest", []string{"viewer"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, get(h, "/healthz", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/admin/entities/Book/records", "").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/admin/entities/Book/records", viewer).Code)
	assert.Equal(t, http.StatusOK, get(h, "/admin/entities/Book/records", admin).Code)
}

func TestApp_AdminDisabled(t *testing.T) {
	h := bootstrap(t, "admin:\n  enabled: false\n").Handler()
	assert.Equal(t, http.StatusNotFound, get(h, "/admin/entities", "").Code)
	assert.Equal(t, http.StatusNoContent, get(h, "/healthz", "").Code)
}

func TestBootstrap_SchemaError(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
  - name: Review
    fields:
      - {name: id, type: int, primary_key: true, auto: true}
    relationships:
      - {name: book, kind: many_to_one, target: Missing}
`))
	require.NoError(t, err)

	_, err = Bootstrap(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSchema))
}

func TestReportError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.PersistentFlags().Bool("no-color", true, "")
	var buf bytes.Buffer
	cmd.SetErr(&buf)

	reportError(cmd, errs.Schemaf("Review", "book", "unknown target %s", "Missing"))
	assert.Contains(t, buf.String(), "INVALID SCHEMA")
	assert.Contains(t, buf.String(), "Check the entities section")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	flags := &globalFlags{configPath: writeConfig(t, "")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, runServe(ctx, flags, "127.0.0.1:0"))
}
