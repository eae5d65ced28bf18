package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/orm/validation"
)

func isbnTable() schema.Table {
	e := schema.NewEntityMetadata("Book")
	e.AddField(&schema.FieldMetadata{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, Auto: true})
	e.AddField(&schema.FieldMetadata{Name: "title", Type: schema.TypeString})
	e.AddField(&schema.FieldMetadata{Name: "isbn", Column: "isbn_code", Type: schema.TypeString, Unique: true})
	return e.Storage()
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField string
		wantMsg   string
		integrity bool
	}{
		{
			name:      "pgx unique with detail",
			err:       &pgconn.PgError{Code: "23505", Detail: "Key (isbn_code)=(978) already exists."},
			wantField: "isbn",
			wantMsg:   validation.MsgNotUnique,
		},
		{
			name:      "pgx not null",
			err:       fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23502", ColumnName: "title"}),
			wantField: "title",
			wantMsg:   validation.MsgRequired,
		},
		{
			name:      "pgx composite unique",
			err:       &pgconn.PgError{Code: "23505", Detail: "Key (title, isbn_code)=(a, b) already exists."},
			integrity: true,
		},
		{
			name:      "pq foreign key",
			err:       &pq.Error{Code: "23503"},
			integrity: true,
		},
		{
			name:      "pq unique",
			err:       &pq.Error{Code: "23505", Detail: "Key (isbn_code)=(978) already exists."},
			wantField: "isbn",
			wantMsg:   validation.MsgNotUnique,
		},
		{
			name:      "mysql duplicate",
			err:       &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '978' for key 'books.isbn_code'"},
			wantField: "isbn",
			wantMsg:   validation.MsgNotUnique,
		},
		{
			name:      "mysql null column",
			err:       &mysql.MySQLError{Number: 1048, Message: "Column 'title' cannot be null"},
			wantField: "title",
			wantMsg:   validation.MsgRequired,
		},
		{
			name:      "mysql referenced row",
			err:       &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"},
			integrity: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(isbnTable(), int64(1), tt.err)
			if tt.integrity {
				assert.True(t, errs.IsIntegrity(err), "got %v", err)
				return
			}
			verr, ok := errs.AsValidation(err)
			require.True(t, ok, "got %v", err)
			assert.True(t, verr.Has(tt.wantField, tt.wantMsg), verr.Error())
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	assert.NoError(t, mapError(isbnTable(), nil, nil))

	other := errors.New("connection reset")
	assert.Same(t, other, mapError(isbnTable(), nil, other))

	syntax := &pgconn.PgError{Code: "42601"}
	assert.Equal(t, error(syntax), mapError(isbnTable(), nil, syntax))
}
