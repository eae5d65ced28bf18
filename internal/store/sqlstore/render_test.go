package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
)

func bookTable() schema.Table {
	e := schema.NewEntityMetadata("Book")
	e.AddField(&schema.FieldMetadata{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, Auto: true})
	e.AddField(&schema.FieldMetadata{Name: "title", Type: schema.TypeString})
	e.AddField(&schema.FieldMetadata{Name: "year", Type: schema.TypeInt, Nullable: true})
	e.AddField(&schema.FieldMetadata{Name: "version", Type: schema.TypeInt, Version: true})
	return e.Storage()
}

func bookTagTable() schema.Table {
	e := schema.NewEntityMetadata("BookTag")
	e.AddField(&schema.FieldMetadata{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, Auto: true})
	e.AddField(&schema.FieldMetadata{Name: "book_id", Type: schema.TypeBigInt})
	e.AddField(&schema.FieldMetadata{Name: "tag_id", Type: schema.TypeBigInt})
	return e.Storage()
}

func listPlan() *query.Plan {
	return &query.Plan{
		Entity: "Book",
		Table:  bookTable(),
		Where: []query.Predicate{
			{Field: "title", Op: query.OpContains, Value: "50%"},
			query.In("id", int64(1), int64(2)),
		},
		Order:   []query.OrderTerm{{Field: "year", Desc: true}, {Field: "id"}},
		Offset:  20,
		Limit:   10,
		Columns: []string{"id", "title"},
	}
}

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{Postgres, `SELECT "id", "title" FROM "books" WHERE "title" ILIKE $1 AND "id" IN ($2, $3) ORDER BY "year" DESC, "id" ASC LIMIT 10 OFFSET 20`},
		{PQ, `SELECT "id", "title" FROM "books" WHERE "title" ILIKE $1 AND "id" IN ($2, $3) ORDER BY "year" DESC, "id" ASC LIMIT 10 OFFSET 20`},
		{SQLite, `SELECT "id", "title" FROM "books" WHERE LOWER("title") LIKE LOWER(?) ESCAPE '\' AND "id" IN (?, ?) ORDER BY "year" DESC, "id" ASC LIMIT 10 OFFSET 20`},
		{MySQL, "SELECT `id`, `title` FROM `books` WHERE LOWER(`title`) LIKE LOWER(?) AND `id` IN (?, ?) ORDER BY `year` DESC, `id` ASC LIMIT 10 OFFSET 20"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.Name, func(t *testing.T) {
			sql, args, err := selectSQL(tt.dialect, listPlan())
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
			assert.Equal(t, []interface{}{`%50\%%`, int64(1), int64(2)}, args)
		})
	}
}

func TestSelectSQL_Deterministic(t *testing.T) {
	first, _, err := selectSQL(Postgres, listPlan())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, _, err := selectSQL(Postgres, listPlan())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSelectSQL_OffsetWithoutLimit(t *testing.T) {
	plan := &query.Plan{Table: bookTable(), Offset: 5}

	sql, _, err := selectSQL(Postgres, plan)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "title", "year", "version" FROM "books" OFFSET 5`, sql)

	sql, _, err = selectSQL(SQLite, plan)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "title", "year", "version" FROM "books" LIMIT 9223372036854775807 OFFSET 5`, sql)
}

func TestCountSQL(t *testing.T) {
	sub := &query.Plan{
		Entity:  "BookTag",
		Table:   bookTagTable(),
		Where:   []query.Predicate{query.Eq("tag_id", int64(3))},
		Columns: []string{"book_id"},
	}

	tests := []struct {
		name  string
		preds []query.Predicate
		want  string
		args  []interface{}
	}{
		{"no predicates", nil, `SELECT COUNT(*) FROM "books"`, nil},
		{"empty in", []query.Predicate{query.In("id")}, `SELECT COUNT(*) FROM "books" WHERE FALSE`, nil},
		{"empty not in", []query.Predicate{{Field: "id", Op: query.OpNotIn}}, `SELECT COUNT(*) FROM "books" WHERE TRUE`, nil},
		{
			"null checks and range",
			[]query.Predicate{
				{Field: "year", Op: query.OpIsNull},
				{Field: "version", Op: query.OpBetween, Values: []interface{}{int64(1), int64(3)}},
			},
			`SELECT COUNT(*) FROM "books" WHERE "year" IS NULL AND "version" BETWEEN $1 AND $2`,
			[]interface{}{int64(1), int64(3)},
		},
		{
			"any group",
			[]query.Predicate{query.AnyOf(
				query.Predicate{Field: "title", Op: query.OpStartsWith, Value: "a_b"},
				query.Predicate{Field: "year", Op: query.OpNotEqual, Value: int64(1965)},
			)},
			`SELECT COUNT(*) FROM "books" WHERE ("title" ILIKE $1 OR "year" <> $2)`,
			[]interface{}{`a\_b%`, int64(1965)},
		},
		{
			"semi-join",
			[]query.Predicate{query.Eq("year", int64(1965)), query.InPlan("id", sub)},
			`SELECT COUNT(*) FROM "books" WHERE "year" = $1 AND "id" IN (SELECT "book_id" FROM "book_tags" WHERE "tag_id" = $2)`,
			[]interface{}{int64(1965), int64(3)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := countSQL(Postgres, bookTable(), tt.preds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
			assert.Equal(t, tt.args, args)
		})
	}

	_, _, err := countSQL(Postgres, bookTable(), []query.Predicate{{Field: "id", Op: query.OpInPlan}})
	assert.Error(t, err)
}

func TestWriteSQL(t *testing.T) {
	sql, args := insertSQL(Postgres, bookTable(), store.Row{"id": nil, "title": "Dune", "version": int64(1)})
	assert.Equal(t, `INSERT INTO "books" ("title", "version") VALUES ($1, $2) RETURNING "id"`, sql)
	assert.Equal(t, []interface{}{"Dune", int64(1)}, args)

	sql, _ = insertSQL(MySQL, bookTable(), store.Row{})
	assert.Equal(t, "INSERT INTO `books` () VALUES ()", sql)

	sql, args, err := updateSQL(Postgres, bookTable(), int64(4),
		store.Row{"version": int64(2), "title": "Dune"}, []query.Predicate{query.Eq("version", int64(1))})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "books" SET "title" = $1, "version" = $2 WHERE "id" = $3 AND "version" = $4`, sql)
	assert.Equal(t, []interface{}{"Dune", int64(2), int64(4), int64(1)}, args)

	_, _, err = updateSQL(Postgres, bookTable(), int64(4), store.Row{"unknown": 1}, nil)
	assert.Error(t, err)

	sql, args = deleteSQL(SQLite, bookTable(), int64(4))
	assert.Equal(t, `DELETE FROM "books" WHERE "id" = ?`, sql)
	assert.Equal(t, []interface{}{int64(4)}, args)
}

func TestDialectFor(t *testing.T) {
	for name, want := range map[string]Dialect{
		"postgresql": Postgres,
		"pgx":        Postgres,
		"pq":         PQ,
		"sqlite":     SQLite,
		"MySQL":      MySQL,
	} {
		got, err := DialectFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestDialect_DSN(t *testing.T) {
	dsn, err := MySQL.DSN("admin:secret@tcp(db:3306)/library?parseTime=true")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")

	_, err = MySQL.DSN("not a dsn")
	assert.Error(t, err)

	dsn, err = Postgres.DSN("postgres://localhost/library")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/library", dsn)
}
