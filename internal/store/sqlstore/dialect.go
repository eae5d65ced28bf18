// Package sqlstore implements the store over database/sql. Plans render to
// parameterised SQL for PostgreSQL (pgx or lib/pq), SQLite and MySQL.
package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"

	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Dialect captures the SQL differences between supported databases
type Dialect struct {
	// Name is the configuration name of the dialect
	Name string
	// Driver is the database/sql driver name
	Driver string
	// Numbered placeholders ($1, $2) instead of ?
	Numbered bool
	// Returning means INSERT ... RETURNING reports generated keys
	Returning bool
}

// Supported dialects
var (
	Postgres = Dialect{Name: "postgres", Driver: "pgx", Numbered: true, Returning: true}
	PQ       = Dialect{Name: "pq", Driver: "postgres", Numbered: true, Returning: true}
	SQLite   = Dialect{Name: "sqlite3", Driver: "sqlite3"}
	MySQL    = Dialect{Name: "mysql", Driver: "mysql"}
)

// DialectFor returns the dialect with the given configuration name
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "pq", "lib/pq":
		return PQ, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver: %s", name)
	}
}

// DSN adjusts a connection string for the dialect. MySQL connections report
// matched rather than changed rows, so an update that rewrites a record with
// its current values still counts it as affected.
func (d Dialect) DSN(dsn string) (string, error) {
	if d.Driver != MySQL.Driver {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// Placeholder returns the bind parameter for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier
func (d Dialect) Quote(name string) string {
	if d.Name == MySQL.Name {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(name)
}

// postgres reports whether the dialect talks to PostgreSQL
func (d Dialect) postgres() bool {
	return d.Numbered
}

// like renders a case-insensitive pattern match of col against the bind
// parameter ph
func (d Dialect) like(col, ph string) string {
	switch d.Name {
	case Postgres.Name, PQ.Name:
		return col + " ILIKE " + ph
	case MySQL.Name:
		// MySQL escapes with backslash by default
		return "LOWER(" + col + ") LIKE LOWER(" + ph + ")"
	default:
		return "LOWER(" + col + ") LIKE LOWER(" + ph + ") ESCAPE '\\'"
	}
}

// limit renders LIMIT and OFFSET. A zero limit is unbounded.
func (d Dialect) limit(limit, offset int) string {
	var b strings.Builder
	switch {
	case limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", limit)
	case offset > 0 && !d.postgres():
		// SQLite and MySQL only accept OFFSET after LIMIT
		b.WriteString(" LIMIT 9223372036854775807")
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

// ColumnType returns the column type of a field
func (d Dialect) ColumnType(f *schema.FieldMetadata) string {
	varchar := func(n int) string {
		if n <= 0 {
			n = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", n)
	}

	switch d.Name {
	case SQLite.Name:
		switch f.Type {
		case schema.TypeInt, schema.TypeBigInt:
			return "INTEGER"
		case schema.TypeFloat, schema.TypeDecimal:
			return "REAL"
		case schema.TypeBool:
			return "BOOLEAN"
		case schema.TypeDate:
			return "DATE"
		case schema.TypeTimestamp:
			return "TIMESTAMP"
		case schema.TypeBinary:
			return "BLOB"
		default:
			return "TEXT"
		}

	case MySQL.Name:
		switch f.Type {
		case schema.TypeInt:
			return "INT"
		case schema.TypeBigInt:
			return "BIGINT"
		case schema.TypeFloat:
			return "DOUBLE"
		case schema.TypeDecimal:
			return "DECIMAL(20,6)"
		case schema.TypeBool:
			return "BOOLEAN"
		case schema.TypeDate:
			return "DATE"
		case schema.TypeTimestamp:
			return "DATETIME(6)"
		case schema.TypeUUID:
			return "CHAR(36)"
		case schema.TypeText:
			return "TEXT"
		case schema.TypeBinary:
			return "BLOB"
		default:
			return varchar(f.MaxLength)
		}

	default:
		switch f.Type {
		case schema.TypeInt:
			if f.PrimaryKey && f.Auto {
				return "SERIAL"
			}
			return "INTEGER"
		case schema.TypeBigInt:
			if f.PrimaryKey && f.Auto {
				return "BIGSERIAL"
			}
			return "BIGINT"
		case schema.TypeFloat:
			return "DOUBLE PRECISION"
		case schema.TypeDecimal:
			return "NUMERIC"
		case schema.TypeBool:
			return "BOOLEAN"
		case schema.TypeDate:
			return "DATE"
		case schema.TypeTimestamp:
			return "TIMESTAMPTZ"
		case schema.TypeUUID:
			return "UUID"
		case schema.TypeText:
			return "TEXT"
		case schema.TypeBinary:
			return "BYTEA"
		default:
			if f.MaxLength > 0 {
				return varchar(f.MaxLength)
			}
			return "TEXT"
		}
	}
}
