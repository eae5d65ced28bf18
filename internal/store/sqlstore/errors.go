package sqlstore

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/orm/validation"
)

// PostgreSQL SQLSTATE codes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
)

// MySQL error numbers
const (
	mysqlDuplicateEntry  = 1062
	mysqlColumnNotNull   = 1048
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

var (
	// Key (isbn)=(978) already exists.
	pgKeyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// UNIQUE constraint failed: books.isbn
	sqliteConstraintColumn = regexp.MustCompile(`constraint failed: [^.\s]+\.(\w+)`)
	// Duplicate entry '978' for key 'books.isbn'
	mysqlDuplicateKey = regexp.MustCompile(`for key '(?:[^.']+\.)?([^']+)'`)
	// Column 'title' cannot be null
	mysqlNullColumn = regexp.MustCompile(`Column '([^']+)'`)
)

type violation int

const (
	violationNone violation = iota
	violationUnique
	violationForeignKey
	violationNotNull
)

// classify identifies constraint violations across drivers and returns the
// offending column when the driver reports it
func classify(err error) (violation, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgViolation(pgErr.Code, pgErr.ColumnName, pgErr.Detail)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgViolation(string(pqErr.Code), pqErr.Column, pqErr.Detail)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return violationUnique, submatch(mysqlDuplicateKey, myErr.Message)
		case mysqlColumnNotNull:
			return violationNotNull, submatch(mysqlNullColumn, myErr.Message)
		case mysqlRowIsReferenced, mysqlNoReferencedRow:
			return violationForeignKey, ""
		}
		return violationNone, ""
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return violationUnique, submatch(sqliteConstraintColumn, liteErr.Error())
		case sqlite3.ErrConstraintNotNull:
			return violationNotNull, submatch(sqliteConstraintColumn, liteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return violationForeignKey, ""
		}
	}
	return violationNone, ""
}

func pgViolation(code, column, detail string) (violation, string) {
	switch code {
	case pgUniqueViolation:
		if column == "" {
			column = submatch(pgKeyDetail, detail)
		}
		// Composite keys are reported as "a, b"
		if strings.Contains(column, ",") {
			column = ""
		}
		return violationUnique, column
	case pgForeignKeyViolation:
		return violationForeignKey, ""
	case pgNotNullViolation:
		return violationNotNull, column
	}
	return violationNone, ""
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

// mapError translates driver constraint violations into engine errors.
// Violations of a known column become validation errors on its field; the
// rest become integrity errors. Other errors pass through unchanged.
func mapError(t schema.Table, key interface{}, err error) error {
	if err == nil {
		return nil
	}
	kind, column := classify(err)
	if kind == violationNone {
		return err
	}

	field := fieldOf(t, column)
	switch {
	case kind == violationUnique && field != "":
		verr := errs.NewValidationError(t.Entity)
		verr.Add(field, validation.MsgNotUnique)
		return verr
	case kind == violationNotNull && field != "":
		verr := errs.NewValidationError(t.Entity)
		verr.Add(field, validation.MsgRequired)
		return verr
	case kind == violationForeignKey:
		return &errs.IntegrityError{Entity: t.Entity, Key: key, Reason: "foreign key constraint violated: " + err.Error()}
	default:
		return &errs.IntegrityError{Entity: t.Entity, Key: key, Reason: "constraint violated: " + err.Error()}
	}
}

// fieldOf maps a column back to its field name
func fieldOf(t schema.Table, column string) string {
	if column == "" {
		return ""
	}
	for _, f := range t.Fields {
		if t.Column(f) == column {
			return f
		}
	}
	return ""
}
