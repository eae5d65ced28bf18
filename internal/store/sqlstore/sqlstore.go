package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/orm/transaction"
	"github.com/conduit-lang/admin/internal/store"
)

// conn is satisfied by *sql.DB and *sql.Tx
type conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Options configures a Store
type Options struct {
	Logger      *zap.Logger
	Transaction transaction.Options
}

// Store runs plans against a SQL database
type Store struct {
	db      *sql.DB
	conn    conn
	dialect Dialect
	txm     *transaction.Manager
	logger  *zap.Logger
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.Transactional = (*Store)(nil)
)

// Open opens a database for the named dialect and verifies the connection
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	dsn, err = d.DSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.Name, err)
	}
	return New(db, d, opts), nil
}

// New wraps an open database
func New(db *sql.DB, d Dialect, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:      db,
		conn:    db,
		dialect: d,
		txm:     transaction.NewManager(db, opts.Transaction),
		logger:  logger,
	}
}

// DB returns the underlying database
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the dialect of the store
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) trace(stmt string, args []interface{}, start time.Time, err error) {
	if ce := s.logger.Check(zap.DebugLevel, "sql"); ce != nil {
		ce.Write(
			zap.String("query", stmt),
			zap.Int("args", len(args)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
}

// Query implements store.Store
func (s *Store) Query(ctx context.Context, plan *query.Plan) ([]store.Row, error) {
	stmt, args, err := selectSQL(s.dialect, plan)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := s.conn.QueryContext(ctx, stmt, args...)
	s.trace(stmt, args, start, err)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", plan.Table.Name, err)
	}
	defer rows.Close()

	fields := selectColumns(plan)
	var out []store.Row
	for rows.Next() {
		raw := make([]interface{}, len(fields))
		ptrs := make([]interface{}, len(fields))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", plan.Table.Name, err)
		}
		row := make(store.Row, len(fields))
		for i, f := range fields {
			row[f] = normalize(plan.Table, f, raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", plan.Table.Name, err)
	}
	return out, nil
}

// normalize converts a driver value to the canonical value of its field
func normalize(t schema.Table, field string, v interface{}) interface{} {
	typ, ok := t.Types[field]
	if !ok || v == nil {
		return v
	}
	if typ.Kind() == schema.KindString {
		// Text read back as bytes must not be trimmed to nil
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	c, err := convert.Value(typ, v)
	if err != nil {
		return v
	}
	return c
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, t schema.Table, row store.Row) (interface{}, error) {
	row = row.Clone()
	if row[t.PrimaryKey] == nil && t.AutoKey && t.KeyType == schema.TypeUUID {
		row[t.PrimaryKey] = uuid.NewString()
	}
	stmt, args := insertSQL(s.dialect, t, row)

	start := time.Now()
	var key interface{}
	var err error
	if s.dialect.Returning {
		err = s.conn.QueryRowContext(ctx, stmt, args...).Scan(&key)
	} else {
		var res sql.Result
		res, err = s.conn.ExecContext(ctx, stmt, args...)
		if err == nil {
			key = row[t.PrimaryKey]
			if key == nil {
				key, err = res.LastInsertId()
			}
		}
	}
	s.trace(stmt, args, start, err)
	if err != nil {
		return nil, mapError(t, row[t.PrimaryKey], err)
	}
	return normalize(t, t.PrimaryKey, key), nil
}

// Update implements store.Store
func (s *Store) Update(
	ctx context.Context,
	t schema.Table,
	key interface{},
	row store.Row,
	guard ...query.Predicate,
) (int64, error) {
	stmt, args, err := updateSQL(s.dialect, t, key, row, guard)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, t, key, stmt, args)
}

// Delete implements store.Store
func (s *Store) Delete(ctx context.Context, t schema.Table, key interface{}) (int64, error) {
	stmt, args := deleteSQL(s.dialect, t, key)
	return s.exec(ctx, t, key, stmt, args)
}

func (s *Store) exec(ctx context.Context, t schema.Table, key interface{}, stmt string, args []interface{}) (int64, error) {
	start := time.Now()
	res, err := s.conn.ExecContext(ctx, stmt, args...)
	s.trace(stmt, args, start, err)
	if err != nil {
		return 0, mapError(t, key, err)
	}
	return res.RowsAffected()
}

// Count implements store.Store
func (s *Store) Count(ctx context.Context, t schema.Table, where []query.Predicate) (int64, error) {
	stmt, args, err := countSQL(s.dialect, t, where)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	var n int64
	err = s.conn.QueryRowContext(ctx, stmt, args...).Scan(&n)
	s.trace(stmt, args, start, err)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return n, nil
}

// WithinTx implements store.Transactional. Nested calls run in a savepoint
// of the enclosing transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	return s.txm.Run(ctx, func(ctx context.Context, tx *sql.Tx) error {
		bound := *s
		bound.conn = tx
		return fn(ctx, &bound)
	})
}
