package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a test database with a test table
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE test_records (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)
	`)
	require.NoError(t, err)
	return db
}

func countRecords(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM test_records").Scan(&n))
	return n
}

func insert(name string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO test_records (name) VALUES (?)", name)
		return err
	}
}

func TestManager_WithTransaction(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, Options{})
	ctx := context.Background()

	require.NoError(t, mgr.WithTransaction(ctx, insert("committed")))
	assert.Equal(t, 1, countRecords(t, db))

	boom := errors.New("boom")
	err := mgr.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insert("rolled back")(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countRecords(t, db))
}

func TestManager_WithTransactionPanic(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, Options{})

	assert.Panics(t, func() {
		_ = mgr.WithTransaction(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
			_ = insert("lost")(ctx, tx)
			panic("boom")
		})
	})
	assert.Equal(t, 0, countRecords(t, db))
}

func TestManager_NestedSavepoint(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, Options{})

	err := mgr.Run(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		outer, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, 0, outer.Level())

		if err := insert("outer")(ctx, tx); err != nil {
			return err
		}

		// The inner failure only rolls back to its savepoint
		inner := mgr.Run(ctx, func(ctx context.Context, tx *sql.Tx) error {
			nested, _ := FromContext(ctx)
			assert.Equal(t, 1, nested.Level())
			if err := insert("inner")(ctx, tx); err != nil {
				return err
			}
			return errors.New("inner failed")
		})
		assert.EqualError(t, inner, "inner failed")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRecords(t, db))
}

func TestManager_CommitFailureIsReported(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO test_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err = NewManager(db, Options{}).WithTransaction(context.Background(), insert("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Retry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO test_records").WillReturnError(deadlock)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO test_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mgr := NewManager(db, Options{Retry: &RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}})
	require.NoError(t, mgr.Run(context.Background(), insert("x")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_RetryExhausted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO test_records").WillReturnError(&mysql.MySQLError{Number: 1213})
		mock.ExpectRollback()
	}

	mgr := NewManager(db, Options{Retry: &RetryConfig{MaxRetries: 2, BaseBackoff: time.Millisecond}})
	err = mgr.Run(context.Background(), insert("x"))
	assert.ErrorIs(t, err, ErrDeadlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Timeout(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, Options{Timeout: 10 * time.Millisecond})

	err := mgr.Run(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTransactionTimeout)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pgx serialization failure", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"}), true},
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"pq deadlock", &pq.Error{Code: "40P01"}, true},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"message only", errors.New("ERROR: deadlock found when trying to get lock"), true},
		{"other", errors.New("some other database error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestParseIsolationLevel(t *testing.T) {
	level, err := ParseIsolationLevel("serializable")
	require.NoError(t, err)
	assert.Equal(t, Serializable, level)
	assert.Equal(t, "SERIALIZABLE", level.String())

	_, err = ParseIsolationLevel("chaos")
	assert.Error(t, err)
}
