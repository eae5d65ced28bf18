// Package transaction runs units of work inside database transactions, with
// savepoint nesting, per-operation timeouts and retry of transient failures.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrDeadlock is returned when every retry attempt hit a transient failure
	ErrDeadlock = errors.New("deadlock detected")
	// ErrTransactionTimeout is returned when a transaction times out
	ErrTransactionTimeout = errors.New("transaction timeout")
	// ErrNestedTransactionNotSupported is returned when nested transactions are not supported
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
)

// savepointCounter provides guaranteed unique savepoint IDs across all transactions
var savepointCounter atomic.Uint64

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// Default leaves the isolation level to the driver
	Default IsolationLevel = iota
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "DEFAULT"
	}
}

// ParseIsolationLevel converts a configuration value to an IsolationLevel
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch s {
	case "", "default":
		return Default, nil
	case "read_committed":
		return ReadCommitted, nil
	case "repeatable_read":
		return RepeatableRead, nil
	case "serializable":
		return Serializable, nil
	default:
		return Default, fmt.Errorf("unknown isolation level: %s", s)
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case ReadCommitted:
		level = sql.LevelReadCommitted
	case RepeatableRead:
		level = sql.LevelRepeatableRead
	case Serializable:
		level = sql.LevelSerializable
	default:
		level = sql.LevelDefault
	}
	return &sql.TxOptions{Isolation: level}
}

// Options configures a Manager
type Options struct {
	Isolation IsolationLevel
	// Timeout bounds each top-level transaction; zero means no bound
	Timeout time.Duration
	// Retry configures retries of transient failures; nil disables them
	Retry *RetryConfig
}

// Manager manages database transactions
type Manager struct {
	db   *sql.DB
	opts Options
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, opts Options) *Manager {
	return &Manager{db: db, opts: opts}
}

// Transaction is a database transaction or a savepoint inside one
type Transaction struct {
	tx             *sql.Tx
	ctx            context.Context
	level          int // Nesting level (0 = top-level, 1+ = savepoint)
	savepointName  string
	committed      atomic.Bool
	rolledBack     atomic.Bool
	isolationLevel IsolationLevel
}

// Begin starts a new top-level transaction
func (m *Manager) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, m.opts.Isolation.ToSQLOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, ctx: ctx, isolationLevel: m.opts.Isolation}, nil
}

// Run executes fn inside a transaction, applying the configured timeout and
// retry policy. When ctx already carries a transaction, fn runs inside a
// savepoint of it instead and is neither timed nor retried.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if _, ok := FromContext(ctx); ok {
		return m.WithTransaction(ctx, fn)
	}
	attempt := func(ctx context.Context) error {
		if m.opts.Retry != nil {
			return m.WithRetry(ctx, m.opts.Retry, fn)
		}
		return m.WithTransaction(ctx, fn)
	}
	if m.opts.Timeout > 0 {
		return m.WithTimeout(ctx, m.opts.Timeout, attempt)
	}
	return attempt(ctx)
}

// WithTransaction executes a function within a transaction.
// Automatically commits on success or rolls back on error.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	var (
		tx  *Transaction
		err error
	)
	if parent, ok := FromContext(ctx); ok {
		tx, err = parent.BeginNested(ctx)
	} else {
		tx, err = m.Begin(ctx)
	}
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx.Context(), tx.tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Context returns a context with the transaction embedded
func (t *Transaction) Context() context.Context {
	return WithContext(t.ctx, t)
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Level returns the nesting level of the transaction
func (t *Transaction) Level() int {
	return t.level
}

// IsolationLevel returns the isolation level of the transaction
func (t *Transaction) IsolationLevel() IsolationLevel {
	return t.isolationLevel
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if t.committed.Load() {
		return errors.New("transaction already committed")
	}
	if t.rolledBack.Load() {
		return errors.New("transaction already rolled back")
	}

	// If this is a nested transaction (savepoint), release the savepoint
	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, "RELEASE SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		t.committed.Store(true)
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.committed.Store(true)
	return nil
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	if t.committed.Load() {
		return errors.New("transaction already committed")
	}
	if t.rolledBack.Load() {
		return nil // Already rolled back, no-op
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(t.ctx, "ROLLBACK TO SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		t.rolledBack.Store(true)
		return nil
	}

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.rolledBack.Store(true)
	return nil
}

// BeginNested creates a nested transaction using a savepoint
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNestedTransactionNotSupported
	}

	savepointName := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:             t.tx,
		ctx:            ctx,
		level:          t.level + 1,
		savepointName:  savepointName,
		isolationLevel: t.isolationLevel,
	}, nil
}

// IsCommitted returns true if the transaction has been committed
func (t *Transaction) IsCommitted() bool {
	return t.committed.Load()
}

// IsRolledBack returns true if the transaction has been rolled back
func (t *Transaction) IsRolledBack() bool {
	return t.rolledBack.Load()
}
