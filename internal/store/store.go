// Package store defines the persistence collaborator the admin engine runs
// against. Implementations live in the memory and sqlstore subpackages.
package store

import (
	"context"

	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Row is one stored record keyed by field name. Values are canonical field
// values as produced by the convert package.
type Row map[string]interface{}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Store executes plans and single-record writes. Every call honours ctx.
type Store interface {
	// Query returns the rows matching a plan, ordered and paginated. A plan
	// limit of zero returns every match.
	Query(ctx context.Context, plan *query.Plan) ([]Row, error)
	// Insert stores a row and returns its primary key, generated when the
	// table's key is automatic and the row does not carry one
	Insert(ctx context.Context, table schema.Table, row Row) (interface{}, error)
	// Update writes the given fields of the record with the given key when
	// every guard predicate holds, and returns the number of affected records
	Update(ctx context.Context, table schema.Table, key interface{}, row Row, guard ...query.Predicate) (int64, error)
	// Delete removes the record with the given key
	Delete(ctx context.Context, table schema.Table, key interface{}) (int64, error)
	// Count returns the number of records matching every predicate
	Count(ctx context.Context, table schema.Table, where []query.Predicate) (int64, error)
}

// Transactional is implemented by stores that can run a unit of work
// atomically. fn receives the store bound to the transaction; it is
// committed when fn returns nil and rolled back otherwise.
type Transactional interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

// Within runs fn inside a transaction when s supports it, and directly
// against s otherwise
func Within(ctx context.Context, s Store, fn func(ctx context.Context, s Store) error) error {
	if tx, ok := s.(Transactional); ok {
		return tx.WithinTx(ctx, fn)
	}
	return fn(ctx, s)
}

// KeyPredicate matches the record with the given primary key
func KeyPredicate(table schema.Table, key interface{}) query.Predicate {
	return query.Eq(table.PrimaryKey, key)
}
