// Package memory implements an in-process store. It backs tests and the demo
// server started without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
)

// Store keeps rows in memory, one table per storage name. It is safe for
// concurrent use. Transactions are serialized; a rollback restores the
// snapshot taken when the transaction began.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table

	txMu sync.Mutex
}

type table struct {
	rows map[string]store.Row
	seq  int64
}

type txKey struct{}

// New creates an empty store
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

var (
	_ store.Store         = (*Store)(nil)
	_ store.Transactional = (*Store)(nil)
)

func (s *Store) table(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]store.Row)}
		s.tables[name] = t
	}
	return t
}

// keyOf returns the map key of a primary-key value
func keyOf(t schema.Table, key interface{}) (interface{}, string, error) {
	v, err := convert.Value(t.KeyType, key)
	if err != nil {
		return nil, "", err
	}
	if v == nil {
		return nil, "", fmt.Errorf("%s: primary key is null", t.Entity)
	}
	return v, fmt.Sprintf("%v", v), nil
}

func done(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Query implements store.Store
func (s *Store) Query(ctx context.Context, plan *query.Plan) ([]store.Row, error) {
	if err := done(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query(plan)
}

func (s *Store) query(plan *query.Plan) ([]store.Row, error) {
	matched, err := s.match(plan.Table, plan.Where)
	if err != nil {
		return nil, err
	}

	var sortErr error
	sort.SliceStable(matched, func(i, j int) bool {
		for _, term := range plan.Order {
			c, err := convert.Compare(matched[i][term.Field], matched[j][term.Field])
			if err != nil {
				sortErr = err
				return false
			}
			if c != 0 {
				if term.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}

	if plan.Offset > 0 {
		if plan.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[plan.Offset:]
		}
	}
	if plan.Limit > 0 && len(matched) > plan.Limit {
		matched = matched[:plan.Limit]
	}

	out := make([]store.Row, len(matched))
	for i, row := range matched {
		if len(plan.Columns) == 0 {
			out[i] = row.Clone()
			continue
		}
		projected := make(store.Row, len(plan.Columns))
		for _, col := range plan.Columns {
			projected[col] = row[col]
		}
		out[i] = projected
	}
	return out, nil
}

// match returns the rows of a table satisfying every predicate, sorted by
// primary key
func (s *Store) match(t schema.Table, where []query.Predicate) ([]store.Row, error) {
	data, ok := s.tables[t.Name]
	if !ok {
		return nil, nil
	}
	var matched []store.Row
	for _, row := range data.rows {
		ok, err := s.holds(row, where)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		c, _ := convert.Compare(matched[i][t.PrimaryKey], matched[j][t.PrimaryKey])
		return c < 0
	})
	return matched, nil
}

// Insert implements store.Store
func (s *Store) Insert(ctx context.Context, t schema.Table, row store.Row) (interface{}, error) {
	if err := done(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.table(t.Name)
	rec := make(store.Row, len(t.Fields))
	for _, f := range t.Fields {
		rec[f] = row[f]
	}

	if rec[t.PrimaryKey] == nil {
		if !t.AutoKey {
			return nil, fmt.Errorf("%s: primary key %s is required", t.Entity, t.PrimaryKey)
		}
		generated, err := data.nextKey(t)
		if err != nil {
			return nil, err
		}
		rec[t.PrimaryKey] = generated
	}

	key, k, err := keyOf(t, rec[t.PrimaryKey])
	if err != nil {
		return nil, err
	}
	if _, exists := data.rows[k]; exists {
		return nil, &errs.IntegrityError{Entity: t.Entity, Key: key, Reason: "duplicate primary key"}
	}
	if n, ok := key.(int64); ok && n > data.seq {
		data.seq = n
	}
	rec[t.PrimaryKey] = key
	data.rows[k] = rec
	return key, nil
}

func (d *table) nextKey(t schema.Table) (interface{}, error) {
	switch {
	case t.KeyType.IsInteger():
		d.seq++
		return d.seq, nil
	case t.KeyType == schema.TypeUUID:
		return uuid.NewString(), nil
	default:
		return nil, fmt.Errorf("%s: cannot generate %s primary keys", t.Entity, t.KeyType)
	}
}

// Update implements store.Store. A row carrying a new primary key moves the
// record.
func (s *Store) Update(
	ctx context.Context,
	t schema.Table,
	key interface{},
	row store.Row,
	guard ...query.Predicate,
) (int64, error) {
	if err := done(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.tables[t.Name]
	if !ok {
		return 0, nil
	}
	_, k, err := keyOf(t, key)
	if err != nil {
		return 0, nil
	}
	current, ok := data.rows[k]
	if !ok {
		return 0, nil
	}
	if holds, err := s.holds(current, guard); err != nil || !holds {
		return 0, err
	}

	updated := current.Clone()
	for f, v := range row {
		if _, known := t.Columns[f]; known {
			updated[f] = v
		}
	}

	newKey, nk, err := keyOf(t, updated[t.PrimaryKey])
	if err != nil {
		return 0, err
	}
	if nk != k {
		if _, taken := data.rows[nk]; taken {
			return 0, &errs.IntegrityError{Entity: t.Entity, Key: newKey, Reason: "duplicate primary key"}
		}
		delete(data.rows, k)
	}
	updated[t.PrimaryKey] = newKey
	data.rows[nk] = updated
	return 1, nil
}

// Delete implements store.Store
func (s *Store) Delete(ctx context.Context, t schema.Table, key interface{}) (int64, error) {
	if err := done(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.tables[t.Name]
	if !ok {
		return 0, nil
	}
	_, k, err := keyOf(t, key)
	if err != nil {
		return 0, nil
	}
	if _, ok := data.rows[k]; !ok {
		return 0, nil
	}
	delete(data.rows, k)
	return 1, nil
}

// Count implements store.Store
func (s *Store) Count(ctx context.Context, t schema.Table, where []query.Predicate) (int64, error) {
	if err := done(ctx); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(t, where)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Len returns the number of rows stored in a table
func (s *Store) Len(tableName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[tableName]; ok {
		return len(t.rows)
	}
	return 0
}

// WithinTx implements store.Transactional. Nested calls join the running
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Store) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx, s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, true), s)
}

func (s *Store) snapshot() map[string]*table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		c := &table{rows: make(map[string]store.Row, len(t.rows)), seq: t.seq}
		for k, row := range t.rows {
			c.rows[k] = row.Clone()
		}
		snap[name] = c
	}
	return snap
}

func (s *Store) restore(snap map[string]*table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = snap
}
