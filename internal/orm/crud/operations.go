// Package crud executes create, read, update, delete and list operations
// against any store, driven entirely by entity metadata.
package crud

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/relationships"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/orm/validation"
	"github.com/conduit-lang/admin/internal/store"
)

// DefaultBatchSize is the number of dependent keys loaded per store call
// while planning cascades
const DefaultBatchSize = 500

// Operation represents a CRUD operation type
type Operation int

const (
	// OperationCreate represents a create operation
	OperationCreate Operation = iota
	// OperationRead represents a read operation, including relationship traversal
	OperationRead
	// OperationUpdate represents an update operation
	OperationUpdate
	// OperationDelete represents a delete operation
	OperationDelete
	// OperationList represents a list operation
	OperationList
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OperationCreate:
		return "create"
	case OperationRead:
		return "read"
	case OperationUpdate:
		return "update"
	case OperationDelete:
		return "delete"
	case OperationList:
		return "list"
	default:
		return "unknown"
	}
}

// Gate is an access-control check run before every operation. A non-nil
// error denies the operation.
type Gate func(ctx context.Context, entity string, op Operation) error

// EntityInstance is a record returned by the executor
type EntityInstance = relationships.Instance

// Page is one page of a list result
type Page = relationships.Page

// Options configures an Executor
type Options struct {
	// Builder plans list queries; a builder with default limits is used when nil
	Builder *query.Builder
	Gate    Gate
	Logger  *zap.Logger
	// BatchSize bounds the number of keys loaded at once while planning
	// cascades
	BatchSize int
	// Now stamps timestamp version fields
	Now func() time.Time
	// MaxBinarySize caps each binary field value in bytes; zero means no
	// limit
	MaxBinarySize int64
}

// Executor runs CRUD operations. It holds no per-request state and is safe
// for concurrent use.
type Executor struct {
	registry  *schema.Registry
	store     store.Store
	builder   *query.Builder
	resolver  *relationships.Resolver
	validator *validation.Engine
	gate      Gate
	logger    *zap.Logger
	batchSize int
	now       func() time.Time
}

// New creates an executor over a frozen registry and a store
func New(registry *schema.Registry, st store.Store, opts Options) *Executor {
	if opts.Builder == nil {
		opts.Builder = query.NewBuilder(query.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{
		registry:  registry,
		store:     st,
		builder:   opts.Builder,
		resolver:  relationships.NewResolver(registry, st, opts.Builder),
		validator: &validation.Engine{MaxBinarySize: opts.MaxBinarySize},
		gate:      opts.Gate,
		logger:    opts.Logger,
		batchSize: opts.BatchSize,
		now:       opts.Now,
	}
}

// Registry returns the registry the executor runs against
func (e *Executor) Registry() *schema.Registry {
	return e.registry
}

// Builder returns the query builder used for lists and to-many relationships
func (e *Executor) Builder() *query.Builder {
	return e.builder
}

// authorize runs the gate. Denials that are not already a ForbiddenError are
// wrapped into one.
func (e *Executor) authorize(ctx context.Context, entity string, op Operation) error {
	if e.gate == nil {
		return nil
	}
	err := e.gate(ctx, entity, op)
	if err == nil {
		return nil
	}
	if errs.IsForbidden(err) {
		return err
	}
	return &errs.ForbiddenError{Entity: entity, Operation: op.String(), Reason: err.Error()}
}

// begin checks access, then resolves the entity. A denied caller gets the
// same error for unknown entities as for registered ones.
func (e *Executor) begin(ctx context.Context, entity string, op Operation) (*schema.EntityMetadata, error) {
	if err := e.authorize(ctx, entity, op); err != nil {
		e.logger.Info("operation denied",
			zap.String("entity", entity),
			zap.Stringer("operation", op),
			zap.Error(err))
		return nil, err
	}
	return e.registry.Get(entity)
}

// within runs fn as one unit of work
func (e *Executor) within(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	return store.Within(ctx, e.store, fn)
}

// canonicalKey converts a caller-supplied key to the primary key's type. A
// key that cannot be converted cannot exist.
func canonicalKey(meta *schema.EntityMetadata, key interface{}) (interface{}, error) {
	pk := meta.PrimaryKeyField()
	v, err := convert.Value(pk.Type, key)
	if err != nil || v == nil {
		return nil, &errs.NotFoundError{Entity: meta.Name, Key: key}
	}
	return v, nil
}

// fetch loads one full record by primary key
func fetch(ctx context.Context, st store.Store, meta *schema.EntityMetadata, key interface{}) (store.Row, error) {
	table := meta.Storage()
	rows, err := st.Query(ctx, &query.Plan{
		Entity:  meta.Name,
		Table:   table,
		Where:   []query.Predicate{store.KeyPredicate(table, key)},
		Limit:   1,
		Columns: meta.FieldNames(),
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &errs.NotFoundError{Entity: meta.Name, Key: key}
	}
	return rows[0], nil
}

// instance builds the returned instance with relationship handles attached
func (e *Executor) instance(ctx context.Context, st store.Store, meta *schema.EntityMetadata, row store.Row) (*EntityInstance, error) {
	inst := relationships.NewInstance(meta, row)
	if err := e.resolver.WithStore(st).Attach(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}
