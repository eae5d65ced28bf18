package relationships

import (
	"context"
	"fmt"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
)

// Resolver loads related records. It holds no per-request state and is safe
// for concurrent use.
type Resolver struct {
	registry *schema.Registry
	store    store.Store
	builder  *query.Builder
}

// NewResolver creates a resolver. To-many results are paginated by builder.
func NewResolver(registry *schema.Registry, st store.Store, builder *query.Builder) *Resolver {
	return &Resolver{registry: registry, store: st, builder: builder}
}

// WithStore returns a resolver bound to another store, such as one bound to
// a transaction
func (r *Resolver) WithStore(st store.Store) *Resolver {
	c := *r
	c.store = st
	return &c
}

// Handle returns an unresolved handle for a relationship of inst
func (r *Resolver) Handle(inst *Instance, name string) (*Handle, error) {
	meta, err := r.registry.Get(inst.Entity)
	if err != nil {
		return nil, err
	}
	rel, ok := meta.Relationship(name)
	if !ok {
		return nil, &errs.InvalidQueryError{Entity: inst.Entity, Field: name, Reason: "unknown relationship"}
	}
	return newHandle(inst, rel), nil
}

func newHandle(inst *Instance, rel *schema.RelationshipMetadata) *Handle {
	h := &Handle{
		Name:     rel.Name,
		Kind:     rel.Kind,
		Target:   rel.Target,
		Owner:    inst.Entity,
		OwnerKey: inst.Key,
	}
	if rel.CarriesForeignKey() {
		h.Ref = inst.Values[rel.ForeignKey]
	}
	return h
}

// Resolve loads the records related to inst through the named relationship.
// spec paginates and filters to-many results and is ignored for to-one
// relationships. The instance is never modified.
func (r *Resolver) Resolve(ctx context.Context, inst *Instance, name string, spec query.QuerySpec) (*Result, error) {
	h, err := r.Handle(inst, name)
	if err != nil {
		return nil, err
	}
	return r.ResolveHandle(ctx, h, spec)
}

// ResolveHandle loads the records a handle refers to. The handle itself is
// not modified; resolving it again queries the store again.
func (r *Resolver) ResolveHandle(ctx context.Context, h *Handle, spec query.QuerySpec) (*Result, error) {
	owner, err := r.registry.Get(h.Owner)
	if err != nil {
		return nil, err
	}
	rel, ok := owner.Relationship(h.Name)
	if !ok {
		return nil, &errs.InvalidQueryError{Entity: h.Owner, Field: h.Name, Reason: "unknown relationship"}
	}
	target, err := r.registry.Get(rel.Target)
	if err != nil {
		return nil, err
	}

	switch {
	case rel.CarriesForeignKey():
		if h.Ref == nil {
			return &Result{}, nil
		}
		one, err := r.one(ctx, target, query.Eq(target.PrimaryKey, h.Ref))
		if err != nil {
			return nil, err
		}
		return &Result{One: one}, nil

	case rel.Kind == schema.OneToOne:
		owning, err := r.owningSide(target, rel)
		if err != nil {
			return nil, err
		}
		one, err := r.one(ctx, target, query.Eq(owning.ForeignKey, h.OwnerKey))
		if err != nil {
			return nil, err
		}
		return &Result{One: one}, nil

	case rel.Kind == schema.OneToMany:
		owning, err := r.owningSide(target, rel)
		if err != nil {
			return nil, err
		}
		page, err := r.many(ctx, target, spec, query.Eq(owning.ForeignKey, h.OwnerKey))
		if err != nil {
			return nil, err
		}
		return &Result{Many: page}, nil

	case rel.Kind == schema.ManyToMany:
		through, err := r.registry.Get(rel.Through)
		if err != nil {
			return nil, err
		}
		sub := &query.Plan{
			Entity:  through.Name,
			Table:   through.Storage(),
			Where:   []query.Predicate{query.Eq(rel.ThroughOwnerKey, h.OwnerKey)},
			Columns: []string{rel.ThroughTargetKey},
		}
		page, err := r.many(ctx, target, spec, query.InPlan(target.PrimaryKey, sub))
		if err != nil {
			return nil, err
		}
		return &Result{Many: page}, nil

	default:
		return nil, fmt.Errorf("%s.%s: unsupported relationship kind %s", h.Owner, h.Name, rel.Kind)
	}
}

// owningSide returns the relationship on target that stores the foreign key
// of an inverse relationship
func (r *Resolver) owningSide(target *schema.EntityMetadata, rel *schema.RelationshipMetadata) (*schema.RelationshipMetadata, error) {
	owning, ok := target.Relationship(rel.MappedBy)
	if !ok || !owning.CarriesForeignKey() {
		return nil, errs.Schemaf(target.Name, rel.MappedBy, "is not an owning relationship")
	}
	return owning, nil
}

func (r *Resolver) one(ctx context.Context, target *schema.EntityMetadata, where query.Predicate) (*Instance, error) {
	rows, err := r.store.Query(ctx, &query.Plan{
		Entity:  target.Name,
		Table:   target.Storage(),
		Where:   []query.Predicate{where},
		Order:   []query.OrderTerm{{Field: target.PrimaryKey}},
		Limit:   1,
		Columns: target.FieldNames(),
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return NewInstance(target, rows[0]), nil
}

func (r *Resolver) many(ctx context.Context, target *schema.EntityMetadata, spec query.QuerySpec, scope query.Predicate) (*Page, error) {
	plan, err := r.builder.Build(target, spec)
	if err != nil {
		return nil, err
	}
	plan.Where = append([]query.Predicate{scope}, plan.Where...)

	total, err := r.store.Count(ctx, plan.Table, plan.Where)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.Query(ctx, plan)
	if err != nil {
		return nil, err
	}

	page := &Page{Items: make([]*Instance, len(rows)), Total: total, Offset: plan.Offset, Limit: plan.Limit}
	for i, row := range rows {
		page.Items[i] = NewInstance(target, row)
	}
	return page, nil
}

// Attach sets a handle for every relationship of inst. Relationships with
// an eager fetch policy are resolved immediately; eager to-many
// relationships load their first page.
func (r *Resolver) Attach(ctx context.Context, inst *Instance) error {
	meta, err := r.registry.Get(inst.Entity)
	if err != nil {
		return err
	}
	if len(meta.Relationships) == 0 {
		return nil
	}

	inst.Relations = make(map[string]*Handle, len(meta.Relationships))
	for _, rel := range meta.Relationships {
		h := newHandle(inst, rel)
		if rel.Fetch == schema.FetchEager {
			res, err := r.ResolveHandle(ctx, h, query.QuerySpec{})
			if err != nil {
				return fmt.Errorf("resolve %s.%s: %w", inst.Entity, rel.Name, err)
			}
			h.Loaded = true
			h.Result = res
		}
		inst.Relations[rel.Name] = h
	}
	return nil
}
