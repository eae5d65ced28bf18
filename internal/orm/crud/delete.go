package crud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
)

// Delete removes the record with the given key and, per cascade policy, its
// dependents. The whole cascade is planned before anything is written: if
// any dependent relationship forbids cascading and has dependents, Delete
// fails with IntegrityError and deletes nothing.
func (e *Executor) Delete(ctx context.Context, entity string, key interface{}) error {
	meta, err := e.begin(ctx, entity, OperationDelete)
	if err != nil {
		return err
	}
	key, err = canonicalKey(meta, key)
	if err != nil {
		return err
	}

	var plan *deletePlan
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		if _, err := fetch(ctx, st, meta, key); err != nil {
			return err
		}
		plan = newDeletePlan()
		if err := e.planDelete(ctx, st, plan, meta, key); err != nil {
			return err
		}
		return plan.run(ctx, st)
	})
	if err != nil {
		return err
	}

	e.logger.Debug("record deleted",
		zap.String("entity", meta.Name),
		zap.Any("key", key),
		zap.Int("cascaded", len(plan.deletes)-1),
		zap.Int("nullified", len(plan.clears)))
	return nil
}

// dependentKeys holds the records of one dependent relationship that
// reference a given key
type dependentKeys struct {
	table schema.Table
	field string
	keys  []interface{}
}

// set writes value into the foreign key of every dependent record
func (d dependentKeys) set(ctx context.Context, st store.Store, value interface{}) error {
	for _, k := range d.keys {
		if _, err := st.Update(ctx, d.table, k, store.Row{d.field: value}); err != nil {
			return fmt.Errorf("rewrite %s.%s: %w", d.table.Entity, d.field, err)
		}
	}
	return nil
}

// dependents loads the keys of the records referencing key through dep, in
// batches of the configured size
func (e *Executor) dependents(
	ctx context.Context,
	st store.Store,
	dep schema.Dependency,
	key interface{},
) (dependentKeys, error) {
	table := dep.Entity.Storage()
	out := dependentKeys{table: table, field: dep.Relationship.ForeignKey}

	plan := &query.Plan{
		Entity:  dep.Entity.Name,
		Table:   table,
		Where:   []query.Predicate{query.Eq(dep.Relationship.ForeignKey, key)},
		Order:   []query.OrderTerm{{Field: table.PrimaryKey}},
		Limit:   e.batchSize,
		Columns: []string{table.PrimaryKey},
	}
	for {
		rows, err := st.Query(ctx, plan)
		if err != nil {
			return out, fmt.Errorf("load %s dependents: %w", dep.Entity.Name, err)
		}
		for _, row := range rows {
			out.keys = append(out.keys, row[table.PrimaryKey])
		}
		if len(rows) < plan.Limit {
			return out, nil
		}
		plan.Offset += len(rows)
	}
}

type deleteStep struct {
	table schema.Table
	key   interface{}
}

// deletePlan lists the writes of a cascading delete in execution order:
// foreign keys are cleared first, then records are deleted dependents first
type deletePlan struct {
	clears  []dependentKeys
	deletes []deleteStep
	seen    map[string]bool
}

func newDeletePlan() *deletePlan {
	return &deletePlan{seen: make(map[string]bool)}
}

func (p *deletePlan) visit(meta *schema.EntityMetadata, key interface{}) bool {
	id := fmt.Sprintf("%s\x00%v", meta.Name, key)
	if p.seen[id] {
		return false
	}
	p.seen[id] = true
	return true
}

// planDelete adds the deletion of one record and everything its deletion
// requires
func (e *Executor) planDelete(
	ctx context.Context,
	st store.Store,
	plan *deletePlan,
	meta *schema.EntityMetadata,
	key interface{},
) error {
	if !plan.visit(meta, key) {
		return nil
	}

	for _, dep := range e.registry.Dependents(meta.Name) {
		policy := dep.Policy()
		if policy == schema.CascadeNone || policy == schema.CascadeUpdate {
			n, err := st.Count(ctx, dep.Entity.Storage(), []query.Predicate{query.Eq(dep.Relationship.ForeignKey, key)})
			if err != nil {
				return fmt.Errorf("count %s dependents: %w", dep.Entity.Name, err)
			}
			if n > 0 {
				return &errs.IntegrityError{
					Entity:       meta.Name,
					Key:          key,
					Dependent:    dep.Entity.Name,
					Relationship: dep.Relationship.Name,
					Count:        n,
				}
			}
			continue
		}

		keys, err := e.dependents(ctx, st, dep, key)
		if err != nil {
			return err
		}
		if len(keys.keys) == 0 {
			continue
		}
		if policy == schema.CascadeSetNull {
			plan.clears = append(plan.clears, keys)
			continue
		}
		for _, k := range keys.keys {
			if err := e.planDelete(ctx, st, plan, dep.Entity, k); err != nil {
				return err
			}
		}
	}

	plan.deletes = append(plan.deletes, deleteStep{table: meta.Storage(), key: key})
	return nil
}

func (p *deletePlan) run(ctx context.Context, st store.Store) error {
	for _, c := range p.clears {
		if err := c.set(ctx, st, nil); err != nil {
			return err
		}
	}
	for _, d := range p.deletes {
		if _, err := st.Delete(ctx, d.table, d.key); err != nil {
			return fmt.Errorf("delete %s %v: %w", d.table.Entity, d.key, err)
		}
	}
	return nil
}
