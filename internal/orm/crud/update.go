package crud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/orm/validation"
	"github.com/conduit-lang/admin/internal/store"
)

// Update applies a partial change to the record with the given key. Only the
// supplied fields are validated. When the entity has a version field and the
// caller supplies the version it read, a changed version fails with
// ConcurrentModificationError; the write itself is always guarded by the
// version read in this unit of work.
func (e *Executor) Update(
	ctx context.Context,
	entity string,
	key interface{},
	values map[string]interface{},
) (*EntityInstance, error) {
	meta, err := e.begin(ctx, entity, OperationUpdate)
	if err != nil {
		return nil, err
	}
	key, err = canonicalKey(meta, key)
	if err != nil {
		return nil, err
	}

	var inst *EntityInstance
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		updated, err := e.update(ctx, st, meta, key, values)
		if err != nil {
			return err
		}
		inst = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("record updated", zap.String("entity", meta.Name), zap.Any("key", inst.Key))
	return inst, nil
}

func (e *Executor) update(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	key interface{},
	input map[string]interface{},
) (*EntityInstance, error) {
	table := meta.Storage()

	current, err := fetch(ctx, st, meta, key)
	if err != nil {
		return nil, err
	}

	changes, verr := e.validator.Check(meta, input, validation.ModeUpdate)
	if verr.HasErrors() {
		return nil, verr
	}

	vf, versioned := meta.VersionFieldMetadata()
	if versioned {
		expected, supplied := changes[vf.Name]
		delete(changes, vf.Name)
		if supplied && expected != nil && !convert.Equal(expected, current[vf.Name]) {
			return nil, &errs.ConcurrentModificationError{
				Entity: meta.Name, Key: key, Expected: expected, Actual: current[vf.Name],
			}
		}
	}

	// Drop values equal to the stored ones so unchanged unique fields are not
	// rechecked against themselves
	for field, v := range changes {
		if convert.Equal(v, current[field]) {
			delete(changes, field)
		}
	}
	if len(changes) == 0 {
		return e.instance(ctx, st, meta, current)
	}

	if err := e.checkUnique(ctx, st, meta, changes, key, verr); err != nil {
		return nil, err
	}
	if err := e.checkReferences(ctx, st, meta, changes, verr); err != nil {
		return nil, err
	}
	if verr.HasErrors() {
		return nil, verr
	}

	newKey := key
	if v, ok := changes[meta.PrimaryKey]; ok {
		newKey = v
	}
	rekey, err := e.planRekey(ctx, st, meta, key, newKey)
	if err != nil {
		return nil, err
	}

	var guard []query.Predicate
	if versioned {
		guard = append(guard, versionGuard(vf, current[vf.Name]))
		next, err := e.nextVersion(vf, current[vf.Name])
		if err != nil {
			return nil, err
		}
		changes[vf.Name] = next
	}

	if err := rekey.before(ctx, st); err != nil {
		return nil, err
	}
	n, err := st.Update(ctx, table, key, store.Row(changes), guard...)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := e.lostUpdate(ctx, st, meta, key, current); err != nil {
			return nil, err
		}
	}
	if err := rekey.after(ctx, st); err != nil {
		return nil, err
	}

	stored, err := fetch(ctx, st, meta, newKey)
	if err != nil {
		return nil, fmt.Errorf("reload updated %s: %w", meta.Name, err)
	}
	return e.instance(ctx, st, meta, stored)
}

func versionGuard(vf *schema.FieldMetadata, current interface{}) query.Predicate {
	if current == nil {
		return query.Predicate{Field: vf.Name, Op: query.OpIsNull}
	}
	return query.Eq(vf.Name, current)
}

// lostUpdate explains a write that reported no affected rows. The record was
// deleted, or a versioned record was modified since it was read. An
// unversioned record that still exists was rewritten with its current
// values, which some drivers report as zero rows, so nil is returned.
func (e *Executor) lostUpdate(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	key interface{},
	read store.Row,
) error {
	now, err := fetch(ctx, st, meta, key)
	if err != nil {
		return err
	}
	if meta.VersionField == "" {
		return nil
	}
	return &errs.ConcurrentModificationError{
		Entity: meta.Name, Key: key, Expected: read[meta.VersionField], Actual: now[meta.VersionField],
	}
}

// rekeyPlan rewrites or clears the foreign keys that reference a record
// whose primary key changes
type rekeyPlan struct {
	oldKey, newKey interface{}
	rewrite        []dependentKeys
	clear          []dependentKeys
}

// planRekey collects the dependents affected by a primary-key change. A
// dependent relationship whose policy is neither update nor set_null blocks
// the change.
func (e *Executor) planRekey(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	oldKey, newKey interface{},
) (*rekeyPlan, error) {
	plan := &rekeyPlan{oldKey: oldKey, newKey: newKey}
	if convert.Equal(oldKey, newKey) {
		return plan, nil
	}

	for _, dep := range e.registry.Dependents(meta.Name) {
		keys, err := e.dependents(ctx, st, dep, oldKey)
		if err != nil {
			return nil, err
		}
		if len(keys.keys) == 0 {
			continue
		}
		switch dep.Policy() {
		case schema.CascadeUpdate:
			plan.rewrite = append(plan.rewrite, keys)
		case schema.CascadeSetNull:
			plan.clear = append(plan.clear, keys)
		default:
			return nil, &errs.IntegrityError{
				Entity:       meta.Name,
				Key:          oldKey,
				Dependent:    dep.Entity.Name,
				Relationship: dep.Relationship.Name,
				Count:        int64(len(keys.keys)),
			}
		}
	}
	return plan, nil
}

// before clears foreign keys so the old key is unreferenced when it changes
func (p *rekeyPlan) before(ctx context.Context, st store.Store) error {
	for _, d := range p.clear {
		if err := d.set(ctx, st, nil); err != nil {
			return err
		}
	}
	return nil
}

// after points dependents at the new key
func (p *rekeyPlan) after(ctx context.Context, st store.Store) error {
	for _, d := range p.rewrite {
		if err := d.set(ctx, st, p.newKey); err != nil {
			return err
		}
	}
	return nil
}
