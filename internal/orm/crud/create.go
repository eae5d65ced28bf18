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

// Create validates values and inserts a new record. Every violation is
// reported in one ValidationError and nothing is written unless all checks
// pass. The created record is returned with its generated primary key.
func (e *Executor) Create(ctx context.Context, entity string, values map[string]interface{}) (*EntityInstance, error) {
	meta, err := e.begin(ctx, entity, OperationCreate)
	if err != nil {
		return nil, err
	}

	var inst *EntityInstance
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		created, err := e.create(ctx, st, meta, values)
		if err != nil {
			return err
		}
		inst = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("record created", zap.String("entity", meta.Name), zap.Any("key", inst.Key))
	return inst, nil
}

func (e *Executor) create(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	values map[string]interface{},
) (*EntityInstance, error) {
	row, err := e.prepareCreate(ctx, st, meta, values)
	if err != nil {
		return nil, err
	}

	key, err := st.Insert(ctx, meta.Storage(), row)
	if err != nil {
		return nil, err
	}

	stored, err := fetch(ctx, st, meta, key)
	if err != nil {
		return nil, fmt.Errorf("reload created %s: %w", meta.Name, err)
	}
	return e.instance(ctx, st, meta, stored)
}

// prepareCreate runs every create check and returns the row to insert
func (e *Executor) prepareCreate(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	input map[string]interface{},
) (store.Row, error) {
	values, verr := e.validator.Check(meta, input, validation.ModeCreate)

	if err := e.checkUnique(ctx, st, meta, values, nil, verr); err != nil {
		return nil, err
	}
	if err := e.checkReferences(ctx, st, meta, values, verr); err != nil {
		return nil, err
	}
	if verr.HasErrors() {
		return nil, verr
	}

	if vf, ok := meta.VersionFieldMetadata(); ok {
		values[vf.Name] = e.initialVersion(vf)
	}
	return store.Row(values), nil
}

// checkUnique counts stored records sharing a value of each supplied unique
// field. exclude is the key of the record being updated.
func (e *Executor) checkUnique(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	values map[string]interface{},
	exclude interface{},
	verr *errs.ValidationError,
) error {
	table := meta.Storage()
	for _, field := range meta.Fields {
		if !field.Unique && !field.PrimaryKey {
			continue
		}
		value, ok := values[field.Name]
		if !ok || value == nil {
			continue
		}
		if _, failed := verr.Fields[field.Name]; failed {
			continue
		}

		where := []query.Predicate{query.Eq(field.Name, value)}
		if exclude != nil {
			where = append(where, query.Predicate{Field: meta.PrimaryKey, Op: query.OpNotEqual, Value: exclude})
		}
		n, err := st.Count(ctx, table, where)
		if err != nil {
			return fmt.Errorf("check %s.%s uniqueness: %w", meta.Name, field.Name, err)
		}
		if n > 0 {
			verr.Add(field.Name, validation.MsgNotUnique)
		}
	}
	return nil
}

// checkReferences verifies that every supplied foreign key names an
// existing target record
func (e *Executor) checkReferences(
	ctx context.Context,
	st store.Store,
	meta *schema.EntityMetadata,
	values map[string]interface{},
	verr *errs.ValidationError,
) error {
	for _, rel := range meta.Relationships {
		if !rel.CarriesForeignKey() {
			continue
		}
		value, ok := values[rel.ForeignKey]
		if !ok || value == nil {
			continue
		}
		if _, failed := verr.Fields[rel.ForeignKey]; failed {
			continue
		}

		target, err := e.registry.Get(rel.Target)
		if err != nil {
			return err
		}
		n, err := st.Count(ctx, target.Storage(), []query.Predicate{query.Eq(target.PrimaryKey, value)})
		if err != nil {
			return fmt.Errorf("check %s.%s reference: %w", meta.Name, rel.Name, err)
		}
		if n == 0 {
			verr.Add(rel.ForeignKey, fmt.Sprintf(validation.MsgMissing, target.Name))
		}
	}
	return nil
}

func (e *Executor) initialVersion(vf *schema.FieldMetadata) interface{} {
	if vf.Type == schema.TypeTimestamp {
		return e.now().UTC()
	}
	return int64(1)
}

// nextVersion returns the version stored by a successful update
func (e *Executor) nextVersion(vf *schema.FieldMetadata, current interface{}) (interface{}, error) {
	if vf.Type == schema.TypeTimestamp {
		next := e.now().UTC()
		if t, err := convert.ToTime(current); err == nil && current != nil && !next.After(t) {
			next = t.Add(1)
		}
		return next, nil
	}
	if current == nil {
		return int64(1), nil
	}
	n, err := convert.ToInt64(current)
	if err != nil {
		return nil, fmt.Errorf("version field %s: %w", vf.Name, err)
	}
	return n + 1, nil
}
