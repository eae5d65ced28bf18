package crud

import (
	"context"

	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/relationships"
	"github.com/conduit-lang/admin/internal/store"
)

// Read returns the record with the given primary key. Relationships are
// attached as handles; eager relationships are resolved.
func (e *Executor) Read(ctx context.Context, entity string, key interface{}) (*EntityInstance, error) {
	meta, err := e.begin(ctx, entity, OperationRead)
	if err != nil {
		return nil, err
	}
	key, err = canonicalKey(meta, key)
	if err != nil {
		return nil, err
	}

	var inst *EntityInstance
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		row, err := fetch(ctx, st, meta, key)
		if err != nil {
			return err
		}
		inst, err = e.instance(ctx, st, meta, row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// List returns one page of the records matching spec together with the
// total number of matches
func (e *Executor) List(ctx context.Context, entity string, spec query.QuerySpec) (*Page, error) {
	meta, err := e.begin(ctx, entity, OperationList)
	if err != nil {
		return nil, err
	}
	plan, err := e.builder.Build(meta, spec)
	if err != nil {
		return nil, err
	}

	var page *Page
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		total, err := st.Count(ctx, plan.Table, plan.Where)
		if err != nil {
			return err
		}
		rows, err := st.Query(ctx, plan)
		if err != nil {
			return err
		}

		page = &Page{Items: make([]*EntityInstance, 0, len(rows)), Total: total, Offset: plan.Offset, Limit: plan.Limit}
		for _, row := range rows {
			inst, err := e.instance(ctx, st, meta, row)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, inst)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Related resolves one relationship of the record with the given key. To-many
// results are paginated by spec.
func (e *Executor) Related(
	ctx context.Context,
	entity string,
	key interface{},
	relation string,
	spec query.QuerySpec,
) (*relationships.Result, error) {
	meta, err := e.begin(ctx, entity, OperationRead)
	if err != nil {
		return nil, err
	}
	key, err = canonicalKey(meta, key)
	if err != nil {
		return nil, err
	}

	var res *relationships.Result
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		row, err := fetch(ctx, st, meta, key)
		if err != nil {
			return err
		}
		inst := relationships.NewInstance(meta, row)
		res, err = e.resolver.WithStore(st).Resolve(ctx, inst, relation, spec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
