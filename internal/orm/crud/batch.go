package crud

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/store"
)

// CreateMany creates several records in one unit of work. The first failing
// record aborts the batch and nothing is kept; its error names the record's
// position.
func (e *Executor) CreateMany(
	ctx context.Context,
	entity string,
	records []map[string]interface{},
) ([]*EntityInstance, error) {
	meta, err := e.begin(ctx, entity, OperationCreate)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []*EntityInstance{}, nil
	}

	results := make([]*EntityInstance, 0, len(records))
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		for i, record := range records {
			inst, err := e.create(ctx, st, meta, record)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			results = append(results, inst)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("records created", zap.String("entity", meta.Name), zap.Int("count", len(results)))
	return results, nil
}

// DeleteMany deletes several records and their cascades in one unit of work.
// Every key must exist; any failure leaves all records in place.
func (e *Executor) DeleteMany(ctx context.Context, entity string, keys []interface{}) error {
	meta, err := e.begin(ctx, entity, OperationDelete)
	if err != nil {
		return err
	}

	canonical := make([]interface{}, len(keys))
	for i, k := range keys {
		if canonical[i], err = canonicalKey(meta, k); err != nil {
			return err
		}
	}

	plan := newDeletePlan()
	err = e.within(ctx, func(ctx context.Context, st store.Store) error {
		for _, key := range canonical {
			if _, err := fetch(ctx, st, meta, key); err != nil {
				return err
			}
			if err := e.planDelete(ctx, st, plan, meta, key); err != nil {
				return err
			}
		}
		return plan.run(ctx, st)
	})
	if err != nil {
		return err
	}

	e.logger.Debug("records deleted", zap.String("entity", meta.Name), zap.Int("count", len(plan.deletes)))
	return nil
}
