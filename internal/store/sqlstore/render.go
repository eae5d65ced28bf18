package sqlstore

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
)

// renderer accumulates bind arguments while a statement is rendered
type renderer struct {
	dialect Dialect
	args    []interface{}
}

func newRenderer(d Dialect) *renderer {
	return &renderer{dialect: d}
}

// bind appends an argument and returns its placeholder
func (r *renderer) bind(v interface{}) string {
	r.args = append(r.args, v)
	return r.dialect.Placeholder(len(r.args))
}

func (r *renderer) column(t schema.Table, field string) string {
	return r.dialect.Quote(t.Column(field))
}

// where renders a conjunction, or the empty string when there is nothing to
// filter on
func (r *renderer) where(t schema.Table, preds []query.Predicate) (string, error) {
	if len(preds) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		sql, err := r.condition(t, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (r *renderer) condition(t schema.Table, p query.Predicate) (string, error) {
	col := r.column(t, p.Field)

	switch p.Op {
	case query.OpEqual:
		return fmt.Sprintf("%s = %s", col, r.bind(p.Value)), nil
	case query.OpNotEqual:
		return fmt.Sprintf("%s <> %s", col, r.bind(p.Value)), nil
	case query.OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, r.bind(p.Value)), nil
	case query.OpGreaterThanOrEqual:
		return fmt.Sprintf("%s >= %s", col, r.bind(p.Value)), nil
	case query.OpLessThan:
		return fmt.Sprintf("%s < %s", col, r.bind(p.Value)), nil
	case query.OpLessThanOrEqual:
		return fmt.Sprintf("%s <= %s", col, r.bind(p.Value)), nil

	case query.OpIn, query.OpNotIn:
		if len(p.Values) == 0 {
			// IN with an empty list is always false, NOT IN always true
			if p.Op == query.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(p.Values))
		for i, v := range p.Values {
			placeholders[i] = r.bind(v)
		}
		op := "IN"
		if p.Op == query.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, op, strings.Join(placeholders, ", ")), nil

	case query.OpContains, query.OpStartsWith, query.OpEndsWith:
		s, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("%s on %s requires a string value", p.Op, p.Field)
		}
		s = escapeLike(s)
		switch p.Op {
		case query.OpContains:
			s = "%" + s + "%"
		case query.OpStartsWith:
			s += "%"
		default:
			s = "%" + s
		}
		return r.dialect.like(col, r.bind(s)), nil

	case query.OpIsNull:
		return col + " IS NULL", nil
	case query.OpIsNotNull:
		return col + " IS NOT NULL", nil

	case query.OpBetween:
		if len(p.Values) != 2 {
			return "", fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		lo := r.bind(p.Values[0])
		hi := r.bind(p.Values[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil

	case query.OpAny:
		if len(p.Group) == 0 {
			return "FALSE", nil
		}
		parts := make([]string, len(p.Group))
		for i, g := range p.Group {
			sql, err := r.condition(t, g)
			if err != nil {
				return "", err
			}
			parts[i] = sql
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil

	case query.OpInPlan:
		if p.Sub == nil || len(p.Sub.Columns) != 1 {
			return "", fmt.Errorf("semi-join on %s needs a single-column sub-plan", p.Field)
		}
		sub := p.Sub
		where, err := r.where(sub.Table, sub.Where)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IN (SELECT %s FROM %s%s)",
			col, r.column(sub.Table, sub.Columns[0]), r.dialect.Quote(sub.Table.Name), where), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", p.Op)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// selectColumns returns the fields a plan reads
func selectColumns(plan *query.Plan) []string {
	if len(plan.Columns) > 0 {
		return plan.Columns
	}
	return plan.Table.Fields
}

// selectSQL renders a plan as a SELECT statement
func selectSQL(d Dialect, plan *query.Plan) (string, []interface{}, error) {
	r := newRenderer(d)
	t := plan.Table

	fields := selectColumns(plan)
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = r.column(t, f)
	}

	where, err := r.where(t, plan.Where)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", strings.Join(cols, ", "), d.Quote(t.Name), where)
	if len(plan.Order) > 0 {
		terms := make([]string, len(plan.Order))
		for i, o := range plan.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = r.column(t, o.Field) + " " + dir
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	b.WriteString(d.limit(plan.Limit, plan.Offset))
	return b.String(), r.args, nil
}

// countSQL renders a COUNT over the rows matching every predicate
func countSQL(d Dialect, t schema.Table, preds []query.Predicate) (string, []interface{}, error) {
	r := newRenderer(d)
	where, err := r.where(t, preds)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", d.Quote(t.Name), where), r.args, nil
}

// insertSQL renders an INSERT of the row's known fields in declaration order
func insertSQL(d Dialect, t schema.Table, row store.Row) (string, []interface{}) {
	r := newRenderer(d)
	var cols, values []string
	for _, f := range t.Fields {
		v, ok := row[f]
		if !ok || (f == t.PrimaryKey && v == nil) {
			continue
		}
		cols = append(cols, r.column(t, f))
		values = append(values, r.bind(v))
	}

	var sql string
	if len(cols) == 0 {
		if d.Name == MySQL.Name {
			sql = fmt.Sprintf("INSERT INTO %s () VALUES ()", d.Quote(t.Name))
		} else {
			sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.Quote(t.Name))
		}
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Quote(t.Name), strings.Join(cols, ", "), strings.Join(values, ", "))
	}
	if d.Returning {
		sql += " RETURNING " + r.column(t, t.PrimaryKey)
	}
	return sql, r.args
}

// updateSQL renders an UPDATE of one record guarded by extra predicates
func updateSQL(d Dialect, t schema.Table, key interface{}, row store.Row, guard []query.Predicate) (string, []interface{}, error) {
	r := newRenderer(d)
	var sets []string
	for _, f := range t.Fields {
		v, ok := row[f]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", r.column(t, f), r.bind(v)))
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("%s: nothing to update", t.Entity)
	}

	preds := append([]query.Predicate{store.KeyPredicate(t, key)}, guard...)
	where, err := r.where(t, preds)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", d.Quote(t.Name), strings.Join(sets, ", "), where), r.args, nil
}

// deleteSQL renders a DELETE of one record
func deleteSQL(d Dialect, t schema.Table, key interface{}) (string, []interface{}) {
	r := newRenderer(d)
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		d.Quote(t.Name), r.column(t, t.PrimaryKey), r.bind(key)), r.args
}
