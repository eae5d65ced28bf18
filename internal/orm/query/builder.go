package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Default pagination bounds
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Options configures a Builder
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Builder turns a QuerySpec into a Plan for one entity. It holds no
// per-request state and is safe for concurrent use.
type Builder struct {
	defaultLimit int
	maxLimit     int
}

// NewBuilder creates a query builder. Zero options fall back to the package
// defaults; a default limit above the maximum is clamped to it.
func NewBuilder(opts Options) *Builder {
	b := &Builder{defaultLimit: opts.DefaultLimit, maxLimit: opts.MaxLimit}
	if b.maxLimit <= 0 {
		b.maxLimit = MaxLimit
	}
	if b.defaultLimit <= 0 {
		b.defaultLimit = DefaultLimit
	}
	if b.defaultLimit > b.maxLimit {
		b.defaultLimit = b.maxLimit
	}
	return b
}

// Limits returns the default and maximum page sizes
func (b *Builder) Limits() (defaultLimit, maxLimit int) {
	return b.defaultLimit, b.maxLimit
}

// Build validates spec against the entity and returns its plan
func (b *Builder) Build(meta *schema.EntityMetadata, spec QuerySpec) (*Plan, error) {
	plan := &Plan{
		Entity: meta.Name,
		Table:  meta.Storage(),
	}

	for _, f := range spec.Filters {
		pred, err := b.predicate(meta, f)
		if err != nil {
			return nil, err
		}
		plan.Where = append(plan.Where, pred)
	}

	if s := strings.TrimSpace(spec.Search); s != "" {
		pred, err := searchPredicate(meta, s)
		if err != nil {
			return nil, err
		}
		plan.Where = append(plan.Where, pred)
	}

	order, err := b.order(meta, spec.Sort)
	if err != nil {
		return nil, err
	}
	plan.Order = order

	columns, err := projection(meta, spec.Fields)
	if err != nil {
		return nil, err
	}
	plan.Columns = columns

	if spec.Offset < 0 {
		return nil, &errs.InvalidQueryError{Entity: meta.Name, Reason: "offset must not be negative"}
	}
	plan.Offset = spec.Offset
	plan.Limit = b.clamp(spec.Limit)

	return plan, nil
}

// clamp applies the default and maximum page sizes
func (b *Builder) clamp(limit int) int {
	switch {
	case limit <= 0:
		return b.defaultLimit
	case limit > b.maxLimit:
		return b.maxLimit
	default:
		return limit
	}
}

// resolve maps a field reference to its field. The name of a relationship
// that stores a foreign key refers to that foreign key.
func resolve(meta *schema.EntityMetadata, name string) (*schema.FieldMetadata, error) {
	if f, ok := meta.Field(name); ok {
		return f, nil
	}
	if rel, ok := meta.Relationship(name); ok {
		if rel.CarriesForeignKey() {
			if f, ok := meta.Field(rel.ForeignKey); ok {
				return f, nil
			}
		}
		return nil, &errs.InvalidQueryError{Entity: meta.Name, Field: name,
			Reason: "relationship has no foreign key on this entity"}
	}
	return nil, &errs.InvalidQueryError{Entity: meta.Name, Field: name, Reason: "unknown field"}
}

func (b *Builder) predicate(meta *schema.EntityMetadata, f Filter) (Predicate, error) {
	field, err := resolve(meta, f.Field)
	if err != nil {
		return Predicate{}, err
	}
	invalid := func(format string, args ...interface{}) error {
		return &errs.InvalidQueryError{Entity: meta.Name, Field: f.Field, Reason: fmt.Sprintf(format, args...)}
	}

	op, err := ParseOperator(f.Op)
	if err != nil {
		return Predicate{}, invalid("%v", err)
	}
	if err := ValidateOperator(op, field.Type); err != nil {
		return Predicate{}, invalid("%v", err)
	}

	pred := Predicate{Field: field.Name, Op: op}
	switch {
	case op.IsNullCheck():
		return pred, nil

	case op.IsSet() || op == OpBetween:
		raw := listValues(f.Value)
		if op == OpBetween && len(raw) != 2 {
			return Predicate{}, invalid("between requires exactly two values")
		}
		pred.Values = make([]interface{}, 0, len(raw))
		for _, r := range raw {
			v, err := convert.Value(field.Type, r)
			if err != nil || v == nil {
				return Predicate{}, invalid("invalid %s value %v", field.Type, r)
			}
			pred.Values = append(pred.Values, v)
		}
		return pred, nil

	case op.IsSubstring():
		s, err := convert.ToString(f.Value)
		if err != nil || s == "" {
			return Predicate{}, invalid("operator %s requires a text value", op)
		}
		pred.Value = s
		return pred, nil
	}

	v, err := convert.Value(field.Type, f.Value)
	if err != nil {
		return Predicate{}, invalid("invalid %s value %v", field.Type, f.Value)
	}
	if v == nil {
		switch op {
		case OpEqual:
			pred.Op = OpIsNull
			return pred, nil
		case OpNotEqual:
			pred.Op = OpIsNotNull
			return pred, nil
		default:
			return Predicate{}, invalid("operator %s requires a value", op)
		}
	}
	if field.Type == schema.TypeEnum {
		if s, _ := v.(string); !field.AllowsEnumValue(s) {
			return Predicate{}, invalid("%q is not one of: %s", s, strings.Join(field.EnumValues, ", "))
		}
	}
	pred.Value = v
	return pred, nil
}

// listValues accepts a slice or a comma separated string
func listValues(v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return t
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case string:
		var out []interface{}
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []interface{}{v}
	}
}

// searchPredicate matches text against every searchable string field
func searchPredicate(meta *schema.EntityMetadata, text string) (Predicate, error) {
	var group []Predicate
	for _, f := range meta.Fields {
		if f.Type.Kind() != schema.KindString || f.Type == schema.TypeUUID || f.Hints.Hidden {
			continue
		}
		group = append(group, Predicate{Field: f.Name, Op: OpContains, Value: text})
	}
	if len(group) == 0 {
		return Predicate{}, &errs.InvalidQueryError{Entity: meta.Name, Reason: "entity has no searchable fields"}
	}
	return AnyOf(group...), nil
}

func (b *Builder) order(meta *schema.EntityMetadata, sort []SortField) ([]OrderTerm, error) {
	terms := make([]OrderTerm, 0, len(sort)+1)
	seen := make(map[string]bool, len(sort)+1)

	for _, s := range sort {
		field, err := resolve(meta, s.Field)
		if err != nil {
			return nil, err
		}
		if field.Type.Kind() == schema.KindBinary {
			return nil, &errs.InvalidQueryError{Entity: meta.Name, Field: s.Field, Reason: "field is not sortable"}
		}
		if seen[field.Name] {
			continue
		}
		seen[field.Name] = true
		terms = append(terms, OrderTerm{Field: field.Name, Desc: s.Desc})
	}

	// The primary key makes the order total so pages never overlap
	if !seen[meta.PrimaryKey] {
		terms = append(terms, OrderTerm{Field: meta.PrimaryKey})
	}
	return terms, nil
}

// projection returns the columns a listing loads. Without an explicit field
// list binary fields are left out; they are fetched one record at a time.
func projection(meta *schema.EntityMetadata, fields []string) ([]string, error) {
	if len(fields) == 0 {
		cols := make([]string, 0, len(meta.Fields))
		for _, f := range meta.Fields {
			if f.Type.Kind() != schema.KindBinary {
				cols = append(cols, f.Name)
			}
		}
		return cols, nil
	}
	cols := []string{meta.PrimaryKey}
	seen := map[string]bool{meta.PrimaryKey: true}
	for _, name := range fields {
		field, err := resolve(meta, name)
		if err != nil {
			return nil, err
		}
		if !seen[field.Name] {
			seen[field.Name] = true
			cols = append(cols, field.Name)
		}
	}
	return cols, nil
}
