// Package query translates list requests into store-agnostic query plans
package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpContains
	OpStartsWith
	OpEndsWith
	OpIsNull
	OpIsNotNull
	OpBetween
	// OpInPlan matches values returned by a sub-plan (semi-join). It is built
	// by relationship resolution and never parsed from a request.
	OpInPlan
	// OpAny holds when at least one predicate of its group holds
	OpAny
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpGreaterThan:
		return "gt"
	case OpGreaterThanOrEqual:
		return "gte"
	case OpLessThan:
		return "lt"
	case OpLessThanOrEqual:
		return "lte"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not_in"
	case OpContains:
		return "contains"
	case OpStartsWith:
		return "starts_with"
	case OpEndsWith:
		return "ends_with"
	case OpIsNull:
		return "is_null"
	case OpIsNotNull:
		return "is_not_null"
	case OpBetween:
		return "between"
	case OpInPlan:
		return "in_plan"
	case OpAny:
		return "any"
	default:
		return "unknown"
	}
}

// ParseOperator converts a request operator name to an Operator.
// Symbolic forms ("=", "!=", ">", ...) are accepted as well.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eq", "=", "==":
		return OpEqual, nil
	case "ne", "neq", "!=", "<>":
		return OpNotEqual, nil
	case "gt", ">":
		return OpGreaterThan, nil
	case "gte", "ge", ">=":
		return OpGreaterThanOrEqual, nil
	case "lt", "<":
		return OpLessThan, nil
	case "lte", "le", "<=":
		return OpLessThanOrEqual, nil
	case "in":
		return OpIn, nil
	case "not_in", "nin":
		return OpNotIn, nil
	case "contains", "like":
		return OpContains, nil
	case "starts_with", "prefix":
		return OpStartsWith, nil
	case "ends_with", "suffix":
		return OpEndsWith, nil
	case "is_null", "null":
		return OpIsNull, nil
	case "is_not_null", "not_null":
		return OpIsNotNull, nil
	case "between":
		return OpBetween, nil
	default:
		return 0, fmt.Errorf("unknown operator: %s", s)
	}
}

// IsSubstring reports whether the operator matches part of a string
func (o Operator) IsSubstring() bool {
	return o == OpContains || o == OpStartsWith || o == OpEndsWith
}

// IsOrdering reports whether the operator compares by order
func (o Operator) IsOrdering() bool {
	switch o {
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual, OpBetween:
		return true
	}
	return false
}

// IsNullCheck reports whether the operator takes no value
func (o Operator) IsNullCheck() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// IsSet reports whether the operator takes a list of values
func (o Operator) IsSet() bool {
	return o == OpIn || o == OpNotIn
}

// Predicate is a single condition on a field. Value holds the operand of
// scalar operators; Values holds the operands of in, not_in and between.
type Predicate struct {
	Field  string
	Op     Operator
	Value  interface{}
	Values []interface{}
	// Sub is the sub-plan of an OpInPlan predicate; its single column is
	// matched against Field
	Sub *Plan
	// Group holds the alternatives of an OpAny predicate
	Group []Predicate
}

// String renders the predicate for logs and error messages
func (p Predicate) String() string {
	switch {
	case p.Op.IsNullCheck():
		return fmt.Sprintf("%s %s", p.Field, p.Op)
	case p.Op == OpAny:
		parts := make([]string, len(p.Group))
		for i, g := range p.Group {
			parts[i] = g.String()
		}
		return "(" + strings.Join(parts, " or ") + ")"
	case p.Op == OpInPlan && p.Sub != nil:
		return fmt.Sprintf("%s in (%s.%s)", p.Field, p.Sub.Entity, strings.Join(p.Sub.Columns, ","))
	case p.Op.IsSet() || p.Op == OpBetween:
		return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Values)
	default:
		return fmt.Sprintf("%s %s %v", p.Field, p.Op, p.Value)
	}
}

// Eq builds an equality predicate
func Eq(field string, value interface{}) Predicate {
	return Predicate{Field: field, Op: OpEqual, Value: value}
}

// In builds a set-membership predicate
func In(field string, values ...interface{}) Predicate {
	return Predicate{Field: field, Op: OpIn, Values: values}
}

// InPlan builds a semi-join predicate matching field against the single
// column projected by sub
func InPlan(field string, sub *Plan) Predicate {
	return Predicate{Field: field, Op: OpInPlan, Sub: sub}
}

// AnyOf builds a disjunction of predicates
func AnyOf(group ...Predicate) Predicate {
	return Predicate{Op: OpAny, Group: group}
}

// ValidateOperator validates that an operator is compatible with a field type
func ValidateOperator(op Operator, fieldType schema.FieldType) error {
	kind := fieldType.Kind()
	switch {
	case op.IsNullCheck():
		return nil
	case op == OpInPlan || op == OpAny:
		return fmt.Errorf("operator %s cannot be requested directly", op)
	case kind == schema.KindBinary:
		return fmt.Errorf("%s fields only support is_null and is_not_null", fieldType)
	case op.IsSubstring():
		if kind != schema.KindString || fieldType == schema.TypeUUID {
			return fmt.Errorf("operator %s only works with text fields", op)
		}
	case op.IsOrdering():
		if kind != schema.KindNumber && kind != schema.KindDate && kind != schema.KindString {
			return fmt.Errorf("operator %s only works with numeric, date or text fields", op)
		}
	}
	return nil
}
