package memory

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/store"
)

// holds reports whether every predicate holds for the row. Comparisons with
// a null value are false, as in SQL.
func (s *Store) holds(row store.Row, where []query.Predicate) (bool, error) {
	for _, p := range where {
		ok, err := s.eval(row, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) eval(row store.Row, p query.Predicate) (bool, error) {
	v := row[p.Field]

	switch p.Op {
	case query.OpIsNull:
		return v == nil, nil
	case query.OpIsNotNull:
		return v != nil, nil
	case query.OpAny:
		for _, g := range p.Group {
			ok, err := s.eval(row, g)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case query.OpIn:
		return v != nil && contains(p.Values, v), nil
	case query.OpNotIn:
		if len(p.Values) == 0 {
			return true, nil
		}
		return v != nil && !contains(p.Values, v), nil
	case query.OpInPlan:
		if p.Sub == nil || len(p.Sub.Columns) != 1 {
			return false, fmt.Errorf("semi-join on %s needs a single-column sub-plan", p.Field)
		}
		if v == nil {
			return false, nil
		}
		rows, err := s.query(p.Sub.Unbounded())
		if err != nil {
			return false, err
		}
		col := p.Sub.Columns[0]
		for _, r := range rows {
			if convert.Equal(r[col], v) {
				return true, nil
			}
		}
		return false, nil
	}

	if v == nil {
		return false, nil
	}

	switch p.Op {
	case query.OpContains, query.OpStartsWith, query.OpEndsWith:
		str, ok := v.(string)
		if !ok {
			return false, nil
		}
		needle, _ := p.Value.(string)
		str, needle = strings.ToLower(str), strings.ToLower(needle)
		switch p.Op {
		case query.OpContains:
			return strings.Contains(str, needle), nil
		case query.OpStartsWith:
			return strings.HasPrefix(str, needle), nil
		default:
			return strings.HasSuffix(str, needle), nil
		}

	case query.OpBetween:
		if len(p.Values) != 2 {
			return false, fmt.Errorf("between on %s needs two values", p.Field)
		}
		lo, err := convert.Compare(v, p.Values[0])
		if err != nil {
			return false, err
		}
		hi, err := convert.Compare(v, p.Values[1])
		if err != nil {
			return false, err
		}
		return lo >= 0 && hi <= 0, nil
	}

	c, err := convert.Compare(v, p.Value)
	if err != nil {
		return false, err
	}
	switch p.Op {
	case query.OpEqual:
		return c == 0, nil
	case query.OpNotEqual:
		return c != 0, nil
	case query.OpGreaterThan:
		return c > 0, nil
	case query.OpGreaterThanOrEqual:
		return c >= 0, nil
	case query.OpLessThan:
		return c < 0, nil
	case query.OpLessThanOrEqual:
		return c <= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator %s", p.Op)
	}
}

func contains(values []interface{}, v interface{}) bool {
	for _, candidate := range values {
		if convert.Equal(candidate, v) {
			return true
		}
	}
	return false
}
