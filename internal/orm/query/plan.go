package query

import (
	"strings"

	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Filter is a requested condition on a field
type Filter struct {
	Field string      `json:"field"`
	Op    string      `json:"op"`
	Value interface{} `json:"value,omitempty"`
}

// SortField is a requested sort key
type SortField struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// QuerySpec is a list request: filters, sort order, free-text search and
// pagination bounds. It is built per request and never shared.
type QuerySpec struct {
	Filters []Filter    `json:"filters,omitempty"`
	Sort    []SortField `json:"sort,omitempty"`
	Search  string      `json:"search,omitempty"`
	Fields  []string    `json:"fields,omitempty"`
	Offset  int         `json:"offset,omitempty"`
	Limit   int         `json:"limit,omitempty"`
}

// ParseSort parses a comma separated sort expression such as "-year,title",
// where a leading "-" sorts descending
func ParseSort(expr string) []SortField {
	var fields []SortField
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		desc := false
		switch part[0] {
		case '-':
			desc = true
			part = part[1:]
		case '+':
			part = part[1:]
		}
		if part != "" {
			fields = append(fields, SortField{Field: part, Desc: desc})
		}
	}
	return fields
}

// OrderTerm is one key of a plan's sort order
type OrderTerm struct {
	Field string
	Desc  bool
}

// Plan is the store-agnostic form of a list query. Where is a conjunction.
type Plan struct {
	Entity  string
	Table   schema.Table
	Where   []Predicate
	Order   []OrderTerm
	Offset  int
	Limit   int
	Columns []string
}

// Unbounded returns a copy of the plan without order, offset and limit, as
// used to count matching rows
func (p *Plan) Unbounded() *Plan {
	c := *p
	c.Order = nil
	c.Offset = 0
	c.Limit = 0
	return &c
}

// HasColumn reports whether the plan projects the given field
func (p *Plan) HasColumn(field string) bool {
	for _, c := range p.Columns {
		if c == field {
			return true
		}
	}
	return false
}
