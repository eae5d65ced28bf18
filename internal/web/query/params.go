// Package query parses list requests from URL query parameters
package query

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/admin/internal/orm/errs"
	ormquery "github.com/conduit-lang/admin/internal/orm/query"
)

// filterPattern matches query parameters like filter[key] and filter[key][op]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\](?:\[([^\]]+)\])?$`)

// ParseSpec parses a list request for entity:
//
//	?filter[status]=published&filter[year][gte]=1990
//	&sort=-year,title&q=dune&fields=title,year
//	&offset=20&limit=10   (or &page=3&per_page=10)
//
// Field names and operators are checked later against the entity's metadata.
func ParseSpec(r *http.Request, entity string) (ormquery.QuerySpec, error) {
	values := r.URL.Query()
	spec := ormquery.QuerySpec{
		Filters: ParseFilter(values),
		Sort:    ormquery.ParseSort(values.Get("sort")),
		Search:  firstOf(values, "q", "search"),
		Fields:  ParseFields(values),
	}

	var err error
	if spec.Limit, err = intParam(values, entity, "limit"); err != nil {
		return spec, err
	}
	if spec.Limit == 0 {
		if spec.Limit, err = intParam(values, entity, "per_page"); err != nil {
			return spec, err
		}
	}
	if spec.Offset, err = intParam(values, entity, "offset"); err != nil {
		return spec, err
	}

	page, err := intParam(values, entity, "page")
	if err != nil {
		return spec, err
	}
	if page > 0 && values.Get("offset") == "" {
		if spec.Limit == 0 {
			return spec, &errs.InvalidQueryError{Entity: entity, Field: "page", Reason: "page requires limit or per_page"}
		}
		spec.Offset = (page - 1) * spec.Limit
	}
	return spec, nil
}

// ParseFilter parses the filter query parameters. A bare filter[field]
// compares for equality. Filters are returned ordered by field and operator.
func ParseFilter(values url.Values) []ormquery.Filter {
	var filters []ormquery.Filter
	for key, vals := range values {
		matches := filterPattern.FindStringSubmatch(key)
		if matches == nil {
			continue
		}
		op := matches[2]
		if op == "" {
			op = "eq"
		}
		for _, v := range vals {
			filters = append(filters, ormquery.Filter{Field: matches[1], Op: op, Value: v})
		}
	}
	sort.SliceStable(filters, func(i, j int) bool {
		if filters[i].Field != filters[j].Field {
			return filters[i].Field < filters[j].Field
		}
		return filters[i].Op < filters[j].Op
	})
	return filters
}

// ParseFields parses the fields query parameter into a projection.
// Example: ?fields=title,year returns ["title", "year"]
func ParseFields(values url.Values) []string {
	return splitList(values.Get("fields"))
}

// ParseInclude parses the include query parameter into a slice of relationship names.
// Example: ?include=author,tags returns ["author", "tags"]
func ParseInclude(r *http.Request) []string {
	return splitList(r.URL.Query().Get("include"))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func firstOf(values url.Values, names ...string) string {
	for _, n := range names {
		if v := values.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func intParam(values url.Values, entity, name string) (int, error) {
	s := values.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &errs.InvalidQueryError{Entity: entity, Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
