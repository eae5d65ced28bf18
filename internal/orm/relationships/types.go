// Package relationships resolves related records of an entity instance
// through the store, on demand and with paginated to-many results
package relationships

import (
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
)

// Instance is a record of an entity: its field values plus handles to its
// relationships. An instance belongs to one request and is never cached.
type Instance struct {
	Entity    string                 `json:"entity"`
	Key       interface{}            `json:"key"`
	Values    map[string]interface{} `json:"values"`
	Relations map[string]*Handle     `json:"relations,omitempty"`
}

// NewInstance builds an instance from a stored row
func NewInstance(meta *schema.EntityMetadata, row store.Row) *Instance {
	values := make(map[string]interface{}, len(row))
	for k, v := range row {
		values[k] = v
	}
	return &Instance{
		Entity: meta.Name,
		Key:    values[meta.PrimaryKey],
		Values: values,
	}
}

// Get returns the value of a field
func (i *Instance) Get(field string) interface{} {
	return i.Values[field]
}

// Handle refers to one relationship of an instance. Unresolved handles carry
// only what is needed to resolve them later.
type Handle struct {
	Name   string              `json:"name"`
	Kind   schema.RelationKind `json:"-"`
	Target string              `json:"target"`

	// Owner identifies the instance the handle belongs to
	Owner    string      `json:"-"`
	OwnerKey interface{} `json:"-"`
	// Ref is the foreign-key value of a relationship stored on the owner
	Ref interface{} `json:"ref,omitempty"`

	Loaded bool    `json:"loaded"`
	Result *Result `json:"result,omitempty"`
}

// Result holds resolved related records: One for to-one relationships (nil
// when there is no related record), Many for to-many relationships
type Result struct {
	One  *Instance `json:"one,omitempty"`
	Many *Page     `json:"many,omitempty"`
}

// Page is one page of records with the total number of matches
type Page struct {
	Items  []*Instance `json:"items"`
	Total  int64       `json:"total"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

// HasMore reports whether records follow this page
func (p *Page) HasMore() bool {
	return int64(p.Offset+len(p.Items)) < p.Total
}
