package admin

import (
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// EntitySummary is one entry of the entity index
type EntitySummary struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	Table      string `json:"table"`
	PrimaryKey string `json:"primary_key"`
	Fields     int    `json:"fields"`
}

// EntityView is the metadata of one entity as served to admin clients
type EntityView struct {
	Name          string             `json:"name"`
	Label         string             `json:"label"`
	Documentation string             `json:"documentation,omitempty"`
	Table         string             `json:"table"`
	PrimaryKey    string             `json:"primary_key"`
	VersionField  string             `json:"version_field,omitempty"`
	Fields        []FieldView        `json:"fields"`
	Relationships []RelationshipView `json:"relationships"`
}

// FieldView describes one field for form and list rendering
type FieldView struct {
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	Type       string      `json:"type"`
	Required   bool        `json:"required"`
	Nullable   bool        `json:"nullable"`
	Unique     bool        `json:"unique,omitempty"`
	PrimaryKey bool        `json:"primary_key,omitempty"`
	Generated  bool        `json:"generated,omitempty"`
	Version    bool        `json:"version,omitempty"`
	Editable   bool        `json:"editable"`
	MaxLength  int         `json:"max_length,omitempty"`
	MinLength  int         `json:"min_length,omitempty"`
	Min        *float64    `json:"min,omitempty"`
	Max        *float64    `json:"max,omitempty"`
	Pattern    string      `json:"pattern,omitempty"`
	Enum       []string    `json:"enum,omitempty"`
	Default    interface{} `json:"default,omitempty"`
	References string      `json:"references,omitempty"`
	Widget     string      `json:"widget,omitempty"`
	HelpText   string      `json:"help_text,omitempty"`
	Order      int         `json:"order,omitempty"`
}

// RelationshipView describes one relationship
type RelationshipView struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	ForeignKey string `json:"foreign_key,omitempty"`
	MappedBy   string `json:"mapped_by,omitempty"`
	Through    string `json:"through,omitempty"`
	Required   bool   `json:"required,omitempty"`
	Cascade    string `json:"cascade"`
	Fetch      string `json:"fetch"`
}

func summarize(meta *schema.EntityMetadata) EntitySummary {
	return EntitySummary{
		Name:       meta.Name,
		Label:      meta.DisplayName(),
		Table:      meta.TableName,
		PrimaryKey: meta.PrimaryKey,
		Fields:     len(meta.Fields),
	}
}

func describe(meta *schema.EntityMetadata) EntityView {
	view := EntityView{
		Name:          meta.Name,
		Label:         meta.DisplayName(),
		Documentation: meta.Documentation,
		Table:         meta.TableName,
		PrimaryKey:    meta.PrimaryKey,
		VersionField:  meta.VersionField,
		Fields:        make([]FieldView, 0, len(meta.Fields)),
		Relationships: make([]RelationshipView, 0, len(meta.Relationships)),
	}
	for _, f := range meta.Fields {
		if !f.Visible() {
			continue
		}
		fv := FieldView{
			Name:       f.Name,
			Label:      f.DisplayLabel(),
			Type:       f.Type.String(),
			Required:   f.Required(),
			Nullable:   f.Nullable,
			Unique:     f.Unique,
			PrimaryKey: f.PrimaryKey,
			Generated:  f.Auto,
			Version:    f.Version,
			Editable:   f.Editable(),
			MaxLength:  f.MaxLength,
			MinLength:  f.MinLength,
			Min:        f.Min,
			Max:        f.Max,
			Enum:       f.EnumValues,
			Default:    f.Default,
			Widget:     f.Hints.Widget,
			HelpText:   f.Hints.HelpText,
			Order:      f.Hints.Order,
		}
		if f.Pattern != nil {
			fv.Pattern = f.Pattern.String()
		}
		if rel, ok := meta.Relationship(f.ForeignKeyOf); ok {
			fv.References = rel.Target
		}
		view.Fields = append(view.Fields, fv)
	}
	for _, r := range meta.Relationships {
		view.Relationships = append(view.Relationships, RelationshipView{
			Name:       r.Name,
			Kind:       r.Kind.String(),
			Target:     r.Target,
			ForeignKey: r.ForeignKey,
			MappedBy:   r.MappedBy,
			Through:    r.Through,
			Required:   r.Required,
			Cascade:    r.Cascade.String(),
			Fetch:      r.Fetch.String(),
		})
	}
	return view
}
