// Package introspect builds entity metadata from entity type descriptors.
//
// A descriptor is produced by anything implementing Describable: Go structs
// through FromStruct, or Descriptor values decoded from configuration.
package introspect

// Describable is implemented by every entity type adapter
type Describable interface {
	Describe() (*Descriptor, error)
}

// Descriptor is the raw declaration of an entity, before types, keys and
// relationships have been resolved
type Descriptor struct {
	Name          string         `mapstructure:"name"`
	Table         string         `mapstructure:"table"`
	Label         string         `mapstructure:"label"`
	Documentation string         `mapstructure:"documentation"`
	Fields        []FieldDecl    `mapstructure:"fields"`
	Relationships []RelationDecl `mapstructure:"relationships"`
}

// Describe implements Describable
func (d *Descriptor) Describe() (*Descriptor, error) {
	return d, nil
}

// FieldDecl declares a persisted field
type FieldDecl struct {
	Name    string `mapstructure:"name"`
	Column  string `mapstructure:"column"`
	Type    string `mapstructure:"type"`
	Default string `mapstructure:"default"`

	PrimaryKey bool `mapstructure:"primary_key"`
	Auto       bool `mapstructure:"auto"`
	Required   bool `mapstructure:"required"`
	Nullable   bool `mapstructure:"nullable"`
	Unique     bool `mapstructure:"unique"`
	Version    bool `mapstructure:"version"`

	MaxLength int      `mapstructure:"max_length"`
	MinLength int      `mapstructure:"min_length"`
	Min       *float64 `mapstructure:"min"`
	Max       *float64 `mapstructure:"max"`
	Pattern   string   `mapstructure:"pattern"`
	Enum      []string `mapstructure:"enum"`

	Label    string `mapstructure:"label"`
	Order    int    `mapstructure:"order"`
	Hidden   bool   `mapstructure:"hidden"`
	ReadOnly bool   `mapstructure:"read_only"`
	Widget   string `mapstructure:"widget"`
	HelpText string `mapstructure:"help_text"`
}

// RelationDecl declares a relationship to another entity
type RelationDecl struct {
	Name   string `mapstructure:"name"`
	Kind   string `mapstructure:"kind"`
	Target string `mapstructure:"target"`

	// ForeignKey names the field holding the key on the owning side. It
	// defaults to "<name>_id" and is synthesized when not declared as a field.
	ForeignKey string `mapstructure:"foreign_key"`
	MappedBy   string `mapstructure:"mapped_by"`

	Through          string `mapstructure:"through"`
	ThroughOwnerKey  string `mapstructure:"owner_key"`
	ThroughTargetKey string `mapstructure:"target_key"`

	Required bool   `mapstructure:"required"`
	Cascade  string `mapstructure:"cascade"`
	Fetch    string `mapstructure:"fetch"`
}

// Descriptors adapts a slice of descriptors to Describable values
func Descriptors(ds []Descriptor) []Describable {
	out := make([]Describable, len(ds))
	for i := range ds {
		out[i] = &ds[i]
	}
	return out
}
