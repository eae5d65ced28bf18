// Package schema provides the metadata model of the admin engine.
// It defines entity, field and relationship metadata with explicit
// nullability, semantic types and cascade/fetch policies, plus the registry
// that holds every entity once introspection has completed.
package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// FieldType represents the declared storage type of a field
type FieldType int

const (
	// Text types
	TypeString FieldType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeDate
	TypeTimestamp

	// Unique identifiers
	TypeUUID

	// Validated types
	TypeEmail
	TypeURL

	// Enum
	TypeEnum

	// Binary large objects
	TypeBinary
)

// String returns the string representation of the field type
func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeEmail:
		return "email"
	case TypeURL:
		return "url"
	case TypeEnum:
		return "enum"
	case TypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType.
// A few common aliases (integer, long, double, boolean, datetime, lob) are accepted.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "varchar":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int", "integer":
		return TypeInt, nil
	case "bigint", "long":
		return TypeBigInt, nil
	case "float", "double":
		return TypeFloat, nil
	case "decimal", "numeric":
		return TypeDecimal, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "date":
		return TypeDate, nil
	case "timestamp", "datetime":
		return TypeTimestamp, nil
	case "uuid":
		return TypeUUID, nil
	case "email":
		return TypeEmail, nil
	case "url":
		return TypeURL, nil
	case "enum":
		return TypeEnum, nil
	case "binary", "bytes", "lob", "blob":
		return TypeBinary, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// Kind is the semantic type of a field, used for operator validity and
// form widgets
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindDate
	KindEnum
	KindBinary
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindEnum:
		return "enum"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Kind returns the semantic kind of the field type
func (t FieldType) Kind() Kind {
	switch t {
	case TypeInt, TypeBigInt, TypeFloat, TypeDecimal:
		return KindNumber
	case TypeBool:
		return KindBoolean
	case TypeDate, TypeTimestamp:
		return KindDate
	case TypeEnum:
		return KindEnum
	case TypeBinary:
		return KindBinary
	default:
		return KindString
	}
}

// IsInteger returns true for integral numeric types
func (t FieldType) IsInteger() bool {
	return t == TypeInt || t == TypeBigInt
}

// RelationKind represents the cardinality of a relationship
type RelationKind int

const (
	OneToOne RelationKind = iota
	OneToMany
	ManyToOne
	ManyToMany
)

// String returns the string representation of the relationship kind
func (r RelationKind) String() string {
	switch r {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToOne:
		return "many_to_one"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// ParseRelationKind converts a string to a RelationKind
func ParseRelationKind(s string) (RelationKind, error) {
	switch normalizeToken(s) {
	case "one_to_one", "has_one":
		return OneToOne, nil
	case "one_to_many", "has_many":
		return OneToMany, nil
	case "many_to_one", "belongs_to":
		return ManyToOne, nil
	case "many_to_many", "has_many_through":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown relationship kind: %s", s)
	}
}

// CascadePolicy governs what happens to dependent records when the record
// they reference is deleted or re-keyed
type CascadePolicy int

const (
	// CascadeNone forbids the operation while dependents exist
	CascadeNone CascadePolicy = iota
	// CascadeDelete deletes dependents along with the referenced record
	CascadeDelete
	// CascadeUpdate rewrites dependents' foreign keys when the referenced key changes
	CascadeUpdate
	// CascadeSetNull clears dependents' foreign keys
	CascadeSetNull
)

// String returns the string representation of the cascade policy
func (c CascadePolicy) String() string {
	switch c {
	case CascadeNone:
		return "none"
	case CascadeDelete:
		return "delete"
	case CascadeUpdate:
		return "update"
	case CascadeSetNull:
		return "set_null"
	default:
		return "unknown"
	}
}

// ParseCascadePolicy converts a string to a CascadePolicy
func ParseCascadePolicy(s string) (CascadePolicy, error) {
	switch normalizeToken(s) {
	case "", "none", "restrict", "no_action":
		return CascadeNone, nil
	case "delete", "cascade", "remove":
		return CascadeDelete, nil
	case "update":
		return CascadeUpdate, nil
	case "set_null", "nullify":
		return CascadeSetNull, nil
	default:
		return 0, fmt.Errorf("unknown cascade policy: %s", s)
	}
}

// FetchPolicy controls whether a relationship is loaded with its owner
type FetchPolicy int

const (
	FetchLazy FetchPolicy = iota
	FetchEager
)

// String returns the string representation of the fetch policy
func (f FetchPolicy) String() string {
	if f == FetchEager {
		return "eager"
	}
	return "lazy"
}

// ParseFetchPolicy converts a string to a FetchPolicy
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch normalizeToken(s) {
	case "", "lazy":
		return FetchLazy, nil
	case "eager":
		return FetchEager, nil
	default:
		return 0, fmt.Errorf("unknown fetch policy: %s", s)
	}
}

// DisplayHints carries presentation hints for forms and lists
type DisplayHints struct {
	Label    string
	Order    int
	Hidden   bool
	ReadOnly bool
	Widget   string
	HelpText string
}

// FieldMetadata describes a single persisted field
type FieldMetadata struct {
	Name   string
	Column string
	Type   FieldType

	Nullable   bool
	MaxLength  int
	MinLength  int
	Min        *float64
	Max        *float64
	Pattern    *regexp.Regexp
	EnumValues []string
	Default    interface{}

	Unique     bool
	PrimaryKey bool
	Auto       bool // generated by the store
	Version    bool // optimistic locking field

	Hints DisplayHints

	// ForeignKeyOf names the relationship whose foreign key this field holds
	ForeignKeyOf string
}

// DisplayLabel returns a user-friendly label, derived from the name unless
// a label hint is set
func (f *FieldMetadata) DisplayLabel() string {
	if strings.TrimSpace(f.Hints.Label) != "" {
		return f.Hints.Label
	}
	return Humanize(f.Name)
}

// Required returns true when a create must supply a value for the field
func (f *FieldMetadata) Required() bool {
	return !f.Nullable && !f.Auto && !f.Version && f.Default == nil
}

// Editable returns true if the field may be set through forms
func (f *FieldMetadata) Editable() bool {
	return !f.Auto && !f.Version && !f.Hints.Hidden && !f.Hints.ReadOnly
}

// Visible returns true if the field should be displayed
func (f *FieldMetadata) Visible() bool {
	return !f.Hints.Hidden
}

// IsForeignKey returns true if the field holds a relationship's foreign key
func (f *FieldMetadata) IsForeignKey() bool {
	return f.ForeignKeyOf != ""
}

// AllowsEnumValue reports whether v is one of the declared enum values
func (f *FieldMetadata) AllowsEnumValue(v string) bool {
	for _, allowed := range f.EnumValues {
		if allowed == v {
			return true
		}
	}
	return false
}

// RelationshipMetadata describes a relationship between two entities
type RelationshipMetadata struct {
	Name   string
	Kind   RelationKind
	Target string

	// Owning is true on the side that stores the foreign key (or, for
	// many-to-many, owns the join entity)
	Owning     bool
	ForeignKey string
	MappedBy   string

	// Many-to-many join entity and its foreign keys
	Through          string
	ThroughOwnerKey  string
	ThroughTargetKey string

	Required bool
	Cascade  CascadePolicy
	Fetch    FetchPolicy
}

// IsToMany returns true for collection-valued relationships
func (r *RelationshipMetadata) IsToMany() bool {
	return r.Kind == OneToMany || r.Kind == ManyToMany
}

// IsToOne returns true for single-valued relationships
func (r *RelationshipMetadata) IsToOne() bool {
	return r.Kind == ManyToOne || r.Kind == OneToOne
}

// CarriesForeignKey returns true if the owning entity stores the foreign key
// column for this relationship
func (r *RelationshipMetadata) CarriesForeignKey() bool {
	return r.Kind == ManyToOne || (r.Kind == OneToOne && r.Owning)
}

// Table is the storage handle of an entity passed to the persistence layer
type Table struct {
	Entity     string
	Name       string
	PrimaryKey string
	AutoKey    bool
	KeyType    FieldType
	Fields     []string
	Columns    map[string]string    // field name -> column name
	Types      map[string]FieldType // field name -> type
}

// Column returns the column for a field name, defaulting to the field name
func (t Table) Column(field string) string {
	if col, ok := t.Columns[field]; ok && col != "" {
		return col
	}
	return field
}

// EntityMetadata is the resolved metadata of one entity
type EntityMetadata struct {
	Name          string
	TableName     string
	Label         string
	Documentation string

	Fields        []*FieldMetadata
	Relationships []*RelationshipMetadata

	PrimaryKey   string
	VersionField string

	fieldIndex map[string]*FieldMetadata
	relIndex   map[string]*RelationshipMetadata
}

// NewEntityMetadata creates an EntityMetadata with the conventional table name
func NewEntityMetadata(name string) *EntityMetadata {
	return &EntityMetadata{
		Name:      name,
		TableName: TableNameFor(name),
	}
}

// AddField appends a field and indexes it
func (e *EntityMetadata) AddField(f *FieldMetadata) {
	if f.Column == "" {
		f.Column = f.Name
	}
	e.Fields = append(e.Fields, f)
	if e.fieldIndex != nil {
		e.fieldIndex[f.Name] = f
	}
	if f.PrimaryKey {
		f.Unique = true
		e.PrimaryKey = f.Name
	}
	if f.Version {
		e.VersionField = f.Name
	}
}

// AddRelationship appends a relationship and indexes it
func (e *EntityMetadata) AddRelationship(r *RelationshipMetadata) {
	e.Relationships = append(e.Relationships, r)
	if e.relIndex != nil {
		e.relIndex[r.Name] = r
	}
}

func (e *EntityMetadata) index() {
	e.fieldIndex = make(map[string]*FieldMetadata, len(e.Fields))
	for _, f := range e.Fields {
		e.fieldIndex[f.Name] = f
	}
	e.relIndex = make(map[string]*RelationshipMetadata, len(e.Relationships))
	for _, r := range e.Relationships {
		e.relIndex[r.Name] = r
	}
}

// Field returns the field with the given name
func (e *EntityMetadata) Field(name string) (*FieldMetadata, bool) {
	if e.fieldIndex != nil {
		f, ok := e.fieldIndex[name]
		return f, ok
	}
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// HasField returns true if the entity has a field with the given name
func (e *EntityMetadata) HasField(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// Relationship returns the relationship with the given name
func (e *EntityMetadata) Relationship(name string) (*RelationshipMetadata, bool) {
	if e.relIndex != nil {
		r, ok := e.relIndex[name]
		return r, ok
	}
	for _, r := range e.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// PrimaryKeyField returns the primary-key field metadata
func (e *EntityMetadata) PrimaryKeyField() *FieldMetadata {
	f, _ := e.Field(e.PrimaryKey)
	return f
}

// VersionFieldMetadata returns the optimistic-locking field, if any
func (e *EntityMetadata) VersionFieldMetadata() (*FieldMetadata, bool) {
	if e.VersionField == "" {
		return nil, false
	}
	return e.Field(e.VersionField)
}

// FieldNames returns the field names in declaration order
func (e *EntityMetadata) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// DisplayName returns the label if set, otherwise the entity name
func (e *EntityMetadata) DisplayName() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Name
}

// Storage returns the storage handle for the entity
func (e *EntityMetadata) Storage() Table {
	t := Table{
		Entity:     e.Name,
		Name:       e.TableName,
		PrimaryKey: e.PrimaryKey,
		Fields:     e.FieldNames(),
		Columns:    make(map[string]string, len(e.Fields)),
		Types:      make(map[string]FieldType, len(e.Fields)),
	}
	for _, f := range e.Fields {
		t.Columns[f.Name] = f.Column
		t.Types[f.Name] = f.Type
		if f.PrimaryKey {
			t.AutoKey = f.Auto
			t.KeyType = f.Type
		}
	}
	return t
}

// TableNameFor converts an entity name to a table name (snake_case plural)
func TableNameFor(entity string) string {
	return pluralize(ToSnakeCase(entity))
}

// Humanize turns camelCase or snake_case names into Title Case labels
func Humanize(name string) string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}

// ToSnakeCase converts a string to snake_case
func ToSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// Add underscore at a camelCase boundary or at the end of an
			// acronym ("HTTPServer" -> "http_server")
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' && prev != '_' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])) {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
