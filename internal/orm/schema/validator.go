package schema

import (
	"errors"

	"github.com/conduit-lang/admin/internal/orm/errs"
)

// Validator checks the metadata invariants of entities
type Validator struct {
	errors []error
}

// NewValidator creates a new metadata validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEntity checks the invariants of a single entity without looking at
// other entities
func (v *Validator) ValidateEntity(e *EntityMetadata) error {
	v.errors = v.errors[:0]

	if e.Name == "" {
		v.fail("", "", "entity name is required")
		return v.result()
	}
	if e.TableName == "" {
		v.fail(e.Name, "", "table name is required")
	}

	v.validateFields(e)
	v.validatePrimaryKey(e)
	v.validateVersion(e)
	v.validateRelationshipShapes(e)

	return v.result()
}

// ValidateRelationships checks relationship invariants across all entities
func (v *Validator) ValidateRelationships(entities map[string]*EntityMetadata, order []string) error {
	v.errors = v.errors[:0]

	for _, name := range order {
		e := entities[name]
		for _, rel := range e.Relationships {
			target, ok := entities[rel.Target]
			if !ok {
				v.fail(e.Name, rel.Name, "relationship target %s is not a registered entity", rel.Target)
				continue
			}

			switch {
			case rel.CarriesForeignKey():
				v.validateForeignKey(e, rel, target)
			case rel.Kind == OneToMany || rel.Kind == OneToOne:
				v.validateInverse(e, rel, target)
			case rel.Kind == ManyToMany:
				v.validateThrough(e, rel, entities)
			}
		}
	}

	return v.result()
}

func (v *Validator) validateFields(e *EntityMetadata) {
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			v.fail(e.Name, "", "field name is required")
			continue
		}
		if seen[f.Name] {
			v.fail(e.Name, f.Name, "duplicate field")
		}
		seen[f.Name] = true

		if f.MaxLength < 0 || f.MinLength < 0 {
			v.fail(e.Name, f.Name, "length bounds must not be negative")
		}
		if f.MaxLength > 0 && f.Type.Kind() != KindString {
			v.fail(e.Name, f.Name, "max length is only valid for string fields, not %s", f.Type)
		}
		if f.MaxLength > 0 && f.MinLength > f.MaxLength {
			v.fail(e.Name, f.Name, "min length %d exceeds max length %d", f.MinLength, f.MaxLength)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			v.fail(e.Name, f.Name, "min %v exceeds max %v", *f.Min, *f.Max)
		}
		if f.Type == TypeEnum {
			if len(f.EnumValues) == 0 {
				v.fail(e.Name, f.Name, "enum field declares no values")
			}
			if s, ok := f.Default.(string); ok && !f.AllowsEnumValue(s) {
				v.fail(e.Name, f.Name, "default %q is not an enum value", s)
			}
		}
	}
}

func (v *Validator) validatePrimaryKey(e *EntityMetadata) {
	var candidates []*FieldMetadata
	for _, f := range e.Fields {
		if f.PrimaryKey {
			candidates = append(candidates, f)
		}
	}

	switch len(candidates) {
	case 0:
		v.fail(e.Name, "", "no primary key field")
		return
	case 1:
	default:
		v.fail(e.Name, "", "%d primary key fields, exactly one is required", len(candidates))
		return
	}

	pk := candidates[0]
	if e.PrimaryKey != pk.Name {
		v.fail(e.Name, pk.Name, "primary key reference %q does not match the primary key field", e.PrimaryKey)
	}
	if pk.Nullable {
		v.fail(e.Name, pk.Name, "primary key must not be nullable")
	}
	if !pk.Unique {
		v.fail(e.Name, pk.Name, "primary key must be unique")
	}
	switch pk.Type.Kind() {
	case KindNumber, KindString:
	default:
		v.fail(e.Name, pk.Name, "%s is not a valid primary key type", pk.Type)
	}
}

func (v *Validator) validateVersion(e *EntityMetadata) {
	var versions []*FieldMetadata
	for _, f := range e.Fields {
		if f.Version {
			versions = append(versions, f)
		}
	}
	if len(versions) > 1 {
		v.fail(e.Name, "", "only one version field is allowed")
		return
	}
	if len(versions) == 0 {
		if e.VersionField != "" {
			v.fail(e.Name, e.VersionField, "version field is not declared")
		}
		return
	}

	f := versions[0]
	if f.PrimaryKey {
		v.fail(e.Name, f.Name, "primary key cannot be the version field")
	}
	if !f.Type.IsInteger() && f.Type != TypeTimestamp {
		v.fail(e.Name, f.Name, "version field must be an integer or timestamp, not %s", f.Type)
	}
	if e.VersionField != f.Name {
		v.fail(e.Name, f.Name, "version field reference %q does not match", e.VersionField)
	}
}

func (v *Validator) validateRelationshipShapes(e *EntityMetadata) {
	seen := make(map[string]bool, len(e.Relationships))
	for _, rel := range e.Relationships {
		if rel.Name == "" {
			v.fail(e.Name, "", "relationship name is required")
			continue
		}
		if seen[rel.Name] {
			v.fail(e.Name, rel.Name, "duplicate relationship")
		}
		seen[rel.Name] = true

		if e.HasField(rel.Name) {
			v.fail(e.Name, rel.Name, "relationship name collides with a field")
		}
		if rel.Target == "" {
			v.fail(e.Name, rel.Name, "relationship has no target entity")
		}

		switch {
		case rel.CarriesForeignKey():
			fk, ok := e.Field(rel.ForeignKey)
			if !ok {
				v.fail(e.Name, rel.Name, "foreign key field %q is not declared", rel.ForeignKey)
				continue
			}
			if fk.ForeignKeyOf != rel.Name {
				v.fail(e.Name, fk.Name, "field is used as foreign key of %s but is not marked as such", rel.Name)
			}
			if rel.Required && fk.Nullable {
				v.fail(e.Name, fk.Name, "required relationship %s has a nullable foreign key", rel.Name)
			}
			if rel.Cascade == CascadeSetNull && !fk.Nullable {
				v.fail(e.Name, rel.Name, "set_null cascade requires a nullable foreign key")
			}
		case rel.Kind == ManyToMany:
			if rel.Through == "" || rel.ThroughOwnerKey == "" || rel.ThroughTargetKey == "" {
				v.fail(e.Name, rel.Name, "many-to-many relationship requires a join entity and both keys")
			}
		default:
			if rel.MappedBy == "" {
				v.fail(e.Name, rel.Name, "inverse relationship requires mapped_by")
			}
		}
	}
}

func (v *Validator) validateForeignKey(e *EntityMetadata, rel *RelationshipMetadata, target *EntityMetadata) {
	fk, ok := e.Field(rel.ForeignKey)
	if !ok {
		return
	}
	pk := target.PrimaryKeyField()
	if pk == nil {
		v.fail(e.Name, rel.Name, "target %s has no primary key", target.Name)
		return
	}
	if !KeyTypesCompatible(fk.Type, pk.Type) {
		v.fail(e.Name, fk.Name, "foreign key type %s is incompatible with %s.%s (%s)",
			fk.Type, target.Name, pk.Name, pk.Type)
	}
}

func (v *Validator) validateInverse(e *EntityMetadata, rel *RelationshipMetadata, target *EntityMetadata) {
	owning, ok := target.Relationship(rel.MappedBy)
	if !ok {
		v.fail(e.Name, rel.Name, "mapped_by %q is not a relationship of %s", rel.MappedBy, target.Name)
		return
	}
	if !owning.CarriesForeignKey() || owning.Target != e.Name {
		v.fail(e.Name, rel.Name, "mapped_by %s.%s must be an owning relationship back to %s",
			target.Name, owning.Name, e.Name)
	}
	if rel.Kind == OneToMany && owning.Kind != ManyToOne {
		v.fail(e.Name, rel.Name, "one-to-many must be mapped by a many-to-one, got %s", owning.Kind)
	}
	if rel.Kind == OneToOne && owning.Kind != OneToOne {
		v.fail(e.Name, rel.Name, "inverse one-to-one must be mapped by a one-to-one, got %s", owning.Kind)
	}
}

func (v *Validator) validateThrough(e *EntityMetadata, rel *RelationshipMetadata, entities map[string]*EntityMetadata) {
	through, ok := entities[rel.Through]
	if !ok {
		v.fail(e.Name, rel.Name, "join entity %s is not registered", rel.Through)
		return
	}

	check := func(key, want string) {
		f, ok := through.Field(key)
		if !ok || !f.IsForeignKey() {
			v.fail(e.Name, rel.Name, "join entity %s has no foreign key %q", through.Name, key)
			return
		}
		ref, _ := through.Relationship(f.ForeignKeyOf)
		if ref == nil || ref.Target != want {
			v.fail(e.Name, rel.Name, "join key %s.%s does not reference %s", through.Name, key, want)
		}
	}
	check(rel.ThroughOwnerKey, e.Name)
	check(rel.ThroughTargetKey, rel.Target)
}

// KeyTypesCompatible reports whether a foreign key of type fk can reference a
// primary key of type pk
func KeyTypesCompatible(fk, pk FieldType) bool {
	if fk == pk {
		return true
	}
	if fk.IsInteger() && pk.IsInteger() {
		return true
	}
	textual := func(t FieldType) bool { return t == TypeString || t == TypeUUID }
	return textual(fk) && textual(pk)
}

// Errors returns the errors of the last validation
func (v *Validator) Errors() []error {
	return v.errors
}

func (v *Validator) fail(entity, field, format string, args ...interface{}) {
	v.errors = append(v.errors, errs.Schemaf(entity, field, format, args...))
}

func (v *Validator) result() error {
	switch len(v.errors) {
	case 0:
		return nil
	case 1:
		return v.errors[0]
	default:
		return errors.Join(v.errors...)
	}
}
