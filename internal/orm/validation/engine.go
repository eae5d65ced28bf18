// Package validation coerces and validates record values against entity
// metadata. Every violation is collected into one errs.ValidationError so a
// caller can report all problems of a submission at once.
package validation

import (
	"fmt"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Mode selects the rules applied to a record
type Mode int

const (
	// ModeCreate validates a complete record: required fields must be present
	// and defaults are applied
	ModeCreate Mode = iota
	// ModeUpdate validates only the supplied fields
	ModeUpdate
)

// String returns the string representation of the mode
func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "create"
}

// Validation messages shared with callers that add their own checks
const (
	MsgRequired  = "is required"
	MsgUnknown   = "is not a field of %s"
	MsgReadOnly  = "is read-only"
	MsgGenerated = "is generated automatically"
	MsgType      = "must be a valid %s"
	MsgNotUnique = "is not unique"
	MsgMissing   = "references a missing %s"
	MsgTooLarge  = "exceeds the maximum size of %d bytes"
)

// Engine is the validation engine that coordinates all validation layers.
// It is not modified after construction and is safe for concurrent use.
type Engine struct {
	// MaxBinarySize caps the decoded size of binary field values; zero
	// means no limit
	MaxBinarySize int64
}

// NewEngine creates a new validation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Check coerces input to canonical field values and validates them. Input keys
// may be field names or the name of an owning to-one relationship, which is
// stored under its foreign-key field. The returned ValidationError is never
// nil; callers may add further violations before checking HasErrors.
func (e *Engine) Check(
	entity *schema.EntityMetadata,
	input map[string]interface{},
	mode Mode,
) (map[string]interface{}, *errs.ValidationError) {
	verr := errs.NewValidationError(entity.Name)
	values := make(map[string]interface{}, len(input))

	// Layer 1: field resolution and type coercion
	for key, raw := range input {
		field, ok := ResolveField(entity, key)
		if !ok {
			verr.Add(key, fmt.Sprintf(MsgUnknown, entity.Name))
			continue
		}
		if msg := writable(field, mode); msg != "" {
			verr.Add(field.Name, msg)
			continue
		}

		value, err := convert.Value(field.Type, raw)
		if err != nil {
			verr.Add(field.Name, fmt.Sprintf(MsgType, field.Type))
			continue
		}
		values[field.Name] = value
	}

	// Layer 2: nullability and defaults
	e.validateNullability(entity, values, mode, verr)

	// Layer 3: field-level constraints (length, bounds, pattern, email, url, enum)
	e.validateFieldConstraints(entity, values, verr)

	return values, verr
}

// ValidateField validates a single already-coerced field value
func (e *Engine) ValidateField(field *schema.FieldMetadata, value interface{}) error {
	verr := errs.NewValidationError("")

	if value == nil {
		if !field.Nullable && !field.Auto {
			verr.Add(field.Name, MsgRequired)
			return verr
		}
		return nil
	}

	for _, v := range FieldValidators(field) {
		if err := v.Validate(value); err != nil {
			verr.Add(field.Name, err.Error())
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// validateNullability requires non-null values for required fields on create
// and for any supplied non-nullable field on update
func (e *Engine) validateNullability(
	entity *schema.EntityMetadata,
	values map[string]interface{},
	mode Mode,
	verr *errs.ValidationError,
) {
	for _, field := range entity.Fields {
		value, supplied := values[field.Name]

		if mode == ModeCreate && !supplied && field.Default != nil {
			values[field.Name] = field.Default
			continue
		}

		if field.Auto || field.Version || value != nil {
			continue
		}
		if _, reported := verr.Fields[field.Name]; reported {
			continue
		}
		switch mode {
		case ModeCreate:
			if field.Required() || (supplied && !field.Nullable) {
				verr.Add(field.Name, MsgRequired)
			}
		case ModeUpdate:
			if supplied && !field.Nullable {
				verr.Add(field.Name, MsgRequired)
			}
		}
	}
}

// validateFieldConstraints validates field-level constraints of non-null values
func (e *Engine) validateFieldConstraints(
	entity *schema.EntityMetadata,
	values map[string]interface{},
	verr *errs.ValidationError,
) {
	for _, field := range entity.Fields {
		value, ok := values[field.Name]
		if !ok || value == nil {
			continue
		}
		for _, v := range FieldValidators(field) {
			if err := v.Validate(value); err != nil {
				verr.Add(field.Name, err.Error())
			}
		}
		if b, ok := value.([]byte); ok && e.MaxBinarySize > 0 && int64(len(b)) > e.MaxBinarySize {
			verr.Add(field.Name, fmt.Sprintf(MsgTooLarge, e.MaxBinarySize))
		}
	}
}

// ResolveField maps an input key to a field: either the field itself or the
// foreign-key field of an owning to-one relationship
func ResolveField(entity *schema.EntityMetadata, key string) (*schema.FieldMetadata, bool) {
	if f, ok := entity.Field(key); ok {
		return f, true
	}
	if rel, ok := entity.Relationship(key); ok && rel.CarriesForeignKey() {
		return entity.Field(rel.ForeignKey)
	}
	return nil, false
}

func writable(field *schema.FieldMetadata, mode Mode) string {
	switch mode {
	case ModeCreate:
		if field.Auto || field.Version {
			return MsgGenerated
		}
	case ModeUpdate:
		// The version field is accepted so callers can pass the version they read
		if field.Version {
			return ""
		}
		if field.Auto || field.Hints.ReadOnly {
			return MsgReadOnly
		}
	}
	return ""
}
