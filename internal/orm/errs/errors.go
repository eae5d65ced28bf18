// Package errs defines the typed error taxonomy shared by the admin engine.
//
// Every failure path in the engine returns one of the types below (possibly
// wrapped). Callers classify errors with errors.Is against the sentinels or
// with Classify at the request boundary.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an engine error for the request boundary
type Kind int

const (
	KindUnknown Kind = iota
	KindSchema
	KindNotFound
	KindInvalidQuery
	KindValidation
	KindConcurrentModification
	KindIntegrity
	KindForbidden
	KindImmutableState
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSchema:
		return "schema_error"
	case KindNotFound:
		return "not_found"
	case KindInvalidQuery:
		return "invalid_query"
	case KindValidation:
		return "validation_failed"
	case KindConcurrentModification:
		return "concurrent_modification"
	case KindIntegrity:
		return "integrity_violation"
	case KindForbidden:
		return "forbidden"
	case KindImmutableState:
		return "immutable_state"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is for each typed error
var (
	ErrSchema                 = errors.New("schema error")
	ErrNotFound               = errors.New("not found")
	ErrInvalidQuery           = errors.New("invalid query")
	ErrValidation             = errors.New("validation failed")
	ErrConcurrentModification = errors.New("record was modified concurrently")
	ErrIntegrity              = errors.New("integrity violation")
	ErrForbidden              = errors.New("forbidden")
	ErrImmutableState         = errors.New("immutable state")
)

// SchemaError is returned when entity metadata cannot be built. It is fatal
// during startup.
type SchemaError struct {
	Entity string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("schema error: %s.%s: %s", e.Entity, e.Field, e.Reason)
	case e.Entity != "":
		return fmt.Sprintf("schema error: %s: %s", e.Entity, e.Reason)
	default:
		return "schema error: " + e.Reason
	}
}

// Is implements errors.Is matching
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// Schemaf creates a SchemaError with a formatted reason
func Schemaf(entity, field, format string, args ...interface{}) *SchemaError {
	return &SchemaError{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when an entity or record does not exist
type NotFoundError struct {
	Entity string
	Key    interface{}
}

func (e *NotFoundError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("entity %s not found", e.Entity)
	}
	return fmt.Sprintf("%s with key %v not found", e.Entity, e.Key)
}

// Is implements errors.Is matching
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidQueryError is returned when a list request references unknown fields
// or uses an operator that is not valid for a field's type
type InvalidQueryError struct {
	Entity string
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid query on %s.%s: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid query on %s: %s", e.Entity, e.Reason)
}

// Is implements errors.Is matching
func (e *InvalidQueryError) Is(target error) bool { return target == ErrInvalidQuery }

// ValidationError carries every violated field of a create or update
type ValidationError struct {
	Entity string              `json:"-"`
	Fields map[string][]string `json:"fields"`
}

// NewValidationError creates an empty ValidationError for an entity
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Fields: make(map[string][]string),
	}
}

// Add records a message for a field
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	for _, existing := range e.Fields[field] {
		if existing == message {
			return
		}
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// HasErrors returns true if any field has a message
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Count returns the total number of messages across all fields
func (e *ValidationError) Count() int {
	n := 0
	for _, msgs := range e.Fields {
		n += len(msgs)
	}
	return n
}

// Has reports whether the field has the given message
func (e *ValidationError) Has(field, message string) bool {
	for _, msg := range e.Fields[field] {
		if msg == message {
			return true
		}
	}
	return false
}

// FieldNames returns the violated fields in sorted order
func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *ValidationError) Error() string {
	if !e.HasErrors() {
		return "validation failed"
	}

	var messages []string
	for _, field := range e.FieldNames() {
		for _, msg := range e.Fields[field] {
			messages = append(messages, fmt.Sprintf("%s: %s", field, msg))
		}
	}

	if len(messages) == 1 {
		return "validation failed: " + messages[0]
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// Is implements errors.Is matching
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// MarshalJSON implements json.Marshaler
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  KindValidation.String(),
		Fields: e.Fields,
	})
}

// ConcurrentModificationError is returned when an update was based on a stale
// read of a versioned record
type ConcurrentModificationError struct {
	Entity   string
	Key      interface{}
	Expected interface{}
	Actual   interface{}
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s with key %v was modified concurrently (expected version %v, found %v)",
		e.Entity, e.Key, e.Expected, e.Actual)
}

// Is implements errors.Is matching
func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

// IntegrityError is returned when a destructive operation would orphan
// dependent records whose relationship forbids cascading
type IntegrityError struct {
	Entity       string
	Key          interface{}
	Dependent    string
	Relationship string
	Count        int64
	Reason       string
}

func (e *IntegrityError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("integrity violation on %s %v: %s", e.Entity, e.Key, e.Reason)
	}
	return fmt.Sprintf("integrity violation on %s %v: %d %s record(s) depend on it through %s",
		e.Entity, e.Key, e.Count, e.Dependent, e.Relationship)
}

// Is implements errors.Is matching
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// ForbiddenError is returned when the access-control gate denies an operation
type ForbiddenError struct {
	Entity    string
	Operation string
	Reason    string
}

func (e *ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s on %s forbidden: %s", e.Operation, e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s on %s forbidden", e.Operation, e.Entity)
}

// Is implements errors.Is matching
func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// ImmutableStateError is returned when frozen state is mutated
type ImmutableStateError struct {
	Op string
}

func (e *ImmutableStateError) Error() string {
	return fmt.Sprintf("%s: registry is frozen", e.Op)
}

// Is implements errors.Is matching
func (e *ImmutableStateError) Is(target error) bool { return target == ErrImmutableState }

// Classify returns the kind of an engine error
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrSchema):
		return KindSchema
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidQuery):
		return KindInvalidQuery
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConcurrentModification):
		return KindConcurrentModification
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrImmutableState):
		return KindImmutableState
	default:
		return KindUnknown
	}
}

// IsNotFound returns true if err is a NotFoundError
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation returns true if err is a ValidationError
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsIntegrity returns true if err is an IntegrityError
func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrity) }

// IsConcurrentModification returns true if err is a ConcurrentModificationError
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsForbidden returns true if err is a ForbiddenError
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsInvalidQuery returns true if err is an InvalidQueryError
func IsInvalidQuery(err error) bool { return errors.Is(err, ErrInvalidQuery) }

// AsValidation extracts a ValidationError from err
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
