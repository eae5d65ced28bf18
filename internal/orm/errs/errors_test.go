package errs

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"schema", Schemaf("Book", "id", "no primary key"), KindSchema},
		{"not found", &NotFoundError{Entity: "Book", Key: 1}, KindNotFound},
		{"invalid query", &InvalidQueryError{Entity: "Book", Field: "x"}, KindInvalidQuery},
		{"validation", NewValidationError("Book"), KindValidation},
		{"concurrent", &ConcurrentModificationError{Entity: "Book"}, KindConcurrentModification},
		{"integrity", &IntegrityError{Entity: "Author"}, KindIntegrity},
		{"forbidden", &ForbiddenError{Entity: "Book", Operation: "delete"}, KindForbidden},
		{"immutable", &ImmutableStateError{Op: "register"}, KindImmutableState},
		{"wrapped", fmt.Errorf("outer: %w", &NotFoundError{Entity: "Book"}), KindNotFound},
		{"plain", fmt.Errorf("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestValidationError_Messages(t *testing.T) {
	ve := NewValidationError("Book")
	assert.False(t, ve.HasErrors())
	assert.Equal(t, "validation failed", ve.Error())

	ve.Add("isbn", "not unique")
	assert.Equal(t, "validation failed: isbn: not unique", ve.Error())

	ve.Add("title", "is required")
	ve.Add("title", "is required")
	assert.Equal(t, 2, ve.Count())
	assert.True(t, ve.Has("isbn", "not unique"))
	assert.Equal(t, []string{"isbn", "title"}, ve.FieldNames())
	assert.Equal(t, "validation failed: isbn: not unique; title: is required", ve.Error())
}

func TestValidationError_MarshalJSON(t *testing.T) {
	ve := NewValidationError("Book")
	ve.Add("isbn", "not unique")

	data, err := json.Marshal(ve)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "validation_failed", decoded["error"])
	assert.Contains(t, decoded["fields"], "isbn")
}

func TestAsValidation(t *testing.T) {
	ve := NewValidationError("Book")
	ve.Add("title", "is required")

	got, ok := AsValidation(fmt.Errorf("create: %w", ve))
	require.True(t, ok)
	assert.Same(t, ve, got)

	_, ok = AsValidation(fmt.Errorf("other"))
	assert.False(t, ok)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Book with key 7 not found", (&NotFoundError{Entity: "Book", Key: 7}).Error())
	assert.Equal(t, "entity Ghost not found", (&NotFoundError{Entity: "Ghost"}).Error())
	assert.Contains(t, (&IntegrityError{Entity: "Author", Key: 5, Dependent: "Book", Relationship: "author", Count: 2}).Error(), "2 Book record(s)")
	assert.Equal(t, "register: registry is frozen", (&ImmutableStateError{Op: "register"}).Error())
}
