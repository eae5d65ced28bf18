package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Validator defines the interface for field validators
type Validator interface {
	Validate(value interface{}) error
}

// MinValidator validates minimum values for numeric types and string lengths
type MinValidator struct {
	Min       float64
	FieldType schema.FieldType
}

// Validate implements the Validator interface
func (v *MinValidator) Validate(value interface{}) error {
	if value == nil {
		return nil // Nullable fields are validated separately
	}

	switch v.FieldType.Kind() {
	case schema.KindNumber:
		n, err := convert.ToFloat64(value)
		if err != nil {
			return fmt.Errorf("expected numeric value")
		}
		if n < v.Min {
			return fmt.Errorf("must be at least %v", v.Min)
		}

	case schema.KindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string value")
		}
		if float64(utf8.RuneCountInString(s)) < v.Min {
			return fmt.Errorf("must be at least %d characters", int(v.Min))
		}
	}

	return nil
}

// MaxValidator validates maximum values for numeric types and string lengths
type MaxValidator struct {
	Max       float64
	FieldType schema.FieldType
}

// Validate implements the Validator interface
func (v *MaxValidator) Validate(value interface{}) error {
	if value == nil {
		return nil // Nullable fields are validated separately
	}

	switch v.FieldType.Kind() {
	case schema.KindNumber:
		n, err := convert.ToFloat64(value)
		if err != nil {
			return fmt.Errorf("expected numeric value")
		}
		if n > v.Max {
			return fmt.Errorf("must be at most %v", v.Max)
		}

	case schema.KindString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string value")
		}
		if float64(utf8.RuneCountInString(s)) > v.Max {
			return fmt.Errorf("must be at most %d characters", int(v.Max))
		}
	}

	return nil
}

// PatternValidator validates string values against a regex pattern
type PatternValidator struct {
	Pattern *regexp.Regexp
}

// Validate implements the Validator interface
func (v *PatternValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("pattern validation requires string value")
	}

	if !v.Pattern.MatchString(strVal) {
		return fmt.Errorf("does not match required pattern")
	}

	return nil
}

// EmailValidator validates email addresses
type EmailValidator struct{}

// Validate implements the Validator interface
func (v *EmailValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("email validation requires string value")
	}

	if strings.TrimSpace(strVal) == "" {
		return fmt.Errorf("email address cannot be empty")
	}

	// Use net/mail for RFC 5322 compliant email validation
	_, err := mail.ParseAddress(strVal)
	if err != nil {
		return fmt.Errorf("must be a valid email address")
	}

	return nil
}

// URLValidator validates URLs
type URLValidator struct{}

// Validate implements the Validator interface
func (v *URLValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("URL validation requires string value")
	}

	if strings.TrimSpace(strVal) == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(strVal)
	if err != nil {
		return fmt.Errorf("must be a valid URL")
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("URL must include a scheme (http, https, etc.)")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

// EnumValidator validates membership in a fixed set of values
type EnumValidator struct {
	Values []string
}

// Validate implements the Validator interface
func (v *EnumValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("enum validation requires string value")
	}

	for _, allowed := range v.Values {
		if allowed == strVal {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(v.Values, ", "))
}

// FieldValidators returns the validators that apply to a field, in the order
// they run
func FieldValidators(f *schema.FieldMetadata) []Validator {
	var validators []Validator

	if f.MinLength > 0 {
		validators = append(validators, &MinValidator{Min: float64(f.MinLength), FieldType: f.Type})
	}
	if f.MaxLength > 0 {
		validators = append(validators, &MaxValidator{Max: float64(f.MaxLength), FieldType: f.Type})
	}
	if f.Min != nil && f.Type.Kind() == schema.KindNumber {
		validators = append(validators, &MinValidator{Min: *f.Min, FieldType: f.Type})
	}
	if f.Max != nil && f.Type.Kind() == schema.KindNumber {
		validators = append(validators, &MaxValidator{Max: *f.Max, FieldType: f.Type})
	}
	if f.Pattern != nil {
		validators = append(validators, &PatternValidator{Pattern: f.Pattern})
	}

	switch f.Type {
	case schema.TypeEmail:
		validators = append(validators, &EmailValidator{})
	case schema.TypeURL:
		validators = append(validators, &URLValidator{})
	case schema.TypeEnum:
		validators = append(validators, &EnumValidator{Values: f.EnumValues})
	}

	return validators
}
