// Package convert coerces loosely typed input (JSON bodies, form values,
// query strings, driver rows) into the canonical Go value of a field type.
//
// Canonical values are: string for text, email, url, enum and uuid fields;
// int64 for integer fields; float64 for float and decimal fields; bool;
// time.Time in UTC for dates and timestamps; []byte for binary fields.
package convert

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/admin/internal/orm/schema"
)

// DateLayout is the wire format of date fields
const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	DateLayout,
}

// ConversionError is returned when a value cannot be coerced to a field type
type ConversionError struct {
	Type  schema.FieldType
	Value interface{}
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %v to %s: %v", e.Value, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot convert %v to %s", e.Value, e.Type)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Value converts v to the canonical value of type t. A nil value, or a blank
// string for a non-text type, converts to nil.
func Value(t schema.FieldType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		v = rv.Elem().Interface()
	}

	if s, ok := v.(string); ok && (t.Kind() != schema.KindString || t == schema.TypeUUID) {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v = s
	}

	var (
		out interface{}
		err error
	)
	switch t {
	case schema.TypeInt, schema.TypeBigInt:
		out, err = ToInt64(v)
	case schema.TypeFloat, schema.TypeDecimal:
		out, err = ToFloat64(v)
	case schema.TypeBool:
		out, err = ToBool(v)
	case schema.TypeDate:
		var ts time.Time
		ts, err = ToTime(v)
		if err == nil {
			out = ts.Truncate(24 * time.Hour)
		}
	case schema.TypeTimestamp:
		out, err = ToTime(v)
	case schema.TypeUUID:
		out, err = toUUID(v)
	case schema.TypeBinary:
		out, err = ToBytes(v)
	default:
		out, err = ToString(v)
	}

	if err != nil {
		return nil, &ConversionError{Type: t, Value: v, Err: err}
	}
	return out, nil
}

// ToInt64 converts numeric and string input to int64
func ToInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("value overflows int64")
		}
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value overflows int64")
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		return strconv.ParseInt(n.String(), 10, 64)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer")
		}
		return i, nil
	case []byte:
		return ToInt64(string(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("not an integer")
	}
	// 2^63 is exact as a float64; MaxInt64 is not
	if f >= 9223372036854775808.0 || f < -9223372036854775808.0 {
		return 0, fmt.Errorf("value overflows int64")
	}
	return int64(f), nil
}

// ToFloat64 converts numeric and string input to float64
func ToFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number")
		}
		return f, nil
	case []byte:
		return ToFloat64(string(n))
	default:
		i, err := ToInt64(v)
		if err != nil {
			return 0, err
		}
		return float64(i), nil
	}
}

// ToBool converts input to bool. Form checkboxes submit "on".
func ToBool(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "true", "on", "1", "yes", "t":
			return true, nil
		case "false", "off", "0", "no", "f":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean")
	case []byte:
		return ToBool(string(b))
	default:
		i, err := ToInt64(v)
		if err != nil || (i != 0 && i != 1) {
			return false, fmt.Errorf("not a boolean")
		}
		return i == 1, nil
	}
}

// ToTime converts input to a UTC time.Time
func ToTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time format")
	case []byte:
		return ToTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}

// ToBytes converts input to []byte. Strings are read as standard base64, the
// encoding JSON uses for byte slices.
func ToBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("not base64")
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// ToString converts scalar input to string
func ToString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	case json.Number:
		return s.String(), nil
	default:
		if i, err := ToInt64(v); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

func toUUID(v interface{}) (string, error) {
	switch u := v.(type) {
	case uuid.UUID:
		return u.String(), nil
	case [16]byte:
		return uuid.UUID(u).String(), nil
	case []byte:
		if len(u) == 16 {
			parsed, err := uuid.FromBytes(u)
			if err != nil {
				return "", err
			}
			return parsed.String(), nil
		}
		return toUUID(string(u))
	case string:
		parsed, err := uuid.Parse(u)
		if err != nil {
			return "", fmt.Errorf("not a uuid")
		}
		return parsed.String(), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}
