package convert

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Compare orders two canonical values of the same field type. nil sorts
// before any other value. An error is returned for values of different
// shapes.
func Compare(a, b interface{}) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			break
		}
		return strings.Compare(x, y), nil
	case bool:
		y, ok := b.(bool)
		if !ok {
			break
		}
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			break
		}
		return x.Compare(y), nil
	case []byte:
		y, ok := b.([]byte)
		if !ok {
			break
		}
		return bytes.Compare(x, y), nil
	default:
		xf, xerr := ToFloat64(a)
		yf, yerr := ToFloat64(b)
		if xerr != nil || yerr != nil {
			break
		}
		switch {
		case xf < yf:
			return -1, nil
		case xf > yf:
			return 1, nil
		default:
			return 0, nil
		}
	}

	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// Equal reports whether two canonical values are equal
func Equal(a, b interface{}) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}
