package bulkloader

import (
	"fmt"
	"strconv"
)

// IsEmpty reports whether a cell value counts as blank for duplicate
// detection and relation lookups: nil, "", false and numeric zero.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case int:
		return val == 0
	case int64:
		return val == 0
	case uint:
		return val == 0
	case uint64:
		return val == 0
	case float64:
		return val == 0
	case float32:
		return val == 0
	default:
		return false
	}
}

// CoerceBoolean maps the exact strings "yes" and "no" to true and false.
// Any other value is returned unchanged.
func CoerceBoolean(v any) any {
	switch toString(v) {
	case "yes":
		return true
	case "no":
		return false
	}
	return v
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
