package transform

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// asFloat coerces a raw controller value to float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case bool:
		if n {
			return 1, true
		}

		return 0, true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return finite(float64(n))
	case float64:
		return finite(n)
	case time.Duration:
		return n.Seconds(), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}

		return finite(f)
	case []byte:
		return asFloat(string(n))
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

// asInt coerces to a whole number. Fractional floats are truncated.
func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}

		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}

	f, ok := asFloat(v)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}

	return int64(f), true
}

// asUint coerces a fault word. Negative values are malformed.
func asUint(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case string:
		if u, err := strconv.ParseUint(strings.TrimSpace(n), 0, 64); err == nil {
			return u, true
		}
	}

	f, ok := asFloat(v)
	if !ok || f < 0 || f > math.MaxUint64 {
		return 0, false
	}

	return uint64(f), true
}

func asBool(v interface{}) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed, true
		}
	}

	f, ok := asFloat(v)
	if !ok {
		return false, false
	}

	return f != 0, true
}
