package metrics

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Helper functions to safely coerce fields out of decoded frame rows.

// floatField retrieves a numeric value from a row, converting the types a
// JSON decode can produce. Returns NaN when the key is absent or the value
// is not numeric, so callers can tell "missing" apart from a real zero.
func floatField(row map[string]any, key string) float64 {
	v, ok := row[key]
	if !ok {
		return math.NaN()
	}
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return math.NaN()
}

// countField coerces a row value to a non-negative-intended count, yielding
// def when the value is missing or not numeric.
func countField(row map[string]any, key string, def int) int {
	f := floatField(row, key)
	if math.IsNaN(f) {
		return def
	}
	return int(f)
}

// countFieldNonZero behaves like countField but also treats zero as absent.
// Used for the relay and archiver roles, whose fleets are never empty.
func countFieldNonZero(row map[string]any, key string, def int) int {
	f := floatField(row, key)
	if math.IsNaN(f) || f == 0 {
		return def
	}
	return int(f)
}

// stringField retrieves a string value, or "" when absent or not a string.
func stringField(row map[string]any, key string) string {
	if v, ok := row[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// timeField parses a timestamp-like row value: epoch milliseconds (as any
// numeric type) or an RFC 3339 string. The second return is false when the
// value cannot be interpreted as a time.
func timeField(row map[string]any, key string) (time.Time, bool) {
	v, ok := row[key]
	if !ok {
		return time.Time{}, false
	}
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		if ts, err := time.Parse(time.RFC3339, val); err == nil {
			return ts, true
		}
		return time.Time{}, false
	default:
		f := floatField(row, key)
		if math.IsNaN(f) || f <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(f)).UTC(), true
	}
}
