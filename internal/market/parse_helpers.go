package market

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// lastFloat scans rows from newest to oldest and returns the first finite value stored under key.
func lastFloat(rows []map[string]any, key string) (float64, bool) {
	for i := len(rows) - 1; i >= 0; i-- {
		v, ok := rows[i][key]
		if !ok {
			continue
		}
		if f, ok := floatFromAny(v); ok {
			return f, true
		}
	}
	return 0, false
}

func lastString(rows []map[string]any, key string) string {
	if len(rows) == 0 {
		return ""
	}
	return stringFromAny(rows[len(rows)-1][key])
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func floatFromAny(v any) (float64, bool) {
	var (
		f  float64
		ok bool
	)
	switch val := v.(type) {
	case float64:
		f, ok = val, true
	case float32:
		f, ok = float64(val), true
	case int:
		f, ok = float64(val), true
	case int8:
		f, ok = float64(val), true
	case int16:
		f, ok = float64(val), true
	case int32:
		f, ok = float64(val), true
	case int64:
		f, ok = float64(val), true
	case uint:
		f, ok = float64(val), true
	case uint8:
		f, ok = float64(val), true
	case uint16:
		f, ok = float64(val), true
	case uint32:
		f, ok = float64(val), true
	case uint64:
		f, ok = float64(val), true
	case json.Number:
		parsed, err := val.Float64()
		f, ok = parsed, err == nil
	case string:
		trimmed := strings.ReplaceAll(strings.TrimSpace(val), ",", "")
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		f, ok = parsed, err == nil
	default:
		return 0, false
	}
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
