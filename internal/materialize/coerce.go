package materialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dataload/internal/inference"
)

// ErrCoerce is returned when a non-empty value cannot be converted to the
// requested kind.
var ErrCoerce = errors.New("cannot coerce value")

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "y": true, "on": true}

// Zero returns the default value for kind: "", int64(0), 0.0, false, an empty
// []string or an empty map.
func Zero(kind inference.Kind) any {
	switch kind {
	case inference.Integer:
		return int64(0)
	case inference.Float:
		return float64(0)
	case inference.Boolean:
		return false
	case inference.StringList:
		return []string{}
	case inference.Map:
		return map[string]any{}
	default:
		return ""
	}
}

// Coerce converts v to the Go representation of kind:
//
//	String     string (trimmed)
//	Integer    int64, parsed as float then truncated so "3.0" works
//	Float      float64
//	Boolean    bool; strings test membership in true/1/yes/y/on
//	StringList []string split on the first delimiter found
//	Map        map[string]any, or {"value": v} for anything else
//
// Errors wrap ErrCoerce. Only Integer and Float can fail.
func Coerce(v any, kind inference.Kind) (any, error) {
	switch kind {
	case inference.Integer:
		return toInt(v)
	case inference.Float:
		return toFloat(v)
	case inference.Boolean:
		return toBool(v), nil
	case inference.StringList:
		return toList(v), nil
	case inference.Map:
		return toMap(v), nil
	default:
		return strings.TrimSpace(Stringify(v)), nil
	}
}

// Stringify renders a scalar without Go-specific formatting noise: floats
// use the shortest representation and keep a decimal point when integral
// (3.0 -> "3.0"), lists and maps are JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return formatFloat(t, 64)
	case float32:
		return formatFloat(float64(t), 32)
	case json.Number:
		return t.String()
	case []string, []any, map[string]any, map[string]string:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

// formatFloat switches to exponent form below 1e-4 and from 1e16 up.
func formatFloat(f float64, bits int) string {
	fmtc := byte('f')
	if a := math.Abs(f); a != 0 && (a < 1e-4 || a >= 1e16) {
		fmtc = 'g'
	}
	s := strconv.FormatFloat(f, fmtc, -1, bits)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows integer", ErrCoerce, t)
		}
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}

	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrCoerce, Stringify(v))
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v overflows integer", ErrCoerce, f)
	}
	return int64(math.Trunc(f)), nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		s := strings.TrimSpace(Stringify(v))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrCoerce, s)
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrCoerce, f)
	}
	return f, nil
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(t))]
	case int:
		return t != 0
	case int8:
		return t != 0
	case int16:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint:
		return t != 0
	case uint8:
		return t != 0
	case uint16:
		return t != 0
	case uint32:
		return t != 0
	case uint64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case []string:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case nil:
		return false
	default:
		return truthy[strings.ToLower(strings.TrimSpace(Stringify(t)))]
	}
}

func toList(v any) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = strings.TrimSpace(s)
		}
		return out
	case []any:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = strings.TrimSpace(Stringify(s))
		}
		return out
	case string:
		_, parts := inference.SplitList(t)
		if parts == nil {
			return []string{}
		}
		return parts
	default:
		return []string{Stringify(t)}
	}
}

func toMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	default:
		return map[string]any{"value": v}
	}
}
