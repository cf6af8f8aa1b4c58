package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Options is a free-form bag of stage settings as decoded from JSON or TOML.
//
// Getters are tolerant of the numeric types both decoders produce (float64,
// int64, json.Number) and of string forms ("true", "42"), so a stage never has
// to care which file format its options came from. Every getter returns def
// when the key is absent or the value cannot be interpreted.
type Options map[string]any

// Has reports whether key is present, even with a nil value.
func (o Options) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o[key]
	return ok
}

// Any returns the raw value for key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// Merge returns a new Options with other layered on top of o.
// Neither input is modified.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Bool returns key as a bool. Accepts native bools, numbers (non-zero is
// true) and the usual string spellings.
func (o Options) Bool(key string, def bool) bool {
	switch v := o.Any(key).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "on":
			return true
		case "false", "0", "no", "n", "off":
			return false
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f != 0
		}
	}
	return def
}

// Int returns key as an int.
func (o Options) Int(key string, def int) int {
	if n, ok := toInt(o.Any(key)); ok {
		return n
	}
	return def
}

// Float returns key as a float64.
func (o Options) Float(key string, def float64) float64 {
	if f, ok := toFloat(o.Any(key)); ok {
		return f
	}
	return def
}

// String returns key as a string. Numbers and bools are formatted.
func (o Options) String(key string, def string) string {
	switch v := o.Any(key).(type) {
	case string:
		return v
	case nil:
		return def
	case bool, float64, int, int64, json.Number:
		return fmt.Sprint(v)
	}
	return def
}

// Rune returns the first rune of a string option, e.g. a delimiter.
// Escapes "\t" and "tab" are understood.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o.Any(key).(string)
	if !ok || s == "" {
		return def
	}
	switch s {
	case `\t`, "tab":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return def
	}
	return r
}

// Duration returns key as a duration. Plain numbers are seconds; strings are
// parsed with time.ParseDuration first and as seconds second.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	raw := o.Any(key)
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
		return def
	}
	if f, ok := toFloat(raw); ok {
		return time.Duration(f * float64(time.Second))
	}
	return def
}

// StringMap returns key as map[string]string. Non-string values are formatted.
func (o Options) StringMap(key string) map[string]string {
	out := make(map[string]string)
	switch m := o.Any(key).(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if v == nil {
				continue
			}
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// StringSlice returns key as []string. A single string is split on commas.
func (o Options) StringSlice(key string) []string {
	switch v := o.Any(key).(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if it == nil {
				continue
			}
			out = append(out, fmt.Sprint(it))
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}

// IntSlice returns key as []int. A single number yields a one-element slice.
// Entries that are not integers are dropped.
func (o Options) IntSlice(key string) []int {
	raw := o.Any(key)
	if n, ok := toInt(raw); ok {
		return []int{n}
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []int:
		return append([]int(nil), v...)
	case []int64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	default:
		return nil
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		if n, ok := toInt(it); ok {
			out = append(out, n)
		}
	}
	return out
}

// Sub returns a nested options object, or nil.
func (o Options) Sub(key string) Options {
	switch m := o.Any(key).(type) {
	case Options:
		return m
	case map[string]any:
		return Options(m)
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
