package inference

import (
	"encoding/json"
	"strconv"
	"strings"
)

// BoolKeywords are the string tokens classified as booleans
// (compared case-insensitively after trimming).
var BoolKeywords = []string{"true", "false", "yes", "no", "y", "n", "1", "0", "on", "off"}

// Delimiters are the list separators, in priority order.
var Delimiters = []string{"|", ",", ";", "\n", "\t"}

var boolKeywordSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(BoolKeywords))
	for _, k := range BoolKeywords {
		m[k] = struct{}{}
	}
	return m
}()

// vote is the classification of a single value. ambiguous marks "1" and "0"
// strings, which are valid both as boolean keywords and as integers.
type vote struct {
	kind      Kind
	ambiguous bool
}

// ClassifyValue returns the kind of a single non-empty value.
//
// Native Go types map directly (bool, ints, floats, []string, maps). Strings
// are trimmed and tested in order: boolean keyword, integer, float (must
// contain '.' or an exponent), delimited list, plain string.
//
// "1" and "0" are reported as Boolean here; column-level inference treats
// them as ambiguous and may count them as Integer instead.
func ClassifyValue(v any) Kind {
	return classify(v).kind
}

func classify(v any) vote {
	switch t := v.(type) {
	case bool:
		return vote{kind: Boolean}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return vote{kind: Integer}
	case float32, float64:
		return vote{kind: Float}
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return vote{kind: Integer}
		}
		return vote{kind: Float}
	case []string, []any:
		return vote{kind: StringList}
	case map[string]any, map[string]string:
		return vote{kind: Map}
	case string:
		return classifyString(t)
	default:
		return vote{kind: String}
	}
}

func classifyString(raw string) vote {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)

	if _, ok := boolKeywordSet[lower]; ok {
		return vote{kind: Boolean, ambiguous: lower == "1" || lower == "0"}
	}
	if isIntegerString(s) {
		return vote{kind: Integer}
	}
	if isFloatString(s) {
		return vote{kind: Float}
	}
	if _, parts := SplitList(s); len(parts) >= 2 {
		return vote{kind: StringList}
	}
	return vote{kind: String}
}

func isIntegerString(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloatString(s string) bool {
	if !strings.ContainsAny(s, ".eE") {
		return false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "-0x") || strings.HasPrefix(lower, "+0x") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// SplitList splits s on the first delimiter (in priority order) that occurs in
// it. Parts are trimmed and empty parts are dropped. When no delimiter occurs
// the delimiter is "" and parts holds s itself (or nothing if s is blank).
func SplitList(s string) (delim string, parts []string) {
	for _, d := range Delimiters {
		if !strings.Contains(s, d) {
			continue
		}
		for _, p := range strings.Split(s, d) {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		return d, parts
	}
	if s = strings.TrimSpace(s); s != "" {
		return "", []string{s}
	}
	return "", nil
}
