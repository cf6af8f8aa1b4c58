// Package inference discovers column types from sampled record values.
//
// Two layers live here:
//   - Inferencer classifies the values of one column and picks the majority
//     kind with a confidence score.
//   - Engine samples a record batch, collects the union of its columns and
//     runs the Inferencer per column to produce a Schema.
//
// Inference is best-effort and never fails: a column that cannot be typed with
// enough confidence becomes String.
package inference

import (
	"fmt"
	"strings"
)

// Kind is the in-memory value category of a column.
type Kind int

const (
	String Kind = iota
	Integer
	Float
	Boolean
	StringList
	Map
)

// tieOrder decides between kinds with equal vote counts. More specific kinds
// win; String is the last resort.
var tieOrder = []Kind{Boolean, Integer, Float, StringList, Map, String}

var kindNames = map[Kind]string{
	String:     "string",
	Integer:    "integer",
	Float:      "float",
	Boolean:    "boolean",
	StringList: "string_list",
	Map:        "map",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a kind name back to a Kind. A few common spellings are
// accepted ("int", "bool", "list", "str", ...).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return String, nil
	case "integer", "int", "int64":
		return Integer, nil
	case "float", "float64", "double", "real":
		return Float, nil
	case "boolean", "bool":
		return Boolean, nil
	case "string_list", "list", "[]string":
		return StringList, nil
	case "map", "dict", "object":
		return Map, nil
	default:
		return String, fmt.Errorf("inference: unknown kind %q", s)
	}
}

// Type is the inferred type of one column.
//
// Confidence is the share of non-empty samples that voted for the majority
// kind. After a low-confidence fallback Kind is String while Confidence keeps
// the losing majority's share.
type Type struct {
	Kind       Kind    `json:"kind"`
	Nullable   bool    `json:"nullable"`
	Confidence float64 `json:"confidence"`
}

// String renders the type as "integer" or "nullable<integer>".
func (t Type) String() string {
	if t.Nullable {
		return "nullable<" + t.Kind.String() + ">"
	}
	return t.Kind.String()
}
