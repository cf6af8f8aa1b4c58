package sink

import (
	"encoding/json"
	"strconv"
	"strings"

	"dataload/internal/storage"
	"dataload/pkg/records"
)

// Thresholds for choosing a column's storage class from sampled values.
const (
	integerShare = 0.8
	numericShare = 0.8
	blobShare    = 0.5
)

// InferColumnType picks the storage class for a column from its sampled
// non-empty values:
//   - INTEGER when at least 80% of the values are integers (bools included)
//   - REAL when integers and floats together reach 80%
//   - BLOB when at least half the values are raw bytes
//   - TEXT otherwise, and for a column with no samples
//
// Strings count as INTEGER or REAL when they parse as such; lists and maps
// count as TEXT (they are stored as JSON).
func InferColumnType(values []any) storage.SQLType {
	counts := map[storage.SQLType]int{}
	total := 0
	for _, v := range values {
		if records.IsEmpty(v) {
			continue
		}
		counts[classify(v)]++
		total++
	}
	if total == 0 {
		return storage.Text
	}

	share := func(t storage.SQLType) float64 { return float64(counts[t]) / float64(total) }
	switch {
	case share(storage.Integer) >= integerShare:
		return storage.Integer
	case share(storage.Integer)+share(storage.Real) >= numericShare:
		return storage.Real
	case share(storage.Blob) >= blobShare:
		return storage.Blob
	default:
		return storage.Text
	}
}

func classify(v any) storage.SQLType {
	switch t := v.(type) {
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return storage.Integer
	case float32, float64:
		return storage.Real
	case json.Number:
		return classifyString(t.String())
	case []byte:
		return storage.Blob
	case string:
		return classifyString(t)
	default:
		return storage.Text
	}
}

func classifyString(s string) storage.SQLType {
	s = strings.TrimSpace(s)
	if isIntegerString(s) {
		return storage.Integer
	}
	if isFloatString(s) {
		return storage.Real
	}
	return storage.Text
}

func isIntegerString(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloatString accepts decimal or exponent notation only, so "inf" and
// hex floats stay TEXT.
func isFloatString(s string) bool {
	if !strings.ContainsAny(s, ".eE") {
		return false
	}
	if strings.HasPrefix(strings.TrimLeft(s, "+-"), "0x") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
