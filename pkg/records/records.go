// Package records defines the flat record type exchanged between pipeline stages.
package records

import "sort"

// Record is one flat row: column name to a scalar (string, int64, float64,
// bool, nil), a []string, or a nested map for structured sources.
//
// Stages treat a Record they receive as read-only and hand out new records.
type Record map[string]any

// Clone returns a shallow copy of r. Slices and nested maps are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the column names of r in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Columns returns the union of column names across batch in first-discovery
// order. Keys within one record are visited in sorted order, so the result is
// deterministic for a given batch.
func Columns(batch []Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range batch {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// Sample returns at most n leading records of batch. n <= 0 means all.
func Sample(batch []Record, n int) []Record {
	if n <= 0 || n >= len(batch) {
		return batch
	}
	return batch[:n]
}

// IsEmpty reports whether v counts as an absent value: nil or the empty string.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
