package inference

import (
	"dataload/pkg/records"
)

// DefaultThreshold is the minimum majority share needed to keep a
// non-String kind.
const DefaultThreshold = 0.80

// Inferencer infers the type of a single column.
//
// The zero value uses DefaultThreshold.
type Inferencer struct {
	// Threshold in [0,1]. nil or a negative value means DefaultThreshold;
	// 0 keeps every majority kind.
	Threshold *float64
}

// WithThreshold returns an Inferencer using threshold t.
func WithThreshold(t float64) Inferencer { return Inferencer{Threshold: &t} }

func (in Inferencer) threshold() float64 {
	if in.Threshold == nil || *in.Threshold < 0 {
		return DefaultThreshold
	}
	return *in.Threshold
}

// Infer classifies every non-empty value and returns the majority kind with
// its share as confidence.
//
// Edge cases:
//   - No non-empty values: nullable String with confidence 0.
//   - Majority share below the threshold: String, even if a more specific
//     kind had the plurality. Confidence still reports that plurality's share.
//   - Ties go to the more specific kind (Boolean, Integer, Float, StringList,
//     Map, String).
//   - "1"/"0" strings are counted as Boolean only when the column also holds
//     unambiguous boolean keywords and no numbers; otherwise as Integer. A
//     column of integer literals is therefore always Integer.
//   - Nullable is set when any value was empty, unless the result is String.
func (in Inferencer) Infer(values []any) Type {
	var (
		counts    = make(map[Kind]int, len(tieOrder))
		ambiguous int
		total     int
		hasEmpty  bool
	)

	for _, v := range values {
		if records.IsEmpty(v) {
			hasEmpty = true
			continue
		}
		total++
		c := classify(v)
		if c.ambiguous {
			ambiguous++
			continue
		}
		counts[c.kind]++
	}

	if total == 0 {
		return Type{Kind: String, Nullable: true}
	}

	if ambiguous > 0 {
		numeric := counts[Integer] + counts[Float]
		if counts[Boolean] > 0 && numeric == 0 {
			counts[Boolean] += ambiguous
		} else {
			counts[Integer] += ambiguous
		}
	}

	best, bestCount := String, -1
	for _, k := range tieOrder {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}

	t := Type{Kind: best, Confidence: float64(bestCount) / float64(total)}
	if t.Confidence < in.threshold() {
		t.Kind = String
	}
	if hasEmpty && t.Kind != String {
		t.Nullable = true
	}
	return t
}

// Column is one column of a sample window: its name and the values observed
// for it, with nil standing in for records that lack the column.
type Column struct {
	Name   string
	Values []any
}

// Columns collects the union of column names in sample (first-discovery
// order) and their values. A record without the column contributes nil, so an
// absent value counts as empty.
func Columns(sample []records.Record) []Column {
	names := records.Columns(sample)
	out := make([]Column, len(names))
	for i, name := range names {
		vals := make([]any, len(sample))
		for j, r := range sample {
			vals[j] = r[name]
		}
		out[i] = Column{Name: name, Values: vals}
	}
	return out
}
