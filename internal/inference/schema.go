package inference

import (
	"encoding/json"
	"log/slog"

	"dataload/internal/logging"
	"dataload/pkg/records"
)

// DefaultSampleSize is how many leading records are inspected.
const DefaultSampleSize = 100

// Field is one entry of a Schema.
type Field struct {
	Column string `json:"column"`
	Type   Type   `json:"type"`
}

// Schema maps original column names to inferred types. Every column seen in
// the sample appears exactly once; order is discovery order and carries no
// meaning beyond stable output.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from fields. A repeated column keeps its first
// entry.
func NewSchema(fields ...Field) Schema {
	var s Schema
	for _, f := range fields {
		s.add(f)
	}
	return s
}

func (s *Schema) add(f Field) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[f.Column]; ok {
		return
	}
	s.index[f.Column] = len(s.fields)
	s.fields = append(s.fields, f)
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the schema entries.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Columns returns the column names in schema order.
func (s Schema) Columns() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Column
	}
	return out
}

// Lookup returns the type of column.
func (s Schema) Lookup(column string) (Type, bool) {
	i, ok := s.index[column]
	if !ok {
		return Type{}, false
	}
	return s.fields[i].Type, true
}

// MarshalJSON encodes the schema as an ordered array of fields.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.fields == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.fields)
}

// UnmarshalJSON decodes the array form written by MarshalJSON.
func (s *Schema) UnmarshalJSON(b []byte) error {
	var fields []Field
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*s = NewSchema(fields...)
	return nil
}

// Engine runs an Inferencer over every column of a sampled batch.
type Engine struct {
	// SampleSize bounds how many leading records are inspected.
	// Values <= 0 mean DefaultSampleSize.
	SampleSize int
	Inferencer Inferencer
	Logger     *slog.Logger
}

// Infer samples batch and returns its schema.
//
// The result is stable for a fixed sample and threshold. Columns that fell
// back to String because of low confidence are logged at debug level.
func (e Engine) Infer(batch []records.Record) Schema {
	n := e.SampleSize
	if n <= 0 {
		n = DefaultSampleSize
	}
	log := logging.OrDefault(e.Logger)
	threshold := e.Inferencer.threshold()

	var s Schema
	for _, col := range Columns(records.Sample(batch, n)) {
		t := e.Inferencer.Infer(col.Values)
		if t.Kind == String && t.Confidence > 0 && t.Confidence < threshold {
			log.Debug("low confidence type inference, using string",
				"column", col.Name, "confidence", t.Confidence, "threshold", threshold)
		}
		s.add(Field{Column: col.Name, Type: t})
	}
	return s
}

// InferSchema is shorthand for Engine{SampleSize: sampleSize,
// Inferencer: WithThreshold(threshold)}.Infer(batch). A negative threshold
// means DefaultThreshold.
func InferSchema(batch []records.Record, sampleSize int, threshold float64) Schema {
	return Engine{SampleSize: sampleSize, Inferencer: WithThreshold(threshold)}.Infer(batch)
}
