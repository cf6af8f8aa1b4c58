// Package materialize turns flat records into typed instances of a record
// shape that is either generated from an inferred schema or declared by the
// caller.
//
// A run goes: infer schema from a sample, build (or take) the shape, map
// shape fields to source columns, then coerce every row. Rows are isolated:
// one bad row is skipped and reported, the rest of the batch still converts.
package materialize

import (
	"context"
	"fmt"
	"log/slog"

	"dataload/internal/alias"
	"dataload/internal/config"
	"dataload/internal/etlerr"
	"dataload/internal/inference"
	"dataload/internal/logging"
	"dataload/internal/metrics"
	"dataload/pkg/records"
)

// Coercion failure policies (option "on_coercion_error").
const (
	OnErrorSkip = "skip"
	OnErrorZero = "zero"
)

// SkippedRow records why a row was left out.
type SkippedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Result is the full outcome of one materialization run.
type Result struct {
	Shape     *Shape
	Schema    inference.Schema
	Mapping   alias.Mapping
	Instances []*Instance
	Skipped   []SkippedRow
}

// Materializer converts record batches into instances.
//
// The zero value generates a shape named DefaultShapeName from the inferred
// schema. Set Target to convert into a declared shape instead (see ShapeOf).
// A Materializer holds no per-run state and may be reused.
type Materializer struct {
	Target   *Shape
	Resolver alias.Resolver
	Logger   *slog.Logger
}

// New returns a Materializer that generates its shape.
func New() *Materializer { return &Materializer{} }

// Describe implements pipeline.Converter.
func (m *Materializer) Describe() string {
	return "materialize records into typed instances of a generated or declared shape"
}

// Configs lists the options Convert understands.
func (m *Materializer) Configs() map[string]string {
	return map[string]string{
		"sample_size":          "int: rows sampled for type inference (default: 100)",
		"confidence_threshold": "float: minimum majority share to keep a non-string type (default: 0.8)",
		"class_name":           "string: name of the generated shape (default: GeneratedDataModel)",
		"target":               "[]string: declared target fields, resolved against source columns by alias",
		"on_coercion_error":    "string: skip (drop the row) or zero (use the field default) (default: skip)",
	}
}

// Convert implements pipeline.Converter and returns the converted instances.
func (m *Materializer) Convert(ctx context.Context, batch []records.Record, opts config.Options) ([]*Instance, error) {
	res, err := m.Run(ctx, batch, opts)
	if err != nil {
		return nil, err
	}
	return res.Instances, nil
}

// Run converts batch and returns the instances together with the schema,
// shape, mapping and skipped rows of the run.
//
// Errors:
//   - an invalid on_coercion_error value
//
// Row level failures never fail the run.
func (m *Materializer) Run(ctx context.Context, batch []records.Record, opts config.Options) (*Result, error) {
	log := m.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}

	policy := opts.String("on_coercion_error", OnErrorSkip)
	if policy != OnErrorSkip && policy != OnErrorZero {
		return nil, fmt.Errorf("materialize: on_coercion_error must be %q or %q, got %q", OnErrorSkip, OnErrorZero, policy)
	}

	engine := inference.Engine{
		SampleSize: opts.Int("sample_size", inference.DefaultSampleSize),
		Inferencer: inference.WithThreshold(opts.Float("confidence_threshold", inference.DefaultThreshold)),
		Logger:     log,
	}
	schema := engine.Infer(batch)
	columns := schema.Columns()
	name := opts.String("class_name", DefaultShapeName)

	res := &Result{Schema: schema}
	switch targets := opts.StringSlice("target"); {
	case m.Target != nil:
		res.Shape = m.Target
		res.Mapping = m.Resolver.Resolve(m.Target.Names(), columns)
	case len(targets) > 0:
		res.Mapping = m.Resolver.Resolve(targets, columns)
		res.Shape = DeclareShape(name, targets, schema, res.Mapping)
	default:
		res.Shape = BuildShape(name, schema)
		res.Mapping = alias.Mapping(res.Shape.ColumnMapping())
	}

	log.Info("materialize: shape ready",
		"shape", res.Shape.Name(), "fields", res.Shape.Len(), "mapped", len(res.Mapping), "rows", len(batch))

	res.Instances = make([]*Instance, 0, len(batch))
	for i, row := range batch {
		inst, err := convertRow(res.Shape, res.Mapping, row, policy)
		if err != nil {
			err = fmt.Errorf("%w: row %d: %v", etlerr.ErrRowConversion, i, err)
			log.Warn("materialize: skipping row", "row", i, "err", err)
			res.Skipped = append(res.Skipped, SkippedRow{Index: i, Reason: err.Error(), Err: err})
			continue
		}
		res.Instances = append(res.Instances, inst)
	}

	metrics.RecordRows("converted", len(res.Instances))
	metrics.RecordRows("skipped", len(res.Skipped))
	return res, nil
}

// convertRow builds one instance. Panics from unexpected values are turned
// into errors so one row cannot take the run down.
func convertRow(s *Shape, mapping alias.Mapping, row records.Record, policy string) (inst *Instance, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	values := make(map[string]any, s.Len())
	for _, f := range s.fields {
		col, ok := mapping[f.Name]
		if !ok {
			continue
		}
		raw, ok := row[col]
		if !ok {
			continue
		}
		if policy == OnErrorZero {
			if _, cerr := f.value(raw); cerr != nil {
				raw = nil
			}
		}
		values[f.Name] = raw
	}
	return s.New(values)
}
