// Package components wires the built-in loaders, parsers, transformers and
// converters into a pipeline.Registry, and turns a config.Pipeline file into
// the names and options of a run.
package components

import (
	"fmt"
	"log/slog"

	"dataload/internal/config"
	"dataload/internal/datasource/file"
	"dataload/internal/materialize"
	"dataload/internal/parser/auto"
	"dataload/internal/parser/csv"
	"dataload/internal/parser/excel"
	"dataload/internal/parser/html"
	"dataload/internal/parser/json"
	"dataload/internal/pipeline"
	"dataload/internal/sink"
	"dataload/internal/transformer/builtin"

	// Storage backends for the relational converter.
	_ "dataload/internal/storage/all"
)

// Converter kinds.
const (
	Materialize = "materialize"
	Relational  = "relational"
)

// Default returns a registry holding every built-in component. Components log
// through logger when it is non-nil and through the run's context logger
// otherwise.
//
//	loaders:      file (any format), csv, excel, json, html
//	parsers:      auto (by extension), csv, excel, json, html
//	transformers: auto_categorize, columns, hash
//	converters:   materialize ([]*materialize.Instance), relational (*sink.Report)
func Default(logger *slog.Logger) (*pipeline.Registry, error) {
	r := pipeline.NewRegistry()
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	withLogger := func(l *file.Loader) *file.Loader { l.Logger = logger; return l }
	check(r.RegisterLoader("file", func() pipeline.Loader { return withLogger(file.New()) }))
	check(r.RegisterLoader("csv", func() pipeline.Loader { return withLogger(file.NewCSV()) }))
	check(r.RegisterLoader("excel", func() pipeline.Loader { return withLogger(file.NewExcel()) }))
	check(r.RegisterLoader("json", func() pipeline.Loader { return withLogger(file.NewJSON()) }))
	check(r.RegisterLoader("html", func() pipeline.Loader { return withLogger(file.NewHTML()) }))

	check(r.RegisterParser("auto", func() pipeline.Parser { return auto.New(logger) }))
	check(r.RegisterParser("csv", &csv.Parser{Logger: logger}))
	check(r.RegisterParser("excel", &excel.Parser{Logger: logger}))
	check(r.RegisterParser("json", &json.Parser{Logger: logger}))
	check(r.RegisterParser("html", &html.Parser{Logger: logger}))

	check(r.RegisterTransformer("auto_categorize", &builtin.AutoCategorize{Logger: logger}))
	check(r.RegisterTransformer("columns", &builtin.Columns{Logger: logger}))
	check(r.RegisterTransformer("hash", &builtin.Hash{Logger: logger}))

	check(pipeline.RegisterConverter[[]*materialize.Instance](r, Materialize, func() pipeline.Converter[[]*materialize.Instance] {
		return &materialize.Materializer{Logger: logger}
	}))
	check(pipeline.RegisterConverter[*sink.Report](r, Relational, func() pipeline.Converter[*sink.Report] {
		return &sink.Sink{Logger: logger}
	}))

	if len(errs) > 0 {
		return nil, fmt.Errorf("components: %v", errs)
	}
	return r, nil
}

// Plan converts a pipeline file into component names and run options.
//
// The relational converter receives storage.kind, storage.db.dsn and
// storage.db.table as its storage_kind, dsn and table options unless the
// convert options already set them. Declared targets become the
// materializer's target option.
func Plan(p config.Pipeline) (pipeline.Spec, pipeline.Config) {
	spec := pipeline.Spec{
		Loader:    p.Source.Kind,
		Parser:    p.Parser.Kind,
		Converter: p.Convert.Kind,
	}
	cfg := pipeline.Config{
		Load:  p.Source.Options,
		Parse: p.Parser.Options,
	}
	for _, t := range p.Transform {
		spec.Transformers = append(spec.Transformers, t.Kind)
		cfg.Transform = append(cfg.Transform, t.Options)
	}

	defaults := config.Options{}
	if len(p.Convert.Target) > 0 {
		defaults["target"] = p.Convert.Target
	}
	if p.Convert.Kind == Relational {
		if p.Storage.Kind != "" {
			defaults["storage_kind"] = p.Storage.Kind
		}
		if p.Storage.DB.DSN != "" {
			defaults["dsn"] = p.Storage.DB.DSN
		}
		if p.Storage.DB.Table != "" {
			defaults["table"] = p.Storage.DB.Table
		}
	}
	cfg.Convert = defaults.Merge(p.Convert.Options)
	return spec, cfg
}
