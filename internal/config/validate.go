package config

import (
	"fmt"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from ValidatePipeline.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Known kinds. ValidatePipeline only warns on unknown transformer kinds since
// callers may register their own; loader, parser and converter kinds must be
// known because the CLI wires them.
var (
	knownSources    = []string{"file", "csv", "excel", "json", "html"}
	knownParsers    = []string{"auto", "csv", "excel", "json", "html"}
	knownTransforms = []string{"auto_categorize", "columns", "hash"}
	knownConverts   = []string{"materialize", "relational"}
	knownStorage    = []string{"sqlite", "postgres", "mssql", "mysql"}
)

// ValidatePipeline checks p for missing or inconsistent settings.
//
// Edge cases:
//   - An empty Storage block is fine for "materialize" runs.
//   - For "relational" runs an empty storage kind defaults to sqlite, but a
//     DSN is required.
//
// The returned slice is empty when p is valid. Callers should treat any issue
// with SeverityError as fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, args ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityWarning, "job", "job is empty; metrics and logs will use a default name")
	}

	if strings.TrimSpace(p.Source.Path) == "" {
		add(SeverityError, "source.path", "source path is required")
	}
	if p.Source.Kind == "" {
		add(SeverityError, "source.kind", "source kind is required")
	} else if !contains(knownSources, p.Source.Kind) {
		add(SeverityError, "source.kind", "unknown source kind %q", p.Source.Kind)
	}
	if p.Source.Options.Has("timeout") && p.Source.Options.Duration("timeout", 0) <= 0 {
		add(SeverityError, "source.options.timeout", "timeout must be a positive number of seconds")
	}

	if p.Parser.Kind == "" {
		add(SeverityError, "parser.kind", "parser kind is required")
	} else if !contains(knownParsers, p.Parser.Kind) {
		add(SeverityError, "parser.kind", "unknown parser kind %q", p.Parser.Kind)
	}
	if d := p.Parser.Options.String("delimiter", ","); len([]rune(d)) != 1 && d != `\t` {
		add(SeverityError, "parser.options.delimiter", "delimiter must be a single character, got %q", d)
	}

	for i, t := range p.Transform {
		path := fmt.Sprintf("transform[%d].kind", i)
		if t.Kind == "" {
			add(SeverityError, path, "transform kind is required")
			continue
		}
		if !contains(knownTransforms, t.Kind) {
			add(SeverityWarning, path, "transform kind %q is not built in; it must be registered by the caller", t.Kind)
		}
	}

	switch {
	case p.Convert.Kind == "":
		add(SeverityError, "convert.kind", "convert kind is required")
	case !contains(knownConverts, p.Convert.Kind):
		add(SeverityError, "convert.kind", "unknown convert kind %q", p.Convert.Kind)
	}

	opts := p.Convert.Options
	if opts.Has("confidence_threshold") {
		if th := opts.Float("confidence_threshold", -1); th < 0 || th > 1 {
			add(SeverityError, "convert.options.confidence_threshold", "confidence_threshold must be within [0,1]")
		}
	}
	if opts.Has("sample_size") && opts.Int("sample_size", 0) <= 0 {
		add(SeverityError, "convert.options.sample_size", "sample_size must be positive")
	}
	if opts.Has("batch_size") && opts.Int("batch_size", 0) <= 0 {
		add(SeverityError, "convert.options.batch_size", "batch_size must be positive")
	}
	if mode := opts.String("on_coercion_error", "skip"); mode != "skip" && mode != "zero" {
		add(SeverityError, "convert.options.on_coercion_error", "on_coercion_error must be \"skip\" or \"zero\", got %q", mode)
	}

	if p.Convert.Kind == "relational" {
		if p.Storage.Kind != "" && !contains(knownStorage, p.Storage.Kind) {
			add(SeverityError, "storage.kind", "unknown storage kind %q", p.Storage.Kind)
		}
		if strings.TrimSpace(p.Storage.DB.DSN) == "" {
			add(SeverityError, "storage.db.dsn", "dsn is required for relational conversion")
		}
		if strings.TrimSpace(p.Storage.DB.Table) == "" {
			add(SeverityWarning, "storage.db.table", "table is empty; defaulting to \"data\"")
		}
		if len(p.Convert.Target) > 0 {
			add(SeverityWarning, "convert.target", "target fields are ignored by the relational converter")
		}
	}

	return out
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
