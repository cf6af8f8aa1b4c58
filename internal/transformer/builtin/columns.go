package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"dataload/internal/config"
	"dataload/internal/inference"
	"dataload/internal/materialize"
	"dataload/internal/transformer"
	"dataload/pkg/records"
)

// Columns reshapes records: rename, clean text, normalize booleans and
// numbers, combine fields, number rows and project.
//
// Steps run in this order on every record:
//  1. mapping renames source columns (strict_mode: a missing source is a row error)
//  2. clean_text collapses whitespace runs; blank strings become nil
//  3. combine joins fields into a new one
//  4. boolean_fields and numeric_fields are coerced
//  5. row_id fills a 1-based row number when the field is empty
//  6. keep / drop project the result
type Columns struct {
	Logger *slog.Logger
}

// Describe implements pipeline.Transformer.
func (c *Columns) Describe() string {
	return "rename, clean, coerce, combine and project record columns"
}

// Configs lists the options Transform understands.
func (c *Columns) Configs() map[string]string {
	return map[string]string{
		"mapping":         "map: source column -> new name",
		"keep":            "[]string: columns to keep after renaming (default: all)",
		"drop":            "[]string: columns to remove after renaming",
		"clean_text":      "bool: collapse whitespace and turn blank strings into null (default: true)",
		"boolean_fields":  "[]string: fields normalized to true/false",
		"numeric_fields":  "[]string: fields parsed as numbers; unparsable values are row errors",
		"extract_numbers": "bool: numeric fields fall back to the last digit run in the text (default: false)",
		"combine":         "object: {target, fields, sep} joins non-empty fields into target",
		"row_id":          "string: field filled with the 1-based row number when empty",
		"strict_mode":     "bool: a mapped column missing from a record is a row error (default: false)",
		"skip_errors":     "bool: drop failing rows instead of failing (default: false)",
	}
}

type columnsSpec struct {
	mapping   map[string]string
	keep      map[string]bool
	drop      map[string]bool
	clean     bool
	booleans  []string
	numerics  []string
	extract   bool
	combineTo string
	combineOf []string
	combineBy string
	rowID     string
	strict    bool
}

func parseColumnsSpec(opts config.Options) (columnsSpec, error) {
	s := columnsSpec{
		mapping:  opts.StringMap("mapping"),
		clean:    opts.Bool("clean_text", true),
		booleans: opts.StringSlice("boolean_fields"),
		numerics: opts.StringSlice("numeric_fields"),
		extract:  opts.Bool("extract_numbers", false),
		rowID:    opts.String("row_id", ""),
		strict:   transformer.ParseOptions(opts).StrictMode,
	}
	if keep := opts.StringSlice("keep"); len(keep) > 0 {
		s.keep = toSet(keep)
	}
	s.drop = toSet(opts.StringSlice("drop"))

	if opts.Has("combine") {
		cmb := opts.Sub("combine")
		s.combineTo = cmb.String("target", "")
		s.combineOf = cmb.StringSlice("fields")
		s.combineBy = cmb.String("sep", " ")
		if s.combineTo == "" || len(s.combineOf) == 0 {
			return s, fmt.Errorf("columns: combine needs target and fields")
		}
	}
	return s, nil
}

func toSet(in []string) map[string]bool {
	m := make(map[string]bool, len(in))
	for _, s := range in {
		m[s] = true
	}
	return m
}

// Transform implements pipeline.Transformer.
func (c *Columns) Transform(ctx context.Context, in []records.Record, opts config.Options) ([]records.Record, error) {
	spec, err := parseColumnsSpec(opts)
	if err != nil {
		return nil, err
	}
	return transformer.Map(ctx, "columns", in, opts, c.Logger, func(i int, r records.Record) (records.Record, error) {
		return spec.apply(i, r)
	})
}

func (s columnsSpec) apply(i int, r records.Record) (records.Record, error) {
	if len(s.mapping) > 0 {
		renamed := make(records.Record, len(r))
		for k, v := range r {
			if _, moved := s.mapping[k]; !moved {
				renamed[k] = v
			}
		}
		for from, to := range s.mapping {
			v, ok := r[from]
			if !ok {
				if s.strict {
					return nil, fmt.Errorf("mapped column %q is missing", from)
				}
				continue
			}
			renamed[to] = v
		}
		r = renamed
	}

	if s.clean {
		for k, v := range r {
			if str, ok := v.(string); ok {
				r[k] = cleanText(str)
			}
		}
	}

	if s.combineTo != "" {
		parts := make([]string, 0, len(s.combineOf))
		for _, f := range s.combineOf {
			if v := r[f]; !records.IsEmpty(v) {
				parts = append(parts, materialize.Stringify(v))
			}
		}
		if len(parts) > 0 {
			r[s.combineTo] = strings.Join(parts, s.combineBy)
		} else {
			r[s.combineTo] = nil
		}
	}

	for _, f := range s.booleans {
		if v, ok := r[f]; ok && !records.IsEmpty(v) {
			b, _ := materialize.Coerce(v, inference.Boolean)
			r[f] = b
		}
	}
	for _, f := range s.numerics {
		v, ok := r[f]
		if !ok || records.IsEmpty(v) {
			continue
		}
		n, err := toNumber(v, s.extract)
		if err != nil {
			return nil, fmt.Errorf("numeric field %q: %w", f, err)
		}
		r[f] = n
	}

	if s.rowID != "" && records.IsEmpty(r[s.rowID]) {
		r[s.rowID] = int64(i + 1)
	}

	if s.keep != nil || len(s.drop) > 0 {
		for k := range r {
			if (s.keep != nil && !s.keep[k]) || s.drop[k] {
				delete(r, k)
			}
		}
	}
	return r, nil
}

// cleanText collapses whitespace runs to one space. A blank result is nil.
func cleanText(s string) any {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil
	}
	return s
}

var digitRun = regexp.MustCompile(`\d+`)

// toNumber parses v as int64 when it is integral text or an integer type and
// as float64 otherwise. With extract set, text that does not parse yields its
// last run of digits ("K-Level3" -> 3).
func toNumber(v any, extract bool) (any, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		if extract {
			if runs := digitRun.FindAllString(s, -1); len(runs) > 0 {
				return strconv.ParseInt(runs[len(runs)-1], 10, 64)
			}
		}
		return nil, fmt.Errorf("%w: %q is not a number", materialize.ErrCoerce, s)
	}
	if inference.ClassifyValue(v) == inference.Integer {
		return materialize.Coerce(v, inference.Integer)
	}
	return materialize.Coerce(v, inference.Float)
}
