// Package builtin holds the transforms that ship with dataload: hash,
// auto_categorize and columns.
package builtin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dataload/internal/config"
	"dataload/internal/transformer"
	"dataload/pkg/records"
)

// DefaultHashField is where Hash writes unless target_field is set.
const DefaultHashField = "row_hash"

// Hash writes a deterministic SHA-256 of selected fields into a target field.
// It gives a stable dedupe key even when some of the fields are empty.
//
// Options:
//
//	{
//	  "fields": ["question", "category"],
//	  "target_field": "row_hash",
//	  "include_field_names": true,
//	  "trim_space": true,
//	  "overwrite": true,
//	  "separator": "\u001f"
//	}
//
// Canonical form:
//   - fields are joined in the given order with the separator
//   - a missing or nil value is a single NUL byte, so missing differs from ""
//   - time.Time is RFC3339Nano in UTC, lists and maps are JSON
//   - the result is 64 lowercase hex characters
type Hash struct {
	Logger *slog.Logger
}

type hashSpec struct {
	fields       []string
	target       string
	includeNames bool
	trimSpace    bool
	overwrite    bool
	sep          string
}

func parseHashSpec(opts config.Options) (hashSpec, error) {
	s := hashSpec{
		fields:       opts.StringSlice("fields"),
		target:       opts.String("target_field", DefaultHashField),
		includeNames: opts.Bool("include_field_names", true),
		trimSpace:    opts.Bool("trim_space", false),
		overwrite:    opts.Bool("overwrite", true),
		sep:          opts.String("separator", "\x1f"),
	}
	if len(s.fields) == 0 {
		return s, fmt.Errorf("hash: fields is required")
	}
	if s.target == "" {
		return s, fmt.Errorf("hash: target_field is empty")
	}
	if s.sep == "" {
		s.sep = "\x1f"
	}
	return s, nil
}

// Describe implements pipeline.Transformer.
func (h *Hash) Describe() string { return "add a SHA-256 hash of selected fields to every record" }

// Configs lists the options Transform understands.
func (h *Hash) Configs() map[string]string {
	return map[string]string{
		"fields":              "[]string: fields to hash, in order (required)",
		"target_field":        "string: field receiving the hex digest (default: row_hash)",
		"include_field_names": "bool: hash field=value pairs (default: true)",
		"trim_space":          "bool: trim string values before hashing (default: false)",
		"overwrite":           "bool: replace an existing target value (default: true)",
		"separator":           "string: separator between fields (default: \\x1f)",
		"skip_errors":         "bool: drop failing rows instead of failing (default: false)",
	}
}

// Transform implements pipeline.Transformer.
func (h *Hash) Transform(ctx context.Context, in []records.Record, opts config.Options) ([]records.Record, error) {
	spec, err := parseHashSpec(opts)
	if err != nil {
		return nil, err
	}
	return transformer.Map(ctx, "hash", in, opts, h.Logger, func(_ int, r records.Record) (records.Record, error) {
		if !spec.overwrite && !records.IsEmpty(r[spec.target]) {
			return r, nil
		}
		sum := hashRecord(r, spec)
		r[spec.target] = hex.EncodeToString(sum[:])
		return r, nil
	})
}

func hashRecord(r records.Record, spec hashSpec) [sha256.Size]byte {
	var b strings.Builder
	b.Grow(len(spec.fields) * 20)

	for i, f := range spec.fields {
		if i > 0 {
			b.WriteString(spec.sep)
		}
		if spec.includeNames {
			b.WriteString(f)
			b.WriteByte('=')
		}
		v, ok := r[f]
		if !ok || v == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonical(&b, v, spec.trimSpace)
	}
	return sha256.Sum256([]byte(b.String()))
}

// appendCanonical appends a stable representation of v.
func appendCanonical(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case string:
		if trimSpace {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)
	case []byte:
		s := string(t)
		if trimSpace {
			s = strings.TrimSpace(s)
		}
		b.WriteString(s)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		if !t.IsZero() {
			t = t.UTC()
		}
		b.WriteString(t.Format(time.RFC3339Nano))
	case []string, []any, map[string]any, map[string]string:
		// encoding/json sorts map keys, which keeps maps stable.
		raw, err := json.Marshal(t)
		if err != nil {
			b.WriteString(fmt.Sprint(t))
			return
		}
		b.Write(raw)
	default:
		b.WriteString(fmt.Sprint(t))
	}
}
