// Package json parses JSON documents (arrays, envelopes and JSON lines) into
// records.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/pkg/records"
)

// Parser reads JSON payloads. The zero value is ready to use.
type Parser struct {
	Logger *slog.Logger
}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Describe implements pipeline.Parser.
func (p *Parser) Describe() string {
	return "parse JSON arrays, envelope objects or JSON lines into records"
}

// Configs lists the options Parse understands.
func (p *Parser) Configs() map[string]string {
	return map[string]string{
		"record_path":          "string: envelope key holding the record array (default: first array of objects)",
		"header_map":           "map: rename key -> column name",
		"array_join_separator": "string: join string arrays into one value with this separator (default: keep as list)",
		"flatten":              "bool: flatten nested objects into dotted columns (default: false)",
		"flatten_separator":    "string: separator for flattened names (default: .)",
		"nrows":                "int: maximum records to read",
	}
}

// errStop ends the walk early once nrows records were read.
var errStop = errors.New("stop")

type options struct {
	recordPath string
	rename     map[string]string
	joinSep    string
	join       bool
	flatten    bool
	flatSep    string
	nrows      int
}

func parseOptions(opts config.Options) options {
	o := options{
		recordPath: strings.TrimSpace(opts.String("record_path", "")),
		rename:     opts.StringMap("header_map"),
		join:       opts.Has("array_join_separator"),
		joinSep:    opts.String("array_join_separator", ","),
		flatten:    opts.Bool("flatten", false),
		flatSep:    opts.String("flatten_separator", "."),
		nrows:      opts.Int("nrows", 0),
	}
	if o.joinSep == "" {
		o.joinSep = ","
	}
	return o
}

// Parse implements pipeline.Parser.
//
// Numbers become int64 when integral and float64 otherwise. Arrays of strings
// become []string. Nested objects stay maps unless flatten is set.
func (p *Parser) Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error) {
	log := p.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	if payload.Format != datasource.JSON {
		return nil, fmt.Errorf("%w: json parser got %s payload", etlerr.ErrUnsupportedFormat, payload.Format)
	}
	o := parseOptions(opts)

	dec := json.NewDecoder(payload.Reader())
	dec.UseNumber()

	var out []records.Record
	err := walk(ctx, dec, o.recordPath, func(obj map[string]any) error {
		if o.nrows > 0 && len(out) >= o.nrows {
			return errStop
		}
		out = append(out, toRecord(obj, o))
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: json %s: %v", etlerr.ErrParse, payload.Source, err)
	}
	log.Debug("parse: json", "source", payload.Source, "rows", len(out))
	return out, nil
}

func toRecord(obj map[string]any, o options) records.Record {
	rec := make(records.Record, len(obj))
	for k, v := range obj {
		v = normalize(v, o)
		if m, ok := v.(map[string]any); ok && o.flatten {
			flattenInto(rec, k, m, o.flatSep)
			continue
		}
		rec[k] = v
	}
	for from, to := range o.rename {
		if v, ok := rec[from]; ok && to != "" && from != to {
			delete(rec, from)
			rec[to] = v
		}
	}
	return rec
}

func flattenInto(rec records.Record, prefix string, m map[string]any, sep string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := prefix + sep + k
		if nested, ok := m[k].(map[string]any); ok {
			flattenInto(rec, name, nested, sep)
			continue
		}
		rec[name] = m[k]
	}
}

// normalize converts decoder values into record values.
func normalize(v any, o options) any {
	switch t := v.(type) {
	case json.Number:
		return number(t)
	case []any:
		strs := make([]string, 0, len(t))
		allStrings := true
		for _, el := range t {
			if el == nil {
				continue
			}
			s, ok := el.(string)
			if !ok {
				allStrings = false
				break
			}
			strs = append(strs, s)
		}
		if allStrings {
			if o.join {
				return strings.Join(strs, o.joinSep)
			}
			return strs
		}
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalize(el, o)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = normalize(el, o)
		}
		return out
	default:
		return v
	}
}

func number(n json.Number) any {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return f
	}
	return string(n)
}
