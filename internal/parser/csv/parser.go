// Package csv parses delimited text payloads into records.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/internal/parser"
	"dataload/pkg/records"
)

// Parser reads delimited text. The zero value is ready to use.
type Parser struct {
	Logger *slog.Logger
}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Describe implements pipeline.Parser.
func (p *Parser) Describe() string { return "parse delimited text (CSV) into records" }

// Configs lists the options Parse understands.
func (p *Parser) Configs() map[string]string {
	return map[string]string{
		"delimiter":         "char: field separator, `\\t` or tab for tabs (default: ,)",
		"quotechar":         "char: quote character (default: \")",
		"has_header":        "bool: first row holds column names (default: true)",
		"header":            "int or none: header row index after skiprows (default: 0)",
		"skiprows":          "int or []int: skip that many leading rows, or rows by index",
		"nrows":             "int: maximum data rows to read",
		"usecols":           "[]string: columns to keep, by name or 0-based index",
		"dtype":             "map: column -> str|int|float|bool",
		"na_values":         "[]string: extra values read as missing",
		"keep_default_na":   "bool: treat the standard NA spellings as missing (default: true)",
		"header_map":        "map: rename header -> column name",
		"trim_space":        "bool: trim cell whitespace (default: true)",
		"lazy_quotes":       "bool: tolerate bare quotes in fields (default: false)",
		"fields_per_record": "int: required fields per row, 0 for any (default: 0)",
	}
}

// Parse implements pipeline.Parser.
//
// Errors wrap etlerr.ErrParse (malformed rows, bad dtype values) or
// etlerr.ErrUnsupportedFormat (non-delimited payloads).
func (p *Parser) Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error) {
	log := p.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	if payload.Format != datasource.CSV {
		return nil, fmt.Errorf("%w: csv parser got %s payload", etlerr.ErrUnsupportedFormat, payload.Format)
	}
	fo, err := parser.ParseFrameOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etlerr.ErrParse, err)
	}

	comma := opts.Rune("delimiter", opts.Rune("comma", ','))
	quote := opts.Rune("quotechar", '"')
	if comma == quote || comma == '\n' || comma == '\r' {
		return nil, fmt.Errorf("%w: invalid delimiter %q", etlerr.ErrParse, comma)
	}

	data := payload.Data
	if quote != '"' {
		data = swapRunes(data, quote, '"')
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = comma
	cr.LazyQuotes = opts.Bool("lazy_quotes", false)
	if n := opts.Int("fields_per_record", 0); n != 0 {
		cr.FieldsPerRecord = n
	} else {
		cr.FieldsPerRecord = -1
	}

	var grid [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", etlerr.ErrParse, err)
		}
		if quote != '"' {
			for i := range rec {
				rec[i] = swapString(rec[i], quote, '"')
			}
		}
		grid = append(grid, rec)
	}

	out, err := parser.BuildRecords(grid, fo)
	if err != nil {
		return nil, err
	}
	log.Debug("parse: csv", "source", payload.Source, "rows", len(out))
	return out, nil
}

// swapRunes exchanges a and b throughout data. encoding/csv only knows the
// double quote, so a custom quote character is swapped in before reading and
// swapped back in every field afterwards.
func swapRunes(data []byte, a, b rune) []byte {
	return []byte(swapString(string(data), a, b))
}

func swapString(s string, a, b rune) string {
	if !strings.ContainsRune(s, a) && !strings.ContainsRune(s, b) {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case a:
			return b
		case b:
			return a
		}
		return r
	}, s)
}
