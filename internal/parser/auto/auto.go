// Package auto picks a format parser from the payload's detected format.
package auto

import (
	"context"
	"fmt"
	"log/slog"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/parser/csv"
	"dataload/internal/parser/excel"
	"dataload/internal/parser/html"
	"dataload/internal/parser/json"
	"dataload/pkg/records"
)

type formatParser interface {
	Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error)
	Configs() map[string]string
}

// Parser dispatches to the csv, excel, json or html parser.
type Parser struct {
	byFormat map[datasource.Format]formatParser
}

// New returns a Parser whose format parsers log to logger (nil uses the
// context logger).
func New(logger *slog.Logger) *Parser {
	return &Parser{byFormat: map[datasource.Format]formatParser{
		datasource.CSV:   &csv.Parser{Logger: logger},
		datasource.Excel: &excel.Parser{Logger: logger},
		datasource.JSON:  &json.Parser{Logger: logger},
		datasource.HTML:  &html.Parser{Logger: logger},
	}}
}

// Describe implements pipeline.Parser.
func (p *Parser) Describe() string { return "parse any supported format, chosen by file extension" }

// Configs merges the options of every format parser.
func (p *Parser) Configs() map[string]string {
	out := map[string]string{}
	for _, fp := range p.byFormat {
		for k, v := range fp.Configs() {
			out[k] = v
		}
	}
	return out
}

// Parse implements pipeline.Parser.
func (p *Parser) Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error) {
	fp, ok := p.byFormat[payload.Format]
	if !ok {
		return nil, fmt.Errorf("%w: no parser for format %q", etlerr.ErrUnsupportedFormat, payload.Format)
	}
	return fp.Parse(ctx, payload, opts)
}
