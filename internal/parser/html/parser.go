// Package html reads one <table> from an HTML document into records using
// github.com/PuerkitoBio/goquery.
package html

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/internal/parser"
	"dataload/pkg/records"
)

// maxColspan caps colspan so a hostile attribute cannot blow up a row.
const maxColspan = 1000

// Parser reads HTML tables. The zero value is ready to use.
type Parser struct {
	Logger *slog.Logger
}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Describe implements pipeline.Parser.
func (p *Parser) Describe() string { return "parse an HTML table into records" }

// Configs lists the options Parse understands.
func (p *Parser) Configs() map[string]string {
	return map[string]string{
		"table_selector": "string: CSS selector for candidate tables (default: table)",
		"table_index":    "int: which matching table to read (default: 0)",
		"header":         "int or none: header row index after skiprows (default: 0)",
		"skiprows":       "int or []int: skip that many leading rows, or rows by index",
		"nrows":          "int: maximum data rows to read",
		"usecols":        "[]string: columns to keep, by name or 0-based index",
		"dtype":          "map: column -> str|int|float|bool",
		"na_values":      "[]string: extra values read as missing",
		"header_map":     "map: rename header -> column name",
	}
}

// Parse implements pipeline.Parser.
//
// Rows are the table's <tr> elements (nested tables excluded); cells are
// direct <th>/<td> children with whitespace collapsed. A colspan repeats the
// cell value across the spanned columns.
func (p *Parser) Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error) {
	log := p.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	if payload.Format != datasource.HTML {
		return nil, fmt.Errorf("%w: html parser got %s payload", etlerr.ErrUnsupportedFormat, payload.Format)
	}
	fo, err := parser.ParseFrameOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etlerr.ErrParse, err)
	}

	doc, err := goquery.NewDocumentFromReader(payload.Reader())
	if err != nil {
		return nil, fmt.Errorf("%w: html %s: %v", etlerr.ErrParse, payload.Source, err)
	}

	selector := opts.String("table_selector", "table")
	index := opts.Int("table_index", 0)
	tables := doc.Find(selector)
	if tables.Length() == 0 {
		return nil, fmt.Errorf("%w: html %s: no table matches %q", etlerr.ErrParse, payload.Source, selector)
	}
	if index < 0 || index >= tables.Length() {
		return nil, fmt.Errorf("%w: html %s: table_index %d out of range (%d tables)", etlerr.ErrParse, payload.Source, index, tables.Length())
	}
	table := tables.Eq(index)

	grid := tableGrid(table)
	out, err := parser.BuildRecords(grid, fo)
	if err != nil {
		return nil, err
	}
	log.Debug("parse: html", "source", payload.Source, "selector", selector, "index", index, "rows", len(out))
	return out, nil
}

// tableGrid returns the cell text of table's own rows.
func tableGrid(table *goquery.Selection) [][]string {
	var grid [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").Get(0) != table.Get(0) {
			return
		}
		var row []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.Join(strings.Fields(cell.Text()), " ")
			span := 1
			if v, ok := cell.Attr("colspan"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
					span = min(n, maxColspan)
				}
			}
			for i := 0; i < span; i++ {
				row = append(row, text)
			}
		})
		if len(row) > 0 {
			grid = append(grid, row)
		}
	})
	return grid
}
