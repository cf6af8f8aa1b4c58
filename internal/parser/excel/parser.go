// Package excel reads one worksheet of an .xlsx / .xlsm workbook into records
// using github.com/xuri/excelize/v2.
//
// Legacy binary workbooks (.xls) and .xlsb are recognized but rejected with
// etlerr.ErrUnsupportedFormat: excelize only reads the OOXML zip formats.
package excel

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/internal/parser"
	"dataload/pkg/records"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Parser reads spreadsheet payloads. The zero value is ready to use.
type Parser struct {
	Logger *slog.Logger
}

// New returns a Parser.
func New() *Parser { return &Parser{} }

// Describe implements pipeline.Parser.
func (p *Parser) Describe() string { return "parse one spreadsheet sheet (xlsx, xlsm) into records" }

// Configs lists the options Parse understands.
func (p *Parser) Configs() map[string]string {
	return map[string]string{
		"sheet_name":      "int or string: sheet index or name (default: 0)",
		"header":          "int or none: header row index after skiprows (default: 0)",
		"skiprows":        "int or []int: skip that many leading rows, or rows by index",
		"nrows":           "int: maximum data rows to read",
		"usecols":         "string of Excel letters (\"A:C,E\") or list of names / indices",
		"dtype":           "map: column -> str|int|float|bool",
		"na_values":       "[]string: extra values read as missing",
		"keep_default_na": "bool: treat the standard NA spellings as missing (default: true)",
		"header_map":      "map: rename header -> column name",
		"trim_space":      "bool: trim cell whitespace (default: true)",
	}
}

// Parse implements pipeline.Parser.
//
// Cells are read as raw values, so numbers keep their stored precision and
// dates arrive as serial numbers.
//
// Errors:
//   - etlerr.ErrUnsupportedFormat for .xls/.xlsb or non-spreadsheet payloads
//   - etlerr.ErrParse for corrupt workbooks, a missing sheet, or bad options
func (p *Parser) Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error) {
	log := p.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	if payload.Format != datasource.Excel {
		return nil, fmt.Errorf("%w: excel parser got %s payload", etlerr.ErrUnsupportedFormat, payload.Format)
	}
	switch {
	case payload.Ext == ".xlsb":
		return nil, fmt.Errorf("%w: %s: binary workbooks (.xlsb) are not supported", etlerr.ErrUnsupportedFormat, payload.Source)
	case payload.Ext == ".xls" || bytes.HasPrefix(payload.Data, oleMagic):
		return nil, fmt.Errorf("%w: %s: legacy .xls workbooks are not supported, save as .xlsx", etlerr.ErrUnsupportedFormat, payload.Source)
	case !bytes.HasPrefix(payload.Data, zipMagic):
		return nil, fmt.Errorf("%w: %s: not an xlsx workbook", etlerr.ErrParse, payload.Source)
	}

	opts, err := expandLetterCols(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etlerr.ErrParse, err)
	}
	fo, err := parser.ParseFrameOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", etlerr.ErrParse, err)
	}

	f, err := excelize.OpenReader(payload.Reader())
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook %s: %v", etlerr.ErrParse, payload.Source, err)
	}
	defer func() { _ = f.Close() }()

	sheet, err := pickSheet(f.GetSheetList(), opts.Any("sheet_name"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", etlerr.ErrParse, payload.Source, err)
	}

	grid, err := readSheet(ctx, f, sheet)
	if err != nil {
		return nil, err
	}
	out, err := parser.BuildRecords(grid, fo)
	if err != nil {
		return nil, err
	}
	log.Debug("parse: excel", "source", payload.Source, "sheet", sheet, "rows", len(out))
	return out, nil
}

func readSheet(ctx context.Context, f *excelize.File, sheet string) ([][]string, error) {
	it, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", etlerr.ErrParse, sheet, err)
	}
	defer func() { _ = it.Close() }()

	var grid [][]string
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := it.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q row %d: %v", etlerr.ErrParse, sheet, len(grid)+1, err)
		}
		grid = append(grid, row)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", etlerr.ErrParse, sheet, err)
	}
	return grid, nil
}

// pickSheet resolves sheet_name: nil means the first sheet, a number is an
// index, a numeric string that is not itself a sheet name is an index too.
func pickSheet(sheets []string, want any) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	var idx int
	switch v := want.(type) {
	case nil:
		idx = 0
	case string:
		for _, s := range sheets {
			if s == v {
				return s, nil
			}
		}
		for _, s := range sheets {
			if strings.EqualFold(s, v) {
				return s, nil
			}
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return "", fmt.Errorf("no sheet named %q (have %s)", v, strings.Join(sheets, ", "))
		}
		idx = n
	default:
		idx = config.Options{"sheet_name": v}.Int("sheet_name", -1)
	}
	if idx < 0 || idx >= len(sheets) {
		return "", fmt.Errorf("sheet index %d out of range (%d sheets)", idx, len(sheets))
	}
	return sheets[idx], nil
}

var letterRange = regexp.MustCompile(`^[A-Za-z]{1,3}(:[A-Za-z]{1,3})?$`)

// expandLetterCols rewrites a usecols string of Excel column letters
// ("A:C,E") into 0-based indices. Lists are left alone: they name columns.
func expandLetterCols(opts config.Options) (config.Options, error) {
	s, ok := opts.Any("usecols").(string)
	if !ok || strings.TrimSpace(s) == "" {
		return opts, nil
	}
	parts := opts.StringSlice("usecols")
	for _, p := range parts {
		if !letterRange.MatchString(p) {
			return opts, nil
		}
	}

	var idx []any
	for _, p := range parts {
		from, to, _ := strings.Cut(p, ":")
		if to == "" {
			to = from
		}
		a, err := excelize.ColumnNameToNumber(strings.ToUpper(from))
		if err != nil {
			return nil, fmt.Errorf("usecols %q: %v", p, err)
		}
		b, err := excelize.ColumnNameToNumber(strings.ToUpper(to))
		if err != nil {
			return nil, fmt.Errorf("usecols %q: %v", p, err)
		}
		if b < a {
			a, b = b, a
		}
		for n := a; n <= b; n++ {
			idx = append(idx, strconv.Itoa(n-1))
		}
	}
	return opts.Merge(config.Options{"usecols": idx}), nil
}
