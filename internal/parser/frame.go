// Package parser holds what the format parsers share: turning a grid of
// string cells into records with pandas-style read options (header row,
// skiprows, nrows, usecols, dtype, NA values).
//
// Format parsers live in sub-packages (csv, excel, json, html).
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"dataload/internal/config"
	"dataload/internal/etlerr"
	"dataload/pkg/records"
)

// DefaultNA are the cell values read as missing when keep_default_na is on.
var DefaultNA = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

// FrameOptions control how a cell grid becomes records.
type FrameOptions struct {
	// Header is the index (after skipping) of the header row; -1 means the
	// grid has no header and columns are named "0", "1", ...
	Header int
	// SkipFirst skips that many leading rows; SkipRows skips rows by index.
	SkipFirst int
	SkipRows  map[int]bool
	// NRows limits the number of data rows; 0 reads all.
	NRows int
	// UseCols selects columns by name; UseIdx by 0-based position.
	UseCols []string
	UseIdx  []int
	// Dtype forces a column type: str, int, float or bool.
	Dtype map[string]string
	NA    map[string]bool
	// Rename maps a header to a new column name.
	Rename map[string]string
	Trim   bool
}

// ParseFrameOptions reads the shared read options:
// header, skiprows, nrows, usecols, dtype, na_values, keep_default_na,
// header_map and trim_space.
func ParseFrameOptions(opts config.Options) (FrameOptions, error) {
	fo := FrameOptions{
		Header: 0,
		NRows:  opts.Int("nrows", 0),
		Dtype:  opts.StringMap("dtype"),
		Rename: opts.StringMap("header_map"),
		Trim:   opts.Bool("trim_space", true),
	}

	if opts.Has("header") {
		switch v := opts.Any("header").(type) {
		case nil:
			fo.Header = -1
		case bool:
			if !v {
				fo.Header = -1
			}
		case string:
			if strings.EqualFold(v, "none") {
				fo.Header = -1
			} else {
				fo.Header = opts.Int("header", 0)
			}
		default:
			fo.Header = opts.Int("header", 0)
		}
	}
	if !opts.Bool("has_header", true) {
		fo.Header = -1
	}

	switch raw := opts.Any("skiprows"); raw.(type) {
	case nil:
	case []any, []int, []int64:
		fo.SkipRows = map[int]bool{}
		for _, i := range opts.IntSlice("skiprows") {
			fo.SkipRows[i] = true
		}
	default:
		fo.SkipFirst = opts.Int("skiprows", 0)
	}

	for _, c := range opts.StringSlice("usecols") {
		if n, err := strconv.Atoi(c); err == nil {
			fo.UseIdx = append(fo.UseIdx, n)
			continue
		}
		fo.UseCols = append(fo.UseCols, c)
	}

	fo.NA = map[string]bool{}
	if opts.Bool("keep_default_na", true) {
		for _, v := range DefaultNA {
			fo.NA[v] = true
		}
	}
	for _, v := range opts.StringSlice("na_values") {
		fo.NA[v] = true
	}

	if fo.Header < -1 || fo.NRows < 0 || fo.SkipFirst < 0 {
		return fo, fmt.Errorf("header, nrows and skiprows must not be negative")
	}
	for col, typ := range fo.Dtype {
		if _, ok := dtypes[strings.ToLower(typ)]; !ok {
			return fo, fmt.Errorf("dtype for %q: unknown type %q", col, typ)
		}
	}
	return fo, nil
}

var dtypes = map[string]string{
	"str": "str", "string": "str", "object": "str",
	"int": "int", "int64": "int", "int32": "int", "integer": "int",
	"float": "float", "float64": "float", "double": "float",
	"bool": "bool", "boolean": "bool",
}

// Headers normalizes raw header cells: trimmed, a leading BOM removed, empty
// names become "Unnamed: i" and repeats get ".1", ".2", ... suffixes.
func Headers(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	dups := make(map[string]int)
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for seen[name] {
			dups[h]++
			name = h + "." + strconv.Itoa(dups[h])
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// BuildRecords turns grid rows into records according to fo.
func BuildRecords(grid [][]string, fo FrameOptions) ([]records.Record, error) {
	rows := make([][]string, 0, len(grid))
	for i, r := range grid {
		if i < fo.SkipFirst || fo.SkipRows[i] {
			continue
		}
		rows = append(rows, r)
	}

	var header []string
	if fo.Header >= 0 {
		if fo.Header >= len(rows) {
			return nil, nil
		}
		header = Headers(rows[fo.Header])
		rows = rows[fo.Header+1:]
	} else {
		width := 0
		for _, r := range rows {
			width = max(width, len(r))
		}
		header = make([]string, width)
		for i := range header {
			header[i] = strconv.Itoa(i)
		}
	}
	if fo.NRows > 0 && fo.NRows < len(rows) {
		rows = rows[:fo.NRows]
	}

	idx, err := selectColumns(header, fo)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(idx))
	for k, i := range idx {
		names[k] = header[i]
		if to, ok := fo.Rename[header[i]]; ok && to != "" {
			names[k] = to
		}
	}

	out := make([]records.Record, 0, len(rows))
	for n, r := range rows {
		rec := make(records.Record, len(idx))
		for k, i := range idx {
			var cell string
			if i < len(r) {
				cell = r[i]
			}
			if fo.Trim {
				cell = strings.TrimSpace(cell)
			}
			v, err := cellValue(cell, fo.Dtype[header[i]], fo.NA)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", etlerr.ErrParse, n+1, header[i], err)
			}
			rec[names[k]] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

func selectColumns(header []string, fo FrameOptions) ([]int, error) {
	if len(fo.UseCols) == 0 && len(fo.UseIdx) == 0 {
		idx := make([]int, len(header))
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	keep := map[int]bool{}
	for _, c := range fo.UseCols {
		i, ok := pos[c]
		if !ok {
			return nil, fmt.Errorf("%w: usecols: no column %q", etlerr.ErrParse, c)
		}
		keep[i] = true
	}
	for _, i := range fo.UseIdx {
		if i < 0 || i >= len(header) {
			return nil, fmt.Errorf("%w: usecols: column index %d out of range", etlerr.ErrParse, i)
		}
		keep[i] = true
	}
	var idx []int
	for i := range header {
		if keep[i] {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// cellValue applies NA detection and the optional dtype to one cell.
func cellValue(cell, dtype string, na map[string]bool) (any, error) {
	if na[cell] {
		return nil, nil
	}
	switch dtypes[strings.ToLower(dtype)] {
	case "int":
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(cell, 64)
			if ferr != nil || f != float64(int64(f)) {
				return nil, fmt.Errorf("%q is not an integer", cell)
			}
			n = int64(f)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", cell)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(strings.ToLower(cell))
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", cell)
		}
		return b, nil
	default:
		return cell, nil
	}
}
