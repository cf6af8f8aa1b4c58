// Package datasource defines what a loader hands to a parser: the raw
// (decompressed, UTF-8 decoded) bytes of one source plus the format implied
// by its file name.
package datasource

import (
	"bytes"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Format is the tabular format of a source.
type Format string

const (
	CSV   Format = "csv"
	Excel Format = "excel"
	JSON  Format = "json"
	HTML  Format = "html"
)

// Compression is a transparent compression suffix.
type Compression string

const (
	None Compression = ""
	Gzip Compression = ".gz"
	Zstd Compression = ".zst"
	XZ   Compression = ".xz"
)

var extFormats = map[string]Format{
	".csv":   CSV,
	".xlsx":  Excel,
	".xls":   Excel,
	".xlsm":  Excel,
	".xlsb":  Excel,
	".json":  JSON,
	".jsonl": JSON,
	".html":  HTML,
	".htm":   HTML,
}

// Payload is one loaded source.
type Payload struct {
	// Source is the path the payload was loaded from.
	Source string
	// Ext is the lower-cased format extension (compression suffix removed).
	Ext    string
	Format Format
	// Encoding is the source encoding the data was decoded from. Spreadsheet
	// payloads are binary and never decoded.
	Encoding string
	Data     []byte
}

// Reader returns a fresh reader over the payload data.
func (p *Payload) Reader() io.Reader { return bytes.NewReader(p.Data) }

// Detect splits path into its format extension and compression suffix.
// ok is false when the extension is not a supported format.
//
//	"q.csv.gz" -> (".csv", csv, .gz, true)
func Detect(path string) (ext string, f Format, c Compression, ok bool) {
	name := strings.ToLower(filepath.Base(path))
	for _, s := range []Compression{Gzip, Zstd, XZ} {
		if strings.HasSuffix(name, string(s)) {
			c = s
			name = strings.TrimSuffix(name, string(s))
			break
		}
	}
	ext = filepath.Ext(name)
	f, ok = extFormats[ext]
	return ext, f, c, ok
}

// Extensions returns the supported extensions of the given formats, sorted.
// No formats means all.
func Extensions(formats ...Format) []string {
	want := make(map[Format]bool, len(formats))
	for _, f := range formats {
		want[f] = true
	}
	var out []string
	for ext, f := range extFormats {
		if len(want) == 0 || want[f] {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}
