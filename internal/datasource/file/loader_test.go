package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
)

const sampleCSV = "name,score\nada,10\nbo,7\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func newLoader() *Loader { return &Loader{Logger: logging.Discard()} }

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path   string
		ext    string
		format datasource.Format
		comp   datasource.Compression
		ok     bool
	}{
		{"a/q.csv", ".csv", datasource.CSV, datasource.None, true},
		{"Q.XLSX", ".xlsx", datasource.Excel, datasource.None, true},
		{"q.csv.gz", ".csv", datasource.CSV, datasource.Gzip, true},
		{"q.jsonl.zst", ".jsonl", datasource.JSON, datasource.Zstd, true},
		{"page.htm.xz", ".htm", datasource.HTML, datasource.XZ, true},
		{"notes.txt", ".txt", "", datasource.None, false},
		{"archive.gz", "", "", datasource.Gzip, false},
	}
	for _, tt := range tests {
		ext, f, c, ok := datasource.Detect(tt.path)
		if ext != tt.ext || f != tt.format || c != tt.comp || ok != tt.ok {
			t.Fatalf("Detect(%q)=(%q,%q,%q,%v), want (%q,%q,%q,%v)",
				tt.path, ext, f, c, ok, tt.ext, tt.format, tt.comp, tt.ok)
		}
	}
}

func TestLoad_PlainCSV(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "q.csv", append([]byte("\xEF\xBB\xBF"), sampleCSV...))
	got, err := newLoader().Load(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Equal(t, datasource.CSV, got.Format)
	assert.Equal(t, ".csv", got.Ext)
	assert.Equal(t, sampleCSV, string(got.Data), "BOM stripped")
}

func TestLoad_Compressed(t *testing.T) {
	t.Parallel()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte(sampleCSV))
	require.NoError(t, zw.Close())

	var zs bytes.Buffer
	enc, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, _ = enc.Write([]byte(sampleCSV))
	require.NoError(t, enc.Close())

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, _ = xw.Write([]byte(sampleCSV))
	require.NoError(t, xw.Close())

	for name, data := range map[string][]byte{
		"q.csv.gz":  gz.Bytes(),
		"q.csv.zst": zs.Bytes(),
		"q.csv.xz":  xzBuf.Bytes(),
	} {
		got, err := newLoader().Load(context.Background(), writeFile(t, name, data), nil)
		require.NoError(t, err, name)
		assert.Equal(t, sampleCSV, string(got.Data), name)
	}
}

func TestLoad_Encoding(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1.
	p := writeFile(t, "q.csv", []byte("name\ncaf\xe9\n"))
	got, err := newLoader().Load(context.Background(), p, config.Options{"encoding": "latin-1"})
	require.NoError(t, err)
	assert.Equal(t, "name\ncafé\n", string(got.Data))

	_, err = newLoader().Load(context.Background(), p, config.Options{"encoding": "klingon"})
	assert.ErrorIs(t, err, etlerr.ErrInvalidSource)
}

func TestLoad_ExcelIsNotDecoded(t *testing.T) {
	t.Parallel()

	raw := []byte("PK\x03\x04\xe9")
	got, err := newLoader().Load(context.Background(), writeFile(t, "b.xlsx", raw), config.Options{"encoding": "latin-1"})
	require.NoError(t, err)
	assert.Equal(t, raw, got.Data)
	assert.Empty(t, got.Encoding)
}

func TestLoad_InvalidSource(t *testing.T) {
	t.Parallel()

	_, err := newLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.ErrorIs(t, err, etlerr.ErrInvalidSource)

	_, err = newLoader().Load(context.Background(), writeFile(t, "notes.txt", []byte("x")), nil)
	assert.ErrorIs(t, err, etlerr.ErrInvalidSource)

	// A format-specific loader rejects other formats.
	_, err = NewExcel().Load(context.Background(), writeFile(t, "q.csv", []byte(sampleCSV)), nil)
	assert.ErrorIs(t, err, etlerr.ErrInvalidSource)

	dir := filepath.Join(t.TempDir(), "dir.csv")
	require.NoError(t, os.Mkdir(dir, 0o755))
	_, err = newLoader().Load(context.Background(), dir, nil)
	assert.ErrorIs(t, err, etlerr.ErrInvalidSource)
}

func TestLoad_Timeout(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "q.csv", []byte(sampleCSV))
	_, err := newLoader().Load(context.Background(), p, config.Options{"timeout": "1ns"})
	assert.ErrorIs(t, err, etlerr.ErrTimedOut)

	_, err = newLoader().Load(context.Background(), p, config.Options{"timeout": 30})
	assert.NoError(t, err)
}

func TestDescribeListsExtensions(t *testing.T) {
	t.Parallel()

	assert.Contains(t, NewCSV().Describe(), ".csv")
	assert.NotContains(t, NewCSV().Describe(), ".xlsx")
	assert.Contains(t, New().Describe(), ".xlsb")
	assert.Contains(t, New().Configs(), "encoding")
}
