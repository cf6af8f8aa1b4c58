package file

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/htmlindex"

	"dataload/internal/datasource"
	"dataload/internal/etlerr"
)

// decompress wraps r according to the compression suffix. The returned
// closer releases decoder state.
func decompress(r io.Reader, c datasource.Compression) (io.Reader, func(), error) {
	switch c {
	case datasource.Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { _ = zr.Close() }, nil
	case datasource.Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case datasource.XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, func() {}, nil
	default:
		return r, func() {}, nil
	}
}

var utf8BOM = []byte("\xEF\xBB\xBF")

// encodingAliases covers common codec spellings that are not WHATWG labels.
var encodingAliases = map[string]string{
	"latin-1": "latin1",
	"latin_1": "latin1",
	"utf_8":   "utf-8",
	"utf8":    "utf-8",
	"cp-1252": "cp1252",
}

// toUTF8 decodes data from the named encoding.
func toUTF8(data []byte, name string) ([]byte, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := encodingAliases[label]; ok {
		label = alias
	}
	if label == "" || label == "utf-8" {
		return bytes.TrimPrefix(data, utf8BOM), nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", etlerr.ErrInvalidSource, name)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return bytes.TrimPrefix(out, utf8BOM), nil
}
