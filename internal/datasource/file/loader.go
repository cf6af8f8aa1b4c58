// Package file loads tabular sources from the local file system.
//
// A Loader validates the path and extension, reads the file (transparently
// decompressing .gz, .zst and .xz), and decodes text formats to UTF-8.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
)

// Loader reads files of the configured formats.
type Loader struct {
	// Formats restricts accepted sources; empty accepts every format.
	Formats []datasource.Format
	Logger  *slog.Logger
}

// New returns a Loader for every supported format.
func New() *Loader { return &Loader{} }

// NewCSV returns a Loader that accepts delimited text only.
func NewCSV() *Loader { return &Loader{Formats: []datasource.Format{datasource.CSV}} }

// NewExcel returns a Loader that accepts spreadsheet workbooks only.
func NewExcel() *Loader { return &Loader{Formats: []datasource.Format{datasource.Excel}} }

// NewJSON returns a Loader that accepts JSON and JSON lines only.
func NewJSON() *Loader { return &Loader{Formats: []datasource.Format{datasource.JSON}} }

// NewHTML returns a Loader that accepts HTML documents only.
func NewHTML() *Loader { return &Loader{Formats: []datasource.Format{datasource.HTML}} }

// Describe implements pipeline.Loader.
func (l *Loader) Describe() string {
	return "load " + strings.Join(datasource.Extensions(l.Formats...), ", ") + " files (optionally .gz, .zst or .xz compressed)"
}

// Configs lists the options Load understands.
func (l *Loader) Configs() map[string]string {
	return map[string]string{
		"encoding": "string: source text encoding, any WHATWG label (default: utf-8)",
		"timeout":  "seconds or duration: give up reading after this long (default: none)",
	}
}

// Validate checks that source exists, is a regular file and has an accepted
// extension.
func (l *Loader) Validate(source string) error {
	_, f, _, ok := datasource.Detect(source)
	if !ok || !l.accepts(f) {
		return fmt.Errorf("%w: %s: unsupported extension (want one of %s)",
			etlerr.ErrInvalidSource, source, strings.Join(datasource.Extensions(l.Formats...), " "))
	}
	st, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("%w: %v", etlerr.ErrInvalidSource, err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", etlerr.ErrInvalidSource, source)
	}
	return nil
}

func (l *Loader) accepts(f datasource.Format) bool {
	if len(l.Formats) == 0 {
		return true
	}
	for _, a := range l.Formats {
		if a == f {
			return true
		}
	}
	return false
}

// Load implements pipeline.Loader.
//
// Errors:
//   - etlerr.ErrInvalidSource: missing file, unsupported extension, unknown encoding
//   - etlerr.ErrTimedOut: the read did not finish within "timeout"
//   - decompression and I/O failures
func (l *Loader) Load(ctx context.Context, source string, opts config.Options) (*datasource.Payload, error) {
	log := l.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	if err := l.Validate(source); err != nil {
		return nil, err
	}
	ext, format, comp, _ := datasource.Detect(source)

	if timeout := opts.Duration("timeout", 0); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := readFile(ctx, source, comp)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: reading %s after %s", etlerr.ErrTimedOut, source, opts.Duration("timeout", 0))
		}
		return nil, fmt.Errorf("load %s: %w", source, err)
	}

	p := &datasource.Payload{Source: source, Ext: ext, Format: format, Data: data}
	if format != datasource.Excel {
		p.Encoding = opts.String("encoding", "utf-8")
		if p.Data, err = toUTF8(data, p.Encoding); err != nil {
			return nil, err
		}
	}

	log.Info("load: source read",
		"source", source, "format", format, "bytes", len(p.Data), "dur_ms", time.Since(start).Milliseconds())
	return p, nil
}

func readFile(ctx context.Context, path string, comp datasource.Compression) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, release, err := decompress(&ctxReader{ctx: ctx, r: f}, comp)
	if err != nil {
		return nil, err
	}
	defer release()
	return io.ReadAll(r)
}

// ctxReader fails reads once ctx is done or its deadline has passed.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if dl, ok := c.ctx.Deadline(); ok && !time.Now().Before(dl) {
		return 0, context.DeadlineExceeded
	}
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
