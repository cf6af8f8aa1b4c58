// Package transformer runs record-to-record transforms over a batch.
//
// Transforms never modify the batch they receive: every row function gets a
// clone of its record and the caller gets a new slice back.
package transformer

import (
	"context"
	"fmt"
	"log/slog"

	"dataload/internal/config"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/internal/metrics"
	"dataload/pkg/records"
)

// RowFunc transforms one record. It may modify and return rec, which is
// already a private copy. Returning a nil record drops the row.
type RowFunc func(i int, rec records.Record) (records.Record, error)

// Options shared by every transform.
type Options struct {
	// SkipErrors drops a failing row (logged and counted) instead of failing
	// the batch.
	SkipErrors bool
	// StrictMode is passed through to transforms that have a strict variant.
	StrictMode bool
}

// ParseOptions reads skip_errors and strict_mode (both default false).
func ParseOptions(opts config.Options) Options {
	return Options{
		SkipErrors: opts.Bool("skip_errors", false),
		StrictMode: opts.Bool("strict_mode", false),
	}
}

// Map applies fn to every record of in.
//
// Edge cases:
//   - nil records in the input are dropped.
//   - a panic inside fn is a row error like any other.
//
// Errors:
//   - the first row error wrapped in etlerr.ErrTransform, unless skip_errors
//   - ctx cancellation
func Map(ctx context.Context, name string, in []records.Record, opts config.Options, log *slog.Logger, fn RowFunc) ([]records.Record, error) {
	if log == nil {
		log = logging.FromContext(ctx)
	}
	o := ParseOptions(opts)

	out := make([]records.Record, 0, len(in))
	skipped := 0
	for i, rec := range in {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if rec == nil {
			continue
		}
		got, err := safeCall(fn, i, rec.Clone())
		if err != nil {
			if !o.SkipErrors {
				return nil, fmt.Errorf("%w: %s: row %d: %v", etlerr.ErrTransform, name, i, err)
			}
			skipped++
			log.Warn("transform: skipping row", "transform", name, "row", i, "err", err)
			continue
		}
		if got != nil {
			out = append(out, got)
		}
	}
	if skipped > 0 {
		metrics.RecordRows("skipped", skipped)
	}
	log.Debug("transform: done", "transform", name, "in", len(in), "out", len(out), "skipped", skipped)
	return out, nil
}

func safeCall(fn RowFunc, i int, rec records.Record) (out records.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(i, rec)
}
