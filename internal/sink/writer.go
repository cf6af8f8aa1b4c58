package sink

import (
	"context"
	"fmt"
	"log/slog"

	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/internal/metrics"
	"dataload/internal/storage"
	"dataload/pkg/records"
)

// DefaultBatchSize is the number of rows committed per transaction.
const DefaultBatchSize = 1000

// Writer loads records into one table through a repository it does not own.
type Writer struct {
	repo     storage.Repository
	def      storage.TableDef
	bindings []Binding
	types    map[string]storage.SQLType
	log      *slog.Logger
}

// NewWriter returns a Writer for def. bindings select and order the columns
// written; every binding must name a column of def.
func NewWriter(repo storage.Repository, def storage.TableDef, bindings []Binding, log *slog.Logger) (*Writer, error) {
	types := make(map[string]storage.SQLType, len(def.Columns))
	for _, c := range def.Columns {
		types[c.Name] = c.Type
	}
	for _, b := range bindings {
		if _, ok := types[b.Column]; !ok {
			return nil, fmt.Errorf("sink: column %q is not in table %s", b.Column, def.Name)
		}
	}
	return &Writer{repo: repo, def: def, bindings: bindings, types: types, log: logging.OrDefault(log)}, nil
}

// Create creates the table. With overwrite an existing table is dropped
// first; otherwise an existing table is kept as is.
func (w *Writer) Create(ctx context.Context, overwrite bool) error {
	w.log.Info("sink: create table", "table", w.def.Name, "columns", len(w.def.Columns), "overwrite", overwrite)
	return w.repo.CreateTable(ctx, w.def, overwrite)
}

// InsertStats counts what Insert wrote.
type InsertStats struct {
	Rows    int64 `json:"rows"`
	Batches int   `json:"batches"`
}

// Insert writes batch in chunks of batchSize rows (DefaultBatchSize when
// <= 0), each in its own transaction. The first failing chunk aborts the
// load with an error wrapping etlerr.ErrBatchInsert; chunks committed before
// it stay committed.
func (w *Writer) Insert(ctx context.Context, batch []records.Record, batchSize int) (InsertStats, error) {
	var st InsertStats
	if len(batch) == 0 || len(w.bindings) == 0 {
		return st, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	columns := make([]string, len(w.bindings))
	for i, b := range w.bindings {
		columns[i] = b.Column
	}

	for lo := 0; lo < len(batch); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		hi := min(lo+batchSize, len(batch))

		rows := make([][]any, 0, hi-lo)
		for _, rec := range batch[lo:hi] {
			rows = append(rows, w.row(rec))
		}

		n, err := w.repo.InsertBatch(ctx, w.def, columns, rows)
		if err != nil {
			return st, fmt.Errorf("%w: table %s rows %d-%d: %v", etlerr.ErrBatchInsert, w.def.Name, lo, hi-1, err)
		}
		st.Rows += n
		st.Batches++
		metrics.RecordBatches(1)
		w.log.Debug("sink: batch committed", "table", w.def.Name, "batch", st.Batches, "rows", n)
	}
	metrics.RecordRows("inserted", int(st.Rows))
	return st, nil
}

func (w *Writer) row(rec records.Record) []any {
	out := make([]any, len(w.bindings))
	for i, b := range w.bindings {
		out[i] = CoerceValue(rec[b.Source], w.types[b.Column])
	}
	return out
}
