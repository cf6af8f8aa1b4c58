// Package sink loads record batches into a relational table.
//
// The sink derives the table definition from the data itself: it samples
// each column to pick a storage class (INTEGER, REAL, TEXT or BLOB), cleans
// column names into safe identifiers and detects a primary key. Rows are
// then inserted in fixed-size batches, one transaction per batch.
//
// The backend is any registered storage kind; sqlite is the default.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"

	"dataload/internal/config"
	"dataload/internal/logging"
	"dataload/internal/storage"
	"dataload/pkg/records"
)

// Defaults for the relational conversion options.
const (
	DefaultKind  = "sqlite"
	DefaultTable = "data"
)

// Options are the parsed conversion options.
type Options struct {
	Kind             string
	DSN              string
	Table            string
	Overwrite        bool
	BatchSize        int
	AutoCreateSchema bool
	PrimaryKeyField  string
	SampleSize       int
}

// ParseOptions reads Options from stage options. "db_path" is accepted as an
// alias of "dsn" for file-backed databases.
//
// Errors:
//   - missing dsn
//   - non-positive batch_size
func ParseOptions(opts config.Options) (Options, error) {
	o := Options{
		Kind:             opts.String("storage_kind", DefaultKind),
		DSN:              opts.String("dsn", opts.String("db_path", "")),
		Table:            opts.String("table", DefaultTable),
		Overwrite:        opts.Bool("overwrite", false),
		BatchSize:        opts.Int("batch_size", DefaultBatchSize),
		AutoCreateSchema: opts.Bool("auto_create_schema", true),
		PrimaryKeyField:  opts.String("primary_key_field", ""),
		SampleSize:       opts.Int("sample_size", DefaultSampleSize),
	}
	if strings.TrimSpace(o.DSN) == "" {
		return o, fmt.Errorf("sink: dsn is required")
	}
	if o.BatchSize <= 0 {
		return o, fmt.Errorf("sink: batch_size must be positive, got %d", o.BatchSize)
	}
	return o, nil
}

// Report summarizes one relational conversion. Dropped lists source columns
// with no matching column in an existing table (auto_create_schema=false).
type Report struct {
	Backend  string           `json:"backend"`
	DSN      string           `json:"dsn"`
	Table    storage.TableDef `json:"table"`
	Bindings []Binding        `json:"bindings"`
	Created  bool             `json:"created"`
	Rows     int64            `json:"rows"`
	Batches  int              `json:"batches"`
	Dropped  []string         `json:"dropped,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Sink implements pipeline.Converter[*Report].
type Sink struct {
	// Open opens the repository; nil means storage.New.
	Open   storage.Factory
	Logger *slog.Logger
}

// New returns a Sink over the registered storage backends.
func New() *Sink { return &Sink{} }

// Describe implements pipeline.Converter.
func (s *Sink) Describe() string {
	return "load records into a relational table with an inferred schema"
}

// Configs lists the options Convert understands.
func (s *Sink) Configs() map[string]string {
	return map[string]string{
		"storage_kind":       "string: registered storage backend (default: sqlite)",
		"dsn":                "string: connection string or database file path (alias: db_path)",
		"table":              "string: target table (default: data)",
		"overwrite":          "bool: drop an existing table first (default: false)",
		"batch_size":         "int: rows per insert transaction (default: 1000)",
		"auto_create_schema": "bool: infer and create the table; false inserts into the existing table (default: true)",
		"primary_key_field":  "string: primary key column (default: auto-detected)",
		"sample_size":        "int: rows sampled for column types (default: 100)",
	}
}

// Convert implements pipeline.Converter.
//
// One repository connection is opened for the conversion and closed on every
// exit path. An empty batch opens nothing and reports zero rows.
//
// Errors:
//   - invalid options
//   - backend open/DDL failures
//   - a failed batch, wrapping etlerr.ErrBatchInsert
func (s *Sink) Convert(ctx context.Context, batch []records.Record, opts config.Options) (rep *Report, err error) {
	log := s.Logger
	if log == nil {
		log = logging.FromContext(ctx)
	}
	o, err := ParseOptions(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rep = &Report{Backend: o.Kind, DSN: RedactDSN(o.DSN)}
	if len(batch) == 0 {
		log.Warn("sink: no records to load", "table", o.Table)
		return rep, nil
	}

	repo, err := s.open(ctx, storage.Config{Kind: o.Kind, DSN: o.DSN})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("sink: close: %w", cerr))
		}
	}()

	var (
		def      storage.TableDef
		bindings []Binding
	)
	if o.AutoCreateSchema {
		def, bindings = BuildTableDef(o.Table, batch, o.SampleSize, o.PrimaryKeyField)
		if o.PrimaryKeyField != "" {
			if _, ok := def.PrimaryKey(); !ok {
				log.Warn("sink: primary key field not found, table has no primary key", "field", o.PrimaryKeyField)
			}
		}
	} else {
		info, derr := repo.Describe(ctx, o.Table)
		if derr != nil {
			return nil, fmt.Errorf("sink: existing table: %w", derr)
		}
		def, bindings, rep.Dropped = tableFromInfo(info, records.Columns(batch))
		if len(rep.Dropped) > 0 {
			log.Warn("sink: source columns not in table", "table", o.Table, "columns", rep.Dropped)
		}
	}
	rep.Table, rep.Bindings = def, bindings

	w, err := NewWriter(repo, def, bindings, log)
	if err != nil {
		return nil, err
	}
	if o.AutoCreateSchema {
		if err = w.Create(ctx, o.Overwrite); err != nil {
			return nil, err
		}
		rep.Created = true
	}

	st, err := w.Insert(ctx, batch, o.BatchSize)
	rep.Rows, rep.Batches = st.Rows, st.Batches
	rep.Duration = time.Since(start)
	if err != nil {
		return nil, err
	}

	log.Info("sink: load complete",
		"backend", o.Kind, "table", o.Table, "rows", rep.Rows, "batches", rep.Batches,
		"dur_ms", rep.Duration.Milliseconds())
	return rep, nil
}

func (s *Sink) open(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if s.Open != nil {
		return s.Open(ctx, cfg)
	}
	return storage.New(ctx, cfg)
}

// TableInfo opens cfg, describes table and closes the connection.
func TableInfo(ctx context.Context, cfg storage.Config, table string) (info *storage.TableInfo, err error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, repo.Close()) }()
	return repo.Describe(ctx, table)
}

// Query opens cfg, runs a read query and closes the connection.
func Query(ctx context.Context, cfg storage.Config, query string, args ...any) (rows []records.Record, err error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, repo.Close()) }()
	return repo.Query(ctx, query, args...)
}

var keywordPassword = regexp.MustCompile(`(?i)\b(password|pwd)=([^;\s]*)`)

// RedactDSN hides the password of a DSN for logs and reports. URL DSNs,
// "user:pass@" prefixes and password=/pwd= keywords are recognised.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.User != nil {
		return u.Redacted()
	}
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		if colon := strings.Index(dsn[:at], ":"); colon >= 0 && !strings.Contains(dsn[:at], "/") {
			return dsn[:colon+1] + "xxxxx" + dsn[at:]
		}
	}
	return keywordPassword.ReplaceAllString(dsn, "${1}=xxxxx")
}
