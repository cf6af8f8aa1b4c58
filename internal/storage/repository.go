// Package storage defines the backend-neutral relational repository used by
// the relational sink, plus the registry that maps a backend kind ("sqlite",
// "postgres", "mssql", "mysql") to its factory.
//
// Backends live in sub-packages and register themselves from init(); link
// them all with a blank import of dataload/internal/storage/all.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"dataload/pkg/records"
)

// ErrTableNotFound is returned by Describe for a table that does not exist.
var ErrTableNotFound = errors.New("table not found")

// Config is the minimal configuration needed to open a repository.
//
// Edge cases:
//   - Kind must match a registered backend.
//   - DSN is passed through to the backend; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// SQLType is a portable storage class. Each backend maps it to its dialect.
type SQLType string

const (
	Integer SQLType = "INTEGER"
	Real    SQLType = "REAL"
	Text    SQLType = "TEXT"
	Blob    SQLType = "BLOB"
)

// ColumnDef is one column of a TableDef.
type ColumnDef struct {
	Name          string  `json:"name"`
	Type          SQLType `json:"type"`
	Nullable      bool    `json:"nullable"`
	PrimaryKey    bool    `json:"primary_key,omitempty"`
	AutoIncrement bool    `json:"auto_increment,omitempty"`
}

// TableDef is a table name plus ordered column definitions.
type TableDef struct {
	Name    string      `json:"name"`
	Columns []ColumnDef `json:"columns"`
}

// PrimaryKey returns the primary key column, if any.
func (t TableDef) PrimaryKey() (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the column names in order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks that the definition can be turned into DDL.
func (t TableDef) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	pks := 0
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("storage: table %s has a column without a name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("storage: table %s has duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if c.PrimaryKey {
			pks++
		}
		if c.AutoIncrement && (!c.PrimaryKey || c.Type != Integer) {
			return fmt.Errorf("storage: column %s.%s: auto increment needs an INTEGER primary key", t.Name, c.Name)
		}
	}
	if pks > 1 {
		return fmt.Errorf("storage: table %s declares %d primary keys", t.Name, pks)
	}
	return nil
}

// ColumnInfo describes a column as reported by the database.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableInfo is what Describe reports about an existing table.
type TableInfo struct {
	Name     string       `json:"name"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int64        `json:"row_count"`
	// SizeBytes is the storage footprint where the backend can report one
	// (database file for sqlite, relation size elsewhere); 0 if unknown.
	SizeBytes int64 `json:"size_bytes"`
}

// Repository is a single-connection handle to one relational backend.
//
// A Repository is owned by one conversion at a time; it is not safe for
// concurrent use.
type Repository interface {
	// Kind returns the backend kind the repository was registered under.
	Kind() string

	// CreateTable creates def. With overwrite an existing table of the same
	// name is dropped first; otherwise creation is create-if-absent.
	CreateTable(ctx context.Context, def TableDef, overwrite bool) error

	// InsertBatch inserts rows (values ordered like columns) in one
	// transaction: either every row commits or none does. Returns the number
	// of rows inserted.
	InsertBatch(ctx context.Context, def TableDef, columns []string, rows [][]any) (int64, error)

	// Describe returns the columns, row count and size of table, or an error
	// wrapping ErrTableNotFound.
	Describe(ctx context.Context, table string) (*TableInfo, error)

	// Query runs a statement that returns rows. It is meant for reads.
	Query(ctx context.Context, query string, args ...any) ([]records.Record, error)

	// Close releases the connection. Call once.
	Close() error
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind.
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered. Ambiguous
//     backend selection is a programming error.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or not registered
//   - whatever the backend factory returns (bad DSN, unreachable server)
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
