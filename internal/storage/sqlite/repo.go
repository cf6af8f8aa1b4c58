// Package sqlite is the embedded (default) storage backend, built on the
// pure-Go modernc.org/sqlite driver. The DSN is a database file path, or
// ":memory:".
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"dataload/internal/storage"
	"dataload/internal/storage/sqldb"
)

// Kind is the storage kind this backend registers.
const Kind = "sqlite"

// maxParams matches SQLITE_MAX_VARIABLE_NUMBER of the bundled library.
const maxParams = 32766

func init() {
	storage.Register(Kind, New)
}

// New opens the database file named by cfg.DSN, creating it if missing.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: dsn (database path) is required")
	}
	return sqldb.Open(ctx, "sqlite", cfg.DSN, dialect{})
}

type dialect struct{}

func (dialect) Kind() string { return Kind }

func (dialect) Table(name string) string { return sqlIdent(name) }

func (dialect) Ident(name string) string { return sqlIdent(name) }

func (dialect) Placeholder(int) string { return "?" }

func (dialect) Limits() (int, int) { return maxParams, 0 }

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// CreateSQL renders create-if-absent DDL. SQLite's storage classes are the
// portable types themselves; an INTEGER auto-increment key becomes the rowid
// alias "INTEGER PRIMARY KEY AUTOINCREMENT".
func (dialect) CreateSQL(def storage.TableDef) string {
	parts := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		col := sqlIdent(c.Name) + " " + string(c.Type)
		switch {
		case c.PrimaryKey && c.AutoIncrement:
			col += " PRIMARY KEY AUTOINCREMENT"
		case c.PrimaryKey:
			col += " PRIMARY KEY"
		case !c.Nullable:
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", sqlIdent(def.Name), strings.Join(parts, ",\n  "))
}

func (dialect) DropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlIdent(table)
}

// Describe reads PRAGMA table_info. A missing table returns no rows.
func (dialect) Describe(ctx context.Context, q sqldb.Querier, table string) ([]storage.ColumnInfo, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+sqlIdent(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue any
			pk       int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pk); err != nil {
			return nil, err
		}
		out = append(out, storage.ColumnInfo{Name: name, Type: typ, Nullable: notNull == 0 && pk == 0, PrimaryKey: pk > 0})
	}
	return out, rows.Err()
}

// Size reports the database file size (page_count * page_size); SQLite does
// not track per-table sizes without the dbstat extension.
func (dialect) Size(ctx context.Context, q sqldb.Querier, _ string) (int64, error) {
	var pages, pageSize int64
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, err
	}
	if err := q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pages * pageSize, nil
}
