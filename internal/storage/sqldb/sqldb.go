// Package sqldb implements storage.Repository on top of database/sql for
// backends that differ only in dialect (sqlite, mssql, mysql).
//
// A Repo pins one *sql.Conn for its whole lifetime so every statement of a
// conversion (DDL, inserts, describe) runs on the same session.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dataload/internal/storage"
	"dataload/pkg/records"

	"go.uber.org/multierr"
)

// Dialect captures everything backend-specific.
type Dialect interface {
	// Kind is the storage kind, e.g. "sqlite".
	Kind() string
	// Table quotes a possibly schema-qualified table name.
	Table(name string) string
	// Ident quotes a column name.
	Ident(name string) string
	// Placeholder renders the i-th (1-based) bind parameter.
	Placeholder(i int) string
	// Limits returns the max bind parameters and rows per INSERT (<= 0: none).
	Limits() (maxParams, maxRows int)
	// CreateSQL returns the create-if-absent DDL for def.
	CreateSQL(def storage.TableDef) string
	// DropSQL returns drop-if-exists DDL for table.
	DropSQL(table string) string
	// Describe reads column metadata. A missing table yields no columns.
	Describe(ctx context.Context, q Querier, table string) ([]storage.ColumnInfo, error)
	// Size returns the storage footprint of table, 0 if unknown.
	Size(ctx context.Context, q Querier, table string) (int64, error)
}

// IdentityInserter is implemented by dialects that need a session toggle to
// insert explicit values into an auto-increment column (SQL Server).
type IdentityInserter interface {
	IdentityInsert(table string, on bool) string
}

// Querier is the subset of *sql.Conn and *sql.Tx used by dialects.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo is a storage.Repository over one pinned connection.
type Repo struct {
	db   *sql.DB
	conn *sql.Conn
	d    Dialect
}

// Open opens driverName/dsn, verifies connectivity and pins a connection.
//
// Errors:
//   - driver open/ping failures
//   - failure to acquire the connection
func Open(ctx context.Context, driverName, dsn string, d Dialect) (*Repo, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Kind(), err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("%s: connect: %w", d.Kind(), err), db.Close())
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, multierr.Combine(fmt.Errorf("%s: ping: %w", d.Kind(), err), conn.Close(), db.Close())
	}
	return &Repo{db: db, conn: conn, d: d}, nil
}

// Kind implements storage.Repository.
func (r *Repo) Kind() string { return r.d.Kind() }

// Close releases the pinned connection and the pool.
func (r *Repo) Close() error {
	return multierr.Combine(r.conn.Close(), r.db.Close())
}

// CreateTable implements storage.Repository.
func (r *Repo) CreateTable(ctx context.Context, def storage.TableDef, overwrite bool) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if overwrite {
		if _, err := r.conn.ExecContext(ctx, r.d.DropSQL(def.Name)); err != nil {
			return fmt.Errorf("%s: drop table %s: %w", r.d.Kind(), def.Name, err)
		}
	}
	if _, err := r.conn.ExecContext(ctx, r.d.CreateSQL(def)); err != nil {
		return fmt.Errorf("%s: create table %s: %w", r.d.Kind(), def.Name, err)
	}
	return nil
}

// InsertBatch implements storage.Repository. All rows go in one transaction;
// any failure rolls the whole batch back.
func (r *Repo) InsertBatch(ctx context.Context, def storage.TableDef, columns []string, rows [][]any) (n int64, err error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin: %w", r.d.Kind(), err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreDone(tx.Rollback()))
			n = 0
		}
	}()

	maxParams, maxRows := r.d.Limits()
	table := r.d.Table(def.Name)
	for _, g := range storage.GroupByAutoKey(def, columns, rows) {
		toggle := r.identityToggle(def, g.Columns)
		if toggle != nil {
			if _, err = tx.ExecContext(ctx, toggle(true)); err != nil {
				return 0, fmt.Errorf("%s: identity insert on: %w", r.d.Kind(), err)
			}
		}
		for _, span := range storage.Chunk(len(g.Rows), len(g.Columns), maxParams, maxRows) {
			chunk := g.Rows[span[0]:span[1]]
			q := storage.BuildInsert(table, g.Columns, len(chunk), r.d.Ident, r.d.Placeholder)
			res, execErr := tx.ExecContext(ctx, q, storage.Flatten(chunk)...)
			if execErr != nil {
				err = fmt.Errorf("%s: insert into %s: %w", r.d.Kind(), def.Name, execErr)
				return 0, err
			}
			if affected, aerr := res.RowsAffected(); aerr == nil {
				n += affected
			} else {
				n += int64(len(chunk))
			}
		}
		if toggle != nil {
			if _, err = tx.ExecContext(ctx, toggle(false)); err != nil {
				return 0, fmt.Errorf("%s: identity insert off: %w", r.d.Kind(), err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", r.d.Kind(), err)
	}
	return n, nil
}

// identityToggle returns the IDENTITY_INSERT switch when the dialect needs one
// and the group carries explicit values for the auto-increment key.
func (r *Repo) identityToggle(def storage.TableDef, columns []string) func(bool) string {
	ii, ok := r.d.(IdentityInserter)
	if !ok {
		return nil
	}
	pk, ok := def.PrimaryKey()
	if !ok || !pk.AutoIncrement {
		return nil
	}
	for _, c := range columns {
		if c == pk.Name {
			return func(on bool) string { return ii.IdentityInsert(def.Name, on) }
		}
	}
	return nil
}

// Describe implements storage.Repository.
func (r *Repo) Describe(ctx context.Context, table string) (*storage.TableInfo, error) {
	cols, err := r.d.Describe(ctx, r.conn, table)
	if err != nil {
		return nil, fmt.Errorf("%s: describe %s: %w", r.d.Kind(), table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w: %s", r.d.Kind(), storage.ErrTableNotFound, table)
	}

	info := &storage.TableInfo{Name: table, Columns: cols}
	if err := r.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+r.d.Table(table)).Scan(&info.RowCount); err != nil {
		return nil, fmt.Errorf("%s: count %s: %w", r.d.Kind(), table, err)
	}
	if info.SizeBytes, err = r.d.Size(ctx, r.conn, table); err != nil {
		return nil, fmt.Errorf("%s: size of %s: %w", r.d.Kind(), table, err)
	}
	return info, nil
}

// Query implements storage.Repository.
func (r *Repo) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	rs, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", r.d.Kind(), err)
	}
	return storage.ScanRecords(rs)
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

var _ storage.Repository = (*Repo)(nil)
