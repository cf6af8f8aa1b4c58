// Package postgres is the PostgreSQL storage backend. It talks to the server
// through a single pgx connection and loads batches with the COPY protocol.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/multierr"

	"dataload/internal/storage"
	"dataload/pkg/records"
)

// Kind is the storage kind this backend registers.
const Kind = "postgres"

func init() {
	storage.Register(Kind, New)
}

// Repo implements storage.Repository for Postgres.
//
// A Repo holds exactly one *pgx.Conn (not a pool): the relational sink owns
// one connection for the duration of a conversion.
type Repo struct {
	conn *pgx.Conn
}

// New connects using a postgres:// URL or keyword/value DSN.
//
// Errors:
//   - malformed DSN
//   - connection or authentication failure
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: dsn: %w", err)
	}
	conn, err := pgx.ConnectConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Repo{conn: conn}, nil
}

func (r *Repo) Kind() string { return Kind }

// Close closes the connection. It uses a fresh context so a cancelled run
// still terminates the session cleanly.
func (r *Repo) Close() error {
	return r.conn.Close(context.Background())
}

// CreateTable implements storage.Repository. A schema-qualified name also
// creates the schema if needed.
func (r *Repo) CreateTable(ctx context.Context, def storage.TableDef, overwrite bool) error {
	if err := def.Validate(); err != nil {
		return err
	}
	stmts := make([]string, 0, 3)
	if schema, _ := storage.SplitQualified(def.Name); schema != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(schema))
	}
	if overwrite {
		stmts = append(stmts, buildDropSQL(def.Name))
	}
	stmts = append(stmts, buildCreateSQL(def))

	for _, s := range stmts {
		if _, err := r.conn.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", def.Name, err)
		}
	}
	return nil
}

// InsertBatch implements storage.Repository using COPY inside a transaction.
func (r *Repo) InsertBatch(ctx context.Context, def storage.TableDef, columns []string, rows [][]any) (n int64, err error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = multierr.Append(err, rbErr)
			}
			n = 0
		}
	}()

	ident := tableIdentifier(def.Name)
	for _, g := range storage.GroupByAutoKey(def, columns, rows) {
		copied, copyErr := tx.CopyFrom(ctx, ident, g.Columns, pgx.CopyFromRows(g.Rows))
		if copyErr != nil {
			err = fmt.Errorf("postgres: copy into %s: %w", def.Name, copyErr)
			return 0, err
		}
		n += copied
	}
	if err = syncIdentity(ctx, tx, def, columns); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", err)
	}
	return n, nil
}

// syncIdentity advances the identity sequence past explicitly supplied keys so
// later generated values do not collide.
func syncIdentity(ctx context.Context, tx pgx.Tx, def storage.TableDef, columns []string) error {
	pk, ok := def.PrimaryKey()
	if !ok || !pk.AutoIncrement {
		return nil
	}
	supplied := false
	for _, c := range columns {
		if c == pk.Name {
			supplied = true
			break
		}
	}
	if !supplied {
		return nil
	}
	q := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence($1, $2), GREATEST((SELECT COALESCE(MAX(%s), 0) FROM %s), 1))",
		pgIdent(pk.Name), pgTableIdent(def.Name))
	if _, err := tx.Exec(ctx, q, pgTableIdent(def.Name), pk.Name); err != nil {
		return fmt.Errorf("postgres: sync identity of %s: %w", def.Name, err)
	}
	return nil
}

const describeSQL = `
SELECT c.column_name, c.data_type, c.is_nullable = 'YES',
       EXISTS (
         SELECT 1
         FROM information_schema.table_constraints tc
         JOIN information_schema.key_column_usage ku
           ON tc.constraint_name = ku.constraint_name AND tc.table_schema = ku.table_schema
         WHERE tc.constraint_type = 'PRIMARY KEY'
           AND ku.table_schema = c.table_schema AND ku.table_name = c.table_name
           AND ku.column_name = c.column_name)
FROM information_schema.columns c
WHERE c.table_name = $1 AND c.table_schema = COALESCE(NULLIF($2, ''), current_schema())
ORDER BY c.ordinal_position`

// Describe implements storage.Repository.
func (r *Repo) Describe(ctx context.Context, table string) (*storage.TableInfo, error) {
	schema, name := storage.SplitQualified(table)
	rows, err := r.conn.Query(ctx, describeSQL, name, schema)
	if err != nil {
		return nil, fmt.Errorf("postgres: describe %s: %w", table, err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.ColumnInfo, error) {
		var ci storage.ColumnInfo
		err := row.Scan(&ci.Name, &ci.Type, &ci.Nullable, &ci.PrimaryKey)
		return ci, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: describe %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("postgres: %w: %s", storage.ErrTableNotFound, table)
	}

	info := &storage.TableInfo{Name: table, Columns: cols}
	if err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgTableIdent(table)).Scan(&info.RowCount); err != nil {
		return nil, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	if err := r.conn.QueryRow(ctx, "SELECT COALESCE(pg_total_relation_size(to_regclass($1)), 0)", pgTableIdent(table)).Scan(&info.SizeBytes); err != nil {
		return nil, fmt.Errorf("postgres: size of %s: %w", table, err)
	}
	return info, nil
}

// Query implements storage.Repository.
func (r *Repo) Query(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (records.Record, error) {
		return pgx.RowToMap(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return out, nil
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgTableIdent(name string) string {
	return tableIdentifier(name).Sanitize()
}

func tableIdentifier(name string) pgx.Identifier {
	schema, table := storage.SplitQualified(name)
	if schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{schema, table}
}

func columnType(t storage.SQLType) string {
	switch t {
	case storage.Integer:
		return "BIGINT"
	case storage.Real:
		return "DOUBLE PRECISION"
	case storage.Blob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// buildCreateSQL renders create-if-absent DDL.
//
// It is pure and deterministic, so the generated DDL is unit tested without a
// database.
func buildCreateSQL(def storage.TableDef) string {
	parts := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		col := pgIdent(c.Name) + " " + columnType(c.Type)
		switch {
		case c.PrimaryKey && c.AutoIncrement:
			col += " GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
		case c.PrimaryKey:
			col += " PRIMARY KEY"
		case !c.Nullable:
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pgTableIdent(def.Name), strings.Join(parts, ", "))
}

func buildDropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + pgTableIdent(table)
}

var _ storage.Repository = (*Repo)(nil)
