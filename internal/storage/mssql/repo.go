// Package mssql is the Microsoft SQL Server storage backend.
//
// It registers the "sqlserver" database/sql driver through a blank import of
// github.com/microsoft/go-mssqldb, so linking this package is enough.
package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"dataload/internal/storage"
	"dataload/internal/storage/sqldb"
)

// Kind is the storage kind this backend registers.
const Kind = "mssql"

// SQL Server caps a statement at 2100 parameters and a VALUES list at 1000
// rows. A small margin is kept below the parameter cap.
const (
	maxParams = 2000
	maxRows   = 1000
)

func init() {
	storage.Register(Kind, New)
}

// New connects with a sqlserver:// DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mssql: dsn is required")
	}
	return sqldb.Open(ctx, "sqlserver", cfg.DSN, dialect{})
}

type dialect struct{}

func (dialect) Kind() string { return Kind }

func (dialect) Table(name string) string { return mssqlTableIdent(name) }

func (dialect) Ident(name string) string { return mssqlIdent(name) }

func (dialect) Placeholder(i int) string { return fmt.Sprintf("@p%d", i) }

func (dialect) Limits() (int, int) { return maxParams, maxRows }

// mssqlIdent returns a bracket-quoted identifier with ] escaped.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a possibly schema-qualified name.
//
// Example:
//
//	"dbo.imports" -> [dbo].[imports]
func mssqlTableIdent(name string) string {
	schema, table := storage.SplitQualified(name)
	if schema == "" {
		return mssqlIdent(table)
	}
	return mssqlIdent(schema) + "." + mssqlIdent(table)
}

// columnType maps a storage class to SQL Server. Text keys need a bounded
// length to be indexable.
func columnType(c storage.ColumnDef) string {
	switch c.Type {
	case storage.Integer:
		return "BIGINT"
	case storage.Real:
		return "FLOAT"
	case storage.Blob:
		return "VARBINARY(MAX)"
	default:
		if c.PrimaryKey {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// CreateSQL wraps CREATE TABLE in an OBJECT_ID guard; SQL Server has no
// CREATE TABLE IF NOT EXISTS.
func (dialect) CreateSQL(def storage.TableDef) string {
	parts := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		col := mssqlIdent(c.Name) + " " + columnType(c)
		switch {
		case c.PrimaryKey && c.AutoIncrement:
			col += " IDENTITY(1,1) PRIMARY KEY"
		case c.PrimaryKey:
			col += " PRIMARY KEY"
		case c.Nullable:
			col += " NULL"
		default:
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(def.Name, "'", "''"),
		mssqlTableIdent(def.Name),
		strings.Join(parts, ", "),
	)
}

func (dialect) DropSQL(table string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;",
		strings.ReplaceAll(table, "'", "''"), mssqlTableIdent(table))
}

// IdentityInsert toggles explicit inserts into an IDENTITY column.
func (dialect) IdentityInsert(table string, on bool) string {
	state := "OFF"
	if on {
		state = "ON"
	}
	return fmt.Sprintf("SET IDENTITY_INSERT %s %s", mssqlTableIdent(table), state)
}

const describeSQL = `
SELECT c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE,
       CASE WHEN k.COLUMN_NAME IS NULL THEN 0 ELSE 1 END
FROM INFORMATION_SCHEMA.COLUMNS c
LEFT JOIN (
    SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
    FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
    JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
      ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = ku.TABLE_SCHEMA
    WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
) k ON k.TABLE_SCHEMA = c.TABLE_SCHEMA AND k.TABLE_NAME = c.TABLE_NAME AND k.COLUMN_NAME = c.COLUMN_NAME
WHERE c.TABLE_NAME = @p1 AND (@p2 = '' OR c.TABLE_SCHEMA = @p2)
ORDER BY c.ORDINAL_POSITION`

func (dialect) Describe(ctx context.Context, q sqldb.Querier, table string) ([]storage.ColumnInfo, error) {
	schema, name := storage.SplitQualified(table)
	rows, err := q.QueryContext(ctx, describeSQL, name, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var (
			ci       storage.ColumnInfo
			nullable string
			pk       int
		)
		if err := rows.Scan(&ci.Name, &ci.Type, &nullable, &pk); err != nil {
			return nil, err
		}
		ci.Nullable = strings.EqualFold(nullable, "YES")
		ci.PrimaryKey = pk == 1
		out = append(out, ci)
	}
	return out, rows.Err()
}

// Size sums the allocation units of the table's partitions.
func (dialect) Size(ctx context.Context, q sqldb.Querier, table string) (int64, error) {
	var pages int64
	err := q.QueryRowContext(ctx, `
SELECT COALESCE(SUM(a.total_pages), 0)
FROM sys.partitions p
JOIN sys.allocation_units a ON a.container_id = p.partition_id
WHERE p.object_id = OBJECT_ID(@p1)`, table).Scan(&pages)
	if err != nil {
		return 0, err
	}
	return pages * 8192, nil
}
