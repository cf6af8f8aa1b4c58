// Package mysql is the MySQL / MariaDB storage backend built on
// github.com/go-sql-driver/mysql. DSNs use the driver's format, e.g.
// "user:pass@tcp(localhost:3306)/db".
package mysql

import (
	"context"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"

	"dataload/internal/storage"
	"dataload/internal/storage/sqldb"
)

// Kind is the storage kind this backend registers.
const Kind = "mysql"

// The protocol caps prepared statements at 65535 placeholders.
const maxParams = 65535

func init() {
	storage.Register(Kind, New)
}

// New parses cfg.DSN with the driver's parser (so malformed DSNs fail before
// dialing) and connects.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dc, err := driver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: dsn: %w", err)
	}
	// Timestamps come back as time.Time rather than []byte.
	dc.ParseTime = true
	return sqldb.Open(ctx, "mysql", dc.FormatDSN(), dialect{})
}

type dialect struct{}

func (dialect) Kind() string { return Kind }

func (dialect) Table(name string) string {
	schema, table := storage.SplitQualified(name)
	if schema == "" {
		return mysqlIdent(table)
	}
	return mysqlIdent(schema) + "." + mysqlIdent(table)
}

func (dialect) Ident(name string) string { return mysqlIdent(name) }

func (dialect) Placeholder(int) string { return "?" }

func (dialect) Limits() (int, int) { return maxParams, 0 }

func mysqlIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func columnType(c storage.ColumnDef) string {
	switch c.Type {
	case storage.Integer:
		return "BIGINT"
	case storage.Real:
		return "DOUBLE"
	case storage.Blob:
		return "LONGBLOB"
	default:
		if c.PrimaryKey {
			return "VARCHAR(255)"
		}
		return "LONGTEXT"
	}
}

func (d dialect) CreateSQL(def storage.TableDef) string {
	parts := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		col := mysqlIdent(c.Name) + " " + columnType(c)
		switch {
		case c.PrimaryKey && c.AutoIncrement:
			col += " NOT NULL AUTO_INCREMENT PRIMARY KEY"
		case c.PrimaryKey:
			col += " NOT NULL PRIMARY KEY"
		case c.Nullable:
			col += " NULL"
		default:
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) CHARACTER SET utf8mb4",
		d.Table(def.Name), strings.Join(parts, ", "))
}

func (d dialect) DropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.Table(table)
}

func (dialect) Describe(ctx context.Context, q sqldb.Querier, table string) ([]storage.ColumnInfo, error) {
	schema, name := storage.SplitQualified(table)
	rows, err := q.QueryContext(ctx, `
SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
FROM information_schema.COLUMNS
WHERE TABLE_NAME = ? AND TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
ORDER BY ORDINAL_POSITION`, name, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.ColumnInfo
	for rows.Next() {
		var ci storage.ColumnInfo
		var nullable, key string
		if err := rows.Scan(&ci.Name, &ci.Type, &nullable, &key); err != nil {
			return nil, err
		}
		ci.Nullable = nullable == "YES"
		ci.PrimaryKey = key == "PRI"
		out = append(out, ci)
	}
	return out, rows.Err()
}

// Size reports data plus index length from information_schema (an estimate
// for InnoDB).
func (dialect) Size(ctx context.Context, q sqldb.Querier, table string) (int64, error) {
	schema, name := storage.SplitQualified(table)
	var size int64
	err := q.QueryRowContext(ctx, `
SELECT COALESCE(DATA_LENGTH + INDEX_LENGTH, 0)
FROM information_schema.TABLES
WHERE TABLE_NAME = ? AND TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())`, name, schema).Scan(&size)
	if err != nil {
		return 0, err
	}
	return size, nil
}
