package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"dataload/pkg/records"
)

// RowGroup is a set of rows that share one column list.
type RowGroup struct {
	Columns []string
	Rows    [][]any
}

// GroupByAutoKey splits rows for insertion into a table with an
// auto-increment primary key. Rows whose key value is nil are grouped without
// the key column so the database generates it; rows with an explicit key
// keep it. Without an auto-increment key (or when columns does not contain
// it) a single group is returned. Empty groups are omitted.
func GroupByAutoKey(def TableDef, columns []string, rows [][]any) []RowGroup {
	pk, ok := def.PrimaryKey()
	keyIdx := -1
	if ok && pk.AutoIncrement {
		for i, c := range columns {
			if c == pk.Name {
				keyIdx = i
				break
			}
		}
	}
	if keyIdx < 0 {
		if len(rows) == 0 {
			return nil
		}
		return []RowGroup{{Columns: columns, Rows: rows}}
	}

	withoutCols := make([]string, 0, len(columns)-1)
	withoutCols = append(withoutCols, columns[:keyIdx]...)
	withoutCols = append(withoutCols, columns[keyIdx+1:]...)

	var with, without [][]any
	for _, r := range rows {
		if r[keyIdx] != nil {
			with = append(with, r)
			continue
		}
		nr := make([]any, 0, len(r)-1)
		nr = append(nr, r[:keyIdx]...)
		nr = append(nr, r[keyIdx+1:]...)
		without = append(without, nr)
	}

	var out []RowGroup
	if len(with) > 0 {
		out = append(out, RowGroup{Columns: columns, Rows: with})
	}
	if len(without) > 0 {
		out = append(out, RowGroup{Columns: withoutCols, Rows: without})
	}
	return out
}

// Chunk splits n rows of width cols into [lo,hi) ranges that respect a
// per-statement parameter limit and row limit (<= 0 means no limit).
func Chunk(n, cols, maxParams, maxRows int) [][2]int {
	per := n
	if maxParams > 0 && cols > 0 {
		if p := maxParams / cols; p < per {
			per = p
		}
	}
	if maxRows > 0 && maxRows < per {
		per = maxRows
	}
	if per < 1 {
		per = 1
	}
	var out [][2]int
	for lo := 0; lo < n; lo += per {
		hi := lo + per
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// BuildInsert builds a multi-row INSERT for nrows rows. ident quotes a column
// name and placeholder renders the i-th (1-based) bind parameter.
//
// The statement is pure and deterministic, which keeps placeholder numbering
// testable without a database.
func BuildInsert(table string, columns []string, nrows int, ident func(string) string, placeholder func(int) string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	p := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(placeholder(p))
			p++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// Flatten returns rows as one argument slice in row-major order.
func Flatten(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	out := make([]any, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// ScanRecords reads every row of rs into records. Text columns reported as
// []byte by the driver become strings; binary columns stay []byte.
func ScanRecords(rs *sql.Rows) ([]records.Record, error) {
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []records.Record
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		rec := make(records.Record, len(cols))
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok && !isBinaryType(types[i].DatabaseTypeName()) {
				v = string(b)
			}
			rec[c] = v
		}
		out = append(out, rec)
	}
	return out, rs.Err()
}

func isBinaryType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") || t == "BYTEA" || t == "IMAGE"
}

// SplitQualified splits "schema.table" into its parts. Anything other than a
// single dot is treated as an unqualified name.
func SplitQualified(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}
