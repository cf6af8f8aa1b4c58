package sink

import (
	"strings"

	"dataload/internal/storage"
	"dataload/pkg/records"
)

// DefaultSampleSize is how many leading records are sampled per column.
const DefaultSampleSize = 100

// Binding ties a table column to the source column its values come from.
type Binding struct {
	Source string `json:"source"`
	Column string `json:"column"`
}

// BuildTableDef derives a table definition from the leading sampleSize
// records of batch. Columns appear in first-discovery order; every non-key
// column is nullable since rows past the sample may lack values. An INTEGER
// primary key is auto-increment.
//
// pkField names the primary key explicitly (source or cleaned name); when
// empty a conventional identifier column is used if present.
func BuildTableDef(table string, batch []records.Record, sampleSize int, pkField string) (storage.TableDef, []Binding) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	sample := records.Sample(batch, sampleSize)
	sources := records.Columns(sample)
	names := cleanColumns(sources)
	pk := DetectPrimaryKey(sources, pkField)

	def := storage.TableDef{Name: table, Columns: make([]storage.ColumnDef, len(sources))}
	bindings := make([]Binding, len(sources))
	for i, src := range sources {
		values := make([]any, 0, len(sample))
		for _, r := range sample {
			values = append(values, r[src])
		}
		col := storage.ColumnDef{Name: names[i], Type: InferColumnType(values), Nullable: true}
		if i == pk {
			col.PrimaryKey = true
			col.Nullable = false
			col.AutoIncrement = col.Type == storage.Integer
		}
		def.Columns[i] = col
		bindings[i] = Binding{Source: src, Column: names[i]}
	}
	return def, bindings
}

// tableFromInfo rebuilds a definition for an existing table and binds the
// source columns whose cleaned name matches a table column. Source columns
// without a match are returned in dropped.
func tableFromInfo(info *storage.TableInfo, sources []string) (def storage.TableDef, bindings []Binding, dropped []string) {
	def.Name = info.Name
	byName := make(map[string]string, len(info.Columns))
	for _, c := range info.Columns {
		typ := affinity(c.Type)
		def.Columns = append(def.Columns, storage.ColumnDef{
			Name:          c.Name,
			Type:          typ,
			Nullable:      c.Nullable,
			PrimaryKey:    c.PrimaryKey,
			AutoIncrement: c.PrimaryKey && typ == storage.Integer,
		})
		byName[strings.ToLower(c.Name)] = c.Name
	}

	used := make(map[string]bool)
	for _, src := range sources {
		col, ok := byName[strings.ToLower(CleanColumnName(src))]
		if !ok || used[col] {
			dropped = append(dropped, src)
			continue
		}
		used[col] = true
		bindings = append(bindings, Binding{Source: src, Column: col})
	}
	return def, bindings, dropped
}

// affinity maps a database-reported column type back to a storage class,
// following SQLite's type affinity rules.
func affinity(dbType string) storage.SQLType {
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "INT"):
		return storage.Integer
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return storage.Text
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"), t == "BYTEA", t == "IMAGE":
		return storage.Blob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return storage.Real
	default:
		return storage.Text
	}
}
