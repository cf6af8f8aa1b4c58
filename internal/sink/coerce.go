package sink

import (
	"dataload/internal/inference"
	"dataload/internal/materialize"
	"dataload/internal/storage"
	"dataload/pkg/records"
)

// CoerceValue converts v for a column of storage class t. Empty values become
// NULL. A value that does not fit the column is stored as its plain string
// form rather than failing the row.
func CoerceValue(v any, t storage.SQLType) any {
	if records.IsEmpty(v) {
		return nil
	}
	switch t {
	case storage.Integer:
		if n, err := materialize.Coerce(v, inference.Integer); err == nil {
			return n
		}
	case storage.Real:
		if f, err := materialize.Coerce(v, inference.Float); err == nil {
			return f
		}
	case storage.Blob:
		if b, ok := v.([]byte); ok {
			return b
		}
		return []byte(materialize.Stringify(v))
	}
	return materialize.Stringify(v)
}
