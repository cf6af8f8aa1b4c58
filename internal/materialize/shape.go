package materialize

import (
	"fmt"
	"reflect"
	"strings"

	"dataload/internal/etlerr"
	"dataload/internal/inference"
	"dataload/pkg/records"
)

// DefaultShapeName names generated shapes when the caller gives none.
const DefaultShapeName = "GeneratedDataModel"

// Field is one member of a Shape.
type Field struct {
	// Name is the identifier-safe field name.
	Name string `json:"name"`
	// Column is the source column the field was generated from. Empty for
	// declared shapes, whose columns are resolved per run.
	Column   string         `json:"original_column,omitempty"`
	Kind     inference.Kind `json:"kind"`
	Nullable bool           `json:"nullable"`
}

// Default is the value a missing or empty input gets: nil for nullable
// fields, the kind's zero value otherwise.
func (f Field) Default() any {
	if f.Nullable {
		return nil
	}
	return Zero(f.Kind)
}

// value resolves one raw input for the field.
func (f Field) value(raw any) (any, error) {
	if records.IsEmpty(raw) {
		return f.Default(), nil
	}
	v, err := Coerce(raw, f.Kind)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return v, nil
}

// Shape is a closed, fixed-field record descriptor built at run time.
// Instances are created with New.
type Shape struct {
	name   string
	fields []Field
	index  map[string]int
}

func newShape(name string, fields []Field) *Shape {
	if name == "" {
		name = DefaultShapeName
	}
	s := &Shape{name: name, fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.index[f.Name] = i
	}
	return s
}

// BuildShape generates a shape from schema. Field names are the cleaned
// column names; two columns that clean to the same name are told apart with
// _2, _3 suffixes in schema order.
func BuildShape(name string, schema inference.Schema) *Shape {
	cols := schema.Columns()
	names := uniqueNames(cols, CleanFieldName)
	fields := make([]Field, len(cols))
	for i, col := range cols {
		t, _ := schema.Lookup(col)
		fields[i] = Field{Name: names[i], Column: col, Kind: t.Kind, Nullable: t.Nullable}
	}
	return newShape(name, fields)
}

// DeclareShape builds a shape for caller-named target fields. Each field takes
// the inferred type of the column it is mapped to; unmapped fields are String.
func DeclareShape(name string, targets []string, schema inference.Schema, mapping map[string]string) *Shape {
	fields := make([]Field, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		f := Field{Name: target, Kind: inference.String}
		if col, ok := mapping[target]; ok {
			f.Column = col
			if t, ok := schema.Lookup(col); ok {
				f.Kind, f.Nullable = t.Kind, t.Nullable
			}
		}
		fields = append(fields, f)
	}
	return newShape(name, fields)
}

// ShapeOf derives a shape from a Go struct type (v may be a struct value, a
// pointer to one, or a reflect.Type).
//
// Field names come from the `dataload:"name"` tag, else the snake_case form
// of the Go field name. `dataload:"-"` and unexported fields are skipped.
// Supported field types: string, ints, floats, bool, []string, map[string]any,
// and pointers to the scalar types (which make the field nullable).
//
// Errors:
//   - v is not a struct
//   - a field has an unsupported type
func ShapeOf(v any) (*Shape, error) {
	t, ok := v.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(v)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: shape target must be a struct, got %v", etlerr.ErrInvalidComponent, t)
	}

	var fields []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, skip := structFieldName(sf)
		if skip {
			continue
		}
		kind, nullable, err := kindOf(sf.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", etlerr.ErrInvalidComponent, sf.Name, err)
		}
		fields = append(fields, Field{Name: name, Kind: kind, Nullable: nullable})
	}
	return newShape(t.Name(), fields), nil
}

func structFieldName(sf reflect.StructField) (name string, skip bool) {
	tag := sf.Tag.Get("dataload")
	if tag == "-" {
		return "", true
	}
	if tag = strings.TrimSpace(strings.Split(tag, ",")[0]); tag != "" {
		return tag, false
	}
	return snakeCase(sf.Name), false
}

func kindOf(t reflect.Type) (inference.Kind, bool, error) {
	nullable := false
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return inference.String, nullable, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return inference.Integer, nullable, nil
	case reflect.Float32, reflect.Float64:
		return inference.Float, nullable, nil
	case reflect.Bool:
		return inference.Boolean, nullable, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			return inference.StringList, nullable, nil
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return inference.Map, nullable, nil
		}
	}
	return 0, false, fmt.Errorf("unsupported type %v", t)
}

// Name returns the shape name.
func (s *Shape) Name() string { return s.name }

// Len returns the number of fields.
func (s *Shape) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in declaration order.
func (s *Shape) Fields() []Field { return append([]Field(nil), s.fields...) }

// Names returns the field names in declaration order.
func (s *Shape) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Field looks up a field by name.
func (s *Shape) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// ColumnMapping returns field name -> original column for generated fields.
func (s *Shape) ColumnMapping() map[string]string {
	out := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		if f.Column != "" {
			out[f.Name] = f.Column
		}
	}
	return out
}

// New constructs an instance from a field-name keyed map. Values are coerced
// to the field kinds; missing or empty values take the field default.
//
// Errors:
//   - a key that is not a field of the shape
//   - a non-empty value that cannot be coerced (wraps ErrCoerce)
func (s *Shape) New(values map[string]any) (*Instance, error) {
	for k := range values {
		if _, ok := s.index[k]; !ok {
			return nil, fmt.Errorf("%s has no field %q", s.name, k)
		}
	}
	vals := make([]any, len(s.fields))
	for i, f := range s.fields {
		v, err := f.value(values[f.Name])
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &Instance{shape: s, values: vals}, nil
}

// FieldInfo is one row of SchemaInfo.
type FieldInfo struct {
	Name           string `json:"name"`
	OriginalColumn string `json:"original_column,omitempty"`
	Type           string `json:"type"`
}

// SchemaInfo summarizes a shape for display.
type SchemaInfo struct {
	ClassName   string      `json:"class_name"`
	Fields      []FieldInfo `json:"fields"`
	TotalFields int         `json:"total_fields"`
}

// Info describes the shape.
func (s *Shape) Info() SchemaInfo {
	info := SchemaInfo{ClassName: s.name, TotalFields: len(s.fields), Fields: make([]FieldInfo, len(s.fields))}
	for i, f := range s.fields {
		info.Fields[i] = FieldInfo{
			Name:           f.Name,
			OriginalColumn: f.Column,
			Type:           inference.Type{Kind: f.Kind, Nullable: f.Nullable}.String(),
		}
	}
	return info
}

// SuggestMapping returns cleaned field name -> original column for columns,
// using the same naming and de-duplication as BuildShape.
func SuggestMapping(columns []string) map[string]string {
	names := uniqueNames(columns, CleanFieldName)
	out := make(map[string]string, len(columns))
	for i, col := range columns {
		out[names[i]] = col
	}
	return out
}
