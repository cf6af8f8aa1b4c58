package materialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"dataload/internal/etlerr"
)

// Instance is one record of a Shape. Values are already coerced.
type Instance struct {
	shape  *Shape
	values []any
}

// Shape returns the instance's shape.
func (in *Instance) Shape() *Shape { return in.shape }

// Get returns the value of field name.
func (in *Instance) Get(name string) (any, bool) {
	i, ok := in.shape.index[name]
	if !ok {
		return nil, false
	}
	return in.values[i], true
}

// Map returns the instance as a plain map. The map is a fresh copy; list and
// map values are shared.
func (in *Instance) Map() map[string]any {
	out := make(map[string]any, len(in.values))
	for i, f := range in.shape.fields {
		out[f.Name] = in.values[i]
	}
	return out
}

// MarshalJSON encodes the instance as an object with fields in shape order.
func (in *Instance) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range in.shape.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(in.values[i])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode copies field values into the struct pointed to by dst. Struct
// fields are matched by the same naming rules as ShapeOf; struct fields
// without a counterpart are left untouched and nil values leave the
// destination at its zero value.
func (in *Instance) Decode(dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: decode target must be a non-nil struct pointer, got %T", etlerr.ErrInvalidComponent, dst)
	}
	sv := rv.Elem()
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, skip := structFieldName(sf)
		if skip {
			continue
		}
		v, ok := in.Get(name)
		if !ok || v == nil {
			continue
		}
		if err := assign(sv.Field(i), v); err != nil {
			return fmt.Errorf("decode %s.%s: %w", st.Name(), sf.Name, err)
		}
	}
	return nil
}

func assign(dst reflect.Value, v any) error {
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	src := reflect.ValueOf(v)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case isNumeric(src.Kind()) && isNumeric(dst.Kind()):
		dst.Set(src.Convert(dst.Type()))
	case src.Kind() == dst.Kind() && src.Type().ConvertibleTo(dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %v", v, dst.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Into decodes every instance into a new T.
func Into[T any](in []*Instance) ([]T, error) {
	out := make([]T, len(in))
	for i, inst := range in {
		if err := inst.Decode(&out[i]); err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
	}
	return out, nil
}
