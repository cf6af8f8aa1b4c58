package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// walk decodes the stream in dec and calls emit once per record object.
//
// Shapes:
//   - root array: each object element is a record; null elements are skipped.
//   - root object holding an array of objects (envelope): that array's
//     elements are the records. With recordPath set only that key qualifies;
//     otherwise the first non-empty one wins and later fields are skipped.
//   - root object without such an array: the object itself is one record.
//   - JSON lines: any objects following the first value are records too.
func walk(ctx context.Context, dec *json.Decoder, recordPath string, emit func(map[string]any) error) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read first token: %w", err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("unsupported root token %T (want object or array)", tok)
	}
	switch d {
	case '[':
		if err := walkArray(ctx, dec, emit); err != nil {
			return err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return err
		}
	case '{':
		single, err := walkEnvelope(ctx, dec, recordPath, emit)
		if err != nil {
			return err
		}
		if err := expectDelim(dec, '}'); err != nil {
			return err
		}
		if single != nil {
			if err := emit(single); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported root delimiter %q", d)
	}
	return walkTrailing(ctx, dec, emit)
}

func walkTrailing(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode trailing object: %w", err)
		}
		if obj == nil {
			continue
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
}

// walkArray emits the elements of the current array ('[' already consumed).
func walkArray(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) error {
	for n := 0; dec.More(); n++ {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode array element %d: %w", n, err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("array element %d is not an object (got %T)", n, raw)
		}
		if err := emit(obj); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// walkEnvelope walks a root object ('{' already consumed). It returns the
// object itself when no record array was found, nil otherwise.
func walkEnvelope(ctx context.Context, dec *json.Decoder, recordPath string, emit func(map[string]any) error) (map[string]any, error) {
	single := make(map[string]any)
	streamed := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read object key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key not a string (got %T)", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read value of %q: %w", key, err)
		}

		candidate := isArray(valTok) && (recordPath == "" || key == recordPath)
		if streamed || (recordPath != "" && !candidate) {
			if err := skipValue(dec, valTok); err != nil {
				return nil, err
			}
			continue
		}

		v, err := materialize(dec, valTok)
		if err != nil {
			return nil, err
		}
		if objs, ok := objectArray(v); candidate && ok && (len(objs) > 0 || recordPath != "") {
			for _, obj := range objs {
				if err := emit(obj); err != nil {
					return nil, err
				}
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			streamed = true
			continue
		}
		single[key] = v
	}

	if streamed {
		return nil, nil
	}
	if recordPath != "" {
		return nil, fmt.Errorf("record_path %q: no array of objects found", recordPath)
	}
	return single, nil
}

// objectArray reports whether v is an array whose non-null elements are all
// objects, and returns those objects.
func objectArray(v any) ([]map[string]any, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if el == nil {
			continue
		}
		obj, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		out = append(out, obj)
	}
	return out, true
}

func isArray(tok json.Token) bool {
	d, ok := tok.(json.Delim)
	return ok && d == '['
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %q: %w", want, err)
	}
	if tok != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// skipValue consumes the rest of a value whose first token is tok.
func skipValue(dec *json.Decoder, tok json.Token) error {
	d, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	switch d {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("skip object key: %w", err)
			}
			next, err := dec.Token()
			if err != nil {
				return fmt.Errorf("skip object value: %w", err)
			}
			if err := skipValue(dec, next); err != nil {
				return err
			}
		}
		return expectDelim(dec, '}')
	case '[':
		for dec.More() {
			next, err := dec.Token()
			if err != nil {
				return fmt.Errorf("skip array value: %w", err)
			}
			if err := skipValue(dec, next); err != nil {
				return err
			}
		}
		return expectDelim(dec, ']')
	default:
		return fmt.Errorf("unexpected delimiter %q", d)
	}
}

// materialize builds the Go value whose first token is tok.
func materialize(dec *json.Decoder, tok json.Token) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read nested key: %w", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("nested key not a string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read nested value: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, expectDelim(dec, '}')
	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read nested element: %w", err)
			}
			v, err := materialize(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, expectDelim(dec, ']')
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", d)
	}
}
