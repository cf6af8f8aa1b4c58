package transformer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"dataload/internal/config"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/pkg/records"
)

func upper(_ int, rec records.Record) (records.Record, error) {
	s, ok := rec["name"].(string)
	if !ok {
		return nil, errors.New("name is not a string")
	}
	rec["name"] = strings.ToUpper(s)
	return rec, nil
}

func TestMap_DoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := []records.Record{{"name": "ada"}, nil, {"name": "bo"}}
	out, err := Map(context.Background(), "upper", in, nil, logging.Discard(), upper)
	if err != nil {
		t.Fatalf("Map err=%v", err)
	}
	want := []records.Record{{"name": "ADA"}, {"name": "BO"}}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Map=%v, want %v", out, want)
	}
	if in[0]["name"] != "ada" {
		t.Fatalf("input modified: %v", in[0])
	}
}

func TestMap_ErrorPolicy(t *testing.T) {
	t.Parallel()

	in := []records.Record{{"name": "ada"}, {"name": 7}, {"name": "cy"}}

	_, err := Map(context.Background(), "upper", in, nil, logging.Discard(), upper)
	if !errors.Is(err, etlerr.ErrTransform) || !strings.Contains(err.Error(), "row 1") {
		t.Fatalf("Map err=%v, want ErrTransform at row 1", err)
	}

	out, err := Map(context.Background(), "upper", in, config.Options{"skip_errors": true}, logging.Discard(), upper)
	if err != nil {
		t.Fatalf("Map(skip_errors) err=%v", err)
	}
	if len(out) != 2 || out[1]["name"] != "CY" {
		t.Fatalf("Map(skip_errors)=%v", out)
	}
}

func TestMap_PanicAndDrop(t *testing.T) {
	t.Parallel()

	fn := func(i int, rec records.Record) (records.Record, error) {
		switch i {
		case 0:
			return nil, nil
		case 1:
			var m map[string]int
			m["boom"] = 1
		}
		return rec, nil
	}
	in := []records.Record{{"a": 1}, {"a": 2}, {"a": 3}}

	_, err := Map(context.Background(), "panics", in, nil, logging.Discard(), fn)
	if !errors.Is(err, etlerr.ErrTransform) || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Map err=%v, want panic as ErrTransform", err)
	}

	out, err := Map(context.Background(), "panics", in, config.Options{"skip_errors": "yes"}, logging.Discard(), fn)
	if err != nil || len(out) != 1 || out[0]["a"] != 3 {
		t.Fatalf("Map=%v,%v, want only row 2", out, err)
	}
}

func TestMap_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Map(ctx, "x", []records.Record{{}}, nil, logging.Discard(), upper); !errors.Is(err, context.Canceled) {
		t.Fatalf("Map err=%v, want context.Canceled", err)
	}
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	if got := ParseOptions(nil); got.SkipErrors || got.StrictMode {
		t.Fatalf("ParseOptions(nil)=%+v, want zero", got)
	}
	if got := ParseOptions(config.Options{"skip_errors": "true", "strict_mode": 1}); !got.SkipErrors || !got.StrictMode {
		t.Fatalf("ParseOptions=%+v, want both set", got)
	}
}
