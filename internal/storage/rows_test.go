package storage

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestGroupByAutoKey(t *testing.T) {
	t.Parallel()

	def := TableDef{Name: "t", Columns: []ColumnDef{
		{Name: "id", Type: Integer, PrimaryKey: true, AutoIncrement: true},
		{Name: "name", Type: Text, Nullable: true},
	}}
	cols := []string{"id", "name"}
	rows := [][]any{{int64(7), "a"}, {nil, "b"}, {nil, "c"}}

	got := GroupByAutoKey(def, cols, rows)
	if len(got) != 2 {
		t.Fatalf("groups=%d, want 2", len(got))
	}
	if !reflect.DeepEqual(got[0].Columns, cols) || len(got[0].Rows) != 1 {
		t.Fatalf("explicit-key group=%+v", got[0])
	}
	if !reflect.DeepEqual(got[1].Columns, []string{"name"}) {
		t.Fatalf("generated-key columns=%v", got[1].Columns)
	}
	if !reflect.DeepEqual(got[1].Rows, [][]any{{"b"}, {"c"}}) {
		t.Fatalf("generated-key rows=%v", got[1].Rows)
	}

	// No auto-increment key: a single group, untouched.
	plain := TableDef{Name: "t", Columns: []ColumnDef{{Name: "id", Type: Text, PrimaryKey: true}}}
	got = GroupByAutoKey(plain, []string{"id"}, [][]any{{nil}})
	if len(got) != 1 || len(got[0].Rows[0]) != 1 {
		t.Fatalf("plain groups=%+v", got)
	}

	if got := GroupByAutoKey(def, cols, nil); len(got) != 0 {
		t.Fatalf("empty input groups=%+v", got)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, cols, maxParams, maxRows int
		want                        [][2]int
	}{
		{n: 5, cols: 2, want: [][2]int{{0, 5}}},
		{n: 5, cols: 2, maxParams: 4, want: [][2]int{{0, 2}, {2, 4}, {4, 5}}},
		{n: 5, cols: 1, maxRows: 3, want: [][2]int{{0, 3}, {3, 5}}},
		{n: 3, cols: 10, maxParams: 4, want: [][2]int{{0, 1}, {1, 2}, {2, 3}}},
		{n: 0, cols: 3, want: nil},
	}
	for _, tt := range tests {
		got := Chunk(tt.n, tt.cols, tt.maxParams, tt.maxRows)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Chunk(%d,%d,%d,%d)=%v, want %v", tt.n, tt.cols, tt.maxParams, tt.maxRows, got, tt.want)
		}
	}
}

func TestBuildInsert_PlaceholderNumbering(t *testing.T) {
	t.Parallel()

	ident := func(s string) string { return `"` + s + `"` }
	ph := func(i int) string { return fmt.Sprintf("$%d", i) }

	got := BuildInsert(`"t"`, []string{"a", "b"}, 2, ident, ph)
	want := `INSERT INTO "t" ("a", "b") VALUES ($1, $2), ($3, $4)`
	if got != want {
		t.Fatalf("BuildInsert=%q, want %q", got, want)
	}

	args := Flatten([][]any{{1, 2}, {3, 4}})
	if !reflect.DeepEqual(args, []any{1, 2, 3, 4}) {
		t.Fatalf("Flatten=%v", args)
	}
}

func TestTableDefValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     TableDef
		wantErr string
	}{
		{"ok", TableDef{Name: "t", Columns: []ColumnDef{{Name: "a", Type: Text}}}, ""},
		{"no name", TableDef{Columns: []ColumnDef{{Name: "a", Type: Text}}}, "table name is empty"},
		{"no columns", TableDef{Name: "t"}, "no columns"},
		{"duplicate", TableDef{Name: "t", Columns: []ColumnDef{{Name: "a"}, {Name: "a"}}}, "duplicate column"},
		{"two keys", TableDef{Name: "t", Columns: []ColumnDef{
			{Name: "a", Type: Integer, PrimaryKey: true}, {Name: "b", Type: Integer, PrimaryKey: true},
		}}, "primary keys"},
		{"text autoincrement", TableDef{Name: "t", Columns: []ColumnDef{
			{Name: "a", Type: Text, PrimaryKey: true, AutoIncrement: true},
		}}, "auto increment"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.def.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate()=%v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate()=%v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSplitQualified(t *testing.T) {
	t.Parallel()

	for in, want := range map[string][2]string{
		"dbo.imports": {"dbo", "imports"},
		"imports":     {"", "imports"},
		" a . b ":     {"a", "b"},
		"a.b.c":       {"", "a.b.c"},
		"":            {"", ""},
	} {
		s, tb := SplitQualified(in)
		if s != want[0] || tb != want[1] {
			t.Fatalf("SplitQualified(%q)=(%q,%q), want (%q,%q)", in, s, tb, want[0], want[1])
		}
	}
}

func TestRegistry(t *testing.T) {
	// Not parallel: mutates the package registry.
	Register("test-kind", func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil })

	found := false
	for _, k := range Kinds() {
		if k == "test-kind" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds()=%v, missing test-kind", Kinds())
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register did not panic")
		}
	}()
	Register("test-kind", func(ctx context.Context, cfg Config) (Repository, error) { return nil, nil })
}

func TestNew_UnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil {
		t.Fatalf("New(nope) returned nil error")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New(empty kind) returned nil error")
	}
}
