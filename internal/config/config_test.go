package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Getters(t *testing.T) {
	t.Parallel()

	o := Options{
		"b_native":  true,
		"b_string":  "yes",
		"i_float":   float64(42),
		"i_int64":   int64(7),
		"i_number":  json.Number("12"),
		"i_string":  " 5 ",
		"i_frac":    1.5,
		"f_string":  "0.25",
		"s_number":  float64(3),
		"r_tab":     `\t`,
		"r_semi":    ";",
		"d_seconds": float64(2),
		"d_string":  "150ms",
		"map":       map[string]any{"a": "x", "b": float64(1)},
		"list":      []any{"a", float64(2), nil},
		"csv":       "a, b ,,c",
		"ints":      []any{float64(1), "2", "x"},
		"nested":    map[string]any{"k": "v"},
	}

	assert.True(t, o.Bool("b_native", false))
	assert.True(t, o.Bool("b_string", false))
	assert.True(t, o.Bool("missing", true))

	assert.Equal(t, 42, o.Int("i_float", 0))
	assert.Equal(t, 7, o.Int("i_int64", 0))
	assert.Equal(t, 12, o.Int("i_number", 0))
	assert.Equal(t, 5, o.Int("i_string", 0))
	assert.Equal(t, -1, o.Int("i_frac", -1), "fractional float is not an int")

	assert.Equal(t, 0.25, o.Float("f_string", 0))
	assert.Equal(t, "3", o.String("s_number", ""))
	assert.Equal(t, '\t', o.Rune("r_tab", ','))
	assert.Equal(t, ';', o.Rune("r_semi", ','))
	assert.Equal(t, ',', o.Rune("missing", ','))

	assert.Equal(t, 2*time.Second, o.Duration("d_seconds", 0))
	assert.Equal(t, 150*time.Millisecond, o.Duration("d_string", 0))

	assert.Equal(t, map[string]string{"a": "x", "b": "1"}, o.StringMap("map"))
	assert.Equal(t, []string{"a", "2"}, o.StringSlice("list"))
	assert.Equal(t, []string{"a", "b", "c"}, o.StringSlice("csv"))
	assert.Equal(t, []int{1, 2}, o.IntSlice("ints"))
	assert.Equal(t, "v", o.Sub("nested").String("k", ""))
}

func TestOptions_Merge(t *testing.T) {
	t.Parallel()

	base := Options{"a": 1, "b": 2}
	top := Options{"b": 3}
	m := base.Merge(top)

	assert.Equal(t, 1, m["a"])
	assert.Equal(t, 3, m["b"])
	assert.Equal(t, 2, base["b"], "Merge must not modify its receiver")
}

func TestLoad_JSONAndTOML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "p.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"job": "quiz",
		"source": {"kind": "csv", "path": "q.csv", "options": {"timeout": 5}},
		"parser": {"kind": "csv", "options": {"delimiter": ";"}},
		"transform": [{"kind": "auto_categorize", "options": {"strict_mode": true}}],
		"convert": {"kind": "relational", "options": {"batch_size": 500}},
		"storage": {"kind": "sqlite", "db": {"dsn": "out.db", "table": "questions"}}
	}`), 0o644))

	p, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "quiz", p.Job)
	assert.Equal(t, 5*time.Second, p.Source.Options.Duration("timeout", 0))
	assert.Equal(t, ';', p.Parser.Options.Rune("delimiter", ','))
	assert.True(t, p.Transform[0].Options.Bool("strict_mode", false))
	assert.Equal(t, 500, p.Convert.Options.Int("batch_size", 0))
	assert.Equal(t, "questions", p.Storage.DB.Table)

	tomlPath := filepath.Join(dir, "p.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
job = "quiz"

[source]
kind = "excel"
path = "q.xlsx"

[parser]
kind = "excel"
[parser.options]
sheet_name = "Questions"
skiprows = 2

[convert]
kind = "materialize"
target = ["text", "category"]
[convert.options]
confidence_threshold = 0.9
`), 0o644))

	p, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "excel", p.Source.Kind)
	assert.Equal(t, "Questions", p.Parser.Options.String("sheet_name", ""))
	assert.Equal(t, 2, p.Parser.Options.Int("skiprows", 0))
	assert.Equal(t, []string{"text", "category"}, p.Convert.Target)
	assert.Equal(t, 0.9, p.Convert.Options.Float("confidence_threshold", 0))
}

func TestLoad_RejectsUnknownJSONFields(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"job":"x","sourc":{}}`), ".json")
	require.Error(t, err)
}

func TestValidatePipeline(t *testing.T) {
	t.Parallel()

	valid := Pipeline{
		Job:     "ok",
		Source:  Source{Kind: "csv", Path: "in.csv"},
		Parser:  Parser{Kind: "csv"},
		Convert: Convert{Kind: "relational"},
		Storage: Storage{Kind: "sqlite", DB: DBConfig{DSN: "out.db", Table: "t"}},
	}

	tests := []struct {
		name      string
		mutate    func(p *Pipeline)
		wantError string // path of the expected error, "" for none
	}{
		{name: "valid", mutate: func(*Pipeline) {}},
		{name: "missing path", mutate: func(p *Pipeline) { p.Source.Path = "" }, wantError: "source.path"},
		{name: "unknown parser", mutate: func(p *Pipeline) { p.Parser.Kind = "yaml" }, wantError: "parser.kind"},
		{name: "bad delimiter", mutate: func(p *Pipeline) { p.Parser.Options = Options{"delimiter": "::"} }, wantError: "parser.options.delimiter"},
		{name: "missing dsn", mutate: func(p *Pipeline) { p.Storage.DB.DSN = "" }, wantError: "storage.db.dsn"},
		{name: "bad threshold", mutate: func(p *Pipeline) { p.Convert.Options = Options{"confidence_threshold": 1.5} }, wantError: "convert.options.confidence_threshold"},
		{name: "bad batch", mutate: func(p *Pipeline) { p.Convert.Options = Options{"batch_size": 0} }, wantError: "convert.options.batch_size"},
		{name: "bad timeout", mutate: func(p *Pipeline) { p.Source.Options = Options{"timeout": -1} }, wantError: "source.options.timeout"},
		{name: "materialize needs no storage", mutate: func(p *Pipeline) {
			p.Convert.Kind = "materialize"
			p.Storage = Storage{}
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := valid
			p.Source.Options = nil
			p.Parser.Options = nil
			p.Convert.Options = nil
			tt.mutate(&p)

			issues := ValidatePipeline(p)
			if tt.wantError == "" {
				assert.False(t, HasErrors(issues), "unexpected issues: %+v", issues)
				return
			}
			found := false
			for _, iss := range issues {
				if iss.Severity == SeverityError && iss.Path == tt.wantError {
					found = true
				}
			}
			assert.True(t, found, "want error at %s, got %+v", tt.wantError, issues)
		})
	}
}

func TestValidatePipeline_UnknownTransformIsWarning(t *testing.T) {
	t.Parallel()

	p := Pipeline{
		Job:       "x",
		Source:    Source{Kind: "csv", Path: "in.csv"},
		Parser:    Parser{Kind: "csv"},
		Transform: []Transform{{Kind: "custom"}},
		Convert:   Convert{Kind: "materialize"},
	}
	issues := ValidatePipeline(p)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.Equal(t, "transform[0].kind", issues[0].Path)
}
