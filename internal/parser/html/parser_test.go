package html

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/pkg/records"
)

const page = `<!doctype html>
<html><body>
<table id="nav"><tr><td>home</td></tr></table>
<table class="data">
  <thead><tr><th>Question</th><th>Category</th><th>Score</th></tr></thead>
  <tbody>
    <tr><td> 2+2? </td><td>math</td><td>4</td></tr>
    <tr><td>Capital of
        France?</td><td></td><td>n/a</td></tr>
    <tr><td colspan="2">merged</td><td>1</td></tr>
    <tr><td><table><tr><td>nested</td></tr></table>outer</td><td>x</td><td>2</td></tr>
  </tbody>
</table>
</body></html>`

func parse(t *testing.T, opts config.Options) ([]records.Record, error) {
	t.Helper()
	p := &Parser{Logger: logging.Discard()}
	return p.Parse(context.Background(), &datasource.Payload{
		Source: "page.html", Format: datasource.HTML, Data: []byte(page),
	}, opts)
}

func TestParse_SelectedTable(t *testing.T) {
	t.Parallel()

	got, err := parse(t, config.Options{"table_selector": "table.data", "dtype": map[string]any{"Score": "int"}})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, records.Record{"Question": "2+2?", "Category": "math", "Score": int64(4)}, got[0])
	assert.Equal(t, records.Record{"Question": "Capital of France?", "Category": nil, "Score": nil}, got[1])
	assert.Equal(t, records.Record{"Question": "merged", "Category": "merged", "Score": int64(1)}, got[2])
	assert.Equal(t, "nestedouter", got[3]["Question"])
}

func TestParse_TableIndex(t *testing.T) {
	t.Parallel()

	got, err := parse(t, config.Options{"has_header": false})
	require.NoError(t, err)
	assert.Equal(t, []records.Record{{"0": "home"}}, got)

	got, err = parse(t, config.Options{"table_index": 1, "nrows": 1, "usecols": []any{"Question"}})
	require.NoError(t, err)
	assert.Equal(t, []records.Record{{"Question": "2+2?"}}, got)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := parse(t, config.Options{"table_selector": "table.missing"})
	assert.ErrorIs(t, err, etlerr.ErrParse)

	_, err = parse(t, config.Options{"table_index": 9})
	assert.ErrorIs(t, err, etlerr.ErrParse)

	p := &Parser{Logger: logging.Discard()}
	_, err = p.Parse(context.Background(), &datasource.Payload{Format: datasource.CSV}, nil)
	assert.ErrorIs(t, err, etlerr.ErrUnsupportedFormat)
}
