package auto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/pkg/records"
)

func TestParse_Dispatch(t *testing.T) {
	t.Parallel()
	p := New(logging.Discard())
	ctx := context.Background()

	got, err := p.Parse(ctx, &datasource.Payload{Format: datasource.CSV, Data: []byte("a\n1\n")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []records.Record{{"a": "1"}}, got)

	got, err = p.Parse(ctx, &datasource.Payload{Format: datasource.JSON, Data: []byte(`[{"a":1}]`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []records.Record{{"a": int64(1)}}, got)

	got, err = p.Parse(ctx, &datasource.Payload{Format: datasource.HTML, Data: []byte(`<table><tr><th>a</th></tr><tr><td>x</td></tr></table>`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, []records.Record{{"a": "x"}}, got)

	_, err = p.Parse(ctx, &datasource.Payload{Format: "parquet"}, nil)
	assert.ErrorIs(t, err, etlerr.ErrUnsupportedFormat)
}

func TestConfigs_Union(t *testing.T) {
	t.Parallel()

	cfg := New(nil).Configs()
	for _, key := range []string{"delimiter", "sheet_name", "record_path", "table_selector", "nrows"} {
		assert.Contains(t, cfg, key)
	}
}
