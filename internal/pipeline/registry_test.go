package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/pkg/records"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.RegisterLoader("file", &fakeLoader{describe: "fake loader"}))
	require.NoError(t, r.RegisterParser("rows", func() Parser { return fakeParser{rows: []records.Record{{"tags": ""}}} }))
	require.NoError(t, r.RegisterTransformer("tag", func() (Transformer, error) { return tagTransformer{tag: "x"}, nil }))
	require.NoError(t, RegisterConverter[int](r, "count", countConverter{}))
	return r
}

func TestRegistry_RejectsNonConforming(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	tests := []struct {
		name string
		err  error
	}{
		{"string", r.RegisterLoader("s", "not a loader")},
		{"nil", r.RegisterParser("n", nil)},
		{"wrong slot", r.RegisterTransformer("p", fakeParser{})},
		{"wrong factory", r.RegisterLoader("f", func() Parser { return fakeParser{} })},
		{"wrong result type", RegisterConverter[string](r, "c", countConverter{})},
		{"empty name", r.RegisterParser("", fakeParser{})},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, etlerr.ErrInvalidComponent) {
			t.Fatalf("%s: err=%v, want ErrInvalidComponent", tt.name, tt.err)
		}
	}
	assert.Empty(t, r.Names(SlotLoader))
}

func TestRegistry_Duplicate(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	err := r.RegisterLoader("file", &fakeLoader{})
	assert.ErrorIs(t, err, etlerr.ErrInvalidComponent)
	assert.Contains(t, err.Error(), "already registered")
}

func TestAssemble_AndRun(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	p, err := Assemble[int](r, Spec{Loader: "file", Parser: "rows", Transformers: []string{"tag", "tag"}, Converter: "count"}, logging.Discard())
	require.NoError(t, err)
	require.Len(t, p.Transformers, 2)

	n, err := p.Execute(context.Background(), "x.csv", Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	desc := p.Describe()
	assert.Equal(t, "loader: file - fake loader", desc[0])
	assert.Equal(t, "transform[1]: tag - tag x", desc[3])
}

func TestAssemble_FactoriesVsInstances(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	calls := 0
	shared := &fakeLoader{}
	require.NoError(t, r.RegisterLoader("shared", shared))
	require.NoError(t, r.RegisterParser("p", fakeParser{}))
	require.NoError(t, r.RegisterTransformer("fresh", func() Transformer { calls++; return tagTransformer{} }))
	require.NoError(t, RegisterConverter[int](r, "c", func() (Converter[int], error) { return countConverter{}, nil }))

	spec := Spec{Loader: "shared", Parser: "p", Transformers: []string{"fresh"}, Converter: "c"}
	a, err := Assemble[int](r, spec, nil)
	require.NoError(t, err)
	b, err := Assemble[int](r, spec, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Same(t, a.Loader, b.Loader)
}

func TestAssemble_Errors(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	for _, spec := range []Spec{
		{Loader: "nope", Parser: "rows", Converter: "count"},
		{Loader: "file", Parser: "nope", Converter: "count"},
		{Loader: "file", Parser: "rows", Transformers: []string{"tag", "nope"}, Converter: "count"},
		{Loader: "file", Parser: "rows", Converter: "nope"},
	} {
		_, err := Assemble[int](r, spec, nil)
		assert.ErrorIs(t, err, etlerr.ErrUnknownComponent, "spec=%+v", spec)
	}

	// Registered for int, assembled for string.
	_, err := Assemble[string](r, Spec{Loader: "file", Parser: "rows", Converter: "count"}, nil)
	assert.ErrorIs(t, err, etlerr.ErrInvalidComponent)

	failing := errors.New("factory failed")
	require.NoError(t, r.RegisterParser("broken", func() (Parser, error) { return nil, failing }))
	_, err = Assemble[int](r, Spec{Loader: "file", Parser: "broken", Converter: "count"}, nil)
	assert.ErrorIs(t, err, failing)
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	t.Parallel()
	r := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Assemble[int](r, Spec{Loader: "file", Parser: "rows", Converter: "count"}, nil)
			assert.NoError(t, err)
			assert.Len(t, r.Describe()[SlotParser], 1)
		}()
	}
	wg.Wait()
}
