package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/etlerr"
	"dataload/internal/logging"
	"dataload/pkg/records"
)

type fakeLoader struct {
	err      error
	invalid  bool
	gotOpts  config.Options
	describe string
}

func (l *fakeLoader) Describe() string { return l.describe }

func (l *fakeLoader) Validate(source string) error {
	if l.invalid {
		return fmt.Errorf("%w: %s", etlerr.ErrInvalidSource, source)
	}
	return nil
}

func (l *fakeLoader) Load(_ context.Context, source string, opts config.Options) (*datasource.Payload, error) {
	l.gotOpts = opts
	if l.err != nil {
		return nil, l.err
	}
	return &datasource.Payload{Source: source, Format: datasource.CSV, Data: []byte("a,b")}, nil
}

type fakeParser struct{ rows []records.Record }

func (fakeParser) Describe() string { return "fake parser" }

func (p fakeParser) Parse(context.Context, *datasource.Payload, config.Options) ([]records.Record, error) {
	return p.rows, nil
}

type tagTransformer struct {
	tag  string
	fail bool
}

func (t tagTransformer) Describe() string { return "tag " + t.tag }

func (t tagTransformer) Transform(_ context.Context, in []records.Record, opts config.Options) ([]records.Record, error) {
	if t.fail {
		return nil, fmt.Errorf("%w: boom", etlerr.ErrTransform)
	}
	out := make([]records.Record, len(in))
	for i, r := range in {
		c := r.Clone()
		c["tags"] = fmt.Sprint(c["tags"], t.tag, opts.String("suffix", ""))
		out[i] = c
	}
	return out, nil
}

type countConverter struct{}

func (countConverter) Describe() string { return "count rows" }

func (countConverter) Convert(_ context.Context, batch []records.Record, _ config.Options) (int, error) {
	return len(batch), nil
}

func states(h []Transition) []string {
	out := make([]string, len(h))
	for i, t := range h {
		out[i] = t.State.String()
		if t.State == Transforming {
			out[i] += fmt.Sprintf("[%d]", t.Index)
		}
	}
	return out
}

func TestExecute_HappyPath(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p := &Pipeline[int]{
		Loader:       loader,
		Parser:       fakeParser{rows: []records.Record{{"tags": ""}, {"tags": ""}}},
		Transformers: []Transformer{tagTransformer{tag: "a"}, tagTransformer{tag: "b"}},
		Converter:    countConverter{},
		Logger:       logging.Discard(),
	}
	assert.Equal(t, Idle, p.State())

	n, err := p.Execute(context.Background(), "in.csv", Config{
		Load:      config.Options{"encoding": "latin-1"},
		Transform: []config.Options{{"suffix": "!"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, Done, p.State())
	assert.Equal(t, "latin-1", loader.gotOpts.String("encoding", ""))
	assert.Equal(t,
		[]string{"idle", "loading", "parsing", "transforming[0]", "transforming[1]", "converting", "done"},
		states(p.History()))
	assert.NotEmpty(t, p.RunID())
}

func TestExecute_FailurePropagatesStage(t *testing.T) {
	t.Parallel()

	p := &Pipeline[int]{
		Loader:       &fakeLoader{},
		Parser:       fakeParser{rows: []records.Record{{}}},
		Transformers: []Transformer{tagTransformer{tag: "a"}, tagTransformer{fail: true}, tagTransformer{tag: "c"}},
		Converter:    countConverter{},
		Logger:       logging.Discard(),
	}
	_, err := p.Execute(context.Background(), "in.csv", Config{})
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, Transforming, se.Stage)
	assert.Equal(t, 1, se.Index)
	assert.ErrorIs(t, err, etlerr.ErrTransform)
	assert.Contains(t, err.Error(), "transforming[1]")

	assert.Equal(t, Failed, p.State())
	assert.Equal(t, []string{"idle", "loading", "parsing", "transforming[0]", "transforming[1]", "failed"}, states(p.History()))
}

func TestExecute_LoaderValidation(t *testing.T) {
	t.Parallel()

	p := &Pipeline[int]{Loader: &fakeLoader{invalid: true}, Parser: fakeParser{}, Converter: countConverter{}, Logger: logging.Discard()}
	_, err := p.Execute(context.Background(), "x.txt", Config{})
	assert.ErrorIs(t, err, etlerr.ErrInvalidSource)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Loading, se.Stage)

	p = &Pipeline[int]{Loader: &fakeLoader{err: etlerr.ErrTimedOut}, Parser: fakeParser{}, Converter: countConverter{}, Logger: logging.Discard()}
	_, err = p.Execute(context.Background(), "slow.csv", Config{})
	assert.ErrorIs(t, err, etlerr.ErrTimedOut)
}

func TestExecute_RequiresStages(t *testing.T) {
	t.Parallel()

	p := &Pipeline[int]{Loader: &fakeLoader{}}
	_, err := p.Execute(context.Background(), "x", Config{})
	assert.Error(t, err)
	assert.Equal(t, Idle, p.State())
}

func TestExecute_RerunResetsHistory(t *testing.T) {
	t.Parallel()

	p := &Pipeline[int]{Loader: &fakeLoader{}, Parser: fakeParser{}, Converter: countConverter{}, Logger: logging.Discard()}
	_, err := p.Execute(context.Background(), "a", Config{})
	require.NoError(t, err)
	first := p.RunID()
	_, err = p.Execute(context.Background(), "b", Config{})
	require.NoError(t, err)

	assert.NotEqual(t, first, p.RunID())
	assert.Len(t, p.History(), 5)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "converting", Converting.String())
	assert.True(t, strings.HasPrefix(State(42).String(), "state("))
}
