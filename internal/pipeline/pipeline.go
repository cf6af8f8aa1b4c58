// Package pipeline sequences one run: load a source, parse it into records,
// pass the records through a transform chain and hand them to a converter.
//
// Stages run strictly one after another and each stage receives the complete
// output of the previous one. The first failing stage ends the run; nothing is
// retried.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dataload/internal/config"
	"dataload/internal/datasource"
	"dataload/internal/logging"
	"dataload/internal/metrics"
	"dataload/pkg/records"
)

// Loader acquires a source and returns its raw payload.
type Loader interface {
	Load(ctx context.Context, source string, opts config.Options) (*datasource.Payload, error)
	Describe() string
}

// Validator is implemented by loaders that can reject a source before
// loading it.
type Validator interface {
	Validate(source string) error
}

// Parser turns a payload into records.
type Parser interface {
	Parse(ctx context.Context, payload *datasource.Payload, opts config.Options) ([]records.Record, error)
	Describe() string
}

// Transformer maps a batch to a new batch. It must not modify its input.
type Transformer interface {
	Transform(ctx context.Context, in []records.Record, opts config.Options) ([]records.Record, error)
	Describe() string
}

// Converter is the terminal stage. R is what a run produces: typed
// instances, an insert report, ...
type Converter[R any] interface {
	Convert(ctx context.Context, batch []records.Record, opts config.Options) (R, error)
	Describe() string
}

// Configurable is implemented by components that list their options.
type Configurable interface {
	Configs() map[string]string
}

// State is a step of the run state machine:
//
//	Idle -> Loading -> Parsing -> Transforming[i] -> Converting -> Done
//
// Any step may move to Failed, which is terminal.
type State int

const (
	Idle State = iota
	Loading
	Parsing
	Transforming
	Converting
	Done
	Failed
)

var stateNames = [...]string{"idle", "loading", "parsing", "transforming", "converting", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Transition is one entry of a run's history. Index is the transformer
// position for Transforming and -1 otherwise.
type Transition struct {
	State State
	Index int
	At    time.Time
}

// Config holds the per-stage options of one run. Transform[i] belongs to the
// i-th transformer; missing entries mean no options.
type Config struct {
	Load      config.Options
	Parse     config.Options
	Transform []config.Options
	Convert   config.Options
}

func (c Config) transformOpts(i int) config.Options {
	if i < len(c.Transform) {
		return c.Transform[i]
	}
	return nil
}

// StageError reports which stage of a run failed. errors.Is sees through it
// to the etlerr sentinel of the cause.
type StageError struct {
	Stage State
	// Index is the transformer position, -1 for other stages.
	Index     int
	Component string
	Err       error
}

func (e *StageError) Error() string {
	if e.Stage == Transforming {
		return fmt.Sprintf("pipeline: %s[%d] (%s): %v", e.Stage, e.Index, e.Component, e.Err)
	}
	return fmt.Sprintf("pipeline: %s (%s): %v", e.Stage, e.Component, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline is an assembled run. The zero value is not usable: set Loader,
// Parser and Converter (Transformers may be empty).
//
// A Pipeline may be executed many times. Executions are serialized; use
// separate Pipelines for concurrent runs.
type Pipeline[R any] struct {
	Loader       Loader
	Parser       Parser
	Transformers []Transformer
	Converter    Converter[R]
	Logger       *slog.Logger

	// names label the components in logs and errors; Assemble fills them.
	names pipelineNames

	run     sync.Mutex
	mu      sync.RWMutex
	state   State
	history []Transition
	runID   string
}

type pipelineNames struct {
	loader, parser, converter string
	transformers              []string
}

// State returns the state reached by the last run (Idle before any run).
func (p *Pipeline[R]) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// History returns the transitions of the last run in order.
func (p *Pipeline[R]) History() []Transition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Transition(nil), p.history...)
}

// RunID returns the id of the last run.
func (p *Pipeline[R]) RunID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.runID
}

func (p *Pipeline[R]) enter(s State, index int) {
	p.mu.Lock()
	p.state = s
	p.history = append(p.history, Transition{State: s, Index: index, At: time.Now()})
	p.mu.Unlock()
}

// Describe lists the components of the pipeline, one per line.
func (p *Pipeline[R]) Describe() []string {
	out := []string{
		"loader: " + describe(p.names.loader, p.Loader),
		"parser: " + describe(p.names.parser, p.Parser),
	}
	for i, t := range p.Transformers {
		out = append(out, fmt.Sprintf("transform[%d]: %s", i, describe(p.names.transformer(i), t)))
	}
	return append(out, "converter: "+describe(p.names.converter, p.Converter))
}

func describe(name string, c interface{ Describe() string }) string {
	if c == nil {
		return "<none>"
	}
	if name == "" {
		return c.Describe()
	}
	return name + " - " + c.Describe()
}

func (n pipelineNames) transformer(i int) string {
	if i < len(n.transformers) {
		return n.transformers[i]
	}
	return ""
}

func label(name string, c any) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("%T", c)
}

// Execute runs the pipeline over source.
//
// Errors are *StageError values naming the failed stage; the underlying
// cause keeps its etlerr sentinel. A missing Loader, Parser or Converter
// fails before anything runs.
func (p *Pipeline[R]) Execute(ctx context.Context, source string, cfg Config) (R, error) {
	var zero R
	if p.Loader == nil || p.Parser == nil || p.Converter == nil {
		return zero, fmt.Errorf("pipeline: loader, parser and converter are required")
	}

	p.run.Lock()
	defer p.run.Unlock()

	runID := uuid.NewString()
	log := logging.OrDefault(p.Logger).With("run_id", runID)
	ctx = logging.WithLogger(ctx, log)

	p.mu.Lock()
	p.state, p.history, p.runID = Idle, []Transition{{State: Idle, Index: -1, At: time.Now()}}, runID
	p.mu.Unlock()

	started := time.Now()
	fail := func(s State, index int, component string, err error) (R, error) {
		p.enter(Failed, index)
		log.Error("pipeline: failed", "stage", s.String(), "index", index, "component", component, "err", err)
		return zero, &StageError{Stage: s, Index: index, Component: component, Err: err}
	}

	// Loading
	p.enter(Loading, -1)
	name := label(p.names.loader, p.Loader)
	if v, ok := p.Loader.(Validator); ok {
		if err := v.Validate(source); err != nil {
			metrics.RecordStep("load", "error", 0)
			return fail(Loading, -1, name, err)
		}
	}
	var payload *datasource.Payload
	err := step(log, "load", -1, func() (n int, err error) {
		payload, err = p.Loader.Load(ctx, source, cfg.Load)
		if payload != nil {
			n = len(payload.Data)
		}
		return n, err
	})
	if err != nil {
		return fail(Loading, -1, name, err)
	}

	// Parsing
	p.enter(Parsing, -1)
	name = label(p.names.parser, p.Parser)
	var batch []records.Record
	err = step(log, "parse", -1, func() (int, error) {
		var err error
		batch, err = p.Parser.Parse(ctx, payload, cfg.Parse)
		return len(batch), err
	})
	if err != nil {
		return fail(Parsing, -1, name, err)
	}
	metrics.RecordRows("parsed", len(batch))

	// Transforming
	for i, t := range p.Transformers {
		p.enter(Transforming, i)
		name = label(p.names.transformer(i), t)
		err = step(log, "transform", i, func() (int, error) {
			out, err := t.Transform(ctx, batch, cfg.transformOpts(i))
			if err == nil {
				batch = out
			}
			return len(out), err
		})
		if err != nil {
			return fail(Transforming, i, name, err)
		}
	}

	// Converting
	p.enter(Converting, -1)
	name = label(p.names.converter, p.Converter)
	var res R
	err = step(log, "convert", -1, func() (int, error) {
		var err error
		res, err = p.Converter.Convert(ctx, batch, cfg.Convert)
		return len(batch), err
	})
	if err != nil {
		return fail(Converting, -1, name, err)
	}

	p.enter(Done, -1)
	log.Info("pipeline: done", "source", source, "rows", len(batch), "dur_ms", time.Since(started).Milliseconds())
	return res, nil
}

// step runs fn, then logs and records its outcome. n is the stage's output
// size (bytes for load, rows otherwise).
func step(log *slog.Logger, stage string, index int, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	d := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep(stage, status, d)
	if err == nil {
		log.Debug("pipeline: stage done", "stage", stage, "index", index, "rows", n, "dur_ms", d.Milliseconds())
	}
	return err
}
