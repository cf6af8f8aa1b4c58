package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"dataload/internal/etlerr"
)

// Slot is the role a component plays in a pipeline.
type Slot string

const (
	SlotLoader      Slot = "loader"
	SlotParser      Slot = "parser"
	SlotTransformer Slot = "transformer"
	SlotConverter   Slot = "converter"
)

// entry holds either a shared instance or a factory run on every assembly.
type entry struct {
	instance any
	factory  func() (any, error)
}

func (e entry) build() (any, error) {
	if e.factory != nil {
		return e.factory()
	}
	return e.instance, nil
}

// Registry maps names to pipeline components. It is owned by the caller;
// there is no package-level registry.
//
// Each Register method accepts a ready instance, a func() T or a
// func() (T, error). Anything else fails immediately with
// etlerr.ErrInvalidComponent. Factories run on every Assemble; instances are
// shared between assembled pipelines.
//
// Registration and lookup are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	slots map[Slot]map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: map[Slot]map[string]entry{
		SlotLoader:      {},
		SlotParser:      {},
		SlotTransformer: {},
		SlotConverter:   {},
	}}
}

// RegisterLoader registers a Loader under name.
func (r *Registry) RegisterLoader(name string, v any) error {
	e, err := toEntry[Loader](v)
	if err != nil {
		return fmt.Errorf("register %s %q: %w", SlotLoader, name, err)
	}
	return r.add(SlotLoader, name, e)
}

// RegisterParser registers a Parser under name.
func (r *Registry) RegisterParser(name string, v any) error {
	e, err := toEntry[Parser](v)
	if err != nil {
		return fmt.Errorf("register %s %q: %w", SlotParser, name, err)
	}
	return r.add(SlotParser, name, e)
}

// RegisterTransformer registers a Transformer under name.
func (r *Registry) RegisterTransformer(name string, v any) error {
	e, err := toEntry[Transformer](v)
	if err != nil {
		return fmt.Errorf("register %s %q: %w", SlotTransformer, name, err)
	}
	return r.add(SlotTransformer, name, e)
}

// RegisterConverter registers a Converter[R] under name. Assemble only
// accepts it for pipelines producing R.
func RegisterConverter[R any](r *Registry, name string, v any) error {
	e, err := toEntry[Converter[R]](v)
	if err != nil {
		return fmt.Errorf("register %s %q: %w", SlotConverter, name, err)
	}
	return r.add(SlotConverter, name, e)
}

// toEntry checks v against the contract T.
func toEntry[T any](v any) (entry, error) {
	switch f := v.(type) {
	case nil:
		return entry{}, fmt.Errorf("%w: nil", etlerr.ErrInvalidComponent)
	case func() T:
		if f == nil {
			return entry{}, fmt.Errorf("%w: nil factory", etlerr.ErrInvalidComponent)
		}
		return entry{factory: func() (any, error) { return f(), nil }}, nil
	case func() (T, error):
		if f == nil {
			return entry{}, fmt.Errorf("%w: nil factory", etlerr.ErrInvalidComponent)
		}
		return entry{factory: func() (any, error) { return f() }}, nil
	case T:
		return entry{instance: f}, nil
	default:
		var want *T
		return entry{}, fmt.Errorf("%w: %T does not implement %T", etlerr.ErrInvalidComponent, v, want)
	}
}

func (r *Registry) add(slot Slot, name string, e entry) error {
	if name == "" {
		return fmt.Errorf("register %s: %w: empty name", slot, etlerr.ErrInvalidComponent)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.slots[slot][name]; dup {
		return fmt.Errorf("register %s %q: %w: already registered", slot, name, etlerr.ErrInvalidComponent)
	}
	r.slots[slot][name] = e
	return nil
}

// Names returns the registered names of slot, sorted.
func (r *Registry) Names(slot Slot) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.slots[slot]))
	for n := range r.slots[slot] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) lookup(slot Slot, name string) (any, error) {
	r.mu.RLock()
	e, ok := r.slots[slot][name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no %s named %q (registered: %v)", etlerr.ErrUnknownComponent, slot, name, r.Names(slot))
	}
	v, err := e.build()
	if err != nil {
		return nil, fmt.Errorf("build %s %q: %w", slot, name, err)
	}
	return v, nil
}

// Describe returns the description of every registered component, keyed by
// slot then name. Factories are invoked to obtain one.
func (r *Registry) Describe() map[Slot]map[string]string {
	out := map[Slot]map[string]string{}
	for _, slot := range []Slot{SlotLoader, SlotParser, SlotTransformer, SlotConverter} {
		out[slot] = map[string]string{}
		for _, name := range r.Names(slot) {
			v, err := r.lookup(slot, name)
			if err != nil {
				out[slot][name] = "error: " + err.Error()
				continue
			}
			if d, ok := v.(interface{ Describe() string }); ok {
				out[slot][name] = d.Describe()
			}
		}
	}
	return out
}

// Spec names the components of a pipeline.
type Spec struct {
	Loader       string
	Parser       string
	Transformers []string
	Converter    string
}

// Assemble builds a pipeline from registered components.
//
// Errors:
//   - etlerr.ErrUnknownComponent when a name is not registered
//   - etlerr.ErrInvalidComponent when the converter does not produce R or a
//     factory returns something outside its slot
//   - any error returned by a factory
func Assemble[R any](r *Registry, spec Spec, logger *slog.Logger) (*Pipeline[R], error) {
	p := &Pipeline[R]{Logger: logger}

	v, err := r.lookup(SlotLoader, spec.Loader)
	if err != nil {
		return nil, err
	}
	if p.Loader, err = as[Loader](SlotLoader, spec.Loader, v); err != nil {
		return nil, err
	}

	if v, err = r.lookup(SlotParser, spec.Parser); err != nil {
		return nil, err
	}
	if p.Parser, err = as[Parser](SlotParser, spec.Parser, v); err != nil {
		return nil, err
	}

	for _, name := range spec.Transformers {
		if v, err = r.lookup(SlotTransformer, name); err != nil {
			return nil, err
		}
		t, err := as[Transformer](SlotTransformer, name, v)
		if err != nil {
			return nil, err
		}
		p.Transformers = append(p.Transformers, t)
	}

	if v, err = r.lookup(SlotConverter, spec.Converter); err != nil {
		return nil, err
	}
	if p.Converter, err = as[Converter[R]](SlotConverter, spec.Converter, v); err != nil {
		return nil, err
	}

	p.names = pipelineNames{
		loader:       spec.Loader,
		parser:       spec.Parser,
		converter:    spec.Converter,
		transformers: append([]string(nil), spec.Transformers...),
	}
	return p, nil
}

func as[T any](slot Slot, name string, v any) (T, error) {
	t, ok := v.(T)
	if !ok || v == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s %q is %T, not %T", etlerr.ErrInvalidComponent, slot, name, v, &zero)
	}
	return t, nil
}
