// Package registry maps extension identifiers to constructors for graphs,
// populators, experiments and integration methods. Properties are checked
// against a per-plugin table before the constructor runs.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dd0wney/netharness/pkg/experiments"
	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/validation"
)

// Kind is an extension family.
type Kind string

const (
	KindGraph       Kind = "graph"
	KindPopulator   Kind = "population"
	KindExperiment  Kind = "experiment"
	KindIntegration Kind = "integration"
)

// Kinds lists every family in display order.
var Kinds = []Kind{KindGraph, KindPopulator, KindExperiment, KindIntegration}

var (
	ErrUnknownKind      = errors.New("unknown extension kind")
	ErrUnknownExtension = errors.New("unknown extension")
	ErrDuplicate        = errors.New("extension already registered")
	ErrUnknownProperty  = errors.New("unknown property")
	ErrMissingProperty  = errors.New("missing required property")
)

// GraphFactory creates an empty graph of one implementation.
type GraphFactory func(name string, opts ...graph.Option) *graph.Graph

// Plugin is one registered extension. Build receives Values that have
// already been checked and completed with defaults.
type Plugin struct {
	Kind       Kind
	ID         string
	Summary    string
	Properties []Property
	Build      func(v Values) (any, error)
}

// Property returns the property declared under key.
func (p *Plugin) Property(key string) (Property, bool) {
	for _, prop := range p.Properties {
		if prop.Key == key {
			return prop, true
		}
	}
	return Property{}, false
}

// Configure checks raw against the property table and returns the typed
// values with defaults filled in.
func (p *Plugin) Configure(raw map[string]any) (Values, error) {
	component := string(p.Kind) + "." + p.ID
	cv := validation.NewConfigValidator(component)

	for _, key := range sortedKeys(raw) {
		if _, ok := p.Property(key); !ok {
			cv.Custom(key, func() error { return ErrUnknownProperty })
		}
	}

	out := make(Values, len(p.Properties))
	for _, prop := range p.Properties {
		v, ok := raw[prop.Key]
		if !ok {
			if prop.Required {
				cv.Custom(prop.Key, func() error { return ErrMissingProperty })
			} else if prop.Default != nil {
				out[prop.Key] = prop.Default
			}
			continue
		}
		typed, err := coerce(prop.Type, v)
		if err != nil {
			cv.Custom(prop.Key, func() error { return err })
			continue
		}
		out[prop.Key] = typed
	}

	if err := cv.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Plugin) build(raw map[string]any) (any, error) {
	v, err := p.Configure(raw)
	if err != nil {
		return nil, err
	}
	inst, err := p.Build(v)
	if err != nil {
		if validation.IsConfigError(err) {
			return nil, err
		}
		return nil, &validation.ConfigError{Component: string(p.Kind) + "." + p.ID, Cause: err}
	}
	if check, ok := inst.(validation.Validatable); ok {
		if err := check.Validate(); err != nil {
			if validation.IsConfigError(err) {
				return nil, err
			}
			return nil, &validation.ConfigError{Component: string(p.Kind) + "." + p.ID, Cause: err}
		}
	}
	return inst, nil
}

// Registry holds the catalogue of each kind.
type Registry struct {
	mu      sync.RWMutex
	plugins map[Kind]map[string]*Plugin
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{plugins: make(map[Kind]map[string]*Plugin, len(Kinds))}
	for _, k := range Kinds {
		r.plugins[k] = make(map[string]*Plugin)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry holding the built-in extensions.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// Register adds p to its kind's catalogue.
func (r *Registry) Register(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cat, ok := r.plugins[p.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
	if _, dup := cat[p.ID]; dup {
		return fmt.Errorf("%w: %s %q", ErrDuplicate, p.Kind, p.ID)
	}
	cat[p.ID] = p
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(p *Plugin) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Resolve looks up the plugin registered under (kind, id).
func (r *Registry) Resolve(kind Kind, id string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cat, ok := r.plugins[kind]
	if !ok {
		return nil, &validation.ConfigError{Component: "registry", Cause: fmt.Errorf("%w: %q", ErrUnknownKind, kind)}
	}
	p, ok := cat[id]
	if !ok {
		return nil, &validation.ConfigError{Component: "registry", Cause: fmt.Errorf("%w: %s %q", ErrUnknownExtension, kind, id)}
	}
	return p, nil
}

// List returns the plugins of kind sorted by id.
func (r *Registry) List(kind Kind) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins[kind]))
	for _, p := range r.plugins[kind] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) construct(kind Kind, id string, raw map[string]any) (any, error) {
	p, err := r.Resolve(kind, id)
	if err != nil {
		return nil, err
	}
	return p.build(raw)
}

// Graph returns the factory of a graph implementation.
func (r *Registry) Graph(id string) (GraphFactory, error) {
	inst, err := r.construct(KindGraph, id, nil)
	if err != nil {
		return nil, err
	}
	f, ok := inst.(GraphFactory)
	if !ok {
		return nil, mistyped(KindGraph, id, inst)
	}
	return f, nil
}

// Populator builds a configured graph populator.
func (r *Registry) Populator(id string, props map[string]any) (graph.Populator, error) {
	inst, err := r.construct(KindPopulator, id, props)
	if err != nil {
		return nil, err
	}
	p, ok := inst.(graph.Populator)
	if !ok {
		return nil, mistyped(KindPopulator, id, inst)
	}
	return p, nil
}

// Experiment builds a configured experiment simulator.
func (r *Registry) Experiment(id string, props map[string]any) (experiments.Experiment, error) {
	inst, err := r.construct(KindExperiment, id, props)
	if err != nil {
		return nil, err
	}
	e, ok := inst.(experiments.Experiment)
	if !ok {
		return nil, mistyped(KindExperiment, id, inst)
	}
	return e, nil
}

// Integration builds a configured integration method.
func (r *Registry) Integration(id string, props map[string]any) (integration.Method, error) {
	inst, err := r.construct(KindIntegration, id, props)
	if err != nil {
		return nil, err
	}
	m, ok := inst.(integration.Method)
	if !ok {
		return nil, mistyped(KindIntegration, id, inst)
	}
	return m, nil
}

func mistyped(kind Kind, id string, inst any) error {
	return &validation.ConfigError{Component: "registry", Cause: fmt.Errorf("%s %q built %T", kind, id, inst)}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
