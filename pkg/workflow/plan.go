package workflow

import (
	"fmt"

	"github.com/dd0wney/netharness/pkg/experiments"
	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/registry"
	"github.com/dd0wney/netharness/pkg/validation"
)

// plannedExperiment is an experiment instance and its resolved replica count.
type plannedExperiment struct {
	exp      experiments.Experiment
	replicas int
}

// plan is the protocol resolved at one sweep point. It is read-only while
// the point's replicates run.
type plan struct {
	newGraph    registry.GraphFactory
	populator   graph.Populator
	experiments []plannedExperiment
	golds       []plannedExperiment
	method      integration.Method
}

func buildPlan(reg *registry.Registry, p *Protocol) (*plan, error) {
	newGraph, err := reg.Graph(p.GraphImplementation)
	if err != nil {
		return nil, err
	}
	populator, err := reg.Populator(p.Population.ID, p.Population.Properties.Resolve())
	if err != nil {
		return nil, err
	}
	method, err := reg.Integration(p.Integration.ID, p.Integration.Properties.Resolve())
	if err != nil {
		return nil, err
	}
	exps, err := planExperiments(reg, p.Experiments)
	if err != nil {
		return nil, err
	}
	golds, err := planExperiments(reg, p.GoldStandards)
	if err != nil {
		return nil, err
	}
	return &plan{
		newGraph:    newGraph,
		populator:   populator,
		experiments: exps,
		golds:       golds,
		method:      method,
	}, nil
}

func planExperiments(reg *registry.Registry, specs []ExperimentSpec) ([]plannedExperiment, error) {
	out := make([]plannedExperiment, 0, len(specs))
	for _, s := range specs {
		exp, err := reg.Experiment(s.ID, s.Properties.Resolve())
		if err != nil {
			return nil, err
		}
		n, err := s.Replicas.Resolve()
		if err != nil {
			return nil, validation.FieldError("experiment."+s.ID, "replicas", err)
		}
		out = append(out, plannedExperiment{exp: exp, replicas: n})
	}
	return out, nil
}

// release drops per-truth caches of every planned experiment.
func (p *plan) release(truth *graph.Graph) {
	for _, set := range [][]plannedExperiment{p.experiments, p.golds} {
		for _, pe := range set {
			if r, ok := pe.exp.(experiments.Releaser); ok {
				r.Release(truth)
			}
		}
	}
}

// Check resolves every extension of p at every sweep point without running
// anything. It leaves the variables reset.
func Check(reg *registry.Registry, p *Protocol) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var visit func(depth int) error
	visit = func(depth int) error {
		if depth == len(p.Variables) {
			_, err := buildPlan(reg, p)
			if err != nil && len(p.Variables) > 0 {
				return fmt.Errorf("at %s: %w", p.VariableTag(), err)
			}
			return err
		}
		v := p.Variables[depth]
		for v.Reset(); ; v.Step() {
			if err := visit(depth + 1); err != nil {
				return err
			}
			if !v.CanStep() {
				return nil
			}
		}
	}
	defer func() {
		for _, v := range p.Variables {
			v.Reset()
		}
	}()
	return visit(0)
}
