package workflow

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dd0wney/netharness/pkg/validation"
)

// Extension names a registry entry and the properties to configure it with.
type Extension struct {
	ID         string
	Properties *Properties
}

// Replicas is an experiment's repeat count: a fixed number or the current
// value of a variable.
type Replicas struct {
	Count int
	Var   Variable
}

// Resolve returns the current count.
func (r Replicas) Resolve() (int, error) {
	if r.Var == nil {
		return r.Count, nil
	}
	x := r.Var.Value()
	if x != math.Trunc(x) || x < 0 || x > math.MaxInt32 {
		return 0, fmt.Errorf("variable %s value %v is not a replica count", r.Var.ID(), x)
	}
	return int(x), nil
}

func (r Replicas) String() string {
	if r.Var != nil {
		return "var:" + r.Var.ID()
	}
	return fmt.Sprint(r.Count)
}

// ExperimentSpec is one experiment configuration and how often to run it per
// replicate.
type ExperimentSpec struct {
	Extension
	Replicas Replicas
}

// Protocol describes a sweep: how the true graph is built, which experiments
// observe it, which method integrates the observations and which variables
// are varied.
type Protocol struct {
	Name                string
	GraphImplementation string
	Population          Extension
	Integration         Extension
	Experiments         []ExperimentSpec
	GoldStandards       []ExperimentSpec

	// Variables in sweep order; the first one varies slowest.
	Variables     []Variable
	CycleReplicas int

	// Seed roots every replicate's random stream.
	Seed uint64
	// Digest fingerprints the protocol source; it namespaces checkpoints.
	Digest string
}

// Validate checks the protocol is runnable in principle. Extension ids and
// properties are checked by the registry.
func (p *Protocol) Validate() error {
	cv := validation.NewConfigValidator("protocol").
		Required("graphImplementation", p.GraphImplementation).
		Required("population", p.Population.ID).
		Required("integration", p.Integration.ID).
		Positive("cycleReplicas", p.CycleReplicas).
		Custom("experiments", func() error {
			if len(p.Experiments) == 0 {
				return errors.New("at least one evidential experiment is required")
			}
			return nil
		})

	for i, e := range p.Experiments {
		p.checkExperiment(cv, fmt.Sprintf("experiments[%d]", i), e)
	}
	for i, e := range p.GoldStandards {
		p.checkExperiment(cv, fmt.Sprintf("goldStandards[%d]", i), e)
	}

	seen := make(map[string]bool, len(p.Variables))
	for i, v := range p.Variables {
		field := fmt.Sprintf("variables[%d]", i)
		if v == nil {
			cv.Custom(field, func() error { return errors.New("nil variable") })
			continue
		}
		id := v.ID()
		cv.Custom(field, func() error {
			if seen[id] {
				return fmt.Errorf("duplicate variable %q", id)
			}
			seen[id] = true
			return nil
		})
	}
	return cv.Validate()
}

func (p *Protocol) checkExperiment(cv *validation.ConfigValidator, field string, e ExperimentSpec) {
	cv.Required(field+".type", e.ID)
	if e.Replicas.Var == nil {
		cv.Positive(field+".replicas", e.Replicas.Count)
	}
}

// RequiresGoldStandards reports whether gold standards are simulated.
func (p *Protocol) RequiresGoldStandards() bool {
	return len(p.GoldStandards) > 0
}

// Variable returns the variable with id.
func (p *Protocol) Variable(id string) (Variable, bool) {
	for _, v := range p.Variables {
		if v.ID() == id {
			return v, true
		}
	}
	return nil, false
}

// VariableIDs returns the variable ids in sweep order.
func (p *Protocol) VariableIDs() []string {
	ids := make([]string, len(p.Variables))
	for i, v := range p.Variables {
		ids[i] = v.ID()
	}
	return ids
}

// VariableValues returns the current variable values in sweep order.
func (p *Protocol) VariableValues() []float64 {
	vals := make([]float64, len(p.Variables))
	for i, v := range p.Variables {
		vals[i] = v.Value()
	}
	return vals
}

// VariableTag renders the current point as "id=value;id=value".
func (p *Protocol) VariableTag() string {
	parts := make([]string, len(p.Variables))
	for i, v := range p.Variables {
		parts[i] = v.ID() + "=" + FormatValue(v.Value())
	}
	return strings.Join(parts, ";")
}

// Points returns the number of sweep points.
func (p *Protocol) Points() int {
	n := 1
	for _, v := range p.Variables {
		n *= v.Iterations()
	}
	return n
}

// Summary describes the protocol in a few lines.
func (p *Protocol) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "protocol:      %s\n", p.Name)
	fmt.Fprintf(&b, "digest:        %s\n", p.Digest)
	fmt.Fprintf(&b, "seed:          %d\n", p.Seed)
	fmt.Fprintf(&b, "graph:         %s\n", p.GraphImplementation)
	fmt.Fprintf(&b, "population:    %s %s\n", p.Population.ID, describe(p.Population.Properties))
	fmt.Fprintf(&b, "integration:   %s %s\n", p.Integration.ID, describe(p.Integration.Properties))
	for _, e := range p.Experiments {
		fmt.Fprintf(&b, "experiment:    %s x%s %s\n", e.ID, e.Replicas, describe(e.Properties))
	}
	for _, e := range p.GoldStandards {
		fmt.Fprintf(&b, "gold standard: %s x%s %s\n", e.ID, e.Replicas, describe(e.Properties))
	}
	for _, v := range p.Variables {
		fmt.Fprintf(&b, "variable:      %v (%d values)\n", v, v.Iterations())
	}
	fmt.Fprintf(&b, "replicates:    %d per point, %d points\n", p.CycleReplicas, p.Points())
	return b.String()
}

func describe(props *Properties) string {
	parts := make([]string, 0, props.Len())
	for _, k := range props.Keys() {
		if v, ok := props.Variable(k); ok {
			parts = append(parts, k+"=var:"+v.ID())
			continue
		}
		val, _ := props.Get(k)
		parts = append(parts, fmt.Sprintf("%s=%v", k, val))
	}
	return "{" + strings.Join(parts, "; ") + "}"
}
