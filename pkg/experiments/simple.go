package experiments

import (
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/validation"
)

// Simple tests every node pair independently: a true edge is called with
// probability Sensitivity, a non-edge with probability 1 − Specificity.
type Simple struct {
	Sensitivity float64
	Specificity float64
}

// Validate checks both rates are probabilities.
func (s *Simple) Validate() error {
	return validation.NewConfigValidator("simpleexperiment").
		Probability("sensitivity", s.Sensitivity).
		Probability("specificity", s.Specificity).
		Validate()
}

// Perform implements Experiment.
func (s *Simple) Perform(truth, out *graph.Graph, rng *rand.Rand) error {
	nodes := copyNodes(truth, out)
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			threshold := 1 - s.Specificity
			if truth.HasEdge(graph.KeyOf(nodes[i].ID(), nodes[j].ID())) {
				threshold = s.Sensitivity
			}
			if rng.Float64() < threshold {
				out.CreateEdge(nodes[i], nodes[j])
			}
		}
	}
	return nil
}

// Summary implements Experiment.
func (s *Simple) Summary() string {
	return fmt.Sprintf("%q {sens: %g; spec: %g}", "simpleexperiment", s.Sensitivity, s.Specificity)
}
