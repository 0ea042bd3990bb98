package experiments

import (
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/validation"
	"gonum.org/v1/gonum/stat/distuv"
)

// Fast recovers each true edge with probability Sensitivity and then injects
// a Poisson number of false positives between uniformly drawn node pairs, so
// it never visits the full pair space.
type Fast struct {
	Sensitivity float64
	FPR         float64
}

// Validate checks sensitivity in [0,1] and fpr in [0,1).
func (f *Fast) Validate() error {
	return validation.NewConfigValidator("fastexperiment").
		Probability("sensitivity", f.Sensitivity).
		OpenProbability("fpr", f.FPR).
		Validate()
}

// Perform implements Experiment.
func (f *Fast) Perform(truth, out *graph.Graph, rng *rand.Rand) error {
	if err := f.Validate(); err != nil {
		return err
	}
	nodes := copyNodes(truth, out)

	hit := distuv.Bernoulli{P: f.Sensitivity, Src: rng}
	for _, k := range truth.EdgeKeys() {
		if hit.Rand() == 1 {
			out.CreateEdgeKey(k)
		}
	}
	if len(nodes) < 2 {
		return nil
	}

	fp := falsePositives(rng, f.FPR, out.NumEdges())
	return inject(out, fp, func() (graph.Node, graph.Node, bool) {
		a := nodes[rng.IntN(len(nodes))]
		b := nodes[rng.IntN(len(nodes))]
		return a, b, !a.Equal(b)
	})
}

// Summary implements Experiment.
func (f *Fast) Summary() string {
	return fmt.Sprintf("%q {sens: %g; fpr: %g}", "fastexperiment", f.Sensitivity, f.FPR)
}
