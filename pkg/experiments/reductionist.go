package experiments

import (
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/validation"
)

// Reductionist models a small-scale study of a single bait protein: one ego
// node is picked at random, each of its true partners is found with
// probability Sensitivity, and spurious partners are added at rate NPR.
// Only the ego node and its called partners appear in the output.
type Reductionist struct {
	Sensitivity float64
	NPR         float64
}

// Validate checks sensitivity in [0,1] and npr in [0,1).
func (r *Reductionist) Validate() error {
	return validation.NewConfigValidator("reductionist").
		Probability("sensitivity", r.Sensitivity).
		OpenProbability("npr", r.NPR).
		Validate()
}

// Perform implements Experiment.
func (r *Reductionist) Perform(truth, out *graph.Graph, rng *rand.Rand) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if truth.NumNodes() == 0 {
		return nil
	}
	ego := truth.NodeAt(rng.IntN(truth.NumNodes()))
	local := out.EnsureNode(ego.ID())

	for _, nb := range truth.Neighbors(ego) {
		if rng.Float64() < r.Sensitivity {
			out.CreateEdge(local, out.EnsureNode(nb.Node.ID()))
		}
	}
	if truth.NumNodes() < 2 {
		return nil
	}

	fp := falsePositives(rng, r.NPR, out.NumEdges())
	return inject(out, fp, func() (graph.Node, graph.Node, bool) {
		partner := truth.NodeAt(rng.IntN(truth.NumNodes()))
		if partner.Equal(ego) {
			return graph.Node{}, graph.Node{}, false
		}
		if out.HasEdge(graph.KeyOf(ego.ID(), partner.ID())) {
			return local, partner, true
		}
		return local, out.EnsureNode(partner.ID()), true
	})
}

// Summary implements Experiment.
func (r *Reductionist) Summary() string {
	return fmt.Sprintf("%q {sens: %g; npr: %g}", "reductionist", r.Sensitivity, r.NPR)
}
