// Package experiments simulates noisy interaction screens. Every Experiment
// observes a true topology and writes what it "measured" into an empty graph.
package experiments

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/netharness/pkg/graph"
	"gonum.org/v1/gonum/stat/distuv"
)

// MaxCollisions bounds how many already-present pairs false-positive
// injection may draw before giving up.
const MaxCollisions = 500

// ErrSamplingCollision is returned when false-positive injection cannot find
// free node pairs. It aborts the replicate.
var ErrSamplingCollision = errors.New("sampling error: too many collisions while injecting false positives")

// Experiment simulates one screen of truth into out.
type Experiment interface {
	Perform(truth, out *graph.Graph, rng *rand.Rand) error
	Summary() string
}

// Releaser is implemented by experiments that cache state per true graph.
// Release drops whatever was kept for truth.
type Releaser interface {
	Release(truth *graph.Graph)
}

// copyNodes creates every truth node in out and returns the local handles in
// truth order.
func copyNodes(truth, out *graph.Graph) []graph.Node {
	nodes := make([]graph.Node, 0, truth.NumNodes())
	for _, n := range truth.Nodes() {
		nodes = append(nodes, out.EnsureNode(n.ID()))
	}
	return nodes
}

// falsePositives draws the number of spurious calls for tp observed true
// positives at false-positive rate rate: Poisson with mean rate·tp/(1−rate).
func falsePositives(rng *rand.Rand, rate float64, tp int) int {
	mean := rate * float64(tp) / (1 - rate)
	if !(mean > 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: mean, Src: rng}.Rand())
}

// inject adds count edges between draw()-chosen pairs that are not yet
// connected. Self pairs are redrawn for free; taken pairs count as collisions,
// and the count is never reset by a successful draw.
func inject(out *graph.Graph, count int, draw func() (graph.Node, graph.Node, bool)) error {
	collisions := 0
	for added := 0; added < count; {
		a, b, ok := draw()
		if !ok {
			continue
		}
		if out.HasEdge(graph.KeyOf(a.ID(), b.ID())) {
			collisions++
			if collisions > MaxCollisions {
				return fmt.Errorf("%w (%d added of %d)", ErrSamplingCollision, added, count)
			}
			continue
		}
		out.CreateEdge(a, b)
		added++
	}
	return nil
}
