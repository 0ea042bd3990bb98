package experiments

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/validation"
	"gonum.org/v1/gonum/stat/distuv"
)

// Biased gives every node pair its own error rate, drawn once per true
// topology from Beta distributions centred on the configured sensitivity and
// false discovery rate. Repeated screens of the same truth therefore share
// systematic bias.
type Biased struct {
	Sensitivity float64
	FDR         float64

	mu     sync.Mutex
	tables map[graph.GraphID]*biasTable
}

type biasTable struct {
	fnr map[graph.EdgeKey]float64 // per true edge
	fpr map[graph.EdgeKey]float64 // per non-edge
}

// Validate checks the configured rates.
func (b *Biased) Validate() error {
	return validation.NewConfigValidator("biasedexperiment").
		Probability("sensitivity", b.Sensitivity).
		OpenProbability("fdr", b.FDR).
		Validate()
}

// table returns the bias table for truth, building it on first use.
func (b *Biased) table(truth *graph.Graph, rng *rand.Rand) (*biasTable, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tables[truth.ID()]; ok {
		return t, nil
	}

	e := float64(truth.NumEdges())
	all := float64(truth.MaxEdges())
	tp := b.Sensitivity * e
	fn := e - tp
	fp := b.FDR * tp / (1 - b.FDR)
	tn := all - (tp + fn + fp)
	if tn+1 <= 0 {
		return nil, validation.Errorf("biasedexperiment",
			"fdr %g implies %.1f false positives, more than the %.0f free pairs", b.FDR, fp, all-e)
	}

	fnrBeta := distuv.Beta{Alpha: fn + 1, Beta: tp + 1, Src: rng}
	fprBeta := distuv.Beta{Alpha: fp + 1, Beta: tn + 1, Src: rng}

	t := &biasTable{
		fnr: make(map[graph.EdgeKey]float64, truth.NumEdges()),
		fpr: make(map[graph.EdgeKey]float64, truth.MaxEdges()-truth.NumEdges()),
	}
	nodes := truth.Nodes()
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			k := graph.KeyOf(nodes[i].ID(), nodes[j].ID())
			if truth.HasEdge(k) {
				t.fnr[k] = fnrBeta.Rand()
			} else {
				t.fpr[k] = fprBeta.Rand()
			}
		}
	}
	if b.tables == nil {
		b.tables = make(map[graph.GraphID]*biasTable)
	}
	b.tables[truth.ID()] = t
	return t, nil
}

// Release implements Releaser.
func (b *Biased) Release(truth *graph.Graph) {
	b.mu.Lock()
	delete(b.tables, truth.ID())
	b.mu.Unlock()
}

// Perform implements Experiment.
func (b *Biased) Perform(truth, out *graph.Graph, rng *rand.Rand) error {
	t, err := b.table(truth, rng)
	if err != nil {
		return err
	}
	nodes := copyNodes(truth, out)
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			k := graph.KeyOf(nodes[i].ID(), nodes[j].ID())
			var threshold float64
			if fnr, isReal := t.fnr[k]; isReal {
				threshold = 1 - fnr
			} else {
				threshold = t.fpr[k]
			}
			if rng.Float64() < threshold {
				out.CreateEdge(nodes[i], nodes[j])
			}
		}
	}
	return nil
}

// Summary implements Experiment.
func (b *Biased) Summary() string {
	return fmt.Sprintf("%q {sens: %g; fdr: %g}", "biasedexperiment", b.Sensitivity, b.FDR)
}
