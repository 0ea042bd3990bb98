// Package stats measures inferred graphs against a reference topology and
// aggregates per-replicate results into sweep-point summaries.
package stats

import (
	"fmt"
	"math"

	"github.com/dd0wney/netharness/pkg/graph"
)

// Confusion holds the confusion counts of a graph against a reference, with
// the derived error rates.
type Confusion struct {
	TP, FP, TN, FN int
	FPRate         float64 // FP / (FP + TN), 0 when undefined
	FNRate         float64 // FN / (FN + TP), 0 when undefined
}

// Rates returns the error-rate half of the confusion.
func (c Confusion) Rates() Rates {
	return Rates{FPRate: c.FPRate, FNRate: c.FNRate}
}

// Sensitivity returns TP / (TP + FN), 0 when undefined.
func (c Confusion) Sensitivity() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// Specificity returns TN / (TN + FP), 0 when undefined.
func (c Confusion) Specificity() float64 {
	return ratio(c.TN, c.TN+c.FP)
}

func (c Confusion) String() string {
	return fmt.Sprintf("TP=%d FP=%d TN=%d FN=%d FPR=%.4f FNR=%.4f",
		c.TP, c.FP, c.TN, c.FN, c.FPRate, c.FNRate)
}

// Rates are per-source error rates. Methods that do not estimate rates report
// NaNRates.
type Rates struct {
	FPRate float64
	FNRate float64
}

// NaNRates is the "not estimated" value.
func NaNRates() Rates {
	return Rates{FPRate: math.NaN(), FNRate: math.NaN()}
}

// Estimated reports whether both rates are numbers.
func (r Rates) Estimated() bool {
	return !math.IsNaN(r.FPRate) && !math.IsNaN(r.FNRate)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Measure compares g against reference. Only reference edges whose endpoints
// are both nodes of g count as real; the negative space is every other
// unordered pair of g's nodes.
func Measure(g, reference *graph.Graph) Confusion {
	n := g.NumNodes()
	all := (n*n - n) / 2

	real, tp := 0, 0
	for _, k := range reference.EdgeKeys() {
		if !g.ContainsBoth(k) {
			continue
		}
		real++
		if g.HasEdge(k) {
			tp++
		}
	}
	return confusion(all, real, g.NumEdges(), tp)
}

// MeasureAgainstSet compares g against a reference edge set.
func MeasureAgainstSet(g *graph.Graph, reference graph.EdgeSet) Confusion {
	n := g.NumNodes()
	all := (n*n - n) / 2

	real, tp := 0, 0
	for k := range reference {
		if !g.ContainsBoth(k) {
			continue
		}
		real++
		if g.HasEdge(k) {
			tp++
		}
	}
	return confusion(all, real, g.NumEdges(), tp)
}

// RatesAll measures every graph against reference and returns its error
// rates, keyed by graph name.
func RatesAll(graphs []*graph.Graph, reference *graph.Graph) map[string]Rates {
	out := make(map[string]Rates, len(graphs))
	for _, g := range graphs {
		out[g.Name()] = Measure(g, reference).Rates()
	}
	return out
}

func confusion(all, real, pos, tp int) Confusion {
	nreal := all - real
	fp := pos - tp
	fn := real - tp
	tn := nreal - fp
	return Confusion{
		TP:     tp,
		FP:     fp,
		TN:     tn,
		FN:     fn,
		FPRate: ratio(fp, nreal),
		FNRate: ratio(fn, real),
	}
}
