package stats

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dd0wney/netharness/pkg/graph"
)

// DefaultROCStep is the threshold increment of the per-point ROC curve.
const DefaultROCStep = 0.01

// ROCPoint is one operating point: an edge is called when its probability
// exceeds Threshold.
type ROCPoint struct {
	Threshold float64
	FPR       float64
	TPR       float64
}

// ROC sweeps thresholds 0, step, 2·step, ... below 1 over result and returns
// the true and false positive rates at each. It sorts the result edges once
// and advances two cursors, so the cost is dominated by the sort.
func ROC(result, truth *graph.Graph, step float64) []ROCPoint {
	if !(step > 0) {
		return nil
	}
	all := truth.MaxEdges()
	trueEdges := truth.NumEdges()

	var reals, nreals []float64
	tp := 0
	for _, k := range result.EdgeKeys() {
		p := result.MainProbability(k)
		if truth.HasEdge(k) {
			reals = append(reals, p)
			tp++
		} else {
			nreals = append(nreals, p)
		}
	}
	slices.Sort(reals)
	slices.Sort(nreals)

	baseFN := trueEdges - tp
	baseTN := (all - result.NumEdges()) - baseFN
	nrealAll := all - trueEdges

	steps := int(1/step + 0.5)
	points := make([]ROCPoint, 0, steps)
	fn, tn := 0, 0
	for i := 0; ; i++ {
		t := float64(i) * step
		if t >= 1 {
			break
		}
		for fn < len(reals) && reals[fn] <= t {
			fn++
		}
		for tn < len(nreals) && nreals[tn] <= t {
			tn++
		}
		pt := ROCPoint{Threshold: t}
		if trueEdges > 0 {
			pt.TPR = 1 - float64(fn+baseFN)/float64(trueEdges)
		}
		if nrealAll > 0 {
			pt.FPR = 1 - float64(tn+baseTN)/float64(nrealAll)
		}
		points = append(points, pt)
	}
	return points
}

// ROCAverager averages ROC curves of equal step over replicates.
type ROCAverager struct {
	mu   sync.Mutex
	step float64
	fpr  []IncrementalAverage
	tpr  []IncrementalAverage
}

// NewROCAverager creates an averager for curves with the given step.
func NewROCAverager(step float64) *ROCAverager {
	return &ROCAverager{step: step}
}

// Step returns the threshold increment.
func (a *ROCAverager) Step() float64 { return a.step }

// Update computes the replicate's curve and folds it in.
func (a *ROCAverager) Update(result, truth *graph.Graph) {
	a.Add(ROC(result, truth, a.step))
}

// Add folds a precomputed curve in.
func (a *ROCAverager) Add(points []ROCPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.fpr) < len(points) {
		a.fpr = append(a.fpr, IncrementalAverage{})
		a.tpr = append(a.tpr, IncrementalAverage{})
	}
	for i, p := range points {
		a.fpr[i].Add(p.FPR)
		a.tpr[i].Add(p.TPR)
	}
}

// Curve returns the averaged points.
func (a *ROCAverager) Curve() []ROCPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ROCPoint, len(a.fpr))
	for i := range a.fpr {
		out[i] = ROCPoint{
			Threshold: float64(i) * a.step,
			FPR:       a.fpr[i].Mean(),
			TPR:       a.tpr[i].Mean(),
		}
	}
	return out
}

// TSV renders the averaged curve with header "threshold\tfpr\ttpr".
func (a *ROCAverager) TSV() string {
	var b strings.Builder
	b.WriteString("threshold\tfpr\ttpr\n")
	for _, p := range a.Curve() {
		fmt.Fprintf(&b, "%.8f\t%.8f\t%.8f\n", p.Threshold, p.FPR, p.TPR)
	}
	return b.String()
}
