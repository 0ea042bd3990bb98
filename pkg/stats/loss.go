package stats

import (
	"math"
	"sync"

	"github.com/dd0wney/netharness/pkg/graph"
)

// Loss is the quadratic loss of one integrated graph against the truth.
type Loss struct {
	Real    float64 // over true edges, missing edges count as p = 0
	NotReal float64 // over every pair that is not a true edge
}

// ComputeLoss scores result against truth by the MainProbability of every
// result edge.
func ComputeLoss(truth, result *graph.Graph) Loss {
	var realSum, nrealSum float64
	for _, k := range result.EdgeKeys() {
		p := result.MainProbability(k)
		if truth.HasEdge(k) {
			d := 1 - p
			realSum += d * d
		} else {
			nrealSum += p * p
		}
	}
	missing := 0
	for _, k := range truth.EdgeKeys() {
		if !result.HasEdge(k) {
			missing++
		}
	}
	realSum += float64(missing)

	trueEdges := truth.NumEdges()
	nrealAll := truth.MaxEdges() - trueEdges

	var l Loss
	if trueEdges > 0 {
		l.Real = math.Sqrt(realSum / float64(trueEdges))
	}
	if nrealAll > 0 {
		l.NotReal = math.Sqrt(nrealSum / float64(nrealAll))
	}
	return l
}

// LossAverager averages losses over the replicates of a sweep point.
type LossAverager struct {
	mu      sync.Mutex
	real    IncrementalAverage
	notReal IncrementalAverage
}

// Update scores result against truth and folds the loss in.
func (a *LossAverager) Update(truth, result *graph.Graph) Loss {
	l := ComputeLoss(truth, result)
	a.Add(l)
	return l
}

// Add folds a precomputed loss in.
func (a *LossAverager) Add(l Loss) {
	a.mu.Lock()
	a.real.Add(l.Real)
	a.notReal.Add(l.NotReal)
	a.mu.Unlock()
}

// Mean returns the averaged loss; NaN fields when nothing was added.
func (a *LossAverager) Mean() Loss {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Loss{Real: a.real.Mean(), NotReal: a.notReal.Mean()}
}

// RateLoss is the root mean square difference between true and estimated
// error rates over all sources. A source without an estimate contributes NaN.
func RateLoss(trueRates, estimated map[string]Rates) float64 {
	if len(trueRates) == 0 {
		return math.NaN()
	}
	var sum float64
	for name, tr := range trueRates {
		est, ok := estimated[name]
		if !ok {
			est = NaNRates()
		}
		dfp := tr.FPRate - est.FPRate
		dfn := tr.FNRate - est.FNRate
		sum += dfp*dfp + dfn*dfn
	}
	return math.Sqrt(sum / float64(2*len(trueRates)))
}

// RateLossAverager averages RateLoss over replicates.
type RateLossAverager struct {
	avg SyncAverage
}

// Update computes the replicate's rate loss and folds it in.
func (a *RateLossAverager) Update(trueRates, estimated map[string]Rates) float64 {
	l := RateLoss(trueRates, estimated)
	a.avg.Add(l)
	return l
}

// Mean returns the averaged rate loss.
func (a *RateLossAverager) Mean() float64 {
	return a.avg.Mean()
}
