package stats

import (
	"strconv"
	"strings"
	"sync"

	"github.com/dd0wney/netharness/pkg/graph"
)

// DefaultBins is the histogram resolution of the per-point distribution.
const DefaultBins = 100

// Distribution is a histogram of result-edge probabilities split by whether
// the edge is real. It has bins+1 slots so that p = 1 has its own bin.
type Distribution struct {
	Real    []int
	NotReal []int
}

// NewDistribution creates an empty histogram.
func NewDistribution(bins int) *Distribution {
	return &Distribution{
		Real:    make([]int, bins+1),
		NotReal: make([]int, bins+1),
	}
}

// Bins returns the bin count, one less than the slot count.
func (d *Distribution) Bins() int { return len(d.Real) - 1 }

// Compute fills the histogram from result against truth. True edges missing
// from result land in Real[0]; every pair absent from both lands in
// NotReal[0].
func (d *Distribution) Compute(result, truth *graph.Graph) {
	bins := float64(d.Bins())
	for _, k := range result.EdgeKeys() {
		idx := int(bins * result.MainProbability(k))
		if truth.HasEdge(k) {
			d.Real[idx]++
		} else {
			d.NotReal[idx]++
		}
	}
	missing := 0
	for _, k := range truth.EdgeKeys() {
		if !result.HasEdge(k) {
			missing++
		}
	}
	d.Real[0] += missing
	tn := truth.MaxEdges() - (result.NumEdges() + missing)
	d.NotReal[0] += tn
}

// TSV renders the histogram with header "p\treal\tnreal".
func (d *Distribution) TSV() string {
	return renderDistribution(d.Bins(), func(i int) (string, string) {
		return strconv.Itoa(d.Real[i]), strconv.Itoa(d.NotReal[i])
	})
}

// DistributionAverager averages histograms over replicates, slot by slot.
type DistributionAverager struct {
	mu      sync.Mutex
	real    []IncrementalAverage
	notReal []IncrementalAverage
}

// NewDistributionAverager creates an averager for histograms of bins bins.
func NewDistributionAverager(bins int) *DistributionAverager {
	return &DistributionAverager{
		real:    make([]IncrementalAverage, bins+1),
		notReal: make([]IncrementalAverage, bins+1),
	}
}

// Bins returns the bin count.
func (a *DistributionAverager) Bins() int { return len(a.real) - 1 }

// Update folds d in. d must have the same bin count.
func (a *DistributionAverager) Update(d *Distribution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.real {
		a.real[i].Add(float64(d.Real[i]))
		a.notReal[i].Add(float64(d.NotReal[i]))
	}
}

// TSV renders the averaged histogram.
func (a *DistributionAverager) TSV() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return renderDistribution(a.Bins(), func(i int) (string, string) {
		return formatFloat(a.real[i].Mean()), formatFloat(a.notReal[i].Mean())
	})
}

func renderDistribution(bins int, row func(int) (string, string)) string {
	var b strings.Builder
	b.WriteString("p\treal\tnreal\n")
	for i := 0; i <= bins; i++ {
		r, n := row(i)
		b.WriteString(formatFloat(float64(i) / float64(bins)))
		b.WriteByte('\t')
		b.WriteString(r)
		b.WriteByte('\t')
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
