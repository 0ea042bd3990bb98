package integration

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// burnIn watches the chain of sampled error rates and declares burn-in over
// once every rate series has decorrelated at the configured lag over the most
// recent window of samples.
type burnIn struct {
	window    int
	lag       int
	threshold float64
	series    [][]float64 // fpr and fnr per source, interleaved
	samples   int
}

func newBurnIn(window, sources, lag int, threshold float64) *burnIn {
	series := make([][]float64, 2*sources)
	for i := range series {
		series[i] = make([]float64, 0, 2*window)
	}
	return &burnIn{window: window, lag: lag, threshold: threshold, series: series}
}

// record appends one cycle of rates and reports whether burn-in is still
// running.
func (b *burnIn) record(rates []ErrorRates) bool {
	for i, r := range rates {
		b.push(2*i, r.FPR)
		b.push(2*i+1, r.FNR)
	}
	b.samples++
	if b.samples < b.window {
		return true
	}
	return b.maxAutocorrelation(b.lag) >= b.threshold
}

func (b *burnIn) push(i int, x float64) {
	s := append(b.series[i], x)
	if len(s) >= 2*b.window {
		s = append(s[:0], s[len(s)-b.window:]...)
	}
	b.series[i] = s
}

// recent returns the last window samples of series i.
func (b *burnIn) recent(i int) []float64 {
	s := b.series[i]
	if len(s) > b.window {
		return s[len(s)-b.window:]
	}
	return s
}

func (b *burnIn) maxAutocorrelation(lag int) float64 {
	worst := 0.0
	for i := range b.series {
		if ac := math.Abs(autocorrelation(b.recent(i), lag)); ac > worst {
			worst = ac
		}
	}
	return worst
}

// thinning returns the smallest lag in 1..max at which every series is below
// the autocorrelation threshold, or max when none is.
func (b *burnIn) thinning(max int) int {
	for k := 1; k < max; k++ {
		if b.maxAutocorrelation(k) < b.threshold {
			return k
		}
	}
	return max
}

// autocorrelation is the Pearson correlation of x with itself shifted by lag.
// Constant or too short series have no measurable correlation and yield 0.
func autocorrelation(x []float64, lag int) float64 {
	n := len(x)
	if lag <= 0 || n-lag < 2 {
		return 0
	}
	c := stat.Correlation(x[:n-lag], x[lag:], nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}
