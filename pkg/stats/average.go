package stats

import (
	"math"
	"sync"
)

// IncrementalAverage keeps a running mean in O(1) per update. The zero value
// is ready to use; its mean is NaN until the first Add.
type IncrementalAverage struct {
	mean float64
	n    int
}

// Add folds x into the mean.
func (a *IncrementalAverage) Add(x float64) {
	a.n++
	a.mean += (x - a.mean) / float64(a.n)
}

// Mean returns the current mean, NaN when empty.
func (a *IncrementalAverage) Mean() float64 {
	if a.n == 0 {
		return math.NaN()
	}
	return a.mean
}

// Count returns the number of samples folded in.
func (a *IncrementalAverage) Count() int { return a.n }

// Reset empties the average.
func (a *IncrementalAverage) Reset() {
	a.mean, a.n = 0, 0
}

// SyncAverage is an IncrementalAverage safe for concurrent use.
type SyncAverage struct {
	mu  sync.Mutex
	avg IncrementalAverage
}

// Add folds x into the mean.
func (a *SyncAverage) Add(x float64) {
	a.mu.Lock()
	a.avg.Add(x)
	a.mu.Unlock()
}

// Mean returns the current mean, NaN when empty.
func (a *SyncAverage) Mean() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avg.Mean()
}

// Count returns the number of samples folded in.
func (a *SyncAverage) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avg.Count()
}
