package metrics

import (
	"math"
	"runtime"
	"time"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/workflow"
)

// ReplicateFinished records a replicate with its outcome and duration
func (r *Registry) ReplicateFinished(status string, d time.Duration) {
	r.ReplicatesTotal.WithLabelValues(status).Inc()
	r.ReplicateDuration.Observe(d.Seconds())
}

// SlotsInUse sets the number of busy slots
func (r *Registry) SlotsInUse(n int) {
	r.SlotsBusy.Set(float64(n))
}

// PointFinished records an evaluated sweep point. NaN losses leave the
// previous gauge value in place.
func (r *Registry) PointFinished(row workflow.Row) {
	r.SweepPointsTotal.Inc()
	setFinite(r.LastRealLoss, row.RealLoss)
	setFinite(r.LastNotRealLoss, row.NotRealLoss)
	setFinite(r.LastRateLoss, row.RateLoss)
}

// GraphAnomaly counts a graph consistency anomaly
func (r *Registry) GraphAnomaly(kind graph.AnomalyKind) {
	r.GraphAnomaliesTotal.WithLabelValues(string(kind)).Inc()
}

// ChainFinished records the shape of a finished sampling chain
func (r *Registry) ChainFinished(method string, cycles, burnIn, thinning int) {
	r.ChainsFinished.WithLabelValues(method).Inc()
	r.ChainCycles.WithLabelValues(method).Observe(float64(cycles))
	r.ChainBurnIn.WithLabelValues(method).Observe(float64(burnIn))
	r.ChainThinning.WithLabelValues(method).Set(float64(thinning))
}

// UpdateSystemMetrics refreshes uptime, goroutine and memory gauges
func (r *Registry) UpdateSystemMetrics() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	r.UptimeSeconds.Set(time.Since(r.started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(ms.Alloc))
	r.MemorySysBytes.Set(float64(ms.Sys))
}

type gauge interface{ Set(float64) }

func setFinite(g gauge, v float64) {
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		g.Set(v)
	}
}
