package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIntegrationMetrics() {
	r.ChainsFinished = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_chains_finished_total",
			Help: "Total number of finished sampling chains",
		},
		[]string{"method"},
	)

	r.ChainCycles = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harness_chain_cycles",
			Help:    "Cycles run by a sampling chain",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		},
		[]string{"method"},
	)

	r.ChainBurnIn = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harness_chain_burn_in_cycles",
			Help:    "Cycles a sampling chain spent burning in",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		},
		[]string{"method"},
	)

	r.ChainThinning = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harness_chain_thinning",
			Help: "Thinning factor of the most recent sampling chain",
		},
		[]string{"method"},
	)
}
