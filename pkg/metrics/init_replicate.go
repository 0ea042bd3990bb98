package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicateMetrics() {
	r.ReplicatesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_replicates_total",
			Help: "Total number of finished replicates",
		},
		[]string{"status"},
	)

	r.ReplicateDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harness_replicate_duration_seconds",
			Help:    "Wall time of one replicate in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	r.SlotsBusy = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_slots_in_use",
			Help: "Current number of busy worker slots",
		},
	)
}
