package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGraphMetrics() {
	r.GraphAnomaliesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "harness_graph_anomalies_total",
			Help: "Total number of graph consistency anomalies degraded to no-ops",
		},
		[]string{"kind"},
	)
}
