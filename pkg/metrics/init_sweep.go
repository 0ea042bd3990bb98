package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSweepMetrics() {
	r.SweepPointsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "harness_sweep_points_total",
			Help: "Total number of evaluated sweep points",
		},
	)

	r.LastRealLoss = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_last_real_loss",
			Help: "Real loss of the most recent sweep point",
		},
	)

	r.LastNotRealLoss = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_last_not_real_loss",
			Help: "Not-real loss of the most recent sweep point",
		},
	)

	r.LastRateLoss = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "harness_last_rate_loss",
			Help: "Error rate loss of the most recent sweep point",
		},
	)
}
