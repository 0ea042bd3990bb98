package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics of a harness process
type Registry struct {
	// Replicate Metrics
	ReplicatesTotal   *prometheus.CounterVec
	ReplicateDuration prometheus.Histogram
	SlotsBusy         prometheus.Gauge

	// Sweep Metrics
	SweepPointsTotal prometheus.Counter
	LastRealLoss     prometheus.Gauge
	LastNotRealLoss  prometheus.Gauge
	LastRateLoss     prometheus.Gauge

	// Integration Metrics
	ChainsFinished *prometheus.CounterVec
	ChainCycles    *prometheus.HistogramVec
	ChainBurnIn    *prometheus.HistogramVec
	ChainThinning  *prometheus.GaugeVec

	// Graph Metrics
	GraphAnomaliesTotal *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	started  time.Time
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		started:  time.Now(),
	}

	r.initReplicateMetrics()
	r.initSweepMetrics()
	r.initIntegrationMetrics()
	r.initGraphMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format. System
// metrics are refreshed on every scrape.
func (r *Registry) Handler() http.Handler {
	h := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.UpdateSystemMetrics()
		h.ServeHTTP(w, req)
	})
}
