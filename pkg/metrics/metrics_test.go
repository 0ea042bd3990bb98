package metrics

import (
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// the registry plugs into the executor and the integration methods
var (
	_ workflow.Metrics     = (*Registry)(nil)
	_ integration.Observer = (*Registry)(nil)
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.ReplicatesTotal == nil {
		t.Error("ReplicatesTotal not initialized")
	}
	if r.ChainCycles == nil {
		t.Error("ChainCycles not initialized")
	}
	if r.GraphAnomaliesTotal == nil {
		t.Error("GraphAnomaliesTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r1 := DefaultRegistry()
	r2 := DefaultRegistry()

	if r1 != r2 {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestReplicateFinished(t *testing.T) {
	r := NewRegistry()

	r.ReplicateFinished("ok", 100*time.Millisecond)
	r.ReplicateFinished("ok", 200*time.Millisecond)
	r.ReplicateFinished("error", 50*time.Millisecond)

	ok, err := r.ReplicatesTotal.GetMetricWithLabelValues("ok")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if v := counterValue(t, ok); v != 2 {
		t.Errorf("ok counter = %v, want 2", v)
	}
	failed, _ := r.ReplicatesTotal.GetMetricWithLabelValues("error")
	if v := counterValue(t, failed); v != 1 {
		t.Errorf("error counter = %v, want 1", v)
	}

	var metric dto.Metric
	if err := r.ReplicateDuration.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("Sample count = %v, want 3", metric.Histogram.GetSampleCount())
	}
	sum := metric.Histogram.GetSampleSum()
	if sum < 0.34 || sum > 0.36 {
		t.Errorf("Sample sum = %v, want ~0.35", sum)
	}
}

func TestSlotsInUse(t *testing.T) {
	r := NewRegistry()
	r.SlotsInUse(3)
	r.SlotsInUse(1)
	if v := gaugeValue(t, r.SlotsBusy); v != 1 {
		t.Errorf("slots in use = %v, want 1", v)
	}
}

func TestPointFinished(t *testing.T) {
	r := NewRegistry()

	r.PointFinished(workflow.Row{RealLoss: 0.25, NotRealLoss: 0.01, RateLoss: 0.5})
	r.PointFinished(workflow.Row{RealLoss: 0.125, NotRealLoss: 0.02, RateLoss: math.NaN()})

	if v := counterValue(t, r.SweepPointsTotal); v != 2 {
		t.Errorf("sweep points = %v, want 2", v)
	}
	if v := gaugeValue(t, r.LastRealLoss); v != 0.125 {
		t.Errorf("last real loss = %v, want 0.125", v)
	}
	if v := gaugeValue(t, r.LastNotRealLoss); v != 0.02 {
		t.Errorf("last not-real loss = %v, want 0.02", v)
	}
	// NaN keeps the previous value
	if v := gaugeValue(t, r.LastRateLoss); v != 0.5 {
		t.Errorf("last rate loss = %v, want 0.5", v)
	}
}

func TestChainFinished(t *testing.T) {
	r := NewRegistry()

	r.ChainFinished("mcmcEBM", 1200, 300, 4)
	r.ChainFinished("mcmcEBM", 800, 200, 2)

	finished, _ := r.ChainsFinished.GetMetricWithLabelValues("mcmcEBM")
	if v := counterValue(t, finished); v != 2 {
		t.Errorf("chains finished = %v, want 2", v)
	}

	cycles, err := r.ChainCycles.GetMetricWithLabelValues("mcmcEBM")
	if err != nil {
		t.Fatalf("Failed to get histogram: %v", err)
	}
	var metric dto.Metric
	if err := cycles.(prometheus.Histogram).Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleSum() != 2000 {
		t.Errorf("cycle sum = %v, want 2000", metric.Histogram.GetSampleSum())
	}

	thinning, _ := r.ChainThinning.GetMetricWithLabelValues("mcmcEBM")
	if v := gaugeValue(t, thinning); v != 2 {
		t.Errorf("thinning = %v, want 2", v)
	}
}

func TestGraphAnomaly(t *testing.T) {
	r := NewRegistry()

	r.GraphAnomaly(graph.AnomalyDuplicateEdge)
	r.GraphAnomaly(graph.AnomalyDuplicateEdge)
	r.GraphAnomaly(graph.AnomalySelfLoop)

	dup, _ := r.GraphAnomaliesTotal.GetMetricWithLabelValues(string(graph.AnomalyDuplicateEdge))
	if v := counterValue(t, dup); v != 2 {
		t.Errorf("duplicate edges = %v, want 2", v)
	}
	loops, _ := r.GraphAnomaliesTotal.GetMetricWithLabelValues(string(graph.AnomalySelfLoop))
	if v := counterValue(t, loops); v != 1 {
		t.Errorf("self loops = %v, want 1", v)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics()

	if v := gaugeValue(t, r.GoRoutines); v < 1 {
		t.Errorf("goroutines = %v, want at least 1", v)
	}
	if v := gaugeValue(t, r.MemorySysBytes); v <= 0 {
		t.Errorf("memory sys bytes = %v, want > 0", v)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ReplicateFinished("ok", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`harness_replicates_total{status="ok"} 1`, "harness_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output lacks %q", want)
		}
	}
}

func TestGetPrometheusRegistry(t *testing.T) {
	r := NewRegistry()
	promRegistry := r.GetPrometheusRegistry()

	if promRegistry == nil {
		t.Fatal("GetPrometheusRegistry() returned nil")
	}

	metrics, err := promRegistry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	if len(metrics) == 0 {
		t.Error("No metrics registered")
	}

	expectedMetrics := []string{
		"harness_slots_in_use",
		"harness_sweep_points_total",
		"harness_uptime_seconds",
	}

	metricNames := make(map[string]bool)
	for _, m := range metrics {
		metricNames[m.GetName()] = true
	}

	for _, expected := range expectedMetrics {
		if !metricNames[expected] {
			t.Errorf("Expected metric %s not found", expected)
		}
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	r := NewRegistry()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				r.ReplicateFinished("ok", 10*time.Millisecond)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	counter, err := r.ReplicatesTotal.GetMetricWithLabelValues("ok")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	// 10 goroutines * 100 replicates
	if v := counterValue(t, counter); v != 1000 {
		t.Errorf("Counter = %v, want 1000", v)
	}
}

func TestMetricNaming(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics()
	promRegistry := r.GetPrometheusRegistry()

	metrics, err := promRegistry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, m := range metrics {
		name := m.GetName()
		if !strings.HasPrefix(name, "harness_") {
			t.Errorf("Metric %s does not have harness_ prefix", name)
		}
	}
}

func BenchmarkReplicateFinished(b *testing.B) {
	r := NewRegistry()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.ReplicateFinished("ok", 10*time.Millisecond)
	}
}
