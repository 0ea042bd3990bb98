package stats

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/dd0wney/netharness/pkg/graph"
)

func buildGraph(t *testing.T, name string, nodes []string, edges [][2]string) *graph.Graph {
	t.Helper()
	g := graph.New(name)
	for _, n := range nodes {
		g.CreateNode(n)
	}
	for _, e := range edges {
		if _, ok := g.CreateEdgeKey(graph.KeyOf(e[0], e[1])); !ok {
			t.Fatalf("failed to create edge %v", e)
		}
	}
	return g
}

func setMain(t *testing.T, g *graph.Graph, a, b string, p float64) {
	t.Helper()
	e, ok := g.Edge(graph.KeyOf(a, b))
	if !ok {
		t.Fatalf("edge %s--%s missing", a, b)
	}
	if err := g.SetProbability(e, graph.MainKey, p); err != nil {
		t.Fatalf("SetProbability: %v", err)
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var fourNodes = []string{"1", "2", "3", "4"}

// TestMeasure tests the confusion counts on the reference four-node example.
func TestMeasure(t *testing.T) {
	truth := buildGraph(t, "truth", fourNodes, [][2]string{{"1", "2"}, {"2", "4"}, {"1", "3"}, {"3", "4"}})
	test := buildGraph(t, "test", fourNodes, [][2]string{{"1", "2"}, {"2", "4"}, {"1", "3"}, {"2", "3"}, {"1", "4"}})

	c := Measure(test, truth)
	if c.TP != 3 || c.FP != 2 || c.TN != 0 || c.FN != 1 {
		t.Fatalf("confusion = %v, want TP=3 FP=2 TN=0 FN=1", c)
	}
	if !approx(c.FPRate, 1.0) {
		t.Errorf("FPRate = %v, want 1.0", c.FPRate)
	}
	if !approx(c.FNRate, 0.25) {
		t.Errorf("FNRate = %v, want 0.25", c.FNRate)
	}

	againstSet := MeasureAgainstSet(test, truth.EdgeSet())
	if againstSet != c {
		t.Errorf("MeasureAgainstSet = %v, want %v", againstSet, c)
	}
}

func TestMeasureRestrictsToSharedNodes(t *testing.T) {
	truth := buildGraph(t, "truth", []string{"1", "2", "3", "9"}, [][2]string{{"1", "2"}, {"3", "9"}})
	test := buildGraph(t, "test", []string{"1", "2", "3"}, [][2]string{{"1", "2"}})

	c := Measure(test, truth)
	if c.TP != 1 || c.FN != 0 {
		t.Errorf("edge with an endpoint outside the graph was counted: %v", c)
	}
	if c.TN != 2 {
		t.Errorf("TN = %d, want 2", c.TN)
	}
}

func TestMeasureZeroDenominators(t *testing.T) {
	empty := graph.New("empty")
	c := Measure(empty, empty)
	if c.FPRate != 0 || c.FNRate != 0 {
		t.Errorf("rates on empty graphs = %v/%v, want 0/0", c.FPRate, c.FNRate)
	}
}

func TestRatesAll(t *testing.T) {
	truth := buildGraph(t, "truth", fourNodes, [][2]string{{"1", "2"}})
	a := buildGraph(t, "a", fourNodes, [][2]string{{"1", "2"}})
	b := buildGraph(t, "b", fourNodes, nil)

	rates := RatesAll([]*graph.Graph{a, b}, truth)
	if rates["a"].FNRate != 0 || rates["b"].FNRate != 1 {
		t.Errorf("rates = %+v", rates)
	}
}

// TestIncrementalAverage tests the running mean sequence.
func TestIncrementalAverage(t *testing.T) {
	var avg IncrementalAverage
	if !math.IsNaN(avg.Mean()) {
		t.Fatalf("empty mean = %v, want NaN", avg.Mean())
	}

	inputs := []float64{1, 1, 1, 0, 0, 1, 0}
	want := []float64{1, 1, 1, 3.0 / 4, 3.0 / 5, 4.0 / 6, 4.0 / 7}
	for i, x := range inputs {
		avg.Add(x)
		if !approx(avg.Mean(), want[i]) {
			t.Errorf("after %d samples mean = %v, want %v", i+1, avg.Mean(), want[i])
		}
	}
	if avg.Count() != len(inputs) {
		t.Errorf("Count() = %d", avg.Count())
	}
	avg.Reset()
	if avg.Count() != 0 || !math.IsNaN(avg.Mean()) {
		t.Error("Reset did not empty the average")
	}
}

func TestSyncAverageConcurrent(t *testing.T) {
	var avg SyncAverage
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				avg.Add(2)
			}
		}()
	}
	wg.Wait()
	if avg.Count() != 800 || !approx(avg.Mean(), 2) {
		t.Errorf("count=%d mean=%v", avg.Count(), avg.Mean())
	}
}

func lossFixture(t *testing.T) (truth, result *graph.Graph) {
	t.Helper()
	truth = buildGraph(t, "truth", fourNodes, [][2]string{{"1", "2"}, {"2", "3"}, {"3", "4"}})
	result = buildGraph(t, "result", fourNodes, [][2]string{{"1", "2"}, {"2", "3"}, {"1", "4"}})
	setMain(t, result, "1", "2", 1)
	setMain(t, result, "2", "3", 0.5)
	setMain(t, result, "1", "4", 0.5)
	return truth, result
}

// TestComputeLoss tests real and non-real loss including a missing true edge.
func TestComputeLoss(t *testing.T) {
	truth, result := lossFixture(t)
	l := ComputeLoss(truth, result)
	if !approx(l.Real, math.Sqrt(1.25/3)) {
		t.Errorf("Real = %v, want %v", l.Real, math.Sqrt(1.25/3))
	}
	if !approx(l.NotReal, math.Sqrt(0.25/3)) {
		t.Errorf("NotReal = %v, want %v", l.NotReal, math.Sqrt(0.25/3))
	}

	var avg LossAverager
	avg.Update(truth, result)
	avg.Add(Loss{Real: 0, NotReal: 0})
	m := avg.Mean()
	if !approx(m.Real, math.Sqrt(1.25/3)/2) {
		t.Errorf("averaged Real = %v", m.Real)
	}
}

func TestComputeLossEmptyTruth(t *testing.T) {
	truth := buildGraph(t, "truth", []string{"1"}, nil)
	result := buildGraph(t, "result", []string{"1"}, nil)
	l := ComputeLoss(truth, result)
	if l.Real != 0 || l.NotReal != 0 {
		t.Errorf("loss = %+v, want zeros", l)
	}
}

func TestRateLoss(t *testing.T) {
	trueRates := map[string]Rates{
		"a": {FPRate: 0.1, FNRate: 0.2},
		"b": {FPRate: 0.0, FNRate: 0.0},
	}
	est := map[string]Rates{
		"a": {FPRate: 0.1, FNRate: 0.2},
		"b": {FPRate: 0.3, FNRate: 0.4},
	}
	want := math.Sqrt((0.09 + 0.16) / 4)
	if got := RateLoss(trueRates, est); !approx(got, want) {
		t.Errorf("RateLoss = %v, want %v", got, want)
	}

	if got := RateLoss(trueRates, map[string]Rates{"a": NaNRates(), "b": NaNRates()}); !math.IsNaN(got) {
		t.Errorf("RateLoss without estimates = %v, want NaN", got)
	}

	var avg RateLossAverager
	avg.Update(trueRates, est)
	if !approx(avg.Mean(), want) {
		t.Errorf("averaged = %v", avg.Mean())
	}
}

// TestDistribution tests bin placement of real, non-real and missing edges.
func TestDistribution(t *testing.T) {
	truth, result := lossFixture(t)
	d := NewDistribution(10)
	d.Compute(result, truth)

	if d.Real[10] != 1 || d.Real[5] != 1 || d.Real[0] != 1 {
		t.Errorf("Real = %v", d.Real)
	}
	if d.NotReal[5] != 1 || d.NotReal[0] != 2 {
		t.Errorf("NotReal = %v", d.NotReal)
	}

	tsv := d.TSV()
	lines := strings.Split(strings.TrimSpace(tsv), "\n")
	if lines[0] != "p\treal\tnreal" || len(lines) != 12 {
		t.Fatalf("unexpected TSV:\n%s", tsv)
	}
	if lines[11] != "1\t1\t0" {
		t.Errorf("last row = %q", lines[11])
	}

	avg := NewDistributionAverager(10)
	avg.Update(d)
	avg.Update(NewDistribution(10))
	if !strings.Contains(avg.TSV(), "0.5\t0.5\t0.5\n") {
		t.Errorf("averaged TSV missing half-counts:\n%s", avg.TSV())
	}
}

// TestROC tests both operating points of a two-step curve.
func TestROC(t *testing.T) {
	truth, result := lossFixture(t)
	pts := ROC(result, truth, 0.5)
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}
	want := []ROCPoint{
		{Threshold: 0, FPR: 1.0 / 3, TPR: 2.0 / 3},
		{Threshold: 0.5, FPR: 0, TPR: 1.0 / 3},
	}
	for i := range want {
		if !approx(pts[i].FPR, want[i].FPR) || !approx(pts[i].TPR, want[i].TPR) || pts[i].Threshold != want[i].Threshold {
			t.Errorf("point %d = %+v, want %+v", i, pts[i], want[i])
		}
	}

	if ROC(result, truth, 0) != nil {
		t.Error("non-positive step should yield no curve")
	}

	avg := NewROCAverager(0.5)
	avg.Update(result, truth)
	avg.Add([]ROCPoint{{FPR: 1.0 / 3, TPR: 0}, {FPR: 0, TPR: 1.0 / 3}})
	curve := avg.Curve()
	if !approx(curve[0].TPR, 1.0/3) {
		t.Errorf("averaged TPR = %v", curve[0].TPR)
	}
	if !strings.HasPrefix(avg.TSV(), "threshold\tfpr\ttpr\n") {
		t.Error("ROC TSV header missing")
	}
}

type memWriter struct {
	mu    sync.Mutex
	files map[string]string
}

func (m *memWriter) WriteResults(name, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]string{}
	}
	m.files[name] += content
	return nil
}

func TestDegreeSamplerOnce(t *testing.T) {
	w := &memWriter{}
	s := NewDegreeSampler(w)
	star := buildGraph(t, "star", fourNodes, [][2]string{{"1", "2"}, {"1", "3"}, {"1", "4"}})
	other := buildGraph(t, "other", fourNodes, nil)

	if err := s.Sample(star); err != nil {
		t.Fatal(err)
	}
	s.Sample(other)
	if got := w.files[DegreesFile]; got != "3\n1\n1\n1\n" {
		t.Errorf("degrees.tsv = %q", got)
	}
	if !s.Samples(0, 0) || s.Samples(0, 1) || s.Samples(1, 0) {
		t.Error("only replicate 0 of point 0 should be sampled")
	}
}

func TestSummarize(t *testing.T) {
	g := buildGraph(t, "g", []string{"1", "2", "3", "4", "5"}, [][2]string{{"1", "2"}, {"2", "3"}, {"4", "5"}})
	top := Summarize(g)
	if top.Components != 2 || top.Largest != 3 {
		t.Errorf("components=%d largest=%d", top.Components, top.Largest)
	}
	if top.MaxDegree != 2 || !approx(top.MeanDegree, 6.0/5) {
		t.Errorf("degrees max=%d mean=%v", top.MaxDegree, top.MeanDegree)
	}
}
