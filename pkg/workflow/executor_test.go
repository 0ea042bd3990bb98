package workflow

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/netharness/pkg/experiments"
	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink keeps result files and streams in memory.
type memSink struct {
	mu      sync.Mutex
	files   map[string]string
	streams map[string]*strings.Builder
	closed  map[string]bool
}

func newMemSink() *memSink {
	return &memSink{
		files:   make(map[string]string),
		streams: make(map[string]*strings.Builder),
		closed:  make(map[string]bool),
	}
}

func (s *memSink) WriteResults(name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = content
	return nil
}

func (s *memSink) WriteStream(name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.streams[name]
	if !ok {
		b = &strings.Builder{}
		s.streams[name] = b
	}
	b.WriteString(content)
	return nil
}

func (s *memSink) CloseStream(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[name] = true
	return nil
}

func (s *memSink) file(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.files[name]
	return c, ok
}

// recordingMetrics counts what the executor reports.
type recordingMetrics struct {
	mu        sync.Mutex
	finished  map[string]int
	points    int
	maxInUse  int
	anomalies int
}

func (m *recordingMetrics) ReplicateFinished(status string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finished == nil {
		m.finished = make(map[string]int)
	}
	m.finished[status]++
}

func (m *recordingMetrics) SlotsInUse(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.maxInUse {
		m.maxInUse = n
	}
}

func (m *recordingMetrics) PointFinished(Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points++
}

func (m *recordingMetrics) GraphAnomaly(graph.AnomalyKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies++
}

// memCheckpoints is an in-memory Checkpoints.
type memCheckpoints struct {
	mu    sync.Mutex
	rows  map[string]Row
	loads int
}

func checkpointKey(digest string, point int) string {
	return digest + "/" + FormatValue(float64(point))
}

func (c *memCheckpoints) Load(_ context.Context, digest string, point int) (Row, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	r, ok := c.rows[checkpointKey(digest, point)]
	return r, ok, nil
}

func (c *memCheckpoints) Save(_ context.Context, digest string, row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows == nil {
		c.rows = make(map[string]Row)
	}
	c.rows[checkpointKey(digest, row.Point)] = row
	return nil
}

type rowLog struct {
	rows []Row
}

func (l *rowLog) RecordRow(_ context.Context, variables []string, row Row) error {
	l.rows = append(l.rows, row)
	return nil
}

// sweepProtocol varies the sensitivity of two fast experiments over a small
// scale-free graph and integrates them with the naive EBM.
func sweepProtocol(t *testing.T) *Protocol {
	t.Helper()
	sens, err := NewIncremental("sens", 0.5, 0.7, 0.2)
	require.NoError(t, err)
	return &Protocol{
		Name:                "sweep",
		GraphImplementation: "mapgraph",
		Population: Extension{ID: "scalefree", Properties: NewProperties().
			Set("seed", 3).
			Set("numNodes", 30)},
		Integration: Extension{ID: "naiveEBM", Properties: NewProperties().Set("iterations", 20)},
		Experiments: []ExperimentSpec{{
			Extension: Extension{ID: "fastexperiment", Properties: NewProperties().
				SetVariable("sensitivity", sens).
				Set("fpr", 0.05)},
			Replicas: Replicas{Count: 2},
		}},
		Variables:     []Variable{sens},
		CycleReplicas: 6,
		Seed:          42,
		Digest:        "sweep-digest",
	}
}

func newTestExecutor(t *testing.T, slots int, opts ...Option) *Executor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Slots = slots
	cfg.PollInterval = 5 * time.Millisecond
	e, err := NewExecutor(cfg, opts...)
	require.NoError(t, err)
	return e
}

// TestExecutorSweep tests a two-point sweep end to end.
func TestExecutorSweep(t *testing.T) {
	sink := newMemSink()
	metrics := &recordingMetrics{}
	recorder := &rowLog{}
	var progress []Progress
	e := newTestExecutor(t, 2,
		WithSink(sink),
		WithMetrics(metrics),
		WithRecorder(recorder),
		WithProgress(func(p Progress) { progress = append(progress, p) }))

	report, err := e.Run(context.Background(), sweepProtocol(t))
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, []string{"sens"}, report.Variables)
	assert.Zero(t, report.Restored)

	for i, row := range report.Rows {
		assert.Equal(t, i, row.Point)
		assert.Equal(t, 6, row.Replicates)
		assert.GreaterOrEqual(t, row.RealLoss, 0.0)
		assert.GreaterOrEqual(t, row.NotRealLoss, 0.0)
		assert.False(t, row.Restored)
	}
	assert.InDelta(t, 0.5, report.Rows[0].Values[0], 1e-12)
	assert.InDelta(t, 0.7, report.Rows[1].Values[0], 1e-12)

	loss, ok := sink.file(LossFile)
	require.True(t, ok)
	lines := strings.Split(strings.TrimSuffix(loss, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "sens\tReal loss\tNot real loss\tRate loss", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0.5\t"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "0.7\t"), lines[2])
	assert.Equal(t, report.LossTable(), loss)

	for _, name := range []string{"probDistr_sens=0.5.tsv", "roc_sens=0.5.tsv", "probDistr_sens=0.7.tsv", "roc_sens=0.7.tsv", "degrees.tsv"} {
		_, ok := sink.file(name)
		assert.True(t, ok, "missing %s", name)
	}

	assert.Equal(t, 12, metrics.finished[statusOK])
	assert.Equal(t, 2, metrics.points)
	assert.LessOrEqual(t, metrics.maxInUse, 2)
	assert.Len(t, recorder.rows, 2)

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	require.NotNil(t, last.Row)
	assert.Equal(t, 1, last.Point)
	assert.Equal(t, 2, last.Points)
	assert.Equal(t, "sens=0.7", last.Variables)
}

// TestExecutorSlotsIndependent tests that the slot count does not change the
// results of a seeded sweep.
func TestExecutorSlotsIndependent(t *testing.T) {
	serial, err := newTestExecutor(t, 1).Run(context.Background(), sweepProtocol(t))
	require.NoError(t, err)
	parallel, err := newTestExecutor(t, 8).Run(context.Background(), sweepProtocol(t))
	require.NoError(t, err)

	require.Len(t, parallel.Rows, len(serial.Rows))
	for i := range serial.Rows {
		s, p := serial.Rows[i], parallel.Rows[i]
		assert.InDelta(t, s.RealLoss, p.RealLoss, 1e-9, "point %d real loss", i)
		assert.InDelta(t, s.NotRealLoss, p.NotRealLoss, 1e-9, "point %d not-real loss", i)
		assert.InDelta(t, s.RateLoss, p.RateLoss, 1e-9, "point %d rate loss", i)
	}
}

// TestExecutorDegreeSample tests that degrees.tsv always holds the true graph
// of replicate 0 of point 0, whatever the slot count.
func TestExecutorDegreeSample(t *testing.T) {
	truth := graph.New("truth")
	require.NoError(t, (&graph.ScaleFree{Seed: 3, NumNodes: 30}).Populate(truth, replicateRand(42, 0, 0)))
	var want strings.Builder
	for _, n := range truth.Nodes() {
		want.WriteString(strconv.Itoa(truth.Degree(n)) + "\n")
	}

	for _, slots := range []int{1, 8} {
		sink := newMemSink()
		var logs bytes.Buffer
		e := newTestExecutor(t, slots, WithSink(sink), WithLogger(logging.NewJSONLogger(&logs, logging.InfoLevel)))
		_, err := e.Run(context.Background(), sweepProtocol(t))
		require.NoError(t, err)

		got, ok := sink.file("degrees.tsv")
		require.True(t, ok, "slots=%d", slots)
		assert.Equal(t, want.String(), got, "slots=%d", slots)
		assert.Equal(t, 1, strings.Count(logs.String(), "true topology sampled"), "slots=%d", slots)
		assert.Contains(t, logs.String(), `"largest_component":30`, "slots=%d", slots)
	}
}

// TestExecutorSeedMatters tests that a different seed gives different losses.
func TestExecutorSeedMatters(t *testing.T) {
	a, err := newTestExecutor(t, 4).Run(context.Background(), sweepProtocol(t))
	require.NoError(t, err)
	p := sweepProtocol(t)
	p.Seed = 43
	b, err := newTestExecutor(t, 4).Run(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Rows[0].RealLoss, b.Rows[0].RealLoss)
}

// collisionProtocol observes a complete triangle with a high false-positive
// rate, which cannot find a free pair to inject.
func collisionProtocol(t *testing.T, fpr Variable) *Protocol {
	t.Helper()
	props := NewProperties().Set("sensitivity", 1.0)
	if fpr != nil {
		props.SetVariable("fpr", fpr)
	} else {
		props.Set("fpr", 0.9)
	}
	p := &Protocol{
		Name:                "collision",
		GraphImplementation: "mapgraph",
		Population: Extension{ID: "scalefree", Properties: NewProperties().
			Set("seed", 3).
			Set("numNodes", 3)},
		Integration: Extension{ID: "empirical"},
		Experiments: []ExperimentSpec{{
			Extension: Extension{ID: "fastexperiment", Properties: props},
			Replicas:  Replicas{Count: 1},
		}},
		CycleReplicas: 4,
		Seed:          1,
	}
	if fpr != nil {
		p.Variables = []Variable{fpr}
	}
	return p
}

// TestExecutorReplicateFailure tests that a failing replicate aborts the run
// with its cause.
func TestExecutorReplicateFailure(t *testing.T) {
	sink := newMemSink()
	metrics := &recordingMetrics{}
	report, err := newTestExecutor(t, 2, WithSink(sink), WithMetrics(metrics)).
		Run(context.Background(), collisionProtocol(t, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, experiments.ErrSamplingCollision), "got %v", err)
	assert.True(t, IsReplicateError(err))

	var re *ReplicateError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 0, re.Point)
	assert.NotEmpty(t, re.Replicate)

	require.NotNil(t, report)
	assert.Empty(t, report.Rows)
	loss, ok := sink.file(LossFile)
	require.True(t, ok)
	assert.Equal(t, "Real loss\tNot real loss\tRate loss\n", loss)
	assert.Positive(t, metrics.finished[statusError])
}

// TestExecutorPartialSweep tests that rows finished before a failure are kept.
func TestExecutorPartialSweep(t *testing.T) {
	fpr, err := NewIncremental("fpr", 0, 0.9, 0.9)
	require.NoError(t, err)
	sink := newMemSink()
	report, err := newTestExecutor(t, 2, WithSink(sink)).
		Run(context.Background(), collisionProtocol(t, fpr))
	require.Error(t, err)
	assert.True(t, errors.Is(err, experiments.ErrSamplingCollision))

	var re *ReplicateError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 1, re.Point)
	assert.Equal(t, "fpr=0.9", re.Variables)

	require.Len(t, report.Rows, 1)
	assert.Equal(t, 0.0, report.Rows[0].Values[0])
	loss, _ := sink.file(LossFile)
	lines := strings.Split(strings.TrimSuffix(loss, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "0\t"), lines[1])
}

// TestExecutorCheckpoints tests that a second run restores every point.
func TestExecutorCheckpoints(t *testing.T) {
	cp := &memCheckpoints{}
	first, err := newTestExecutor(t, 2, WithCheckpoints(cp)).Run(context.Background(), sweepProtocol(t))
	require.NoError(t, err)
	require.Len(t, cp.rows, 2)

	metrics := &recordingMetrics{}
	second, err := newTestExecutor(t, 2, WithCheckpoints(cp), WithMetrics(metrics)).Run(context.Background(), sweepProtocol(t))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Restored)
	assert.Empty(t, metrics.finished, "no replicate should run")
	for i := range first.Rows {
		assert.True(t, second.Rows[i].Restored)
		assert.Equal(t, first.Rows[i].RealLoss, second.Rows[i].RealLoss)
	}

	// another digest shares nothing
	p := sweepProtocol(t)
	p.Digest = "other"
	third, err := newTestExecutor(t, 2, WithCheckpoints(cp)).Run(context.Background(), p)
	require.NoError(t, err)
	assert.Zero(t, third.Restored)
}

// TestExecutorCancelled tests that a cancelled context stops the sweep.
func TestExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := newTestExecutor(t, 2).Run(ctx, sweepProtocol(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, report.Rows)
}

// TestExecutorUnknownExtension tests that registry errors surface before any
// replicate runs.
func TestExecutorUnknownExtension(t *testing.T) {
	p := sweepProtocol(t)
	p.Integration = Extension{ID: "nosuchmethod"}
	_, err := newTestExecutor(t, 1).Run(context.Background(), p)
	require.Error(t, err)
	assert.False(t, IsReplicateError(err))
	assert.Contains(t, err.Error(), "nosuchmethod")
}

// TestProtocolValidate tests structural protocol checks.
func TestProtocolValidate(t *testing.T) {
	require.NoError(t, sweepProtocol(t).Validate())

	tests := []struct {
		name   string
		mutate func(p *Protocol)
	}{
		{"no graph", func(p *Protocol) { p.GraphImplementation = "" }},
		{"no population", func(p *Protocol) { p.Population.ID = "" }},
		{"no integration", func(p *Protocol) { p.Integration.ID = "" }},
		{"no replicates", func(p *Protocol) { p.CycleReplicas = 0 }},
		{"no experiments", func(p *Protocol) { p.Experiments = nil }},
		{"untyped experiment", func(p *Protocol) { p.Experiments[0].ID = "" }},
		{"zero replicas", func(p *Protocol) { p.Experiments[0].Replicas = Replicas{} }},
		{"duplicate variable", func(p *Protocol) { p.Variables = append(p.Variables, p.Variables[0]) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sweepProtocol(t)
			tt.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

// TestProtocolSweepHelpers tests point counting and tags.
func TestProtocolSweepHelpers(t *testing.T) {
	p := sweepProtocol(t)
	reps, err := NewIncremental("reps", 1, 3, 1)
	require.NoError(t, err)
	p.Variables = append(p.Variables, reps)

	assert.Equal(t, 6, p.Points())
	assert.Equal(t, []string{"sens", "reps"}, p.VariableIDs())
	assert.Equal(t, "sens=0.5;reps=1", p.VariableTag())
	assert.False(t, p.RequiresGoldStandards())

	v, ok := p.Variable("reps")
	require.True(t, ok)
	assert.Equal(t, reps, v)

	summary := p.Summary()
	assert.Contains(t, summary, "fastexperiment x2")
	assert.Contains(t, summary, "sensitivity=var:sens")
	assert.Contains(t, summary, "6 points")
}

// TestRowTSV tests loss.tsv rendering.
func TestRowTSV(t *testing.T) {
	rows := []Row{{Values: []float64{0.5, 2}, RealLoss: 0.25, NotRealLoss: 0.125, RateLoss: 1}}
	got := LossTable([]string{"a", "b"}, rows)
	assert.Equal(t, "a\tb\tReal loss\tNot real loss\tRate loss\n0.5\t2\t0.25000000\t0.12500000\t1.00000000\n", got)
}

// TestConfigValidate tests executor settings.
func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, 1, cfg.Slots)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	require.NoError(t, cfg.Validate())

	cfg.ROCStep = 2
	assert.Error(t, cfg.Validate())

	_, err := NewExecutor(Config{PollInterval: time.Microsecond})
	assert.Error(t, err)
}

// TestCheck tests that extension errors are found at any sweep point.
func TestCheck(t *testing.T) {
	require.NoError(t, Check(registry.Default(), sweepProtocol(t)))

	fpr, err := NewIncremental("fpr", 0, 1, 0.5)
	require.NoError(t, err)
	p := sweepProtocol(t)
	p.Variables = append(p.Variables, fpr)
	p.Experiments[0].Properties.SetVariable("fpr", fpr)

	err = Check(registry.Default(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fpr=1")
	assert.InDelta(t, 0.0, fpr.Value(), 1e-12, "variables are reset")
}
