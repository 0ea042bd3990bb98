// Package workflow runs a protocol: it enumerates the sweep points spanned
// by the protocol's variables and, at every point, evaluates a number of
// independent replicates on a bounded set of slots.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/parallel"
	"github.com/dd0wney/netharness/pkg/registry"
	"github.com/dd0wney/netharness/pkg/stats"
)

// Executor runs protocols.
type Executor struct {
	cfg         Config
	registry    *registry.Registry
	sink        Sink
	logger      logging.Logger
	metrics     Metrics
	observer    integration.Observer
	checkpoints Checkpoints
	recorders   []RowRecorder
	progress    func(Progress)
}

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry replaces the default extension registry.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

// WithSink sets where result files and streams go.
func WithSink(s Sink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithLogger sets the executor logger. Graphs and methods log through it.
func WithLogger(l logging.Logger) Option {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithMetrics reports executor activity to m.
func WithMetrics(m Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithObserver passes o to every integration method.
func WithObserver(o integration.Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithCheckpoints skips points already stored in c and stores new ones.
func WithCheckpoints(c Checkpoints) Option {
	return func(e *Executor) { e.checkpoints = c }
}

// WithRecorder adds a row recorder.
func WithRecorder(r RowRecorder) Option {
	return func(e *Executor) { e.recorders = append(e.recorders, r) }
}

// WithProgress registers fn to be called as the sweep advances. fn runs on
// the controlling goroutine.
func WithProgress(fn func(Progress)) Option {
	return func(e *Executor) { e.progress = fn }
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		cfg:      cfg,
		registry: registry.Default(),
		sink:     discardSink{},
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective settings.
func (e *Executor) Config() Config { return e.cfg }

// Report is the outcome of a run.
type Report struct {
	Variables []string
	Rows      []Row
	Restored  int // rows taken from checkpoints
	Elapsed   time.Duration
}

// LossTable renders the report as loss.tsv.
func (r *Report) LossTable() string {
	return LossTable(r.Variables, r.Rows)
}

// Summary describes the run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "points:   %d (%d restored)\n", len(r.Rows), r.Restored)
	fmt.Fprintf(&b, "elapsed:  %s\n", r.Elapsed.Round(time.Millisecond))
	b.WriteString("\n")
	b.WriteString(r.LossTable())
	return b.String()
}

// run is the state of one Run call.
type run struct {
	e        *Executor
	p        *Protocol
	log      logging.Logger
	degrees  *stats.DegreeSampler
	report   *Report
	point    int
	points   int
	graphOpt []graph.Option
}

// Run executes p. Rows are produced in sweep order. When a replicate fails
// the sweep stops at that point; the rows finished before it are still
// written to loss.tsv and returned with the error.
func (e *Executor) Run(ctx context.Context, p *Protocol) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &run{
		e:       e,
		p:       p,
		log:     e.logger.With(logging.Component("workflow")),
		degrees: stats.NewDegreeSampler(e.sink),
		report:  &Report{Variables: p.VariableIDs()},
		points:  p.Points(),
	}
	r.graphOpt = []graph.Option{graph.WithLogger(e.logger.With(logging.Component("graph")))}
	if e.metrics != nil {
		r.graphOpt = append(r.graphOpt, graph.WithAnomalyHook(e.metrics.GraphAnomaly))
	}

	timer := logging.StartTimer(r.log, "sweep finished",
		logging.Int("points", r.points),
		logging.Int("slots", e.cfg.Slots),
		logging.Int("cycle_replicas", p.CycleReplicas))

	var err error
	if len(p.Variables) == 0 {
		err = r.evaluate(ctx)
	} else {
		err = r.vary(ctx, 0)
	}
	r.report.Elapsed = timer.Elapsed()

	table := r.report.LossTable()
	if werr := e.sink.WriteResults(LossFile, table); werr != nil {
		r.log.Error("unable to save results", logging.Path(LossFile), logging.Error(werr))
		err = errors.Join(err, fmt.Errorf("write %s: %w", LossFile, werr))
	}
	if err != nil {
		timer.EndError(err)
		return r.report, err
	}
	r.log.Info("results\n" + table)
	timer.End(logging.Int("restored", r.report.Restored))
	return r.report, nil
}

// vary iterates the variable at depth, recursing into the deeper variables
// for every value. The innermost level evaluates the current point.
func (r *run) vary(ctx context.Context, depth int) error {
	v := r.p.Variables[depth]
	v.Reset()
	for {
		var err error
		if depth < len(r.p.Variables)-1 {
			err = r.vary(ctx, depth+1)
		} else {
			err = r.evaluate(ctx)
		}
		if err != nil {
			return err
		}
		if !v.CanStep() {
			return nil
		}
		v.Step()
	}
}

// evaluate produces the row of the current sweep point.
func (r *run) evaluate(ctx context.Context) error {
	index := r.point
	r.point++
	tag := r.p.VariableTag()
	log := r.log.With(logging.SweepPoint(index), logging.String("variables", tag))

	if err := ctx.Err(); err != nil {
		return err
	}

	if cp := r.e.checkpoints; cp != nil {
		row, ok, err := cp.Load(ctx, r.p.Digest, index)
		if err != nil {
			log.Warn("checkpoint lookup failed", logging.Error(err))
		} else if ok {
			row.Restored = true
			r.report.Rows = append(r.report.Rows, row)
			r.report.Restored++
			log.Info("sweep point restored from checkpoint")
			r.notify(Progress{Point: index, Points: r.points, Variables: tag, Row: &row})
			return nil
		}
	}

	pl, err := buildPlan(r.e.registry, r.p)
	if err != nil {
		return err
	}

	started := time.Now()
	acc := newAccumulators(r.e.cfg)
	if err := r.dispatch(ctx, index, tag, pl, acc); err != nil {
		return err
	}

	loss := acc.losses.Mean()
	row := Row{
		Point:       index,
		Values:      r.p.VariableValues(),
		RealLoss:    loss.Real,
		NotRealLoss: loss.NotReal,
		RateLoss:    acc.rates.Mean(),
		Replicates:  r.p.CycleReplicas,
		Elapsed:     time.Since(started),
	}

	if err := r.e.sink.WriteResults("probDistr_"+tag+".tsv", acc.distr.TSV()); err != nil {
		return fmt.Errorf("write distribution: %w", err)
	}
	if acc.roc != nil {
		if err := r.e.sink.WriteResults("roc_"+tag+".tsv", acc.roc.TSV()); err != nil {
			return fmt.Errorf("write roc: %w", err)
		}
	}

	r.report.Rows = append(r.report.Rows, row)
	log.Info("sweep point finished",
		logging.Float64("real_loss", row.RealLoss),
		logging.Float64("not_real_loss", row.NotRealLoss),
		logging.Float64("rate_loss", row.RateLoss),
		logging.Latency(row.Elapsed))

	if r.e.metrics != nil {
		r.e.metrics.PointFinished(row)
	}
	if cp := r.e.checkpoints; cp != nil {
		if err := cp.Save(ctx, r.p.Digest, row); err != nil {
			log.Warn("checkpoint save failed", logging.Error(err))
		}
	}
	for _, rec := range r.e.recorders {
		if err := rec.RecordRow(ctx, r.report.Variables, row); err != nil {
			log.Warn("row recorder failed", logging.Error(err))
		}
	}
	r.notify(Progress{Point: index, Points: r.points, Variables: tag, Done: row.Replicates, Replicates: row.Replicates, Row: &row})
	return nil
}

// dispatch launches the point's replicates, one slot each, and polls until
// they have all returned. The first failure cancels the rest.
func (r *run) dispatch(ctx context.Context, index int, tag string, pl *plan, acc *accumulators) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var poolOpts []parallel.PoolOption
	if r.e.metrics != nil {
		poolOpts = append(poolOpts, parallel.WithSlotObserver(r.e.metrics.SlotsInUse))
	}
	pool, err := parallel.NewSlotPool(r.e.cfg.Slots, poolOpts...)
	if err != nil {
		return err
	}

	var finished atomic.Int64
	replicas := r.p.CycleReplicas
	for i := 0; i < replicas; i++ {
		if pool.FirstError() != nil {
			break
		}
		rep := r.newReplicate(index, i, pl, acc)
		if err := pool.Go(ctx, rep.name, func(ctx context.Context) error {
			defer finished.Add(1)
			return r.execute(ctx, rep)
		}); err != nil {
			// only a cancelled context gets here
			break
		}
	}

	done := pool.Done()
	ticker := time.NewTicker(r.e.cfg.PollInterval)
	defer ticker.Stop()
	for waiting := true; waiting; {
		select {
		case <-done:
			waiting = false
		case <-ticker.C:
		}
		if pool.FirstError() != nil {
			cancel()
		}
		r.notify(Progress{Point: index, Points: r.points, Variables: tag, Done: int(finished.Load()), Replicates: replicas, InUse: pool.InUse()})
	}

	if err := pool.FirstError(); err != nil {
		return asReplicateError(index, tag, err)
	}
	if err := ctx.Err(); err != nil && int(finished.Load()) < replicas {
		return err
	}
	return nil
}

func (r *run) newReplicate(point, i int, pl *plan, acc *accumulators) *replicate {
	name := fmt.Sprintf("r%d-%d", point, i)
	return &replicate{
		name:   name,
		point:  point,
		index:  i,
		plan:   pl,
		rng:    replicateRand(r.p.Seed, point, i),
		acc:    acc,
		sink:   r.e.sink,
		obs:    r.e.observer,
		degree: r.degrees,
		log:    r.e.logger.With(logging.Replicate(name), logging.SweepPoint(point)),
		opts:   r.graphOpt,
	}
}

// execute runs one replicate under the optional timeout and reports it.
func (r *run) execute(ctx context.Context, rep *replicate) error {
	if t := r.e.cfg.ReplicateTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	started := time.Now()
	err := rep.run(ctx)
	if r.e.metrics != nil {
		status := statusOK
		switch {
		case errors.Is(err, context.Canceled):
			status = statusCanceled
		case err != nil:
			status = statusError
		}
		r.e.metrics.ReplicateFinished(status, time.Since(started))
	}
	if err != nil {
		return &ReplicateError{Point: rep.point, Replicate: rep.name, Cause: err}
	}
	return nil
}

func asReplicateError(point int, tag string, err error) error {
	var re *ReplicateError
	if errors.As(err, &re) {
		re.Variables = tag
		return re
	}
	var pe *parallel.PanicError
	if errors.As(err, &pe) {
		return &ReplicateError{Point: point, Variables: tag, Replicate: pe.Task, Cause: err}
	}
	return &ReplicateError{Point: point, Variables: tag, Cause: err}
}

func (r *run) notify(p Progress) {
	if r.e.progress != nil {
		r.e.progress(p)
	}
}
