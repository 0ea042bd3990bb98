package workflow

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/stats"
)

// accumulators collect the replicates of one sweep point. Every field is
// safe for concurrent updates.
type accumulators struct {
	losses stats.LossAverager
	rates  stats.RateLossAverager
	distr  *stats.DistributionAverager
	roc    *stats.ROCAverager // nil when disabled
	bins   int
}

func newAccumulators(cfg Config) *accumulators {
	a := &accumulators{
		distr: stats.NewDistributionAverager(cfg.DistributionBins),
		bins:  cfg.DistributionBins,
	}
	if cfg.ROCStep > 0 {
		a.roc = stats.NewROCAverager(cfg.ROCStep)
	}
	return a
}

// replicate is one randomized trial: a fresh truth, its observations and
// their integration, scored into the point's accumulators.
type replicate struct {
	name   string
	point  int
	index  int
	plan   *plan
	rng    *rand.Rand
	acc    *accumulators
	sink   Sink
	obs    integration.Observer
	degree *stats.DegreeSampler
	log    logging.Logger
	opts   []graph.Option
}

func (r *replicate) graph(suffix string) *graph.Graph {
	return r.plan.newGraph(r.name+suffix, r.opts...)
}

func (r *replicate) run(ctx context.Context) error {
	truth := r.graph("_template")
	if err := r.plan.populator.Populate(truth, r.rng); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	defer r.plan.release(truth)

	if r.degree.Samples(r.point, r.index) {
		if err := r.degree.Sample(truth); err != nil {
			return err
		}
		r.log.Info("true topology sampled", logging.Any("topology", stats.Summarize(truth)))
	}

	evidence, err := r.observe(ctx, truth, r.plan.experiments, "_experiment#")
	if err != nil {
		return err
	}
	trueRates := stats.RatesAll(evidence, truth)

	var golds []*graph.Graph
	if len(r.plan.golds) > 0 {
		if golds, err = r.observe(ctx, truth, r.plan.golds, "_goldStandard#"); err != nil {
			return err
		}
	}

	in := &integration.Input{
		Evidence:      evidence,
		GoldStandards: golds,
		Result:        r.graph("_result"),
		Rates:         make(map[string]stats.Rates, len(evidence)),
		Rand:          r.rng,
		Trace:         r.sink,
		Observer:      r.obs,
		Replicate:     r.name,
		Logger:        r.log,
	}
	if err := r.plan.method.Integrate(ctx, in); err != nil {
		return fmt.Errorf("integrate: %w", err)
	}

	loss := r.acc.losses.Update(truth, in.Result)
	d := stats.NewDistribution(r.acc.bins)
	d.Compute(in.Result, truth)
	r.acc.distr.Update(d)
	rateLoss := r.acc.rates.Update(trueRates, in.Rates)
	if r.acc.roc != nil {
		r.acc.roc.Update(in.Result, truth)
	}

	r.log.Debug("replicate scored",
		logging.Float64("real_loss", loss.Real),
		logging.Float64("not_real_loss", loss.NotReal),
		logging.Float64("rate_loss", rateLoss),
		logging.Int("result_edges", in.Result.NumEdges()))
	return nil
}

// observe runs every planned experiment its replica count of times on truth.
func (r *replicate) observe(ctx context.Context, truth *graph.Graph, set []plannedExperiment, infix string) ([]*graph.Graph, error) {
	var out []*graph.Graph
	num := 0
	for _, pe := range set {
		for i := 0; i < pe.replicas; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g := r.graph(fmt.Sprintf("%s%d", infix, num))
			num++
			if err := pe.exp.Perform(truth, g, r.rng); err != nil {
				return nil, fmt.Errorf("%s on %s: %w", pe.exp.Summary(), g.Name(), err)
			}
			out = append(out, g)
		}
	}
	return out, nil
}
