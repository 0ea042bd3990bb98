package integration

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/stats"
	"github.com/dd0wney/netharness/pkg/validation"
	"gonum.org/v1/gonum/stat/distuv"
)

// MCMCConfig parameterises the fully Bayesian estimator.
type MCMCConfig struct {
	MaxCycles                int
	MinCycles                int // retained samples after burn-in
	AutocorrelationLag       int
	AutocorrelationThreshold float64
	BurnIn                   int // autocorrelation window, and minimum burn-in length
	MaxThinning              int

	// Beta prior pseudo-counts added to the sampled confusion counts.
	TPOffset, TNOffset, FPOffset, FNOffset float64

	WriteTrace        bool
	ComputeLikelihood bool
}

// DefaultMCMCConfig returns the reference settings.
func DefaultMCMCConfig() MCMCConfig {
	return MCMCConfig{
		MaxCycles:                10000,
		MinCycles:                1000,
		AutocorrelationLag:       10,
		AutocorrelationThreshold: 0.2,
		BurnIn:                   100,
		MaxThinning:              20,
		TPOffset:                 1,
		TNOffset:                 1,
		FPOffset:                 1,
		FNOffset:                 1,
		WriteTrace:               true,
	}
}

// Validate checks the chain settings.
func (c *MCMCConfig) Validate() error {
	return validation.NewConfigValidator("mcmcEBM").
		Positive("maxCycles", c.MaxCycles).
		Positive("minCycles", c.MinCycles).
		Positive("acLag", c.AutocorrelationLag).
		RangeFloat("acThreshold", c.AutocorrelationThreshold, 0, 1).
		Positive("burnIn", c.BurnIn).
		Positive("maxThinning", c.MaxThinning).
		PositiveFloat("tpOffset", c.TPOffset).
		PositiveFloat("tnOffset", c.TNOffset).
		PositiveFloat("fpOffset", c.FPOffset).
		PositiveFloat("fnOffset", c.FNOffset).
		Custom("acLag", func() error {
			if c.AutocorrelationLag+2 > c.BurnIn {
				return fmt.Errorf("lag %d leaves no room in a burn-in window of %d", c.AutocorrelationLag, c.BurnIn)
			}
			return nil
		}).
		Validate()
}

// MCMC is a Gibbs sampler over the latent true topology G and the per-source
// error rates θ. Each cycle it computes every union edge's posterior from θ,
// draws G edge by edge, and redraws θ from Beta posteriors of each source's
// confusion against G. After burn-in it averages edge presence and θ over
// thinned cycles.
type MCMC struct {
	Config MCMCConfig
}

// NewMCMC creates a sampler with cfg.
func NewMCMC(cfg MCMCConfig) *MCMC {
	return &MCMC{Config: cfg}
}

// observation of one union edge by one source
const (
	unobserved int8 = iota // the source lacks an endpoint
	reported
	unreported
)

type chain struct {
	cfg      *MCMCConfig
	in       *Input
	keys     []graph.EdgeKey
	obs      [][]int8 // per edge, per source
	rates    []ErrorRates
	probs    []float64
	sampled  graph.EdgeSet
	logPrior float64

	edgeCounts []int
	samples    int
	fprAvg     []stats.IncrementalAverage
	fnrAvg     []stats.IncrementalAverage

	stream string
}

// Integrate implements Method.
func (m *MCMC) Integrate(ctx context.Context, in *Input) error {
	if err := requireEvidence("mcmcEBM", in); err != nil {
		return err
	}
	cfg := m.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := in.logger().With(logging.Integration("mcmcEBM"), logging.Replicate(in.Replicate))

	Union(in.Result, in.Evidence)
	c := newChain(&cfg, in)
	c.initRates()

	tracing := cfg.WriteTrace && in.Trace != nil
	if tracing {
		defer func() {
			if err := in.Trace.CloseStream(c.stream); err != nil {
				log.Error("close trace stream", logging.String("stream", c.stream), logging.Error(err))
			}
		}()
	}

	recorder := newBurnIn(cfg.BurnIn, len(in.Evidence), cfg.AutocorrelationLag, cfg.AutocorrelationThreshold)
	burning := true
	skip, burnInLength, cycles := 1, 0, 0

	for i := 0; i < cfg.MaxCycles; i++ {
		if err := checkContext(ctx); err != nil {
			return err
		}
		cycles++
		c.updateProbabilities()
		c.sampleTopology()
		c.sampleRates()

		if tracing {
			l := 0.0
			if cfg.ComputeLikelihood {
				l = c.likelihood()
			}
			if err := in.Trace.WriteStream(c.stream, c.traceLine(l)); err != nil {
				return fmt.Errorf("mcmcEBM: write trace: %w", err)
			}
		}

		if burning {
			if !recorder.record(c.rates) {
				skip = recorder.thinning(cfg.MaxThinning)
				burnInLength = i + 1
				recorder = nil
				burning = false
				log.Debug("burn-in complete", logging.Int("cycle", i), logging.Int("thinning", skip))
			}
		} else if i%skip == 0 {
			c.accumulate()
			if c.samples >= cfg.MinCycles {
				break
			}
		}
	}

	if burning {
		log.Warn("chain never left burn-in", logging.Int("cycles", cycles))
	} else if c.samples < cfg.MinCycles {
		log.Warn("chain hit maxCycles before collecting minCycles samples",
			logging.Int("samples", c.samples), logging.Int("min_cycles", cfg.MinCycles))
	}
	if in.Observer != nil {
		in.Observer.ChainFinished("mcmcEBM", cycles, burnInLength, skip)
	}
	return c.finish(log)
}

// Summary implements Method.
func (m *MCMC) Summary() string {
	c := m.Config
	return fmt.Sprintf(`"mcmcEBM" {maxCycles: %d; minCycles: %d; acLag: %d; acThreshold: %g; burnIn: %d}`,
		c.MaxCycles, c.MinCycles, c.AutocorrelationLag, c.AutocorrelationThreshold, c.BurnIn)
}

func newChain(cfg *MCMCConfig, in *Input) *chain {
	keys := in.Result.EdgeKeys()
	obs := make([][]int8, len(keys))
	for e, k := range keys {
		row := make([]int8, len(in.Evidence))
		for s, g := range in.Evidence {
			switch {
			case !g.ContainsBoth(k):
				row[s] = unobserved
			case g.HasEdge(k):
				row[s] = reported
			default:
				row[s] = unreported
			}
		}
		obs[e] = row
	}
	return &chain{
		cfg:        cfg,
		in:         in,
		keys:       keys,
		obs:        obs,
		rates:      make([]ErrorRates, len(in.Evidence)),
		probs:      make([]float64, len(keys)),
		sampled:    graph.NewEdgeSet(len(keys)),
		logPrior:   Logit(edgePrior(in.Result.NumNodes())),
		edgeCounts: make([]int, len(keys)),
		fprAvg:     make([]stats.IncrementalAverage, len(in.Evidence)),
		fnrAvg:     make([]stats.IncrementalAverage, len(in.Evidence)),
		stream:     "mcmc-" + in.Replicate,
	}
}

func (c *chain) initRates() {
	rng := c.in.Rand
	fpr := distuv.Beta{Alpha: c.cfg.FPOffset, Beta: c.cfg.TNOffset, Src: rng}
	fnr := distuv.Beta{Alpha: c.cfg.FNOffset, Beta: c.cfg.TPOffset, Src: rng}
	for s := range c.rates {
		c.rates[s] = ErrorRates{FPR: fpr.Rand(), FNR: fnr.Rand()}
	}
}

func (c *chain) updateProbabilities() {
	pos := make([]float64, len(c.rates))
	neg := make([]float64, len(c.rates))
	for s, r := range c.rates {
		pos[s] = r.LogPositiveBayesFactor()
		neg[s] = r.LogNegativeBayesFactor()
	}
	for e, row := range c.obs {
		k := c.logPrior
		for s, o := range row {
			switch o {
			case reported:
				k += pos[s]
			case unreported:
				k += neg[s]
			}
		}
		c.probs[e] = Logistic(k)
	}
}

func (c *chain) sampleTopology() {
	rng := c.in.Rand
	for e, k := range c.keys {
		if rng.Float64() < c.probs[e] {
			c.sampled.Add(k)
		} else {
			c.sampled.Remove(k)
		}
	}
}

func (c *chain) sampleRates() {
	rng := c.in.Rand
	cfg := c.cfg
	for s, g := range c.in.Evidence {
		conf := stats.MeasureAgainstSet(g, c.sampled)
		fpr := distuv.Beta{Alpha: float64(conf.FP) + cfg.FPOffset, Beta: float64(conf.TN) + cfg.TNOffset, Src: rng}
		fnr := distuv.Beta{Alpha: float64(conf.FN) + cfg.FNOffset, Beta: float64(conf.TP) + cfg.TPOffset, Src: rng}
		c.rates[s] = ErrorRates{FPR: fpr.Rand(), FNR: fnr.Rand()}
	}
}

func (c *chain) accumulate() {
	for e, k := range c.keys {
		if c.sampled.Has(k) {
			c.edgeCounts[e]++
		}
	}
	c.samples++
	for s, r := range c.rates {
		c.fprAvg[s].Add(r.FPR)
		c.fnrAvg[s].Add(r.FNR)
	}
}

// likelihood is a score proportional to the log joint of the current state:
// log P(G) + Σ_sources log P(X_s | θ_s, G), with a flat prior on θ.
func (c *chain) likelihood() float64 {
	n := c.in.Result.NumNodes()
	all := float64((n*n - n) / 2)
	union := float64(len(c.keys))
	if all == 0 || union == 0 {
		return 0
	}
	l := float64(c.sampled.Len()) * math.Log(union/all)

	for s, g := range c.in.Evidence {
		a, b := c.rates[s].clamped()
		logA, logInvA := math.Log(a), math.Log(1-a)
		logB, logInvB := math.Log(b), math.Log(1-b)
		for _, k := range c.keys {
			inX := g.HasEdge(k)
			switch {
			case c.sampled.Has(k) && inX:
				l += logInvB
			case c.sampled.Has(k):
				l += logB
			case inX:
				l += logA
			default:
				l += logInvA
			}
		}
		l += (all - union) * logInvA
	}
	return l
}

func (c *chain) traceLine(likelihood float64) string {
	return fmt.Sprintf("%s%.8f\n", formatRates(c.rates), likelihood)
}

// formatRates renders "Rates:\t<fpr>\t<fnr>\t..." with a trailing tab.
func formatRates(rates []ErrorRates) string {
	var b strings.Builder
	b.WriteString("Rates:\t")
	for _, r := range rates {
		fmt.Fprintf(&b, "%.8f\t%.8f\t", r.FPR, r.FNR)
	}
	return b.String()
}

func (c *chain) finish(log logging.Logger) error {
	for e, k := range c.keys {
		p := 0.0
		if c.samples > 0 {
			p = float64(c.edgeCounts[e]) / float64(c.samples)
		}
		if err := setMain(c.in.Result, k, p); err != nil {
			return err
		}
	}
	if c.samples == 0 {
		log.Warn("no post burn-in samples, error rates are undefined")
	}
	for s, g := range c.in.Evidence {
		c.in.setRates(g.Name(), stats.Rates{FPRate: c.fprAvg[s].Mean(), FNRate: c.fnrAvg[s].Mean()})
	}
	return nil
}
