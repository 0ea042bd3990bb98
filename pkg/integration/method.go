// Package integration combines evidential graphs into a consensus graph whose
// edges carry an existence probability under graph.MainKey.
//
// Every Method starts from the union of the evidence. Deterministic methods
// score that union directly; the MCMC and naive expectation methods also
// estimate per-source error rates, reported through Input.Rates.
package integration

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/stats"
	"github.com/dd0wney/netharness/pkg/validation"
)

// Epsilon bounds rates and priors away from 0 and 1 before any log or logit.
const Epsilon = 1e-12

var (
	errNoEvidence      = errors.New("no evidential graphs given")
	errNoGoldStandards = errors.New("no gold standards given")
)

// TraceSink receives diagnostic record streams, one per name.
type TraceSink interface {
	WriteStream(name, record string) error
	CloseStream(name string) error
}

// Observer is told how a sampling run went.
type Observer interface {
	ChainFinished(method string, cycles, burnIn, thinning int)
}

// Input is everything a Method needs for one replicate.
type Input struct {
	Evidence      []*graph.Graph
	GoldStandards []*graph.Graph

	// Result starts empty and receives the consensus graph.
	Result *graph.Graph

	// Rates receives the estimated error rates per evidence name. Methods
	// that do not estimate rates report stats.NaNRates.
	Rates map[string]stats.Rates

	Rand      *rand.Rand
	Trace     TraceSink // optional
	Observer  Observer  // optional
	Replicate string
	Logger    logging.Logger
}

func (in *Input) logger() logging.Logger {
	return logging.OrNop(in.Logger)
}

func (in *Input) setRates(name string, r stats.Rates) {
	if in.Rates == nil {
		in.Rates = make(map[string]stats.Rates, len(in.Evidence))
	}
	in.Rates[name] = r
}

func (in *Input) invalidateRates() {
	for _, g := range in.Evidence {
		in.setRates(g.Name(), stats.NaNRates())
	}
}

// Method is an integration algorithm.
type Method interface {
	Integrate(ctx context.Context, in *Input) error
	Summary() string
}

func requireEvidence(method string, in *Input) error {
	if len(in.Evidence) == 0 {
		return &validation.ConfigError{Component: method, Cause: errNoEvidence}
	}
	if in.Result == nil {
		return validation.Errorf(method, "no result graph given")
	}
	return nil
}

func requireGoldStandards(method string, in *Input) error {
	if err := requireEvidence(method, in); err != nil {
		return err
	}
	if len(in.GoldStandards) == 0 {
		return &validation.ConfigError{Component: method, Cause: errNoGoldStandards}
	}
	return nil
}

// Union copies every node and edge of the evidence into result.
func Union(result *graph.Graph, evidence []*graph.Graph) {
	for _, g := range evidence {
		for _, n := range g.Nodes() {
			result.EnsureNode(n.ID())
		}
		for _, k := range g.EdgeKeys() {
			if !result.HasEdge(k) {
				result.CreateEdgeKey(k)
			}
		}
	}
}

// ErrorRates are the false positive rate α and false negative rate β of one
// evidence source.
type ErrorRates struct {
	FPR float64
	FNR float64
}

func (r ErrorRates) clamped() (alpha, beta float64) {
	return clamp(r.FPR), clamp(r.FNR)
}

// LogPositiveBayesFactor is log((1−β)/α), the weight of a reported edge.
func (r ErrorRates) LogPositiveBayesFactor() float64 {
	a, b := r.clamped()
	return math.Log((1 - b) / a)
}

// LogNegativeBayesFactor is log(β/(1−α)), the weight of an unreported pair.
func (r ErrorRates) LogNegativeBayesFactor() float64 {
	a, b := r.clamped()
	return math.Log(b / (1 - a))
}

// Stats converts to the aggregate rate type.
func (r ErrorRates) Stats() stats.Rates {
	return stats.Rates{FPRate: r.FPR, FNRate: r.FNR}
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return p
	}
	return validation.ClampFloat(p, Epsilon, 1-Epsilon)
}

// Logistic maps log-odds to a probability. It is exact at ±Inf and never
// overflows.
func Logistic(k float64) float64 {
	switch {
	case math.IsNaN(k):
		return math.NaN()
	case k >= 0:
		return 1 / (1 + math.Exp(-k))
	default:
		e := math.Exp(k)
		return e / (1 + e)
	}
}

// Logit maps a probability to log-odds after clamping it into (0, 1).
func Logit(p float64) float64 {
	p = clamp(p)
	return math.Log(p / (1 - p))
}

// edgePrior is q = 2/(|V|−1), clamped into (0, 1).
func edgePrior(nodes int) float64 {
	if nodes < 2 {
		return 1 - Epsilon
	}
	return clamp(2 / float64(nodes-1))
}

// setMain stores p as the consensus probability of k. NaN, which arises from
// undefined log ratios, becomes 0.
func setMain(g *graph.Graph, k graph.EdgeKey, p float64) error {
	if math.IsNaN(p) {
		p = 0
	}
	p = validation.ClampFloat(p, 0, 1)
	e, ok := g.Edge(k)
	if !ok {
		return nil
	}
	return g.SetProbability(e, graph.MainKey, p)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
