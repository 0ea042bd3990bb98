package integration

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/dd0wney/netharness/pkg/stats"
	"github.com/dd0wney/netharness/pkg/validation"
)

// Lee scores each source by its log-likelihood ratio against a single gold
// standard, sums the scores of the sources reporting an edge (the best one at
// full weight, the rest divided by D) and calls the edge when the sum exceeds
// Threshold.
type Lee struct {
	D         float64
	Threshold float64
}

// Validate checks D is positive.
func (l *Lee) Validate() error {
	return validation.NewConfigValidator("lee").
		PositiveFloat("dValue", l.D).
		Finite("threshold", l.Threshold).
		Validate()
}

// Integrate implements Method.
func (l *Lee) Integrate(ctx context.Context, in *Input) error {
	if err := requireGoldStandards("lee", in); err != nil {
		return err
	}
	if len(in.GoldStandards) > 1 {
		in.logger().Warn("more than one gold standard assigned, using the first",
			logging.Integration("lee"),
			logging.Count(len(in.GoldStandards)))
	}
	Union(in.Result, in.Evidence)
	gold := in.GoldStandards[0]

	type scored struct {
		g   *graph.Graph
		lls float64
	}
	sources := make([]scored, 0, len(in.Evidence))
	for _, g := range in.Evidence {
		c := stats.Measure(g, gold)
		tp, fp, fn, tn := float64(c.TP), float64(c.FP), float64(c.FN), float64(c.TN)
		lls := math.Log((tp / fp) / ((tp + fn) / (tn + fp)))
		sources = append(sources, scored{g: g, lls: lls})
		in.setRates(g.Name(), c.Rates())
	}
	slices.SortStableFunc(sources, func(a, b scored) int {
		switch {
		case a.lls > b.lls:
			return -1
		case a.lls < b.lls:
			return 1
		default:
			return 0
		}
	})

	for _, k := range in.Result.EdgeKeys() {
		ws := 0.0
		first := true
		for _, s := range sources {
			if !s.g.HasEdge(k) {
				continue
			}
			if first {
				ws += s.lls
				first = false
			} else {
				ws += s.lls / l.D
			}
		}
		p := 0.0
		if ws > l.Threshold {
			p = 1
		}
		if err := setMain(in.Result, k, p); err != nil {
			return err
		}
	}
	return nil
}

// Summary implements Method.
func (l *Lee) Summary() string {
	return fmt.Sprintf(`"lee" {dValue: %g; threshold: %g}`, l.D, l.Threshold)
}

// Lycett scores each edge against every gold standard with the log Bayes
// factor log(sensitivity/(1−specificity)) of each reporting source, stores the
// per-gold-standard probability under the gold standard's name and combines
// them as 1 − Π(1 − p).
type Lycett struct{}

// Integrate implements Method.
func (Lycett) Integrate(ctx context.Context, in *Input) error {
	if err := requireGoldStandards("lycett", in); err != nil {
		return err
	}
	Union(in.Result, in.Evidence)
	for _, gold := range in.GoldStandards {
		scores := make([]float64, len(in.Evidence))
		for i, g := range in.Evidence {
			c := stats.Measure(g, gold)
			scores[i] = math.Log(ratio(c.TP, c.TP+c.FN) / ratio(c.FP, c.FP+c.TN))
			in.setRates(g.Name(), c.Rates())
		}
		for _, e := range in.Result.Edges() {
			logOdds := 0.0
			for i, g := range in.Evidence {
				if g.HasEdge(e.Key()) {
					logOdds += scores[i]
				}
			}
			if err := setKeyed(in.Result, e, gold.Name(), Logistic(logOdds)); err != nil {
				return err
			}
		}
	}

	for _, e := range in.Result.Edges() {
		comb := 1.0
		for _, p := range in.Result.Probabilities(e) {
			if p.Key != graph.MainKey {
				comb *= 1 - p.Value
			}
		}
		if err := setMain(in.Result, e.Key(), 1-comb); err != nil {
			return err
		}
	}
	return nil
}

// Summary implements Method.
func (Lycett) Summary() string { return `"lycett"` }

// ImprovedLycett extends Lycett with an informed prior derived from the
// expected edge count and with negative evidence from sources that observed
// both endpoints but not the edge. Gold standard estimates are averaged.
type ImprovedLycett struct {
	ExpectedEdges    float64
	DisableNegatives bool
}

// Integrate implements Method.
func (l *ImprovedLycett) Integrate(ctx context.Context, in *Input) error {
	if err := requireGoldStandards("lycett2", in); err != nil {
		return err
	}
	v := float64(in.GoldStandards[0].NumNodes())
	e := l.ExpectedEdges
	odds := 2 * e / (v*v - v - 2*e)
	if !(odds > 0) || math.IsInf(odds, 0) {
		return validation.FieldError("lycett2", "eHat",
			fmt.Errorf("expected edge count %g is not in (0, %g) for %g nodes", e, (v*v-v)/2, v))
	}
	logPrior := math.Log(odds)

	Union(in.Result, in.Evidence)
	type pair struct{ pos, neg float64 }
	for _, gold := range in.GoldStandards {
		scores := make([]pair, len(in.Evidence))
		for i, g := range in.Evidence {
			c := stats.Measure(g, gold)
			sens := ratio(c.TP, c.TP+c.FN)
			unspec := ratio(c.FP, c.FP+c.TN)
			miss := ratio(c.FN, c.TP+c.FN)
			spec := ratio(c.TN, c.FP+c.TN)
			scores[i] = pair{pos: math.Log(sens / unspec), neg: math.Log(miss / spec)}
			in.setRates(g.Name(), c.Rates())
		}
		for _, edge := range in.Result.Edges() {
			k := edge.Key()
			logOdds := logPrior
			for i, g := range in.Evidence {
				if !g.ContainsBoth(k) {
					continue
				}
				if g.HasEdge(k) {
					logOdds += scores[i].pos
				} else if !l.DisableNegatives {
					logOdds += scores[i].neg
				}
			}
			if err := setKeyed(in.Result, edge, gold.Name(), Logistic(logOdds)); err != nil {
				return err
			}
		}
	}

	for _, edge := range in.Result.Edges() {
		sum, n := 0.0, 0
		for _, p := range in.Result.Probabilities(edge) {
			if p.Key != graph.MainKey {
				sum += p.Value
				n++
			}
		}
		mean := 0.0
		if n > 0 {
			mean = sum / float64(n)
		}
		if err := setMain(in.Result, edge.Key(), mean); err != nil {
			return err
		}
	}
	return nil
}

// Summary implements Method.
func (l *ImprovedLycett) Summary() string {
	return fmt.Sprintf(`"lycett2" (eHat=%g, disableNegatives=%t)`, l.ExpectedEdges, l.DisableNegatives)
}

// setKeyed stores a per-gold-standard probability; NaN from 0/0 ratios is
// recorded as 0.
func setKeyed(g *graph.Graph, e graph.Edge, key string, p float64) error {
	if math.IsNaN(p) {
		p = 0
	}
	return g.SetProbability(e, key, p)
}

// ratio is num/den as floats; 0/0 yields NaN so that undefined rates stay
// visible in the log ratios that use them.
func ratio(num, den int) float64 {
	return float64(num) / float64(den)
}
