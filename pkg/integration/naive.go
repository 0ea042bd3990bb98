package integration

import (
	"context"
	"fmt"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/logging"
)

// DefaultNaiveIterations is the fixed iteration count of NaiveEBM.
const DefaultNaiveIterations = 1000

// NaiveEBM is the deterministic expectation counterpart of MCMC: instead of
// sampling G and θ it alternates posterior edge probabilities and expected
// error rates for a fixed number of iterations, with no convergence test.
type NaiveEBM struct {
	Iterations int
}

// Integrate implements Method.
func (m *NaiveEBM) Integrate(ctx context.Context, in *Input) error {
	if err := requireEvidence("naiveEBM", in); err != nil {
		return err
	}
	iterations := m.Iterations
	if iterations <= 0 {
		iterations = DefaultNaiveIterations
	}
	log := in.logger().With(logging.Integration("naiveEBM"), logging.Replicate(in.Replicate))

	Union(in.Result, in.Evidence)
	keys := in.Result.EdgeKeys()
	index := make(map[graph.EdgeKey]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	rates := make([]ErrorRates, len(in.Evidence))
	for s := range rates {
		rates[s] = ErrorRates{FPR: in.Rand.Float64(), FNR: in.Rand.Float64()}
	}
	logPrior := Logit(edgePrior(in.Result.NumNodes()))
	maxEdges := float64(in.Result.MaxEdges())
	probs := make([]float64, len(keys))

	for it := 0; it < iterations; it++ {
		if err := checkContext(ctx); err != nil {
			return err
		}
		for e, k := range keys {
			lo := logPrior
			for s, g := range in.Evidence {
				if g.HasEdge(k) {
					lo += rates[s].LogPositiveBayesFactor()
				} else {
					lo += rates[s].LogNegativeBayesFactor()
				}
			}
			probs[e] = Logistic(lo)
		}

		pSum := 0.0
		for _, p := range probs {
			pSum += p
		}
		pInvSum := maxEdges - pSum
		for s, g := range in.Evidence {
			local := 0.0
			for _, k := range g.EdgeKeys() {
				local += probs[index[k]]
			}
			rates[s] = ErrorRates{
				FPR: (float64(g.NumEdges()) - local) / pInvSum,
				FNR: 1 - local/pSum,
			}
		}
		if log.GetLevel() <= logging.DebugLevel {
			log.Debug(formatRates(rates), logging.Int("iteration", it))
		}
	}

	for e, k := range keys {
		if err := setMain(in.Result, k, probs[e]); err != nil {
			return err
		}
	}
	for s, g := range in.Evidence {
		in.setRates(g.Name(), rates[s].Stats())
	}
	return nil
}

// Summary implements Method.
func (m *NaiveEBM) Summary() string {
	return fmt.Sprintf(`"naiveEBM" {iterations: %d}`, m.Iterations)
}

