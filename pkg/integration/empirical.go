package integration

import (
	"context"

	"github.com/dd0wney/netharness/pkg/graph"
)

// support counts, per union edge, how many evidence graphs report it.
func support(result *graph.Graph, evidence []*graph.Graph) map[graph.EdgeKey]int {
	counts := make(map[graph.EdgeKey]int, result.NumEdges())
	for _, k := range result.EdgeKeys() {
		for _, g := range evidence {
			if g.HasEdge(k) {
				counts[k]++
			}
		}
	}
	return counts
}

// Empirical scores an edge reported by k of n sources as k/n.
type Empirical struct{}

// Integrate implements Method.
func (Empirical) Integrate(ctx context.Context, in *Input) error {
	if err := requireEvidence("empirical", in); err != nil {
		return err
	}
	Union(in.Result, in.Evidence)
	n := float64(len(in.Evidence))
	for k, c := range support(in.Result, in.Evidence) {
		if err := setMain(in.Result, k, float64(c)/n); err != nil {
			return err
		}
	}
	in.invalidateRates()
	return nil
}

// Summary implements Method.
func (Empirical) Summary() string { return `"empirical"` }

// Thresholded calls an edge real when a strict majority of sources report it.
type Thresholded struct{}

// Integrate implements Method.
func (Thresholded) Integrate(ctx context.Context, in *Input) error {
	if err := requireEvidence("empThr", in); err != nil {
		return err
	}
	Union(in.Result, in.Evidence)
	half := float64(len(in.Evidence)) / 2
	for k, c := range support(in.Result, in.Evidence) {
		p := 0.0
		if float64(c) > half {
			p = 1
		}
		if err := setMain(in.Result, k, p); err != nil {
			return err
		}
	}
	in.invalidateRates()
	return nil
}

// Summary implements Method.
func (Thresholded) Summary() string { return `"empThr"` }
