package integration

import (
	"context"
	"strconv"
	"testing"

	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const propNodes = 7

// sourceFromCodes turns pair codes into an evidence graph over propNodes nodes.
func sourceFromCodes(name string, codes []int) *graph.Graph {
	g := graph.New(name)
	for i := 0; i < propNodes; i++ {
		g.CreateNode(strconv.Itoa(i))
	}
	for _, c := range codes {
		a, b := c/propNodes, c%propNodes
		if a != b {
			g.CreateEdgeKey(graph.KeyOf(strconv.Itoa(a), strconv.Itoa(b)))
		}
	}
	return g
}

func genCodes() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, propNodes*propNodes-1))
}

// TestSupportProperties checks empirical and thresholded probabilities on
// random evidence.
func TestSupportProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	build := func(a, b, c []int) []*graph.Graph {
		return []*graph.Graph{sourceFromCodes("a", a), sourceFromCodes("b", b), sourceFromCodes("c", c)}
	}

	properties.Property("empirical probability is k/n", prop.ForAll(
		func(a, b, c []int) bool {
			ev := build(a, b, c)
			in := &Input{Evidence: ev, Result: graph.New("r")}
			if err := (Empirical{}).Integrate(context.Background(), in); err != nil {
				return false
			}
			for _, k := range in.Result.EdgeKeys() {
				count := 0
				for _, g := range ev {
					if g.HasEdge(k) {
						count++
					}
				}
				if in.Result.MainProbability(k) != float64(count)/3 {
					return false
				}
			}
			return true
		},
		genCodes(), genCodes(), genCodes(),
	))

	properties.Property("thresholded probability is 0 or 1 by majority", prop.ForAll(
		func(a, b, c []int) bool {
			ev := build(a, b, c)
			in := &Input{Evidence: ev, Result: graph.New("r")}
			if err := (Thresholded{}).Integrate(context.Background(), in); err != nil {
				return false
			}
			for _, k := range in.Result.EdgeKeys() {
				count := 0
				for _, g := range ev {
					if g.HasEdge(k) {
						count++
					}
				}
				want := 0.0
				if count >= 2 {
					want = 1
				}
				if in.Result.MainProbability(k) != want {
					return false
				}
			}
			return true
		},
		genCodes(), genCodes(), genCodes(),
	))

	properties.Property("naive probabilities stay in [0,1]", prop.ForAll(
		func(a, b, c []int, seed uint64) bool {
			in := &Input{Evidence: build(a, b, c), Result: graph.New("r"), Rand: newRand(seed)}
			if err := (&NaiveEBM{Iterations: 20}).Integrate(context.Background(), in); err != nil {
				return false
			}
			for _, k := range in.Result.EdgeKeys() {
				if p := in.Result.MainProbability(k); p < 0 || p > 1 {
					return false
				}
			}
			return true
		},
		genCodes(), genCodes(), genCodes(), gen.UInt64(),
	))

	properties.TestingRun(t)
}
