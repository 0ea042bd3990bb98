package graph

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/dd0wney/netharness/pkg/validation"
)

// Populator fills an empty graph with a synthetic true topology.
type Populator interface {
	Populate(g *Graph, rng *rand.Rand) error
}

// ScaleFree grows a preferential-attachment graph. It starts from a complete
// graph over Seed nodes named "1".."Seed" and attaches every further node to
// one existing node picked with probability proportional to its degree.
type ScaleFree struct {
	Seed     int
	NumNodes int
}

// Validate checks the growth parameters.
func (s *ScaleFree) Validate() error {
	return validation.NewConfigValidator("scalefree").
		MinInt("seed", s.Seed, 2).
		MinInt("numNodes", s.NumNodes, s.Seed).
		Validate()
}

// ExpectedEdges returns the edge count Populate produces:
// NumNodes + (Seed²−Seed)/2 − Seed.
func (s *ScaleFree) ExpectedEdges() int {
	return s.NumNodes + (s.Seed*s.Seed-s.Seed)/2 - s.Seed
}

// Populate implements Populator.
func (s *ScaleFree) Populate(g *Graph, rng *rand.Rand) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if g.NumNodes() > 0 {
		return consistencyError("Populate", g, "", ErrNotEmpty)
	}

	last := 0
	seeds := make([]Node, 0, s.Seed)
	for i := 0; i < s.Seed; i++ {
		last++
		seeds = append(seeds, g.CreateNode(strconv.Itoa(last)))
	}
	for i := range seeds {
		for j := 0; j < i; j++ {
			g.CreateEdge(seeds[i], seeds[j])
		}
	}

	sumDegrees := 2 * g.NumEdges()
	for i := 0; i < s.NumNodes-s.Seed; i++ {
		r := 1 + rng.IntN(sumDegrees)
		beam := 0
		target := -1
		for n := range g.nodes {
			beam += len(g.nodes[n].adj)
			if beam >= r {
				target = n
				break
			}
		}
		if target < 0 {
			return fmt.Errorf("scalefree: roulette overran degree sum %d with draw %d", sumDegrees, r)
		}
		last++
		fresh := g.CreateNode(strconv.Itoa(last))
		g.CreateEdge(g.NodeAt(target), fresh)
		sumDegrees += 2
	}
	return nil
}
