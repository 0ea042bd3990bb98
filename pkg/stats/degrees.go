package stats

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dd0wney/netharness/pkg/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// DegreesFile is the name of the degree sample result.
const DegreesFile = "degrees.tsv"

// ResultWriter stores a named result file.
type ResultWriter interface {
	WriteResults(name, content string) error
}

// DegreeSampler records the degree sequence of one true graph: the one
// generated for replicate 0 of sweep point 0, whatever slot runs it.
type DegreeSampler struct {
	once sync.Once
	err  error
	out  ResultWriter
}

// NewDegreeSampler creates a sampler writing to out.
func NewDegreeSampler(out ResultWriter) *DegreeSampler {
	return &DegreeSampler{out: out}
}

// Samples reports whether the replicate at index of sweep point point is the
// one whose true graph is recorded.
func (s *DegreeSampler) Samples(point, index int) bool {
	return point == 0 && index == 0
}

// Sample writes one degree per line for g. Only the first call does any work;
// later calls return the first call's error.
func (s *DegreeSampler) Sample(g *graph.Graph) error {
	s.once.Do(func() {
		var b strings.Builder
		for _, n := range g.Nodes() {
			b.WriteString(strconv.Itoa(g.Degree(n)))
			b.WriteByte('\n')
		}
		if err := s.out.WriteResults(DegreesFile, b.String()); err != nil {
			s.err = fmt.Errorf("write %s: %w", DegreesFile, err)
		}
	})
	return s.err
}

// Topology is a structural summary of a graph.
type Topology struct {
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	Components int     `json:"components"`
	Largest    int     `json:"largest_component"`
	MaxDegree  int     `json:"max_degree"`
	MeanDegree float64 `json:"mean_degree"`
}

// Summarize computes the topology of g.
func Summarize(g *graph.Graph) Topology {
	u := simple.NewUndirectedGraph()
	index := make(map[string]int64, g.NumNodes())
	t := Topology{Nodes: g.NumNodes(), Edges: g.NumEdges()}

	for i, n := range g.Nodes() {
		id := int64(i)
		index[n.ID()] = id
		u.AddNode(simple.Node(id))
		if d := g.Degree(n); d > t.MaxDegree {
			t.MaxDegree = d
		}
	}
	for _, k := range g.EdgeKeys() {
		u.SetEdge(u.NewEdge(simple.Node(index[k.Lo]), simple.Node(index[k.Hi])))
	}

	components := topo.ConnectedComponents(u)
	t.Components = len(components)
	for _, c := range components {
		if len(c) > t.Largest {
			t.Largest = len(c)
		}
	}
	if t.Nodes > 0 {
		t.MeanDegree = float64(2*t.Edges) / float64(t.Nodes)
	}
	return t
}
