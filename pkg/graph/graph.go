// Package graph implements the undirected, probability-annotated graph every
// simulator and integration method operates on.
//
// A Graph owns dense tables of node and edge records. Node and Edge values are
// handles into those tables; a handle issued by another graph is a foreign key
// and is resolved by identifier, never by index. Iteration order is insertion
// order, which keeps seeded simulations reproducible.
//
// A Graph is not safe for concurrent mutation. Each replicate owns its graphs.
package graph

import (
	"math"
	"sync/atomic"

	"github.com/dd0wney/netharness/pkg/logging"
)

var lastGraphID atomic.Uint64

type nodeRecord struct {
	id  string
	adj []int32 // edge indices
}

type edgeRecord struct {
	key   EdgeKey
	a, b  int32 // node indices, a holds key.Lo
	probs []Probability
}

// Graph is an arena-backed undirected simple graph.
type Graph struct {
	id        GraphID
	name      string
	nodes     []nodeRecord
	nodeIndex map[string]int32
	edges     []edgeRecord
	edgeIndex map[EdgeKey]int32
	anomalies int
	onAnomaly func(AnomalyKind)
	logger    logging.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger anomalies are reported to.
func WithLogger(l logging.Logger) Option {
	return func(g *Graph) { g.logger = logging.OrNop(l) }
}

// WithCapacity pre-sizes the node and edge tables.
func WithCapacity(nodes, edges int) Option {
	return func(g *Graph) {
		g.nodes = make([]nodeRecord, 0, nodes)
		g.nodeIndex = make(map[string]int32, nodes)
		g.edges = make([]edgeRecord, 0, edges)
		g.edgeIndex = make(map[EdgeKey]int32, edges)
	}
}

// WithAnomalyHook registers fn to be called for every anomaly.
func WithAnomalyHook(fn func(AnomalyKind)) Option {
	return func(g *Graph) { g.onAnomaly = fn }
}

// New creates an empty graph.
func New(name string, opts ...Option) *Graph {
	g := &Graph{
		id:        GraphID(lastGraphID.Add(1)),
		name:      name,
		nodeIndex: make(map[string]int32),
		edgeIndex: make(map[EdgeKey]int32),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ID returns the arena identity of the graph.
func (g *Graph) ID() GraphID { return g.id }

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the node count.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int { return len(g.edges) }

// MaxEdges returns the number of unordered node pairs, (n²−n)/2.
func (g *Graph) MaxEdges() int {
	n := len(g.nodes)
	return (n*n - n) / 2
}

// Anomalies returns how many consistency anomalies the graph has absorbed.
func (g *Graph) Anomalies() int { return g.anomalies }

func (g *Graph) nodeAnomaly(kind AnomalyKind, op, id string, cause error) {
	g.anomaly(kind, op, id, logging.NodeID(id), cause)
}

func (g *Graph) edgeAnomaly(kind AnomalyKind, op string, k EdgeKey, cause error) {
	g.anomaly(kind, op, k.String(), logging.EdgeKey(k.Lo, k.Hi), cause)
}

func (g *Graph) anomaly(kind AnomalyKind, op, subject string, at logging.Field, cause error) {
	g.anomalies++
	if g.onAnomaly != nil {
		g.onAnomaly(kind)
	}
	g.logger.Warn("graph anomaly",
		logging.GraphName(g.name),
		logging.Operation(op),
		logging.String("kind", string(kind)),
		at,
		logging.Error(consistencyError(op, g, subject, cause)),
	)
}

func (g *Graph) nodeHandle(i int32) Node {
	return Node{id: g.nodes[i].id, owner: g.id, index: i}
}

func (g *Graph) edgeHandle(i int32) Edge {
	return Edge{key: g.edges[i].key, owner: g.id, index: i}
}

// CreateNode adds a node. Creating an identifier twice returns the existing
// node and counts as an anomaly. An empty identifier yields the zero Node.
func (g *Graph) CreateNode(id string) Node {
	if id == "" {
		g.nodeAnomaly(AnomalyInvalidID, "CreateNode", id, ErrInvalidID)
		return Node{}
	}
	if i, ok := g.nodeIndex[id]; ok {
		g.nodeAnomaly(AnomalyDuplicateNode, "CreateNode", id, ErrDuplicate)
		return g.nodeHandle(i)
	}
	return g.addNode(id)
}

// EnsureNode returns the node with the identifier, creating it if needed.
// Unlike CreateNode an existing node is not an anomaly.
func (g *Graph) EnsureNode(id string) Node {
	if i, ok := g.nodeIndex[id]; ok {
		return g.nodeHandle(i)
	}
	if id == "" {
		g.nodeAnomaly(AnomalyInvalidID, "EnsureNode", id, ErrInvalidID)
		return Node{}
	}
	return g.addNode(id)
}

func (g *Graph) addNode(id string) Node {
	i := int32(len(g.nodes))
	g.nodes = append(g.nodes, nodeRecord{id: id})
	g.nodeIndex[id] = i
	return g.nodeHandle(i)
}

// Node looks up a node by identifier.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.nodeIndex[id]
	if !ok {
		return Node{}, false
	}
	return g.nodeHandle(i), true
}

// NodeAt returns the i-th node in insertion order.
func (g *Graph) NodeAt(i int) Node {
	return g.nodeHandle(int32(i))
}

// HasNode reports whether a node with the identifier exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodeIndex[id]
	return ok
}

// Contains reports whether the graph holds a node with n's identifier,
// regardless of which graph issued n.
func (g *Graph) Contains(n Node) bool {
	return g.HasNode(n.id)
}

// ContainsBoth reports whether both endpoints of k are nodes of the graph.
func (g *Graph) ContainsBoth(k EdgeKey) bool {
	return g.HasNode(k.Lo) && g.HasNode(k.Hi)
}

// resolve maps a possibly foreign handle onto a local node index.
func (g *Graph) resolve(n Node) (int32, bool) {
	if n.owner == g.id && int(n.index) < len(g.nodes) && g.nodes[n.index].id == n.id {
		return n.index, true
	}
	i, ok := g.nodeIndex[n.id]
	return i, ok
}

// CreateEdge connects a and b. Handles from other graphs are resolved by
// identifier. When an endpoint does not resolve, or a equals b, no edge is
// created and ok is false. An existing edge is returned unchanged, counted
// as an anomaly.
func (g *Graph) CreateEdge(a, b Node) (Edge, bool) {
	ia, okA := g.resolve(a)
	ib, okB := g.resolve(b)
	if !okA || !okB {
		g.edgeAnomaly(AnomalyForeignNode, "CreateEdge", KeyOf(a.id, b.id), ErrForeignNode)
		return Edge{}, false
	}
	return g.connect(ia, ib, "CreateEdge")
}

// CreateEdgeKey connects the two nodes named by k.
func (g *Graph) CreateEdgeKey(k EdgeKey) (Edge, bool) {
	ia, okA := g.nodeIndex[k.Lo]
	ib, okB := g.nodeIndex[k.Hi]
	if !okA || !okB {
		g.edgeAnomaly(AnomalyForeignNode, "CreateEdgeKey", k, ErrForeignNode)
		return Edge{}, false
	}
	return g.connect(ia, ib, "CreateEdgeKey")
}

func (g *Graph) connect(ia, ib int32, op string) (Edge, bool) {
	if ia == ib {
		g.nodeAnomaly(AnomalySelfLoop, op, g.nodes[ia].id, ErrSelfLoop)
		return Edge{}, false
	}
	key := KeyOf(g.nodes[ia].id, g.nodes[ib].id)
	if i, ok := g.edgeIndex[key]; ok {
		g.edgeAnomaly(AnomalyDuplicateEdge, op, key, ErrDuplicate)
		return g.edgeHandle(i), true
	}
	if g.nodes[ia].id != key.Lo {
		ia, ib = ib, ia
	}
	i := int32(len(g.edges))
	g.edges = append(g.edges, edgeRecord{key: key, a: ia, b: ib})
	g.edgeIndex[key] = i
	g.nodes[ia].adj = append(g.nodes[ia].adj, i)
	g.nodes[ib].adj = append(g.nodes[ib].adj, i)
	return g.edgeHandle(i), true
}

// Edge looks up the edge with key k.
func (g *Graph) Edge(k EdgeKey) (Edge, bool) {
	i, ok := g.edgeIndex[k]
	if !ok {
		return Edge{}, false
	}
	return g.edgeHandle(i), true
}

// HasEdge reports whether an edge with key k exists.
func (g *Graph) HasEdge(k EdgeKey) bool {
	_, ok := g.edgeIndex[k]
	return ok
}

// ContainsEdge reports whether the graph holds an edge between e's nodes.
func (g *Graph) ContainsEdge(e Edge) bool {
	return g.HasEdge(e.key)
}

// ContainsPair reports whether a and b are connected. It is symmetric.
func (g *Graph) ContainsPair(a, b Node) bool {
	return g.HasEdge(KeyOf(a.id, b.id))
}

// Endpoints returns the local node handles of e.
func (g *Graph) Endpoints(e Edge) (Node, Node, bool) {
	i, ok := g.edgeIndex[e.key]
	if !ok {
		return Node{}, Node{}, false
	}
	rec := g.edges[i]
	return g.nodeHandle(rec.a), g.nodeHandle(rec.b), true
}

// Neighbors returns the adjacency records of n. Foreign handles are
// resolved by identifier; an unknown node has no neighbours.
func (g *Graph) Neighbors(n Node) []Neighbor {
	i, ok := g.resolve(n)
	if !ok {
		return nil
	}
	adj := g.nodes[i].adj
	out := make([]Neighbor, len(adj))
	for j, ei := range adj {
		rec := g.edges[ei]
		far := rec.a
		if far == i {
			far = rec.b
		}
		out[j] = Neighbor{Node: g.nodeHandle(far), Edge: g.edgeHandle(ei)}
	}
	return out
}

// Degree returns the number of edges incident to n.
func (g *Graph) Degree(n Node) int {
	i, ok := g.resolve(n)
	if !ok {
		return 0
	}
	return len(g.nodes[i].adj)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i := range g.nodes {
		out[i] = g.nodeHandle(int32(i))
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i := range g.edges {
		out[i] = g.edgeHandle(int32(i))
	}
	return out
}

// EdgeKeys returns the keys of all edges in insertion order.
func (g *Graph) EdgeKeys() []EdgeKey {
	out := make([]EdgeKey, len(g.edges))
	for i := range g.edges {
		out[i] = g.edges[i].key
	}
	return out
}

// EdgeSet copies the edge keys into a detached set.
func (g *Graph) EdgeSet() EdgeSet {
	s := NewEdgeSet(len(g.edges))
	for i := range g.edges {
		s.Add(g.edges[i].key)
	}
	return s
}

// SetProbability annotates e with p under key, replacing an earlier value.
func (g *Graph) SetProbability(e Edge, key string, p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return consistencyError("SetProbability", g, e.key.String(), ErrProbabilityRange)
	}
	i, ok := g.edgeIndex[e.key]
	if !ok {
		return consistencyError("SetProbability", g, e.key.String(), ErrEdgeNotFound)
	}
	rec := &g.edges[i]
	for j := range rec.probs {
		if rec.probs[j].Key == key {
			rec.probs[j].Value = p
			return nil
		}
	}
	rec.probs = append(rec.probs, Probability{Key: key, Value: p})
	return nil
}

// Probability returns the value stored under key for e.
func (g *Graph) Probability(e Edge, key string) (float64, bool) {
	i, ok := g.edgeIndex[e.key]
	if !ok {
		return 0, false
	}
	for _, p := range g.edges[i].probs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return 0, false
}

// MainProbability returns the consensus probability of the edge with key k,
// or 0 when the edge is absent or unannotated.
func (g *Graph) MainProbability(k EdgeKey) float64 {
	p, _ := g.Probability(Edge{key: k}, MainKey)
	return p
}

// Probabilities returns a copy of all annotations of e in insertion order.
func (g *Graph) Probabilities(e Edge) []Probability {
	i, ok := g.edgeIndex[e.key]
	if !ok {
		return nil
	}
	out := make([]Probability, len(g.edges[i].probs))
	copy(out, g.edges[i].probs)
	return out
}
