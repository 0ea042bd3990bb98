package graph

import "strings"

// MainKey is the probability key holding the consensus estimate of an edge.
const MainKey = "MainProbability"

// GraphID identifies the graph that owns a handle. Zero is never assigned.
type GraphID uint64

// Node is a lightweight handle to a node record inside a Graph.
// Handles compare by identifier, never by owner.
type Node struct {
	id    string
	owner GraphID
	index int32
}

// ID returns the node identifier.
func (n Node) ID() string { return n.id }

// Owner returns the graph the handle was issued by.
func (n Node) Owner() GraphID { return n.owner }

// IsZero reports whether n is the zero handle.
func (n Node) IsZero() bool { return n.owner == 0 }

// Equal reports whether both handles name the same node identifier.
func (n Node) Equal(o Node) bool { return n.id == o.id }

// Less orders nodes by identifier.
func (n Node) Less(o Node) bool { return n.id < o.id }

func (n Node) String() string { return n.id }

// EdgeKey is the canonical unordered node pair of an edge: Lo <= Hi.
type EdgeKey struct {
	Lo, Hi string
}

// KeyOf builds the canonical key for the pair {a, b}.
func KeyOf(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{Lo: a, Hi: b}
}

// Has reports whether id is one of the endpoints.
func (k EdgeKey) Has(id string) bool { return k.Lo == id || k.Hi == id }

// Other returns the endpoint opposite to id.
func (k EdgeKey) Other(id string) string {
	if k.Lo == id {
		return k.Hi
	}
	return k.Lo
}

// IsLoop reports whether both endpoints are the same node.
func (k EdgeKey) IsLoop() bool { return k.Lo == k.Hi }

func (k EdgeKey) String() string {
	var b strings.Builder
	b.Grow(len(k.Lo) + len(k.Hi) + 2)
	b.WriteString(k.Lo)
	b.WriteString("--")
	b.WriteString(k.Hi)
	return b.String()
}

// Edge is a lightweight handle to an edge record inside a Graph.
// Edges compare by their node pair only.
type Edge struct {
	key   EdgeKey
	owner GraphID
	index int32
}

// Key returns the canonical node pair.
func (e Edge) Key() EdgeKey { return e.key }

// Owner returns the graph the handle was issued by.
func (e Edge) Owner() GraphID { return e.owner }

// IsZero reports whether e is the zero handle.
func (e Edge) IsZero() bool { return e.owner == 0 }

// Equal reports whether both edges connect the same node pair.
func (e Edge) Equal(o Edge) bool { return e.key == o.key }

func (e Edge) String() string { return e.key.String() }

// Neighbor is an adjacency record: the node on the far side and the edge
// that leads there.
type Neighbor struct {
	Node Node
	Edge Edge
}

// Probability is a keyed existence probability attached to an edge.
type Probability struct {
	Key   string
	Value float64
}

// EdgeSet is a set of edge keys detached from any graph.
type EdgeSet map[EdgeKey]struct{}

// NewEdgeSet creates an empty set sized for n keys.
func NewEdgeSet(n int) EdgeSet {
	return make(EdgeSet, n)
}

// Add inserts k.
func (s EdgeSet) Add(k EdgeKey) { s[k] = struct{}{} }

// Remove deletes k.
func (s EdgeSet) Remove(k EdgeKey) { delete(s, k) }

// Has reports whether k is in the set.
func (s EdgeSet) Has(k EdgeKey) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys.
func (s EdgeSet) Len() int { return len(s) }
