package graph

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/dd0wney/netharness/pkg/validation"
)

// TestScaleFreePopulate tests node and edge counts of the grown graph.
func TestScaleFreePopulate(t *testing.T) {
	tests := []struct {
		seed, nodes int
	}{
		{4, 500},
		{2, 10},
		{5, 5},
	}

	for _, tt := range tests {
		pop := &ScaleFree{Seed: tt.seed, NumNodes: tt.nodes}
		g := New("truth")
		if err := pop.Populate(g, rand.New(rand.NewPCG(1, 2))); err != nil {
			t.Fatalf("Populate(%+v): %v", pop, err)
		}
		if g.NumNodes() != tt.nodes {
			t.Errorf("seed=%d: NumNodes() = %d, want %d", tt.seed, g.NumNodes(), tt.nodes)
		}
		surplus := (tt.seed*tt.seed-tt.seed)/2 - tt.seed
		if g.NumEdges() != tt.nodes+surplus {
			t.Errorf("seed=%d: NumEdges() = %d, want %d", tt.seed, g.NumEdges(), tt.nodes+surplus)
		}
		if g.NumEdges() != pop.ExpectedEdges() {
			t.Errorf("ExpectedEdges() = %d, graph has %d", pop.ExpectedEdges(), g.NumEdges())
		}
		if g.Anomalies() != 0 {
			t.Errorf("populating produced %d anomalies", g.Anomalies())
		}
	}
}

func TestScaleFreeDeterministic(t *testing.T) {
	pop := &ScaleFree{Seed: 3, NumNodes: 200}
	a, b := New("a"), New("b")
	pop.Populate(a, rand.New(rand.NewPCG(7, 7)))
	pop.Populate(b, rand.New(rand.NewPCG(7, 7)))

	ka, kb := a.EdgeKeys(), b.EdgeKeys()
	for i := range ka {
		if ka[i] != kb[i] {
			t.Fatalf("edge %d differs: %v vs %v", i, ka[i], kb[i])
		}
	}
}

func TestScaleFreeRejects(t *testing.T) {
	tests := []struct {
		name string
		pop  ScaleFree
	}{
		{"seed too small", ScaleFree{Seed: 1, NumNodes: 10}},
		{"fewer nodes than seed", ScaleFree{Seed: 4, NumNodes: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pop.Populate(New("g"), rand.New(rand.NewPCG(1, 1)))
			if !errors.Is(err, validation.ErrConfiguration) {
				t.Errorf("expected a configuration error, got %v", err)
			}
		})
	}

	g := New("busy")
	g.CreateNode("x")
	pop := &ScaleFree{Seed: 2, NumNodes: 4}
	if err := pop.Populate(g, rand.New(rand.NewPCG(1, 1))); err == nil {
		t.Error("populating a non-empty graph should fail")
	}
}
