package registry

import (
	"errors"
	"testing"

	"github.com/dd0wney/netharness/pkg/experiments"
	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
	"github.com/dd0wney/netharness/pkg/validation"
)

// TestBuiltinCatalogue tests that every documented id resolves
func TestBuiltinCatalogue(t *testing.T) {
	want := map[Kind][]string{
		KindGraph:       {"mapgraph"},
		KindPopulator:   {"scalefree"},
		KindExperiment:  {"biasedexperiment", "fastexperiment", "reductionist", "simpleexperiment"},
		KindIntegration: {"empThr", "empirical", "lee", "lycett", "lycett2", "mcmcEBM", "naiveEBM"},
	}
	r := Default()
	for kind, ids := range want {
		list := r.List(kind)
		if len(list) != len(ids) {
			t.Errorf("%s has %d plugins, want %d", kind, len(list), len(ids))
			continue
		}
		for i, p := range list {
			if p.ID != ids[i] {
				t.Errorf("%s[%d] = %q, want %q", kind, i, p.ID, ids[i])
			}
			if _, err := r.Resolve(kind, p.ID); err != nil {
				t.Errorf("Resolve(%s, %s) error = %v", kind, p.ID, err)
			}
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	r := Default()
	_, err := r.Resolve(KindIntegration, "bayesNet")
	if !errors.Is(err, ErrUnknownExtension) || !validation.IsConfigError(err) {
		t.Errorf("Resolve(unknown id) = %v", err)
	}
	_, err = r.Resolve(Kind("storage"), "x")
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Resolve(unknown kind) = %v", err)
	}
}

func TestBuildExperiment(t *testing.T) {
	r := Default()
	exp, err := r.Experiment("fastexperiment", map[string]any{"sensitivity": 0.9, "fpr": 0.1})
	if err != nil {
		t.Fatalf("Experiment() error = %v", err)
	}
	fast, ok := exp.(*experiments.Fast)
	if !ok {
		t.Fatalf("built %T", exp)
	}
	if fast.Sensitivity != 0.9 || fast.FPR != 0.1 {
		t.Errorf("built %+v", fast)
	}
}

// TestConfigureErrors tests property table enforcement
func TestConfigureErrors(t *testing.T) {
	r := Default()
	tests := []struct {
		name  string
		props map[string]any
		want  error
	}{
		{"missing key", map[string]any{"sensitivity": 0.9}, ErrMissingProperty},
		{"unknown key", map[string]any{"sensitivity": 0.9, "specificity": 0.9, "bias": 1.0}, ErrUnknownProperty},
		{"wrong type", map[string]any{"sensitivity": "high", "specificity": 0.9}, validation.ErrConfiguration},
		{"out of range", map[string]any{"sensitivity": 1.5, "specificity": 0.9}, validation.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Experiment("simpleexperiment", tt.props)
			if !errors.Is(err, tt.want) {
				t.Errorf("Experiment() error = %v, want %v", err, tt.want)
			}
			if !validation.IsConfigError(err) {
				t.Errorf("error %v is not a configuration error", err)
			}
		})
	}
}

func TestIntegerCoercion(t *testing.T) {
	r := Default()
	pop, err := r.Populator("scalefree", map[string]any{"seed": 4.0, "numNodes": 50})
	if err != nil {
		t.Fatalf("Populator() error = %v", err)
	}
	sf := pop.(*graph.ScaleFree)
	if sf.Seed != 4 || sf.NumNodes != 50 {
		t.Errorf("built %+v", sf)
	}

	if _, err := r.Populator("scalefree", map[string]any{"seed": 4.5, "numNodes": 50}); !validation.IsConfigError(err) {
		t.Errorf("fractional seed error = %v", err)
	}
	if _, err := r.Populator("scalefree", map[string]any{"seed": 1, "numNodes": 50}); !validation.IsConfigError(err) {
		t.Errorf("seed below 2 error = %v", err)
	}
}

func TestMCMCDefaults(t *testing.T) {
	m, err := Default().Integration("mcmcEBM", map[string]any{"maxCycles": 500, "computeLikelihood": true})
	if err != nil {
		t.Fatalf("Integration() error = %v", err)
	}
	mc := m.(*integration.MCMC)
	def := integration.DefaultMCMCConfig()
	if mc.Config.MaxCycles != 500 || !mc.Config.ComputeLikelihood {
		t.Errorf("overrides lost: %+v", mc.Config)
	}
	if mc.Config.BurnIn != def.BurnIn || mc.Config.AutocorrelationThreshold != def.AutocorrelationThreshold {
		t.Errorf("defaults not applied: %+v", mc.Config)
	}

	if _, err := Default().Integration("mcmcEBM", map[string]any{"acLag": 200}); !validation.IsConfigError(err) {
		t.Errorf("lag longer than burn-in error = %v", err)
	}
}

func TestGraphFactory(t *testing.T) {
	f, err := Default().Graph("mapgraph")
	if err != nil {
		t.Fatal(err)
	}
	g := f("r1_template")
	if g.Name() != "r1_template" || g.NumNodes() != 0 {
		t.Errorf("factory built %q with %d nodes", g.Name(), g.NumNodes())
	}
	if _, err := Default().Graph("treegraph"); !validation.IsConfigError(err) {
		t.Errorf("unknown graph error = %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	p := &Plugin{Kind: KindIntegration, ID: "x", Build: func(Values) (any, error) { return integration.Empirical{}, nil }}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(p); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Register() = %v", err)
	}
	if err := r.Register(&Plugin{Kind: "storage", ID: "y"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Register(unknown kind) = %v", err)
	}
}

func TestMistypedPlugin(t *testing.T) {
	r := New()
	r.MustRegister(&Plugin{Kind: KindExperiment, ID: "odd", Build: func(Values) (any, error) { return 42, nil }})
	if _, err := r.Experiment("odd", nil); !validation.IsConfigError(err) {
		t.Errorf("mistyped plugin error = %v", err)
	}
}

func TestValuesString(t *testing.T) {
	v := Values{"b": 0.5, "a": 2}
	if got := v.String(); got != "a=2;b=0.5" {
		t.Errorf("String() = %q", got)
	}
	if v.Float("missing") != 0 || v.Int("b") != 0 {
		t.Error("accessors should return zero values on mismatch")
	}
}
