package registry

import (
	"github.com/dd0wney/netharness/pkg/experiments"
	"github.com/dd0wney/netharness/pkg/graph"
	"github.com/dd0wney/netharness/pkg/integration"
)

func registerBuiltins(r *Registry) {
	r.MustRegister(&Plugin{
		Kind:    KindGraph,
		ID:      "mapgraph",
		Summary: "hash-indexed arena graph",
		Build: func(Values) (any, error) {
			return GraphFactory(graph.New), nil
		},
	})

	r.MustRegister(&Plugin{
		Kind:    KindPopulator,
		ID:      "scalefree",
		Summary: "preferential attachment from a complete seed graph",
		Properties: []Property{
			{Key: "seed", Type: Int, Required: true, Doc: "size of the complete seed graph"},
			{Key: "numNodes", Type: Int, Required: true, Doc: "final node count"},
		},
		Build: func(v Values) (any, error) {
			return &graph.ScaleFree{Seed: v.Int("seed"), NumNodes: v.Int("numNodes")}, nil
		},
	})

	registerExperiments(r)
	registerIntegrations(r)
}

func registerExperiments(r *Registry) {
	sensitivity := Property{Key: "sensitivity", Type: Float, Required: true, Doc: "probability of reporting a true edge"}

	r.MustRegister(&Plugin{
		Kind:       KindExperiment,
		ID:         "simpleexperiment",
		Summary:    "independent test of every node pair",
		Properties: []Property{sensitivity, {Key: "specificity", Type: Float, Required: true}},
		Build: func(v Values) (any, error) {
			return &experiments.Simple{Sensitivity: v.Float("sensitivity"), Specificity: v.Float("specificity")}, nil
		},
	})
	r.MustRegister(&Plugin{
		Kind:       KindExperiment,
		ID:         "biasedexperiment",
		Summary:    "per-pair Beta distributed detection rates",
		Properties: []Property{sensitivity, {Key: "fdr", Type: Float, Required: true, Doc: "false discovery rate"}},
		Build: func(v Values) (any, error) {
			return &experiments.Biased{Sensitivity: v.Float("sensitivity"), FDR: v.Float("fdr")}, nil
		},
	})
	r.MustRegister(&Plugin{
		Kind:       KindExperiment,
		ID:         "fastexperiment",
		Summary:    "edge sampling with Poisson false positives",
		Properties: []Property{sensitivity, {Key: "fpr", Type: Float, Required: true, Doc: "share of reported edges that are false"}},
		Build: func(v Values) (any, error) {
			return &experiments.Fast{Sensitivity: v.Float("sensitivity"), FPR: v.Float("fpr")}, nil
		},
	})
	r.MustRegister(&Plugin{
		Kind:       KindExperiment,
		ID:         "reductionist",
		Summary:    "one ego node and its neighbourhood",
		Properties: []Property{sensitivity, {Key: "npr", Type: Float, Required: true, Doc: "false positive share inside the neighbourhood"}},
		Build: func(v Values) (any, error) {
			return &experiments.Reductionist{Sensitivity: v.Float("sensitivity"), NPR: v.Float("npr")}, nil
		},
	})
}

func registerIntegrations(r *Registry) {
	r.MustRegister(&Plugin{
		Kind:    KindIntegration,
		ID:      "empirical",
		Summary: "share of sources reporting the edge",
		Build:   func(Values) (any, error) { return integration.Empirical{}, nil },
	})
	r.MustRegister(&Plugin{
		Kind:    KindIntegration,
		ID:      "empThr",
		Summary: "majority vote",
		Build:   func(Values) (any, error) { return integration.Thresholded{}, nil },
	})
	r.MustRegister(&Plugin{
		Kind:    KindIntegration,
		ID:      "lee",
		Summary: "log-likelihood scores against one gold standard",
		Properties: []Property{
			{Key: "dValue", Type: Float, Required: true, Doc: "down-weighting of all but the best source"},
			{Key: "threshold", Type: Float, Required: true},
		},
		Build: func(v Values) (any, error) {
			return &integration.Lee{D: v.Float("dValue"), Threshold: v.Float("threshold")}, nil
		},
	})
	r.MustRegister(&Plugin{
		Kind:    KindIntegration,
		ID:      "lycett",
		Summary: "naive Bayes per gold standard, combined by noisy-or",
		Build:   func(Values) (any, error) { return integration.Lycett{}, nil },
	})
	r.MustRegister(&Plugin{
		Kind:    KindIntegration,
		ID:      "lycett2",
		Summary: "naive Bayes with an informed prior and negative evidence",
		Properties: []Property{
			{Key: "eHat", Type: Float, Required: true, Doc: "expected number of true edges"},
			{Key: "disableNegatives", Type: Bool, Default: false},
		},
		Build: func(v Values) (any, error) {
			return &integration.ImprovedLycett{ExpectedEdges: v.Float("eHat"), DisableNegatives: v.Bool("disableNegatives")}, nil
		},
	})

	def := integration.DefaultMCMCConfig()
	r.MustRegister(&Plugin{
		Kind:    KindIntegration,
		ID:      "mcmcEBM",
		Summary: "Gibbs sampler over topology and error rates",
		Properties: []Property{
			{Key: "maxCycles", Type: Int, Default: def.MaxCycles},
			{Key: "minCycles", Type: Int, Default: def.MinCycles, Doc: "retained samples after burn-in"},
			{Key: "acLag", Type: Int, Default: def.AutocorrelationLag},
			{Key: "acThreshold", Type: Float, Default: def.AutocorrelationThreshold},
			{Key: "burnIn", Type: Int, Default: def.BurnIn},
			{Key: "maxThinning", Type: Int, Default: def.MaxThinning},
			{Key: "tpOffset", Type: Float, Default: def.TPOffset},
			{Key: "tnOffset", Type: Float, Default: def.TNOffset},
			{Key: "fpOffset", Type: Float, Default: def.FPOffset},
			{Key: "fnOffset", Type: Float, Default: def.FNOffset},
			{Key: "writeErrorRatesFile", Type: Bool, Default: def.WriteTrace},
			{Key: "computeLikelihood", Type: Bool, Default: def.ComputeLikelihood},
		},
		Build: func(v Values) (any, error) {
			cfg := integration.MCMCConfig{
				MaxCycles:                v.Int("maxCycles"),
				MinCycles:                v.Int("minCycles"),
				AutocorrelationLag:       v.Int("acLag"),
				AutocorrelationThreshold: v.Float("acThreshold"),
				BurnIn:                   v.Int("burnIn"),
				MaxThinning:              v.Int("maxThinning"),
				TPOffset:                 v.Float("tpOffset"),
				TNOffset:                 v.Float("tnOffset"),
				FPOffset:                 v.Float("fpOffset"),
				FNOffset:                 v.Float("fnOffset"),
				WriteTrace:               v.Bool("writeErrorRatesFile"),
				ComputeLikelihood:        v.Bool("computeLikelihood"),
			}
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return integration.NewMCMC(cfg), nil
		},
	})
	r.MustRegister(&Plugin{
		Kind:       KindIntegration,
		ID:         "naiveEBM",
		Summary:    "fixed-iteration expectation baseline",
		Properties: []Property{{Key: "iterations", Type: Int, Default: integration.DefaultNaiveIterations}},
		Build: func(v Values) (any, error) {
			return &integration.NaiveEBM{Iterations: v.Int("iterations")}, nil
		},
	})
}
