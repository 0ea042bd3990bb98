// Package protocol reads sweep protocols from YAML.
//
// A protocol names the graph implementation, the population method, the
// sweep variables and the integration method together with the experiments
// that feed it:
//
//	name: sensitivity
//	seed: 7
//	graphImplementation: mapgraph
//	population:
//	  type: scalefree
//	  properties: {seed: 3, numNodes: 200}
//	variables:
//	  - {id: sens, type: incremental, min: 0.1, max: 0.9, inc: 0.1}
//	integration:
//	  type: naiveEBM
//	  cycleReplicas: 10
//	  evidentialGraphs:
//	    - type: fastexperiment
//	      replicas: 3
//	      properties: {sensitivity: {var: sens}, fpr: 0.05}
//
// Any property value and any replica count may be a {var: <id>} reference
// to a declared variable.
package protocol

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dd0wney/netharness/pkg/validation"
	"github.com/dd0wney/netharness/pkg/workflow"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

const component = "protocol"

// Variable types.
const (
	TypeIncremental = "incremental"
	TypeLogarithmic = "logarithmic"
)

// RangeZeroOne is the only logarithmic range.
const RangeZeroOne = "0-1"

var (
	// ErrEmpty is returned for a document with no content.
	ErrEmpty = errors.New("empty protocol")
	// ErrUndefinedVariable is returned for a {var: id} that names no variable.
	ErrUndefinedVariable = errors.New("undefined variable")
)

type document struct {
	Name                string         `yaml:"name"`
	Seed                *uint64        `yaml:"seed"`
	GraphImplementation string         `yaml:"graphImplementation" validate:"required,ident"`
	Population          extensionDoc   `yaml:"population"`
	Variables           []variableDoc  `yaml:"variables" validate:"dive"`
	Integration         integrationDoc `yaml:"integration"`
}

type extensionDoc struct {
	Type       string    `yaml:"type" validate:"required,ident"`
	Properties yaml.Node `yaml:"properties" validate:"-"`
}

type variableDoc struct {
	ID         string   `yaml:"id" validate:"required,ident"`
	Type       string   `yaml:"type" validate:"required,oneof=incremental logarithmic"`
	Min        *float64 `yaml:"min" validate:"required_if=Type incremental"`
	Max        *float64 `yaml:"max" validate:"required_if=Type incremental"`
	Inc        *float64 `yaml:"inc" validate:"required_if=Type incremental"`
	Range      string   `yaml:"range" validate:"omitempty,oneof=0-1"`
	Iterations int      `yaml:"iterations" validate:"required_if=Type logarithmic"`
}

type integrationDoc struct {
	Type             string          `yaml:"type" validate:"required,ident"`
	Properties       yaml.Node       `yaml:"properties" validate:"-"`
	CycleReplicas    int             `yaml:"cycleReplicas" validate:"gte=1"`
	EvidentialGraphs []experimentDoc `yaml:"evidentialGraphs" validate:"required,min=1,dive"`
	GoldStandards    []experimentDoc `yaml:"goldStandards" validate:"dive"`
}

type experimentDoc struct {
	Type       string    `yaml:"type" validate:"required,ident"`
	Replicas   yaml.Node `yaml:"replicas" validate:"-"`
	Properties yaml.Node `yaml:"properties" validate:"-"`
}

// Load reads and parses the protocol at path. A protocol without a name is
// named after the file.
func Load(path string) (*workflow.Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, validation.FieldError(component, "file", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Parse decodes a protocol document. Unknown keys are errors. The protocol
// digest is the blake2b-256 of data; it also seeds protocols that set no
// seed.
func Parse(data []byte) (*workflow.Protocol, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &validation.ConfigError{Component: component, Cause: ErrEmpty}
		}
		return nil, &validation.ConfigError{Component: component, Cause: err}
	}
	if err := validation.Struct(component, &doc); err != nil {
		return nil, err
	}

	sum := blake2b.Sum256(data)
	b := &builder{vars: make(map[string]workflow.Variable, len(doc.Variables))}
	p := &workflow.Protocol{
		Name:                doc.Name,
		GraphImplementation: doc.GraphImplementation,
		CycleReplicas:       doc.Integration.CycleReplicas,
		Digest:              hex.EncodeToString(sum[:]),
		Seed:                workflow.SeedFromDigest(sum[:]),
	}
	if doc.Seed != nil {
		p.Seed = *doc.Seed
	}

	for i, vd := range doc.Variables {
		v, err := b.variable(vd)
		if err != nil {
			return nil, validation.FieldError(component, fmt.Sprintf("variables[%d]", i), err)
		}
		p.Variables = append(p.Variables, v)
	}

	var err error
	p.Population.ID = doc.Population.Type
	if p.Population.Properties, err = b.properties(&doc.Population.Properties); err != nil {
		return nil, validation.FieldError(component, "population.properties", err)
	}
	p.Integration.ID = doc.Integration.Type
	if p.Integration.Properties, err = b.properties(&doc.Integration.Properties); err != nil {
		return nil, validation.FieldError(component, "integration.properties", err)
	}
	if p.Experiments, err = b.experiments("integration.evidentialGraphs", doc.Integration.EvidentialGraphs); err != nil {
		return nil, err
	}
	if p.GoldStandards, err = b.experiments("integration.goldStandards", doc.Integration.GoldStandards); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// builder resolves variable references while a document is converted.
type builder struct {
	vars map[string]workflow.Variable
}

func (b *builder) variable(vd variableDoc) (workflow.Variable, error) {
	if _, dup := b.vars[vd.ID]; dup {
		return nil, fmt.Errorf("duplicate variable %q", vd.ID)
	}
	var (
		v   workflow.Variable
		err error
	)
	switch vd.Type {
	case TypeIncremental:
		v, err = workflow.NewIncremental(vd.ID, *vd.Min, *vd.Max, *vd.Inc)
	case TypeLogarithmic:
		if vd.Range != "" && vd.Range != RangeZeroOne {
			return nil, fmt.Errorf("unknown logarithmic range %q", vd.Range)
		}
		v, err = workflow.NewLogarithmic01(vd.ID, vd.Iterations)
	default:
		return nil, fmt.Errorf("unknown variable type %q", vd.Type)
	}
	if err != nil {
		return nil, err
	}
	b.vars[vd.ID] = v
	return v, nil
}

// reference returns the variable named by a {var: id} mapping.
func (b *builder) reference(n *yaml.Node) (workflow.Variable, error) {
	var ref struct {
		Var string `yaml:"var"`
	}
	if len(n.Content) != 2 {
		return nil, fmt.Errorf("line %d: a reference is a single {var: <id>} mapping", n.Line)
	}
	if err := n.Decode(&ref); err != nil {
		return nil, err
	}
	if ref.Var == "" {
		return nil, fmt.Errorf("line %d: a reference is a single {var: <id>} mapping", n.Line)
	}
	v, ok := b.vars[ref.Var]
	if !ok {
		return nil, fmt.Errorf("line %d: %w %q", n.Line, ErrUndefinedVariable, ref.Var)
	}
	return v, nil
}

func (b *builder) properties(n *yaml.Node) (*workflow.Properties, error) {
	props := workflow.NewProperties()
	if absent(n) {
		return props, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: properties must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if !validation.Ident(key.Value) {
			return nil, fmt.Errorf("line %d: %q is not a valid property key", key.Line, key.Value)
		}
		if _, ok := props.Get(key.Value); ok {
			return nil, fmt.Errorf("line %d: duplicate property %q", key.Line, key.Value)
		}
		if val.Kind == yaml.MappingNode {
			v, err := b.reference(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key.Value, err)
			}
			props.SetVariable(key.Value, v)
			continue
		}
		x, err := scalar(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key.Value, err)
		}
		props.Set(key.Value, x)
	}
	return props, nil
}

// absent reports a key that is missing or explicitly null.
func absent(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

// scalar decodes a property value by its resolved YAML tag.
func scalar(n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: expected a scalar or {var: <id>}", n.Line)
	}
	var err error
	switch n.ShortTag() {
	case "!!int":
		var x int
		err = n.Decode(&x)
		return x, err
	case "!!float":
		var x float64
		err = n.Decode(&x)
		return x, err
	case "!!bool":
		var x bool
		err = n.Decode(&x)
		return x, err
	case "!!str":
		return n.Value, nil
	}
	return nil, fmt.Errorf("line %d: unsupported value %q (%s)", n.Line, n.Value, n.ShortTag())
}

func (b *builder) replicas(n *yaml.Node) (workflow.Replicas, error) {
	if absent(n) {
		return workflow.Replicas{Count: 1}, nil
	}
	switch n.Kind {
	case yaml.MappingNode:
		v, err := b.reference(n)
		if err != nil {
			return workflow.Replicas{}, err
		}
		return workflow.Replicas{Var: v}, nil
	case yaml.ScalarNode:
		var count int
		if n.ShortTag() != "!!int" || n.Decode(&count) != nil {
			return workflow.Replicas{}, fmt.Errorf("line %d: %q is not a replica count", n.Line, n.Value)
		}
		if count < 1 {
			return workflow.Replicas{}, fmt.Errorf("line %d: replicas must be at least 1", n.Line)
		}
		return workflow.Replicas{Count: count}, nil
	}
	return workflow.Replicas{}, fmt.Errorf("line %d: replicas must be an integer or {var: <id>}", n.Line)
}

func (b *builder) experiments(field string, docs []experimentDoc) ([]workflow.ExperimentSpec, error) {
	specs := make([]workflow.ExperimentSpec, 0, len(docs))
	for i, ed := range docs {
		at := fmt.Sprintf("%s[%d]", field, i)
		props, err := b.properties(&ed.Properties)
		if err != nil {
			return nil, validation.FieldError(component, at+".properties", err)
		}
		reps, err := b.replicas(&ed.Replicas)
		if err != nil {
			return nil, validation.FieldError(component, at+".replicas", err)
		}
		specs = append(specs, workflow.ExperimentSpec{
			Extension: workflow.Extension{ID: ed.Type, Properties: props},
			Replicas:  reps,
		})
	}
	return specs, nil
}
