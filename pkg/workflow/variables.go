package workflow

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dd0wney/netharness/pkg/validation"
)

// Variable is a sweep parameter. It starts at its first value after Reset
// and moves to the next with Step while CanStep reports true.
type Variable interface {
	ID() string
	Reset()
	CanStep() bool
	Step()
	Value() float64
	// Iterations is the number of values the variable takes.
	Iterations() int
}

// stepTolerance absorbs float error when comparing the next value to max.
const stepTolerance = 1e-9

// Incremental runs from Min to Max in steps of Inc. The k-th value is
// computed as Min + k·Inc so long sweeps do not accumulate rounding error.
type Incremental struct {
	Min, Max, Inc float64

	id string
	k  int
}

// NewIncremental creates an incremental variable.
func NewIncremental(id string, min, max, inc float64) (*Incremental, error) {
	err := validation.NewConfigValidator("variable." + id).
		Custom("id", func() error {
			if !validation.Ident(id) {
				return fmt.Errorf("%q is not a valid identifier", id)
			}
			return nil
		}).
		Finite("min", min).
		Finite("max", max).
		PositiveFloat("inc", inc).
		Custom("max", func() error {
			if max < min {
				return fmt.Errorf("max %g is below min %g", max, min)
			}
			return nil
		}).
		Validate()
	if err != nil {
		return nil, err
	}
	return &Incremental{id: id, Min: min, Max: max, Inc: inc}, nil
}

func (v *Incremental) ID() string { return v.id }

func (v *Incremental) Reset() { v.k = 0 }

func (v *Incremental) at(k int) float64 { return v.Min + float64(k)*v.Inc }

func (v *Incremental) CanStep() bool {
	return v.at(v.k+1) <= v.Max+stepTolerance*math.Max(1, math.Abs(v.Max))
}

func (v *Incremental) Step() {
	if v.CanStep() {
		v.k++
	}
}

func (v *Incremental) Value() float64 { return v.at(v.k) }

func (v *Incremental) Iterations() int {
	return int(math.Floor((v.Max-v.Min)/v.Inc+stepTolerance)) + 1
}

func (v *Incremental) String() string {
	return fmt.Sprintf("%s in [%g, %g] step %g", v.id, v.Min, v.Max, v.Inc)
}

// Logarithmic01 approaches 1 as 0.9, 0.99, 0.999, ... taking Iterations
// values.
type Logarithmic01 struct {
	id    string
	iters int
	k     int
}

// NewLogarithmic01 creates a variable taking 1−10^−k for k = 1..iterations.
func NewLogarithmic01(id string, iterations int) (*Logarithmic01, error) {
	err := validation.NewConfigValidator("variable." + id).
		Custom("id", func() error {
			if !validation.Ident(id) {
				return fmt.Errorf("%q is not a valid identifier", id)
			}
			return nil
		}).
		RangeInt("iterations", iterations, 1, 15).
		Validate()
	if err != nil {
		return nil, err
	}
	return &Logarithmic01{id: id, iters: iterations, k: 1}, nil
}

func (v *Logarithmic01) ID() string { return v.id }

func (v *Logarithmic01) Reset() { v.k = 1 }

func (v *Logarithmic01) CanStep() bool { return v.k < v.iters }

func (v *Logarithmic01) Step() {
	if v.CanStep() {
		v.k++
	}
}

func (v *Logarithmic01) Value() float64 { return 1 - math.Pow(10, -float64(v.k)) }

func (v *Logarithmic01) Iterations() int { return v.iters }

func (v *Logarithmic01) String() string {
	return fmt.Sprintf("%s approaches 1 over %d steps", v.id, v.iters)
}

// FormatValue renders a variable value the way loss.tsv and output file
// names show it.
func FormatValue(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
