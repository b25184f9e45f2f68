// Package traj fits single trajectories as weights over a basis function set
// and evaluates them. A D-dimensional trajectory is stored as one weight
// vector of length N·D made of D independent blocks of N weights.
package traj

import (
	"errors"
	"fmt"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/mat"
)

var ErrDegenerateDemonstration = errors.New("degenerate demonstration")
var ErrNotFitted = errors.New("trajectory model not fitted")

// DefaultRidge is the regularization added to the diagonal of the normal
// equations.
const DefaultRidge = 1e-10

type fitOptions struct {
	ridge float64
}

type FitOption func(*fitOptions)

// WithRidge sets the ridge term λ. λ = 0 solves the plain least-squares
// problem and then needs at least N distinct phases.
func WithRidge(lambda float64) FitOption {
	return func(o *fitOptions) {
		o.ridge = lambda
	}
}

// Fit projects a demonstration onto the basis set by least squares and
// returns the stacked weight vector.
func Fit(demo *Demonstration, set *basis.Set, opts ...FitOption) (*mat.VecDense, error) {
	o := fitOptions{ridge: DefaultRidge}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ridge < 0 {
		return nil, fmt.Errorf("%w: negative ridge %v", basis.ErrInvalidConfig, o.ridge)
	}

	phi, err := set.DesignMatrix(demo.phases)
	if err != nil {
		return nil, err
	}
	m, n := phi.Dims()
	dims := demo.Dims()

	var w mat.Dense
	if o.ridge > 0 {
		// (ΦᵀΦ + λI) W = ΦᵀY
		var a mat.SymDense
		a.SymOuterK(1, phi.T())
		for i := 0; i < n; i++ {
			a.SetSym(i, i, a.At(i, i)+o.ridge)
		}
		var b mat.Dense
		b.Mul(phi.T(), demo.values)
		var chol mat.Cholesky
		if ok := chol.Factorize(&a); !ok {
			return nil, fmt.Errorf("%w: regularized normal equations are not positive definite", ErrDegenerateDemonstration)
		}
		if err := chol.SolveTo(&w, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateDemonstration, err)
		}
	} else {
		if m < n {
			return nil, fmt.Errorf("%w: %d distinct phases for %d basis functions", ErrDegenerateDemonstration, m, n)
		}
		// Least squares through QR, or LU when the system is square.
		if err := w.Solve(phi, demo.values); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateDemonstration, err)
		}
	}
	if utils.HasNaNOrInf(&w) {
		return nil, fmt.Errorf("%w: fitted weights are not finite", ErrDegenerateDemonstration)
	}

	// Stack the per-dimension weight columns.
	cols := make([]mat.Vector, dims)
	for d := range cols {
		cols[d] = w.ColView(d)
	}
	return utils.ConcatVecs(n*dims, cols...), nil
}

// Evaluate returns the D values of the trajectory given by weights at phase p.
func Evaluate(weights mat.Vector, set *basis.Set, p float64) (*mat.VecDense, error) {
	return EvaluateDerivative(weights, set, p, 0)
}

// EvaluateDerivative returns the phase derivative of the given order of the
// trajectory given by weights at phase p.
func EvaluateDerivative(weights mat.Vector, set *basis.Set, p float64, order int) (*mat.VecDense, error) {
	dims, err := Dims(weights, set)
	if err != nil {
		return nil, err
	}
	h, err := set.Observation(p, dims, order)
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(dims, nil)
	out.MulVec(h, weights)
	return out, nil
}

// Dims infers the number of dimensions stored in a weight vector.
func Dims(weights mat.Vector, set *basis.Set) (int, error) {
	n := set.Len()
	l := weights.Len()
	if l == 0 || l%n != 0 {
		return 0, fmt.Errorf("%w: %d weights for %d basis functions", basis.ErrInvalidConfig, l, n)
	}
	return l / n, nil
}

// Model couples a basis set with the weights of one fitted trajectory.
type Model struct {
	set     *basis.Set
	opts    []FitOption
	weights *mat.VecDense
}

func NewModel(set *basis.Set, opts ...FitOption) *Model {
	return &Model{
		set:  set,
		opts: opts,
	}
}

// NewModelWithWeights builds a model from known weights.
func NewModelWithWeights(set *basis.Set, weights mat.Vector) (*Model, error) {
	if _, err := Dims(weights, set); err != nil {
		return nil, err
	}
	w := &mat.VecDense{}
	w.CloneFromVec(weights)
	return &Model{
		set:     set,
		weights: w,
	}, nil
}

// Fit replaces the weights with the projection of demo.
func (m *Model) Fit(demo *Demonstration) error {
	w, err := Fit(demo, m.set, m.opts...)
	if err != nil {
		return err
	}
	m.weights = w
	return nil
}

func (m *Model) Evaluate(p float64) (*mat.VecDense, error) {
	return m.Derivative(p, 0)
}

func (m *Model) Derivative(p float64, order int) (*mat.VecDense, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	return EvaluateDerivative(m.weights, m.set, p, order)
}

// Weights returns a copy of the weight vector, or nil before Fit.
func (m *Model) Weights() *mat.VecDense {
	if m.weights == nil {
		return nil
	}
	w := &mat.VecDense{}
	w.CloneFromVec(m.weights)
	return w
}

func (m *Model) Dims() int {
	if m.weights == nil {
		return 0
	}
	return m.weights.Len() / m.set.Len()
}
