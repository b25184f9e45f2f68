// Package basis builds sets of basis functions over a normalized phase in
// [0, 1] and the design matrices used to fit and query trajectories.
//
// Centers of non-periodic kernels are spread evenly over [-Padding, 1+Padding]
// (a single function sits at 0.5). Periodic kernels place their N centers at
// i/N, since phase 1 coincides with phase 0. A normalized set divides every
// response by the sum over all functions. The ratio is computed from the log
// responses, so it stays finite far outside the domain, where the nearest
// center takes all the weight.
package basis

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/kern"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidConfig = errors.New("invalid configuration")
var ErrUnsupportedOrder = kern.ErrUnsupportedOrder

// Config describes a basis function set. It is all that is needed to rebuild
// an equivalent Set.
type Config struct {
	Count      int         `json:"count" toml:"count"`
	Width      float64     `json:"width" toml:"width"`
	Family     kern.Family `json:"family,omitempty" toml:"family"`
	Normalized bool        `json:"normalized" toml:"normalized"`
	Padding    float64     `json:"padding,omitempty" toml:"padding"`
}

func (c Config) Validate() error {
	if c.Count < 1 {
		return fmt.Errorf("%w: basis count %d < 1", ErrInvalidConfig, c.Count)
	}
	if !(c.Width > 0) || math.IsInf(c.Width, 0) {
		return fmt.Errorf("%w: kernel width %v must be positive and finite", ErrInvalidConfig, c.Width)
	}
	if c.Padding < 0 || math.IsNaN(c.Padding) || math.IsInf(c.Padding, 0) {
		return fmt.Errorf("%w: padding %v", ErrInvalidConfig, c.Padding)
	}
	return nil
}

// Set is an immutable set of basis functions.
type Set struct {
	cfg     Config
	kernel  kern.Kernel
	centers []float64
}

func New(cfg Config) (*Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kernel, err := kern.New(cfg.Family, cfg.Width)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Family == "" {
		cfg.Family = kern.FamilyGaussian
	}
	n := cfg.Count
	centers := make([]float64, n)
	switch {
	case kernel.Periodic():
		for i := range centers {
			centers[i] = float64(i) / float64(n)
		}
	case n == 1:
		centers[0] = 0.5
	default:
		floats.Span(centers, -cfg.Padding, 1+cfg.Padding)
	}
	return &Set{
		cfg:     cfg,
		kernel:  kernel,
		centers: centers,
	}, nil
}

func (s *Set) Config() Config {
	return s.cfg
}

// Len returns the number of basis functions N.
func (s *Set) Len() int {
	return len(s.centers)
}

func (s *Set) Centers() []float64 {
	out := make([]float64, len(s.centers))
	copy(out, s.centers)
	return out
}

// Evaluate returns the response of every basis function at phase p. Phases
// outside [0, 1] are allowed.
func (s *Set) Evaluate(p float64) *mat.VecDense {
	out := make([]float64, len(s.centers))
	s.fill(out, p, 0)
	return mat.NewVecDense(len(out), out)
}

// Derivative returns the derivative of the given order (0, 1 or 2) of every
// basis function with respect to phase, at phase p.
func (s *Set) Derivative(p float64, order int) (*mat.VecDense, error) {
	if order < 0 || order > 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedOrder, order)
	}
	out := make([]float64, len(s.centers))
	s.fill(out, p, order)
	return mat.NewVecDense(len(out), out), nil
}

// DesignMatrix stacks Evaluate row-wise for the given phases.
func (s *Set) DesignMatrix(phases []float64) (*mat.Dense, error) {
	return s.DesignMatrixDerivative(phases, 0)
}

// DesignMatrixDerivative stacks Derivative row-wise for the given phases.
func (s *Set) DesignMatrixDerivative(phases []float64, order int) (*mat.Dense, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidConfig)
	}
	if order < 0 || order > 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedOrder, order)
	}
	n := len(s.centers)
	out := mat.NewDense(len(phases), n, nil)
	for i, p := range phases {
		s.fill(out.RawRowView(i), p, order)
	}
	return out, nil
}

// Observation returns the (dims x N·dims) matrix I_dims ⊗ φ(p)ᵀ that maps a
// stacked weight vector to the value (or derivative) of every dimension at
// phase p.
func (s *Set) Observation(p float64, dims, order int) (*mat.Dense, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: %d dimensions", ErrInvalidConfig, dims)
	}
	phi, err := s.Derivative(p, order)
	if err != nil {
		return nil, err
	}
	n := s.Len()
	blocks := make([]mat.Matrix, dims)
	for d := range blocks {
		blocks[d] = phi.T()
	}
	return utils.BlockDiag(dims, n*dims, blocks...), nil
}

func (s *Set) fill(out []float64, p float64, order int) {
	if !s.cfg.Normalized {
		for i, c := range s.centers {
			// order is range checked by the callers.
			out[i], _ = s.kernel.Derivative(p, c, order)
		}
		return
	}

	// Responses are taken relative to the largest one, so the normalizer is
	// at least 1 at any phase.
	//   φ_i   = w_i / Σw,  w_i = exp(g_i - max g)
	//   φ_i'  = φ_i (g1_i - m1),  m1 = Σ φ_j g1_j
	//   φ_i'' = φ_i ((g1_i - m1)² + g2_i - m2 - v),  m2 = Σ φ_j g2_j,  v = Σ φ_j (g1_j - m1)²
	n := len(s.centers)
	g := make([]float64, n)
	g1 := make([]float64, n)
	g2 := make([]float64, n)
	for i, c := range s.centers {
		g[i], g1[i], g2[i] = s.kernel.Log(p, c)
	}
	top := floats.Max(g)
	for i := range out {
		out[i] = math.Exp(g[i] - top)
	}
	floats.Scale(1/floats.Sum(out), out)
	if order == 0 {
		return
	}

	m1 := floats.Dot(out, g1)
	if order == 1 {
		for i := range out {
			out[i] *= g1[i] - m1
		}
		return
	}

	m2 := floats.Dot(out, g2)
	v := 0.0
	for i := range out {
		d := g1[i] - m1
		v += out[i] * d * d
	}
	for i := range out {
		d := g1[i] - m1
		out[i] *= d*d + g2[i] - m2 - v
	}
}
