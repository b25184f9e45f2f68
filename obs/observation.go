package obs

import (
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/mat"
)

// Observation is a noisy linear observation y = H·w + e, e ~ N(0, R), of a
// stacked weight vector w.
type Observation interface {
	// Design returns H, y and R (nil R means noise-free) for a primitive
	// with the given basis set and number of dimensions.
	Design(set *basis.Set, dims int) (h *mat.Dense, y *mat.VecDense, r *mat.SymDense, err error)
}

var (
	viaPoint *ViaPoint
	_        Observation = viaPoint // Check that ViaPoint respects the Observation interface.
)

// ViaPoint constrains the trajectory (or one of its phase derivatives) to pass
// through a target at a given phase.
type ViaPoint struct {
	phase  float64
	order  int
	target []float64
	cov    *mat.SymDense
	dims   []int
}

type Option func(*ViaPoint)

// Order makes the via-point constrain the phase derivative of order k
// (1 velocity, 2 acceleration) instead of the position.
func Order(k int) Option {
	return func(v *ViaPoint) {
		v.order = k
	}
}

// Only restricts the via-point to a subset of dimensions, in the given
// order. The target then holds one value per listed dimension.
func Only(dims ...int) Option {
	return func(v *ViaPoint) {
		v.dims = append([]int(nil), dims...)
	}
}

// NewViaPoint returns a via-point at phase with the given target and
// observation noise covariance. A nil covariance is a noise-free observation.
func NewViaPoint(phase float64, target []float64, cov [][]float64, opts ...Option) (*ViaPoint, error) {
	if math.IsNaN(phase) || math.IsInf(phase, 0) {
		return nil, fmt.Errorf("%w: phase %v", basis.ErrInvalidConfig, phase)
	}
	if len(target) == 0 {
		return nil, fmt.Errorf("%w: empty target", basis.ErrInvalidConfig)
	}
	t := mat.NewVecDense(len(target), append([]float64(nil), target...))
	if utils.HasNaNOrInf(t) {
		return nil, fmt.Errorf("%w: target is not finite", basis.ErrInvalidConfig)
	}
	v := &ViaPoint{
		phase:  phase,
		target: t.RawVector().Data,
	}
	if cov != nil {
		sym, err := symFromRows(cov, len(target))
		if err != nil {
			return nil, err
		}
		v.cov = sym
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// NewViaPointPrecision is NewViaPoint with the noise given as a precision
// (inverse covariance) matrix.
func NewViaPointPrecision(phase float64, target []float64, precision [][]float64, opts ...Option) (*ViaPoint, error) {
	if len(target) == 0 {
		return nil, fmt.Errorf("%w: empty target", basis.ErrInvalidConfig)
	}
	prec, err := symFromRows(precision, len(target))
	if err != nil {
		return nil, err
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(prec); !ok {
		return nil, fmt.Errorf("%w: precision is not positive definite", basis.ErrInvalidConfig)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("%w: %v", basis.ErrInvalidConfig, err)
	}
	v, err := NewViaPoint(phase, target, nil, opts...)
	if err != nil {
		return nil, err
	}
	v.cov = &cov
	return v, nil
}

// Start constrains the beginning of the motion (phase 0).
func Start(target []float64, cov [][]float64, opts ...Option) (*ViaPoint, error) {
	return NewViaPoint(0, target, cov, opts...)
}

// Goal constrains the end of the motion (phase 1).
func Goal(target []float64, cov [][]float64, opts ...Option) (*ViaPoint, error) {
	return NewViaPoint(1, target, cov, opts...)
}

func (v *ViaPoint) Phase() float64 {
	return v.phase
}

func (v *ViaPoint) Order() int {
	return v.order
}

func (v *ViaPoint) Design(set *basis.Set, dims int) (*mat.Dense, *mat.VecDense, *mat.SymDense, error) {
	h, err := set.Observation(v.phase, dims, v.order)
	if err != nil {
		return nil, nil, nil, err
	}
	observed := v.dims
	if observed == nil {
		observed = make([]int, dims)
		for i := range observed {
			observed[i] = i
		}
	}
	if len(observed) != len(v.target) {
		return nil, nil, nil, fmt.Errorf("%w: %d target values for %d observed dimensions", basis.ErrInvalidConfig, len(v.target), len(observed))
	}

	seen := make(map[int]bool, len(observed))
	_, cols := h.Dims()
	sel := mat.NewDense(len(observed), cols, nil)
	for i, d := range observed {
		if d < 0 || d >= dims || seen[d] {
			return nil, nil, nil, fmt.Errorf("%w: observed dimension %d (have %d)", basis.ErrInvalidConfig, d, dims)
		}
		seen[d] = true
		sel.SetRow(i, h.RawRowView(d))
	}

	y := mat.NewVecDense(len(v.target), append([]float64(nil), v.target...))
	var r *mat.SymDense
	if v.cov != nil {
		r = mat.NewSymDense(v.cov.SymmetricDim(), nil)
		r.CopySym(v.cov)
	}
	return sel, y, r, nil
}

func symFromRows(rows [][]float64, n int) (*mat.SymDense, error) {
	if len(rows) != n {
		return nil, fmt.Errorf("%w: %d covariance rows for %d values", basis.ErrInvalidConfig, len(rows), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: covariance row %d has %d entries, want %d", basis.ErrInvalidConfig, i, len(row), n)
		}
		data = append(data, row...)
	}
	dense := mat.NewDense(n, n, data)
	if utils.HasNaNOrInf(dense) {
		return nil, fmt.Errorf("%w: covariance is not finite", basis.ErrInvalidConfig)
	}
	if !utils.IsSymmetric(dense, 1e-12) {
		return nil, fmt.Errorf("%w: covariance is not symmetric", basis.ErrInvalidConfig)
	}
	return utils.Symmetrize(dense), nil
}
