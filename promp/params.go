package promp

import (
	"fmt"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/fitters"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/mat"
)

// Params is the exported form of a primitive. Mean has length N·D and Cov
// holds the (N·D x N·D) covariance in row-major order.
type Params struct {
	Basis       basis.Config `json:"basis"`
	Dims        int          `json:"dims"`
	Mean        []float64    `json:"mean"`
	Cov         []float64    `json:"cov"`
	Timing      Timing       `json:"timing"`
	Samples     int          `json:"samples,omitempty"`
	Conditioned bool         `json:"conditioned,omitempty"`
}

// Export returns the parameters of the current distribution.
func (p *Primitive) Export() (Params, error) {
	dist, err := p.current()
	if err != nil {
		return Params{}, err
	}
	n := dist.Len()
	cov := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov = append(cov, dist.cov.At(i, j))
		}
	}
	params := Params{
		Basis:       p.set.Config(),
		Dims:        p.dims,
		Mean:        append([]float64(nil), dist.mean.RawVector().Data...),
		Cov:         cov,
		Timing:      p.timing,
		Conditioned: p.state == Conditioned,
	}
	if p.acc != nil {
		params.Samples = p.acc.Count()
	}
	return params, nil
}

// FromParams rebuilds a primitive from exported parameters. Options apply as
// in New; the timing stored in params takes precedence over WithTiming.
func FromParams(params Params, opts ...Option) (*Primitive, error) {
	set, err := basis.New(params.Basis)
	if err != nil {
		return nil, err
	}
	if err := params.Timing.Validate(); err != nil {
		return nil, err
	}
	p, err := New(set, params.Dims, append(opts, WithTiming(params.Timing))...)
	if err != nil {
		return nil, err
	}

	n := set.Len() * params.Dims
	if len(params.Mean) != n || len(params.Cov) != n*n {
		return nil, fmt.Errorf("%w: mean of length %d and covariance of %d entries for %d weights",
			basis.ErrInvalidConfig, len(params.Mean), len(params.Cov), n)
	}
	raw := mat.NewDense(n, n, append([]float64(nil), params.Cov...))
	if utils.HasNaNOrInf(raw) || !utils.IsSymmetric(raw, 1e-9) {
		return nil, fmt.Errorf("%w: covariance is not a finite symmetric matrix", basis.ErrInvalidConfig)
	}
	dist, err := NewDistribution(mat.NewVecDense(n, append([]float64(nil), params.Mean...)), utils.Symmetrize(raw))
	if err != nil {
		return nil, err
	}

	p.dist = dist
	p.state = Fitted
	if params.Conditioned {
		p.state = Conditioned
	} else if params.Samples >= 1 {
		if p.acc, err = fitters.NewRecursiveFromMoments(params.Samples, dist.mean, dist.cov); err != nil {
			return nil, err
		}
	}
	return p, nil
}
