package promp

import (
	"fmt"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/mat"
)

// Distribution is a Gaussian distribution over stacked weight vectors.
// Values are never modified in place; getters return copies.
type Distribution struct {
	mean *mat.VecDense
	cov  *mat.SymDense
}

// NewDistribution copies mean and cov into a new distribution.
func NewDistribution(mean mat.Vector, cov mat.Symmetric) (*Distribution, error) {
	if mean.Len() == 0 || cov.SymmetricDim() != mean.Len() {
		return nil, fmt.Errorf("%w: covariance of size %d for a mean of length %d", basis.ErrInvalidConfig, cov.SymmetricDim(), mean.Len())
	}
	if utils.HasNaNOrInf(mean) || utils.HasNaNOrInf(cov) {
		return nil, fmt.Errorf("%w: distribution is not finite", basis.ErrInvalidConfig)
	}
	m := &mat.VecDense{}
	m.CloneFromVec(mean)
	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)
	return &Distribution{
		mean: m,
		cov:  c,
	}, nil
}

// Len returns the length N·D of the weight vectors.
func (d *Distribution) Len() int {
	return d.mean.Len()
}

func (d *Distribution) Mean() *mat.VecDense {
	m := &mat.VecDense{}
	m.CloneFromVec(d.mean)
	return m
}

func (d *Distribution) Cov() *mat.SymDense {
	c := mat.NewSymDense(d.cov.SymmetricDim(), nil)
	c.CopySym(d.cov)
	return c
}
