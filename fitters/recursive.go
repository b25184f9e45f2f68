package fitters

import (
	"errors"
	"fmt"

	"github.com/lucasmaystre/gopromp/basis"
	"gonum.org/v1/gonum/mat"
)

var ErrInsufficientSamples = errors.New("insufficient samples for covariance estimation")

// Recursive accumulates the mean and covariance of weight vectors one at a
// time (Welford's algorithm), so that a distribution can be refined without
// refitting every demonstration.
type Recursive struct {
	n    int
	mean *mat.VecDense
	m2   *mat.SymDense // Sum of squared deviations from the running mean.
}

func NewRecursive(size int) *Recursive {
	return &Recursive{
		mean: mat.NewVecDense(size, nil),
		m2:   mat.NewSymDense(size, nil),
	}
}

// NewRecursiveFromMoments resumes accumulation from the mean and unbiased
// covariance of n earlier samples. With n == 1 the covariance carries no
// sample information and is ignored.
func NewRecursiveFromMoments(n int, mean mat.Vector, cov mat.Symmetric) (*Recursive, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: have %d, need 1", ErrInsufficientSamples, n)
	}
	if cov.SymmetricDim() != mean.Len() {
		return nil, fmt.Errorf("%w: covariance of size %d for a mean of length %d", basis.ErrInvalidConfig, cov.SymmetricDim(), mean.Len())
	}
	r := NewRecursive(mean.Len())
	r.n = n
	r.mean.CopyVec(mean)
	r.m2.ScaleSym(float64(n-1), cov)
	return r, nil
}

// Add folds one sample into the running moments.
func (r *Recursive) Add(x mat.Vector) error {
	if x.Len() != r.mean.Len() {
		return fmt.Errorf("%w: sample of length %d, want %d", basis.ErrInvalidConfig, x.Len(), r.mean.Len())
	}
	r.n++
	n := float64(r.n)
	// delta = x - mean;  mean += delta / n
	var delta mat.VecDense
	delta.SubVec(x, r.mean)
	r.mean.AddScaledVec(r.mean, 1/n, &delta)
	// M2 += (n-1)/n * outer(delta, delta)
	r.m2.SymRankOne(r.m2, (n-1)/n, &delta)
	return nil
}

// Count returns the number of samples added so far.
func (r *Recursive) Count() int {
	return r.n
}

func (r *Recursive) Mean() *mat.VecDense {
	m := &mat.VecDense{}
	m.CloneFromVec(r.mean)
	return m
}

// Cov returns the unbiased sample covariance M2 / (n-1).
func (r *Recursive) Cov() (*mat.SymDense, error) {
	if r.n < 2 {
		return nil, fmt.Errorf("%w: have %d, need 2", ErrInsufficientSamples, r.n)
	}
	size := r.mean.Len()
	cov := mat.NewSymDense(size, nil)
	cov.ScaleSym(1/float64(r.n-1), r.m2)
	return cov, nil
}

func (r *Recursive) Clone() *Recursive {
	m2 := mat.NewSymDense(r.m2.SymmetricDim(), nil)
	m2.CopySym(r.m2)
	return &Recursive{
		n:    r.n,
		mean: r.Mean(),
		m2:   m2,
	}
}

// Moments returns the sample mean and unbiased covariance of ws.
func Moments(ws []*mat.VecDense) (*mat.VecDense, *mat.SymDense, error) {
	if len(ws) == 0 {
		return nil, nil, fmt.Errorf("%w: no samples", ErrInsufficientSamples)
	}
	r := NewRecursive(ws[0].Len())
	for _, w := range ws {
		if err := r.Add(w); err != nil {
			return nil, nil, err
		}
	}
	cov, err := r.Cov()
	if err != nil {
		return r.Mean(), nil, err
	}
	return r.Mean(), cov, nil
}
