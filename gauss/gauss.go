// Package gauss implements the multivariate normal operations behind
// probabilistic primitives: factorization, linear propagation, sampling and
// conditioning on noisy linear observations.
//
// Factorizations that fail are retried exactly once after adding a small
// multiple of the mean diagonal ("jitter") to the diagonal.
package gauss

import (
	"errors"
	"fmt"

	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrNotPositiveDefinite = errors.New("matrix is not positive definite")
var ErrSingular = errors.New("innovation covariance is singular")

// DefaultJitter is the relative diagonal term used by the regularization
// pass.
const DefaultJitter = 1e-9

// MaxCondition bounds the condition number accepted for an innovation
// covariance.
const MaxCondition = 1e14

// Source provides standard normal draws. *rand.Rand from math/rand and
// math/rand/v2 both satisfy it.
type Source interface {
	NormFloat64() float64
}

type unitNormal struct{}

func (unitNormal) NormFloat64() float64 {
	return distuv.UnitNormal.Rand()
}

// Cholesky returns the upper triangular U with a = UᵀU. If a is not positive
// definite it retries once with jitter·mean(diag(a)) added to the diagonal and
// reports the amount added. The zero matrix yields a zero U.
func Cholesky(a mat.Symmetric, jitter float64) (u blas64.Triangular, added float64, err error) {
	n := a.SymmetricDim()
	if n == 0 {
		return u, 0, fmt.Errorf("%w: empty matrix", ErrNotPositiveDefinite)
	}
	if utils.HasNaNOrInf(a) {
		return u, 0, fmt.Errorf("%w: non-finite entries", ErrNotPositiveDefinite)
	}
	sym := blas64.Symmetric{
		N:      n,
		Stride: n,
		Data:   make([]float64, n*n),
		Uplo:   blas.Upper,
	}
	load := func(extra float64) {
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				sym.Data[i*n+j] = a.At(i, j)
			}
			sym.Data[i*n+i] += extra
		}
	}

	load(0)
	if t, ok := lapack64.Potrf(sym); ok {
		return t, 0, nil
	}

	added = jitter * diagScale(a)
	if added <= 0 {
		if !mat.Equal(a, mat.NewSymDense(n, nil)) {
			return u, 0, fmt.Errorf("%w: zero diagonal", ErrNotPositiveDefinite)
		}
		// The zero matrix factors as the zero triangle.
		return blas64.Triangular{
			N:      n,
			Stride: n,
			Data:   make([]float64, n*n),
			Uplo:   blas.Upper,
			Diag:   blas.NonUnit,
		}, 0, nil
	}
	load(added)
	t, ok := lapack64.Potrf(sym)
	if !ok {
		return u, added, fmt.Errorf("%w: after adding %g to the diagonal", ErrNotPositiveDefinite, added)
	}
	return t, added, nil
}

// Sample draws mean + Uᵀz with z standard normal. A nil src uses gonum's
// global unit normal.
func Sample(mean mat.Vector, u blas64.Triangular, src Source) *mat.VecDense {
	if src == nil {
		src = unitNormal{}
	}
	n := mean.Len()
	z := blas64.Vector{N: n, Inc: 1, Data: make([]float64, n)}
	for i := range z.Data {
		z.Data[i] = src.NormFloat64()
	}
	// z = dot(U.T, z)
	blas64.Trmv(blas.Trans, u, z)
	out := mat.NewVecDense(n, z.Data)
	out.AddVec(out, mean)
	return out
}

// Marginal propagates N(mean, cov) through the linear map h and returns
// (h·mean, h·cov·hᵀ).
func Marginal(mean mat.Vector, cov mat.Symmetric, h mat.Matrix) (*mat.VecDense, *mat.SymDense) {
	k, n := h.Dims()
	m := mat.NewVecDense(k, nil)
	m.MulVec(h, mean)

	matH := mat.DenseCopyOf(h).RawMatrix()
	sym := mat.NewSymDense(n, nil)
	sym.CopySym(cov)
	gen := blas64.General{Rows: k, Cols: n, Stride: n, Data: make([]float64, k*n)}
	out := blas64.General{Rows: k, Cols: k, Stride: k, Data: make([]float64, k*k)}
	// gen = dot(H, P)
	blas64.Symm(blas.Right, 1.0, sym.RawSymmetric(), matH, 0.0, gen)
	// out = dot(gen, H.T)
	blas64.Gemm(blas.NoTrans, blas.Trans, 1.0, gen, matH, 0.0, out)
	return m, utils.Symmetrize(mat.NewDense(k, k, out.Data))
}

// Condition returns the posterior of w ~ N(mean, cov) after observing
// y = h·w + e with e ~ N(0, r). A nil r is a noise-free observation.
//
//	gain = P hᵀ (h P hᵀ + r)⁻¹
//	mean' = mean + gain (y - h mean)
//	P' = P - gain h P
func Condition(mean mat.Vector, cov mat.Symmetric, h mat.Matrix, y mat.Vector, r mat.Symmetric, jitter float64) (*mat.VecDense, *mat.SymDense, error) {
	k, n := h.Dims()
	if mean.Len() != n || cov.SymmetricDim() != n || y.Len() != k {
		return nil, nil, fmt.Errorf("observation of shape %dx%d does not match a prior of size %d", k, n, mean.Len())
	}
	if r != nil && r.SymmetricDim() != k {
		return nil, nil, fmt.Errorf("noise covariance of size %d for %d observed values", r.SymmetricDim(), k)
	}

	hm, s := Marginal(mean, cov, h)
	if r != nil {
		s.AddSym(s, r)
	}
	chol, err := factorizeInnovation(s, jitter)
	if err != nil {
		return nil, nil, err
	}

	// hp = dot(H, P),  x = S⁻¹ hp,  gain = x.T
	var hp, x mat.Dense
	hp.Mul(h, cov)
	if err := chol.SolveTo(&x, &hp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	// mean' = mean + dot(x.T, y - H mean)
	var innov mat.VecDense
	innov.SubVec(y, hm)
	post := mat.NewVecDense(n, nil)
	post.MulVec(x.T(), &innov)
	post.AddVec(post, mean)

	// P' = P - dot(hp.T, x)
	var dp, pc mat.Dense
	dp.Mul(hp.T(), &x)
	pc.Sub(cov, &dp)
	postCov := utils.Symmetrize(&pc)

	if utils.HasNaNOrInf(post) || utils.HasNaNOrInf(postCov) {
		return nil, nil, fmt.Errorf("%w: posterior is not finite", ErrSingular)
	}
	return post, postCov, nil
}

func factorizeInnovation(s *mat.SymDense, jitter float64) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(s); ok && chol.Cond() <= MaxCondition {
		return &chol, nil
	}
	added := jitter * diagScale(s)
	if added <= 0 {
		return nil, fmt.Errorf("%w: observation carries no uncertainty where the prior has none", ErrSingular)
	}
	reg := mat.NewSymDense(s.SymmetricDim(), nil)
	reg.CopySym(s)
	for i := 0; i < reg.SymmetricDim(); i++ {
		reg.SetSym(i, i, reg.At(i, i)+added)
	}
	if ok := chol.Factorize(reg); !ok || chol.Cond() > MaxCondition {
		return nil, fmt.Errorf("%w: after adding %g to the diagonal", ErrSingular, added)
	}
	return &chol, nil
}

// diagScale is the mean absolute diagonal entry.
func diagScale(a mat.Symmetric) float64 {
	n := a.SymmetricDim()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		v := a.At(i, i)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(n)
}
