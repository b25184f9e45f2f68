package promp

import (
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/gauss"
	"github.com/lucasmaystre/gopromp/traj"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Predict returns the mean and covariance of the D positions at phase.
func (p *Primitive) Predict(phase float64) (*mat.VecDense, *mat.SymDense, error) {
	return p.PredictDerivative(phase, 0)
}

// PredictDerivative returns the mean and covariance of the phase derivative
// of the given order at phase.
func (p *Primitive) PredictDerivative(phase float64, order int) (*mat.VecDense, *mat.SymDense, error) {
	dist, err := p.current()
	if err != nil {
		return nil, nil, err
	}
	h, err := p.set.Observation(phase, p.dims, order)
	if err != nil {
		return nil, nil, err
	}
	mean, cov := gauss.Marginal(dist.mean, dist.cov, h)
	if utils.HasNaNOrInf(mean) || utils.HasNaNOrInf(cov) {
		return nil, nil, fmt.Errorf("%w: order %d at phase %v", ErrNonFinite, order, phase)
	}
	return mean, cov, nil
}

// PredictTrajectory is PredictDerivative at every phase.
func (p *Primitive) PredictTrajectory(phases []float64, order int) ([]*mat.VecDense, []*mat.SymDense, error) {
	means := make([]*mat.VecDense, len(phases))
	covs := make([]*mat.SymDense, len(phases))
	for i, phase := range phases {
		m, c, err := p.PredictDerivative(phase, order)
		if err != nil {
			return nil, nil, err
		}
		means[i], covs[i] = m, c
	}
	return means, covs, nil
}

// PredictAtTime predicts the time derivative of the given order at time t,
// using the primitive's timing.
func (p *Primitive) PredictAtTime(t float64, order int) (*mat.VecDense, *mat.SymDense, error) {
	mean, cov, err := p.PredictDerivative(p.timing.Phase(t), order)
	if err != nil {
		return nil, nil, err
	}
	if order > 0 {
		rate := p.timing.rate(order)
		mean.ScaleVec(rate, mean)
		cov.ScaleSym(rate*rate, cov)
	}
	return mean, cov, nil
}

// Sample draws a weight vector from the distribution. A nil src uses gonum's
// global source.
func (p *Primitive) Sample(src gauss.Source) (*mat.VecDense, error) {
	dist, err := p.current()
	if err != nil {
		return nil, err
	}
	u, added, err := gauss.Cholesky(dist.cov, p.jitter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNonPositiveSemiDefinite, err)
	}
	if added > 0 {
		p.logger.Debugw("regularized covariance for sampling", "jitter", added)
	}
	return gauss.Sample(dist.mean, u, src), nil
}

// SampleTrajectory draws one weight vector and evaluates it at every phase.
func (p *Primitive) SampleTrajectory(phases []float64, src gauss.Source) ([]*mat.VecDense, error) {
	w, err := p.Sample(src)
	if err != nil {
		return nil, err
	}
	out := make([]*mat.VecDense, len(phases))
	for i, phase := range phases {
		if out[i], err = traj.Evaluate(w, p.set, phase); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LogLikelihood returns the log density of demo under the primitive, with
// independent Gaussian noise of the given variance on every sample.
func (p *Primitive) LogLikelihood(demo *traj.Demonstration, noiseVariance float64) (float64, error) {
	if !(noiseVariance >= 0) || math.IsInf(noiseVariance, 0) {
		return 0, fmt.Errorf("%w: noise variance %v", basis.ErrInvalidConfig, noiseVariance)
	}
	if err := p.checkDims(demo); err != nil {
		return 0, err
	}
	values := demo.Values()
	total := 0.0
	for i, phase := range demo.Phases() {
		mean, cov, err := p.Predict(phase)
		if err != nil {
			return 0, err
		}
		for d := 0; d < p.dims; d++ {
			cov.SetSym(d, d, cov.At(d, d)+noiseVariance)
		}
		normal, ok := distmv.NewNormal(mean.RawVector().Data, cov, nil)
		if !ok {
			return 0, fmt.Errorf("%w: predictive covariance at phase %v", ErrNonPositiveSemiDefinite, phase)
		}
		total += normal.LogProb(values.RawRowView(i))
	}
	return total, nil
}
