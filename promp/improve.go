package promp

import (
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Improve returns a copy of the primitive whose distribution moves towards
// the weight vectors with the highest rewards. samples are usually drawn with
// Sample and rewards[i] scores samples[i]; larger is better. The receiver is
// not modified.
//
// The update is the rank-μ step of CMA-ES. The better half of the samples is
// recombined with log-rank weights w:
//
//	mean' = Σ w_i x_i
//	cov'  = (1 - c) cov + c Σ w_i (x_i - mean)(x_i - mean)ᵀ
//
// where the rate c shrinks with the number of weights and grows with the
// effective number of selected samples 1 / Σ w_i².
func (p *Primitive) Improve(samples []*mat.VecDense, rewards []float64) (*Primitive, error) {
	dist, err := p.current()
	if err != nil {
		return nil, err
	}
	if len(samples) != len(rewards) {
		return nil, fmt.Errorf("%w: %d samples and %d rewards", basis.ErrInvalidConfig, len(samples), len(rewards))
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: have %d samples, need 2", ErrInsufficientSamples, len(samples))
	}
	n := dist.Len()
	for i, x := range samples {
		if x == nil || x.Len() != n || utils.HasNaNOrInf(x) {
			return nil, fmt.Errorf("%w: sample %d is not a finite vector of length %d", basis.ErrInvalidConfig, i, n)
		}
		if math.IsNaN(rewards[i]) || math.IsInf(rewards[i], 0) {
			return nil, fmt.Errorf("%w: reward %d is %v", basis.ErrInvalidConfig, i, rewards[i])
		}
	}

	order := rank(rewards)
	weights := recombination(len(samples) / 2)
	muEff := 1 / floats.Dot(weights, weights)
	rate := rankMuRate(n, muEff)

	mean := mat.NewVecDense(n, nil)
	spread := mat.NewSymDense(n, nil)
	var delta mat.VecDense
	for k, w := range weights {
		x := samples[order[k]]
		mean.AddScaledVec(mean, w, x)
		delta.SubVec(x, dist.mean)
		spread.SymRankOne(spread, w, &delta)
	}
	cov := dist.Cov()
	cov.ScaleSym(1-rate, cov)
	spread.ScaleSym(rate, spread)
	cov.AddSym(cov, spread)

	improved, err := NewDistribution(mean, cov)
	if err != nil {
		return nil, err
	}
	out := *p
	out.dist = improved
	out.acc = nil
	out.state = Fitted
	p.logger.Debugw("improved primitive",
		"samples", len(samples),
		"selected", len(weights),
		"rate", rate,
		"best", rewards[order[0]])
	return &out, nil
}

// rank returns the indices of rewards from the largest to the smallest.
func rank(rewards []float64) []int {
	neg := make([]float64, len(rewards))
	floats.ScaleTo(neg, -1, rewards)
	order := make([]int, len(rewards))
	floats.Argsort(neg, order)
	return order
}

// recombination returns mu positive weights summing to one, decreasing with
// the log of the rank.
func recombination(mu int) []float64 {
	if mu < 1 {
		mu = 1
	}
	w := make([]float64, mu)
	for i := range w {
		w[i] = math.Log(float64(mu)+0.5) - math.Log(float64(i+1))
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

func rankMuRate(n int, muEff float64) float64 {
	d := float64(n) + 2
	c := 2 * (muEff - 2 + 1/muEff) / (d*d + muEff)
	return math.Max(0, math.Min(1, c))
}
