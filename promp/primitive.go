// Package promp implements probabilistic movement primitives: a Gaussian
// distribution over the basis weights of a family of demonstrated
// trajectories, which can be queried, sampled and conditioned on via-points.
package promp

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/fitters"
	"github.com/lucasmaystre/gopromp/gauss"
	"github.com/lucasmaystre/gopromp/traj"
	"github.com/lucasmaystre/gopromp/utils"
	"go.uber.org/zap"
)

var ErrNotFitted = errors.New("primitive has no weight distribution")
var ErrInsufficientSamples = fitters.ErrInsufficientSamples
var ErrNonPositiveSemiDefinite = errors.New("covariance is not positive semi-definite")
var ErrSingularObservation = errors.New("singular observation")
var ErrConditioned = errors.New("distribution is conditioned or has no sample history")
var ErrNonFinite = errors.New("prediction is not finite")

// State is the lifecycle stage of a primitive.
type State int

const (
	Empty State = iota
	Fitted
	Conditioned
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Fitted:
		return "fitted"
	case Conditioned:
		return "conditioned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Primitive is a probabilistic movement primitive over D dimensions.
//
// Read-only methods may be called concurrently. Fit, Fold, TimeScale and
// PhaseShift modify the primitive and need external synchronization.
type Primitive struct {
	set     *basis.Set
	dims    int
	ridge   float64
	workers int
	jitter  float64
	logger  *zap.SugaredLogger
	timing  Timing

	hasPrior bool
	priorVar float64

	state State
	dist  *Distribution
	acc   *fitters.Recursive // nil once the distribution stops being a sample estimate.
}

type Option func(*Primitive)

// WithRidge sets the regularization used when projecting demonstrations.
func WithRidge(lambda float64) Option {
	return func(p *Primitive) {
		p.ridge = lambda
	}
}

// WithWorkers bounds the number of demonstrations projected concurrently.
// 0 means no bound.
func WithWorkers(n int) Option {
	return func(p *Primitive) {
		p.workers = n
	}
}

// WithSingleDemoPrior allows fitting from a single demonstration. The
// covariance is then variance·I.
func WithSingleDemoPrior(variance float64) Option {
	return func(p *Primitive) {
		p.hasPrior = true
		p.priorVar = variance
	}
}

// WithJitter sets the relative diagonal term used when a factorization has
// to be retried.
func WithJitter(scale float64) Option {
	return func(p *Primitive) {
		p.jitter = scale
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(p *Primitive) {
		p.logger = logger
	}
}

func WithTiming(t Timing) Option {
	return func(p *Primitive) {
		p.timing = t
	}
}

// New returns an empty primitive over the given basis set.
func New(set *basis.Set, dims int, opts ...Option) (*Primitive, error) {
	if set == nil {
		return nil, fmt.Errorf("%w: nil basis set", basis.ErrInvalidConfig)
	}
	if dims < 1 {
		return nil, fmt.Errorf("%w: %d dimensions", basis.ErrInvalidConfig, dims)
	}
	p := &Primitive{
		set:    set,
		dims:   dims,
		ridge:  traj.DefaultRidge,
		jitter: gauss.DefaultJitter,
		logger: zap.NewNop().Sugar(),
		timing: DefaultTiming,
	}
	for _, opt := range opts {
		opt(p)
	}
	switch {
	case p.ridge < 0 || math.IsNaN(p.ridge):
		return nil, fmt.Errorf("%w: ridge %v", basis.ErrInvalidConfig, p.ridge)
	case p.jitter < 0 || math.IsNaN(p.jitter):
		return nil, fmt.Errorf("%w: jitter %v", basis.ErrInvalidConfig, p.jitter)
	case p.workers < 0:
		return nil, fmt.Errorf("%w: %d workers", basis.ErrInvalidConfig, p.workers)
	case p.hasPrior && (!(p.priorVar >= 0) || math.IsInf(p.priorVar, 0)):
		return nil, fmt.Errorf("%w: single demonstration variance %v", basis.ErrInvalidConfig, p.priorVar)
	case p.logger == nil:
		p.logger = zap.NewNop().Sugar()
	}
	if err := p.timing.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Primitive) State() State {
	return p.state
}

func (p *Primitive) Set() *basis.Set {
	return p.set
}

func (p *Primitive) Dims() int {
	return p.dims
}

// Distribution returns a copy of the current weight distribution.
func (p *Primitive) Distribution() (*Distribution, error) {
	if p.dist == nil {
		return nil, ErrNotFitted
	}
	return NewDistribution(p.dist.mean, p.dist.cov)
}

// Fit replaces the weight distribution with the one estimated from demos.
// The primitive is left untouched on error.
func (p *Primitive) Fit(demos []*traj.Demonstration) error {
	if len(demos) == 0 {
		return fmt.Errorf("%w: no demonstrations", ErrInsufficientSamples)
	}
	if err := p.checkDims(demos...); err != nil {
		return err
	}
	ws, err := fitters.Project(demos, p.set, p.workers, traj.WithRidge(p.ridge))
	if err != nil {
		return err
	}
	acc := fitters.NewRecursive(p.set.Len() * p.dims)
	for _, w := range ws {
		if err := acc.Add(w); err != nil {
			return err
		}
	}
	dist, err := p.estimate(acc)
	if err != nil {
		return err
	}

	p.dist = dist
	p.acc = acc
	p.state = Fitted
	if duration, ok := meanDuration(demos); ok {
		p.timing.Duration = duration
	}
	p.logger.Debugw("fitted primitive",
		"demonstrations", len(demos),
		"basis", p.set.Len(),
		"dims", p.dims,
		"duration", p.timing.Duration)
	return nil
}

// Fold adds one demonstration to the distribution without refitting the
// earlier ones. The distribution is published once enough demonstrations
// have been folded to estimate a covariance.
func (p *Primitive) Fold(demo *traj.Demonstration) error {
	if p.state != Empty && p.acc == nil {
		return ErrConditioned
	}
	if err := p.checkDims(demo); err != nil {
		return err
	}
	w, err := traj.Fit(demo, p.set, traj.WithRidge(p.ridge))
	if err != nil {
		return err
	}
	var acc *fitters.Recursive
	if p.acc == nil {
		acc = fitters.NewRecursive(w.Len())
	} else {
		acc = p.acc.Clone()
	}
	if err := acc.Add(w); err != nil {
		return err
	}

	dist, err := p.estimate(acc)
	switch {
	case errors.Is(err, ErrInsufficientSamples):
		p.acc = acc
		p.logger.Debugw("folded demonstration", "samples", acc.Count(), "published", false)
		return nil
	case err != nil:
		return err
	}
	p.acc = acc
	p.dist = dist
	p.state = Fitted
	p.logger.Debugw("folded demonstration", "samples", acc.Count(), "published", true)
	return nil
}

// estimate turns accumulated moments into a distribution, falling back to
// the single demonstration prior when configured.
func (p *Primitive) estimate(acc *fitters.Recursive) (*Distribution, error) {
	cov, err := acc.Cov()
	if err != nil {
		if !p.hasPrior || acc.Count() < 1 {
			return nil, err
		}
		// cov = priorVar * eye(size)
		cov = utils.Symmetrize(utils.Eye(acc.Mean().Len()))
		cov.ScaleSym(p.priorVar, cov)
	}
	return NewDistribution(acc.Mean(), cov)
}

func (p *Primitive) checkDims(demos ...*traj.Demonstration) error {
	for i, demo := range demos {
		if demo == nil {
			return fmt.Errorf("%w: demonstration %d is nil", basis.ErrInvalidConfig, i)
		}
		if demo.Dims() != p.dims {
			return fmt.Errorf("%w: demonstration %d has %d dimensions, want %d", basis.ErrInvalidConfig, i, demo.Dims(), p.dims)
		}
	}
	return nil
}

func (p *Primitive) current() (*Distribution, error) {
	if p.dist == nil {
		return nil, ErrNotFitted
	}
	return p.dist, nil
}

// meanDuration averages the durations of timed demonstrations. It reports
// false unless every demonstration is timed.
func meanDuration(demos []*traj.Demonstration) (float64, bool) {
	sum := 0.0
	for _, demo := range demos {
		if !demo.Timed() {
			return 0, false
		}
		sum += demo.Duration()
	}
	return sum / float64(len(demos)), true
}
