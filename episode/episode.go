// Package episode improves a primitive by trial and error. Each episode
// samples trajectories from the primitive, scores them in an environment and
// moves the weight distribution towards the better ones.
package episode

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/gauss"
	"github.com/lucasmaystre/gopromp/promp"
	"github.com/lucasmaystre/gopromp/traj"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var ErrNoEnvironment = errors.New("no environment")

// DefaultPhases is the number of evenly spaced phases in [0, 1] at which
// rollouts are evaluated.
const DefaultPhases = 50

// Environment scores rollouts. Evaluate receives the D positions of a
// trajectory at each of the controller's phases and returns its reward;
// larger is better. Evaluate may be called concurrently.
type Environment interface {
	Name() string
	Evaluate(ctx context.Context, trajectory []*mat.VecDense) (float64, error)
}

// Result summarizes one episode.
type Result struct {
	Episode int
	Rewards []float64
	Best    float64
	Mean    float64
}

type Controller struct {
	primitive *promp.Primitive
	env       Environment
	phases    []float64
	samples   int
	workers   int
	src       gauss.Source
	logger    *zap.SugaredLogger
	episodes  int
}

type Option func(*Controller)

// WithSamples sets the number of rollouts per episode. The default is the
// CMA-ES population size 4 + ⌊3 ln n⌋ for n weights.
func WithSamples(n int) Option {
	return func(c *Controller) {
		c.samples = n
	}
}

func WithPhases(phases []float64) Option {
	return func(c *Controller) {
		c.phases = make([]float64, len(phases))
		copy(c.phases, phases)
	}
}

// WithWorkers bounds the number of concurrent evaluations. 0 means no bound.
func WithWorkers(n int) Option {
	return func(c *Controller) {
		c.workers = n
	}
}

// WithSource sets the normal source used for sampling. Rollouts are drawn
// sequentially, so a seeded source gives reproducible episodes.
func WithSource(src gauss.Source) Option {
	return func(c *Controller) {
		c.src = src
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController returns a controller that starts from a fitted primitive.
func NewController(p *promp.Primitive, env Environment, opts ...Option) (*Controller, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil primitive", basis.ErrInvalidConfig)
	}
	if p.State() == promp.Empty {
		return nil, promp.ErrNotFitted
	}
	if env == nil {
		return nil, ErrNoEnvironment
	}
	n := p.Set().Len() * p.Dims()
	c := &Controller{
		primitive: p,
		env:       env,
		samples:   4 + int(3*math.Log(float64(n))),
		logger:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.phases == nil {
		c.phases = make([]float64, DefaultPhases)
		floats.Span(c.phases, 0, 1)
	}
	switch {
	case c.samples < 2:
		return nil, fmt.Errorf("%w: %d samples per episode", basis.ErrInvalidConfig, c.samples)
	case c.workers < 0:
		return nil, fmt.Errorf("%w: %d workers", basis.ErrInvalidConfig, c.workers)
	case len(c.phases) == 0:
		return nil, fmt.Errorf("%w: no phases", basis.ErrInvalidConfig)
	case c.logger == nil:
		c.logger = zap.NewNop().Sugar()
	}
	return c, nil
}

// Primitive returns the current primitive. Earlier primitives are never
// modified by later episodes.
func (c *Controller) Primitive() *promp.Primitive {
	return c.primitive
}

// Episode runs one round of rollouts and replaces the primitive with the
// improved one. On error the primitive is left as it was.
func (c *Controller) Episode(ctx context.Context) (Result, error) {
	weights := make([]*mat.VecDense, c.samples)
	rollouts := make([][]*mat.VecDense, c.samples)
	for i := range weights {
		w, err := c.primitive.Sample(c.src)
		if err != nil {
			return Result{}, err
		}
		if rollouts[i], err = c.rollout(w); err != nil {
			return Result{}, err
		}
		weights[i] = w
	}

	rewards := make([]float64, c.samples)
	g, gctx := errgroup.WithContext(ctx)
	if c.workers > 0 {
		g.SetLimit(c.workers)
	}
	for i := range rollouts {
		i := i
		g.Go(func() error {
			r, err := c.env.Evaluate(gctx, rollouts[i])
			if err != nil {
				return fmt.Errorf("%s: rollout %d: %w", c.env.Name(), i, err)
			}
			rewards[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	next, err := c.primitive.Improve(weights, rewards)
	if err != nil {
		return Result{}, err
	}
	c.primitive = next
	c.episodes++
	res := Result{
		Episode: c.episodes,
		Rewards: rewards,
		Best:    floats.Max(rewards),
		Mean:    stat.Mean(rewards, nil),
	}
	c.logger.Infow("episode",
		"environment", c.env.Name(),
		"episode", res.Episode,
		"best", res.Best,
		"mean", res.Mean)
	return res, nil
}

// Learn runs n episodes, stopping at the first error or when ctx is done.
func (c *Controller) Learn(ctx context.Context, n int) ([]Result, error) {
	results := make([]Result, 0, max(n, 0))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := c.Episode(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Controller) rollout(w *mat.VecDense) ([]*mat.VecDense, error) {
	out := make([]*mat.VecDense, len(c.phases))
	for i, phase := range c.phases {
		y, err := traj.Evaluate(w, c.primitive.Set(), phase)
		if err != nil {
			return nil, err
		}
		out[i] = y
	}
	return out, nil
}
