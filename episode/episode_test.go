package episode

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/promp"
	"github.com/lucasmaystre/gopromp/traj"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// level rewards trajectories that stay at a constant height.
type level struct {
	height float64
}

func (level) Name() string { return "level" }

func (e level) Evaluate(_ context.Context, trajectory []*mat.VecDense) (float64, error) {
	sum := 0.0
	for _, y := range trajectory {
		d := y.AtVec(0) - e.height
		sum += d * d
	}
	return -sum / float64(len(trajectory)), nil
}

type broken struct{}

func (broken) Name() string { return "broken" }

func (broken) Evaluate(context.Context, []*mat.VecDense) (float64, error) {
	return 0, errors.New("simulator crashed")
}

func fittedPrimitive(t *testing.T) *promp.Primitive {
	t.Helper()
	set, err := basis.New(basis.Config{Count: 5, Width: 0.2, Normalized: true})
	if err != nil {
		t.Fatal(err)
	}
	phases := make([]float64, 20)
	floats.Span(phases, 0, 1)
	var demos []*traj.Demonstration
	for _, c := range [][2]float64{{1, 0}, {2, 1}, {0, -1}, {1.5, 0.5}} {
		values := make([][]float64, len(phases))
		for i, p := range phases {
			values[i] = []float64{c[0]*p + c[1]}
		}
		demo, err := traj.NewDemonstration(phases, values)
		if err != nil {
			t.Fatal(err)
		}
		demos = append(demos, demo)
	}
	p, err := promp.New(set, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Fit(demos); err != nil {
		t.Fatal(err)
	}
	return p
}

// meanError is the squared distance of the mean trajectory to the target.
func meanError(t *testing.T, p *promp.Primitive, height float64) float64 {
	t.Helper()
	phases := make([]float64, 20)
	floats.Span(phases, 0, 1)
	means, _, err := p.PredictTrajectory(phases, 0)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, m := range means {
		d := m.AtVec(0) - height
		sum += d * d
	}
	return sum / float64(len(means))
}

func TestLearnApproachesTarget(t *testing.T) {
	start := fittedPrimitive(t)
	env := level{height: 0.5}
	c, err := NewController(start, env,
		WithSamples(20),
		WithWorkers(4),
		WithSource(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatal(err)
	}
	results, err := c.Learn(context.Background(), 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 60 || results[59].Episode != 60 {
		t.Fatalf("got %d results", len(results))
	}
	for _, res := range results {
		if len(res.Rewards) != 20 || res.Best < res.Mean {
			t.Fatalf("episode %d: %+v", res.Episode, res)
		}
	}

	before := meanError(t, start, env.height)
	after := meanError(t, c.Primitive(), env.height)
	if !(after < 0.1*before) {
		t.Errorf("mean trajectory error went from %v to %v", before, after)
	}
	if results[59].Mean <= results[0].Mean {
		t.Errorf("mean reward did not improve: %v then %v", results[0].Mean, results[59].Mean)
	}
	if got := meanError(t, start, env.height); got != before {
		t.Error("learning modified the initial primitive")
	}
}

func TestEpisodeKeepsPrimitiveOnError(t *testing.T) {
	start := fittedPrimitive(t)
	c, err := NewController(start, broken{}, WithSource(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Episode(context.Background()); err == nil {
		t.Fatal("expected the environment error")
	}
	if c.Primitive() != start {
		t.Error("primitive replaced after a failed episode")
	}
}

func TestLearnStopsWhenCancelled(t *testing.T) {
	c, err := NewController(fittedPrimitive(t), level{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := c.Learn(ctx, 5)
	if !errors.Is(err, context.Canceled) || len(results) != 0 {
		t.Errorf("got %d results and %v", len(results), err)
	}
}

func TestNewControllerErrors(t *testing.T) {
	p := fittedPrimitive(t)
	if _, err := NewController(p, nil); !errors.Is(err, ErrNoEnvironment) {
		t.Errorf("expected ErrNoEnvironment, got %v", err)
	}
	if _, err := NewController(nil, level{}); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewController(p, level{}, WithSamples(1)); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewController(p, level{}, WithPhases([]float64{})); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	empty, err := promp.New(p.Set(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewController(empty, level{}); !errors.Is(err, promp.ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
}
