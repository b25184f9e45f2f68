package traj

import (
	"errors"
	"math"
	"testing"

	"github.com/lucasmaystre/gopromp/basis"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func newSet(t *testing.T, n int, width float64) *basis.Set {
	t.Helper()
	s, err := basis.New(basis.Config{Count: n, Width: width})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// synthesize samples the trajectory given by weights at the given phases.
func synthesize(t *testing.T, set *basis.Set, weights *mat.VecDense, phases []float64) *Demonstration {
	t.Helper()
	rows := make([][]float64, len(phases))
	for i, p := range phases {
		v, err := Evaluate(weights, set, p)
		if err != nil {
			t.Fatal(err)
		}
		rows[i] = mat.Col(nil, 0, v)
	}
	demo, err := NewDemonstration(phases, rows)
	if err != nil {
		t.Fatal(err)
	}
	return demo
}

func TestFitRecoversKnownWeights(t *testing.T) {
	set := newSet(t, 5, 0.2)
	phases := make([]float64, 20)
	floats.Span(phases, 0, 1)
	known := mat.NewVecDense(10, []float64{
		0.3, -1.2, 0.8, 2.0, -0.5, // dimension 0
		1.0, 0.0, -0.7, 0.4, 1.5, // dimension 1
	})
	demo := synthesize(t, set, known, phases)

	for _, ridge := range []float64{0, DefaultRidge} {
		got, err := Fit(demo, set, WithRidge(ridge))
		if err != nil {
			t.Fatalf("ridge=%v: %v", ridge, err)
		}
		if !mat.EqualApprox(got, known, 1e-6) {
			t.Errorf("ridge=%v: got %v, want %v", ridge, mat.Formatted(got.T()), mat.Formatted(known.T()))
		}
	}
}

func TestFitDegenerateWithoutRidge(t *testing.T) {
	set := newSet(t, 5, 0.2)
	demo, err := NewDemonstration([]float64{0, 0.5, 1}, [][]float64{{0}, {1}, {0}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Fit(demo, set, WithRidge(0)); !errors.Is(err, ErrDegenerateDemonstration) {
		t.Errorf("expected ErrDegenerateDemonstration, got %v", err)
	}
	// The ridge term makes the same problem solvable.
	w, err := Fit(demo, set, WithRidge(1e-6))
	if err != nil {
		t.Fatalf("regularized fit failed: %v", err)
	}
	v, err := Evaluate(w, set, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.AtVec(0)-1) > 1e-3 {
		t.Errorf("regularized fit should interpolate its samples, got %v at 0.5", v.AtVec(0))
	}
}

func TestFitRejectsNegativeRidge(t *testing.T) {
	set := newSet(t, 3, 0.2)
	demo, _ := NewDemonstration([]float64{0, 0.5, 1}, [][]float64{{0}, {1}, {0}})
	if _, err := Fit(demo, set, WithRidge(-1)); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestEvaluateDerivativeOfLine(t *testing.T) {
	set, err := basis.New(basis.Config{Count: 8, Width: 0.1, Normalized: true})
	if err != nil {
		t.Fatal(err)
	}
	phases := make([]float64, 50)
	floats.Span(phases, 0, 1)
	rows := make([][]float64, len(phases))
	for i, p := range phases {
		rows[i] = []float64{2*p + 1}
	}
	demo, err := NewDemonstration(phases, rows)
	if err != nil {
		t.Fatal(err)
	}
	model := NewModel(set)
	if err := model.Fit(demo); err != nil {
		t.Fatal(err)
	}
	if model.Dims() != 1 {
		t.Fatalf("dims = %d, want 1", model.Dims())
	}
	v, err := model.Evaluate(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v.AtVec(0)-2) > 1e-2 {
		t.Errorf("value at 0.5 = %v, want 2", v.AtVec(0))
	}
	d, err := model.Derivative(0.5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d.AtVec(0)-2) > 0.1 {
		t.Errorf("slope at 0.5 = %v, want 2", d.AtVec(0))
	}
}

func TestModelNotFitted(t *testing.T) {
	model := NewModel(newSet(t, 3, 0.2))
	if _, err := model.Evaluate(0.5); !errors.Is(err, ErrNotFitted) {
		t.Errorf("expected ErrNotFitted, got %v", err)
	}
	if model.Weights() != nil {
		t.Error("weights should be nil before Fit")
	}
}

func TestModelWithWeights(t *testing.T) {
	set := newSet(t, 3, 0.2)
	if _, err := NewModelWithWeights(set, mat.NewVecDense(4, nil)); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for 4 weights over 3 functions, got %v", err)
	}
	w := mat.NewVecDense(6, []float64{1, 2, 3, 4, 5, 6})
	model, err := NewModelWithWeights(set, w)
	if err != nil {
		t.Fatal(err)
	}
	w.SetVec(0, 100)
	if model.Weights().AtVec(0) != 1 {
		t.Error("model should own a copy of its weights")
	}
	v, err := model.Evaluate(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if v.Len() != 2 {
		t.Errorf("value length = %d, want 2", v.Len())
	}
}

func TestNewDemonstrationValidation(t *testing.T) {
	tests := []struct {
		name   string
		phases []float64
		values [][]float64
	}{
		{name: "empty", phases: nil, values: nil},
		{name: "length mismatch", phases: []float64{0, 1}, values: [][]float64{{1}}},
		{name: "not increasing", phases: []float64{0, 0.5, 0.5}, values: [][]float64{{1}, {2}, {3}}},
		{name: "ragged", phases: []float64{0, 1}, values: [][]float64{{1, 2}, {3}}},
		{name: "nan phase", phases: []float64{0, math.NaN()}, values: [][]float64{{1}, {2}}},
		{name: "inf value", phases: []float64{0, 1}, values: [][]float64{{1}, {math.Inf(1)}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewDemonstration(test.phases, test.values); !errors.Is(err, basis.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDemonstrationIsImmutable(t *testing.T) {
	phases := []float64{0, 0.5, 1}
	values := [][]float64{{1}, {2}, {3}}
	demo, err := NewDemonstration(phases, values)
	if err != nil {
		t.Fatal(err)
	}
	phases[1] = 0.7
	values[1][0] = 20
	demo.Phases()[0] = -1
	demo.Values().Set(2, 0, 30)
	if !floats.Equal(demo.Phases(), []float64{0, 0.5, 1}) {
		t.Errorf("phases changed: %v", demo.Phases())
	}
	if got := demo.Values(); got.At(1, 0) != 2 || got.At(2, 0) != 3 {
		t.Errorf("values changed: %v", mat.Formatted(got))
	}
}

func TestNewTimedDemonstration(t *testing.T) {
	demo, err := NewTimedDemonstration([]float64{2, 3, 4, 6}, [][]float64{{0}, {1}, {2}, {3}})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(demo.Phases(), []float64{0, 0.25, 0.5, 1}, 1e-12) {
		t.Errorf("phases = %v", demo.Phases())
	}
	if demo.Duration() != 4 {
		t.Errorf("duration = %v, want 4", demo.Duration())
	}
	if _, err := NewTimedDemonstration([]float64{1}, [][]float64{{0}}); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a single sample, got %v", err)
	}
}
