package library

import (
	"errors"
	"testing"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/promp"
	"github.com/lucasmaystre/gopromp/traj"
	"gonum.org/v1/gonum/floats"
)

func newPrimitive(t *testing.T) *promp.Primitive {
	t.Helper()
	set, err := basis.New(basis.Config{Count: 5, Width: 0.2, Normalized: true})
	if err != nil {
		t.Fatal(err)
	}
	p, err := promp.New(set, 1)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func line(t *testing.T, slope, offset float64) *traj.Demonstration {
	t.Helper()
	phases := make([]float64, 20)
	floats.Span(phases, 0, 1)
	values := make([][]float64, len(phases))
	for i, p := range phases {
		values[i] = []float64{slope*p + offset}
	}
	demo, err := traj.NewDemonstration(phases, values)
	if err != nil {
		t.Fatal(err)
	}
	return demo
}

func TestFitAndClassify(t *testing.T) {
	lib := New(nil)
	for _, name := range []string{"rise", "fall", "idle"} {
		if err := lib.Add(name, newPrimitive(t)); err != nil {
			t.Fatal(err)
		}
	}
	for _, offset := range []float64{-0.1, 0, 0.1} {
		if err := lib.Observe("rise", line(t, 1, offset)); err != nil {
			t.Fatal(err)
		}
		if err := lib.Observe("fall", line(t, -1, 1+offset)); err != nil {
			t.Fatal(err)
		}
	}
	if err := lib.Fit(2); err != nil {
		t.Fatal(err)
	}

	idle, err := lib.Primitive("idle")
	if err != nil {
		t.Fatal(err)
	}
	if idle.State() != promp.Empty {
		t.Errorf("primitive without demonstrations is %v", idle.State())
	}
	for name, demo := range map[string]*traj.Demonstration{
		"rise": line(t, 1, 0.05),
		"fall": line(t, -1, 0.95),
	} {
		got, _, err := lib.Classify(demo, 0.01)
		if err != nil {
			t.Fatal(err)
		}
		if got != name {
			t.Errorf("classified as %q, want %q", got, name)
		}
	}

	ll, err := lib.LogLikelihood(0.01)
	if err != nil {
		t.Fatal(err)
	}
	if ll == 0 {
		t.Error("log-likelihood of observed demonstrations is zero")
	}
}

func TestFitJoinsErrors(t *testing.T) {
	lib := New(nil)
	for _, name := range []string{"a", "b", "c"} {
		if err := lib.Add(name, newPrimitive(t)); err != nil {
			t.Fatal(err)
		}
	}
	// Single demonstrations cannot estimate a covariance.
	if err := lib.Observe("a", line(t, 1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := lib.Observe("b", line(t, 1, 0)); err != nil {
		t.Fatal(err)
	}
	for _, offset := range []float64{0, 1} {
		if err := lib.Observe("c", line(t, 1, offset)); err != nil {
			t.Fatal(err)
		}
	}
	err := lib.Fit(4)
	if !errors.Is(err, promp.ErrInsufficientSamples) {
		t.Fatalf("expected ErrInsufficientSamples, got %v", err)
	}
	c, _ := lib.Primitive("c")
	if c.State() != promp.Fitted {
		t.Errorf("c is %v despite failures elsewhere", c.State())
	}
}

func TestLibraryErrors(t *testing.T) {
	lib := New(nil)
	if err := lib.Add("a", newPrimitive(t)); err != nil {
		t.Fatal(err)
	}
	if err := lib.Add("a", newPrimitive(t)); !errors.Is(err, ErrDuplicatePrimitive) {
		t.Errorf("expected ErrDuplicatePrimitive, got %v", err)
	}
	if err := lib.Add("b", nil); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if err := lib.Observe("missing", line(t, 1, 0)); !errors.Is(err, ErrUnknownPrimitive) {
		t.Errorf("expected ErrUnknownPrimitive, got %v", err)
	}
	if _, err := lib.Primitive("missing"); !errors.Is(err, ErrUnknownPrimitive) {
		t.Errorf("expected ErrUnknownPrimitive, got %v", err)
	}
	if _, _, err := lib.Classify(line(t, 1, 0), 0.01); !errors.Is(err, ErrUnknownPrimitive) {
		t.Errorf("expected ErrUnknownPrimitive before any fit, got %v", err)
	}
	wide, err := traj.NewDemonstration([]float64{0, 1}, [][]float64{{0, 0}, {1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if err := lib.Observe("a", wide); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if err := lib.Observe("a", nil); !errors.Is(err, basis.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for a nil demonstration, got %v", err)
	}
	if err := lib.Fit(1); err != nil {
		t.Errorf("rejected demonstrations should not be queued: %v", err)
	}
	if names := lib.Names(); len(names) != 1 || names[0] != "a" {
		t.Errorf("names %v", names)
	}
}
