package obs

import (
	"errors"
	"testing"

	"github.com/lucasmaystre/gopromp/basis"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

func testSet(t *testing.T) *basis.Set {
	t.Helper()
	s, err := basis.New(basis.Config{Count: 4, Width: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestViaPointDesign(t *testing.T) {
	set := testSet(t)
	v, err := NewViaPoint(0.3, []float64{1, 2}, [][]float64{{0.1, 0}, {0, 0.2}})
	if err != nil {
		t.Fatal(err)
	}
	h, y, r, err := v.Design(set, 2)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := set.Observation(0.3, 2, 0)
	if !mat.Equal(h, want) {
		t.Errorf("H =\n%v\nwant\n%v", mat.Formatted(h), mat.Formatted(want))
	}
	if y.AtVec(0) != 1 || y.AtVec(1) != 2 {
		t.Errorf("y = %v", mat.Formatted(y.T()))
	}
	if r.At(1, 1) != 0.2 {
		t.Errorf("R =\n%v", mat.Formatted(r))
	}
}

func TestViaPointPartialAndDerivative(t *testing.T) {
	set := testSet(t)
	v, err := NewViaPoint(0.8, []float64{-1}, nil, Only(2), Order(1))
	if err != nil {
		t.Fatal(err)
	}
	if v.Order() != 1 || v.Phase() != 0.8 {
		t.Errorf("order %d phase %v", v.Order(), v.Phase())
	}
	h, _, r, err := v.Design(set, 3)
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Error("noise-free via-point should have a nil R")
	}
	rows, cols := h.Dims()
	if rows != 1 || cols != 12 {
		t.Fatalf("H is %dx%d, want 1x12", rows, cols)
	}
	d1, _ := set.Derivative(0.8, 1)
	for j := 0; j < 12; j++ {
		want := 0.0
		if j >= 8 {
			want = d1.AtVec(j - 8)
		}
		if h.At(0, j) != want {
			t.Errorf("H[0,%d] = %v, want %v", j, h.At(0, j), want)
		}
	}
}

func TestViaPointInvalid(t *testing.T) {
	set := testSet(t)
	tests := []struct {
		name  string
		build func() (*ViaPoint, error)
		dims  int
	}{
		{name: "empty target", build: func() (*ViaPoint, error) { return NewViaPoint(0.5, nil, nil) }},
		{name: "ragged covariance", build: func() (*ViaPoint, error) {
			return NewViaPoint(0.5, []float64{1, 2}, [][]float64{{1, 0}, {0}})
		}},
		{name: "asymmetric covariance", build: func() (*ViaPoint, error) {
			return NewViaPoint(0.5, []float64{1, 2}, [][]float64{{1, 0.5}, {0, 1}})
		}},
		{name: "wrong target length", dims: 3, build: func() (*ViaPoint, error) {
			return NewViaPoint(0.5, []float64{1, 2}, nil)
		}},
		{name: "dimension out of range", dims: 2, build: func() (*ViaPoint, error) {
			return NewViaPoint(0.5, []float64{1}, nil, Only(5))
		}},
		{name: "duplicate dimension", dims: 2, build: func() (*ViaPoint, error) {
			return NewViaPoint(0.5, []float64{1, 1}, nil, Only(1, 1))
		}},
		{name: "indefinite precision", build: func() (*ViaPoint, error) {
			return NewViaPointPrecision(0.5, []float64{1}, [][]float64{{-1}})
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := test.build()
			if err == nil {
				_, _, _, err = v.Design(set, test.dims)
			}
			if !errors.Is(err, basis.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestViaPointPrecision(t *testing.T) {
	v, err := NewViaPointPrecision(0.5, []float64{1, 2}, [][]float64{{4, 0}, {0, 10}})
	if err != nil {
		t.Fatal(err)
	}
	_, _, r, err := v.Design(testSet(t), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(r.At(0, 0), 0.25, 1e-12) || !scalar.EqualWithinAbs(r.At(1, 1), 0.1, 1e-12) {
		t.Errorf("R =\n%v", mat.Formatted(r))
	}
}

func TestBoundaries(t *testing.T) {
	start, err := Start([]float64{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	goal, err := Goal([]float64{1}, [][]float64{{1e-4}})
	if err != nil {
		t.Fatal(err)
	}
	if start.Phase() != 0 || goal.Phase() != 1 {
		t.Errorf("start at %v, goal at %v", start.Phase(), goal.Phase())
	}
}

func TestViaPointOwnsTarget(t *testing.T) {
	target := []float64{3}
	v, err := NewViaPoint(0.2, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	target[0] = 100
	_, y, _, err := v.Design(testSet(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	if y.AtVec(0) != 3 {
		t.Errorf("target changed to %v", y.AtVec(0))
	}
}
