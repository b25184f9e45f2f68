package traj

import (
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
	"gonum.org/v1/gonum/mat"
)

// Demonstration is an ordered sequence of (phase, value vector) samples. It
// owns copies of its inputs and is never modified after construction.
type Demonstration struct {
	phases   []float64
	values   *mat.Dense
	duration float64
	timed    bool
}

// NewDemonstration builds a demonstration from strictly increasing phases and
// one row of D values per phase.
func NewDemonstration(phases []float64, values [][]float64) (*Demonstration, error) {
	vals, err := denseRows(values)
	if err != nil {
		return nil, err
	}
	return NewDemonstrationDense(phases, vals)
}

// NewDemonstrationDense is NewDemonstration for values already stored as an
// (M x D) matrix.
func NewDemonstrationDense(phases []float64, values mat.Matrix) (*Demonstration, error) {
	m, d := values.Dims()
	if len(phases) == 0 || m != len(phases) {
		return nil, fmt.Errorf("%w: %d phases for %d samples", basis.ErrInvalidConfig, len(phases), m)
	}
	if err := checkIncreasing(phases); err != nil {
		return nil, err
	}
	vals := mat.NewDense(m, d, nil)
	vals.Copy(values)
	for i := 0; i < m; i++ {
		for j := 0; j < d; j++ {
			if v := vals.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: value [%d,%d] is %v", basis.ErrInvalidConfig, i, j, v)
			}
		}
	}
	ps := make([]float64, m)
	copy(ps, phases)
	return &Demonstration{
		phases:   ps,
		values:   vals,
		duration: 1,
	}, nil
}

// NewTimedDemonstration maps strictly increasing sample times onto phases in
// [0, 1] and remembers the elapsed duration.
func NewTimedDemonstration(times []float64, values [][]float64) (*Demonstration, error) {
	if len(times) < 2 {
		return nil, fmt.Errorf("%w: a timed demonstration needs at least two samples", basis.ErrInvalidConfig)
	}
	if err := checkIncreasing(times); err != nil {
		return nil, err
	}
	t0 := times[0]
	duration := times[len(times)-1] - t0
	phases := make([]float64, len(times))
	for i, t := range times {
		phases[i] = (t - t0) / duration
	}
	// Guard against rounding at the end point.
	phases[len(phases)-1] = 1
	demo, err := NewDemonstration(phases, values)
	if err != nil {
		return nil, err
	}
	demo.duration = duration
	demo.timed = true
	return demo, nil
}

// Len returns the number of samples M.
func (d *Demonstration) Len() int {
	return len(d.phases)
}

// Dims returns the number of dimensions D.
func (d *Demonstration) Dims() int {
	_, c := d.values.Dims()
	return c
}

func (d *Demonstration) Phases() []float64 {
	out := make([]float64, len(d.phases))
	copy(out, d.phases)
	return out
}

// Values returns a copy of the (M x D) sample matrix.
func (d *Demonstration) Values() *mat.Dense {
	return mat.DenseCopyOf(d.values)
}

// Duration is the elapsed time covered by a timed demonstration, 1 otherwise.
func (d *Demonstration) Duration() float64 {
	return d.duration
}

// Timed reports whether the demonstration was recorded against wall time.
func (d *Demonstration) Timed() bool {
	return d.timed
}

func checkIncreasing(xs []float64) error {
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: phase %d is %v", basis.ErrInvalidConfig, i, x)
		}
		if i > 0 && !(x > xs[i-1]) {
			return fmt.Errorf("%w: phases must be strictly increasing (index %d)", basis.ErrInvalidConfig, i)
		}
	}
	return nil
}

func denseRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty demonstration", basis.ErrInvalidConfig)
	}
	d := len(rows[0])
	data := make([]float64, 0, len(rows)*d)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("%w: sample %d has %d values, want %d", basis.ErrInvalidConfig, i, len(row), d)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), d, data), nil
}
