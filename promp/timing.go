package promp

import (
	"fmt"
	"math"

	"github.com/lucasmaystre/gopromp/basis"
)

// Timing maps wall time onto phase: phase(t) = t/Duration + Shift.
type Timing struct {
	Duration float64 `json:"duration"`
	Shift    float64 `json:"shift"`
}

// DefaultTiming makes time and phase coincide.
var DefaultTiming = Timing{Duration: 1}

func (t Timing) Validate() error {
	if !(t.Duration > 0) || math.IsInf(t.Duration, 0) {
		return fmt.Errorf("%w: duration %v must be positive and finite", basis.ErrInvalidConfig, t.Duration)
	}
	if math.IsNaN(t.Shift) || math.IsInf(t.Shift, 0) {
		return fmt.Errorf("%w: phase shift %v", basis.ErrInvalidConfig, t.Shift)
	}
	return nil
}

func (t Timing) Phase(time float64) float64 {
	return time/t.Duration + t.Shift
}

// rate is dphase/dt raised to the given derivative order.
func (t Timing) rate(order int) float64 {
	return math.Pow(1/t.Duration, float64(order))
}

// TimeScale stretches the motion in time by factor (2 plays it twice as
// slowly). Stored weights are untouched.
func (p *Primitive) TimeScale(factor float64) error {
	if !(factor > 0) {
		return fmt.Errorf("%w: time scale factor %v must be positive", basis.ErrInvalidConfig, factor)
	}
	next := p.timing
	next.Duration *= factor
	if err := next.Validate(); err != nil {
		return err
	}
	p.timing = next
	return nil
}

// PhaseShift moves the phase reached at every time by offset.
func (p *Primitive) PhaseShift(offset float64) error {
	next := p.timing
	next.Shift += offset
	if err := next.Validate(); err != nil {
		return err
	}
	p.timing = next
	return nil
}

func (p *Primitive) Timing() Timing {
	return p.timing
}
