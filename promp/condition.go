package promp

import (
	"errors"
	"fmt"

	"github.com/lucasmaystre/gopromp/gauss"
	"github.com/lucasmaystre/gopromp/obs"
)

// ConditionOn returns a copy of the primitive whose distribution is the
// posterior given o. The receiver is not modified.
func (p *Primitive) ConditionOn(o obs.Observation) (*Primitive, error) {
	return p.ConditionOnAll(o)
}

// ConditionOnAll conditions on each observation in turn. The result does not
// depend on their order.
func (p *Primitive) ConditionOnAll(observations ...obs.Observation) (*Primitive, error) {
	dist, err := p.current()
	if err != nil {
		return nil, err
	}
	mean, cov := dist.Mean(), dist.Cov()
	for i, o := range observations {
		h, y, r, err := o.Design(p.set, p.dims)
		if err != nil {
			return nil, err
		}
		if r == nil {
			mean, cov, err = gauss.Condition(mean, cov, h, y, nil, p.jitter)
		} else {
			mean, cov, err = gauss.Condition(mean, cov, h, y, r, p.jitter)
		}
		if errors.Is(err, gauss.ErrSingular) {
			return nil, fmt.Errorf("%w: observation %d: %w", ErrSingularObservation, i, err)
		}
		if err != nil {
			return nil, err
		}
	}

	posterior, err := NewDistribution(mean, cov)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSingularObservation, err)
	}
	out := *p
	out.dist = posterior
	out.acc = nil
	out.state = Conditioned
	p.logger.Debugw("conditioned primitive", "observations", len(observations))
	return &out, nil
}
