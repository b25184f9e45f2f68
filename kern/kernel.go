package kern

import (
	"errors"
	"fmt"
)

var ErrUnsupportedOrder = errors.New("unsupported derivative order")
var ErrUnknownFamily = errors.New("unknown kernel family")

// Family names a kernel shape.
type Family string

const (
	FamilyGaussian Family = "gaussian"
	FamilyVonMises Family = "vonmises"
)

type Kernel interface {
	// Kernel response at phase x for a basis function centred at c.
	Value(x, c float64) float64

	// Derivative of the response with respect to x, for order 0, 1 or 2.
	Derivative(x, c float64, order int) (float64, error)

	// Log of the response and its first two derivatives with respect to x.
	// Unlike Value, g stays finite far from the center.
	Log(x, c float64) (g, g1, g2 float64)

	// Width parameter σ.
	Width() float64

	// Whether the phase domain wraps around (phase 1 equals phase 0).
	Periodic() bool
}

// New returns the kernel of the given family. An empty family selects the
// Gaussian kernel.
func New(family Family, width float64) (Kernel, error) {
	switch family {
	case "", FamilyGaussian:
		return NewGaussian(width), nil
	case FamilyVonMises:
		return NewVonMises(width), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
}

// chain turns the log-derivatives g' and g'' of a kernel value v = exp(g) into
// the derivative of v of the given order.
func chain(v, g1, g2 float64, order int) (float64, error) {
	switch order {
	case 0:
		return v, nil
	case 1:
		return v * g1, nil
	case 2:
		return v * (g1*g1 + g2), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedOrder, order)
	}
}
