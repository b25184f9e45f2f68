package kern

import (
	"math"
)

var (
	gaussian *Gaussian
	_        Kernel = gaussian // Check that Gaussian respects the Kernel interface.
)

// Gaussian is the radial kernel exp(-(x-c)² / (2σ²)).
type Gaussian struct {
	width float64
}

func NewGaussian(width float64) *Gaussian {
	return &Gaussian{
		width: width,
	}
}

func (k *Gaussian) Width() float64 {
	return k.width
}

func (k *Gaussian) Periodic() bool {
	return false
}

func (k *Gaussian) Value(x, c float64) float64 {
	g, _, _ := k.Log(x, c)
	return math.Exp(g)
}

func (k *Gaussian) Derivative(x, c float64, order int) (float64, error) {
	g, g1, g2 := k.Log(x, c)
	return chain(math.Exp(g), g1, g2, order)
}

func (k *Gaussian) Log(x, c float64) (g, g1, g2 float64) {
	s2 := k.width * k.width
	// g = -d² / (2σ²),  g' = -d / σ²,  g'' = -1 / σ²
	d := x - c
	return -d * d / (2 * s2), -d / s2, -1 / s2
}
