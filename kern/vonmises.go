package kern

import (
	"math"
)

var (
	vonMises *VonMises
	_        Kernel = vonMises // Check that VonMises respects the Kernel interface.
)

// VonMises is the periodic kernel exp(κ (cos 2π(x-c) - 1)) with κ = 1/(2πσ)².
// Near its center it matches the Gaussian kernel of the same width.
type VonMises struct {
	width float64
	kappa float64
}

func NewVonMises(width float64) *VonMises {
	return &VonMises{
		width: width,
		kappa: 1 / math.Pow(2*math.Pi*width, 2),
	}
}

func (k *VonMises) Width() float64 {
	return k.width
}

func (k *VonMises) Periodic() bool {
	return true
}

func (k *VonMises) Value(x, c float64) float64 {
	g, _, _ := k.Log(x, c)
	return math.Exp(g)
}

func (k *VonMises) Derivative(x, c float64, order int) (float64, error) {
	g, g1, g2 := k.Log(x, c)
	return chain(math.Exp(g), g1, g2, order)
}

func (k *VonMises) Log(x, c float64) (g, g1, g2 float64) {
	u := 2 * math.Pi * (x - c)
	// g = κ (cos u - 1),  g' = -2πκ sin u,  g'' = -(2π)² κ cos u
	g = k.kappa * (math.Cos(u) - 1)
	g1 = -2 * math.Pi * k.kappa * math.Sin(u)
	g2 = -4 * math.Pi * math.Pi * k.kappa * math.Cos(u)
	return g, g1, g2
}
