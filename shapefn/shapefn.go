package shapefn

import (
	"fmt"
	"math"
)

// ShapeFunction is the radial weighting kernel used to spread a particle's
// charge over nearby mesh support,
//
//	S(x) = c * (l^2 - |x|^2)^nu   for |x| < l, 0 otherwise,
//
// with c chosen so that S integrates to one over R^dims. Instances are
// stateless and may be shared by reference across reconstructors, but must
// not be mutated mid-call.
type ShapeFunction struct {
	radius, radius2 float64
	exponent        float64
	dims            int
	normalizer      float64
}

func NewShapeFunction(radius float64, dims int, exponent float64) (sf *ShapeFunction, err error) {
	if radius <= 0 {
		err = fmt.Errorf("shape function radius must be positive, got %g", radius)
		return
	}
	if dims < 1 {
		err = fmt.Errorf("shape function dimension must be at least 1, got %d", dims)
		return
	}
	if exponent < 0 {
		err = fmt.Errorf("shape function exponent must be non-negative, got %g", exponent)
		return
	}
	var (
		fD = float64(dims)
	)
	// int_{|x|<l} (l^2-r^2)^nu dV = pi^(D/2) l^(2nu+D) Gamma(nu+1)/Gamma(nu+D/2+1)
	ballIntegral := math.Pow(math.Pi, fD/2) *
		math.Pow(radius, 2*exponent+fD) *
		math.Gamma(exponent+1) / math.Gamma(exponent+fD/2+1)
	sf = &ShapeFunction{
		radius:     radius,
		radius2:    radius * radius,
		exponent:   exponent,
		dims:       dims,
		normalizer: 1. / ballIntegral,
	}
	return
}

func (sf *ShapeFunction) Radius() float64   { return sf.radius }
func (sf *ShapeFunction) Exponent() float64 { return sf.exponent }
func (sf *ShapeFunction) Dims() int         { return sf.dims }

// EvalR2 evaluates the kernel given the squared distance from the particle.
func (sf *ShapeFunction) EvalR2(r2 float64) (s float64) {
	if r2 >= sf.radius2 {
		return 0
	}
	s = sf.normalizer * math.Pow(sf.radius2-r2, sf.exponent)
	return
}

// Eval evaluates the kernel at offset dx from the particle position.
func (sf *ShapeFunction) Eval(dx []float64) (s float64) {
	var r2 float64
	for _, c := range dx {
		r2 += c * c
	}
	return sf.EvalR2(r2)
}
