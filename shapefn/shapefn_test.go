package shapefn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShapeFunctionUnitIntegral(t *testing.T) {
	// 1D: trapezoid quadrature over the support should recover unit charge.
	// The box kernel (nu=0) jumps to zero at |x|=l, so the endpoint rule
	// loses half a cell at each end and the error is O(h), not O(h^2).
	for _, tc := range []struct {
		nu, tol float64
	}{
		{0, 1.e-4},
		{1, 1.e-6},
		{2, 1.e-6},
	} {
		sf, err := NewShapeFunction(0.35, 1, tc.nu)
		assert.NoError(t, err)
		var (
			n     = 20000
			h     = 2 * sf.Radius() / float64(n)
			integ float64
		)
		for i := 0; i <= n; i++ {
			x := -sf.Radius() + float64(i)*h
			w := h
			if i == 0 || i == n {
				w = h / 2
			}
			integ += w * sf.Eval([]float64{x})
		}
		assert.InDelta(t, 1.0, integ, tc.tol)
	}
}

func TestShapeFunctionUnitIntegral2D(t *testing.T) {
	sf, err := NewShapeFunction(1.0, 2, 1)
	assert.NoError(t, err)
	var (
		n     = 800
		h     = 2.0 / float64(n)
		integ float64
	)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x := -1.0 + (float64(i)+0.5)*h
			y := -1.0 + (float64(j)+0.5)*h
			integ += h * h * sf.Eval([]float64{x, y})
		}
	}
	assert.InDelta(t, 1.0, integ, 1.e-4)
}

func TestShapeFunctionSupport(t *testing.T) {
	sf, err := NewShapeFunction(0.5, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, 0., sf.Eval([]float64{0.5}))
	assert.Equal(t, 0., sf.Eval([]float64{-0.75}))
	assert.True(t, sf.Eval([]float64{0.49}) > 0)
	// symmetric
	assert.InDelta(t, sf.Eval([]float64{0.2}), sf.Eval([]float64{-0.2}), 1.e-14)
	// box kernel (nu=0) is flat over its support
	box, _ := NewShapeFunction(0.5, 1, 0)
	assert.InDelta(t, 1.0, box.Eval([]float64{0.2})/box.Eval([]float64{0.4}), 1.e-14)
	assert.InDelta(t, 1.0, box.Eval([]float64{0})*2*0.5, 1.e-14)
}

func TestShapeFunctionRejectsDegenerate(t *testing.T) {
	_, err := NewShapeFunction(0, 1, 2)
	assert.Error(t, err)
	_, err = NewShapeFunction(0.5, 0, 2)
	assert.Error(t, err)
	_, err = NewShapeFunction(0.5, 1, -1)
	assert.Error(t, err)
}
