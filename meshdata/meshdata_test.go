package meshdata

import (
	"math"
	"testing"

	"github.com/notargets/gopic/utils"
	"github.com/stretchr/testify/assert"
)

func TestIntervalMesh(t *testing.T) {
	var (
		K  = 4
		N  = 3
		md = NewIntervalMesh(0, 2, K, N)
	)
	assert.Equal(t, K, md.K())
	assert.Equal(t, N+1, md.Np)
	assert.Equal(t, K*(N+1), md.NodeCount())

	// Element 1 covers [0.5, 1.0]
	lo, hi := md.Elements[1].BoundingBox(md)
	assert.True(t, near(lo[0], 0.5))
	assert.True(t, near(hi[0], 1.0))
	assert.True(t, near(md.Elements[1].Centroid(md)[0], 0.75))
	assert.True(t, near(md.ElementMeasure(1), 0.5))

	// Nodes span each element, endpoints included (Gauss-Lobatto)
	assert.True(t, near(md.Nodes[md.Elements[1].Start][0], 0.5))
	assert.True(t, near(md.Nodes[md.Elements[1].End-1][0], 1.0))

	// Quadrature weights integrate constants exactly
	w := md.ElementWeights(1)
	assert.True(t, near(w.Sum(), 0.5))
	ones := utils.NewVector(md.NodeCount()).Set(1)
	assert.True(t, near(md.Integrate(ones), 2.0))

	// Linear fields integrate exactly too
	lin := utils.NewVector(md.NodeCount())
	for i, nd := range md.Nodes {
		lin.SetVec(i, nd[0])
	}
	assert.True(t, near(md.Integrate(lin), 2.0)) // int_0^2 x dx = 2
}

func TestContainsPoint(t *testing.T) {
	md := NewIntervalMesh(0, 1, 2, 2)
	assert.True(t, md.Elements[0].ContainsPoint([]float64{0.25}, 0))
	assert.False(t, md.Elements[0].ContainsPoint([]float64{0.75}, 0))
	assert.True(t, md.Elements[1].ContainsPoint([]float64{0.75}, 0))
	// tolerance admits boundary-adjacent points
	assert.True(t, md.Elements[0].ContainsPoint([]float64{0.5 + 1.e-12}, 1.e-8))
}

func TestFindElementNear(t *testing.T) {
	var (
		md = NewIntervalMesh(0, 1, 8, 1)
		fc FindCounters
	)
	// same element
	en := md.FindElementNear([]float64{0.05}, 0, 0, &fc)
	assert.Equal(t, 0, en)
	assert.Equal(t, 1, fc.FindSame)
	// neighbor hop
	en = md.FindElementNear([]float64{0.20}, 0, 0, &fc)
	assert.Equal(t, 1, en)
	assert.Equal(t, 1, fc.FindByNeighbor)
	// far away: global search
	en = md.FindElementNear([]float64{0.95}, 0, 0, &fc)
	assert.Equal(t, 7, en)
	assert.Equal(t, 1, fc.FindGlobal)
	// out of domain
	en = md.FindElementNear([]float64{1.5}, 0, 0, &fc)
	assert.Equal(t, InvalidElement, en)
	assert.Equal(t, 1, fc.FindFailed)
}

func TestSupportElements(t *testing.T) {
	md := NewIntervalMesh(0, 1, 10, 1)
	// radius covering one neighbor on each side of element 5 ([0.5,0.6])
	els := md.SupportElements([]float64{0.55}, 0.12, 5)
	assert.Equal(t, []int{4, 5, 6}, els)
	// tiny radius: containing element only
	els = md.SupportElements([]float64{0.55}, 0.01, 5)
	assert.Equal(t, []int{5}, els)
}

func TestAdvisableParticleRadius(t *testing.T) {
	md := NewIntervalMesh(0, 1, 10, 2)
	assert.True(t, near(md.MinVertexDistance(), 0.1))
	assert.True(t, near(md.AdvisableParticleRadius(), 0.06))
}

func TestBasis1D(t *testing.T) {
	var (
		N = 4
		R = JacobiGL(0, 0, N)
	)
	assert.True(t, near(R.AtVec(0), -1))
	assert.True(t, near(R.AtVec(N), 1))
	V := Vandermonde1D(N, R)
	// Mass matrix row sums integrate nodal basis over [-1,1]; total = 2
	M := V.Mul(V.Transpose()).Inverse()
	assert.True(t, near(M.SumRows().Sum(), 2))
	// Dr differentiates polynomials up to order N exactly: d/dr r^2 = 2r
	Dr := Dmatrix1D(N, R, V)
	r2 := R.Copy().POW(2)
	dr2 := Dr.MulVec(r2)
	for i := 0; i < N+1; i++ {
		assert.InDelta(t, 2*R.AtVec(i), dr2.AtVec(i), 1.e-10)
	}
}

func near(a, b float64) (l bool) {
	if math.Abs(a-b) < 1.e-08*math.Abs(a)+1.e-10 {
		l = true
	}
	return
}
