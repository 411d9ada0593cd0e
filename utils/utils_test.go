package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrix(t *testing.T) {
	{
		M := NewMatrix(2, 3, []float64{
			1, 2, 3,
			4, 5, 6,
		})
		assert.True(t, near(M.At(1, 2), 6))
		assert.True(t, near(M.SumRows().AtVec(0), 6))
		assert.True(t, near(M.SumRows().AtVec(1), 15))
		assert.True(t, near(M.SumCols().AtVec(2), 9))
		MT := M.Transpose()
		nr, nc := MT.Dims()
		assert.Equal(t, 3, nr)
		assert.Equal(t, 2, nc)
		assert.True(t, near(MT.At(2, 1), 6))
	}
	{
		A := NewMatrix(2, 2, []float64{
			2, 0,
			0, 4,
		})
		Ainv := A.Inverse()
		assert.True(t, near(Ainv.At(0, 0), 0.5))
		assert.True(t, near(Ainv.At(1, 1), 0.25))
		V := A.MulVec(NewVector(2, []float64{1, 1}))
		assert.True(t, near(V.AtVec(0), 2))
		assert.True(t, near(V.AtVec(1), 4))
	}
	{
		M := NewMatrix(2, 2, []float64{1, -2, 3, -4})
		assert.True(t, near(M.Copy().Apply(math.Abs).Max(), 4))
		assert.True(t, near(M.Min(), -4))
	}
}

func TestVector(t *testing.T) {
	v := NewVector(3, []float64{1, 2, 3})
	assert.True(t, near(v.Sum(), 6))
	assert.True(t, near(v.Dot(v), 14))
	assert.True(t, near(v.Copy().Scale(2).Max(), 6))
	w := v.Subset(Index{2, 0})
	assert.True(t, near(w.AtVec(0), 3))
	assert.True(t, near(w.AtVec(1), 1))
	c := v.Concat(w)
	assert.Equal(t, 5, c.Len())
	assert.True(t, near(c.AtVec(4), 1))
}

func TestPartitionMap(t *testing.T) {
	pm := NewPartitionMap(4, 10)
	var total int
	prevEnd := 0
	for n := 0; n < 4; n++ {
		k1, k2 := pm.GetBucketRange(n)
		assert.Equal(t, prevEnd, k1)
		total += k2 - k1
		prevEnd = k2
	}
	assert.Equal(t, 10, total)
}

func TestAccumulatorsDeterministicMerge(t *testing.T) {
	ac := NewAccumulators(3, 4)
	for n := 0; n < 3; n++ {
		for i := 0; i < 4; i++ {
			ac.Partials[n][i] = float64(n + i)
		}
	}
	target := make([]float64, 4)
	ac.MergeTo(target)
	assert.True(t, near(target[0], 3)) // 0+1+2
	assert.True(t, near(target[3], 12))
}

func near(a, b float64) (l bool) {
	if math.Abs(a-b) < 1.e-08*math.Abs(a)+1.e-12 {
		l = true
	}
	return
}
