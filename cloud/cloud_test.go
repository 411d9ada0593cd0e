package cloud

import (
	"math"
	"testing"

	"github.com/notargets/gopic/meshdata"
	"github.com/stretchr/testify/assert"
)

type sizeRecorder struct {
	sizes []int
}

func (sr *sizeRecorder) NoteChangeSize(newSize int) {
	sr.sizes = append(sr.sizes, newSize)
}

func TestParticleCloud(t *testing.T) {
	var (
		md = meshdata.NewIntervalMesh(0, 1, 4, 2)
		pc = NewParticleCloud(md, 1, 1, 1.e8)
		sr = &sizeRecorder{}
	)
	pc.Subscribe(sr)

	assert.NoError(t, pc.AddParticle([]float64{0.30}, []float64{100}, 1, 1.e-3))
	assert.NoError(t, pc.AddParticle([]float64{0.80}, []float64{-100}, -1, 1.e-3))
	assert.Equal(t, 2, pc.Len())
	assert.Equal(t, []int{1, 2}, sr.sizes)
	assert.Equal(t, 1, pc.ContainingElements[0])
	assert.Equal(t, 3, pc.ContainingElements[1])
	assert.NoError(t, pc.CheckContainment())
	assert.InDelta(t, 0., pc.TotalCharge(), 1.e-14)

	// Momentum round-trips to velocity far below light speed
	v := pc.Velocities()
	assert.InDelta(t, 100, v[0], 1.e-6)
	assert.InDelta(t, -100, v[1], 1.e-6)

	// Out-of-domain injection is rejected
	assert.Error(t, pc.AddParticle([]float64{1.5}, []float64{0}, 1, 1))
	assert.Equal(t, 2, pc.Len())
}

func TestUpdateContainingElements(t *testing.T) {
	var (
		md = meshdata.NewIntervalMesh(0, 1, 4, 1)
		pc = NewParticleCloud(md, 1, 1, 3.e8)
	)
	assert.NoError(t, pc.AddParticle([]float64{0.1}, []float64{0}, 1, 1))
	// push the particle into the next element
	pc.Positions[0] = 0.3
	assert.NoError(t, pc.UpdateContainingElements(1.e-12))
	assert.Equal(t, 1, pc.ContainingElements[0])
	assert.Equal(t, 1, pc.FindCounters.FindByNeighbor)

	// push it out of the domain: reported, not dropped, and marked so that
	// deposition refuses it rather than splatting into the stale element
	pc.Positions[0] = 1.2
	assert.Error(t, pc.UpdateContainingElements(1.e-12))
	assert.Equal(t, 1, pc.Len())
	assert.Equal(t, meshdata.InvalidElement, pc.ContainingElements[0])
	assert.Equal(t, 1, pc.FindCounters.FindFailed)
	assert.Error(t, pc.CheckContainment())

	// every escapee is named, not just the last one seen
	assert.NoError(t, pc.AddParticle([]float64{0.5}, []float64{0}, 1, 1))
	pc.Positions[1] = -0.4
	err := pc.UpdateContainingElements(1.e-12)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "2 particles")

	// a recovered particle relocates on the next pass
	pc.Positions[0] = 0.55
	pc.Positions[1] = 0.55
	assert.NoError(t, pc.UpdateContainingElements(1.e-12))
	assert.Equal(t, 2, pc.ContainingElements[0])
	assert.Equal(t, 2, pc.ContainingElements[1])
}

func TestRelativisticVelocity(t *testing.T) {
	var (
		md = meshdata.NewIntervalMesh(0, 1, 2, 1)
		c  = 3.e8
		pc = NewParticleCloud(md, 1, 1, c)
	)
	// v = 0.6c: gamma = 1.25, p = gamma*m*v
	assert.NoError(t, pc.AddParticle([]float64{0.5}, []float64{0.6 * c}, 1, 2))
	gamma := 1. / math.Sqrt(1-0.36)
	assert.InDelta(t, gamma*2*0.6*c, pc.Momenta[0], 1.e-3)
	assert.InDelta(t, 0.6*c, pc.Velocities()[0], 1.e-3)
}
