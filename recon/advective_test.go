package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gopic/shapefn"
)

type shiftRecorder struct {
	moves   int
	resizes []int
}

func (sr *shiftRecorder) NoteDOFMove(from, to, count int) { sr.moves++ }
func (sr *shiftRecorder) NoteDOFResize(newSize int)       { sr.resizes = append(sr.resizes, newSize) }

func advSetup(t *testing.T) (r *AdvectiveReconstructor, sf *shapefn.ShapeFunction) {
	t.Helper()
	pc := testCloud(t, 16, 3)
	sf = kernel(t, 0.08, 2)
	assert.NoError(t, pc.AddParticle([]float64{0.5}, []float64{1.e6}, 1, 1.e-3))
	r = NewAdvectiveReconstructor(pc, 0, 1.e-12, 0)
	assert.NoError(t, r.AddAdvectiveParticle(sf, 0))
	return
}

func TestAdvectiveSeeding(t *testing.T) {
	r, sf := advSetup(t)
	assert.Equal(t, 1, r.CountAdvectiveParticles())
	assert.GreaterOrEqual(t, r.ActiveElements(), 1)
	assert.Equal(t, r.ActiveElements(), r.ElementActivationCounter())

	// the seeded blob carries the particle charge, same as direct deposition
	rho, err := r.ReconstructRho()
	assert.NoError(t, err)
	near(t, r.pc.Mesh.Integrate(rho), 1, 0.02, "seeded charge")

	// current rides at the particle velocity
	j, err := r.ReconstructJ()
	assert.NoError(t, err)
	v := r.pc.Velocities()[0]
	for g := 0; g < r.pc.Mesh.NodeCount(); g++ {
		near(t, j.At(0, g), v*rho.AtVec(g), 1.e-3, "advected current node")
	}

	// re-seeding the same particle on the same elements is a caller bug
	assert.Error(t, r.AddAdvectiveParticle(sf, 0))

	r.ClearAdvectiveParticles()
	assert.Equal(t, 0, r.ActiveElements())
	assert.Equal(t, 0, r.CountAdvectiveParticles())
}

func TestAdvectiveRHSIsReadOnly(t *testing.T) {
	r, _ := advSetup(t)
	rhoBefore, err := r.ReconstructRho()
	assert.NoError(t, err)

	rhs1 := r.GetAdvectiveParticleRHS()
	rhs2 := r.GetAdvectiveParticleRHS()
	assert.Equal(t, rhs1.DataP(), rhs2.DataP())

	rhoAfter, err := r.ReconstructRho()
	assert.NoError(t, err)
	assert.Equal(t, rhoBefore.DataP(), rhoAfter.DataP())
	assert.Equal(t, r.ActiveElements(), r.ElementActivationCounter())
}

func TestAdvectiveTimestepping(t *testing.T) {
	var (
		r, _   = advSetup(t)
		md     = r.pc.Mesh
		v      = r.pc.Velocities()[0]
		h      = 1. / 16
		dt     = 0.1 * h / v
		before = r.ActiveElements()
	)
	rho0, err := r.ReconstructRho()
	assert.NoError(t, err)
	q0 := md.Integrate(rho0)

	for step := 0; step < 5; step++ {
		rhs := r.GetAdvectiveParticleRHS()
		assert.Equal(t, r.StateLen(), rhs.Len())
		r.ApplyAdvectiveParticleRHS(rhs, dt)
	}
	// downstream elements activate as the blob advects; none deactivate here
	assert.GreaterOrEqual(t, r.ActiveElements(), before)
	assert.GreaterOrEqual(t, r.ElementActivationCounter(), r.ActiveElements())

	rho1, err := r.ReconstructRho()
	assert.NoError(t, err)
	near(t, md.Integrate(rho1), q0, 0.05*q0, "advected charge")

	active, err := r.GetDebugQuantityOnMesh("active_elements")
	assert.NoError(t, err)
	assert.Greater(t, active.Sum(), 0.)
	_, err = r.GetDebugQuantityOnMesh("nonsense")
	assert.Error(t, err)
}

func TestAdvectiveUpkeep(t *testing.T) {
	var (
		r, _ = advSetup(t)
		sr   = &shiftRecorder{}
	)
	r.SetRhoDOFShiftListener(sr)

	// nothing decays below a vanishing kill threshold
	r.PerformReconstructorUpkeep()
	assert.Equal(t, 0, r.ElementKillCounter())

	// with an absurd threshold everything but the containing element dies
	r.KillThreshold = 1.e12
	before := r.ActiveElements()
	r.PerformReconstructorUpkeep()
	assert.Equal(t, 1, r.ActiveElements())
	assert.Equal(t, before-1, r.ElementKillCounter())
	assert.NotEmpty(t, sr.resizes)

	// upkeep is idempotent once the state is settled
	kills := r.ElementKillCounter()
	r.PerformReconstructorUpkeep()
	assert.Equal(t, kills, r.ElementKillCounter())

	// the survivor still holds the particle's containing element
	rho, err := r.ReconstructRho()
	assert.NoError(t, err)
	en := r.pc.ContainingElements[0]
	start := r.pc.Mesh.Elements[en].Start
	assert.NotZero(t, rho.AtVec(start+r.pc.Mesh.Np/2))
}
