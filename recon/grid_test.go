package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notargets/gopic/utils"
)

func TestBrickIndexing(t *testing.T) {
	b := Brick{
		Origin:     []float64{0, 0},
		StepWidths: []float64{0.5, 0.25},
		Dims:       []int{3, 5},
	}
	assert.Equal(t, 15, b.NodeCount())
	for n := 0; n < b.NodeCount(); n++ {
		assert.Equal(t, n, b.LinearIndex(b.Index(n)))
	}
	// axis 0 runs fastest
	assert.Equal(t, []int{1, 0}, b.Index(1))
	assert.Equal(t, []float64{0.5, 0}, b.Point(1))

	// jiggle is deterministic and bounded by the padded box
	b.JiggleRadius = 0.3
	lo, hi := b.BoundingBox()
	for n := 0; n < b.NodeCount(); n++ {
		pt := b.Point(n)
		assert.Equal(t, pt, b.Point(n))
		for d := range pt {
			assert.GreaterOrEqual(t, pt[d], lo[d])
			assert.LessOrEqual(t, pt[d], hi[d])
		}
	}
}

func TestSingleBrickGenerator(t *testing.T) {
	var (
		pc     = testCloud(t, 8, 2)
		b, err = SingleBrickGenerator{Overresolve: 2}.Generate(pc.Mesh)
	)
	assert.NoError(t, err)
	assert.Len(t, b, 1)
	// step width is half the mean element size
	near(t, b[0].StepWidths[0], 1./16, 1.e-12, "step width")
	assert.Equal(t, 17, b[0].Dims[0])

	_, err = SingleBrickGenerator{JiggleRadius: 0.7}.Generate(pc.Mesh)
	assert.Error(t, err)
}

func gridSetup(t *testing.T, jiggle float64) (r *GridReconstructor) {
	t.Helper()
	pc := testCloud(t, 8, 2)
	r, err := NewGridReconstructor(pc,
		SingleBrickGenerator{Overresolve: 3, JiggleRadius: jiggle}, 1.e-10)
	assert.NoError(t, err)
	return
}

func TestGridUniformRemap(t *testing.T) {
	for _, jiggle := range []float64{0, 0.2} {
		var (
			r    = gridSetup(t, jiggle)
			ones = utils.NewVector(r.GridNodeCount()).Set(1)
		)
		// every in-domain lattice node is claimed by some element
		for gid := 0; gid < r.brickNodeTotal; gid++ {
			if r.md.BoundingBoxContains(r.gridPoint(gid)) {
				assert.Greater(t, r.GridNodeUsage()[gid], 0)
			}
		}
		// a uniform grid field remaps to a uniform mesh field
		mesh, err := r.RemapGridToMesh(ones)
		assert.NoError(t, err)
		for g := 0; g < r.md.NodeCount(); g++ {
			near(t, mesh.AtVec(g), 1, 1.e-8, "uniform remap node")
		}
		// and its remap residual vanishes
		res, err := r.RemapResidual(ones)
		assert.NoError(t, err)
		near(t, res.MaxAbs(), 0, 1.e-8, "uniform residual")
	}
}

func TestGridDeposition(t *testing.T) {
	var (
		r  = gridSetup(t, 0)
		sf = kernel(t, 0.08, 2)
	)
	assert.NoError(t, r.pc.AddParticle([]float64{0.5}, []float64{1.e6}, 1, 1.e-3))
	assert.NoError(t, r.SetShapeFunction(sf))

	grho, err := r.ReconstructGridRho()
	assert.NoError(t, err)
	assert.Equal(t, r.GridNodeCount(), grho.Len())

	rho, err := r.ReconstructRho()
	assert.NoError(t, err)
	near(t, r.md.Integrate(rho), 1, 0.1, "remapped charge")

	j, err := r.ReconstructJ()
	assert.NoError(t, err)
	v := r.pc.Velocities()[0]
	near(t, r.md.Integrate(j.Row(0)), v, 0.1*v, "remapped current")
}

func TestGridHoleDetection(t *testing.T) {
	// a negative containment tolerance opens gaps at element interfaces, so
	// lattice nodes on the seams go unclaimed and setup must fail
	pc := testCloud(t, 8, 2)
	_, err := NewGridReconstructor(pc, SingleBrickGenerator{Overresolve: 2}, -1.e-3)
	assert.Error(t, err)
}

func TestGridFieldLengthChecked(t *testing.T) {
	r := gridSetup(t, 0)
	_, err := r.RemapGridToMesh(utils.NewVector(3))
	assert.Error(t, err)
	_, err = r.RemapResidual(utils.NewVector(3))
	assert.Error(t, err)
}

func TestAverageGroups(t *testing.T) {
	r := gridSetup(t, 0)
	// craft one group over three nodes and check the in-place averaging
	r.averageGroupStarts = utils.Index{0, 3}
	r.averageGroups = utils.Index{0, 2, 4}
	field := []float64{3, 100, 6, 100, 0}
	r.ApplyAverageGroups(field)
	assert.Equal(t, []float64{3, 100, 3, 100, 3}, field)
}

func TestGridFindMatchesGrid(t *testing.T) {
	var (
		pc  = testCloud(t, 8, 2)
		sf  = kernel(t, 0.08, 2)
		gen = SingleBrickGenerator{Overresolve: 3}
	)
	assert.NoError(t, pc.AddParticle([]float64{0.4}, []float64{1.e5}, 1, 1.e-3))
	assert.NoError(t, pc.AddParticle([]float64{0.6}, []float64{-1.e5}, -1, 1.e-3))

	g, err := NewGridReconstructor(pc, gen, 1.e-10)
	assert.NoError(t, err)
	gf, err := NewGridFindReconstructor(pc, gen, 1.e-10)
	assert.NoError(t, err)
	assert.NoError(t, g.SetShapeFunction(sf))
	assert.NoError(t, gf.SetShapeFunction(sf))

	assert.Equal(t, g.GridNodeCount(), gf.GridNodeCount())
	assert.Equal(t, g.GridNodeUsage(), gf.GridNodeUsage())

	// the precomputed tables agree with the direct per-element claims
	for en := range g.elRemaps {
		for _, gid := range g.elRemaps[en].points {
			if gid < gf.brickNodeTotal {
				assert.Contains(t, gf.ElementsAtNode(gid), en)
			}
		}
	}

	rhoG, err := g.ReconstructRho()
	assert.NoError(t, err)
	rhoGF, err := gf.ReconstructRho()
	assert.NoError(t, err)
	assert.Equal(t, rhoG.DataP(), rhoGF.DataP())
}
