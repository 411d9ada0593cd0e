package recon

import (
	"fmt"

	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/shapefn"
	"github.com/notargets/gopic/utils"
)

// Reconstructor is the common surface of all five deposition strategies:
// it maps the bound particle cloud onto mesh-sampled charge density rho and
// current density j. Variant-specific capabilities live behind the
// Normalizable, Advective and GridBacked extension interfaces.
type Reconstructor interface {
	Name() string
	SetShapeFunction(sf *shapefn.ShapeFunction) error
	ReconstructRho() (utils.Vector, error)
	ReconstructJ() (utils.Matrix, error) // DimsVel x NodeCount
	ReconstructDensities() (rho utils.Vector, j utils.Matrix, err error)
}

// Normalizable exposes the diagnostic aggregates of the normalized shape
// reconstructor. Read-only to callers.
type Normalizable interface {
	NormalizationStats() Stats
	CentroidDistanceStats() Stats
	ElPerParticleStats() Stats
}

// DOFShiftListener observes degree-of-freedom renumbering performed by the
// advective reconstructor on element activation and kill, so external
// holders of DOF indices can resynchronize.
type DOFShiftListener interface {
	NoteDOFMove(from, to, count int)
	NoteDOFResize(newSize int)
}

// Advective is the per-timestep protocol of the advective reconstructor.
type Advective interface {
	AddLocalDiffMatrix(axis int, D utils.Matrix)
	AddAdvectiveParticle(sf *shapefn.ShapeFunction, pn int) error
	ClearAdvectiveParticles()
	CountAdvectiveParticles() int
	GetAdvectiveParticleRHS() utils.Vector
	ApplyAdvectiveParticleRHS(rhs utils.Vector, dt float64)
	PerformReconstructorUpkeep()
	SetRhoDOFShiftListener(l DOFShiftListener)
	GetDebugQuantityOnMesh(name string) (utils.Vector, error)
	ActiveElements() int
	ElementActivationCounter() int
	ElementKillCounter() int
}

// GridBacked is the surface shared by the grid and grid-find variants.
type GridBacked interface {
	GridNodeCount() int
	FindPointsInElement() error
	RemapGridToMesh(grid utils.Vector) (utils.Vector, error)
	RemapResidual(grid utils.Vector) (utils.Vector, error)
	ReconstructGridRho() (utils.Vector, error)
	ReconstructGridJ() (utils.Matrix, error)
	ReconstructGridDensities() (utils.Vector, utils.Matrix, error)
	GridNodeUsage() []int
}

// PointLocation selects how brick lattice points are matched to mesh
// elements during grid setup. The brick is an affine lattice, so direct
// index arithmetic locates points exactly; it is the only implemented
// strategy, and the enum exists so a simplex-reduction walk can slot in
// for higher dimensions without changing the configuration surface.
type PointLocation string

const (
	PointLocationDirect PointLocation = "direct"
)

// Kind selects a reconstruction strategy at configuration time.
type Kind string

const (
	KindShape     Kind = "shape"
	KindNormShape Kind = "normshape"
	KindAdvective Kind = "advective"
	KindGrid      Kind = "grid"
	KindGridFind  Kind = "gridfind"
)

// Config carries the enumerated reconstruction options from the input deck.
type Config struct {
	Kind                Kind
	ParallelDegree      int           // particle-parallel deposition workers
	PointLocation       PointLocation // grid variants; empty means direct
	ElTolerance         float64
	Overresolve         float64
	JiggleRadius        float64
	ActivationThreshold float64
	KillThreshold       float64
	UpwindAlpha         float64
}

func (cfg Config) checkPointLocation() error {
	switch cfg.PointLocation {
	case "", PointLocationDirect:
		return nil
	}
	return fmt.Errorf("unknown point location method %q", cfg.PointLocation)
}

// New builds the selected reconstructor bound to a particle cloud. The shape
// function is set separately (and may be replaced between calls).
func New(cfg Config, pc *cloud.ParticleCloud) (r Reconstructor, err error) {
	switch cfg.Kind {
	case KindShape:
		r = NewShapeFunctionReconstructor(pc, cfg.ParallelDegree)
	case KindNormShape:
		r, err = NewNormalizedShapeFunctionReconstructor(pc)
	case KindAdvective:
		r = NewAdvectiveReconstructor(pc, cfg.ActivationThreshold,
			cfg.KillThreshold, cfg.UpwindAlpha)
	case KindGrid:
		if err = cfg.checkPointLocation(); err != nil {
			return
		}
		r, err = NewGridReconstructor(pc, SingleBrickGenerator{
			Overresolve:  cfg.Overresolve,
			JiggleRadius: cfg.JiggleRadius,
		}, cfg.ElTolerance)
	case KindGridFind:
		if err = cfg.checkPointLocation(); err != nil {
			return
		}
		r, err = NewGridFindReconstructor(pc, SingleBrickGenerator{
			Overresolve:  cfg.Overresolve,
			JiggleRadius: cfg.JiggleRadius,
		}, cfg.ElTolerance)
	default:
		err = fmt.Errorf("unknown reconstructor kind %q", cfg.Kind)
	}
	return
}

// base holds what every reconstructor shares: the bound cloud, its mesh and
// the current shape kernel. The kernel is an explicit field set once per
// configuration change, never ambient state.
type base struct {
	pc *cloud.ParticleCloud
	md *meshdata.MeshData
	sf *shapefn.ShapeFunction
}

func (b *base) setShapeFunction(sf *shapefn.ShapeFunction) error {
	if sf == nil {
		return fmt.Errorf("shape function must not be nil")
	}
	if sf.Dims() != b.md.Dims {
		return fmt.Errorf("shape function dimension %d does not match mesh dimension %d",
			sf.Dims(), b.md.Dims)
	}
	b.sf = sf
	return nil
}

func (b *base) requireShapeFunction() error {
	if b.sf == nil {
		return fmt.Errorf("shape function never set")
	}
	return nil
}

func errOutOfDomain(pn int, pos []float64) error {
	return fmt.Errorf("out-of-domain particle %d at %v: no containing element", pn, pos)
}
