package cloud

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/utils"
)

// NumberShiftListener is notified whenever the particle count changes, so
// that holders of per-particle state sized to the cloud can resynchronize.
type NumberShiftListener interface {
	NoteChangeSize(newSize int)
}

// ParticleCloud is the state container for all live macro-particles:
// flat per-field arrays of position, momentum, charge and mass, plus the
// containing-element bookkeeping used by the deposition engine.
type ParticleCloud struct {
	DimsPos, DimsVel int
	LightSpeed       float64

	Positions []float64 // DimsPos components per particle
	Momenta   []float64 // DimsVel components per particle
	Charges   []float64
	Masses    []float64

	ContainingElements utils.Index
	Mesh               *meshdata.MeshData
	FindCounters       meshdata.FindCounters

	listeners []NumberShiftListener

	velocityCache []float64
	cacheValid    bool
}

func NewParticleCloud(md *meshdata.MeshData, dimsPos, dimsVel int,
	lightSpeed float64) (pc *ParticleCloud) {
	pc = &ParticleCloud{
		DimsPos:    dimsPos,
		DimsVel:    dimsVel,
		LightSpeed: lightSpeed,
		Mesh:       md,
	}
	return
}

func (pc *ParticleCloud) Len() int { return len(pc.Charges) }

func (pc *ParticleCloud) Subscribe(l NumberShiftListener) {
	pc.listeners = append(pc.listeners, l)
}

func (pc *ParticleCloud) noteChangeSize() {
	for _, l := range pc.listeners {
		l.NoteChangeSize(pc.Len())
	}
}

// Position returns the position slice of particle pn (aliasing the backing
// array, do not retain across mutation).
func (pc *ParticleCloud) Position(pn int) []float64 {
	return pc.Positions[pn*pc.DimsPos : (pn+1)*pc.DimsPos]
}

func (pc *ParticleCloud) Momentum(pn int) []float64 {
	return pc.Momenta[pn*pc.DimsVel : (pn+1)*pc.DimsVel]
}

// AddParticle appends one particle given position, velocity, charge and
// mass, converting velocity to relativistic momentum. Particles outside the
// mesh are rejected with an out-of-domain error.
func (pc *ParticleCloud) AddParticle(pos, vel []float64, charge, mass float64) (err error) {
	if len(pos) != pc.DimsPos || len(vel) != pc.DimsVel {
		err = fmt.Errorf("particle dimension mismatch: got pos %d, vel %d, want %d, %d",
			len(pos), len(vel), pc.DimsPos, pc.DimsVel)
		return
	}
	en := pc.Mesh.FindContainingElement(pos, 0)
	if en == meshdata.InvalidElement {
		err = fmt.Errorf("particle position %v outside mesh domain", pos)
		return
	}
	gamma := pc.gammaFromV(vel)
	pc.Positions = append(pc.Positions, pos...)
	for _, v := range vel {
		pc.Momenta = append(pc.Momenta, mass*gamma*v)
	}
	pc.Charges = append(pc.Charges, charge)
	pc.Masses = append(pc.Masses, mass)
	pc.ContainingElements = append(pc.ContainingElements, en)
	pc.cacheValid = false
	pc.noteChangeSize()
	return
}

// AddParticles bulk-appends particles from flat position/velocity arrays
// (DimsPos and DimsVel components per particle).
func (pc *ParticleCloud) AddParticles(pos, vel, charges, masses []float64) (err error) {
	n := len(charges)
	if len(masses) != n || len(pos) != n*pc.DimsPos || len(vel) != n*pc.DimsVel {
		return fmt.Errorf("bulk particle arrays disagree on count: %d charges, "+
			"%d masses, %d positions, %d velocities",
			n, len(masses), len(pos), len(vel))
	}
	for i := 0; i < n; i++ {
		if err = pc.AddParticle(pos[i*pc.DimsPos:(i+1)*pc.DimsPos],
			vel[i*pc.DimsVel:(i+1)*pc.DimsVel], charges[i], masses[i]); err != nil {
			return
		}
	}
	return
}

func (pc *ParticleCloud) ClearParticles() {
	pc.Positions = pc.Positions[:0]
	pc.Momenta = pc.Momenta[:0]
	pc.Charges = pc.Charges[:0]
	pc.Masses = pc.Masses[:0]
	pc.ContainingElements = pc.ContainingElements[:0]
	pc.cacheValid = false
	pc.noteChangeSize()
}

// NoteMomentumChange invalidates the cached velocities after a pusher
// mutates Momenta directly.
func (pc *ParticleCloud) NoteMomentumChange() { pc.cacheValid = false }

func (pc *ParticleCloud) gammaFromV(vel []float64) float64 {
	var v2 float64
	for _, v := range vel {
		v2 += v * v
	}
	beta2 := v2 / (pc.LightSpeed * pc.LightSpeed)
	if beta2 >= 1 {
		panic(fmt.Errorf("particle velocity %g exceeds light speed %g",
			math.Sqrt(v2), pc.LightSpeed))
	}
	return 1. / math.Sqrt(1-beta2)
}

// Velocities returns the flat velocity array (DimsVel per particle) derived
// from momenta: v = p / sqrt(m^2 + |p|^2/c^2). The result is cached until
// the cloud mutates.
func (pc *ParticleCloud) Velocities() []float64 {
	if pc.cacheValid {
		return pc.velocityCache
	}
	var (
		n = pc.Len()
		c = pc.LightSpeed
	)
	pc.velocityCache = make([]float64, n*pc.DimsVel)
	for pn := 0; pn < n; pn++ {
		var (
			p  = pc.Momentum(pn)
			m  = pc.Masses[pn]
			p2 float64
		)
		for _, pi := range p {
			p2 += pi * pi
		}
		denom := math.Sqrt(m*m + p2/(c*c))
		for d, pi := range p {
			pc.velocityCache[pn*pc.DimsVel+d] = pi / denom
		}
	}
	pc.cacheValid = true
	return pc.velocityCache
}

func (pc *ParticleCloud) Velocity(pn int) []float64 {
	v := pc.Velocities()
	return v[pn*pc.DimsVel : (pn+1)*pc.DimsVel]
}

// TotalCharge sums the charge carried by the cloud.
func (pc *ParticleCloud) TotalCharge() (q float64) {
	for _, qi := range pc.Charges {
		q += qi
	}
	return
}

// UpdateContainingElements relocates every particle after a push, using the
// incremental same/neighbor/vertex/global search. Escaped particles are
// marked InvalidElement so the reconstructors' out-of-domain guard engages,
// and all of them are named in the returned error; the caller decides
// recovery.
func (pc *ParticleCloud) UpdateContainingElements(tol float64) (err error) {
	var escaped []int
	for pn := 0; pn < pc.Len(); pn++ {
		en := pc.Mesh.FindElementNear(pc.Position(pn), pc.ContainingElements[pn],
			tol, &pc.FindCounters)
		pc.ContainingElements[pn] = en
		if en == meshdata.InvalidElement {
			escaped = append(escaped, pn)
		}
	}
	if len(escaped) != 0 {
		err = fmt.Errorf("%d particles left the mesh domain: %v",
			len(escaped), escaped)
	}
	return
}

// CheckContainment verifies that a containing element is known for every
// particle.
func (pc *ParticleCloud) CheckContainment() (err error) {
	for pn, en := range pc.ContainingElements {
		if en == meshdata.InvalidElement {
			return fmt.Errorf("particle %d has no containing element", pn)
		}
	}
	return
}
