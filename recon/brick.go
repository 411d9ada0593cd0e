package recon

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/meshdata"
)

// Brick is one axis-aligned structured block of grid deposition nodes.
// Node coordinates are regular lattice points, optionally jiggled by a
// deterministic per-node offset to break degeneracies between the lattice
// and the mesh node sets. Linear node numbering runs axis 0 fastest.
type Brick struct {
	Number       int
	StartIndex   int // global grid node index of this brick's first node
	Origin       []float64
	StepWidths   []float64
	Dims         []int
	JiggleRadius float64 // as a fraction of the step width, in [0, 0.5)
}

func (b *Brick) NodeCount() (n int) {
	n = 1
	for _, d := range b.Dims {
		n *= d
	}
	return
}

// LinearIndex flattens a per-axis index, axis 0 fastest.
func (b *Brick) LinearIndex(idx []int) (n int) {
	for d := len(idx) - 1; d >= 0; d-- {
		n = n*b.Dims[d] + idx[d]
	}
	return
}

// Index splits a linear node number into per-axis indices.
func (b *Brick) Index(n int) (idx []int) {
	idx = make([]int, len(b.Dims))
	for d := 0; d < len(b.Dims); d++ {
		idx[d] = n % b.Dims[d]
		n /= b.Dims[d]
	}
	return
}

// jiggle is a deterministic pseudo-random offset in [-1,1] for one node and
// axis, stable across runs.
func (b *Brick) jiggle(n, axis int) float64 {
	h := uint64(b.Number)*0x9e3779b97f4a7c15 + uint64(n)*0xbf58476d1ce4e5b9 +
		uint64(axis)*0x94d049bb133111eb
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	return 2.*float64(h>>11)/float64(1<<53) - 1.
}

// Point returns the coordinates of grid node n within the brick.
func (b *Brick) Point(n int) (pt []float64) {
	var (
		idx = b.Index(n)
	)
	pt = make([]float64, len(b.Dims))
	for d := range pt {
		pt[d] = b.Origin[d] + float64(idx[d])*b.StepWidths[d]
		if b.JiggleRadius > 0 {
			pt[d] += b.JiggleRadius * b.StepWidths[d] * b.jiggle(n, d)
		}
	}
	return
}

// BoundingBox returns the coordinate range covered by the brick, padded by
// the jiggle amplitude.
func (b *Brick) BoundingBox() (lo, hi []float64) {
	lo = make([]float64, len(b.Dims))
	hi = make([]float64, len(b.Dims))
	for d := range b.Dims {
		pad := b.JiggleRadius * b.StepWidths[d]
		lo[d] = b.Origin[d] - pad
		hi[d] = b.Origin[d] + float64(b.Dims[d]-1)*b.StepWidths[d] + pad
	}
	return
}

// ContainsPoint reports whether pt falls inside the brick's padded box.
func (b *Brick) ContainsPoint(pt []float64) bool {
	lo, hi := b.BoundingBox()
	for d := range pt {
		if pt[d] < lo[d] || pt[d] > hi[d] {
			return false
		}
	}
	return true
}

// BrickGenerator lays out the structured deposition grid over a mesh.
type BrickGenerator interface {
	Generate(md *meshdata.MeshData) ([]Brick, error)
}

// SingleBrickGenerator covers the mesh bounding box with one brick whose
// step width oversamples the mean element size by the Overresolve factor.
type SingleBrickGenerator struct {
	Overresolve  float64
	JiggleRadius float64
}

func (g SingleBrickGenerator) Generate(md *meshdata.MeshData) (bricks []Brick, err error) {
	var (
		over = g.Overresolve
	)
	if over <= 0 {
		over = 1.5
	}
	if g.JiggleRadius < 0 || g.JiggleRadius >= 0.5 {
		err = fmt.Errorf("jiggle radius %g outside [0, 0.5)", g.JiggleRadius)
		return
	}
	var volume float64
	for en := range md.Elements {
		volume += md.ElementMeasure(en)
	}
	// step width from the mean element size, shrunk by the overresolve factor
	dx := math.Pow(volume/float64(md.K()), 1./float64(md.Dims)) / over
	var (
		b = Brick{
			Number:       0,
			StartIndex:   0,
			Origin:       append([]float64{}, md.BBoxLo...),
			StepWidths:   make([]float64, md.Dims),
			Dims:         make([]int, md.Dims),
			JiggleRadius: g.JiggleRadius,
		}
	)
	for d := 0; d < md.Dims; d++ {
		b.StepWidths[d] = dx
		b.Dims[d] = int(math.Ceil((md.BBoxHi[d]-md.BBoxLo[d])/dx)) + 1
	}
	bricks = []Brick{b}
	return
}
