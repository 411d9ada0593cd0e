package meshdata

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gopic/utils"
)

const (
	// InvalidElement marks a boundary face neighbor or a failed element search.
	InvalidElement = -1
)

// ElementInfo carries the per-element geometry consumed by the
// reconstructors: the affine map to reference coordinates, the element's
// global degree-of-freedom range, and face/neighbor connectivity. Elements
// are owned by MeshData and immutable during a run.
type ElementInfo struct {
	ID         int
	Vertices   utils.Index
	Origin     []float64    // coordinates of the element's first vertex
	RX         utils.Matrix // dr/dx, maps physical offsets to reference offsets
	Jacobian   float64      // det(dx/dr), constant on affine elements
	Start, End int          // global node (DOF) index range [Start, End)
	Neighbors  utils.Index  // per face, InvalidElement on domain boundary
	Normals    [][]float64  // per face outward unit normal
}

// RefCoords maps a physical point into the element's reference simplex,
// whose vertices sit at (-1,...,-1) and +1 on each axis.
func (ei *ElementInfo) RefCoords(pt []float64) (r []float64) {
	var (
		dims = len(pt)
		dx   = make([]float64, dims)
	)
	for i := range dx {
		dx[i] = pt[i] - ei.Origin[i]
	}
	r = make([]float64, dims)
	for i := 0; i < dims; i++ {
		var sum float64
		for j := 0; j < dims; j++ {
			sum += ei.RX.At(i, j) * dx[j]
		}
		r[i] = sum - 1
	}
	return
}

func (ei *ElementInfo) ContainsPoint(pt []float64, tol float64) bool {
	var (
		r    = ei.RefCoords(pt)
		dims = len(pt)
		sum  float64
	)
	for _, ri := range r {
		if ri < -1-tol {
			return false
		}
		sum += ri
	}
	return sum <= float64(2-dims)+tol
}

func (ei *ElementInfo) Centroid(md *MeshData) (c []float64) {
	c = make([]float64, md.Dims)
	for _, vi := range ei.Vertices {
		for d := 0; d < md.Dims; d++ {
			c[d] += md.Vertices[vi][d]
		}
	}
	for d := range c {
		c[d] /= float64(len(ei.Vertices))
	}
	return
}

func (ei *ElementInfo) BoundingBox(md *MeshData) (lo, hi []float64) {
	lo = make([]float64, md.Dims)
	hi = make([]float64, md.Dims)
	for d := 0; d < md.Dims; d++ {
		lo[d] = math.Inf(1)
		hi[d] = math.Inf(-1)
	}
	for _, vi := range ei.Vertices {
		for d := 0; d < md.Dims; d++ {
			v := md.Vertices[vi][d]
			if v < lo[d] {
				lo[d] = v
			}
			if v > hi[d] {
				hi[d] = v
			}
		}
	}
	return
}

// MeshData is the finite-element mesh access surface consumed by all
// reconstructors. A single element group with a shared reference basis is
// assumed, matching the discretizations this engine is driven by.
type MeshData struct {
	Dims  int
	Order int
	Np    int // nodes per element

	Vertices [][]float64
	Elements []ElementInfo
	Nodes    [][]float64 // global DOF node coordinates, element-contiguous

	// Flat vertex -> element adjacency (starts + data layout)
	VertexAdjElementStarts utils.Index
	VertexAdjElements      utils.Index

	// Reference element operators
	RefNodes   utils.Vector   // 1D reference node coordinates on [-1,1]
	V, Vinv    utils.Matrix   // nodal Vandermonde and its inverse
	MassRef    utils.Matrix   // reference mass matrix (V*V^T)^-1
	InvMassRef utils.Matrix   // V*V^T
	DrRef      []utils.Matrix // reference differentiation matrix per axis
	WRef       utils.Vector   // reference quadrature weights (MassRef row sums)
	LIFT       utils.Matrix   // face lift operator
	FaceNodes  []utils.Index  // per face, local node indices on that face
	NFaces     int
	Nfp        int // nodes per face

	BBoxLo, BBoxHi []float64
}

func (md *MeshData) K() int { return len(md.Elements) }

func (md *MeshData) NodeCount() int { return md.K() * md.Np }

// RefVolume is the measure of the reference simplex: 2^D / D!.
func (md *MeshData) RefVolume() (v float64) {
	v = 1
	for d := 1; d <= md.Dims; d++ {
		v *= 2. / float64(d)
	}
	return
}

func (md *MeshData) ElementMeasure(en int) float64 {
	return md.Elements[en].Jacobian * md.RefVolume()
}

// ElementWeights returns quadrature weights over the element's nodes such
// that w . f approximates the integral of the nodal field f over the element.
func (md *MeshData) ElementWeights(en int) (W utils.Vector) {
	W = md.WRef.Copy().Scale(md.Elements[en].Jacobian)
	return
}

// Integrate computes the integral of a mesh-sampled field over the whole mesh.
func (md *MeshData) Integrate(f utils.Vector) (integral float64) {
	if f.Len() != md.NodeCount() {
		panic(fmt.Errorf("field length %d does not match mesh node count %d",
			f.Len(), md.NodeCount()))
	}
	for en := range md.Elements {
		var (
			ei = &md.Elements[en]
			w  = md.WRef.DataP()
			fd = f.DataP()
		)
		for i := 0; i < md.Np; i++ {
			integral += ei.Jacobian * w[i] * fd[ei.Start+i]
		}
	}
	return
}

func (md *MeshData) BoundingBoxContains(pt []float64) bool {
	for d := 0; d < md.Dims; d++ {
		if pt[d] < md.BBoxLo[d] || pt[d] > md.BBoxHi[d] {
			return false
		}
	}
	return true
}

// VertexAdjacentElements returns the ids of elements sharing vertex vi,
// read from the flat starts+data adjacency arrays.
func (md *MeshData) VertexAdjacentElements(vi int) utils.Index {
	return md.VertexAdjElements[md.VertexAdjElementStarts[vi]:md.VertexAdjElementStarts[vi+1]]
}

func (md *MeshData) minVertexDistanceForEl(ei *ElementInfo) (min float64) {
	min = math.Inf(1)
	for i, vi := range ei.Vertices {
		for j, vj := range ei.Vertices {
			if i == j {
				continue
			}
			var d2 float64
			for d := 0; d < md.Dims; d++ {
				dx := md.Vertices[vi][d] - md.Vertices[vj][d]
				d2 += dx * dx
			}
			if dist := math.Sqrt(d2); dist < min {
				min = dist
			}
		}
	}
	return
}

func (md *MeshData) MinVertexDistance() (min float64) {
	min = math.Inf(1)
	for en := range md.Elements {
		if d := md.minVertexDistanceForEl(&md.Elements[en]); d < min {
			min = d
		}
	}
	return
}

// AdvisableParticleRadius suggests a shape-function bandwidth from the mesh:
// 0.6 times the 25th-percentile per-element minimum vertex distance.
func (md *MeshData) AdvisableParticleRadius() float64 {
	var (
		dists = make([]float64, md.K())
	)
	for en := range md.Elements {
		dists[en] = md.minVertexDistanceForEl(&md.Elements[en])
	}
	sort.Float64s(dists)
	return 0.6 * dists[int(0.25*float64(len(dists)))]
}
