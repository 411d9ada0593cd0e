package meshdata

import (
	"fmt"

	"github.com/notargets/gopic/utils"
)

// NewIntervalMesh builds a uniform 1D mesh of K elements on [xmin, xmax]
// with a nodal basis of order N per element. Meshes of higher dimension are
// supplied by external mesh-import collaborators through the same MeshData
// surface.
func NewIntervalMesh(xmin, xmax float64, K, N int) (md *MeshData) {
	if K < 1 || N < 1 || xmax <= xmin {
		panic(fmt.Errorf("bad interval mesh parameters: K=%d, N=%d, [%g,%g]",
			K, N, xmin, xmax))
	}
	var (
		Np = N + 1
		h  = (xmax - xmin) / float64(K)
	)
	md = &MeshData{
		Dims:   1,
		Order:  N,
		Np:     Np,
		BBoxLo: []float64{xmin},
		BBoxHi: []float64{xmax},
		NFaces: 2,
		Nfp:    1,
	}

	// Reference operators
	md.RefNodes = JacobiGL(0, 0, N)
	md.V = Vandermonde1D(N, md.RefNodes)
	md.Vinv = md.V.Inverse()
	md.InvMassRef = md.V.Mul(md.V.Transpose())
	md.MassRef = md.InvMassRef.Inverse()
	md.WRef = md.MassRef.SumRows()
	md.DrRef = []utils.Matrix{Dmatrix1D(N, md.RefNodes, md.V)}
	md.LIFT = lift1D(md.V, Np)
	md.FaceNodes = []utils.Index{{0}, {Np - 1}}

	// Vertices
	md.Vertices = make([][]float64, K+1)
	for i := 0; i <= K; i++ {
		md.Vertices[i] = []float64{xmin + float64(i)*h}
	}

	// Elements and nodes
	md.Elements = make([]ElementInfo, K)
	md.Nodes = make([][]float64, K*Np)
	for k := 0; k < K; k++ {
		var (
			x0        = md.Vertices[k][0]
			neighbors = utils.Index{k - 1, k + 1}
		)
		if k == 0 {
			neighbors[0] = InvalidElement
		}
		if k == K-1 {
			neighbors[1] = InvalidElement
		}
		md.Elements[k] = ElementInfo{
			ID:        k,
			Vertices:  utils.Index{k, k + 1},
			Origin:    []float64{x0},
			RX:        utils.NewMatrix(1, 1, []float64{2. / h}),
			Jacobian:  h / 2,
			Start:     k * Np,
			End:       (k + 1) * Np,
			Neighbors: neighbors,
			Normals:   [][]float64{{-1}, {1}},
		}
		for i := 0; i < Np; i++ {
			r := md.RefNodes.AtVec(i)
			md.Nodes[k*Np+i] = []float64{x0 + h*(r+1)/2}
		}
	}

	// Vertex adjacency in starts+data layout
	md.VertexAdjElementStarts = utils.NewIndex(K + 2)
	for vi := 0; vi <= K; vi++ {
		md.VertexAdjElementStarts[vi] = len(md.VertexAdjElements)
		if vi > 0 {
			md.VertexAdjElements = append(md.VertexAdjElements, vi-1)
		}
		if vi < K {
			md.VertexAdjElements = append(md.VertexAdjElements, vi)
		}
	}
	md.VertexAdjElementStarts[K+1] = len(md.VertexAdjElements)
	return
}

func lift1D(V utils.Matrix, Np int) (LIFT utils.Matrix) {
	Emat := utils.NewMatrix(Np, 2)
	Emat.Set(0, 0, 1)
	Emat.Set(Np-1, 1, 1)
	LIFT = V.Mul(V.Transpose()).Mul(Emat)
	return
}
