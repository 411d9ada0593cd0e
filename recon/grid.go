package recon

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/shapefn"
	"github.com/notargets/gopic/utils"
)

// rankTolerance bounds the singular value ratio below which a structured
// Vandermonde is treated as rank deficient and extra points are added.
const rankTolerance = 1.e-10

// elementRemap is the per-element grid interpolation built at setup: the
// grid node ids claimed by the element, the operator taking grid samples to
// nodal mesh values, and the in-span projector used for fit residuals.
type elementRemap struct {
	points utils.Index  // global grid node ids inside the element
	interp utils.Matrix // Np x len(points): samples -> nodal values
	fit    utils.Matrix // len(points) x len(points): Vs * pinv(Vs)
}

// GridReconstructor deposits on an auxiliary structured lattice and remaps
// the samples back onto the mesh with a least-squares fit per element plus a
// charge-preserving residual correction. Point location of grid nodes in
// mesh elements runs once per configuration via FindPointsInElement.
type GridReconstructor struct {
	base
	ElTolerance float64

	gen    BrickGenerator
	bricks []Brick

	// extra points appended after the brick lattices in node-index space,
	// flat starts+data layout per element
	elExtraPointStarts utils.Index
	extraPoints        []float64 // Dims coords per point
	brickNodeTotal     int

	elRemaps  []elementRemap
	nodeUsage []int

	// average groups, flat starts+data layout
	averageGroupStarts utils.Index
	averageGroups      utils.Index

	remapOp *sparse.CSR // NodeCount x GridNodeCount
}

// newGridBase generates and numbers the bricks without building the remap,
// shared between the grid and grid-find constructors.
func newGridBase(pc *cloud.ParticleCloud, gen BrickGenerator,
	elTolerance float64) (r *GridReconstructor, err error) {
	r = &GridReconstructor{
		base:        base{pc: pc, md: pc.Mesh},
		ElTolerance: elTolerance,
		gen:         gen,
	}
	if r.bricks, err = gen.Generate(r.md); err != nil {
		return
	}
	for i := range r.bricks {
		r.bricks[i].Number = i
		r.bricks[i].StartIndex = r.brickNodeTotal
		r.brickNodeTotal += r.bricks[i].NodeCount()
	}
	return
}

func NewGridReconstructor(pc *cloud.ParticleCloud, gen BrickGenerator,
	elTolerance float64) (r *GridReconstructor, err error) {
	if r, err = newGridBase(pc, gen, elTolerance); err != nil {
		return
	}
	err = r.FindPointsInElement()
	return
}

func (r *GridReconstructor) Name() string { return "Grid" }

func (r *GridReconstructor) SetShapeFunction(sf *shapefn.ShapeFunction) error {
	return r.setShapeFunction(sf)
}

// GridNodeCount is the total addressable grid index space: brick lattices
// plus appended extra points.
func (r *GridReconstructor) GridNodeCount() int {
	return r.brickNodeTotal + len(r.extraPoints)/r.md.Dims
}

func (r *GridReconstructor) GridNodeUsage() []int { return r.nodeUsage }

// Bricks exposes the generated brick layout (read-only).
func (r *GridReconstructor) Bricks() []Brick { return r.bricks }

// gridPoint returns the coordinates of global grid node gid.
func (r *GridReconstructor) gridPoint(gid int) []float64 {
	for b := range r.bricks {
		if gid < r.bricks[b].StartIndex+r.bricks[b].NodeCount() {
			return r.bricks[b].Point(gid - r.bricks[b].StartIndex)
		}
	}
	k := gid - r.brickNodeTotal
	return r.extraPoints[k*r.md.Dims : (k+1)*r.md.Dims]
}

// locateDirect scans all elements for those containing pt.
func (r *GridReconstructor) locateDirect(pt []float64) (els utils.Index) {
	for en := range r.md.Elements {
		if r.md.Elements[en].ContainsPoint(pt, r.ElTolerance) {
			els = append(els, en)
		}
	}
	return
}

// candidateNodes returns the global grid node ids of lattice points whose
// brick index window overlaps the box [lo, hi].
func (r *GridReconstructor) candidateNodes(lo, hi []float64) (gids utils.Index) {
	var (
		dims = r.md.Dims
	)
	for bi := range r.bricks {
		var (
			b        = &r.bricks[bi]
			i1       = make([]int, dims)
			i2       = make([]int, dims)
			empty    bool
			idx      = make([]int, dims)
		)
		for d := 0; d < dims; d++ {
			i1[d] = utils.Imax(0, int(math.Floor((lo[d]-b.Origin[d])/b.StepWidths[d]))-1)
			i2[d] = utils.Imin(b.Dims[d]-1, int(math.Ceil((hi[d]-b.Origin[d])/b.StepWidths[d]))+1)
			if i1[d] > i2[d] {
				empty = true
			}
			idx[d] = i1[d]
		}
		if empty {
			continue
		}
		for {
			gids = append(gids, b.StartIndex+b.LinearIndex(idx))
			d := 0
			for ; d < dims; d++ {
				idx[d]++
				if idx[d] <= i2[d] {
					break
				}
				idx[d] = i1[d]
			}
			if d == dims {
				break
			}
		}
	}
	return
}

// structuredVandermonde evaluates the element's modal basis at the grid
// points, returning the fit matrix Vs and its smallest/largest singular
// value ratio.
func (r *GridReconstructor) structuredVandermonde(en int, gids utils.Index) (
	Vs utils.Matrix, condInv float64) {
	var (
		md = r.md
		ei = &md.Elements[en]
		rs = make([]float64, len(gids))
	)
	for k, gid := range gids {
		rs[k] = ei.RefCoords(r.gridPoint(gid))[0]
	}
	Vs = meshdata.Vandermonde1D(md.Order, utils.NewVector(len(rs), rs))
	var svd mat.SVD
	if !svd.Factorize(Vs.M, mat.SVDNone) {
		return
	}
	s := svd.Values(nil)
	if s[0] > 0 {
		condInv = s[len(s)-1] / s[0]
	}
	return
}

// pseudoInverse computes the Moore-Penrose inverse of an nPts x Np matrix
// via thin SVD, truncating singular values below rankTolerance of the
// largest.
func pseudoInverse(A utils.Matrix) (pinv utils.Matrix) {
	var (
		svd  mat.SVD
		u, v mat.Dense
	)
	if !svd.Factorize(A.M, mat.SVDThin) {
		nr, nc := A.Dims()
		panic(fmt.Errorf("SVD of %dx%d remap matrix failed", nr, nc))
	}
	svd.UTo(&u)
	svd.VTo(&v)
	var (
		s        = svd.Values(nil)
		nPts, np = A.Dims()
		scaled   = mat.NewDense(np, len(s), nil)
	)
	for j := 0; j < len(s); j++ {
		inv := 0.
		if s[j] > rankTolerance*s[0] {
			inv = 1. / s[j]
		}
		for i := 0; i < np; i++ {
			scaled.Set(i, j, v.At(i, j)*inv)
		}
	}
	pm := mat.NewDense(np, nPts, nil)
	pm.Mul(scaled, u.T())
	pinv = utils.Matrix{M: pm}
	return
}

// claimPointsByElement locates, per element, the lattice nodes it contains
// by scanning only the brick index window over the element bounding box.
func (r *GridReconstructor) claimPointsByElement() (claims []utils.Index) {
	claims = make([]utils.Index, r.md.K())
	for en := range r.md.Elements {
		var (
			ei     = &r.md.Elements[en]
			lo, hi = ei.BoundingBox(r.md)
		)
		for _, gid := range r.candidateNodes(lo, hi) {
			if ei.ContainsPoint(r.gridPoint(gid), r.ElTolerance) {
				claims[en] = append(claims[en], gid)
			}
		}
	}
	return
}

// FindPointsInElement performs the once-per-configuration geometric setup:
// locate grid nodes in mesh elements, append extra points where the fit
// would be underdetermined, build the per-element interpolation operators,
// the average groups, and the assembled sparse remap operator.
func (r *GridReconstructor) FindPointsInElement() (err error) {
	return r.setupFromClaims(r.claimPointsByElement())
}

// setupFromClaims builds all remap state from the per-element grid node
// claims, however they were located.
func (r *GridReconstructor) setupFromClaims(claims []utils.Index) (err error) {
	if r.md.Dims != 1 {
		err = fmt.Errorf("structured remap supports 1D meshes, got %dD", r.md.Dims)
		return
	}
	var (
		md = r.md
		np = md.Np
	)
	r.extraPoints = r.extraPoints[:0]
	r.elExtraPointStarts = make(utils.Index, md.K()+1)
	r.elRemaps = make([]elementRemap, md.K())

	for en := range md.Elements {
		var (
			ei   = &md.Elements[en]
			gids = claims[en]
		)
		needExtra := len(gids) < np
		if !needExtra {
			_, condInv := r.structuredVandermonde(en, gids)
			needExtra = condInv < rankTolerance
		}
		if needExtra {
			// back the fit with the element's own interpolation nodes
			for i := 0; i < np; i++ {
				gids = append(gids, r.brickNodeTotal+len(r.extraPoints)/md.Dims)
				r.extraPoints = append(r.extraPoints, md.Nodes[ei.Start+i]...)
			}
		}
		r.elExtraPointStarts[en+1] = len(r.extraPoints) / md.Dims
		if len(gids) < np {
			err = fmt.Errorf("element %d claims %d grid points, need at least %d",
				en, len(gids), np)
			return
		}
		Vs, _ := r.structuredVandermonde(en, gids)
		pinv := pseudoInverse(Vs)
		r.elRemaps[en] = elementRemap{
			points: gids,
			interp: md.V.Mul(pinv),
			fit:    Vs.Mul(pinv),
		}
	}

	r.nodeUsage = make([]int, r.GridNodeCount())
	for en := range r.elRemaps {
		for _, gid := range r.elRemaps[en].points {
			r.nodeUsage[gid]++
		}
	}
	if err = r.checkCoverage(); err != nil {
		return
	}
	r.buildAverageGroups()
	r.buildRemapOperator()
	return
}

// checkCoverage rejects layouts with lattice nodes inside the mesh bounding
// box that no element claims: the remap cannot preserve charge deposited
// there.
func (r *GridReconstructor) checkCoverage() (err error) {
	for gid := 0; gid < r.brickNodeTotal; gid++ {
		if r.nodeUsage[gid] == 0 && r.md.BoundingBoxContains(r.gridPoint(gid)) {
			err = fmt.Errorf("grid node %d at %v lies in no mesh element",
				gid, r.gridPoint(gid))
			return
		}
	}
	return
}

// buildAverageGroups groups grid nodes that represent the same physical
// location (coincident nodes of overlapping bricks or duplicated extra
// points), keyed by quantized coordinates.
func (r *GridReconstructor) buildAverageGroups() {
	var (
		quant  = r.bricks[0].StepWidths[0] * 1.e-9
		coords = make(map[string]utils.Index)
	)
	for gid := 0; gid < r.GridNodeCount(); gid++ {
		var (
			pt  = r.gridPoint(gid)
			key = ""
		)
		for d := range pt {
			key += fmt.Sprintf("%d:", int64(math.Round(pt[d]/quant)))
		}
		coords[key] = append(coords[key], gid)
	}
	r.averageGroupStarts = utils.Index{0}
	r.averageGroups = r.averageGroups[:0]
	for gid := 0; gid < r.GridNodeCount(); gid++ {
		var (
			pt  = r.gridPoint(gid)
			key = ""
		)
		for d := range pt {
			key += fmt.Sprintf("%d:", int64(math.Round(pt[d]/quant)))
		}
		group := coords[key]
		if len(group) < 2 || group[0] != gid {
			continue // groups are emitted once, by their lowest member
		}
		r.averageGroups = append(r.averageGroups, group...)
		r.averageGroupStarts = append(r.averageGroupStarts, len(r.averageGroups))
	}
}

// AverageGroupCount reports how many coincident-node groups the layout has.
func (r *GridReconstructor) AverageGroupCount() int {
	return len(r.averageGroupStarts) - 1
}

// ApplyAverageGroups replaces every member of each average group with the
// group mean, in place.
func (r *GridReconstructor) ApplyAverageGroups(field []float64) {
	for g := 0; g < r.AverageGroupCount(); g++ {
		var (
			members = r.averageGroups[r.averageGroupStarts[g]:r.averageGroupStarts[g+1]]
			sum     float64
		)
		for _, gid := range members {
			sum += field[gid]
		}
		avg := sum / float64(len(members))
		for _, gid := range members {
			field[gid] = avg
		}
	}
}

func (r *GridReconstructor) buildRemapOperator() {
	var (
		md  = r.md
		dok = sparse.NewDOK(md.NodeCount(), r.GridNodeCount())
	)
	for en := range r.elRemaps {
		var (
			rm    = &r.elRemaps[en]
			start = md.Elements[en].Start
		)
		for i := 0; i < md.Np; i++ {
			for k, gid := range rm.points {
				if v := rm.interp.At(i, k); v != 0 {
					dok.Set(start+i, gid, v)
				}
			}
		}
	}
	r.remapOp = dok.ToCSR()
}

// RemapGridToMesh averages coincident grid nodes, then applies the
// assembled least-squares remap operator.
func (r *GridReconstructor) RemapGridToMesh(grid utils.Vector) (
	mesh utils.Vector, err error) {
	if grid.Len() != r.GridNodeCount() {
		err = fmt.Errorf("grid field length %d does not match grid node count %d",
			grid.Len(), r.GridNodeCount())
		return
	}
	var (
		g = grid.Copy()
		y mat.VecDense
	)
	r.ApplyAverageGroups(g.DataP())
	y.MulVec(r.remapOp, g.V)
	mesh = utils.Vector{V: &y}
	return
}

// RemapResidual evaluates, per grid node, how far the grid samples sit
// outside the span of the element-local bases: residual = g - Vs*pinv(Vs)*g
// accumulated over claiming elements. Zero (to rounding) for any field the
// remap represents exactly, uniform fields included.
func (r *GridReconstructor) RemapResidual(grid utils.Vector) (
	res utils.Vector, err error) {
	if grid.Len() != r.GridNodeCount() {
		err = fmt.Errorf("grid field length %d does not match grid node count %d",
			grid.Len(), r.GridNodeCount())
		return
	}
	var (
		gd   = grid.DataP()
		data = make([]float64, r.GridNodeCount())
	)
	for en := range r.elRemaps {
		var (
			rm = &r.elRemaps[en]
			n  = len(rm.points)
		)
		for k := 0; k < n; k++ {
			var fitted float64
			for l := 0; l < n; l++ {
				fitted += rm.fit.At(k, l) * gd[rm.points[l]]
			}
			gid := rm.points[k]
			data[gid] += (gd[gid] - fitted) / float64(r.nodeUsage[gid])
		}
	}
	res = utils.NewVector(len(data), data)
	return
}

// gridCellWeight is the quadrature weight of a lattice node, its brick cell
// volume shared over the elements claiming it. Extra points carry no weight.
func (r *GridReconstructor) gridCellWeight(gid int) float64 {
	if gid >= r.brickNodeTotal {
		return 0
	}
	for b := range r.bricks {
		if gid < r.bricks[b].StartIndex+r.bricks[b].NodeCount() {
			w := 1.
			for _, h := range r.bricks[b].StepWidths {
				w *= h
			}
			return w / float64(r.nodeUsage[gid])
		}
	}
	return 0
}

// remapWithCorrection maps a grid field to the mesh and restores, per
// element, the charge the least-squares fit dropped, spread uniformly over
// the element.
func (r *GridReconstructor) remapWithCorrection(grid utils.Vector) (
	mesh utils.Vector, err error) {
	if mesh, err = r.RemapGridToMesh(grid); err != nil {
		return
	}
	var (
		md = r.md
		gd = grid.Copy()
	)
	r.ApplyAverageGroups(gd.DataP())
	for en := range r.elRemaps {
		var (
			rm      = &r.elRemaps[en]
			n       = len(rm.points)
			dropped float64
		)
		for k := 0; k < n; k++ {
			var fitted float64
			for l := 0; l < n; l++ {
				fitted += rm.fit.At(k, l) * gd.AtVec(rm.points[l])
			}
			dropped += r.gridCellWeight(rm.points[k]) *
				(gd.AtVec(rm.points[k]) - fitted)
		}
		if dropped == 0 {
			continue
		}
		var (
			ei    = &md.Elements[en]
			delta = dropped / md.ElementMeasure(en)
		)
		for g := ei.Start; g < ei.End; g++ {
			mesh.V.SetVec(g, mesh.AtVec(g)+delta)
		}
	}
	return
}

// depositGrid splats every particle onto the lattice nodes (and extra
// points) within its kernel radius, then averages coincident nodes.
func (r *GridReconstructor) depositGrid(wantRho, wantJ bool) (
	rho utils.Vector, j utils.Matrix, err error) {
	if err = r.requireShapeFunction(); err != nil {
		return
	}
	var (
		pc      = r.pc
		md      = r.md
		ng      = r.GridNodeCount()
		v       = pc.Velocities()
		radius  = r.sf.Radius()
		dx      = make([]float64, md.Dims)
		lo      = make([]float64, md.Dims)
		hi      = make([]float64, md.Dims)
		rhoData []float64
		jData   []float64
	)
	if wantRho {
		rhoData = make([]float64, ng)
	}
	if wantJ {
		jData = make([]float64, pc.DimsVel*ng)
	}
	splat := func(pn, gid int, q float64) {
		pt := r.gridPoint(gid)
		pos := pc.Position(pn)
		for d := 0; d < md.Dims; d++ {
			dx[d] = pos[d] - pt[d]
		}
		s := r.sf.Eval(dx)
		if s == 0 {
			return
		}
		if wantRho {
			rhoData[gid] += q * s
		}
		if wantJ {
			for d := 0; d < pc.DimsVel; d++ {
				jData[d*ng+gid] += q * v[pn*pc.DimsVel+d] * s
			}
		}
	}
	for pn := 0; pn < pc.Len(); pn++ {
		if pc.ContainingElements[pn] == meshdata.InvalidElement {
			err = errOutOfDomain(pn, pc.Position(pn))
			return
		}
		var (
			pos = pc.Position(pn)
			q   = pc.Charges[pn]
		)
		for d := 0; d < md.Dims; d++ {
			lo[d] = pos[d] - radius
			hi[d] = pos[d] + radius
		}
		for _, gid := range r.candidateNodes(lo, hi) {
			splat(pn, gid, q)
		}
		for k := 0; k < len(r.extraPoints)/md.Dims; k++ {
			splat(pn, r.brickNodeTotal+k, q)
		}
	}
	if wantRho {
		r.ApplyAverageGroups(rhoData)
		rho = utils.NewVector(ng, rhoData)
	}
	if wantJ {
		for d := 0; d < pc.DimsVel; d++ {
			r.ApplyAverageGroups(jData[d*ng : (d+1)*ng])
		}
		j = utils.NewMatrix(pc.DimsVel, ng, jData)
	}
	return
}

func (r *GridReconstructor) ReconstructGridRho() (rho utils.Vector, err error) {
	rho, _, err = r.depositGrid(true, false)
	return
}

func (r *GridReconstructor) ReconstructGridJ() (j utils.Matrix, err error) {
	_, j, err = r.depositGrid(false, true)
	return
}

func (r *GridReconstructor) ReconstructGridDensities() (rho utils.Vector,
	j utils.Matrix, err error) {
	rho, j, err = r.depositGrid(true, true)
	return
}

func (r *GridReconstructor) ReconstructRho() (rho utils.Vector, err error) {
	var g utils.Vector
	if g, err = r.ReconstructGridRho(); err != nil {
		return
	}
	rho, err = r.remapWithCorrection(g)
	return
}

func (r *GridReconstructor) ReconstructJ() (j utils.Matrix, err error) {
	var (
		gj utils.Matrix
		nd = r.md.NodeCount()
	)
	if gj, err = r.ReconstructGridJ(); err != nil {
		return
	}
	j = utils.NewMatrix(r.pc.DimsVel, nd)
	for d := 0; d < r.pc.DimsVel; d++ {
		var row utils.Vector
		if row, err = r.remapWithCorrection(gj.Row(d)); err != nil {
			return
		}
		j.SetRow(d, row.DataP())
	}
	return
}

func (r *GridReconstructor) ReconstructDensities() (rho utils.Vector,
	j utils.Matrix, err error) {
	if rho, err = r.ReconstructRho(); err != nil {
		return
	}
	j, err = r.ReconstructJ()
	return
}
