package recon

import (
	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/utils"
)

// GridFindReconstructor is the grid variant with point location inverted:
// instead of scanning elements for grid nodes per element, it precomputes an
// explicit node-to-element table over the whole lattice at setup (flat
// starts+data layout) and derives the per-element claims from it. Deposit
// and remap behavior is identical to GridReconstructor.
type GridFindReconstructor struct {
	*GridReconstructor

	// per brick node, the mesh elements containing it
	NodeNumberListStarts utils.Index
	NodeNumberLists      utils.Index
}

func NewGridFindReconstructor(pc *cloud.ParticleCloud, gen BrickGenerator,
	elTolerance float64) (r *GridFindReconstructor, err error) {
	var g *GridReconstructor
	if g, err = newGridBase(pc, gen, elTolerance); err != nil {
		return
	}
	r = &GridFindReconstructor{GridReconstructor: g}
	err = r.FindPointsInElement()
	return
}

func (r *GridFindReconstructor) Name() string { return "GridFind" }

// FindPointsInElement builds the node-to-element tables with one direct
// location pass over the lattice, then inverts them into element claims and
// hands off to the shared remap setup.
func (r *GridFindReconstructor) FindPointsInElement() (err error) {
	r.NodeNumberListStarts = make(utils.Index, r.brickNodeTotal+1)
	r.NodeNumberLists = r.NodeNumberLists[:0]
	claims := make([]utils.Index, r.md.K())
	for gid := 0; gid < r.brickNodeTotal; gid++ {
		els := r.locateDirect(r.gridPoint(gid))
		r.NodeNumberLists = append(r.NodeNumberLists, els...)
		r.NodeNumberListStarts[gid+1] = len(r.NodeNumberLists)
		for _, en := range els {
			claims[en] = append(claims[en], gid)
		}
	}
	return r.setupFromClaims(claims)
}

// ElementsAtNode reads the precomputed containing elements of a lattice
// node from the flat tables.
func (r *GridFindReconstructor) ElementsAtNode(gid int) utils.Index {
	return r.NodeNumberLists[r.NodeNumberListStarts[gid]:r.NodeNumberListStarts[gid+1]]
}
