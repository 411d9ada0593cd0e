package meshdata

import (
	"sort"
)

// FindCounters tallies which strategy located each particle, mirroring the
// same/neighbor/vertex/global search cascade. Consumed by diagnostics only.
type FindCounters struct {
	FindSame       int
	FindByNeighbor int
	FindByVertex   int
	FindGlobal     int
	FindFailed     int
}

// FindContainingElement locates a point by global scan. Returns
// InvalidElement if the point lies in no element.
func (md *MeshData) FindContainingElement(pt []float64, tol float64) (en int) {
	for i := range md.Elements {
		if md.Elements[i].ContainsPoint(pt, tol) {
			return i
		}
	}
	return InvalidElement
}

// FindElementNear locates a point starting from a previously known element:
// same element first, then face neighbors, then elements sharing one of the
// previous element's vertices, then a global scan.
func (md *MeshData) FindElementNear(pt []float64, lastEl int, tol float64,
	fc *FindCounters) (en int) {
	if lastEl != InvalidElement {
		last := &md.Elements[lastEl]
		if last.ContainsPoint(pt, tol) {
			fc.FindSame++
			return lastEl
		}
		for _, nbr := range last.Neighbors {
			if nbr == InvalidElement {
				continue
			}
			if md.Elements[nbr].ContainsPoint(pt, tol) {
				fc.FindByNeighbor++
				return nbr
			}
		}
		for _, vi := range last.Vertices {
			for _, adj := range md.VertexAdjacentElements(vi) {
				if md.Elements[adj].ContainsPoint(pt, tol) {
					fc.FindByVertex++
					return adj
				}
			}
		}
	}
	if en = md.FindContainingElement(pt, tol); en != InvalidElement {
		fc.FindGlobal++
		return
	}
	fc.FindFailed++
	return InvalidElement
}

// SupportElements collects the ids of all elements whose bounding box lies
// within radius of pt, walking outward from startEl over face and vertex
// adjacency. The result is sorted ascending so that deposition order is
// deterministic.
func (md *MeshData) SupportElements(pt []float64, radius float64, startEl int) (els []int) {
	if startEl == InvalidElement {
		return
	}
	var (
		visited = make(map[int]bool)
		queue   = []int{startEl}
	)
	visited[startEl] = true
	for len(queue) > 0 {
		en := queue[0]
		queue = queue[1:]
		if md.bboxDistance2(en, pt) > radius*radius {
			continue
		}
		els = append(els, en)
		ei := &md.Elements[en]
		for _, nbr := range ei.Neighbors {
			if nbr != InvalidElement && !visited[nbr] {
				visited[nbr] = true
				queue = append(queue, nbr)
			}
		}
		for _, vi := range ei.Vertices {
			for _, adj := range md.VertexAdjacentElements(vi) {
				if !visited[adj] {
					visited[adj] = true
					queue = append(queue, adj)
				}
			}
		}
	}
	sort.Ints(els)
	return
}

// bboxDistance2 is the squared distance from pt to the element's bounding
// box, zero when pt lies inside it.
func (md *MeshData) bboxDistance2(en int, pt []float64) (d2 float64) {
	lo, hi := md.Elements[en].BoundingBox(md)
	for d := 0; d < md.Dims; d++ {
		switch {
		case pt[d] < lo[d]:
			dx := lo[d] - pt[d]
			d2 += dx * dx
		case pt[d] > hi[d]:
			dx := pt[d] - hi[d]
			d2 += dx * dx
		}
	}
	return
}
