package recon

import (
	"sync"

	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/shapefn"
	"github.com/notargets/gopic/utils"
)

// ShapeFunctionReconstructor is the baseline deposition strategy: each
// particle splats its charge/current through the shape kernel directly onto
// the mesh degrees of freedom. No state persists across calls beyond the
// replaceable shape kernel.
type ShapeFunctionReconstructor struct {
	base
	ParallelDegree int
}

func NewShapeFunctionReconstructor(pc *cloud.ParticleCloud,
	parallelDegree int) (r *ShapeFunctionReconstructor) {
	if parallelDegree < 1 {
		parallelDegree = 1
	}
	r = &ShapeFunctionReconstructor{
		base:           base{pc: pc, md: pc.Mesh},
		ParallelDegree: parallelDegree,
	}
	return
}

func (r *ShapeFunctionReconstructor) Name() string { return "Shape" }

func (r *ShapeFunctionReconstructor) SetShapeFunction(sf *shapefn.ShapeFunction) error {
	return r.setShapeFunction(sf)
}

// splatParticle spreads particle pn over its kernel support, calling add for
// every touched mesh node with the kernel weight. Returns the number of
// support elements touched.
func splatParticle(md *meshdata.MeshData, sf *shapefn.ShapeFunction,
	pos []float64, en int, add func(node int, s float64)) (nEls int) {
	var (
		els = md.SupportElements(pos, sf.Radius(), en)
		dx  = make([]float64, md.Dims)
	)
	for _, el := range els {
		ei := &md.Elements[el]
		for g := ei.Start; g < ei.End; g++ {
			for d := 0; d < md.Dims; d++ {
				dx[d] = pos[d] - md.Nodes[g][d]
			}
			if s := sf.Eval(dx); s != 0 {
				add(g, s)
			}
		}
	}
	nEls = len(els)
	return
}

// depositRange deposits particles [p1,p2) into the given flat accumulators.
// rho has NodeCount entries; j has DimsVel*NodeCount entries (axis-major).
// Either may be nil to skip that field.
func (r *ShapeFunctionReconstructor) depositRange(p1, p2 int,
	rho, j []float64) (err error) {
	var (
		pc = r.pc
		md = r.md
		nd = md.NodeCount()
		v  = pc.Velocities()
	)
	for pn := p1; pn < p2; pn++ {
		var (
			pos = pc.Position(pn)
			en  = pc.ContainingElements[pn]
			q   = pc.Charges[pn]
		)
		if en == meshdata.InvalidElement {
			return errOutOfDomain(pn, pos)
		}
		splatParticle(md, r.sf, pos, en, func(node int, s float64) {
			if rho != nil {
				rho[node] += q * s
			}
			if j != nil {
				for d := 0; d < pc.DimsVel; d++ {
					j[d*nd+node] += q * v[pn*pc.DimsVel+d] * s
				}
			}
		})
	}
	return
}

// deposit runs the particle loop, splitting it over ParallelDegree workers
// with per-worker partial accumulators merged in ascending worker order.
func (r *ShapeFunctionReconstructor) deposit(wantRho, wantJ bool) (
	rho utils.Vector, j utils.Matrix, err error) {
	if err = r.requireShapeFunction(); err != nil {
		return
	}
	var (
		nd      = r.md.NodeCount()
		nPart   = r.pc.Len()
		rhoData []float64
		jData   []float64
	)
	if wantRho {
		rhoData = make([]float64, nd)
	}
	if wantJ {
		jData = make([]float64, r.pc.DimsVel*nd)
	}

	if r.ParallelDegree == 1 || nPart < 2*r.ParallelDegree {
		err = r.depositRange(0, nPart, rhoData, jData)
	} else {
		var (
			np     = r.ParallelDegree
			pm     = utils.NewPartitionMap(np, nPart)
			rhoAcc *utils.Accumulators
			jAcc   *utils.Accumulators
			errs   = make([]error, np)
			wg     sync.WaitGroup
		)
		if wantRho {
			rhoAcc = utils.NewAccumulators(np, nd)
		}
		if wantJ {
			jAcc = utils.NewAccumulators(np, r.pc.DimsVel*nd)
		}
		r.pc.Velocities() // warm the cache before workers share it
		for n := 0; n < np; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				var rd, jd []float64
				if wantRho {
					rd = rhoAcc.Partials[n]
				}
				if wantJ {
					jd = jAcc.Partials[n]
				}
				k1, k2 := pm.GetBucketRange(n)
				errs[n] = r.depositRange(k1, k2, rd, jd)
			}(n)
		}
		wg.Wait()
		for n := 0; n < np; n++ {
			if errs[n] != nil {
				err = errs[n]
				return
			}
		}
		if wantRho {
			rhoAcc.MergeTo(rhoData)
		}
		if wantJ {
			jAcc.MergeTo(jData)
		}
	}
	if err != nil {
		return
	}
	if wantRho {
		rho = utils.NewVector(nd, rhoData)
	}
	if wantJ {
		j = utils.NewMatrix(r.pc.DimsVel, nd, jData)
	}
	return
}

func (r *ShapeFunctionReconstructor) ReconstructRho() (rho utils.Vector, err error) {
	rho, _, err = r.deposit(true, false)
	return
}

func (r *ShapeFunctionReconstructor) ReconstructJ() (j utils.Matrix, err error) {
	_, j, err = r.deposit(false, true)
	return
}

func (r *ShapeFunctionReconstructor) ReconstructDensities() (rho utils.Vector,
	j utils.Matrix, err error) {
	rho, j, err = r.deposit(true, true)
	return
}
