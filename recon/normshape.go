package recon

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/shapefn"
	"github.com/notargets/gopic/utils"
)

// degenerateOverlap is the smallest measured kernel overlap accepted during
// normalization setup, relative to the element measure.
const degenerateOverlap = 1.e-12

// NormalizedShapeFunctionReconstructor wraps the baseline deposition with a
// per-element normalization factor that corrects the kernel-integral deficit
// where a particle's support is clipped by the domain boundary. Factors are
// precomputed once per shape function; diagnostics accumulate per call.
type NormalizedShapeFunctionReconstructor struct {
	base
	factors []float64

	normStats          StatsGatherer
	centroidStats      StatsGatherer
	elPerParticleStats StatsGatherer
}

func NewNormalizedShapeFunctionReconstructor(pc *cloud.ParticleCloud) (
	r *NormalizedShapeFunctionReconstructor, err error) {
	r = &NormalizedShapeFunctionReconstructor{
		base: base{pc: pc, md: pc.Mesh},
	}
	return
}

func (r *NormalizedShapeFunctionReconstructor) Name() string { return "NormShape" }

func (r *NormalizedShapeFunctionReconstructor) SetShapeFunction(
	sf *shapefn.ShapeFunction) (err error) {
	if err = r.setShapeFunction(sf); err != nil {
		return
	}
	return r.SetupNormalizedShapeReconstructor()
}

// SetupNormalizedShapeReconstructor measures, for a probe charge at each
// element centroid, how much of the unit kernel integral the mesh actually
// captures, and stores the reciprocal as that element's normalization
// factor. Elements with no measurable overlap are rejected.
func (r *NormalizedShapeFunctionReconstructor) SetupNormalizedShapeReconstructor() (err error) {
	if err = r.requireShapeFunction(); err != nil {
		return
	}
	var (
		md = r.md
		dx = make([]float64, md.Dims)
	)
	r.factors = make([]float64, md.K())
	for en := range md.Elements {
		var (
			probe    = md.Elements[en].Centroid(md)
			els      = md.SupportElements(probe, r.sf.Radius(), en)
			measured float64
		)
		for _, el := range els {
			var (
				ei = &md.Elements[el]
				w  = md.WRef.DataP()
			)
			for i := 0; i < md.Np; i++ {
				g := ei.Start + i
				for d := 0; d < md.Dims; d++ {
					dx[d] = probe[d] - md.Nodes[g][d]
				}
				measured += ei.Jacobian * w[i] * r.sf.Eval(dx)
			}
		}
		if measured < degenerateOverlap*md.ElementMeasure(en) {
			err = fmt.Errorf("degenerate element %d: kernel overlap %g too small "+
				"for normalization", en, measured)
			return
		}
		r.factors[en] = 1. / measured
	}
	return
}

// NormalizationFactors exposes the precomputed per-element factors
// (read-only, for tests and diagnostics).
func (r *NormalizedShapeFunctionReconstructor) NormalizationFactors() []float64 {
	return r.factors
}

func (r *NormalizedShapeFunctionReconstructor) deposit(wantRho, wantJ bool) (
	rho utils.Vector, j utils.Matrix, err error) {
	if err = r.requireShapeFunction(); err != nil {
		return
	}
	if r.factors == nil {
		err = fmt.Errorf("normalization factors never computed")
		return
	}
	var (
		pc      = r.pc
		md      = r.md
		nd      = md.NodeCount()
		v       = pc.Velocities()
		rhoData []float64
		jData   []float64
	)
	if wantRho {
		rhoData = make([]float64, nd)
	}
	if wantJ {
		jData = make([]float64, pc.DimsVel*nd)
	}
	r.normStats.Reset()
	r.centroidStats.Reset()
	r.elPerParticleStats.Reset()

	for pn := 0; pn < pc.Len(); pn++ {
		var (
			pos = pc.Position(pn)
			en  = pc.ContainingElements[pn]
			q   = pc.Charges[pn]
		)
		if en == meshdata.InvalidElement {
			err = errOutOfDomain(pn, pos)
			return
		}
		var (
			factor   = r.factors[en]
			wSum     float64
			centroid = make([]float64, md.Dims)
		)
		nEls := splatParticle(md, r.sf, pos, en, func(node int, s float64) {
			if wantRho {
				rhoData[node] += factor * q * s
			}
			if wantJ {
				for d := 0; d < pc.DimsVel; d++ {
					jData[d*nd+node] += factor * q * v[pn*pc.DimsVel+d] * s
				}
			}
			// quadrature-weighted kernel centroid, for the bias diagnostic
			local := node - md.Elements[node/md.Np].Start
			w := md.WRef.AtVec(local) * md.Elements[node/md.Np].Jacobian * s
			wSum += w
			for d := 0; d < md.Dims; d++ {
				centroid[d] += w * md.Nodes[node][d]
			}
		})
		r.normStats.Add(factor)
		r.elPerParticleStats.Add(float64(nEls))
		if wSum > 0 {
			var dist2 float64
			for d := 0; d < md.Dims; d++ {
				cd := centroid[d]/wSum - pos[d]
				dist2 += cd * cd
			}
			r.centroidStats.Add(math.Sqrt(dist2))
		}
	}
	if wantRho {
		rho = utils.NewVector(nd, rhoData)
	}
	if wantJ {
		j = utils.NewMatrix(pc.DimsVel, nd, jData)
	}
	return
}

func (r *NormalizedShapeFunctionReconstructor) ReconstructRho() (rho utils.Vector, err error) {
	rho, _, err = r.deposit(true, false)
	return
}

func (r *NormalizedShapeFunctionReconstructor) ReconstructJ() (j utils.Matrix, err error) {
	_, j, err = r.deposit(false, true)
	return
}

func (r *NormalizedShapeFunctionReconstructor) ReconstructDensities() (
	rho utils.Vector, j utils.Matrix, err error) {
	rho, j, err = r.deposit(true, true)
	return
}

func (r *NormalizedShapeFunctionReconstructor) NormalizationStats() Stats {
	return r.normStats.Summary()
}

func (r *NormalizedShapeFunctionReconstructor) CentroidDistanceStats() Stats {
	return r.centroidStats.Summary()
}

func (r *NormalizedShapeFunctionReconstructor) ElPerParticleStats() Stats {
	return r.elPerParticleStats.Summary()
}
