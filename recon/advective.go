package recon

import (
	"fmt"
	"math"

	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/shapefn"
	"github.com/notargets/gopic/utils"
)

const (
	DefaultActivationThreshold = 1.e-5
	DefaultKillThreshold       = 1.e-3
	// upwind flux weight: 0 is full upwind, 1 is central
	DefaultUpwindAlpha = 0.
)

// advRecord is one active (particle, element) blob. Record s owns the
// degree-of-freedom range [s*Np, (s+1)*Np) of the advection state vector.
type advRecord struct {
	pn   int
	en   int
	peak float64 // blob peak amplitude at activation time, kill reference
}

// AdvectiveReconstructor carries each particle's charge blob as an advected
// DG field: blobs are seeded from the shape kernel, evolved with an upwind
// advection right-hand side at the particle's velocity, and summed onto the
// mesh at reconstruction time. Elements activate when charge flows into
// them and are killed once their amplitude decays, with swap-remove
// renumbering reported to the registered DOF shift listener.
type AdvectiveReconstructor struct {
	base
	ActivationThreshold float64
	KillThreshold       float64
	UpwindAlpha         float64

	records []advRecord
	state   []float64   // len(records)*Np, element-contiguous
	slots   map[int]int // pn*K+en -> record index

	diff   []utils.Matrix // per-axis local differentiation matrices
	filter utils.Matrix   // optional Np x Np smoother applied to seeded blobs

	listener    DOFShiftListener
	nParticles  int
	activations int
	kills       int
}

func NewAdvectiveReconstructor(pc *cloud.ParticleCloud,
	activationThreshold, killThreshold, upwindAlpha float64) (r *AdvectiveReconstructor) {
	if activationThreshold <= 0 {
		activationThreshold = DefaultActivationThreshold
	}
	if killThreshold <= 0 {
		killThreshold = DefaultKillThreshold
	}
	if upwindAlpha < 0 || upwindAlpha > 1 {
		upwindAlpha = DefaultUpwindAlpha
	}
	r = &AdvectiveReconstructor{
		base:                base{pc: pc, md: pc.Mesh},
		ActivationThreshold: activationThreshold,
		KillThreshold:       killThreshold,
		UpwindAlpha:         upwindAlpha,
		slots:               make(map[int]int),
	}
	return
}

func (r *AdvectiveReconstructor) Name() string { return "Advective" }

func (r *AdvectiveReconstructor) SetShapeFunction(sf *shapefn.ShapeFunction) error {
	return r.setShapeFunction(sf)
}

func (r *AdvectiveReconstructor) SetRhoDOFShiftListener(l DOFShiftListener) {
	r.listener = l
}

// AddLocalDiffMatrix registers the local differentiation matrix for one
// reference axis, replacing the mesh default.
func (r *AdvectiveReconstructor) AddLocalDiffMatrix(axis int, D utils.Matrix) {
	if r.diff == nil {
		r.diff = make([]utils.Matrix, r.md.Dims)
		copy(r.diff, r.md.DrRef)
	}
	r.diff[axis] = D
}

// SetFilterMatrix installs an Np x Np modal smoother applied to every blob
// at seeding time.
func (r *AdvectiveReconstructor) SetFilterMatrix(F utils.Matrix) {
	r.filter = F
}

func (r *AdvectiveReconstructor) diffMatrix(axis int) utils.Matrix {
	if r.diff != nil {
		return r.diff[axis]
	}
	return r.md.DrRef[axis]
}

func (r *AdvectiveReconstructor) slotKey(pn, en int) int { return pn*r.md.K() + en }

func (r *AdvectiveReconstructor) slot(pn, en int) (s int, ok bool) {
	s, ok = r.slots[r.slotKey(pn, en)]
	return
}

// addRecord appends one active (particle, element) blob with the given nodal
// values and notifies the listener of the state vector growth.
func (r *AdvectiveReconstructor) addRecord(pn, en int, peak float64, u []float64) {
	r.slots[r.slotKey(pn, en)] = len(r.records)
	r.records = append(r.records, advRecord{pn: pn, en: en, peak: peak})
	r.state = append(r.state, u...)
	r.activations++
	if r.listener != nil {
		r.listener.NoteDOFResize(len(r.state))
	}
}

// AddAdvectiveParticle seeds the advected blob of particle pn: the shape
// kernel is sampled on every support element, and elements whose local peak
// exceeds the activation threshold become active records.
func (r *AdvectiveReconstructor) AddAdvectiveParticle(sf *shapefn.ShapeFunction,
	pn int) (err error) {
	if err = r.setShapeFunction(sf); err != nil {
		return
	}
	var (
		md  = r.md
		pos = r.pc.Position(pn)
		en  = r.pc.ContainingElements[pn]
		q   = r.pc.Charges[pn]
	)
	if en == meshdata.InvalidElement {
		err = errOutOfDomain(pn, pos)
		return
	}
	var (
		peak = math.Abs(q) * sf.Eval(make([]float64, md.Dims))
		els  = md.SupportElements(pos, sf.Radius(), en)
		dx   = make([]float64, md.Dims)
		u    = make([]float64, md.Np)
	)
	for _, el := range els {
		var (
			ei     = &md.Elements[el]
			maxAbs float64
		)
		for i := 0; i < md.Np; i++ {
			for d := 0; d < md.Dims; d++ {
				dx[d] = pos[d] - md.Nodes[ei.Start+i][d]
			}
			u[i] = q * sf.Eval(dx)
		}
		if !r.filter.IsEmpty() {
			u = r.filter.MulVec(utils.NewVector(md.Np, u)).DataP()
		}
		for i := 0; i < md.Np; i++ {
			if a := math.Abs(u[i]); a > maxAbs {
				maxAbs = a
			}
		}
		if el == en || maxAbs > r.ActivationThreshold*peak {
			if _, ok := r.slot(pn, el); ok {
				err = fmt.Errorf("particle %d already advected on element %d", pn, el)
				return
			}
			r.addRecord(pn, el, peak, u)
		}
	}
	r.nParticles++
	return
}

func (r *AdvectiveReconstructor) ClearAdvectiveParticles() {
	r.records = r.records[:0]
	r.state = r.state[:0]
	r.slots = make(map[int]int)
	r.nParticles = 0
	if r.listener != nil {
		r.listener.NoteDOFResize(0)
	}
}

func (r *AdvectiveReconstructor) CountAdvectiveParticles() int { return r.nParticles }

// ActiveElements reports the number of live (particle, element) records.
func (r *AdvectiveReconstructor) ActiveElements() int { return len(r.records) }

func (r *AdvectiveReconstructor) ElementActivationCounter() int { return r.activations }

func (r *AdvectiveReconstructor) ElementKillCounter() int { return r.kills }

// StateLen is the advection state vector length, len(records)*Np.
func (r *AdvectiveReconstructor) StateLen() int { return len(r.state) }

// exteriorTrace returns the advected field of particle pn at face node i of
// the neighbor across face f, or zero when the neighbor is inactive or the
// face is a domain boundary.
func (r *AdvectiveReconstructor) exteriorTrace(pn, nbr, localNode int) float64 {
	if nbr == meshdata.InvalidElement {
		return 0
	}
	s, ok := r.slot(pn, nbr)
	if !ok {
		return 0
	}
	return r.state[s*r.md.Np+localNode]
}

// mirrorFaceNode maps a local face node on one element to the matching local
// node on the neighbor element across that face. With one element group and
// affine elements the neighbor's trace nodes are the reversed face nodes of
// its shared face.
func (r *AdvectiveReconstructor) mirrorFaceNode(en, f, i int) (localNode int) {
	var (
		md  = r.md
		nbr = md.Elements[en].Neighbors[f]
	)
	// locate the shared face on the neighbor
	for nf := 0; nf < md.NFaces; nf++ {
		if md.Elements[nbr].Neighbors[nf] == en {
			localNode = md.FaceNodes[nf][md.Nfp-1-i]
			return
		}
	}
	panic(fmt.Errorf("element %d is not a neighbor of element %d", en, nbr))
}

// GetAdvectiveParticleRHS evaluates du/dt for every active record using the
// upwind DG advection operator at the owning particle's velocity. The call
// is side-effect-free: no records are activated or killed here.
func (r *AdvectiveReconstructor) GetAdvectiveParticleRHS() (rhs utils.Vector) {
	var (
		md   = r.md
		np   = md.Np
		v    = r.pc.Velocities()
		data = make([]float64, len(r.state))
		du   = make([]float64, md.NFaces*md.Nfp)
	)
	for s, rec := range r.records {
		var (
			ei = &md.Elements[rec.en]
			u  = r.state[s*np : (s+1)*np]
		)
		// interior: -sum_d v_d * du/dx_d with du/dx_d = sum_i RX(i,d) Dr_i u
		for i := 0; i < np; i++ {
			var flux float64
			for ax := 0; ax < md.Dims; ax++ {
				D := r.diffMatrix(ax)
				var dudr float64
				for j := 0; j < np; j++ {
					dudr += D.At(i, j) * u[j]
				}
				for d := 0; d < md.Dims; d++ {
					flux += v[rec.pn*r.pc.DimsVel+d] * ei.RX.At(ax, d) * dudr
				}
			}
			data[s*np+i] = -flux
		}
		// faces: upwind jump flux lifted back to the element interior
		for f := 0; f < md.NFaces; f++ {
			var (
				nbr = ei.Neighbors[f]
				vn  float64
			)
			for d := 0; d < md.Dims; d++ {
				vn += v[rec.pn*r.pc.DimsVel+d] * ei.Normals[f][d]
			}
			for i := 0; i < md.Nfp; i++ {
				uM := u[md.FaceNodes[f][i]]
				var uP float64
				if nbr != meshdata.InvalidElement {
					uP = r.exteriorTrace(rec.pn, nbr, r.mirrorFaceNode(rec.en, f, i))
				}
				du[f*md.Nfp+i] = (uM - uP) *
					(vn - (1-r.UpwindAlpha)*math.Abs(vn)) / 2. / ei.Jacobian
			}
		}
		for i := 0; i < np; i++ {
			var lifted float64
			for j := 0; j < md.NFaces*md.Nfp; j++ {
				lifted += md.LIFT.At(i, j) * du[j]
			}
			data[s*np+i] += lifted
		}
	}
	rhs = utils.NewVector(len(data), data)
	return
}

// ApplyAdvectiveParticleRHS advances the advection state by rhs*dt, then
// activates inactive neighbor elements that received outflow above the
// activation threshold.
func (r *AdvectiveReconstructor) ApplyAdvectiveParticleRHS(rhs utils.Vector, dt float64) {
	var (
		md = r.md
		np = md.Np
		rd = rhs.DataP()
		v  = r.pc.Velocities()
	)
	if len(rd) != len(r.state) {
		panic(fmt.Errorf("rhs length %d does not match advection state length %d",
			len(rd), len(r.state)))
	}
	for i := range r.state {
		r.state[i] += dt * rd[i]
	}
	// Activation scans the records present before this call; blobs spread
	// one element ring per step.
	nRec := len(r.records)
	for s := 0; s < nRec; s++ {
		var (
			rec = r.records[s]
			ei  = &md.Elements[rec.en]
			u   = r.state[s*np : (s+1)*np]
		)
		for f := 0; f < md.NFaces; f++ {
			nbr := ei.Neighbors[f]
			if nbr == meshdata.InvalidElement {
				continue
			}
			if _, ok := r.slot(rec.pn, nbr); ok {
				continue
			}
			var vn float64
			for d := 0; d < md.Dims; d++ {
				vn += v[rec.pn*r.pc.DimsVel+d] * ei.Normals[f][d]
			}
			if vn <= 0 {
				continue
			}
			var traceMax float64
			for i := 0; i < md.Nfp; i++ {
				if a := math.Abs(u[md.FaceNodes[f][i]]); a > traceMax {
					traceMax = a
				}
			}
			if traceMax > r.ActivationThreshold*rec.peak {
				r.addRecord(rec.pn, nbr, rec.peak, make([]float64, np))
			}
		}
	}
}

// PerformReconstructorUpkeep kills records whose amplitude has decayed below
// the kill threshold, except the record on the particle's containing
// element. Removal is swap-remove; DOF moves are reported to the listener.
func (r *AdvectiveReconstructor) PerformReconstructorUpkeep() {
	var (
		np = r.md.Np
	)
	for s := 0; s < len(r.records); {
		var (
			rec    = r.records[s]
			maxAbs float64
		)
		for _, ui := range r.state[s*np : (s+1)*np] {
			if a := math.Abs(ui); a > maxAbs {
				maxAbs = a
			}
		}
		if rec.en == r.pc.ContainingElements[rec.pn] ||
			maxAbs >= r.KillThreshold*rec.peak {
			s++
			continue
		}
		r.removeRecord(s)
		r.kills++
	}
}

func (r *AdvectiveReconstructor) removeRecord(s int) {
	var (
		np   = r.md.Np
		last = len(r.records) - 1
	)
	delete(r.slots, r.slotKey(r.records[s].pn, r.records[s].en))
	if s != last {
		r.records[s] = r.records[last]
		copy(r.state[s*np:(s+1)*np], r.state[last*np:(last+1)*np])
		r.slots[r.slotKey(r.records[s].pn, r.records[s].en)] = s
		if r.listener != nil {
			r.listener.NoteDOFMove(last*np, s*np, np)
		}
	}
	r.records = r.records[:last]
	r.state = r.state[:last*np]
	if r.listener != nil {
		r.listener.NoteDOFResize(len(r.state))
	}
}

// deposit sums the active blobs onto the mesh degrees of freedom. Current is
// carried at each blob's particle velocity.
func (r *AdvectiveReconstructor) deposit(wantRho, wantJ bool) (
	rho utils.Vector, j utils.Matrix, err error) {
	var (
		md      = r.md
		np      = md.Np
		nd      = md.NodeCount()
		v       = r.pc.Velocities()
		rhoData []float64
		jData   []float64
	)
	if wantRho {
		rhoData = make([]float64, nd)
	}
	if wantJ {
		jData = make([]float64, r.pc.DimsVel*nd)
	}
	for s, rec := range r.records {
		start := md.Elements[rec.en].Start
		for i := 0; i < np; i++ {
			ui := r.state[s*np+i]
			if wantRho {
				rhoData[start+i] += ui
			}
			if wantJ {
				for d := 0; d < r.pc.DimsVel; d++ {
					jData[d*nd+start+i] += v[rec.pn*r.pc.DimsVel+d] * ui
				}
			}
		}
	}
	if wantRho {
		rho = utils.NewVector(nd, rhoData)
	}
	if wantJ {
		j = utils.NewMatrix(r.pc.DimsVel, nd, jData)
	}
	return
}

func (r *AdvectiveReconstructor) ReconstructRho() (rho utils.Vector, err error) {
	rho, _, err = r.deposit(true, false)
	return
}

func (r *AdvectiveReconstructor) ReconstructJ() (j utils.Matrix, err error) {
	_, j, err = r.deposit(false, true)
	return
}

func (r *AdvectiveReconstructor) ReconstructDensities() (rho utils.Vector,
	j utils.Matrix, err error) {
	rho, j, err = r.deposit(true, true)
	return
}

// GetDebugQuantityOnMesh samples reconstructor internals as mesh fields:
// "active_elements" is 1 on nodes of elements holding any record,
// "rec_count" counts overlapping records per node.
func (r *AdvectiveReconstructor) GetDebugQuantityOnMesh(name string) (
	q utils.Vector, err error) {
	var (
		md   = r.md
		data = make([]float64, md.NodeCount())
	)
	switch name {
	case "active_elements":
		for _, rec := range r.records {
			ei := &md.Elements[rec.en]
			for g := ei.Start; g < ei.End; g++ {
				data[g] = 1
			}
		}
	case "rec_count":
		for _, rec := range r.records {
			ei := &md.Elements[rec.en]
			for g := ei.Start; g < ei.End; g++ {
				data[g]++
			}
		}
	default:
		err = fmt.Errorf("unknown debug quantity %q", name)
		return
	}
	q = utils.NewVector(len(data), data)
	return
}
