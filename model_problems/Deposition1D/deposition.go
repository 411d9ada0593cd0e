package Deposition1D

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/notargets/avs/chart2d"
	utils2 "github.com/notargets/avs/utils"

	"github.com/notargets/gopic/cloud"
	"github.com/notargets/gopic/meshdata"
	"github.com/notargets/gopic/recon"
	"github.com/notargets/gopic/shapefn"
	"github.com/notargets/gopic/utils"
)

// Deposition drives a two-species counter-streaming beam through one
// reconstructor: every step deposits rho/j, reports charge conservation,
// pushes the particles ballistically and relocates them on the mesh.
type Deposition struct {
	// Input parameters
	CFL, FinalTime float64
	VDrift         float64
	UpkeepInterval int

	MD *meshdata.MeshData
	PC *cloud.ParticleCloud
	R  recon.Reconstructor
	SF *shapefn.ShapeFunction

	PlotOnce sync.Once
	chart    *chart2d.Chart2D
	colorMap *utils2.ColorMap
}

func NewDeposition(cfg recon.Config, CFL, FinalTime, xmin, xmax float64,
	N, K, NPart int, radius, exponent float64) (c *Deposition, err error) {
	var (
		md = meshdata.NewIntervalMesh(xmin, xmax, K, N)
		pc = cloud.NewParticleCloud(md, 1, 1, 3.e8)
	)
	c = &Deposition{
		CFL:            CFL,
		FinalTime:      FinalTime,
		VDrift:         1.e6,
		UpkeepInterval: 10,
		MD:             md,
		PC:             pc,
	}
	if radius <= 0 {
		radius = md.AdvisableParticleRadius()
	}
	if c.SF, err = shapefn.NewShapeFunction(radius, 1, exponent); err != nil {
		return
	}
	// two cold counter-streaming species, net neutral
	var (
		span = xmax - xmin
		q    = 1. / float64(NPart)
	)
	for i := 0; i < NPart; i++ {
		x := xmin + span*(0.25+0.5*(float64(i)+0.5)/float64(NPart))
		if err = pc.AddParticle([]float64{x}, []float64{c.VDrift}, q, 1.e-3*q); err != nil {
			return
		}
		if err = pc.AddParticle([]float64{x}, []float64{-c.VDrift}, -q, 1.e-3*q); err != nil {
			return
		}
	}
	if c.R, err = recon.New(cfg, pc); err != nil {
		return
	}
	err = c.R.SetShapeFunction(c.SF)
	return
}

func (c *Deposition) Run(showGraph bool, graphDelay ...time.Duration) {
	var (
		md           = c.MD
		pc           = c.PC
		logFrequency = 50
		h            = (md.BBoxHi[0] - md.BBoxLo[0]) / float64(md.K())
		dt           = c.CFL * h / c.VDrift
	)
	Ns := math.Ceil(c.FinalTime / dt)
	dt = c.FinalTime / Ns
	Nsteps := int(Ns)
	fmt.Printf("Reconstructor = %s, particles = %d, dt = %8.5g, steps = %d\n",
		c.R.Name(), pc.Len(), dt, Nsteps)

	adv, advective := c.R.(recon.Advective)
	if advective {
		c.seedBlobs(adv)
	}

	var Time float64
	for tstep := 0; tstep < Nsteps; tstep++ {
		if advective {
			rhs := adv.GetAdvectiveParticleRHS()
			adv.ApplyAdvectiveParticleRHS(rhs, dt)
			if c.UpkeepInterval > 0 && tstep%c.UpkeepInterval == 0 {
				adv.PerformReconstructorUpkeep()
			}
		}
		rho, j, err := c.R.ReconstructDensities()
		if err != nil {
			panic(err)
		}
		c.Plot(showGraph, graphDelay, rho)
		if tstep%logFrequency == 0 {
			fmt.Printf("Time = %8.4g, step %d, charge = %8.5g (cloud %8.5g), "+
				"rho range [%8.5g, %8.5g], jmax = %8.5g\n",
				Time, tstep, md.Integrate(rho), pc.TotalCharge(),
				rho.Min(), rho.Max(), j.Max())
			if advective {
				fmt.Printf("  active = %d, activations = %d, kills = %d\n",
					adv.ActiveElements(), adv.ElementActivationCounter(),
					adv.ElementKillCounter())
			}
		}
		c.push(dt)
		if err = pc.UpdateContainingElements(1.e-12); err != nil {
			panic(err)
		}
		Time += dt
	}
}

func (c *Deposition) seedBlobs(adv recon.Advective) {
	adv.ClearAdvectiveParticles()
	for pn := 0; pn < c.PC.Len(); pn++ {
		if err := adv.AddAdvectiveParticle(c.SF, pn); err != nil {
			panic(err)
		}
	}
}

// push advances particles ballistically and reflects them off the domain
// walls so the cloud never leaves the mesh.
func (c *Deposition) push(dt float64) {
	var (
		pc   = c.PC
		v    = pc.Velocities()
		xmin = c.MD.BBoxLo[0]
		xmax = c.MD.BBoxHi[0]
	)
	for pn := 0; pn < pc.Len(); pn++ {
		x := pc.Positions[pn] + v[pn]*dt
		if x < xmin {
			x = 2*xmin - x
			pc.Momenta[pn] = -pc.Momenta[pn]
		} else if x > xmax {
			x = 2*xmax - x
			pc.Momenta[pn] = -pc.Momenta[pn]
		}
		pc.Positions[pn] = x
	}
	pc.NoteMomentumChange()
}

func (c *Deposition) Plot(showGraph bool, graphDelay []time.Duration, rho utils.Vector) {
	if !showGraph {
		return
	}
	var (
		md         = c.MD
		pMin, pMax = float32(-20), float32(20)
	)
	c.PlotOnce.Do(func() {
		c.chart = chart2d.NewChart2D(1280, 1024,
			float32(md.BBoxLo[0]), float32(md.BBoxHi[0]), pMin, pMax)
		c.colorMap = utils2.NewColorMap(-1, 1, 1)
		go c.chart.Plot()
	})
	x := make([]float64, md.NodeCount())
	for g := range md.Nodes {
		x[g] = md.Nodes[g][0]
	}
	if err := c.chart.AddSeries("rho", x, rho.DataP(),
		chart2d.NoGlyph, chart2d.Solid, c.colorMap.GetRGB(0)); err != nil {
		panic("unable to add graph series")
	}
	if len(graphDelay) != 0 {
		time.Sleep(graphDelay[0])
	}
}
