package recon

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats is a read-only summary of a diagnostic sample set.
type Stats struct {
	Count          int
	Min, Max       float64
	Mean, StdDev   float64
}

// StatsGatherer accumulates diagnostic samples during a deposition call and
// summarizes them on demand. Reset at the start of each call.
type StatsGatherer struct {
	samples []float64
}

func (sg *StatsGatherer) Add(v float64) {
	sg.samples = append(sg.samples, v)
}

func (sg *StatsGatherer) Reset() {
	sg.samples = sg.samples[:0]
}

func (sg *StatsGatherer) Summary() (s Stats) {
	s.Count = len(sg.samples)
	if s.Count == 0 {
		return
	}
	s.Min = floats.Min(sg.samples)
	s.Max = floats.Max(sg.samples)
	s.Mean = stat.Mean(sg.samples, nil)
	if s.Count > 1 {
		s.StdDev = stat.StdDev(sg.samples, nil)
	}
	return
}
