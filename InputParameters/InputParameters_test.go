package InputParameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	deck := []byte(`
Title: Two stream
Reconstructor: advective
ShapeBandwidth: "0.05"
ShapeExponent: 2
PolynomialOrder: 3
ElementCount: 16
XMin: 0
XMax: 1
LightSpeed: 3.e8
CFL: 0.5
FinalTime: 1.e-7
UpkeepInterval: 10
`)
	var ip PICParameters
	assert.NoError(t, ip.Parse(deck))
	assert.Equal(t, "advective", ip.Reconstructor)
	radius, guess, err := ip.Bandwidth()
	assert.NoError(t, err)
	assert.False(t, guess)
	assert.Equal(t, 0.05, radius)
	assert.Equal(t, 10, ip.UpkeepInterval)
}

func TestBandwidthGuess(t *testing.T) {
	ip := PICParameters{Reconstructor: "shape", ShapeBandwidth: "guess",
		ElementCount: 4, XMax: 1}
	assert.NoError(t, ip.Validate())
	_, guess, err := ip.Bandwidth()
	assert.NoError(t, err)
	assert.True(t, guess)

	// unset bandwidth also defers to the mesh
	ip.ShapeBandwidth = ""
	_, guess, err = ip.Bandwidth()
	assert.NoError(t, err)
	assert.True(t, guess)
}

func TestValidateRejects(t *testing.T) {
	for _, bad := range []PICParameters{
		{Reconstructor: "bogus", ElementCount: 4, XMax: 1},
		{Reconstructor: "shape", ShapeBandwidth: "wide", ElementCount: 4, XMax: 1},
		{Reconstructor: "shape", ShapeBandwidth: "-0.1", ElementCount: 4, XMax: 1},
		{Reconstructor: "shape", ElementCount: 0, XMax: 1},
		{Reconstructor: "shape", ElementCount: 4, XMin: 2, XMax: 1},
	} {
		assert.Error(t, bad.Validate())
	}
}
