package InputParameters

import (
	"fmt"
	"strconv"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type PICParameters struct {
	Title               string  `yaml:"Title"`
	Reconstructor       string  `yaml:"Reconstructor"`  // shape, normshape, advective, grid, gridfind
	ShapeBandwidth      string  `yaml:"ShapeBandwidth"` // numeric value or "guess"
	ShapeExponent       float64 `yaml:"ShapeExponent"`
	PolynomialOrder     int     `yaml:"PolynomialOrder"`
	ElementCount        int     `yaml:"ElementCount"`
	XMin                float64 `yaml:"XMin"`
	XMax                float64 `yaml:"XMax"`
	LightSpeed          float64 `yaml:"LightSpeed"`
	CFL                 float64 `yaml:"CFL"`
	FinalTime           float64 `yaml:"FinalTime"`
	MaxIterations       int     `yaml:"MaxIterations"`
	ParallelDegree      int     `yaml:"ParallelDegree"`
	ElTolerance         float64 `yaml:"ElTolerance"`
	Overresolve         float64 `yaml:"Overresolve"`
	JiggleRadius        float64 `yaml:"JiggleRadius"`
	ActivationThreshold float64 `yaml:"ActivationThreshold"`
	KillThreshold       float64 `yaml:"KillThreshold"`
	UpwindAlpha         float64 `yaml:"UpwindAlpha"`
	UpkeepInterval      int     `yaml:"UpkeepInterval"`
}

func (ip *PICParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.Validate()
}

// Validate rejects decks the engine cannot run; unset optional fields keep
// their zero values and are defaulted downstream.
func (ip *PICParameters) Validate() error {
	switch ip.Reconstructor {
	case "shape", "normshape", "advective", "grid", "gridfind":
	default:
		return fmt.Errorf("unknown Reconstructor %q", ip.Reconstructor)
	}
	if _, _, err := ip.Bandwidth(); err != nil {
		return err
	}
	if ip.ShapeExponent < 0 {
		return fmt.Errorf("ShapeExponent %g must be non-negative", ip.ShapeExponent)
	}
	if ip.ElementCount < 1 {
		return fmt.Errorf("ElementCount %d must be positive", ip.ElementCount)
	}
	if ip.XMax <= ip.XMin {
		return fmt.Errorf("domain [%g, %g] is empty", ip.XMin, ip.XMax)
	}
	return nil
}

// Bandwidth resolves the ShapeBandwidth field: a numeric kernel radius, or
// guess=true when the deck defers to the mesh-derived advisable radius.
func (ip *PICParameters) Bandwidth() (radius float64, guess bool, err error) {
	if ip.ShapeBandwidth == "" || ip.ShapeBandwidth == "guess" {
		guess = true
		return
	}
	if radius, err = strconv.ParseFloat(ip.ShapeBandwidth, 64); err != nil {
		err = fmt.Errorf("ShapeBandwidth %q is neither numeric nor \"guess\"",
			ip.ShapeBandwidth)
		return
	}
	if radius <= 0 {
		err = fmt.Errorf("ShapeBandwidth %g must be positive", radius)
	}
	return
}

func (ip *PICParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%s]\t\t= Reconstructor\n", ip.Reconstructor)
	fmt.Printf("[%s]\t\t= Shape Bandwidth\n", ip.ShapeBandwidth)
	fmt.Printf("%8.5f\t\t= Shape Exponent\n", ip.ShapeExponent)
	fmt.Printf("[%d]\t\t\t= Polynomial Order\n", ip.PolynomialOrder)
	fmt.Printf("[%d]\t\t\t= Element Count\n", ip.ElementCount)
	fmt.Printf("[%g, %g]\t\t= Domain\n", ip.XMin, ip.XMax)
	fmt.Printf("%8.5f\t\t= CFL\n", ip.CFL)
	fmt.Printf("%8.5f\t\t= FinalTime\n", ip.FinalTime)
}
