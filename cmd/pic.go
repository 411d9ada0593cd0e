/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/notargets/gopic/InputParameters"
	"github.com/notargets/gopic/model_problems/Deposition1D"
	"github.com/notargets/gopic/recon"
)

// picCmd represents the pic command
var picCmd = &cobra.Command{
	Use:   "pic",
	Short: "One dimensional deposition model problem",
	Long: `
Runs the two-species beam deposition model problem with the selected
reconstructor,

gopic pic -r advective`,
	Run: func(cmd *cobra.Command, args []string) {
		mp := &ModelPIC{}
		mp.Reconstructor, _ = cmd.Flags().GetString("reconstructor")
		mp.N, _ = cmd.Flags().GetInt("n")
		mp.K, _ = cmd.Flags().GetInt("k")
		mp.NPart, _ = cmd.Flags().GetInt("particles")
		mp.CFL, _ = cmd.Flags().GetFloat64("CFL")
		mp.FinalTime, _ = cmd.Flags().GetFloat64("finalTime")
		mp.Bandwidth, _ = cmd.Flags().GetString("bandwidth")
		mp.Exponent, _ = cmd.Flags().GetFloat64("exponent")
		mp.Graph, _ = cmd.Flags().GetBool("graph")
		dr, _ := cmd.Flags().GetInt("delay")
		mp.Delay = time.Duration(dr)
		input, _ := cmd.Flags().GetString("input")
		if input != "" {
			if err := mp.LoadDeck(input); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
		}
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start().Stop()
		}
		RunPIC(mp)
	},
}

func init() {
	rootCmd.AddCommand(picCmd)
	picCmd.Flags().StringP("reconstructor", "r", "shape",
		"reconstructor to run: shape, normshape, advective, grid, gridfind")
	picCmd.Flags().IntP("k", "k", 40, "Number of elements in model")
	picCmd.Flags().IntP("n", "n", 3, "polynomial degree")
	picCmd.Flags().IntP("particles", "p", 200, "macro-particles per species")
	picCmd.Flags().IntP("delay", "d", 0, "milliseconds of delay for plotting")
	picCmd.Flags().Float64("CFL", 0.25, "CFL - increase for speedup, decrease for stability")
	picCmd.Flags().Float64("finalTime", 1.e-6, "FinalTime - the target end time for the sim")
	picCmd.Flags().String("bandwidth", "guess", "shape kernel radius, numeric or \"guess\"")
	picCmd.Flags().Float64("exponent", 2, "shape kernel exponent")
	picCmd.Flags().StringP("input", "i", "", "YAML input deck, overrides the other flags")
	picCmd.Flags().Bool("graph", false, "display a graph while computing solution")
	picCmd.Flags().Bool("profile", false, "write a CPU profile for this run")
}

type ModelPIC struct {
	K, N, NPart    int
	Delay          time.Duration
	Reconstructor  string
	CFL, FinalTime float64
	Bandwidth      string
	Exponent       float64
	XMin, XMax     float64
	Graph          bool
	Config         recon.Config
}

// LoadDeck replaces the flag settings with a YAML input deck.
func (mp *ModelPIC) LoadDeck(path string) (err error) {
	var (
		data []byte
		ip   InputParameters.PICParameters
	)
	if data, err = os.ReadFile(path); err != nil {
		return
	}
	if err = ip.Parse(data); err != nil {
		return
	}
	mp.Reconstructor = ip.Reconstructor
	mp.N = ip.PolynomialOrder
	mp.K = ip.ElementCount
	mp.CFL = ip.CFL
	mp.FinalTime = ip.FinalTime
	mp.Bandwidth = ip.ShapeBandwidth
	mp.Exponent = ip.ShapeExponent
	mp.XMin, mp.XMax = ip.XMin, ip.XMax
	mp.Config = recon.Config{
		ParallelDegree:      ip.ParallelDegree,
		ElTolerance:         ip.ElTolerance,
		Overresolve:         ip.Overresolve,
		JiggleRadius:        ip.JiggleRadius,
		ActivationThreshold: ip.ActivationThreshold,
		KillThreshold:       ip.KillThreshold,
		UpwindAlpha:         ip.UpwindAlpha,
	}
	return
}

func RunPIC(mp *ModelPIC) {
	var (
		cfg    = mp.Config
		radius float64
	)
	cfg.Kind = recon.Kind(mp.Reconstructor)
	if cfg.ParallelDegree == 0 {
		cfg.ParallelDegree = 1
	}
	if mp.XMax <= mp.XMin {
		mp.XMin, mp.XMax = 0, 1
	}
	if mp.Bandwidth != "" && mp.Bandwidth != "guess" {
		var err error
		if radius, err = strconv.ParseFloat(mp.Bandwidth, 64); err != nil {
			fmt.Printf("bad bandwidth %q: %v\n", mp.Bandwidth, err)
			os.Exit(1)
		}
	}
	c, err := Deposition1D.NewDeposition(cfg, mp.CFL, mp.FinalTime,
		mp.XMin, mp.XMax, mp.N, mp.K, mp.NPart, radius, mp.Exponent)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	c.Run(mp.Graph, mp.Delay*time.Millisecond)
}
