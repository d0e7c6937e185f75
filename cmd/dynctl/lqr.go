package main

import (
	"fmt"
	"math/cmplx"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/control"
	"github.com/san-kum/dynctl/internal/plant"
	"github.com/san-kum/dynctl/internal/system"
	"github.com/san-kum/dynctl/internal/viz"
)

var (
	lqrDt    float64
	lqrDelay float64
	lqrMass  float64
)

// runLQR designs the textbook two-motor 775pro elevator regulator, then
// compensates it for input delay.
func runLQR(cmd *cobra.Command, args []string) error {
	sys, err := plant.ElevatorSystem(plant.Vex775Pro(2), lqrMass, 0.0181864, 1)
	if err != nil {
		return err
	}
	lqr, err := control.NewLQR(sys, []float64{0.02, 0.4}, []float64{12}, lqrDt)
	if err != nil {
		return err
	}

	entries := []viz.Entry{
		{Label: "dt", Value: fmt.Sprintf("%g s", lqrDt)},
		{Label: "K", Value: formatGain(lqr.K())},
		{Label: "|eig(A-BK)|", Value: closedLoopPoles(sys, lqr.K(), lqrDt)},
	}
	if lqrDelay > 0 {
		if err := lqr.LatencyCompensate(sys, lqrDt, lqrDelay); err != nil {
			return err
		}
		entries = append(entries,
			viz.Entry{Label: "delay", Value: fmt.Sprintf("%g s", lqrDelay)},
			viz.Entry{Label: "K delayed", Value: formatGain(lqr.K())},
		)
	}
	fmt.Println(viz.Summary("elevator LQR", entries, nil, viz.GetTheme(theme)))
	return nil
}

func formatGain(k *mat.Dense) string {
	return fmt.Sprintf("%.4g", mat.Formatted(k, mat.Squeeze()))
}

func closedLoopPoles(sys *system.LinearSystem, k *mat.Dense, dt float64) string {
	ad, bd := system.DiscretizeAB(sys.A(), sys.B(), dt)
	var bk, acl mat.Dense
	bk.Mul(bd, k)
	acl.Sub(ad, &bk)

	var eig mat.Eigen
	if !eig.Factorize(&acl, mat.EigenNone) {
		return "n/a"
	}
	out := ""
	for i, v := range eig.Values(nil) {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%.4f", cmplx.Abs(v))
	}
	return out
}
