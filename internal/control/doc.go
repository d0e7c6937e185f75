// Package control provides discrete linear-quadratic regulators and
// plant-inversion feedforwards.
//
//	lqr, err := control.NewLQR(plant, []float64{0.02, 0.4}, []float64{12}, 0.005)
//	u := lqr.CalculateWithReference(x, r)
//
// Gains are computed once at construction from the discrete algebraic
// Riccati equation in package riccati.
package control
