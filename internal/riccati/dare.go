package riccati

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/logging"
)

const (
	symmetryTolerance = 1e-10
	convergenceTol    = 1e-10
	maxIterations     = 200
)

var log = logging.GetLog("riccati")

// DARE solves the discrete algebraic Riccati equation
//
//	AᵀXA − X − AᵀXB(BᵀXB + R)⁻¹BᵀXA + Q = 0
//
// for its stabilizing solution X. Q must be symmetric positive semidefinite,
// R symmetric positive definite, (A, B) stabilizable and (A, C) detectable
// where Q = CᵀC.
func DARE(a, b, q, r mat.Matrix) (*mat.Dense, error) {
	if err := checkDims(a, b, q, r); err != nil {
		return nil, err
	}
	if err := checkQ(q); err != nil {
		return nil, err
	}
	if err := checkR(r); err != nil {
		return nil, err
	}
	if err := checkPairs(a, b, q); err != nil {
		return nil, err
	}
	return Solve(a, b, q, r)
}

// DAREWithCrossTerm solves the equation with cost cross term N
//
//	AᵀXA − X − (AᵀXB + N)(BᵀXB + R)⁻¹(BᵀXA + Nᵀ) + Q = 0
//
// by reducing it to DARE(A − BR⁻¹Nᵀ, B, Q − NR⁻¹Nᵀ, R).
func DAREWithCrossTerm(a, b, q, r, n mat.Matrix) (*mat.Dense, error) {
	if err := checkDims(a, b, q, r); err != nil {
		return nil, err
	}
	states, _ := a.Dims()
	_, inputs := b.Dims()
	if err := dynamo.CheckDims("N", n, states, inputs); err != nil {
		return nil, err
	}
	if err := checkR(r); err != nil {
		return nil, err
	}

	// R⁻¹Nᵀ
	var rChol mat.Cholesky
	rChol.Factorize(dynamo.SymOf(r))
	var rInvNT mat.Dense
	if err := rChol.SolveTo(&rInvNT, n.T()); err != nil {
		return nil, newError(RNotPositiveDefinite, Named{"R", r})
	}

	var a2, bRN mat.Dense
	bRN.Mul(b, &rInvNT)
	a2.Sub(a, &bRN)

	var q2, nRN mat.Dense
	nRN.Mul(n, &rInvNT)
	q2.Sub(q, &nRN)
	dynamo.Symmetrize(&q2)

	if err := checkQ(&q2); err != nil {
		return nil, err
	}
	if err := checkPairs(&a2, b, &q2); err != nil {
		return nil, err
	}
	return Solve(&a2, b, &q2, r)
}

// Solve runs the structure-preserving doubling algorithm without checking
// preconditions. Callers that cannot guarantee them should use DARE.
func Solve(a, b, q, r mat.Matrix) (*mat.Dense, error) {
	n, _ := a.Dims()
	eye := dynamo.Eye(n)

	// G₀ = BR⁻¹Bᵀ
	var rChol mat.Cholesky
	if !rChol.Factorize(dynamo.SymOf(r)) {
		return nil, newError(RNotPositiveDefinite, Named{"R", r})
	}
	var rInvBT, g mat.Dense
	if err := rChol.SolveTo(&rInvBT, b.T()); err != nil {
		return nil, newError(RNotPositiveDefinite, Named{"R", r})
	}
	g.Mul(b, &rInvBT)

	ak := mat.DenseCopyOf(a)
	gk := &g
	hk := mat.DenseCopyOf(q)

	for iter := 0; iter < maxIterations; iter++ {
		// W = I + GₖHₖ
		var w mat.Dense
		w.Mul(gk, hk)
		w.Add(eye, &w)

		// V₁ = W⁻¹Aₖ, V₂ = W⁻¹Gₖ
		v1, err := dynamo.Solve(&w, ak)
		if err != nil {
			return nil, newError(NoConvergence, Named{"A", a}, Named{"B", b}, Named{"Q", q}, Named{"R", r})
		}
		v2, err := dynamo.Solve(&w, gk)
		if err != nil {
			return nil, newError(NoConvergence, Named{"A", a}, Named{"B", b}, Named{"Q", q}, Named{"R", r})
		}

		// Gₖ₊₁ = Gₖ + AₖV₂Aₖᵀ
		var gNext, av2 mat.Dense
		av2.Mul(ak, v2)
		gNext.Mul(&av2, ak.T())
		gNext.Add(gk, &gNext)

		// Hₖ₊₁ = Hₖ + V₁ᵀHₖAₖ
		var hNext, vh mat.Dense
		vh.Mul(v1.T(), hk)
		hNext.Mul(&vh, ak)
		hNext.Add(hk, &hNext)

		// Aₖ₊₁ = AₖV₁
		var aNext mat.Dense
		aNext.Mul(ak, v1)

		var diff mat.Dense
		diff.Sub(&hNext, hk)
		done := mat.Norm(&diff, 2) <= convergenceTol*mat.Norm(&hNext, 2)

		ak, gk, hk = &aNext, &gNext, &hNext
		if done {
			dynamo.Symmetrize(hk)
			log.Debug("dare converged", "iterations", iter+1, "states", n)
			return hk, nil
		}
	}
	return nil, newError(NoConvergence, Named{"A", a}, Named{"B", b}, Named{"Q", q}, Named{"R", r})
}

func checkDims(a, b, q, r mat.Matrix) error {
	n, _ := a.Dims()
	_, m := b.Dims()
	for _, err := range []error{
		dynamo.CheckDims("A", a, n, n),
		dynamo.CheckDims("B", b, n, m),
		dynamo.CheckDims("Q", q, n, n),
		dynamo.CheckDims("R", r, m, m),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func checkQ(q mat.Matrix) error {
	if !dynamo.IsSymmetric(q, symmetryTolerance) {
		return newError(QNotSymmetric, Named{"Q", q})
	}
	if !dynamo.IsPositiveSemidefinite(q, symmetryTolerance) {
		return newError(QNotPositiveSemidefinite, Named{"Q", q})
	}
	return nil
}

func checkR(r mat.Matrix) error {
	if !dynamo.IsSymmetric(r, symmetryTolerance) {
		return newError(RNotSymmetric, Named{"R", r})
	}
	if !dynamo.IsPositiveDefinite(r) {
		return newError(RNotPositiveDefinite, Named{"R", r})
	}
	return nil
}

func checkPairs(a, b, q mat.Matrix) error {
	if !IsStabilizable(a, b) {
		return newError(ABNotStabilizable, Named{"A", a}, Named{"B", b})
	}
	c := sqrtFactor(q)
	if !IsDetectable(a, c) {
		return newError(ACNotDetectable, Named{"A", a}, Named{"Q", q})
	}
	return nil
}
