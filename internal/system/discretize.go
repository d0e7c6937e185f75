package system

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// DiscretizeA returns expm(A·dt).
func DiscretizeA(a mat.Matrix, dt float64) *mat.Dense {
	var scaled, ad mat.Dense
	scaled.Scale(dt, a)
	ad.Exp(&scaled)
	return &ad
}

// DiscretizeAB returns the zero-order-hold pair (Ad, Bd) from the exponential
// of the augmented matrix [[A B] [0 0]]·dt.
func DiscretizeAB(a, b mat.Matrix, dt float64) (*mat.Dense, *mat.Dense) {
	n, _ := a.Dims()
	_, m := b.Dims()

	m1 := mat.NewDense(n+m, n+m, nil)
	dynamo.SetBlock(m1, 0, 0, a)
	dynamo.SetBlock(m1, 0, n, b)
	m1.Scale(dt, m1)

	var phi mat.Dense
	phi.Exp(m1)

	ad := mat.DenseCopyOf(phi.Slice(0, n, 0, n))
	bd := mat.DenseCopyOf(phi.Slice(0, n, n, n+m))
	return ad, bd
}

// DiscretizeAQ computes Ad and the discrete process noise Qd jointly with
// Van Loan's method:
//
//	M = [[-A, Q] [0, Aᵀ]]·dt,  Φ = expm(M),  Ad = Φ₂₂ᵀ,  Qd = Φ₂₂ᵀ·Φ₁₂
func DiscretizeAQ(a, q mat.Matrix, dt float64) (*mat.Dense, *mat.Dense) {
	n, _ := a.Dims()

	m := mat.NewDense(2*n, 2*n, nil)
	var negA mat.Dense
	negA.Scale(-1, a)
	dynamo.SetBlock(m, 0, 0, &negA)
	dynamo.SetBlock(m, 0, n, q)
	dynamo.SetBlock(m, n, n, a.T())
	m.Scale(dt, m)

	var phi mat.Dense
	phi.Exp(m)

	phi12 := phi.Slice(0, n, n, 2*n)
	phi22 := phi.Slice(n, 2*n, n, 2*n)

	ad := mat.DenseCopyOf(phi22.T())
	var qd mat.Dense
	qd.Mul(ad, phi12)
	dynamo.Symmetrize(&qd)
	return ad, &qd
}

// DiscretizeAQTaylor approximates Van Loan's Φ₁₂ block with its Taylor
// series instead of the 2n×2n exponential:
//
//	Φ₁₂ = Σ Tₖ·dt^k/k!,  T₁ = Q,  Tₖ₊₁ = -A·Tₖ + Q·(Aᵀ)^k
//
// and returns (Ad, Ad·Φ₁₂) with the noise term symmetrized.
func DiscretizeAQTaylor(a, q mat.Matrix, dt float64) (*mat.Dense, *mat.Dense) {
	n, _ := a.Dims()

	lastTerm := mat.DenseCopyOf(q)
	lastCoeff := dt
	atn := mat.DenseCopyOf(a.T())

	phi12 := mat.NewDense(n, n, nil)
	phi12.Scale(lastCoeff, lastTerm)

	for i := 2; i < 12; i++ {
		var left, right, next mat.Dense
		left.Mul(a, lastTerm)
		left.Scale(-1, &left)
		right.Mul(q, atn)
		next.Add(&left, &right)
		lastTerm = &next
		lastCoeff *= dt / float64(i)

		var term mat.Dense
		term.Scale(lastCoeff, lastTerm)
		phi12.Add(phi12, &term)

		var nextAtn mat.Dense
		nextAtn.Mul(atn, a.T())
		atn = &nextAtn
	}

	ad := DiscretizeA(a, dt)
	var qd mat.Dense
	qd.Mul(ad, phi12)
	dynamo.Symmetrize(&qd)
	return ad, &qd
}

// DiscretizeR converts a continuous measurement noise density to a discrete
// covariance, R/dt.
func DiscretizeR(r mat.Matrix, dt float64) *mat.Dense {
	var rd mat.Dense
	rd.Scale(1/dt, r)
	return &rd
}
