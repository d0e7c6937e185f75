package riccati

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

const rankTolerance = 1e-10

// IsStabilizable reports whether every eigenvalue of the discrete A on or
// outside the unit circle is controllable through B (PBH test):
//
//	rank [λI − A, B] = n  for all |λ| ≥ 1
func IsStabilizable(a, b mat.Matrix) bool {
	n, _ := a.Dims()
	_, m := b.Dims()

	var eig mat.Eigen
	if !eig.Factorize(a, mat.EigenNone) {
		return false
	}

	for _, lambda := range eig.Values(nil) {
		if cmplx.Abs(lambda) < 1 {
			continue
		}

		// Real embedding of the complex matrix M = [λI − A, B]:
		// [[Re M, −Im M], [Im M, Re M]] has rank 2·rank(M).
		re := mat.NewDense(n, n+m, nil)
		im := mat.NewDense(n, n+m, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				re.Set(i, j, -a.At(i, j))
			}
			re.Set(i, i, real(lambda)-a.At(i, i))
			im.Set(i, i, imag(lambda))
			for j := 0; j < m; j++ {
				re.Set(i, n+j, b.At(i, j))
			}
		}

		embed := mat.NewDense(2*n, 2*(n+m), nil)
		var negIm mat.Dense
		negIm.Scale(-1, im)
		dynamo.SetBlock(embed, 0, 0, re)
		dynamo.SetBlock(embed, 0, n+m, &negIm)
		dynamo.SetBlock(embed, n, 0, im)
		dynamo.SetBlock(embed, n, n+m, re)

		var svd mat.SVD
		if !svd.Factorize(embed, mat.SVDNone) {
			return false
		}
		if svd.Rank(rankTolerance) < 2*n {
			return false
		}
	}
	return true
}

// IsDetectable reports whether (A, C) is detectable, the dual of
// stabilizability of (Aᵀ, Cᵀ).
func IsDetectable(a, c mat.Matrix) bool {
	return IsStabilizable(a.T(), c.T())
}

// sqrtFactor returns C with CᵀC = Q for a positive semidefinite Q, built
// from the eigendecomposition Q = VΛVᵀ as C = √Λ·Vᵀ.
func sqrtFactor(q mat.Matrix) *mat.Dense {
	n, _ := q.Dims()
	var es mat.EigenSym
	if !es.Factorize(dynamo.SymOf(q), true) {
		return mat.NewDense(n, n, nil)
	}
	vals := es.Values(nil)
	var v mat.Dense
	es.VectorsTo(&v)

	c := mat.NewDense(n, n, nil)
	for i, lambda := range vals {
		if lambda <= 0 {
			continue
		}
		s := math.Sqrt(lambda)
		for j := 0; j < n; j++ {
			c.Set(i, j, s*v.At(j, i))
		}
	}
	return c
}
