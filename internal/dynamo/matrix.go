package dynamo

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const maxSqrtIterations = 64

func Eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// MakeCovMatrix builds diag(σᵢ²) from standard deviations.
func MakeCovMatrix(stdDevs ...float64) *mat.Dense {
	n := len(stdDevs)
	m := mat.NewDense(n, n, nil)
	for i, s := range stdDevs {
		m.Set(i, i, s*s)
	}
	return m
}

// MakeCostMatrix builds diag(1/tolᵢ²) from maximum excursions (Bryson's rule).
// An infinite tolerance gives a zero weight.
func MakeCostMatrix(tolerances ...float64) *mat.Dense {
	n := len(tolerances)
	m := mat.NewDense(n, n, nil)
	for i, t := range tolerances {
		if math.IsInf(t, 0) {
			continue
		}
		m.Set(i, i, 1/(t*t))
	}
	return m
}

// SetBlock copies src into dst with its top-left corner at (i, j).
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

func IsSymmetric(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}

// Symmetrize replaces m with (m + mᵀ)/2 in place.
func Symmetrize(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

// SymOf returns the symmetric part of a square matrix.
func SymOf(m mat.Matrix) *mat.SymDense {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}
	return s
}

// Eigenvalues returns the ascending eigenvalues of the symmetric part of m.
func Eigenvalues(m mat.Matrix) ([]float64, bool) {
	var es mat.EigenSym
	if !es.Factorize(SymOf(m), false) {
		return nil, false
	}
	return es.Values(nil), true
}

func IsPositiveSemidefinite(m mat.Matrix, tol float64) bool {
	vals, ok := Eigenvalues(m)
	if !ok {
		return false
	}
	for _, v := range vals {
		if v < -tol {
			return false
		}
	}
	return true
}

func IsPositiveDefinite(m mat.Matrix) bool {
	var chol mat.Cholesky
	return chol.Factorize(SymOf(m))
}

func HasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}

// Solve finds x with a·x = b. Ill-conditioned but finite systems are
// accepted; an exactly singular a returns ErrSingularMatrix.
func Solve(a, b mat.Matrix) (*mat.Dense, error) {
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		if singular(err) {
			return nil, errors.Wrap(ErrSingularMatrix, err.Error())
		}
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
	}
	if HasNaN(&x) {
		return nil, errors.Wrap(ErrSingularMatrix, "solution contains NaN")
	}
	return &x, nil
}

func singular(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond) && math.IsInf(float64(cond), 1)
}

func inverse(a mat.Matrix) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil && singular(err) {
		return nil, errors.Wrap(ErrSingularMatrix, err.Error())
	}
	return &inv, nil
}

// sqrtm computes the principal square root with the Denman-Beavers iteration.
func sqrtm(a *mat.Dense) (*mat.Dense, error) {
	n, _ := a.Dims()
	y := mat.DenseCopyOf(a)
	z := Eye(n)
	for i := 0; i < 100; i++ {
		yInv, err := inverse(y)
		if err != nil {
			return nil, err
		}
		zInv, err := inverse(z)
		if err != nil {
			return nil, err
		}

		var yNext, zNext, diff mat.Dense
		yNext.Add(y, zInv)
		yNext.Scale(0.5, &yNext)
		zNext.Add(z, yInv)
		zNext.Scale(0.5, &zNext)

		diff.Sub(&yNext, y)
		y, z = &yNext, &zNext
		if mat.Norm(&diff, 1) <= 1e-14*mat.Norm(y, 1) {
			return y, nil
		}
	}
	return nil, ErrNoMatrixLog
}

// Logm computes the principal matrix logarithm by inverse scaling and
// squaring: repeated square roots until the argument is near the identity,
// then the series of log(I+E).
func Logm(a mat.Matrix) (*mat.Dense, error) {
	n, c := a.Dims()
	if n != c {
		return nil, errors.Wrapf(ErrDimensionMismatch, "logm of %dx%d matrix", n, c)
	}
	x := mat.DenseCopyOf(a)
	eye := Eye(n)

	var e mat.Dense
	squarings := 0
	for {
		e.Sub(x, eye)
		if mat.Norm(&e, 1) < 0.25 {
			break
		}
		if squarings == maxSqrtIterations {
			return nil, ErrNoMatrixLog
		}
		r, err := sqrtm(x)
		if err != nil {
			return nil, errors.Wrap(ErrNoMatrixLog, err.Error())
		}
		x = r
		squarings++
	}

	out := mat.NewDense(n, n, nil)
	term := mat.DenseCopyOf(&e)
	for k := 1; k <= 80; k++ {
		sign := 1.0
		if k%2 == 0 {
			sign = -1.0
		}
		var scaled mat.Dense
		scaled.Scale(sign/float64(k), term)
		out.Add(out, &scaled)
		if mat.Norm(&scaled, 1) <= 1e-17*(1+mat.Norm(out, 1)) {
			break
		}
		var next mat.Dense
		next.Mul(term, &e)
		term = &next
	}
	out.Scale(math.Ldexp(1, squarings), out)
	return out, nil
}

// Powm raises a square matrix to a real power. Integral powers use repeated
// multiplication; other powers go through exp(p·log(a)).
func Powm(a mat.Matrix, p float64) (*mat.Dense, error) {
	if p >= 0 && p == math.Trunc(p) && p < 1<<16 {
		var out mat.Dense
		out.Pow(a, int(p))
		return &out, nil
	}
	l, err := Logm(a)
	if err != nil {
		return nil, err
	}
	l.Scale(p, l)
	var out mat.Dense
	out.Exp(l)
	return &out, nil
}
