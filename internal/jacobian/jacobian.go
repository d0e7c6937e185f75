package jacobian

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// Step is the central-difference step used for every column.
const Step = 1e-5

var settings = &fd.JacobianSettings{Formula: fd.Central, Step: Step}

// NumericalJacobian returns the rows×len(x) matrix of partials ∂f/∂x at x.
func NumericalJacobian(rows int, f func(x *mat.VecDense) *mat.VecDense, x *mat.VecDense) *mat.Dense {
	dst := mat.NewDense(rows, x.Len(), nil)
	fd.Jacobian(dst, func(y, xs []float64) {
		arg := mat.NewVecDense(len(xs), append([]float64(nil), xs...))
		out := f(arg)
		for i := range y {
			y[i] = out.AtVec(i)
		}
	}, dynamo.RawCopy(x), settings)
	return dst
}

// NumericalJacobianX returns ∂f/∂x of f(x, u) at (x, u).
func NumericalJacobianX(rows int, f func(x, u *mat.VecDense) *mat.VecDense, x, u *mat.VecDense) *mat.Dense {
	return NumericalJacobian(rows, func(xv *mat.VecDense) *mat.VecDense {
		return f(xv, u)
	}, x)
}

// NumericalJacobianU returns ∂f/∂u of f(x, u) at (x, u).
func NumericalJacobianU(rows int, f func(x, u *mat.VecDense) *mat.VecDense, x, u *mat.VecDense) *mat.Dense {
	return NumericalJacobian(rows, func(uv *mat.VecDense) *mat.VecDense {
		return f(x, uv)
	}, u)
}
