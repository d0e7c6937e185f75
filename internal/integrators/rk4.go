package integrators

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// RK4 performs one fourth-order Runge-Kutta step of ẋ = f(x, u) with u held
// constant over dt.
func RK4(f dynamo.Dynamics, x, u *mat.VecDense, dt float64) *mat.VecDense {
	h := dt

	k1 := f(x, u)
	k2 := f(offset(x, h*0.5, k1), u)
	k3 := f(offset(x, h*0.5, k2), u)
	k4 := f(offset(x, h, k3), u)

	return rk4Combine(x, h, k1, k2, k3, k4)
}

// RK4Time performs one RK4 step of the time-varying system ẏ = f(t, y).
func RK4Time(f func(t float64, y *mat.VecDense) *mat.VecDense, t float64, y *mat.VecDense, dt float64) *mat.VecDense {
	h := dt

	k1 := f(t, y)
	k2 := f(t+dt*0.5, offset(y, h*0.5, k1))
	k3 := f(t+dt*0.5, offset(y, h*0.5, k2))
	k4 := f(t+dt, offset(y, h, k3))

	return rk4Combine(y, h, k1, k2, k3, k4)
}

func offset(x *mat.VecDense, alpha float64, k *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(x.Len(), nil)
	out.AddScaledVec(x, alpha, k)
	return out
}

func rk4Combine(x *mat.VecDense, h float64, k1, k2, k3, k4 *mat.VecDense) *mat.VecDense {
	n := x.Len()
	result := mat.NewVecDense(n, nil)
	h6 := h / 6.0
	for i := 0; i < n; i++ {
		result.SetVec(i, x.AtVec(i)+h6*(k1.AtVec(i)+2*k2.AtVec(i)+2*k3.AtVec(i)+k4.AtVec(i)))
	}
	return result
}
