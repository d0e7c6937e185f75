package integrators

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

const (
	// DefaultMaxError is the truncation error bound used when the caller
	// passes a non-positive maxError.
	DefaultMaxError = 1e-6

	// MinStep is the smallest sub-step an adaptive integrator will take.
	MinStep = 1e-12
)

// tableau is an explicit embedded Runge-Kutta method. a holds the strictly
// lower-triangular stage coefficients, b the propagated solution weights and
// e the difference between the propagated and embedded weights.
type tableau struct {
	a [][]float64
	b []float64
	e []float64
}

// Dormand-Prince coefficients (RKDP). The seventh stage is evaluated at the
// 5th order solution, so b doubles as the last row of a.
var dormandPrince = func() tableau {
	b := []float64{35.0 / 384.0, 0, 500.0 / 1113.0, 125.0 / 192.0, -2187.0 / 6784.0, 11.0 / 84.0, 0}
	bHat := []float64{5179.0 / 57600.0, 0, 7571.0 / 16695.0, 393.0 / 640.0, -92097.0 / 339200.0, 187.0 / 2100.0, 1.0 / 40.0}
	return tableau{
		a: [][]float64{
			{1.0 / 5.0},
			{3.0 / 40.0, 9.0 / 40.0},
			{44.0 / 45.0, -56.0 / 15.0, 32.0 / 9.0},
			{19372.0 / 6561.0, -25360.0 / 2187.0, 64448.0 / 6561.0, -212.0 / 729.0},
			{9017.0 / 3168.0, -355.0 / 33.0, 46732.0 / 5247.0, 49.0 / 176.0, -5103.0 / 18656.0},
			b[:6],
		},
		b: b,
		e: weightDiff(b, bHat),
	}
}()

// Runge-Kutta-Fehlberg coefficients (RKF45), propagating the 4th order
// solution.
var fehlberg = func() tableau {
	b4 := []float64{25.0 / 216.0, 0, 1408.0 / 2565.0, 2197.0 / 4104.0, -1.0 / 5.0, 0}
	b5 := []float64{16.0 / 135.0, 0, 6656.0 / 12825.0, 28561.0 / 56430.0, -9.0 / 50.0, 2.0 / 55.0}
	return tableau{
		a: [][]float64{
			{1.0 / 4.0},
			{3.0 / 32.0, 9.0 / 32.0},
			{1932.0 / 2197.0, -7200.0 / 2197.0, 7296.0 / 2197.0},
			{439.0 / 216.0, -8, 3680.0 / 513.0, -845.0 / 4104.0},
			{-8.0 / 27.0, 2, -3544.0 / 2565.0, 1859.0 / 4104.0, -11.0 / 40.0},
		},
		b: b4,
		e: weightDiff(b4, b5),
	}
}()

func weightDiff(b, bHat []float64) []float64 {
	out := make([]float64, len(b))
	floats.SubTo(out, b, bHat)
	return out
}

// RKDP integrates ẋ = f(x, u) over dt with adaptive Dormand-Prince sub-steps
// whose truncation error stays below maxError.
func RKDP(f dynamo.Dynamics, x, u *mat.VecDense, dt, maxError float64) (*mat.VecDense, error) {
	return integrateAdaptive(dormandPrince, f, x, u, dt, maxError)
}

// RKF45 integrates ẋ = f(x, u) over dt with adaptive Runge-Kutta-Fehlberg
// sub-steps.
func RKF45(f dynamo.Dynamics, x, u *mat.VecDense, dt, maxError float64) (*mat.VecDense, error) {
	return integrateAdaptive(fehlberg, f, x, u, dt, maxError)
}

func integrateAdaptive(tab tableau, f dynamo.Dynamics, x, u *mat.VecDense, dt, maxError float64) (*mat.VecDense, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if maxError <= 0 {
		maxError = DefaultMaxError
	}

	elapsed := 0.0
	h := dt
	for dt-elapsed >= MinStep {
		for {
			h = math.Min(h, dt-elapsed)
			if h < MinStep {
				return nil, errors.Wrapf(dynamo.ErrStepTooSmall, "h = %g at %g of %g", h, elapsed, dt)
			}

			newX, truncation := tab.step(f, x, u, h)
			if math.IsNaN(truncation) || math.IsInf(truncation, 0) {
				return nil, errors.Wrapf(dynamo.ErrInvalidState, "truncation error %g at %g of %g", truncation, elapsed, dt)
			}

			used := h
			if truncation == 0 {
				h = dt - elapsed
			} else {
				h *= 0.9 * math.Pow(maxError/truncation, 1.0/5.0)
			}

			if truncation <= maxError {
				elapsed += used
				x = newX
				break
			}
		}
	}
	return x, nil
}

// step evaluates every stage once and returns the propagated solution and
// the 2-norm of the embedded error estimate.
func (tab tableau) step(f dynamo.Dynamics, x, u *mat.VecDense, h float64) (*mat.VecDense, float64) {
	k := make([]*mat.VecDense, len(tab.b))
	k[0] = f(x, u)
	for i, row := range tab.a {
		k[i+1] = f(weighted(x, h, row, k), u)
	}

	newX := weighted(x, h, tab.b, k)
	errEst := weighted(mat.NewVecDense(x.Len(), nil), h, tab.e, k)
	return newX, floats.Norm(errEst.RawVector().Data, 2)
}

func weighted(x *mat.VecDense, h float64, coeffs []float64, k []*mat.VecDense) *mat.VecDense {
	out := dynamo.CloneVec(x)
	for j, c := range coeffs {
		if c != 0 {
			out.AddScaledVec(out, h*c, k[j])
		}
	}
	return out
}
