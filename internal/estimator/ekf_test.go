package estimator

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/integrators"
)

func TestExtendedKalmanFilter_Converges(t *testing.T) {
	const dt = 0.02
	ekf, err := NewExtendedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.005}, dt)
	require.NoError(t, err)

	measNoise := gaussian(t, 3, 0.005)
	x := dynamo.Vec(0.8, 0)
	for i := 0; i < 1000; i++ {
		u := dynamo.Vec(0.5 * math.Sin(0.7*float64(i)*dt))
		x = integrators.RK4(pendulum, x, u, dt)
		y := dynamo.Add(angleOnly(x, u), measNoise())

		require.NoError(t, ekf.Predict(u, dt))
		require.NoError(t, ekf.Correct(u, y))

		if i > 300 {
			require.Less(t, math.Abs(ekf.XhatAt(0)-x.AtVec(0)), 0.05, "step %d", i)
		}
	}
	assert.Less(t, math.Abs(ekf.XhatAt(1)-x.AtVec(1)), 0.1)
}

func TestExtendedKalmanFilter_JosephFormStaysPSD(t *testing.T) {
	ekf, err := NewExtendedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{1e-4}, 0.005)
	require.NoError(t, err)
	ekf.SetP(mat.NewDense(2, 2, []float64{10, 3, 3, 10}))

	u := dynamo.Vec(0)
	for i := 0; i < 500; i++ {
		require.NoError(t, ekf.Predict(u, 0.005))
		require.NoError(t, ekf.Correct(u, dynamo.Vec(0.1)))
		assertPSD(t, ekf.P())
	}
}

func TestExtendedKalmanFilter_AngleResidual(t *testing.T) {
	ekf, err := NewExtendedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.01}, 0.02,
		WithMeasurementResidual(AngleResidual(0)), WithStateAdd(AngleAdd(0)))
	require.NoError(t, err)

	ekf.SetXhat(dynamo.Vec(math.Pi-0.01, 0))
	ekf.SetP(dynamo.MakeCovMatrix(0.1, 0.1))
	require.NoError(t, ekf.Correct(dynamo.Vec(0), dynamo.Vec(-math.Pi+0.01)))

	// The wrapped innovation is +0.02, so the estimate crosses ±π instead of
	// swinging through zero.
	assert.Greater(t, math.Abs(ekf.XhatAt(0)), math.Pi-0.02)
}

func TestExtendedKalmanFilter_CorrectWith(t *testing.T) {
	ekf, err := NewExtendedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.01}, 0.02)
	require.NoError(t, err)
	ekf.SetP(dynamo.MakeCovMatrix(1, 1))

	both := func(x, u *mat.VecDense) *mat.VecDense { return dynamo.CloneVec(x) }
	require.NoError(t, ekf.CorrectWith(dynamo.Vec(0), dynamo.Vec(0.3, -0.2), both, dynamo.MakeCovMatrix(0.001, 0.001), nil, nil))
	assert.InDelta(t, 0.3, ekf.XhatAt(0), 0.01)
	assert.InDelta(t, -0.2, ekf.XhatAt(1), 0.01)

	err = ekf.CorrectWith(dynamo.Vec(0), dynamo.Vec(0.3, -0.2), both, dynamo.MakeCovMatrix(0.001), nil, nil)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))
}

func TestExtendedKalmanFilter_Reset(t *testing.T) {
	ekf, err := NewExtendedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.01}, 0.02)
	require.NoError(t, err)
	initial := ekf.P()

	require.NoError(t, ekf.Predict(dynamo.Vec(1), 0.02))
	ekf.SetXhatAt(1, 4)
	ekf.Reset()

	assert.Equal(t, []float64{0, 0}, dynamo.RawCopy(ekf.Xhat()))
	assert.True(t, mat.Equal(initial, ekf.P()))
	assert.True(t, errors.Is(ekf.Predict(dynamo.Vec(0), -1), dynamo.ErrNonPositiveDt))
}
