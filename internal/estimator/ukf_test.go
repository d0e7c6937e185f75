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

func TestUnscentedKalmanFilter_Converges(t *testing.T) {
	const dt = 0.02
	ukf, err := NewUnscentedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.005}, dt)
	require.NoError(t, err)
	ukf.SetP(dynamo.MakeCovMatrix(1, 1))

	measNoise := gaussian(t, 4, 0.005)
	x := dynamo.Vec(0.8, 0)
	for i := 0; i < 1000; i++ {
		u := dynamo.Vec(0.5 * math.Sin(0.7*float64(i)*dt))
		x = integrators.RK4(pendulum, x, u, dt)
		y := dynamo.Add(angleOnly(x, u), measNoise())

		require.NoError(t, ukf.Predict(u, dt), "step %d", i)
		require.NoError(t, ukf.Correct(u, y), "step %d", i)

		if i > 300 {
			require.Less(t, math.Abs(ukf.XhatAt(0)-x.AtVec(0)), 0.05, "step %d", i)
		}
	}
	assertPSD(t, ukf.P())
}

func TestUnscentedKalmanFilter_MatchesKalmanOnLinearPlant(t *testing.T) {
	const dt = 0.01
	sys := positionPlant(t)
	stateStd := []float64{0.05, 1.0}
	measStd := []float64{0.01}

	kf, err := NewKalmanFilter(sys, stateStd, measStd, dt)
	require.NoError(t, err)

	f := func(x, u *mat.VecDense) *mat.VecDense {
		var dx, bu mat.VecDense
		dx.MulVec(sys.A(), x)
		bu.MulVec(sys.B(), u)
		dx.AddVec(&dx, &bu)
		return &dx
	}
	h := func(x, u *mat.VecDense) *mat.VecDense { return sys.CalculateY(x, u) }

	ukf, err := NewUnscentedKalmanFilter(2, 1, 1, f, h, stateStd, measStd, dt)
	require.NoError(t, err)
	ukf.SetP(dynamo.Eye(2))

	u := dynamo.Vec(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, ukf.Predict(u, dt))
		require.NoError(t, ukf.Correct(u, dynamo.Vec(0)))
	}
	require.NoError(t, ukf.Predict(u, dt))

	want := kf.P()
	got := ukf.P()
	for i := 0; i < 2; i++ {
		assert.InEpsilon(t, want.At(i, i), got.At(i, i), 1e-3, "P[%d][%d]", i, i)
	}
}

func TestUnscentedKalmanFilter_DowndateFailureKeepsState(t *testing.T) {
	ukf, err := NewUnscentedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.01}, 0.02)
	require.NoError(t, err)
	ukf.SetXhat(dynamo.Vec(0.1, 0.2))
	ukf.SetP(dynamo.MakeCovMatrix(0.5, 0.5))
	require.NoError(t, ukf.Predict(dynamo.Vec(0), 0.02))

	beforeX := ukf.Xhat()
	beforeS := ukf.S()

	// An inflated state residual makes Pxy inconsistent with P, so removing
	// K·Py·Kᵀ from P would leave it indefinite.
	inflated := func(a, b *mat.VecDense) *mat.VecDense {
		d := dynamo.Subtract(a, b)
		d.ScaleVec(100, d)
		return d
	}
	err = ukf.CorrectWith(dynamo.Vec(0), dynamo.Vec(0.5), angleOnly, dynamo.MakeCovMatrix(0.01),
		nil, nil, inflated, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDowndateFailed), "got %v", err)

	assert.Equal(t, dynamo.RawCopy(beforeX), dynamo.RawCopy(ukf.Xhat()))
	assert.True(t, mat.Equal(beforeS, ukf.S()))
}

func TestRankOneUpdate(t *testing.T) {
	s := mat.NewTriDense(2, mat.Upper, []float64{1, 0, 0, 1})

	up, err := rankOneUpdate(s, dynamo.Vec(1, 1), 1)
	require.NoError(t, err)
	var p mat.Dense
	p.Mul(up.T(), up)
	assert.True(t, mat.EqualApprox(&p, mat.NewDense(2, 2, []float64{2, 1, 1, 2}), 1e-12))

	down, err := rankOneUpdate(up, dynamo.Vec(1, 1), -1)
	require.NoError(t, err)
	p.Mul(down.T(), down)
	assert.True(t, mat.EqualApprox(&p, dynamo.Eye(2), 1e-12))

	_, err = rankOneUpdate(s, dynamo.Vec(2, 0), -1)
	assert.True(t, errors.Is(err, ErrDowndateFailed))

	_, err = rankOneUpdate(mat.NewTriDense(2, mat.Upper, nil), dynamo.Vec(1, 0), -1)
	assert.True(t, errors.Is(err, ErrDowndateFailed))

	same, err := rankOneUpdate(s, dynamo.Zeros(2), -5)
	require.NoError(t, err)
	assert.Same(t, s, same)
}

func TestUnscentedKalmanFilter_AngleMean(t *testing.T) {
	mean := AngleMean(0)
	sigmas := mat.NewDense(1, 3, []float64{math.Pi - 0.1, -math.Pi + 0.1, math.Pi})
	m := mean(sigmas, dynamo.Vec(1.0/3, 1.0/3, 1.0/3))
	assert.InDelta(t, math.Pi, math.Abs(m.AtVec(0)), 1e-9)
}

func TestUnscentedKalmanFilter_SetS(t *testing.T) {
	ukf, err := NewUnscentedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.01}, 0.02)
	require.NoError(t, err)

	s := mat.NewTriDense(2, mat.Upper, []float64{2, 1, 0, 3})
	ukf.SetS(s)
	assert.True(t, mat.EqualApprox(ukf.P(), mat.NewDense(2, 2, []float64{4, 2, 2, 10}), 1e-12))

	ukf.SetP(mat.NewDense(2, 2, []float64{4, 2, 2, 10}))
	assert.True(t, mat.EqualApprox(ukf.S(), s, 1e-12))

	ukf.Reset()
	assert.Equal(t, 0.0, mat.Norm(ukf.P(), 1))
}

func TestUnscentedKalmanFilter_RejectsWrongInputLength(t *testing.T) {
	ukf, err := NewUnscentedKalmanFilter(2, 1, 1, pendulum, angleOnly,
		[]float64{0.01, 0.1}, []float64{0.01}, 0.02)
	require.NoError(t, err)
	ukf.SetP(dynamo.MakeCovMatrix(0.5, 0.5))
	before := ukf.Xhat()

	wide := dynamo.Vec(0, 0, 0)
	err = ukf.Predict(wide, 0.02)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch), "got %v", err)

	err = ukf.Correct(wide, dynamo.Vec(0.1))
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch), "got %v", err)

	err = ukf.CorrectWith(dynamo.Vec(0, 0), dynamo.Vec(0.1), angleOnly, dynamo.MakeCovMatrix(0.01), nil, nil, nil, nil)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch), "got %v", err)

	assert.Equal(t, dynamo.RawCopy(before), dynamo.RawCopy(ukf.Xhat()))
}
