package estimator

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

func velocityOnly(x, u *mat.VecDense) *mat.VecDense {
	return dynamo.Vec(x.AtVec(1))
}

func newPendulumEKF(t *testing.T) *ExtendedKalmanFilter {
	t.Helper()
	ekf, err := NewExtendedKalmanFilter(2, 1, 1, pendulum, velocityOnly,
		[]float64{0.02, 0.1}, []float64{0.05}, 0.02)
	require.NoError(t, err)
	ekf.SetP(dynamo.MakeCovMatrix(0.5, 0.5))
	return ekf
}

func tickInput(i int) *mat.VecDense { return dynamo.Vec(math.Sin(0.1 * float64(i))) }
func tickLocal(i int) *mat.VecDense { return dynamo.Vec(0.3 * math.Cos(0.05*float64(i))) }

func TestLatencyCompensator_ReplayMatchesOracle(t *testing.T) {
	const (
		dt         = 0.02
		ticks      = 50
		globalTick = 40
	)
	globalY := dynamo.Vec(0.25)
	globalR := dynamo.MakeCovMatrix(0.01)

	oracle := newPendulumEKF(t)
	for i := 1; i <= ticks; i++ {
		require.NoError(t, oracle.Predict(tickInput(i), dt))
		require.NoError(t, oracle.Correct(tickInput(i), tickLocal(i)))
		if i == globalTick {
			require.NoError(t, oracle.CorrectWith(tickInput(i), globalY, angleOnly, globalR, nil, nil))
		}
	}

	live := newPendulumEKF(t)
	comp := NewLatencyCompensator(0)
	for i := 1; i <= ticks; i++ {
		require.NoError(t, live.Predict(tickInput(i), dt))
		require.NoError(t, live.Correct(tickInput(i), tickLocal(i)))
		comp.AddObserverState(live, tickInput(i), tickLocal(i), float64(i)*dt)
	}

	globalCorrect := func(u, y *mat.VecDense) error {
		return live.CorrectWith(u, y, angleOnly, globalR, nil, nil)
	}
	require.NoError(t, comp.ApplyPastGlobalMeasurement(live, dt, globalY, globalCorrect, float64(globalTick)*dt+0.005))

	assert.True(t, mat.EqualApprox(oracle.Xhat(), live.Xhat(), 1e-9),
		"oracle %v live %v", dynamo.RawCopy(oracle.Xhat()), dynamo.RawCopy(live.Xhat()))
	assert.True(t, mat.EqualApprox(oracle.P(), live.P(), 1e-9))

	// The newest snapshot now reflects the replayed state.
	snaps := comp.Snapshots()
	assert.True(t, mat.EqualApprox(snaps[len(snaps)-1].Xhat, live.Xhat(), 1e-12))
}

func TestLatencyCompensator_Stale(t *testing.T) {
	ekf := newPendulumEKF(t)
	comp := NewLatencyCompensator(0.5)
	noop := func(u, y *mat.VecDense) error { return nil }

	err := comp.ApplyPastGlobalMeasurement(ekf, 0.02, dynamo.Vec(0), noop, 1)
	assert.True(t, errors.Is(err, ErrStaleMeasurement))

	for i := 1; i <= 100; i++ {
		require.NoError(t, ekf.Predict(tickInput(i), 0.02))
		comp.AddObserverState(ekf, tickInput(i), nil, float64(i)*0.02)
	}
	before := ekf.Xhat()

	err = comp.ApplyPastGlobalMeasurement(ekf, 0.02, dynamo.Vec(0), noop, 0.5)
	assert.True(t, errors.Is(err, ErrStaleMeasurement))
	assert.Equal(t, dynamo.RawCopy(before), dynamo.RawCopy(ekf.Xhat()))
}

func TestLatencyCompensator_PrunesAndOrders(t *testing.T) {
	ekf := newPendulumEKF(t)
	comp := NewLatencyCompensator(0.1)
	u := dynamo.Vec(0)

	for _, ts := range []float64{0.00, 0.02, 0.06, 0.04, 0.08, 0.10, 0.12} {
		comp.AddObserverState(ekf, u, nil, ts)
	}

	snaps := comp.Snapshots()
	var stamps []float64
	for _, s := range snaps {
		stamps = append(stamps, s.Timestamp)
	}
	assert.Equal(t, []float64{0.02, 0.04, 0.06, 0.08, 0.10, 0.12}, stamps)
	assert.Equal(t, 6, comp.Len())

	comp.Clear()
	assert.Equal(t, 0, comp.Len())
}

func TestLatencyCompensator_FailedCorrectionRestores(t *testing.T) {
	ekf := newPendulumEKF(t)
	comp := NewLatencyCompensator(0)
	for i := 1; i <= 10; i++ {
		require.NoError(t, ekf.Predict(tickInput(i), 0.02))
		comp.AddObserverState(ekf, tickInput(i), nil, float64(i)*0.02)
	}
	beforeX, beforeP := ekf.Xhat(), ekf.P()

	boom := errors.New("boom")
	err := comp.ApplyPastGlobalMeasurement(ekf, 0.02, dynamo.Vec(0), func(u, y *mat.VecDense) error {
		return boom
	}, 0.1)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, mat.Equal(beforeX, ekf.Xhat()))
	assert.True(t, mat.Equal(beforeP, ekf.P()))
}

func TestLatencyCompensator_ReplayWithUnevenSpacing(t *testing.T) {
	const (
		ticks      = 51
		globalTick = 40
	)
	spacing := func(i int) float64 {
		if i%2 == 0 {
			return 0.01
		}
		return 0.03
	}
	globalY := dynamo.Vec(0.25)
	globalR := dynamo.MakeCovMatrix(0.01)

	oracle := newPendulumEKF(t)
	for i := 1; i <= ticks; i++ {
		require.NoError(t, oracle.Predict(tickInput(i), spacing(i)))
		require.NoError(t, oracle.Correct(tickInput(i), tickLocal(i)))
		if i == globalTick {
			require.NoError(t, oracle.CorrectWith(tickInput(i), globalY, angleOnly, globalR, nil, nil))
		}
	}

	live := newPendulumEKF(t)
	comp := NewLatencyCompensator(0)
	var now, globalAt float64
	for i := 1; i <= ticks; i++ {
		now += spacing(i)
		require.NoError(t, live.Predict(tickInput(i), spacing(i)))
		require.NoError(t, live.Correct(tickInput(i), tickLocal(i)))
		comp.AddObserverState(live, tickInput(i), tickLocal(i), now)
		if i == globalTick {
			globalAt = now
		}
	}
	require.Equal(t, spacing(ticks), live.Dt())

	globalCorrect := func(u, y *mat.VecDense) error {
		return live.CorrectWith(u, y, angleOnly, globalR, nil, nil)
	}
	require.NoError(t, comp.ApplyPastGlobalMeasurement(live, 0.02, globalY, globalCorrect, globalAt+0.001))

	assert.True(t, mat.EqualApprox(oracle.Xhat(), live.Xhat(), 1e-9),
		"oracle %v live %v", dynamo.RawCopy(oracle.Xhat()), dynamo.RawCopy(live.Xhat()))
	assert.True(t, mat.EqualApprox(oracle.P(), live.P(), 1e-9))
	assert.Equal(t, spacing(ticks), live.Dt())

	snaps := comp.Snapshots()
	assert.Equal(t, spacing(ticks), snaps[len(snaps)-1].Dt)
}
