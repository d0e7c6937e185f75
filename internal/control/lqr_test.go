package control

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/plant"
	"github.com/san-kum/dynctl/internal/riccati"
	"github.com/san-kum/dynctl/internal/system"
)

const elevatorDt = 0.00505

func elevator(t *testing.T) *system.LinearSystem {
	t.Helper()
	sys, err := plant.ElevatorSystem(plant.Vex775Pro(2), 5, 0.0181864, 1)
	require.NoError(t, err)
	return sys
}

func doubleIntegrator() (*mat.Dense, *mat.Dense) {
	return mat.NewDense(2, 2, []float64{0, 1, 0, 0}), mat.NewDense(2, 1, []float64{0, 1})
}

func TestLQR_ElevatorGain(t *testing.T) {
	lqr, err := NewLQR(elevator(t), []float64{0.02, 0.4}, []float64{12}, elevatorDt)
	require.NoError(t, err)

	assert.InDelta(t, 522.153, lqr.KAt(0, 0), 1e-3)
	assert.InDelta(t, 38.201, lqr.KAt(0, 1), 1e-3)
}

func TestLQR_ClosedLoopStable(t *testing.T) {
	a, b := doubleIntegrator()
	dt := 0.02
	lqr, err := NewLQRFromMatrices(a, b, dynamo.MakeCostMatrix(0.1, 0.5), dynamo.MakeCostMatrix(6), dt)
	require.NoError(t, err)

	ad, bd := system.DiscretizeAB(a, b, dt)
	var closed mat.Dense
	closed.Mul(bd, lqr.K())
	closed.Sub(ad, &closed)

	var eig mat.Eigen
	require.True(t, eig.Factorize(&closed, mat.EigenNone))
	for _, v := range eig.Values(nil) {
		assert.Less(t, cmplx.Abs(v), 1.0)
	}
}

func TestLQR_CrossTermZeroMatchesPlain(t *testing.T) {
	a, b := doubleIntegrator()
	q := dynamo.MakeCostMatrix(0.1, 0.5)
	r := dynamo.MakeCostMatrix(6)

	plain, err := NewLQRFromMatrices(a, b, q, r, 0.02)
	require.NoError(t, err)
	cross, err := NewLQRWithCrossTerm(a, b, q, r, mat.NewDense(2, 1, nil), 0.02)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(plain.K(), cross.K(), 1e-8))
}

func TestLQR_CrossTermChangesGain(t *testing.T) {
	a, b := doubleIntegrator()
	q := dynamo.MakeCostMatrix(0.1, 0.5)
	r := dynamo.MakeCostMatrix(6)
	n := mat.NewDense(2, 1, []float64{0.5, 0.1})

	plain, err := NewLQRFromMatrices(a, b, q, r, 0.02)
	require.NoError(t, err)
	cross, err := NewLQRWithCrossTerm(a, b, q, r, n, 0.02)
	require.NoError(t, err)

	assert.False(t, mat.EqualApprox(plain.K(), cross.K(), 1e-6))
}

func TestLQR_Calculate(t *testing.T) {
	lqr, err := NewLQR(elevator(t), []float64{0.02, 0.4}, []float64{12}, elevatorDt)
	require.NoError(t, err)

	u := lqr.Calculate(dynamo.Vec(0, 0))
	assert.Equal(t, 0.0, u.AtVec(0))

	u = lqr.CalculateWithReference(dynamo.Vec(0.1, 0), dynamo.Vec(0.2, 0))
	want := lqr.KAt(0, 0) * 0.1
	assert.InDelta(t, want, u.AtVec(0), 1e-9)
	assert.InDelta(t, want, lqr.UAt(0), 1e-9)
	assert.Equal(t, 0.2, lqr.RAt(0))

	lqr.Reset()
	assert.Equal(t, 0.0, lqr.RAt(0))
	assert.Equal(t, 0.0, lqr.UAt(0))
}

func TestLQR_LatencyCompensate(t *testing.T) {
	sys := elevator(t)

	t.Run("zero delay keeps gain", func(t *testing.T) {
		lqr, err := NewLQR(sys, []float64{0.02, 0.4}, []float64{12}, elevatorDt)
		require.NoError(t, err)
		before := lqr.K()
		require.NoError(t, lqr.LatencyCompensate(sys, elevatorDt, 0))
		assert.True(t, mat.EqualApprox(before, lqr.K(), 1e-12))
	})

	t.Run("two steps of delay", func(t *testing.T) {
		lqr, err := NewLQR(sys, []float64{0.02, 0.4}, []float64{12}, elevatorDt)
		require.NoError(t, err)
		k := lqr.K()

		ad, bd := system.DiscretizeAB(sys.A(), sys.B(), elevatorDt)
		var closed, want mat.Dense
		closed.Mul(bd, k)
		closed.Sub(ad, &closed)
		want.Product(k, &closed, &closed)

		require.NoError(t, lqr.LatencyCompensate(sys, elevatorDt, 2*elevatorDt))
		assert.True(t, mat.EqualApprox(&want, lqr.K(), 1e-9), "K = %v", mat.Formatted(lqr.K()))
	})

	t.Run("fractional delay shrinks gain", func(t *testing.T) {
		lqr, err := NewLQR(sys, []float64{0.02, 0.4}, []float64{12}, elevatorDt)
		require.NoError(t, err)
		before := lqr.KAt(0, 0)
		require.NoError(t, lqr.LatencyCompensate(sys, elevatorDt, 0.01))
		assert.Less(t, lqr.KAt(0, 0), before)
		assert.False(t, math.IsNaN(lqr.KAt(0, 1)))
	})
}

func TestLQR_Errors(t *testing.T) {
	a, b := doubleIntegrator()
	q := dynamo.MakeCostMatrix(0.1, 0.5)
	r := dynamo.MakeCostMatrix(6)

	tests := []struct {
		name string
		a, b mat.Matrix
		q, r mat.Matrix
		dt   float64
		want error
	}{
		{"nonpositive dt", a, b, q, r, 0, dynamo.ErrNonPositiveDt},
		{"asymmetric Q", a, b, mat.NewDense(2, 2, []float64{1, 1, 0, 1}), r, 0.02, ErrQNotSymmetric},
		{"indefinite Q", a, b, mat.NewDense(2, 2, []float64{1, 0, 0, -1}), r, 0.02, ErrQNotPositiveSemidefinite},
		{"zero R", a, b, q, mat.NewDense(1, 1, []float64{0}), 0.02, ErrRNotPositiveDefinite},
		{"unstabilizable", mat.NewDense(2, 2, []float64{1, 0, 0, 1}), mat.NewDense(2, 1, []float64{1, 0}), q, r, 0.02, ErrABNotStabilizable},
		{"bad B", a, mat.NewDense(3, 1, nil), q, r, 0.02, dynamo.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLQRFromMatrices(tt.a, tt.b, tt.q, tt.r, tt.dt)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestLQR_ErrorCarriesMatrices(t *testing.T) {
	a, b := doubleIntegrator()
	_, err := NewLQRFromMatrices(a, b, dynamo.MakeCostMatrix(0.1, 0.5), mat.NewDense(1, 1, []float64{-1}), 0.02)
	require.Error(t, err)

	var rerr *riccati.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, riccati.RNotPositiveDefinite, rerr.Kind)
	assert.NotEmpty(t, rerr.Matrices)
	assert.Contains(t, err.Error(), "R")
}

func TestNewLQR_ToleranceLength(t *testing.T) {
	_, err := NewLQR(elevator(t), []float64{0.02}, []float64{12}, elevatorDt)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))
}
