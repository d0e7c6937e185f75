package control

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/system"
)

func doubleIntegratorDynamics(x, u *mat.VecDense) *mat.VecDense {
	return dynamo.Vec(x.AtVec(1), u.AtVec(0))
}

func TestControlAffineFeedforward_RecoversB(t *testing.T) {
	ff, err := NewControlAffinePlantInversionFeedforward(2, 1, doubleIntegratorDynamics, 0.02)
	require.NoError(t, err)

	b := ff.B()
	assert.InDelta(t, 0, b.At(0, 0), 1e-9)
	assert.InDelta(t, 1, b.At(1, 0), 1e-9)
}

func TestControlAffineFeedforward_Calculate(t *testing.T) {
	dt := 0.02
	ff, err := NewControlAffinePlantInversionFeedforward(2, 1, doubleIntegratorDynamics, dt)
	require.NoError(t, err)

	// Holding velocity at 0 while accelerating by 2 m/s² over one step.
	uff, err := ff.Calculate(dynamo.Vec(0, 0), dynamo.Vec(0, 2*dt))
	require.NoError(t, err)
	assert.InDelta(t, 2, uff.AtVec(0), 1e-6)
	assert.InDelta(t, 2*dt, ff.R().AtVec(1), 1e-12)

	uff, err = ff.CalculateStateOnly(dynamo.Vec(0, 2*dt))
	require.NoError(t, err)
	assert.InDelta(t, 0, uff.AtVec(0), 1e-6)

	ff.Reset(dynamo.Vec(1, 1))
	assert.Equal(t, 0.0, ff.UffAt(0))
	assert.Equal(t, 1.0, ff.R().AtVec(0))
}

func TestControlAffineFeedforward_WithB(t *testing.T) {
	// ẋ = -x + u on both channels.
	f := func(x *mat.VecDense) *mat.VecDense {
		return dynamo.Vec(-x.AtVec(0), -x.AtVec(1))
	}
	ff, err := NewControlAffinePlantInversionFeedforwardWithB(2, f, dynamo.Eye(2), 0.01)
	require.NoError(t, err)

	uff, err := ff.Calculate(dynamo.Vec(1, 2), dynamo.Vec(1, 2))
	require.NoError(t, err)
	assert.InDelta(t, 1, uff.AtVec(0), 1e-12)
	assert.InDelta(t, 2, uff.AtVec(1), 1e-12)
}

func TestControlAffineFeedforward_RankDeficient(t *testing.T) {
	f := func(x *mat.VecDense) *mat.VecDense { return dynamo.Zeros(2) }
	_, err := NewControlAffinePlantInversionFeedforwardWithB(2, f, mat.NewDense(2, 2, []float64{1, 1, 1, 1}), 0.01)
	assert.True(t, errors.Is(err, dynamo.ErrSingularMatrix), "got %v", err)

	_, err = NewControlAffinePlantInversionFeedforward(2, 1, func(x, _ *mat.VecDense) *mat.VecDense {
		return dynamo.Vec(x.AtVec(1), 0)
	}, 0.01)
	assert.True(t, errors.Is(err, dynamo.ErrSingularMatrix), "got %v", err)
}

func TestLinearFeedforward_InvertsPlant(t *testing.T) {
	a, b := doubleIntegrator()
	sys, err := system.NewLinearSystem(a, b, dynamo.Eye(2), mat.NewDense(2, 1, nil), nil, nil)
	require.NoError(t, err)

	dt := 0.02
	ff, err := NewLinearPlantInversionFeedforward(sys, dt)
	require.NoError(t, err)

	r := dynamo.Vec(0.5, -1)
	nextR := sys.CalculateX(r, dynamo.Vec(3), dt)

	uff, err := ff.Calculate(r, nextR)
	require.NoError(t, err)
	assert.InDelta(t, 3, uff.AtVec(0), 1e-9)
	assert.True(t, mat.EqualApprox(nextR, ff.R(), 1e-15))

	// A reference the plant cannot follow exactly still gets the
	// least-squares input.
	uff, err = ff.CalculateStateOnly(dynamo.Vec(10, nextR.AtVec(1)))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(uff.AtVec(0)))

	ff.Reset(dynamo.Zeros(2))
	assert.Equal(t, 0.0, ff.Uff().AtVec(0))
}

func TestFeedforward_DimensionChecks(t *testing.T) {
	ff, err := NewControlAffinePlantInversionFeedforward(2, 1, doubleIntegratorDynamics, 0.02)
	require.NoError(t, err)
	_, err = ff.Calculate(dynamo.Vec(0), dynamo.Vec(0, 0))
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))

	_, err = NewControlAffinePlantInversionFeedforward(2, 1, doubleIntegratorDynamics, 0)
	assert.True(t, errors.Is(err, dynamo.ErrNonPositiveDt))
}
