package estimator

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// gaussian returns a zero-mean sampler with the given standard deviations.
func gaussian(t *testing.T, seed uint64, stdDevs ...float64) func() *mat.VecDense {
	t.Helper()
	n := len(stdDevs)
	sigma := mat.NewSymDense(n, nil)
	for i, s := range stdDevs {
		sigma.SetSym(i, i, s*s)
	}
	dist, ok := distmv.NewNormal(make([]float64, n), sigma, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	require.True(t, ok)
	return func() *mat.VecDense {
		return mat.NewVecDense(n, dist.Rand(nil))
	}
}

// pendulum is a damped pendulum driven by torque u; states [θ, ω].
func pendulum(x, u *mat.VecDense) *mat.VecDense {
	return dynamo.Vec(
		x.AtVec(1),
		-math.Sin(x.AtVec(0))-0.1*x.AtVec(1)+u.AtVec(0),
	)
}

func angleOnly(x, u *mat.VecDense) *mat.VecDense {
	return dynamo.Vec(x.AtVec(0))
}

func assertPSD(t *testing.T, p *mat.Dense) {
	t.Helper()
	require.True(t, dynamo.IsSymmetric(p, 1e-9), "P not symmetric: %v", mat.Formatted(p))
	require.True(t, dynamo.IsPositiveSemidefinite(p, 1e-9), "P not PSD: %v", mat.Formatted(p))
}
