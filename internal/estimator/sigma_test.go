package estimator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

func TestMerweScaledSigmaPoints_Defaults(t *testing.T) {
	pts := DefaultMerweScaledSigmaPoints(2)
	assert.Equal(t, 5, pts.NumSigmas())

	lambda := 1e-6*(2+1) - 2
	assert.InDelta(t, lambda, pts.Lambda(), 1e-15)
	assert.InDelta(t, lambda/(2+lambda), pts.WmAt(0), 1e-6)
	assert.InDelta(t, lambda/(2+lambda)+(1-1e-6+2), pts.WcAt(0), 1e-6)
	for i := 1; i < 5; i++ {
		assert.InDelta(t, 0.5/(2+lambda), pts.WmAt(i), 1e-6)
		assert.Equal(t, pts.WmAt(i), pts.WcAt(i))
	}
	assert.InDelta(t, 1.0, floats.Sum(dynamo.RawCopy(pts.Wm())), 1e-6)
}

func TestSquareRootSigmaPoints_Identity(t *testing.T) {
	pts := NewMerweScaledSigmaPoints(2, 1, 2, 1)
	eta := math.Sqrt(pts.Lambda() + 2)

	sigmas := pts.SquareRootSigmaPoints(dynamo.Zeros(2), dynamo.Eye(2))
	want := mat.NewDense(2, 5, []float64{
		0, eta, 0, -eta, 0,
		0, 0, eta, 0, -eta,
	})
	assert.True(t, mat.EqualApprox(sigmas, want, 1e-12), "sigmas %v", mat.Formatted(sigmas))
}

func TestSquareRootSigmaPoints_RecoverCovariance(t *testing.T) {
	pts := DefaultMerweScaledSigmaPoints(3)
	x := dynamo.Vec(1, -2, 0.5)
	s := mat.NewTriDense(3, mat.Upper, []float64{
		2, 0.5, -0.3,
		0, 1, 0.2,
		0, 0, 0.7,
	})
	sigmas := pts.SquareRootSigmaPoints(x, s)

	mean := dynamo.WeightedMean(sigmas, pts.Wm())
	assert.True(t, mat.EqualApprox(mean, x, 1e-8))

	cov := mat.NewDense(3, 3, nil)
	for i := 0; i < pts.NumSigmas(); i++ {
		d := dynamo.Subtract(mat.VecDenseCopyOf(sigmas.ColView(i)), x)
		var outer mat.Dense
		outer.Outer(pts.WcAt(i), d, d)
		cov.Add(cov, &outer)
	}
	var want mat.Dense
	want.Mul(s.T(), s)
	assert.True(t, mat.EqualApprox(cov, &want, 1e-6), "cov %v", mat.Formatted(cov))
}
