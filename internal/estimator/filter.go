package estimator

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/logging"
)

var (
	ErrNotDetectable    = errors.New("estimator: (A, C) is not detectable")
	ErrDowndateFailed   = errors.New("estimator: cholesky downdate would make the covariance indefinite")
	ErrStaleMeasurement = errors.New("estimator: measurement is older than the buffered history")
)

var log = logging.GetLog("estimator")

// Filter is a state observer that alternates Predict and Correct.
type Filter interface {
	Predict(u *mat.VecDense, dt float64) error
	Correct(u, y *mat.VecDense) error

	Xhat() *mat.VecDense
	XhatAt(i int) float64
	SetXhat(x *mat.VecDense)
	SetXhatAt(i int, v float64)

	P() *mat.Dense
	SetP(p *mat.Dense)

	Reset()
}

type options struct {
	stateMean     dynamo.MeanFunc
	measMean      dynamo.MeanFunc
	stateResidual dynamo.ResidualFunc
	measResidual  dynamo.ResidualFunc
	stateAdd      dynamo.AddFunc

	alpha, beta float64
	kappa       *int
}

func defaultOptions() options {
	return options{
		stateMean:     dynamo.WeightedMean,
		measMean:      dynamo.WeightedMean,
		stateResidual: dynamo.Subtract,
		measResidual:  dynamo.Subtract,
		stateAdd:      dynamo.Add,
		alpha:         1e-3,
		beta:          2,
	}
}

// Option customizes how a filter combines vectors in its state and
// measurement spaces.
type Option func(*options)

// WithStateMean sets how the UKF averages state sigma points.
func WithStateMean(fn dynamo.MeanFunc) Option {
	return func(o *options) { o.stateMean = fn }
}

// WithMeasurementMean sets how the UKF averages measurement sigma points.
func WithMeasurementMean(fn dynamo.MeanFunc) Option {
	return func(o *options) { o.measMean = fn }
}

func WithStateResidual(fn dynamo.ResidualFunc) Option {
	return func(o *options) { o.stateResidual = fn }
}

func WithMeasurementResidual(fn dynamo.ResidualFunc) Option {
	return func(o *options) { o.measResidual = fn }
}

func WithStateAdd(fn dynamo.AddFunc) Option {
	return func(o *options) { o.stateAdd = fn }
}

// WithSigmaPoints overrides the Merwe scaling parameters of the UKF.
func WithSigmaPoints(alpha, beta float64, kappa int) Option {
	return func(o *options) {
		o.alpha, o.beta = alpha, beta
		o.kappa = &kappa
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AngleResidual returns a residual that wraps the listed elements to [-π, π).
func AngleResidual(angleIndices ...int) dynamo.ResidualFunc {
	return func(a, b *mat.VecDense) *mat.VecDense {
		out := dynamo.Subtract(a, b)
		for _, i := range angleIndices {
			out.SetVec(i, dynamo.AngleModulus(out.AtVec(i)))
		}
		return out
	}
}

// AngleAdd returns an addition that wraps the listed elements to [-π, π).
func AngleAdd(angleIndices ...int) dynamo.AddFunc {
	return func(a, b *mat.VecDense) *mat.VecDense {
		out := dynamo.Add(a, b)
		for _, i := range angleIndices {
			out.SetVec(i, dynamo.AngleModulus(out.AtVec(i)))
		}
		return out
	}
}

// AngleMean returns a weighted mean that averages the listed elements on
// the unit circle.
func AngleMean(angleIndices ...int) dynamo.MeanFunc {
	return func(sigmas *mat.Dense, wm *mat.VecDense) *mat.VecDense {
		out := dynamo.WeightedMean(sigmas, wm)
		_, cols := sigmas.Dims()
		for _, i := range angleIndices {
			var sumSin, sumCos float64
			for j := 0; j < cols; j++ {
				sumSin += wm.AtVec(j) * math.Sin(sigmas.At(i, j))
				sumCos += wm.AtVec(j) * math.Cos(sigmas.At(i, j))
			}
			out.SetVec(i, math.Atan2(sumSin, sumCos))
		}
		return out
	}
}

func checkStdDevs(name string, stdDevs []float64, n int) error {
	if len(stdDevs) != n {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "%s has %d elements, want %d", name, len(stdDevs), n)
	}
	for i, s := range stdDevs {
		if s < 0 || math.IsNaN(s) {
			return errors.Wrapf(dynamo.ErrInvalidSystem, "%s[%d] = %g", name, i, s)
		}
	}
	return nil
}

// upperFactor returns an upper-triangular U with UᵀU = m for a symmetric
// positive semidefinite m. Singular inputs go through an eigendecomposition
// followed by QR.
func upperFactor(m mat.Matrix) *mat.TriDense {
	n, _ := m.Dims()
	var chol mat.Cholesky
	if chol.Factorize(dynamo.SymOf(m)) {
		var u mat.TriDense
		chol.UTo(&u)
		return &u
	}

	var es mat.EigenSym
	if !es.Factorize(dynamo.SymOf(m), true) {
		return mat.NewTriDense(n, mat.Upper, nil)
	}
	vals := es.Values(nil)
	var v mat.Dense
	es.VectorsTo(&v)

	// C = √Λ·Vᵀ has CᵀC = m.
	c := mat.NewDense(n, n, nil)
	for i, lambda := range vals {
		if lambda <= 0 {
			continue
		}
		s := math.Sqrt(lambda)
		for j := 0; j < n; j++ {
			c.Set(i, j, s*v.At(j, i))
		}
	}
	return qrUpper(c, n)
}

// qrUpper returns the n×n upper factor R of the QR decomposition of a tall
// matrix, with rows negated so that the diagonal is non-negative.
func qrUpper(tall mat.Matrix, n int) *mat.TriDense {
	var qr mat.QR
	qr.Factorize(tall)
	var r mat.Dense
	qr.RTo(&r)

	out := mat.NewTriDense(n, mat.Upper, nil)
	for i := 0; i < n; i++ {
		sign := 1.0
		if r.At(i, i) < 0 {
			sign = -1
		}
		for j := i; j < n; j++ {
			out.SetTri(i, j, sign*r.At(i, j))
		}
	}
	return out
}
