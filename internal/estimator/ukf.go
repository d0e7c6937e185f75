package estimator

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/integrators"
	"github.com/san-kum/dynctl/internal/jacobian"
	"github.com/san-kum/dynctl/internal/system"
)

// UnscentedKalmanFilter is a square-root unscented Kalman filter. It keeps
// the upper-triangular factor S with P = SᵀS instead of P itself.
type UnscentedKalmanFilter struct {
	states, inputs, outputs int

	f dynamo.Dynamics
	h dynamo.Measurement

	opts options
	pts  *MerweScaledSigmaPoints

	contQ, contR *mat.Dense
	dt           float64

	xHat *mat.VecDense
	s    *mat.TriDense
}

func NewUnscentedKalmanFilter(
	states, inputs, outputs int,
	f dynamo.Dynamics, h dynamo.Measurement,
	stateStdDevs, measStdDevs []float64,
	dt float64,
	opts ...Option,
) (*UnscentedKalmanFilter, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if err := checkStdDevs("state std devs", stateStdDevs, states); err != nil {
		return nil, err
	}
	if err := checkStdDevs("measurement std devs", measStdDevs, outputs); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	pts := DefaultMerweScaledSigmaPoints(states)
	if o.kappa != nil {
		pts = NewMerweScaledSigmaPoints(states, o.alpha, o.beta, *o.kappa)
	}

	ukf := &UnscentedKalmanFilter{
		states:  states,
		inputs:  inputs,
		outputs: outputs,
		f:       f,
		h:       h,
		opts:    o,
		pts:     pts,
		contQ:   dynamo.MakeCovMatrix(stateStdDevs...),
		contR:   dynamo.MakeCovMatrix(measStdDevs...),
		dt:      dt,
	}
	ukf.Reset()
	return ukf, nil
}

func (ukf *UnscentedKalmanFilter) SigmaPoints() *MerweScaledSigmaPoints { return ukf.pts }

func (ukf *UnscentedKalmanFilter) Predict(u *mat.VecDense, dt float64) error {
	if dt <= 0 {
		return errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if err := dynamo.CheckLen("u", u, ukf.inputs); err != nil {
		return err
	}

	// The Jacobian only shapes the discrete process noise.
	contA := jacobian.NumericalJacobianX(ukf.states, ukf.f, ukf.xHat, u)
	_, discQ := system.DiscretizeAQTaylor(contA, ukf.contQ, dt)
	sqrtQ := upperFactor(discQ)

	sigmas := ukf.pts.SquareRootSigmaPoints(ukf.xHat, ukf.s)
	count := ukf.pts.NumSigmas()
	propagated := mat.NewDense(ukf.states, count, nil)
	for i := 0; i < count; i++ {
		x := integrators.RK4(ukf.f, mat.VecDenseCopyOf(sigmas.ColView(i)), u, dt)
		if !dynamo.IsValid(x) {
			return dynamo.ErrInvalidState
		}
		propagated.SetCol(i, dynamo.RawCopy(x))
	}

	xHat, s, err := squareRootUnscentedTransform(
		propagated, ukf.pts.wm, ukf.pts.wc, ukf.opts.stateMean, ukf.opts.stateResidual, sqrtQ)
	if err != nil {
		log.Warn("ukf predict rejected", "err", err)
		return err
	}

	ukf.xHat = xHat
	ukf.s = s
	ukf.dt = dt
	return nil
}

func (ukf *UnscentedKalmanFilter) Correct(u, y *mat.VecDense) error {
	return ukf.CorrectWith(u, y, ukf.h, ukf.contR, ukf.opts.measMean, ukf.opts.measResidual, ukf.opts.stateResidual, ukf.opts.stateAdd)
}

// CorrectWith corrects against a custom measurement model with continuous
// covariance r. Nil functions fall back to the plain vector operations.
// If the final covariance downdate fails, the estimate is left unchanged and
// ErrDowndateFailed is returned.
func (ukf *UnscentedKalmanFilter) CorrectWith(
	u, y *mat.VecDense,
	h dynamo.Measurement,
	r *mat.Dense,
	measMean dynamo.MeanFunc,
	measResidual dynamo.ResidualFunc,
	stateResidual dynamo.ResidualFunc,
	stateAdd dynamo.AddFunc,
) error {
	rows := y.Len()
	if err := dynamo.CheckLen("u", u, ukf.inputs); err != nil {
		return err
	}
	if err := dynamo.CheckDims("R", r, rows, rows); err != nil {
		return err
	}
	if measMean == nil {
		measMean = dynamo.WeightedMean
	}
	if measResidual == nil {
		measResidual = dynamo.Subtract
	}
	if stateResidual == nil {
		stateResidual = dynamo.Subtract
	}
	if stateAdd == nil {
		stateAdd = dynamo.Add
	}

	sqrtR := upperFactor(system.DiscretizeR(r, ukf.dt))

	count := ukf.pts.NumSigmas()
	sigmas := ukf.pts.SquareRootSigmaPoints(ukf.xHat, ukf.s)
	sigmasH := mat.NewDense(rows, count, nil)
	for i := 0; i < count; i++ {
		yi := h(mat.VecDenseCopyOf(sigmas.ColView(i)), u)
		if err := dynamo.CheckLen("h(x, u)", yi, rows); err != nil {
			return err
		}
		sigmasH.SetCol(i, dynamo.RawCopy(yi))
	}

	yHat, sy, err := squareRootUnscentedTransform(
		sigmasH, ukf.pts.wm, ukf.pts.wc, measMean, measResidual, sqrtR)
	if err != nil {
		log.Warn("ukf measurement transform rejected", "err", err)
		return err
	}

	// Pxy = Σ Wcᵢ(χᵢ − x̂)(Yᵢ − ŷ)ᵀ
	pxy := mat.NewDense(ukf.states, rows, nil)
	for i := 0; i < count; i++ {
		dx := stateResidual(mat.VecDenseCopyOf(sigmas.ColView(i)), ukf.xHat)
		dy := measResidual(mat.VecDenseCopyOf(sigmasH.ColView(i)), yHat)
		var outer mat.Dense
		outer.Outer(ukf.pts.WcAt(i), dx, dy)
		pxy.Add(pxy, &outer)
	}

	// K = (Sy \ (Syᵀ \ Pxyᵀ))ᵀ
	var tmp, kT mat.Dense
	if err := solveTri(&tmp, sy, true, pxy.T()); err != nil {
		return err
	}
	if err := solveTri(&kT, sy, false, &tmp); err != nil {
		return err
	}
	k := kT.T()

	var dx mat.VecDense
	dx.MulVec(k, measResidual(y, yHat))
	xHat := stateAdd(ukf.xHat, &dx)
	if !dynamo.IsValid(xHat) {
		return dynamo.ErrInvalidState
	}

	// U = K·Syᵀ; S ← cholupdate(S, U[:, j], −1) for each column.
	var uMat mat.Dense
	uMat.Mul(k, sy.T())
	s := ukf.s
	for j := 0; j < rows; j++ {
		s, err = rankOneUpdate(s, mat.VecDenseCopyOf(uMat.ColView(j)), -1)
		if err != nil {
			log.Warn("ukf correction rejected", "column", j, "err", err)
			return err
		}
	}

	ukf.xHat = xHat
	ukf.s = s
	return nil
}

// squareRootUnscentedTransform recombines sigma points into a mean and an
// upper-triangular covariance factor, adding the noise factor sqrtR.
func squareRootUnscentedTransform(
	sigmas *mat.Dense,
	wm, wc *mat.VecDense,
	mean dynamo.MeanFunc,
	residual dynamo.ResidualFunc,
	sqrtR *mat.TriDense,
) (*mat.VecDense, *mat.TriDense, error) {
	dim, count := sigmas.Dims()
	x := mean(sigmas, wm)

	// Sbar = [√Wc₁(χ₁ − x̄) … √Wc₁(χ₂ₙ − x̄), sqrtRᵀ]; QR of Sbarᵀ gives S.
	w1 := math.Sqrt(wc.AtVec(1))
	sbarT := mat.NewDense(count-1+dim, dim, nil)
	for i := 1; i < count; i++ {
		d := residual(mat.VecDenseCopyOf(sigmas.ColView(i)), x)
		for j := 0; j < dim; j++ {
			sbarT.Set(i-1, j, w1*d.AtVec(j))
		}
	}
	dynamo.SetBlock(sbarT, count-1, 0, sqrtR)

	s := qrUpper(sbarT, dim)
	d0 := residual(mat.VecDenseCopyOf(sigmas.ColView(0)), x)
	s, err := rankOneUpdate(s, d0, wc.AtVec(0))
	if err != nil {
		return nil, nil, err
	}
	return x, s, nil
}

// rankOneUpdate returns the factor of SᵀS + alpha·vvᵀ. A zero v is a no-op.
func rankOneUpdate(s *mat.TriDense, v *mat.VecDense, alpha float64) (*mat.TriDense, error) {
	if alpha == 0 || mat.Norm(v, 2) == 0 {
		return s, nil
	}
	n, _ := s.Triangle()
	if alpha < 0 {
		for i := 0; i < n; i++ {
			if s.At(i, i) == 0 {
				return nil, errors.Wrapf(ErrDowndateFailed, "factor is singular at %d", i)
			}
		}
	}

	var chol mat.Cholesky
	chol.SetFromU(s)
	var ok bool
	if err := mat.Maybe(func() { ok = chol.SymRankOne(&chol, alpha, v) }); err != nil {
		return nil, errors.Wrap(ErrDowndateFailed, err.Error())
	}
	if !ok {
		return nil, ErrDowndateFailed
	}

	var out mat.TriDense
	chol.UTo(&out)
	return &out, nil
}

func solveTri(dst *mat.Dense, t *mat.TriDense, trans bool, b mat.Matrix) error {
	err := t.SolveTo(dst, trans, b)
	if err == nil {
		return nil
	}
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return nil
	}
	return errors.Wrap(dynamo.ErrSingularMatrix, err.Error())
}

func (ukf *UnscentedKalmanFilter) Xhat() *mat.VecDense        { return dynamo.CloneVec(ukf.xHat) }
func (ukf *UnscentedKalmanFilter) XhatAt(i int) float64       { return ukf.xHat.AtVec(i) }
func (ukf *UnscentedKalmanFilter) SetXhat(x *mat.VecDense)    { ukf.xHat = dynamo.CloneVec(x) }
func (ukf *UnscentedKalmanFilter) SetXhatAt(i int, v float64) { ukf.xHat.SetVec(i, v) }

// Dt is the spacing of the last predict; corrections discretize R with it.
func (ukf *UnscentedKalmanFilter) Dt() float64      { return ukf.dt }
func (ukf *UnscentedKalmanFilter) SetDt(dt float64) { ukf.dt = dt }

// P returns SᵀS.
func (ukf *UnscentedKalmanFilter) P() *mat.Dense {
	var p mat.Dense
	p.Mul(ukf.s.T(), ukf.s)
	return &p
}

// SetP replaces the covariance, refactoring it into S.
func (ukf *UnscentedKalmanFilter) SetP(p *mat.Dense) { ukf.s = upperFactor(p) }

// S returns the upper-triangular square root of the covariance.
func (ukf *UnscentedKalmanFilter) S() *mat.TriDense {
	out := mat.NewTriDense(ukf.states, mat.Upper, nil)
	out.Copy(ukf.s)
	return out
}

func (ukf *UnscentedKalmanFilter) SetS(s mat.Triangular) {
	out := mat.NewTriDense(ukf.states, mat.Upper, nil)
	out.Copy(s)
	ukf.s = out
}

func (ukf *UnscentedKalmanFilter) Reset() {
	ukf.xHat = mat.NewVecDense(ukf.states, nil)
	ukf.s = mat.NewTriDense(ukf.states, mat.Upper, nil)
}
