package estimator

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/integrators"
	"github.com/san-kum/dynctl/internal/jacobian"
	"github.com/san-kum/dynctl/internal/riccati"
	"github.com/san-kum/dynctl/internal/system"
)

// ExtendedKalmanFilter linearizes f and h about the current estimate on
// every step. The covariance update uses the Joseph form.
type ExtendedKalmanFilter struct {
	states, inputs, outputs int

	f dynamo.Dynamics
	h dynamo.Measurement

	residual dynamo.ResidualFunc
	add      dynamo.AddFunc

	contQ, contR *mat.Dense
	dt           float64

	xHat  *mat.VecDense
	p     *mat.Dense
	initP *mat.Dense
}

func NewExtendedKalmanFilter(
	states, inputs, outputs int,
	f dynamo.Dynamics, h dynamo.Measurement,
	stateStdDevs, measStdDevs []float64,
	dt float64,
	opts ...Option,
) (*ExtendedKalmanFilter, error) {
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

	ekf := &ExtendedKalmanFilter{
		states:   states,
		inputs:   inputs,
		outputs:  outputs,
		f:        f,
		h:        h,
		residual: o.measResidual,
		add:      o.stateAdd,
		contQ:    dynamo.MakeCovMatrix(stateStdDevs...),
		contR:    dynamo.MakeCovMatrix(measStdDevs...),
		dt:       dt,
		xHat:     mat.NewVecDense(states, nil),
	}

	x0 := mat.NewVecDense(states, nil)
	u0 := mat.NewVecDense(inputs, nil)
	contA := jacobian.NumericalJacobianX(states, f, x0, u0)
	c := jacobian.NumericalJacobianX(outputs, h, x0, u0)
	discA, discQ := system.DiscretizeAQ(contA, ekf.contQ, dt)
	discR := system.DiscretizeR(ekf.contR, dt)

	ekf.initP = mat.NewDense(states, states, nil)
	if outputs <= states && riccati.IsDetectable(discA, c) {
		p, err := riccati.DARE(discA.T(), c.T(), discQ, discR)
		if err != nil {
			log.Debug("ekf initial covariance falls back to zero", "err", err)
		} else {
			ekf.initP = p
		}
	}
	ekf.p = mat.DenseCopyOf(ekf.initP)
	return ekf, nil
}

func (ekf *ExtendedKalmanFilter) Predict(u *mat.VecDense, dt float64) error {
	if dt <= 0 {
		return errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if err := dynamo.CheckLen("u", u, ekf.inputs); err != nil {
		return err
	}

	contA := jacobian.NumericalJacobianX(ekf.states, ekf.f, ekf.xHat, u)
	discA, discQ := system.DiscretizeAQ(contA, ekf.contQ, dt)

	x := integrators.RK4(ekf.f, ekf.xHat, u, dt)
	if !dynamo.IsValid(x) {
		return dynamo.ErrInvalidState
	}

	var p mat.Dense
	p.Product(discA, ekf.p, discA.T())
	p.Add(&p, discQ)
	dynamo.Symmetrize(&p)

	ekf.xHat = x
	ekf.p = &p
	ekf.dt = dt
	return nil
}

func (ekf *ExtendedKalmanFilter) Correct(u, y *mat.VecDense) error {
	return ekf.CorrectWith(u, y, ekf.h, ekf.contR, ekf.residual, ekf.add)
}

// CorrectWith corrects against a measurement model other than the one the
// filter was built with. r is the continuous measurement covariance; nil
// residual or add fall back to plain subtraction and addition.
func (ekf *ExtendedKalmanFilter) CorrectWith(
	u, y *mat.VecDense,
	h dynamo.Measurement,
	r *mat.Dense,
	residual dynamo.ResidualFunc,
	add dynamo.AddFunc,
) error {
	rows := y.Len()
	if err := dynamo.CheckLen("u", u, ekf.inputs); err != nil {
		return err
	}
	if err := dynamo.CheckDims("R", r, rows, rows); err != nil {
		return err
	}
	if residual == nil {
		residual = dynamo.Subtract
	}
	if add == nil {
		add = dynamo.Add
	}

	c := jacobian.NumericalJacobianX(rows, h, ekf.xHat, u)
	discR := system.DiscretizeR(r, ekf.dt)

	// S = CPCᵀ + R
	var s mat.Dense
	s.Product(c, ekf.p, c.T())
	s.Add(&s, discR)

	// K = PCᵀS⁻¹, solved as Kᵀ = Sᵀ \ (CPᵀ).
	var cp mat.Dense
	cp.Mul(c, ekf.p.T())
	kT, err := dynamo.Solve(s.T(), &cp)
	if err != nil {
		return errors.Wrap(err, "ekf gain")
	}
	k := kT.T()

	var dx mat.VecDense
	dx.MulVec(k, residual(y, h(ekf.xHat, u)))
	x := add(ekf.xHat, &dx)
	if !dynamo.IsValid(x) {
		return dynamo.ErrInvalidState
	}

	// P = (I − KC)P(I − KC)ᵀ + KRKᵀ
	var ikc, p, krk mat.Dense
	ikc.Mul(k, c)
	ikc.Sub(dynamo.Eye(ekf.states), &ikc)
	p.Product(&ikc, ekf.p, ikc.T())
	krk.Product(k, discR, k.T())
	p.Add(&p, &krk)
	dynamo.Symmetrize(&p)

	ekf.xHat = x
	ekf.p = &p
	return nil
}

func (ekf *ExtendedKalmanFilter) Xhat() *mat.VecDense        { return dynamo.CloneVec(ekf.xHat) }
func (ekf *ExtendedKalmanFilter) XhatAt(i int) float64       { return ekf.xHat.AtVec(i) }
func (ekf *ExtendedKalmanFilter) SetXhat(x *mat.VecDense)    { ekf.xHat = dynamo.CloneVec(x) }
func (ekf *ExtendedKalmanFilter) SetXhatAt(i int, v float64) { ekf.xHat.SetVec(i, v) }

// Dt is the spacing of the last predict; corrections discretize R with it.
func (ekf *ExtendedKalmanFilter) Dt() float64      { return ekf.dt }
func (ekf *ExtendedKalmanFilter) SetDt(dt float64) { ekf.dt = dt }

func (ekf *ExtendedKalmanFilter) P() *mat.Dense     { return mat.DenseCopyOf(ekf.p) }
func (ekf *ExtendedKalmanFilter) SetP(p *mat.Dense) { ekf.p = mat.DenseCopyOf(p) }

func (ekf *ExtendedKalmanFilter) Reset() {
	ekf.xHat = mat.NewVecDense(ekf.states, nil)
	ekf.p = mat.DenseCopyOf(ekf.initP)
}
