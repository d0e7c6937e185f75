package estimator

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/riccati"
	"github.com/san-kum/dynctl/internal/system"
)

// KalmanFilter is a steady-state Kalman filter for a linear time-invariant
// plant. The gain is computed once from the DARE at construction.
type KalmanFilter struct {
	plant *system.LinearSystem

	k     *mat.Dense
	p     *mat.Dense
	initP *mat.Dense
	xHat  *mat.VecDense
}

func NewKalmanFilter(plant *system.LinearSystem, stateStdDevs, measStdDevs []float64, dt float64) (*KalmanFilter, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if err := checkStdDevs("state std devs", stateStdDevs, plant.States()); err != nil {
		return nil, err
	}
	if err := checkStdDevs("measurement std devs", measStdDevs, plant.Outputs()); err != nil {
		return nil, err
	}

	contQ := dynamo.MakeCovMatrix(stateStdDevs...)
	contR := dynamo.MakeCovMatrix(measStdDevs...)
	discA, discQ := system.DiscretizeAQ(plant.A(), contQ, dt)
	discR := system.DiscretizeR(contR, dt)
	c := plant.C()

	if !riccati.IsDetectable(discA, c) {
		return nil, notDetectable(discA, c)
	}

	p, err := riccati.DARE(discA.T(), c.T(), discQ, discR)
	if err != nil {
		return nil, errors.Wrap(err, "kalman filter")
	}

	// K = PCᵀ(CPCᵀ + R)⁻¹, solved as Kᵀ = Sᵀ \ (CPᵀ).
	var s, cp mat.Dense
	s.Product(c, p, c.T())
	s.Add(&s, discR)
	cp.Mul(c, p.T())
	kT, err := dynamo.Solve(s.T(), &cp)
	if err != nil {
		return nil, errors.Wrap(err, "kalman gain")
	}

	log.Debug("kalman filter gain", "states", plant.States(), "outputs", plant.Outputs())
	return &KalmanFilter{
		plant: plant,
		k:     mat.DenseCopyOf(kT.T()),
		p:     p,
		initP: mat.DenseCopyOf(p),
		xHat:  mat.NewVecDense(plant.States(), nil),
	}, nil
}

// K returns the steady-state gain.
func (kf *KalmanFilter) K() *mat.Dense { return mat.DenseCopyOf(kf.k) }

func (kf *KalmanFilter) KAt(i, j int) float64 { return kf.k.At(i, j) }

func (kf *KalmanFilter) Predict(u *mat.VecDense, dt float64) error {
	if dt <= 0 {
		return errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if err := dynamo.CheckLen("u", u, kf.plant.Inputs()); err != nil {
		return err
	}
	kf.xHat = kf.plant.CalculateX(kf.xHat, u, dt)
	return nil
}

// Correct applies xHat += K(y − Cx − Du).
func (kf *KalmanFilter) Correct(u, y *mat.VecDense) error {
	if err := dynamo.CheckLen("y", y, kf.plant.Outputs()); err != nil {
		return err
	}
	if err := dynamo.CheckLen("u", u, kf.plant.Inputs()); err != nil {
		return err
	}
	innovation := dynamo.Subtract(y, kf.plant.CalculateY(kf.xHat, u))
	var dx mat.VecDense
	dx.MulVec(kf.k, innovation)

	next := dynamo.Add(kf.xHat, &dx)
	if !dynamo.IsValid(next) {
		return dynamo.ErrInvalidState
	}
	kf.xHat = next
	return nil
}

func (kf *KalmanFilter) Xhat() *mat.VecDense        { return dynamo.CloneVec(kf.xHat) }
func (kf *KalmanFilter) XhatAt(i int) float64       { return kf.xHat.AtVec(i) }
func (kf *KalmanFilter) SetXhat(x *mat.VecDense)    { kf.xHat = dynamo.CloneVec(x) }
func (kf *KalmanFilter) SetXhatAt(i int, v float64) { kf.xHat.SetVec(i, v) }

// P returns the steady-state error covariance.
func (kf *KalmanFilter) P() *mat.Dense { return mat.DenseCopyOf(kf.p) }

// SetP is accepted for interface compatibility; the gain stays fixed.
func (kf *KalmanFilter) SetP(p *mat.Dense) { kf.p = mat.DenseCopyOf(p) }

func (kf *KalmanFilter) Reset() {
	kf.xHat = mat.NewVecDense(kf.plant.States(), nil)
	kf.p = mat.DenseCopyOf(kf.initP)
}

// detectabilityError matches both ErrNotDetectable and the underlying
// riccati.ErrACNotDetectable.
type detectabilityError struct {
	cause *riccati.Error
}

func notDetectable(a, c mat.Matrix) error {
	return &detectabilityError{cause: &riccati.Error{
		Kind:     riccati.ACNotDetectable,
		Matrices: []riccati.Named{{Name: "A", M: a}, {Name: "C", M: c}},
	}}
}

func (e *detectabilityError) Error() string {
	return ErrNotDetectable.Error() + ": " + e.cause.Error()
}

func (e *detectabilityError) Unwrap() error { return e.cause }

func (e *detectabilityError) Is(target error) bool { return target == ErrNotDetectable }
