package drive

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/control"
	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/jacobian"
	"github.com/san-kum/dynctl/internal/system"
)

// Linearization velocities for the two gain schedules. The low one stays
// off zero so the lateral error remains controllable.
const (
	lowLinearizationVelocity  = 1e-4
	highLinearizationVelocity = 1.0
)

// LTVController tracks a 5-state reference [x, y, θ, vl, vr] with a gain
// blended between two LQR designs by the square root of the current speed,
// plus a plant-inversion feedforward.
type LTVController struct {
	model  *Model
	k0, k1 *mat.Dense
	ff     *control.ControlAffinePlantInversionFeedforward

	tolerance *mat.VecDense
	err       *mat.VecDense
	r         *mat.VecDense
	u         *mat.VecDense
}

// NewLTVController designs both gain schedules. qElms has one tolerance per
// controller state and rElms one per input (Bryson's rule).
func NewLTVController(plant *system.LinearSystem, kinematics Kinematics, qElms, rElms []float64, dt float64) (*LTVController, error) {
	if len(qElms) != ControllerStates {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "Q tolerances: got %d, want %d", len(qElms), ControllerStates)
	}
	if len(rElms) != NumInputs {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "R tolerances: got %d, want %d", len(rElms), NumInputs)
	}
	model, err := NewModel(plant, kinematics)
	if err != nil {
		return nil, err
	}

	q := dynamo.MakeCostMatrix(qElms...)
	r := dynamo.MakeCostMatrix(rElms...)
	k0, err := linearizedGain(model, q, r, lowLinearizationVelocity, dt)
	if err != nil {
		return nil, errors.Wrap(err, "low-speed gain")
	}
	k1, err := linearizedGain(model, q, r, highLinearizationVelocity, dt)
	if err != nil {
		return nil, errors.Wrap(err, "unit-speed gain")
	}

	ff, err := control.NewControlAffinePlantInversionFeedforward(ControllerStates, NumInputs, model.ControllerDynamics, dt)
	if err != nil {
		return nil, errors.Wrap(err, "ltv feedforward")
	}

	c := &LTVController{
		model:     model,
		k0:        k0,
		k1:        k1,
		ff:        ff,
		tolerance: dynamo.Vec(0.0625, 0.125, 2.0, 0.95, 0.95),
		err:       mat.NewVecDense(ControllerStates, nil),
		r:         mat.NewVecDense(ControllerStates, nil),
		u:         mat.NewVecDense(NumInputs, nil),
	}
	log.Debug("ltv gains", "k0", mat.Formatted(k0, mat.FormatMATLAB()), "k1", mat.Formatted(k1, mat.FormatMATLAB()))
	return c, nil
}

func linearizedGain(model *Model, q, r *mat.Dense, velocity, dt float64) (*mat.Dense, error) {
	x := dynamo.Vec(0, 0, 0, velocity, velocity)
	u := dynamo.Zeros(NumInputs)
	a := jacobian.NumericalJacobianX(ControllerStates, model.ControllerDynamics, x, u)
	b := jacobian.NumericalJacobianU(ControllerStates, model.ControllerDynamics, x, u)
	lqr, err := control.NewLQRFromMatrices(a, b, q, r, dt)
	if err != nil {
		return nil, err
	}
	return lqr.K(), nil
}

// K returns the blended gain at the given mean wheel velocity. The second
// row mirrors the first so left and right respond symmetrically.
func (c *LTVController) K(velocity float64) *mat.Dense {
	kx := c.k0.At(0, 0)
	ky0 := c.k0.At(0, 1)
	kvpos0 := c.k0.At(0, 3)
	kvneg0 := c.k0.At(1, 3)
	ky1 := c.k1.At(0, 1)
	ktheta1 := c.k1.At(0, 2)
	kvpos1 := c.k1.At(0, 3)
	kvneg1 := c.k1.At(1, 3)

	sqrtAbsV := math.Sqrt(math.Abs(velocity))

	k := mat.NewDense(NumInputs, ControllerStates, nil)
	k.Set(0, 0, kx)
	k.Set(0, 1, (ky0+(ky1-ky0)*sqrtAbsV)*dynamo.Sign(velocity))
	k.Set(0, 2, ktheta1*sqrtAbsV)
	k.Set(0, 3, kvpos0+(kvpos1-kvpos0)*sqrtAbsV)
	k.Set(0, 4, kvneg0+(kvneg1-kvneg0)*sqrtAbsV)
	k.Set(1, 0, kx)
	k.Set(1, 1, -k.At(0, 1))
	k.Set(1, 2, -k.At(0, 2))
	k.Set(1, 3, k.At(0, 4))
	k.Set(1, 4, k.At(0, 3))
	return k
}

func (c *LTVController) K0() *mat.Dense { return mat.DenseCopyOf(c.k0) }
func (c *LTVController) K1() *mat.Dense { return mat.DenseCopyOf(c.k1) }

// Calculate returns the clamped input that moves x toward nextR. x may be a
// full estimator state; only the first five entries are used. The pose
// error is rotated into the robot frame before the gain is applied.
func (c *LTVController) Calculate(x, r, nextR mat.Vector) (*mat.VecDense, error) {
	if x.Len() < ControllerStates {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "state has %d elements, want at least %d", x.Len(), ControllerStates)
	}
	if err := dynamo.CheckLen("r", r, ControllerStates); err != nil {
		return nil, err
	}
	x5 := ControllerState(x)

	robotErr := PoseFromVec(r).RelativeTo(PoseFromVec(x5))
	c.err.SetVec(StateX, robotErr.X)
	c.err.SetVec(StateY, robotErr.Y)
	c.err.SetVec(StateHeading, robotErr.Heading)
	c.err.SetVec(StateLeftVelocity, r.AtVec(StateLeftVelocity)-x5.AtVec(StateLeftVelocity))
	c.err.SetVec(StateRightVelocity, r.AtVec(StateRightVelocity)-x5.AtVec(StateRightVelocity))

	uff, err := c.ff.Calculate(r, nextR)
	if err != nil {
		return nil, err
	}

	v := (x5.AtVec(StateLeftVelocity) + x5.AtVec(StateRightVelocity)) / 2
	var u mat.VecDense
	u.MulVec(c.K(v), c.err)
	u.AddVec(&u, uff)

	c.r.CopyVec(r)
	c.u = c.model.plant.ClampInput(&u)
	return dynamo.CloneVec(c.u), nil
}

// SetTolerance sets the per-state error bounds AtReference checks against.
func (c *LTVController) SetTolerance(pose Pose, velocity float64) {
	c.tolerance = dynamo.Vec(pose.X, pose.Y, pose.Heading, velocity, velocity)
}

// AtReference reports whether every component of the last error is within
// tolerance.
func (c *LTVController) AtReference() bool {
	for i := 0; i < ControllerStates; i++ {
		if math.Abs(c.err.AtVec(i)) >= c.tolerance.AtVec(i) {
			return false
		}
	}
	return true
}

func (c *LTVController) StateError() *mat.VecDense { return dynamo.CloneVec(c.err) }
func (c *LTVController) U() *mat.VecDense          { return dynamo.CloneVec(c.u) }
func (c *LTVController) R() *mat.VecDense          { return dynamo.CloneVec(c.r) }

func (c *LTVController) Reset() {
	c.err.Zero()
	c.r.Zero()
	c.u.Zero()
	c.ff.Reset(c.r)
}
