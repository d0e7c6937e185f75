package control

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/jacobian"
	"github.com/san-kum/dynctl/internal/system"
)

const rankTolerance = 1e-10

// ControlAffinePlantInversionFeedforward computes the input that drives a
// control-affine plant ẋ = f(x) + Bu from r to nextR over one step.
type ControlAffinePlantInversionFeedforward struct {
	states, inputs int
	dt             float64

	f dynamo.Dynamics
	b *mat.Dense

	r   *mat.VecDense
	uff *mat.VecDense
}

// NewControlAffinePlantInversionFeedforward recovers B as ∂f/∂u at the origin.
func NewControlAffinePlantInversionFeedforward(states, inputs int, f dynamo.Dynamics, dt float64) (*ControlAffinePlantInversionFeedforward, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	b := jacobian.NumericalJacobianU(states, f, mat.NewVecDense(states, nil), mat.NewVecDense(inputs, nil))
	return newControlAffine(states, inputs, f, b, dt)
}

// NewControlAffinePlantInversionFeedforwardWithB takes B directly for plants
// whose unforced dynamics f(x) are known separately.
func NewControlAffinePlantInversionFeedforwardWithB(states int, f func(x *mat.VecDense) *mat.VecDense, b *mat.Dense, dt float64) (*ControlAffinePlantInversionFeedforward, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	_, inputs := b.Dims()
	if err := dynamo.CheckDims("B", b, states, inputs); err != nil {
		return nil, err
	}
	wrapped := func(x, _ *mat.VecDense) *mat.VecDense { return f(x) }
	return newControlAffine(states, inputs, wrapped, mat.DenseCopyOf(b), dt)
}

func newControlAffine(states, inputs int, f dynamo.Dynamics, b *mat.Dense, dt float64) (*ControlAffinePlantInversionFeedforward, error) {
	if err := fullColumnRank(b); err != nil {
		return nil, err
	}
	return &ControlAffinePlantInversionFeedforward{
		states: states,
		inputs: inputs,
		dt:     dt,
		f:      f,
		b:      b,
		r:      mat.NewVecDense(states, nil),
		uff:    mat.NewVecDense(inputs, nil),
	}, nil
}

func (c *ControlAffinePlantInversionFeedforward) B() *mat.Dense      { return mat.DenseCopyOf(c.b) }
func (c *ControlAffinePlantInversionFeedforward) R() *mat.VecDense   { return dynamo.CloneVec(c.r) }
func (c *ControlAffinePlantInversionFeedforward) Uff() *mat.VecDense { return dynamo.CloneVec(c.uff) }
func (c *ControlAffinePlantInversionFeedforward) UffAt(i int) float64 {
	return c.uff.AtVec(i)
}

// Reset sets the stored reference and clears the last output.
func (c *ControlAffinePlantInversionFeedforward) Reset(r mat.Vector) {
	c.r.CopyVec(r)
	c.uff.Zero()
}

// Calculate solves B·uff = (nextR − r)/dt − f(r, 0) in the least-squares
// sense and stores nextR as the new reference.
func (c *ControlAffinePlantInversionFeedforward) Calculate(r, nextR mat.Vector) (*mat.VecDense, error) {
	if err := dynamo.CheckLen("r", r, c.states); err != nil {
		return nil, err
	}
	if err := dynamo.CheckLen("nextR", nextR, c.states); err != nil {
		return nil, err
	}
	cur := dynamo.CloneVec(r)
	var rhs mat.VecDense
	rhs.SubVec(nextR, cur)
	rhs.ScaleVec(1/c.dt, &rhs)
	rhs.SubVec(&rhs, c.f(cur, mat.NewVecDense(c.inputs, nil)))

	uff, err := leastSquares(c.b, &rhs)
	if err != nil {
		return nil, err
	}
	c.uff = uff
	c.r.CopyVec(nextR)
	return dynamo.CloneVec(uff), nil
}

// CalculateStateOnly uses the stored reference as r.
func (c *ControlAffinePlantInversionFeedforward) CalculateStateOnly(nextR mat.Vector) (*mat.VecDense, error) {
	return c.Calculate(dynamo.CloneVec(c.r), nextR)
}

// LinearPlantInversionFeedforward inverts the discretized plant:
// uff = Bd⁺(nextR − Ad·r).
type LinearPlantInversionFeedforward struct {
	ad, bd *mat.Dense

	r   *mat.VecDense
	uff *mat.VecDense
}

func NewLinearPlantInversionFeedforward(plant *system.LinearSystem, dt float64) (*LinearPlantInversionFeedforward, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	ad, bd := system.DiscretizeAB(plant.A(), plant.B(), dt)
	if err := fullColumnRank(bd); err != nil {
		return nil, err
	}
	return &LinearPlantInversionFeedforward{
		ad:  ad,
		bd:  bd,
		r:   mat.NewVecDense(plant.States(), nil),
		uff: mat.NewVecDense(plant.Inputs(), nil),
	}, nil
}

func (l *LinearPlantInversionFeedforward) R() *mat.VecDense   { return dynamo.CloneVec(l.r) }
func (l *LinearPlantInversionFeedforward) Uff() *mat.VecDense { return dynamo.CloneVec(l.uff) }

func (l *LinearPlantInversionFeedforward) Reset(r mat.Vector) {
	l.r.CopyVec(r)
	l.uff.Zero()
}

func (l *LinearPlantInversionFeedforward) Calculate(r, nextR mat.Vector) (*mat.VecDense, error) {
	n, _ := l.ad.Dims()
	if err := dynamo.CheckLen("r", r, n); err != nil {
		return nil, err
	}
	if err := dynamo.CheckLen("nextR", nextR, n); err != nil {
		return nil, err
	}
	var rhs mat.VecDense
	rhs.MulVec(l.ad, r)
	rhs.SubVec(nextR, &rhs)

	uff, err := leastSquares(l.bd, &rhs)
	if err != nil {
		return nil, err
	}
	l.uff = uff
	l.r.CopyVec(nextR)
	return dynamo.CloneVec(uff), nil
}

func (l *LinearPlantInversionFeedforward) CalculateStateOnly(nextR mat.Vector) (*mat.VecDense, error) {
	return l.Calculate(dynamo.CloneVec(l.r), nextR)
}

func fullColumnRank(b *mat.Dense) error {
	_, cols := b.Dims()
	var svd mat.SVD
	if !svd.Factorize(b, mat.SVDNone) {
		return errors.Wrap(dynamo.ErrSingularMatrix, "SVD of B did not converge")
	}
	if rank := svd.Rank(rankTolerance); rank < cols {
		return errors.Wrapf(dynamo.ErrSingularMatrix, "B has rank %d, want %d", rank, cols)
	}
	return nil
}

// leastSquares solves b·x = rhs; tall b goes through QR.
func leastSquares(b *mat.Dense, rhs *mat.VecDense) (*mat.VecDense, error) {
	x, err := dynamo.Solve(b, rhs)
	if err != nil {
		return nil, errors.Wrap(err, "feedforward")
	}
	return mat.VecDenseCopyOf(x.ColView(0)), nil
}
