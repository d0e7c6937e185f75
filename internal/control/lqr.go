package control

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/riccati"
	"github.com/san-kum/dynctl/internal/system"
)

var log = logging.GetLog("control")

// Precondition failures reported by the regulator constructors. They carry
// the offending matrices; match them with errors.Is.
var (
	ErrABNotStabilizable        = riccati.ErrABNotStabilizable
	ErrACNotDetectable          = riccati.ErrACNotDetectable
	ErrQNotSymmetric            = riccati.ErrQNotSymmetric
	ErrQNotPositiveSemidefinite = riccati.ErrQNotPositiveSemidefinite
	ErrRNotSymmetric            = riccati.ErrRNotSymmetric
	ErrRNotPositiveDefinite     = riccati.ErrRNotPositiveDefinite
)

// LQR is a discrete linear-quadratic regulator. The gain is fixed at
// construction (or by LatencyCompensate); the reference and last output are
// the only mutable state.
type LQR struct {
	k *mat.Dense
	r *mat.VecDense
	u *mat.VecDense

	states, inputs int
}

// NewLQR builds a regulator for plant with Bryson's rule: Q and R are
// diagonal with 1/tol² on the diagonal. A tolerance of +Inf drops that term.
func NewLQR(plant *system.LinearSystem, qElms, rElms []float64, dt float64) (*LQR, error) {
	if len(qElms) != plant.States() {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "Q tolerances: got %d, want %d", len(qElms), plant.States())
	}
	if len(rElms) != plant.Inputs() {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "R tolerances: got %d, want %d", len(rElms), plant.Inputs())
	}
	return NewLQRFromMatrices(plant.A(), plant.B(), dynamo.MakeCostMatrix(qElms...), dynamo.MakeCostMatrix(rElms...), dt)
}

// NewLQRFromMatrices builds a regulator for ẋ = Ax + Bu with explicit cost
// matrices.
func NewLQRFromMatrices(a, b, q, r mat.Matrix, dt float64) (*LQR, error) {
	return newLQR(a, b, q, r, nil, dt)
}

// NewLQRWithCrossTerm adds the state-input cross weight N to the cost
// xᵀQx + uᵀRu + 2xᵀNu.
func NewLQRWithCrossTerm(a, b, q, r, n mat.Matrix, dt float64) (*LQR, error) {
	return newLQR(a, b, q, r, n, dt)
}

func newLQR(a, b, q, r, n mat.Matrix, dt float64) (*LQR, error) {
	if dt <= 0 {
		return nil, errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	states, _ := a.Dims()
	_, inputs := b.Dims()
	if err := dynamo.CheckDims("A", a, states, states); err != nil {
		return nil, err
	}
	if err := dynamo.CheckDims("B", b, states, inputs); err != nil {
		return nil, err
	}
	if n != nil {
		if err := dynamo.CheckDims("N", n, states, inputs); err != nil {
			return nil, err
		}
	}

	discA, discB := system.DiscretizeAB(a, b, dt)

	var (
		s   *mat.Dense
		err error
	)
	if n == nil {
		s, err = riccati.DARE(discA, discB, q, r)
	} else {
		s, err = riccati.DAREWithCrossTerm(discA, discB, q, r, n)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lqr")
	}

	k, err := gain(discA, discB, s, r, n)
	if err != nil {
		return nil, err
	}

	log.Debug("lqr gain", "states", states, "inputs", inputs, "dt", dt)
	return &LQR{
		k:      k,
		r:      mat.NewVecDense(states, nil),
		u:      mat.NewVecDense(inputs, nil),
		states: states,
		inputs: inputs,
	}, nil
}

// gain returns K = (BᵀSB + R)⁻¹(BᵀSA + Nᵀ).
func gain(discA, discB, s *mat.Dense, r, n mat.Matrix) (*mat.Dense, error) {
	var lhs, rhs mat.Dense
	lhs.Product(discB.T(), s, discB)
	lhs.Add(&lhs, r)
	rhs.Product(discB.T(), s, discA)
	if n != nil {
		rhs.Add(&rhs, n.T())
	}
	k, err := dynamo.Solve(&lhs, &rhs)
	if err != nil {
		return nil, errors.Wrap(err, "lqr gain")
	}
	return k, nil
}

func (l *LQR) K() *mat.Dense             { return mat.DenseCopyOf(l.k) }
func (l *LQR) KAt(i, j int) float64      { return l.k.At(i, j) }
func (l *LQR) R() *mat.VecDense          { return dynamo.CloneVec(l.r) }
func (l *LQR) RAt(i int) float64         { return l.r.AtVec(i) }
func (l *LQR) U() *mat.VecDense          { return dynamo.CloneVec(l.u) }
func (l *LQR) UAt(i int) float64         { return l.u.AtVec(i) }
func (l *LQR) States() int               { return l.states }
func (l *LQR) Inputs() int               { return l.inputs }
func (l *LQR) SetReference(r mat.Vector) { l.r.CopyVec(r) }

// Reset zeroes the reference and the last output.
func (l *LQR) Reset() {
	l.r.Zero()
	l.u.Zero()
}

// Calculate returns u = K(r − x) against the stored reference.
func (l *LQR) Calculate(x mat.Vector) *mat.VecDense {
	var e mat.VecDense
	e.SubVec(l.r, x)
	l.u.MulVec(l.k, &e)
	return dynamo.CloneVec(l.u)
}

// CalculateWithReference stores nextR as the reference before calculating.
func (l *LQR) CalculateWithReference(x, nextR mat.Vector) *mat.VecDense {
	l.r.CopyVec(nextR)
	return l.Calculate(x)
}

// LatencyCompensate adjusts the gain for an input applied inputDelay seconds
// after the measurement: K ← K·(Ad − Bd·K)^(inputDelay/dt).
func (l *LQR) LatencyCompensate(plant *system.LinearSystem, dt, inputDelay float64) error {
	if dt <= 0 {
		return errors.Wrapf(dynamo.ErrNonPositiveDt, "dt = %g", dt)
	}
	if plant.States() != l.states || plant.Inputs() != l.inputs {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "plant is %dx%d, regulator is %dx%d",
			plant.States(), plant.Inputs(), l.states, l.inputs)
	}
	discA, discB := system.DiscretizeAB(plant.A(), plant.B(), dt)

	var closed mat.Dense
	closed.Mul(discB, l.k)
	closed.Sub(discA, &closed)

	pow, err := dynamo.Powm(&closed, inputDelay/dt)
	if err != nil {
		return errors.Wrap(err, "latency compensation")
	}
	var k mat.Dense
	k.Mul(l.k, pow)
	l.k = &k
	return nil
}
