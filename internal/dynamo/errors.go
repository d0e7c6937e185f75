package dynamo

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Domain errors shared by the estimation and control packages.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnstable indicates the closed loop diverged.
	ErrUnstable = errors.New("dynamo: simulation unstable (state diverged)")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")

	// ErrStepTooSmall indicates an adaptive integrator step collapsed.
	ErrStepTooSmall = errors.New("dynamo: adaptive timestep below minimum")

	// ErrDimensionMismatch indicates a vector or matrix of the wrong shape.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	ErrInvalidSystem  = errors.New("dynamo: invalid linear system")
	ErrNonPositiveDt  = errors.New("dynamo: timestep must be positive")
	ErrSingularMatrix = errors.New("dynamo: matrix is singular")
	ErrNoMatrixLog    = errors.New("dynamo: matrix logarithm did not converge")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   []float64
	Wrapped error
}

func (e *SimulationError) Error() string {
	return errors.Wrapf(e.Wrapped, "step %d (t=%.4f)", e.Step, e.Time).Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

// CheckDims returns ErrDimensionMismatch when m is not r×c.
func CheckDims(name string, m mat.Matrix, r, c int) error {
	mr, mc := m.Dims()
	if mr != r || mc != c {
		return errors.Wrapf(ErrDimensionMismatch, "%s is %dx%d, want %dx%d", name, mr, mc, r, c)
	}
	return nil
}

// CheckLen returns ErrDimensionMismatch when v does not have n elements.
func CheckLen(name string, v mat.Vector, n int) error {
	if v.Len() != n {
		return errors.Wrapf(ErrDimensionMismatch, "%s has %d elements, want %d", name, v.Len(), n)
	}
	return nil
}
