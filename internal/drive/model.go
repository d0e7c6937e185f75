package drive

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/system"
)

var ErrInvalidTrackWidth = errors.New("drive: track width must be positive")

// Estimator state layout.
const (
	StateX = iota
	StateY
	StateHeading
	StateLeftVelocity
	StateRightVelocity
	StateLeftPosition
	StateRightPosition
	StateLeftVoltageError
	StateRightVoltageError
	StateAngularVelocityError

	NumStates
)

// The controller tracks the first five estimator states.
const ControllerStates = 5

const (
	NumInputs        = 2
	NumLocalOutputs  = 3 // heading, left distance, right distance
	NumGlobalOutputs = 3 // x, y, heading
)

// Model holds the wheel-velocity plant and the half track width shared by
// the estimator and controller dynamics.
type Model struct {
	plant *system.LinearSystem
	a, b  *mat.Dense
	rb    float64

	// a47 maps [vl, vr, dl, dr, vErrL, vErrR, ωErr] to the derivatives of
	// [vl, vr, dl, dr]; b42 maps the input to the same rows.
	a47 *mat.Dense
	b42 *mat.Dense
}

// NewModel requires a 2-state, 2-input plant such as one from
// plant.IdentifyDrivetrainSystem.
func NewModel(plant *system.LinearSystem, kinematics Kinematics) (*Model, error) {
	if err := dynamo.CheckDims("drivetrain A", plant.A(), 2, 2); err != nil {
		return nil, err
	}
	if err := dynamo.CheckDims("drivetrain B", plant.B(), 2, NumInputs); err != nil {
		return nil, err
	}
	if kinematics.TrackWidth <= 0 {
		return nil, errors.Wrapf(ErrInvalidTrackWidth, "track width = %g", kinematics.TrackWidth)
	}

	b42 := mat.NewDense(4, 2, nil)
	dynamo.SetBlock(b42, 0, 0, plant.B())

	a47 := mat.NewDense(4, 7, nil)
	dynamo.SetBlock(a47, 0, 0, plant.A())
	dynamo.SetBlock(a47, 2, 0, dynamo.Eye(2))
	dynamo.SetBlock(a47, 0, 4, b42)
	a47.SetCol(6, []float64{0, 0, 1, -1})

	return &Model{
		plant: plant,
		a:     plant.A(),
		b:     plant.B(),
		rb:    kinematics.TrackWidth / 2,
		a47:   a47,
		b42:   b42,
	}, nil
}

func (m *Model) Plant() *system.LinearSystem { return m.plant }

func (m *Model) Kinematics() Kinematics { return Kinematics{TrackWidth: 2 * m.rb} }

// Dynamics is the 10-state estimator model. The voltage and angular
// velocity error states are random walks.
func (m *Model) Dynamics(x, u *mat.VecDense) *mat.VecDense {
	v := (x.AtVec(StateLeftVelocity) + x.AtVec(StateRightVelocity)) / 2
	theta := x.AtVec(StateHeading)

	out := mat.NewVecDense(NumStates, nil)
	out.SetVec(StateX, v*math.Cos(theta))
	out.SetVec(StateY, v*math.Sin(theta))
	out.SetVec(StateHeading, (x.AtVec(StateRightVelocity)-x.AtVec(StateLeftVelocity))/(2*m.rb))

	var rest, bu mat.VecDense
	rest.MulVec(m.a47, x.SliceVec(StateLeftVelocity, NumStates))
	bu.MulVec(m.b42, u)
	rest.AddVec(&rest, &bu)
	for i := 0; i < 4; i++ {
		out.SetVec(StateLeftVelocity+i, rest.AtVec(i))
	}
	return out
}

// ControllerDynamics is the 5-state model [x, y, θ, vl, vr] the LTV
// controller is linearized about.
func (m *Model) ControllerDynamics(x, u *mat.VecDense) *mat.VecDense {
	v := (x.AtVec(StateLeftVelocity) + x.AtVec(StateRightVelocity)) / 2
	theta := x.AtVec(StateHeading)

	out := mat.NewVecDense(ControllerStates, nil)
	out.SetVec(StateX, v*math.Cos(theta))
	out.SetVec(StateY, v*math.Sin(theta))
	out.SetVec(StateHeading, (x.AtVec(StateRightVelocity)-x.AtVec(StateLeftVelocity))/(2*m.rb))

	var vel mat.VecDense
	vel.MulVec(m.a, x.SliceVec(StateLeftVelocity, ControllerStates))
	var bu mat.VecDense
	bu.MulVec(m.b, u)
	vel.AddVec(&vel, &bu)
	out.SetVec(StateLeftVelocity, vel.AtVec(0))
	out.SetVec(StateRightVelocity, vel.AtVec(1))
	return out
}

// LocalMeasurement returns [θ, dl, dr].
func LocalMeasurement(x, _ *mat.VecDense) *mat.VecDense {
	return dynamo.Vec(x.AtVec(StateHeading), x.AtVec(StateLeftPosition), x.AtVec(StateRightPosition))
}

// GlobalMeasurement returns [x, y, θ].
func GlobalMeasurement(x, _ *mat.VecDense) *mat.VecDense {
	return dynamo.Vec(x.AtVec(StateX), x.AtVec(StateY), x.AtVec(StateHeading))
}

// ControllerState trims an estimator state to the controller's five states.
func ControllerState(x mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(ControllerStates, nil)
	for i := 0; i < ControllerStates; i++ {
		out.SetVec(i, x.AtVec(i))
	}
	return out
}
