package drive

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/plant"
	"github.com/san-kum/dynctl/internal/system"
)

const testDt = 0.02

var testKinematics = Kinematics{TrackWidth: 1}

func testPlant(t *testing.T) *system.LinearSystem {
	t.Helper()
	sys, err := plant.IdentifyDrivetrainSystem(3.02, 0.642, 1.382, 0.08495)
	require.NoError(t, err)
	return sys
}

func testModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(testPlant(t), testKinematics)
	require.NoError(t, err)
	return m
}

func TestNewModel_Invalid(t *testing.T) {
	_, err := NewModel(testPlant(t), Kinematics{})
	assert.True(t, errors.Is(err, ErrInvalidTrackWidth))

	velocity, err := plant.IdentifyVelocitySystem(1, 1)
	require.NoError(t, err)
	_, err = NewModel(velocity, testKinematics)
	assert.True(t, errors.Is(err, dynamo.ErrDimensionMismatch))
}

func TestModel_DynamicsAtRest(t *testing.T) {
	m := testModel(t)
	xdot := m.Dynamics(dynamo.Zeros(NumStates), dynamo.Zeros(NumInputs))
	for i := 0; i < NumStates; i++ {
		assert.Zero(t, xdot.AtVec(i), "state %d", i)
	}
}

func TestModel_DynamicsKinematics(t *testing.T) {
	m := testModel(t)

	x := dynamo.Zeros(NumStates)
	x.SetVec(StateLeftVelocity, 1)
	x.SetVec(StateRightVelocity, 1)
	xdot := m.Dynamics(x, dynamo.Zeros(NumInputs))
	assert.InDelta(t, 1.0, xdot.AtVec(StateX), 1e-12)
	assert.InDelta(t, 0.0, xdot.AtVec(StateY), 1e-12)
	assert.InDelta(t, 0.0, xdot.AtVec(StateHeading), 1e-12)
	assert.InDelta(t, 1.0, xdot.AtVec(StateLeftPosition), 1e-12)
	assert.InDelta(t, 1.0, xdot.AtVec(StateRightPosition), 1e-12)

	x.SetVec(StateLeftVelocity, 0)
	xdot = m.Dynamics(x, dynamo.Zeros(NumInputs))
	assert.InDelta(t, 1.0, xdot.AtVec(StateHeading), 1e-12)

	// A gyro bias shows up as opposite distance rates.
	x = dynamo.Zeros(NumStates)
	x.SetVec(StateAngularVelocityError, 0.5)
	xdot = m.Dynamics(x, dynamo.Zeros(NumInputs))
	assert.InDelta(t, 0.5, xdot.AtVec(StateLeftPosition), 1e-12)
	assert.InDelta(t, -0.5, xdot.AtVec(StateRightPosition), 1e-12)
}

func TestModel_VoltageErrorActsLikeInput(t *testing.T) {
	m := testModel(t)

	withInput := m.Dynamics(dynamo.Zeros(NumStates), dynamo.Vec(2, -1))

	x := dynamo.Zeros(NumStates)
	x.SetVec(StateLeftVoltageError, 2)
	x.SetVec(StateRightVoltageError, -1)
	withError := m.Dynamics(x, dynamo.Zeros(NumInputs))

	assert.InDelta(t, withInput.AtVec(StateLeftVelocity), withError.AtVec(StateLeftVelocity), 1e-12)
	assert.InDelta(t, withInput.AtVec(StateRightVelocity), withError.AtVec(StateRightVelocity), 1e-12)
}

func TestModel_ControllerDynamicsMatches(t *testing.T) {
	m := testModel(t)
	x := dynamo.Vec(1, 2, 0.3, 1.2, 0.8, 0, 0, 0, 0, 0)
	u := dynamo.Vec(4, 6)

	full := m.Dynamics(x, u)
	reduced := m.ControllerDynamics(ControllerState(x), u)
	for i := 0; i < ControllerStates; i++ {
		assert.InDelta(t, full.AtVec(i), reduced.AtVec(i), 1e-12, "state %d", i)
	}
}

func TestMeasurements(t *testing.T) {
	x := dynamo.Vec(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	assert.Equal(t, []float64{3, 6, 7}, dynamo.RawCopy(LocalMeasurement(x, nil)))
	assert.Equal(t, []float64{1, 2, 3}, dynamo.RawCopy(GlobalMeasurement(x, nil)))
	assert.Equal(t, ControllerStates, ControllerState(x).Len())
}
