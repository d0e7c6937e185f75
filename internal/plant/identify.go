package plant

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/system"
)

var ErrInvalidParameter = errors.New("plant: parameter must be positive")

func positive(params map[string]float64) error {
	for name, v := range params {
		if v <= 0 {
			return errors.Wrapf(ErrInvalidParameter, "%s = %g", name, v)
		}
	}
	return nil
}

// ElevatorSystem models a carriage of mass m lifted by a drum of radius r.
// States [position, velocity], input [voltage], outputs [position, velocity].
func ElevatorSystem(motor DCMotor, mass, radius, gearing float64) (*system.LinearSystem, error) {
	if err := positive(map[string]float64{"mass": mass, "radius": radius, "gearing": gearing}); err != nil {
		return nil, err
	}
	a22 := -gearing * gearing * motor.Kt / (motor.R * radius * radius * mass * motor.Kv)
	b2 := gearing * motor.Kt / (motor.R * radius * mass)
	return positionVelocitySystem(a22, b2, motor.NominalVoltage)
}

// SingleJointedArmSystem models an arm with moment of inertia j.
func SingleJointedArmSystem(motor DCMotor, j, gearing float64) (*system.LinearSystem, error) {
	if err := positive(map[string]float64{"J": j, "gearing": gearing}); err != nil {
		return nil, err
	}
	a22 := -gearing * gearing * motor.Kt / (motor.Kv * motor.R * j)
	b2 := gearing * motor.Kt / (motor.R * j)
	return positionVelocitySystem(a22, b2, motor.NominalVoltage)
}

// FlywheelSystem models a flywheel velocity loop.
func FlywheelSystem(motor DCMotor, j, gearing float64) (*system.LinearSystem, error) {
	if err := positive(map[string]float64{"J": j, "gearing": gearing}); err != nil {
		return nil, err
	}
	v := motor.NominalVoltage
	return system.NewLinearSystem(
		mat.NewDense(1, 1, []float64{-gearing * gearing * motor.Kt / (motor.Kv * motor.R * j)}),
		mat.NewDense(1, 1, []float64{gearing * motor.Kt / (motor.R * j)}),
		dynamo.Eye(1),
		mat.NewDense(1, 1, nil),
		[]float64{-v}, []float64{v},
	)
}

// DrivetrainVelocitySystem models the left and right wheel velocities of a
// differential drive with half track width rb and moment of inertia j.
func DrivetrainVelocitySystem(motor DCMotor, mass, wheelRadius, rb, j, gearing float64) (*system.LinearSystem, error) {
	err := positive(map[string]float64{
		"mass": mass, "wheel radius": wheelRadius, "rb": rb, "J": j, "gearing": gearing,
	})
	if err != nil {
		return nil, err
	}
	c1 := -gearing * gearing * motor.Kt / (motor.Kv * motor.R * wheelRadius * wheelRadius)
	c2 := gearing * motor.Kt / (motor.R * wheelRadius)
	c3 := 1/mass + rb*rb/j
	c4 := 1/mass - rb*rb/j
	return drivetrain(c3*c1, c4*c1, c3*c2, c4*c2, motor.NominalVoltage)
}

// IdentifyVelocitySystem builds a 1-state velocity model from feedforward
// gains kV (V per unit/s) and kA (V per unit/s²).
func IdentifyVelocitySystem(kV, kA float64) (*system.LinearSystem, error) {
	if err := feedforwardGains(kV, kA); err != nil {
		return nil, err
	}
	return system.NewLinearSystem(
		mat.NewDense(1, 1, []float64{-kV / kA}),
		mat.NewDense(1, 1, []float64{1 / kA}),
		dynamo.Eye(1),
		mat.NewDense(1, 1, nil),
		nil, nil,
	)
}

func IdentifyPositionSystem(kV, kA float64) (*system.LinearSystem, error) {
	if err := feedforwardGains(kV, kA); err != nil {
		return nil, err
	}
	return system.NewLinearSystem(
		mat.NewDense(2, 2, []float64{0, 1, 0, -kV / kA}),
		mat.NewDense(2, 1, []float64{0, 1 / kA}),
		dynamo.Eye(2),
		mat.NewDense(2, 1, nil),
		nil, nil,
	)
}

// IdentifyDrivetrainSystem builds the left/right velocity model of a
// differential drive from linear and angular feedforward gains.
func IdentifyDrivetrainSystem(kVLinear, kALinear, kVAngular, kAAngular float64) (*system.LinearSystem, error) {
	err := positive(map[string]float64{
		"kV linear": kVLinear, "kA linear": kALinear, "kV angular": kVAngular, "kA angular": kAAngular,
	})
	if err != nil {
		return nil, err
	}
	a1 := 0.5 * -(kVLinear/kALinear + kVAngular/kAAngular)
	a2 := 0.5 * -(kVLinear/kALinear - kVAngular/kAAngular)
	b1 := 0.5 * (1/kALinear + 1/kAAngular)
	b2 := 0.5 * (1/kALinear - 1/kAAngular)
	return drivetrain(a1, a2, b1, b2, 12)
}

// IdentifyDrivetrainSystemTrackWidth converts angular gains given per rad/s
// into gains per m/s of wheel speed before identifying the model.
func IdentifyDrivetrainSystemTrackWidth(kVLinear, kALinear, kVAngular, kAAngular, trackWidth float64) (*system.LinearSystem, error) {
	if err := positive(map[string]float64{"track width": trackWidth}); err != nil {
		return nil, err
	}
	return IdentifyDrivetrainSystem(kVLinear, kALinear, kVAngular*2/trackWidth, kAAngular*2/trackWidth)
}

func feedforwardGains(kV, kA float64) error {
	if kV < 0 {
		return errors.Wrapf(ErrInvalidParameter, "kV = %g", kV)
	}
	return positive(map[string]float64{"kA": kA})
}

func positionVelocitySystem(a22, b2, voltage float64) (*system.LinearSystem, error) {
	return system.NewLinearSystem(
		mat.NewDense(2, 2, []float64{0, 1, 0, a22}),
		mat.NewDense(2, 1, []float64{0, b2}),
		dynamo.Eye(2),
		mat.NewDense(2, 1, nil),
		[]float64{-voltage}, []float64{voltage},
	)
}

func drivetrain(a1, a2, b1, b2, voltage float64) (*system.LinearSystem, error) {
	return system.NewLinearSystem(
		mat.NewDense(2, 2, []float64{a1, a2, a2, a1}),
		mat.NewDense(2, 2, []float64{b1, b2, b2, b1}),
		dynamo.Eye(2),
		mat.NewDense(2, 2, nil),
		[]float64{-voltage, -voltage}, []float64{voltage, voltage},
	)
}
