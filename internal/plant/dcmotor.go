package plant

import "math"

// DCMotor holds the constants of a brushed DC motor (or a gang of identical
// motors) derived from its datasheet.
type DCMotor struct {
	NominalVoltage float64
	StallTorque    float64
	StallCurrent   float64
	FreeCurrent    float64
	FreeSpeed      float64 // rad/s

	R  float64 // ohms
	Kv float64 // rad/s per volt
	Kt float64 // N·m per amp
}

// NewDCMotor builds a motor from datasheet values for numMotors identical
// motors sharing a gearbox.
func NewDCMotor(nominalVoltage, stallTorque, stallCurrent, freeCurrent, freeSpeed float64, numMotors int) DCMotor {
	n := float64(numMotors)
	m := DCMotor{
		NominalVoltage: nominalVoltage,
		StallTorque:    stallTorque * n,
		StallCurrent:   stallCurrent * n,
		FreeCurrent:    freeCurrent * n,
		FreeSpeed:      freeSpeed,
	}
	m.R = nominalVoltage / m.StallCurrent
	m.Kv = m.FreeSpeed / (nominalVoltage - m.R*m.FreeCurrent)
	m.Kt = m.StallTorque / m.StallCurrent
	return m
}

func rpmToRadPerSec(rpm float64) float64 {
	return rpm * 2 * math.Pi / 60
}

func Vex775Pro(numMotors int) DCMotor {
	return NewDCMotor(12, 0.71, 134, 0.7, rpmToRadPerSec(18730), numMotors)
}

func CIM(numMotors int) DCMotor {
	return NewDCMotor(12, 2.42, 133, 2.7, rpmToRadPerSec(5310), numMotors)
}

func NEO(numMotors int) DCMotor {
	return NewDCMotor(12, 2.6, 105, 1.8, rpmToRadPerSec(5676), numMotors)
}

func Falcon500(numMotors int) DCMotor {
	return NewDCMotor(12, 4.69, 257, 1.5, rpmToRadPerSec(6380), numMotors)
}

// Current returns the current drawn at the given speed and voltage.
func (m DCMotor) Current(speed, voltage float64) float64 {
	return -1/m.Kv/m.R*speed + 1/m.R*voltage
}
