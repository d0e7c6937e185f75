package sim

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/dynamo"
)

var ErrInvalidTrajectory = errors.New("sim: invalid trajectory")

// Reference produces the 5-state reference [x, y, θ, vl, vr] at time t.
type Reference interface {
	Sample(t float64) *mat.VecDense
	TotalTime() float64
}

// Trajectory drives straight from start to goal with a trapezoidal speed
// profile. The heading is the direction of the line.
type Trajectory struct {
	start   drive.Pose
	heading float64
	length  float64

	maxAccel   float64
	peakVel    float64
	accelTime  float64
	cruiseTime float64
}

func StraightLine(start, goal drive.Pose, maxVelocity, maxAcceleration float64) (*Trajectory, error) {
	if maxVelocity <= 0 || maxAcceleration <= 0 {
		return nil, errors.Wrapf(ErrInvalidTrajectory, "limits v=%g a=%g", maxVelocity, maxAcceleration)
	}
	length := start.Distance(goal)
	if length == 0 {
		return nil, errors.Wrap(ErrInvalidTrajectory, "start and goal coincide")
	}

	tr := &Trajectory{
		start:    start,
		heading:  math.Atan2(goal.Y-start.Y, goal.X-start.X),
		length:   length,
		maxAccel: maxAcceleration,
	}

	tr.accelTime = maxVelocity / maxAcceleration
	tr.peakVel = maxVelocity
	if rampDist := maxVelocity * tr.accelTime; rampDist > length {
		// Triangle profile: the peak velocity is never reached.
		tr.accelTime = math.Sqrt(length / maxAcceleration)
		tr.peakVel = maxAcceleration * tr.accelTime
	}
	tr.cruiseTime = (length - tr.peakVel*tr.accelTime) / tr.peakVel
	return tr, nil
}

func (tr *Trajectory) Heading() float64 { return tr.heading }
func (tr *Trajectory) Length() float64  { return tr.length }

func (tr *Trajectory) TotalTime() float64 {
	return 2*tr.accelTime + tr.cruiseTime
}

// Profile returns the distance along the line and the speed at t.
func (tr *Trajectory) Profile(t float64) (dist, vel float64) {
	total := tr.TotalTime()
	switch {
	case t <= 0:
		return 0, 0
	case t >= total:
		return tr.length, 0
	case t < tr.accelTime:
		return 0.5 * tr.maxAccel * t * t, tr.maxAccel * t
	case t < tr.accelTime+tr.cruiseTime:
		ramp := 0.5 * tr.peakVel * tr.accelTime
		return ramp + tr.peakVel*(t-tr.accelTime), tr.peakVel
	default:
		left := total - t
		return tr.length - 0.5*tr.maxAccel*left*left, tr.maxAccel * left
	}
}

func (tr *Trajectory) Sample(t float64) *mat.VecDense {
	dist, vel := tr.Profile(t)
	return dynamo.Vec(
		tr.start.X+dist*math.Cos(tr.heading),
		tr.start.Y+dist*math.Sin(tr.heading),
		tr.heading,
		vel,
		vel,
	)
}

// StartPose is where the robot must begin to track the line.
func (tr *Trajectory) StartPose() drive.Pose {
	return drive.Pose{X: tr.start.X, Y: tr.start.Y, Heading: tr.heading}
}
