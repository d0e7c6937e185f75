package drive

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// Kinematics converts between chassis and wheel speeds of a differential
// drive.
type Kinematics struct {
	TrackWidth float64 // meters between the left and right wheels
}

func (k Kinematics) ToWheelSpeeds(v, omega float64) (left, right float64) {
	half := omega * k.TrackWidth / 2
	return v - half, v + half
}

func (k Kinematics) ToChassisSpeeds(left, right float64) (v, omega float64) {
	return (left + right) / 2, (right - left) / k.TrackWidth
}

// Pose is a position on the field and a heading in radians.
type Pose struct {
	X, Y, Heading float64
}

func PoseFromVec(v mat.Vector) Pose {
	return Pose{X: v.AtVec(0), Y: v.AtVec(1), Heading: v.AtVec(2)}
}

func (p Pose) Vec() *mat.VecDense {
	return dynamo.Vec(p.X, p.Y, p.Heading)
}

// RelativeTo expresses p in the frame of origin, with the heading wrapped.
func (p Pose) RelativeTo(origin Pose) Pose {
	dx, dy := p.X-origin.X, p.Y-origin.Y
	c, s := math.Cos(origin.Heading), math.Sin(origin.Heading)
	return Pose{
		X:       c*dx + s*dy,
		Y:       -s*dx + c*dy,
		Heading: dynamo.AngleDiff(p.Heading, origin.Heading),
	}
}

func (p Pose) Distance(other Pose) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}
