package drive_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/integrators"
	"github.com/san-kum/dynctl/internal/plant"
	"github.com/san-kum/dynctl/internal/sim"
)

var _ = Describe("LTV tracking", func() {
	const dt = 0.02

	var (
		model *drive.Model
		ctrl  *drive.LTVController
		traj  *sim.Trajectory
	)

	BeforeEach(func() {
		sys, err := plant.IdentifyDrivetrainSystem(3.02, 0.642, 1.382, 0.08495)
		Expect(err).NotTo(HaveOccurred())
		kin := drive.Kinematics{TrackWidth: 1}

		model, err = drive.NewModel(sys, kin)
		Expect(err).NotTo(HaveOccurred())
		ctrl, err = drive.NewLTVController(sys, kin,
			[]float64{0.0625, 0.125, 2.0, 0.95, 0.95}, []float64{12, 12}, dt)
		Expect(err).NotTo(HaveOccurred())
		ctrl.SetTolerance(drive.Pose{X: 0.06, Y: 0.06, Heading: 0.06}, 0.3)

		traj, err = sim.StraightLine(drive.Pose{}, drive.Pose{X: 4.8768, Y: 2.7432}, 2, 1)
		Expect(err).NotTo(HaveOccurred())
	})

	track := func(f func(x, u *mat.VecDense) *mat.VecDense, x *mat.VecDense) *mat.VecDense {
		steps := int(math.Ceil(traj.TotalTime() / dt))
		for i := 0; i < steps; i++ {
			t := float64(i) * dt
			r := traj.Sample(t)
			u, err := ctrl.Calculate(x, r, traj.Sample(t+dt))
			Expect(err).NotTo(HaveOccurred())
			Expect(ctrl.AtReference()).To(BeTrue(), "left tolerance at t=%.2f, error %v", t, mat.Formatted(ctrl.StateError().T()))

			x, err = integrators.RKDP(f, x, u, dt, integrators.DefaultMaxError)
			Expect(err).NotTo(HaveOccurred())
		}
		return x
	}

	expectAtGoal := func(x *mat.VecDense) {
		end := drive.PoseFromVec(x)
		Expect(end.X).To(BeNumerically("~", 4.8768, 0.06))
		Expect(end.Y).To(BeNumerically("~", 2.7432, 0.06))
	}

	It("stays within tolerance of a straight diagonal on the controller model", func() {
		start := traj.StartPose()
		x := mat.NewVecDense(drive.ControllerStates, []float64{start.X, start.Y, start.Heading, 0, 0})
		expectAtGoal(track(model.ControllerDynamics, x))
	})

	It("stays within tolerance when the truth carries the full estimator state", func() {
		start := traj.StartPose()
		x := mat.NewVecDense(drive.NumStates, nil)
		x.SetVec(drive.StateX, start.X)
		x.SetVec(drive.StateY, start.Y)
		x.SetVec(drive.StateHeading, start.Heading)
		expectAtGoal(track(model.Dynamics, x))
	})
})
