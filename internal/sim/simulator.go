package sim

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/estimator"
	"github.com/san-kum/dynctl/internal/integrators"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/plant"
)

var (
	log = logging.GetLog("sim")

	ErrInvalidConfig = errors.New("sim: invalid config")
)

// Simulator runs the drive estimator and controller in closed loop against
// a simulated drivetrain.
type Simulator struct {
	cfg       Config
	stepper   integrators.Stepper
	metrics   []Metric
	observers []Observer
}

func New(cfg Config) (*Simulator, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	stepper, err := integrators.ByName(cfg.Integrator, cfg.Tolerance)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:       cfg,
		stepper:   stepper,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}, nil
}

func (s *Simulator) Config() Config { return s.cfg }

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// Validate checks a scenario before any component is built.
func Validate(cfg Config) error {
	switch {
	case cfg.Dt <= 0:
		return errors.Wrapf(ErrInvalidConfig, "dt must be positive, got %g", cfg.Dt)
	case cfg.Duration <= 0:
		return errors.Wrapf(ErrInvalidConfig, "duration must be positive, got %g", cfg.Duration)
	case cfg.Plant.TrackWidth <= 0:
		return errors.Wrapf(ErrInvalidConfig, "track width must be positive, got %g", cfg.Plant.TrackWidth)
	case cfg.Vision.Enabled && cfg.Vision.Period <= 0:
		return errors.Wrapf(ErrInvalidConfig, "vision period must be positive, got %g", cfg.Vision.Period)
	case cfg.Vision.Latency < 0:
		return errors.Wrapf(ErrInvalidConfig, "vision latency must not be negative, got %g", cfg.Vision.Latency)
	case len(cfg.Noise.Local) != drive.NumLocalOutputs:
		return errors.Wrapf(ErrInvalidConfig, "local noise needs %d std devs, got %d", drive.NumLocalOutputs, len(cfg.Noise.Local))
	case len(cfg.Noise.Vision) != drive.NumGlobalOutputs:
		return errors.Wrapf(ErrInvalidConfig, "vision noise needs %d std devs, got %d", drive.NumGlobalOutputs, len(cfg.Noise.Vision))
	}
	return nil
}

// Run simulates until the configured duration elapses, the context is
// canceled or a component fails. Failures are recorded in Result.Errors and
// end the run; the partial result is still returned.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	loop, err := newClosedLoop(s.cfg, s.stepper)
	if err != nil {
		return nil, err
	}

	steps := int(math.Round(s.cfg.Duration / s.cfg.Dt))
	result := &Result{
		Times:       make([]float64, 0, steps),
		Truth:       make([][]float64, 0, steps),
		Estimates:   make([][]float64, 0, steps),
		References:  make([][]float64, 0, steps),
		Controls:    make([][]float64, 0, steps),
		AtReference: make([]bool, 0, steps),
		Metrics:     make(map[string]float64),
		Errors:      make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, errors.Wrap(dynamo.ErrContextCanceled, ctx.Err().Error())
		default:
		}

		t := float64(i) * s.cfg.Dt
		sample, err := loop.tick(t)
		if err != nil {
			result.Errors = append(result.Errors, &dynamo.SimulationError{
				Step:    i,
				Time:    t,
				State:   dynamo.RawCopy(loop.truth),
				Wrapped: err,
			})
			log.Warn("run stopped", "step", i, "t", t, "err", err)
			break
		}

		for _, m := range s.metrics {
			m.Observe(sample)
		}
		for _, obs := range s.observers {
			obs.OnStep(sample)
		}

		result.Times = append(result.Times, t)
		result.Truth = append(result.Truth, dynamo.RawCopy(sample.Truth))
		result.Estimates = append(result.Estimates, dynamo.RawCopy(sample.Estimate))
		result.References = append(result.References, dynamo.RawCopy(sample.Reference))
		result.Controls = append(result.Controls, dynamo.RawCopy(sample.Control))
		result.AtReference = append(result.AtReference, sample.AtReference)
		result.StepsTaken++
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

// RunWithCallback streams each tick to callback until it returns false or
// the run ends.
func (s *Simulator) RunWithCallback(ctx context.Context, callback func(Sample) bool) error {
	loop, err := newClosedLoop(s.cfg, s.stepper)
	if err != nil {
		return err
	}

	steps := int(math.Round(s.cfg.Duration / s.cfg.Dt))
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(dynamo.ErrContextCanceled, ctx.Err().Error())
		default:
		}

		t := float64(i) * s.cfg.Dt
		sample, err := loop.tick(t)
		if err != nil {
			return &dynamo.SimulationError{Step: i, Time: t, State: dynamo.RawCopy(loop.truth), Wrapped: err}
		}
		if !callback(sample) {
			return nil
		}
	}
	return nil
}

type visionFrame struct {
	pose     drive.Pose
	captured float64
}

// closedLoop owns every stateful component of one run.
type closedLoop struct {
	cfg     Config
	stepper integrators.Stepper
	model   *drive.Model
	ref     Reference

	est  *drive.StateEstimator
	ctrl *drive.LTVController

	localNoise  *distmv.Normal
	visionNoise *distmv.Normal

	truth      *mat.VecDense
	u          *mat.VecDense
	pending    []visionFrame
	nextVision float64
}

func newClosedLoop(cfg Config, stepper integrators.Stepper) (*closedLoop, error) {
	sys, err := plant.IdentifyDrivetrainSystem(cfg.Plant.KvLinear, cfg.Plant.KaLinear, cfg.Plant.KvAngular, cfg.Plant.KaAngular)
	if err != nil {
		return nil, errors.Wrap(err, "identify drivetrain")
	}
	kin := drive.Kinematics{TrackWidth: cfg.Plant.TrackWidth}
	model, err := drive.NewModel(sys, kin)
	if err != nil {
		return nil, err
	}

	traj, err := StraightLine(poseOf(cfg.Trajectory.Start), poseOf(cfg.Trajectory.Goal),
		cfg.Trajectory.MaxVelocity, cfg.Trajectory.MaxAcceleration)
	if err != nil {
		return nil, err
	}

	start := traj.StartPose()
	truth := mat.NewVecDense(drive.NumStates, nil)
	truth.SetVec(drive.StateX, start.X)
	truth.SetVec(drive.StateY, start.Y)
	truth.SetVec(drive.StateHeading, start.Heading)

	// One seeded stream feeds both noise sources, so a seed reproduces a run.
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	localNoise, err := newNoise("local", cfg.Noise.Local, src)
	if err != nil {
		return nil, err
	}
	visionNoise, err := newNoise("vision", cfg.Noise.Vision, src)
	if err != nil {
		return nil, err
	}

	est, err := drive.NewStateEstimator(sys, kin, truth,
		cfg.Estimator.StateStdDevs, cfg.Estimator.LocalStdDevs, cfg.Estimator.GlobalStdDevs,
		cfg.Dt,
		drive.WithLatencyHorizon(cfg.Estimator.Horizon),
	)
	if err != nil {
		return nil, err
	}

	ctrl, err := drive.NewLTVController(sys, kin, cfg.Controller.Q, cfg.Controller.R, cfg.Dt)
	if err != nil {
		return nil, err
	}
	tol := cfg.Controller.PoseTolerance
	if cfg.Controller.VelocityTolerance > 0 {
		ctrl.SetTolerance(drive.Pose{X: tol[0], Y: tol[1], Heading: tol[2]}, cfg.Controller.VelocityTolerance)
	}

	log.Debug("closed loop ready",
		"integrator", stepper.Name(), "seed", cfg.Seed, "trajectory", traj.TotalTime())

	return &closedLoop{
		cfg:         cfg,
		stepper:     stepper,
		model:       model,
		ref:         traj,
		est:         est,
		ctrl:        ctrl,
		localNoise:  localNoise,
		visionNoise: visionNoise,
		truth:       truth,
		u:           mat.NewVecDense(drive.NumInputs, nil),
	}, nil
}

func (l *closedLoop) tick(t float64) (Sample, error) {
	localY := drive.LocalMeasurement(l.truth, l.u)
	addNoise(localY, l.localNoise)
	estimate, err := l.est.UpdateWithTime(localY.AtVec(0), localY.AtVec(1), localY.AtVec(2), l.u, t)
	if err != nil {
		return Sample{}, err
	}

	if err := l.vision(t); err != nil {
		return Sample{}, err
	}
	estimate = l.est.EstimatedState()

	x := estimate
	if l.cfg.UseTruth {
		x = l.truth
	}
	r := l.ref.Sample(t)
	nextR := l.ref.Sample(t + l.cfg.Dt)
	u, err := l.ctrl.Calculate(x, r, nextR)
	if err != nil {
		return Sample{}, err
	}

	sample := Sample{
		Time:        t,
		Truth:       dynamo.CloneVec(l.truth),
		Estimate:    estimate,
		Reference:   r,
		Control:     u,
		AtReference: l.ctrl.AtReference(),
	}

	next, err := l.stepper.Step(l.model.Dynamics, l.truth, u, l.cfg.Dt)
	if err != nil {
		return Sample{}, err
	}
	if !dynamo.IsValid(next) {
		return Sample{}, dynamo.ErrInvalidState
	}
	l.truth = next
	l.u = u
	return sample, nil
}

// vision captures a pose every period and delivers it once its latency has
// elapsed, stamped with the capture time.
func (l *closedLoop) vision(t float64) error {
	if !l.cfg.Vision.Enabled {
		return nil
	}
	if t >= l.nextVision {
		y := drive.GlobalMeasurement(l.truth, l.u)
		addNoise(y, l.visionNoise)
		l.pending = append(l.pending, visionFrame{pose: drive.PoseFromVec(y), captured: t})
		l.nextVision = t + l.cfg.Vision.Period
	}

	delivered := 0
	for _, f := range l.pending {
		if f.captured+l.cfg.Vision.Latency > t {
			break
		}
		delivered++
		err := l.est.ApplyPastGlobalMeasurement(f.pose, f.captured)
		if errors.Is(err, estimator.ErrStaleMeasurement) {
			log.Warn("dropped stale vision frame", "captured", f.captured, "now", t)
			continue
		}
		if err != nil {
			return err
		}
	}
	l.pending = l.pending[delivered:]
	return nil
}

func poseOf(v [3]float64) drive.Pose {
	return drive.Pose{X: v[0], Y: v[1], Heading: v[2]}
}

// newNoise returns nil when every std dev is zero.
func newNoise(name string, stdDevs []float64, src rand.Source) (*distmv.Normal, error) {
	zero := true
	for _, s := range stdDevs {
		if s != 0 {
			zero = false
		}
	}
	if zero {
		return nil, nil
	}
	dist, ok := distmv.NewNormal(make([]float64, len(stdDevs)), dynamo.SymOf(dynamo.MakeCovMatrix(stdDevs...)), src)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidConfig, "%s noise std devs %v must be all positive or all zero", name, stdDevs)
	}
	return dist, nil
}

func addNoise(v *mat.VecDense, dist *distmv.Normal) {
	if dist == nil {
		return
	}
	n := dist.Rand(nil)
	for i := range n {
		v.SetVec(i, v.AtVec(i)+n[i])
	}
}
