package drive

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/estimator"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/system"
)

var log = logging.GetLog("drive")

// StateEstimator fuses encoder and gyro readings every loop with delayed
// global pose measurements such as vision. It is safe for concurrent use:
// UpdateWithTime and ApplyPastGlobalMeasurement are serialized.
type StateEstimator struct {
	mu sync.Mutex

	model       *Model
	observer    *estimator.ExtendedKalmanFilter
	compensator *estimator.LatencyCompensator

	globalR        *mat.Dense
	globalResidual dynamo.ResidualFunc
	headingAdd     dynamo.AddFunc

	nominalDt float64
	prevTime  float64
	clock     func() float64
}

type estimatorOptions struct {
	clock   func() float64
	horizon float64
}

type EstimatorOption func(*estimatorOptions)

// WithClock replaces the wall clock Update reads timestamps from. The clock
// returns seconds.
func WithClock(clock func() float64) EstimatorOption {
	return func(o *estimatorOptions) { o.clock = clock }
}

// WithLatencyHorizon sets how many seconds of history are kept for replaying
// late global measurements.
func WithLatencyHorizon(seconds float64) EstimatorOption {
	return func(o *estimatorOptions) { o.horizon = seconds }
}

func wallClock() func() float64 {
	start := time.Now()
	return func() float64 { return time.Since(start).Seconds() }
}

// NewStateEstimator builds the 10-state estimator. stateStdDevs has one
// entry per state; localStdDevs covers [θ, dl, dr] and globalStdDevs covers
// [x, y, θ].
func NewStateEstimator(
	plant *system.LinearSystem,
	kinematics Kinematics,
	initialState *mat.VecDense,
	stateStdDevs, localStdDevs, globalStdDevs []float64,
	nominalDt float64,
	opts ...EstimatorOption,
) (*StateEstimator, error) {
	if err := dynamo.CheckLen("initial state", initialState, NumStates); err != nil {
		return nil, err
	}
	if len(globalStdDevs) != NumGlobalOutputs {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "global std devs: got %d, want %d", len(globalStdDevs), NumGlobalOutputs)
	}
	model, err := NewModel(plant, kinematics)
	if err != nil {
		return nil, err
	}

	o := estimatorOptions{horizon: estimator.DefaultHorizon}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = wallClock()
	}

	headingAdd := estimator.AngleAdd(StateHeading)
	observer, err := estimator.NewExtendedKalmanFilter(
		NumStates, NumInputs, NumLocalOutputs,
		model.Dynamics, LocalMeasurement,
		stateStdDevs, localStdDevs,
		nominalDt,
		estimator.WithMeasurementResidual(estimator.AngleResidual(0)),
		estimator.WithStateAdd(headingAdd),
	)
	if err != nil {
		return nil, errors.Wrap(err, "drive state estimator")
	}

	se := &StateEstimator{
		model:          model,
		observer:       observer,
		compensator:    estimator.NewLatencyCompensator(o.horizon),
		globalR:        dynamo.MakeCovMatrix(globalStdDevs...),
		globalResidual: estimator.AngleResidual(2),
		headingAdd:     headingAdd,
		nominalDt:      nominalDt,
		clock:          o.clock,
	}
	se.reset(initialState)
	log.Debug("drive estimator ready", "trackWidth", kinematics.TrackWidth, "nominalDt", nominalDt)
	return se, nil
}

// Update runs one loop iteration stamped with the estimator's clock.
func (se *StateEstimator) Update(heading, leftDistance, rightDistance float64, u *mat.VecDense) (*mat.VecDense, error) {
	return se.UpdateWithTime(heading, leftDistance, rightDistance, u, se.clock())
}

// UpdateWithTime predicts forward from the previous call, corrects against
// the local measurement and records the result for latency compensation.
// The first call, and any call whose timestamp does not advance, predicts
// over the nominal period. A timestamp earlier than the previous one is
// clamped to it so the replay history stays in the order ticks were applied.
func (se *StateEstimator) UpdateWithTime(heading, leftDistance, rightDistance float64, u *mat.VecDense, now float64) (*mat.VecDense, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	dt := se.nominalDt
	if se.prevTime >= 0 {
		if now > se.prevTime {
			dt = now - se.prevTime
		} else if now < se.prevTime {
			log.Warn("clock moved backwards", "now", now, "prev", se.prevTime)
			now = se.prevTime
		}
	}
	se.prevTime = now

	localY := dynamo.Vec(heading, leftDistance, rightDistance)
	if err := se.observer.Predict(u, dt); err != nil {
		return nil, errors.Wrap(err, "drive predict")
	}
	if err := se.observer.Correct(u, localY); err != nil {
		return nil, errors.Wrap(err, "drive local correct")
	}
	se.compensator.AddObserverState(se.observer, u, localY, now)
	return se.observer.Xhat(), nil
}

// ApplyPastGlobalMeasurement fuses a pose measured at timestamp, which may
// be several loops in the past.
func (se *StateEstimator) ApplyPastGlobalMeasurement(pose Pose, timestamp float64) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	err := se.compensator.ApplyPastGlobalMeasurement(se.observer, se.nominalDt, pose.Vec(), se.globalCorrect, timestamp)
	if err != nil {
		return errors.Wrap(err, "drive global measurement")
	}
	return nil
}

func (se *StateEstimator) globalCorrect(u, y *mat.VecDense) error {
	return se.observer.CorrectWith(u, y, GlobalMeasurement, se.globalR, se.globalResidual, se.headingAdd)
}

func (se *StateEstimator) EstimatedState() *mat.VecDense {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.observer.Xhat()
}

func (se *StateEstimator) EstimatedPose() Pose {
	return PoseFromVec(se.EstimatedState())
}

// Covariance returns the current error covariance.
func (se *StateEstimator) Covariance() *mat.Dense {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.observer.P()
}

func (se *StateEstimator) HistoryLen() int {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.compensator.Len()
}

// Reset restarts the filter at state and drops the replay history.
func (se *StateEstimator) Reset(state *mat.VecDense) error {
	if err := dynamo.CheckLen("state", state, NumStates); err != nil {
		return err
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	se.reset(state)
	return nil
}

func (se *StateEstimator) reset(state *mat.VecDense) {
	se.observer.Reset()
	se.observer.SetXhat(state)
	se.compensator.Clear()
	se.prevTime = -1
}
