package sim

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/drive"
)

// Sample is one control-loop tick as seen by metrics and observers.
type Sample struct {
	Time        float64
	Truth       *mat.VecDense // 10-state truth
	Estimate    *mat.VecDense // 10-state estimate
	Reference   *mat.VecDense // 5-state reference
	Control     *mat.VecDense
	AtReference bool
}

// TruthPose returns the true pose at this tick.
func (s Sample) TruthPose() drive.Pose { return drive.PoseFromVec(s.Truth) }

func (s Sample) EstimatedPose() drive.Pose { return drive.PoseFromVec(s.Estimate) }

func (s Sample) ReferencePose() drive.Pose { return drive.PoseFromVec(s.Reference) }

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(s Sample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s Sample)

func (f ObserverFunc) OnStep(s Sample) { f(s) }

// PlantConfig identifies the drivetrain from feedforward gains.
type PlantConfig struct {
	KvLinear   float64 `yaml:"kv_linear"`
	KaLinear   float64 `yaml:"ka_linear"`
	KvAngular  float64 `yaml:"kv_angular"`
	KaAngular  float64 `yaml:"ka_angular"`
	TrackWidth float64 `yaml:"track_width"`
}

// NoiseConfig holds the standard deviations of the simulated sensors. A
// vector of zeros disables that noise source.
type NoiseConfig struct {
	Local  []float64 `yaml:"local"`  // heading, left distance, right distance
	Vision []float64 `yaml:"vision"` // x, y, heading
}

type EstimatorConfig struct {
	StateStdDevs  []float64 `yaml:"state_std_devs"`
	LocalStdDevs  []float64 `yaml:"local_std_devs"`
	GlobalStdDevs []float64 `yaml:"global_std_devs"`
	Horizon       float64   `yaml:"horizon"`
}

type ControllerConfig struct {
	Q                 []float64  `yaml:"q"`
	R                 []float64  `yaml:"r"`
	PoseTolerance     [3]float64 `yaml:"pose_tolerance"`
	VelocityTolerance float64    `yaml:"velocity_tolerance"`
}

type VisionConfig struct {
	Enabled bool    `yaml:"enabled"`
	Period  float64 `yaml:"period"`
	Latency float64 `yaml:"latency"`
}

type TrajectoryConfig struct {
	Start           [3]float64 `yaml:"start"`
	Goal            [3]float64 `yaml:"goal"`
	MaxVelocity     float64    `yaml:"max_velocity"`
	MaxAcceleration float64    `yaml:"max_acceleration"`
}

// Config is a complete closed-loop scenario.
type Config struct {
	Dt         float64 `yaml:"dt"`
	Duration   float64 `yaml:"duration"`
	Seed       uint64  `yaml:"seed"`
	Integrator string  `yaml:"integrator"`
	Tolerance  float64 `yaml:"tolerance"`

	// UseTruth feeds the controller the true state instead of the estimate.
	UseTruth bool `yaml:"use_truth"`

	Plant      PlantConfig      `yaml:"plant"`
	Noise      NoiseConfig      `yaml:"noise"`
	Estimator  EstimatorConfig  `yaml:"estimator"`
	Controller ControllerConfig `yaml:"controller"`
	Vision     VisionConfig     `yaml:"vision"`
	Trajectory TrajectoryConfig `yaml:"trajectory"`
}

// Result holds one row per control tick.
type Result struct {
	Times       []float64
	Truth       [][]float64
	Estimates   [][]float64
	References  [][]float64
	Controls    [][]float64
	AtReference []bool

	Metrics    map[string]float64
	Errors     []error
	StepsTaken int
}

// DefaultConfig drives a 1 m wide robot along a 5.6 m diagonal with noisy
// encoders, a gyro and 10 Hz vision arriving 50 ms late.
func DefaultConfig() Config {
	return Config{
		Dt:         0.02,
		Duration:   6.0,
		Seed:       1,
		Integrator: "rkdp",
		Tolerance:  1e-6,
		Plant: PlantConfig{
			KvLinear:   3.02,
			KaLinear:   0.642,
			KvAngular:  1.382,
			KaAngular:  0.08495,
			TrackWidth: 1.0,
		},
		Noise: NoiseConfig{
			Local:  []float64{0.0001, 0.005, 0.005},
			Vision: []float64{0.05, 0.05, 0.01},
		},
		Estimator: EstimatorConfig{
			StateStdDevs:  []float64{0.002, 0.002, 0.0001, 1.5, 1.5, 0.5, 0.5, 10.0, 10.0, 2.0},
			LocalStdDevs:  []float64{0.0001, 0.005, 0.005},
			GlobalStdDevs: []float64{0.5, 0.5, 0.01},
			Horizon:       1.5,
		},
		Controller: ControllerConfig{
			Q:                 []float64{0.0625, 0.125, 2.5, 0.95, 0.95},
			R:                 []float64{12.0, 12.0},
			PoseTolerance:     [3]float64{0.06, 0.06, 0.06},
			VelocityTolerance: 0.3,
		},
		Vision: VisionConfig{
			Enabled: true,
			Period:  0.1,
			Latency: 0.05,
		},
		Trajectory: TrajectoryConfig{
			Goal:            [3]float64{4.8768, 2.7432, 0},
			MaxVelocity:     2.0,
			MaxAcceleration: 1.0,
		},
	}
}
