package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/sim"
)

// rms accumulates position errors and reports their root mean square.
type rms struct {
	name string
	sq   []float64
}

func (r *rms) Name() string { return r.name }
func (r *rms) Reset()       { r.sq = r.sq[:0] }

func (r *rms) add(a, b drive.Pose) {
	d := a.Distance(b)
	r.sq = append(r.sq, d*d)
}

func (r *rms) Value() float64 {
	if len(r.sq) == 0 {
		return 0
	}
	return math.Sqrt(stat.Mean(r.sq, nil))
}

// TrackingError is the RMS distance between the true and reference poses.
type TrackingError struct{ rms }

func NewTrackingError() *TrackingError {
	return &TrackingError{rms{name: "tracking_error"}}
}

func (m *TrackingError) Observe(s sim.Sample) {
	m.add(s.TruthPose(), s.ReferencePose())
}

// EstimationError is the RMS distance between the estimated and true poses.
type EstimationError struct{ rms }

func NewEstimationError() *EstimationError {
	return &EstimationError{rms{name: "estimation_error"}}
}

func (m *EstimationError) Observe(s sim.Sample) {
	m.add(s.EstimatedPose(), s.TruthPose())
}

// Default returns a fresh set of every metric, as used by the CLI.
func Default() []sim.Metric {
	return []sim.Metric{
		NewTrackingError(),
		NewEstimationError(),
		NewControlEffort(),
		NewSaturation(DefaultVoltageLimit),
		NewAtReferenceRatio(),
	}
}

// TrackingSeries returns the per-row position error between truth and
// reference rows laid out as [x, y, ...].
func TrackingSeries(truth, reference [][]float64) []float64 {
	n := min(len(truth), len(reference))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Hypot(truth[i][0]-reference[i][0], truth[i][1]-reference[i][1])
	}
	return out
}
