package estimator

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/dynctl/internal/dynamo"
)

// DefaultHorizon is how long snapshots are kept, in seconds.
const DefaultHorizon = 1.5

// Snapshot is the observer state right after the predict/correct of one
// control-loop tick. Dt is the spacing that tick was predicted over, zero
// for filters that do not report one.
type Snapshot struct {
	Timestamp float64
	Dt        float64
	Xhat      *mat.VecDense
	P         *mat.Dense
	U         *mat.VecDense
	LocalY    *mat.VecDense
}

// tickSpacer is implemented by filters whose corrections discretize R with
// the spacing of the last predict.
type tickSpacer interface {
	Dt() float64
	SetDt(dt float64)
}

// LatencyCompensator buffers observer history so a delayed global
// measurement can be applied at the time it was taken and the later local
// measurements replayed on top of it.
type LatencyCompensator struct {
	horizon   float64
	snapshots []Snapshot
}

func NewLatencyCompensator(horizon float64) *LatencyCompensator {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &LatencyCompensator{horizon: horizon}
}

func (c *LatencyCompensator) Horizon() float64 { return c.horizon }

func (c *LatencyCompensator) Len() int { return len(c.snapshots) }

// Snapshots returns a copy of the buffer, oldest first.
func (c *LatencyCompensator) Snapshots() []Snapshot {
	out := make([]Snapshot, len(c.snapshots))
	for i, s := range c.snapshots {
		out[i] = s.clone()
	}
	return out
}

func (c *LatencyCompensator) Clear() {
	c.snapshots = c.snapshots[:0]
}

// AddObserverState records the observer after this tick's predict and
// correct. localY may be nil when the tick had no local measurement.
func (c *LatencyCompensator) AddObserverState(observer Filter, u, localY *mat.VecDense, timestamp float64) {
	snap := Snapshot{
		Timestamp: timestamp,
		Xhat:      observer.Xhat(),
		P:         observer.P(),
		U:         dynamo.CloneVec(u),
	}
	if ts, ok := observer.(tickSpacer); ok {
		snap.Dt = ts.Dt()
	}
	if localY != nil {
		snap.LocalY = dynamo.CloneVec(localY)
	}

	i := sort.Search(len(c.snapshots), func(i int) bool {
		return c.snapshots[i].Timestamp > timestamp
	})
	c.snapshots = append(c.snapshots, Snapshot{})
	copy(c.snapshots[i+1:], c.snapshots[i:])
	c.snapshots[i] = snap

	c.prune()
}

func (c *LatencyCompensator) prune() {
	if len(c.snapshots) == 0 {
		return
	}
	cutoff := c.snapshots[len(c.snapshots)-1].Timestamp - c.horizon
	drop := sort.Search(len(c.snapshots), func(i int) bool {
		return c.snapshots[i].Timestamp >= cutoff
	})
	if drop > 0 {
		c.snapshots = append(c.snapshots[:0], c.snapshots[drop:]...)
	}
}

// ApplyPastGlobalMeasurement rewinds the observer to the latest snapshot at
// or before timestamp, applies globalCorrect with y there, and replays every
// later snapshot's input and local measurement to bring the observer back to
// the present. Replayed snapshots are refreshed in place.
//
// If the buffer holds nothing old enough, ErrStaleMeasurement is returned and
// the observer is untouched. Any error during the replay restores the
// observer to its state before the call.
func (c *LatencyCompensator) ApplyPastGlobalMeasurement(
	observer Filter,
	nominalDt float64,
	y *mat.VecDense,
	globalCorrect func(u, y *mat.VecDense) error,
	timestamp float64,
) error {
	idx := sort.Search(len(c.snapshots), func(i int) bool {
		return c.snapshots[i].Timestamp > timestamp
	}) - 1
	if idx < 0 {
		log.Warn("global measurement older than history", "timestamp", timestamp, "buffered", len(c.snapshots))
		return errors.Wrapf(ErrStaleMeasurement, "t = %.4f", timestamp)
	}

	savedX, savedP := observer.Xhat(), observer.P()
	spacer, hasDt := observer.(tickSpacer)
	var savedDt float64
	if hasDt {
		savedDt = spacer.Dt()
	}
	restore := func(err error) error {
		observer.SetXhat(savedX)
		observer.SetP(savedP)
		if hasDt {
			spacer.SetDt(savedDt)
		}
		return err
	}

	snap := &c.snapshots[idx]
	observer.SetXhat(snap.Xhat)
	observer.SetP(snap.P)
	if hasDt && snap.Dt > 0 {
		spacer.SetDt(snap.Dt)
	}
	if err := globalCorrect(snap.U, y); err != nil {
		return restore(errors.Wrap(err, "global correction"))
	}

	updated := make([]Snapshot, len(c.snapshots)-idx)
	updated[0] = Snapshot{
		Timestamp: snap.Timestamp,
		Dt:        snap.Dt,
		Xhat:      observer.Xhat(),
		P:         observer.P(),
		U:         snap.U,
		LocalY:    snap.LocalY,
	}

	for i := idx + 1; i < len(c.snapshots); i++ {
		entry := c.snapshots[i]
		dt := entry.Dt
		if dt <= 0 {
			dt = entry.Timestamp - c.snapshots[i-1].Timestamp
		}
		if dt <= 0 {
			dt = nominalDt
		}
		if err := observer.Predict(entry.U, dt); err != nil {
			return restore(errors.Wrapf(err, "replay predict at t = %.4f", entry.Timestamp))
		}
		if entry.LocalY != nil {
			if err := observer.Correct(entry.U, entry.LocalY); err != nil {
				return restore(errors.Wrapf(err, "replay correct at t = %.4f", entry.Timestamp))
			}
		}
		updated[i-idx] = Snapshot{
			Timestamp: entry.Timestamp,
			Dt:        entry.Dt,
			Xhat:      observer.Xhat(),
			P:         observer.P(),
			U:         entry.U,
			LocalY:    entry.LocalY,
		}
	}

	copy(c.snapshots[idx:], updated)
	if hasDt {
		spacer.SetDt(savedDt)
	}
	return nil
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Timestamp: s.Timestamp,
		Dt:        s.Dt,
		Xhat:      dynamo.CloneVec(s.Xhat),
		P:         mat.DenseCopyOf(s.P),
		U:         dynamo.CloneVec(s.U),
	}
	if s.LocalY != nil {
		out.LocalY = dynamo.CloneVec(s.LocalY)
	}
	return out
}
