package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/sim"
)

// DefaultVoltageLimit is the battery voltage the identified drivetrains are
// clamped to.
const DefaultVoltageLimit = 12.0

// ControlEffort is the mean L1 norm of the applied input.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(s sim.Sample) {
	if s.Control == nil {
		return
	}
	c.sum += floats.Norm(dynamo.RawCopy(s.Control), 1)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum, c.samples = 0, 0
}

// Saturation is the fraction of ticks where any input sits on the limit.
// Long stretches at the rail mean the feedback is asking for more than the
// plant can give.
type Saturation struct {
	limit     float64
	saturated int
	samples   int
}

// NewSaturation counts |u_i| ≥ limit. A non-positive limit uses
// DefaultVoltageLimit.
func NewSaturation(limit float64) *Saturation {
	if limit <= 0 {
		limit = DefaultVoltageLimit
	}
	return &Saturation{limit: limit}
}

func (m *Saturation) Name() string { return "saturation" }

func (m *Saturation) Observe(s sim.Sample) {
	if s.Control == nil {
		return
	}
	m.samples++
	for _, u := range dynamo.RawCopy(s.Control) {
		if math.Abs(u) >= m.limit-1e-9 {
			m.saturated++
			return
		}
	}
}

func (m *Saturation) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return float64(m.saturated) / float64(m.samples)
}

func (m *Saturation) Reset() {
	m.saturated, m.samples = 0, 0
}
