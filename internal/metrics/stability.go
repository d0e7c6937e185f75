package metrics

import (
	"github.com/san-kum/dynctl/internal/sim"
)

// AtReferenceRatio is the fraction of ticks the controller reported being
// within tolerance of its reference.
type AtReferenceRatio struct {
	name    string
	hits    int
	samples int
}

func NewAtReferenceRatio() *AtReferenceRatio {
	return &AtReferenceRatio{
		name: "at_reference",
	}
}

func (a *AtReferenceRatio) Name() string {
	return a.name
}

func (a *AtReferenceRatio) Observe(s sim.Sample) {
	a.samples++
	if s.AtReference {
		a.hits++
	}
}

// Value is 1 before any sample is seen.
func (a *AtReferenceRatio) Value() float64 {
	if a.samples == 0 {
		return 1.0
	}
	return float64(a.hits) / float64(a.samples)
}

func (a *AtReferenceRatio) Reset() {
	a.hits = 0
	a.samples = 0
}
