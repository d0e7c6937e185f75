package config

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/dynctl/internal/sim"
)

var ErrUnknownParam = errors.New("config: unknown parameter")

// Scalar knobs sweeps and searches may turn. Paired entries, such as both
// wheel velocities, move together.
var params = map[string]func(*sim.Config, float64){
	"dt":                          func(c *sim.Config, v float64) { c.Dt = v },
	"duration":                    func(c *sim.Config, v float64) { c.Duration = v },
	"vision.period":               func(c *sim.Config, v float64) { c.Vision.Period = v },
	"vision.latency":              func(c *sim.Config, v float64) { c.Vision.Latency = v },
	"estimator.horizon":           func(c *sim.Config, v float64) { c.Estimator.Horizon = v },
	"controller.q.x":              func(c *sim.Config, v float64) { c.Controller.Q = setAt(c.Controller.Q, v, 0) },
	"controller.q.y":              func(c *sim.Config, v float64) { c.Controller.Q = setAt(c.Controller.Q, v, 1) },
	"controller.q.heading":        func(c *sim.Config, v float64) { c.Controller.Q = setAt(c.Controller.Q, v, 2) },
	"controller.q.velocity":       func(c *sim.Config, v float64) { c.Controller.Q = setAt(c.Controller.Q, v, 3, 4) },
	"controller.r":                func(c *sim.Config, v float64) { c.Controller.R = setAt(c.Controller.R, v, 0, 1) },
	"trajectory.max_velocity":     func(c *sim.Config, v float64) { c.Trajectory.MaxVelocity = v },
	"trajectory.max_acceleration": func(c *sim.Config, v float64) { c.Trajectory.MaxAcceleration = v },
	"noise.local.encoder":         func(c *sim.Config, v float64) { c.Noise.Local = setAt(c.Noise.Local, v, 1, 2) },
	"noise.vision.xy":             func(c *sim.Config, v float64) { c.Noise.Vision = setAt(c.Noise.Vision, v, 0, 1) },
}

// setAt copies xs so configs sharing a backing array stay independent.
func setAt(xs []float64, v float64, idx ...int) []float64 {
	out := append([]float64(nil), xs...)
	for _, i := range idx {
		if i < len(out) {
			out[i] = v
		}
	}
	return out
}

// SetParam sets the named scalar on cfg.
func SetParam(cfg *sim.Config, name string, v float64) error {
	set, ok := params[name]
	if !ok {
		return errors.Wrapf(ErrUnknownParam, "%q", name)
	}
	set(cfg, v)
	return nil
}

func ParamNames() []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
