package config

import (
	"sort"

	"github.com/san-kum/dynctl/internal/sim"
)

// Preset is a named change to DefaultConfig.
type Preset struct {
	Description string
	Apply       func(*sim.Config)
}

var Presets = map[string]Preset{
	"default": {
		Description: "noisy encoders and gyro, 10 Hz vision 50 ms late",
		Apply:       func(*sim.Config) {},
	},
	"ideal": {
		Description: "noise-free sensors, controller fed the true state",
		Apply: func(c *sim.Config) {
			c.Noise.Local = []float64{0, 0, 0}
			c.Noise.Vision = []float64{0, 0, 0}
			c.Vision.Enabled = false
			c.UseTruth = true
		},
	},
	"dead-reckoning": {
		Description: "encoders and gyro only",
		Apply: func(c *sim.Config) {
			c.Vision.Enabled = false
		},
	},
	"laggy-vision": {
		Description: "5 Hz vision arriving 250 ms late",
		Apply: func(c *sim.Config) {
			c.Vision.Period = 0.2
			c.Vision.Latency = 0.25
		},
	},
	"noisy": {
		Description: "four times the encoder noise and coarse vision",
		Apply: func(c *sim.Config) {
			c.Noise.Local = []float64{0.0004, 0.02, 0.02}
			c.Noise.Vision = []float64{0.15, 0.15, 0.03}
		},
	},
	"sprint": {
		Description: "3 m/s cruise along the diagonal",
		Apply: func(c *sim.Config) {
			c.Trajectory.MaxVelocity = 3
			c.Trajectory.MaxAcceleration = 2
			c.Duration = 5
		},
	},
	"fixed-step": {
		Description: "truth integrated with fixed-step RK4",
		Apply: func(c *sim.Config) {
			c.Integrator = "rk4"
		},
	},
}

// GetPreset returns a fresh copy of the named scenario, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Description = p.Description
	p.Apply(&cfg.Sim)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
