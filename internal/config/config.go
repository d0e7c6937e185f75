package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/integrators"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/sim"
)

// Config is a scenario file: the closed-loop simulation plus where its logs
// go.
type Config struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Sim         sim.Config     `yaml:",inline"`
	Logging     logging.Config `yaml:"logging"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:    "default",
		Sim:     sim.DefaultConfig(),
		Logging: logging.PresetConfigDiscard,
	}
}

// Load reads a scenario, filling anything the file omits from DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write config")
}

// Validate checks everything the simulator would otherwise reject halfway
// through construction.
func (c *Config) Validate() error {
	s := c.Sim
	if err := sim.Validate(s); err != nil {
		return err
	}
	if _, err := integrators.ByName(s.Integrator, s.Tolerance); err != nil {
		return err
	}
	lengths := []struct {
		name string
		got  int
		want int
	}{
		{"estimator.state_std_devs", len(s.Estimator.StateStdDevs), drive.NumStates},
		{"estimator.local_std_devs", len(s.Estimator.LocalStdDevs), drive.NumLocalOutputs},
		{"estimator.global_std_devs", len(s.Estimator.GlobalStdDevs), drive.NumGlobalOutputs},
		{"controller.q", len(s.Controller.Q), drive.ControllerStates},
		{"controller.r", len(s.Controller.R), drive.NumInputs},
	}
	for _, l := range lengths {
		if l.got != l.want {
			return errors.Wrapf(sim.ErrInvalidConfig, "%s needs %d entries, got %d", l.name, l.want, l.got)
		}
	}
	if s.Estimator.Horizon <= 0 {
		return errors.Wrapf(sim.ErrInvalidConfig, "estimator.horizon must be positive, got %g", s.Estimator.Horizon)
	}
	tr := s.Trajectory
	if tr.MaxVelocity <= 0 || tr.MaxAcceleration <= 0 {
		return errors.Wrapf(sim.ErrInvalidConfig, "trajectory limits v=%g a=%g", tr.MaxVelocity, tr.MaxAcceleration)
	}
	if tr.Start[0] == tr.Goal[0] && tr.Start[1] == tr.Goal[1] {
		return errors.Wrap(sim.ErrInvalidConfig, "trajectory start and goal coincide")
	}
	return nil
}
