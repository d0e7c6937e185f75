package automation

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/dynctl/internal/config"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/metrics"
	"github.com/san-kum/dynctl/internal/sim"
	"github.com/san-kum/dynctl/internal/storage"
)

var log = logging.GetLog("automation")

var ErrInvalidBatch = errors.New("automation: invalid batch")

// Batch is a scripted sequence of runs.
type Batch struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Steps       []BatchStep `yaml:"steps"`
}

// BatchStep starts from a preset or a scenario file and overrides what it
// names. Zero values leave the scenario alone.
type BatchStep struct {
	Preset     string             `yaml:"preset"`
	Config     string             `yaml:"config"`
	Seed       *uint64            `yaml:"seed"`
	Duration   float64            `yaml:"duration"`
	Dt         float64            `yaml:"dt"`
	Integrator string             `yaml:"integrator"`
	Params     map[string]float64 `yaml:"params"`
	SaveAs     string             `yaml:"save_as"`
}

// LoadBatch reads a batch file. Scenario paths are relative to the file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read batch")
	}

	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, "parse batch")
	}
	if len(b.Steps) == 0 {
		return nil, errors.Wrap(ErrInvalidBatch, "no steps")
	}
	dir := filepath.Dir(path)
	for i := range b.Steps {
		if c := b.Steps[i].Config; c != "" && !filepath.IsAbs(c) {
			b.Steps[i].Config = filepath.Join(dir, c)
		}
	}
	return &b, nil
}

// Resolve builds and validates the scenario the step describes.
func (s BatchStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Preset != "" && s.Config != "":
		return nil, errors.Wrap(ErrInvalidBatch, "step names both a preset and a config")
	case s.Config != "":
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, errors.Wrapf(ErrInvalidBatch, "unknown preset %q", s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if s.Seed != nil {
		cfg.Sim.Seed = *s.Seed
	}
	if s.Duration > 0 {
		cfg.Sim.Duration = s.Duration
	}
	if s.Dt > 0 {
		cfg.Sim.Dt = s.Dt
	}
	if s.Integrator != "" {
		cfg.Sim.Integrator = s.Integrator
	}
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := config.SetParam(&cfg.Sim, name, s.Params[name]); err != nil {
			return nil, err
		}
	}
	if s.SaveAs != "" {
		cfg.Name = s.SaveAs
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type BatchResult struct {
	Scenario string
	RunID    string
	Result   *sim.Result
}

// RunBatch runs every step in order. With a store each run is saved, under
// save_as when the step sets it. The first failing step stops the batch and
// the results so far are returned with the error.
func RunBatch(ctx context.Context, b *Batch, st *storage.Store) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(b.Steps))

	for i, step := range b.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return results, errors.Wrapf(err, "step %d", i+1)
		}
		log.Info("batch step", "batch", b.Name, "step", i+1, "of", len(b.Steps), "scenario", cfg.Name)

		s, err := sim.New(cfg.Sim)
		if err != nil {
			return results, errors.Wrapf(err, "step %d setup", i+1)
		}
		for _, m := range metrics.Default() {
			s.AddMetric(m)
		}
		res, err := s.Run(ctx)
		if err != nil {
			return results, errors.Wrapf(err, "step %d run", i+1)
		}

		br := BatchResult{Scenario: cfg.Name, Result: res}
		if st != nil {
			meta := storage.MetadataFor(cfg.Name, cfg.Sim)
			meta.ID = step.SaveAs
			id, err := st.Save(meta, res)
			if err != nil {
				return results, errors.Wrapf(err, "step %d save", i+1)
			}
			br.RunID = id
		}
		results = append(results, br)
	}
	return results, nil
}

// Sweep varies one parameter linearly and runs an ensemble at each value.
type Sweep struct {
	Base  sim.Config
	Param string
	Min   float64
	Max   float64
	Steps int
	Runs  int
}

// SweepPoint holds the ensemble mean of each metric at one value.
type SweepPoint struct {
	Value   float64
	Metrics map[string]float64
}

func (sw Sweep) Values() []float64 {
	if sw.Steps == 1 {
		return []float64{sw.Min}
	}
	vals := make([]float64, sw.Steps)
	step := (sw.Max - sw.Min) / float64(sw.Steps-1)
	for i := range vals {
		vals[i] = sw.Min + float64(i)*step
	}
	return vals
}

func RunSweep(ctx context.Context, sw Sweep) ([]SweepPoint, error) {
	if sw.Steps < 1 {
		return nil, errors.Wrapf(ErrInvalidBatch, "sweep steps %d", sw.Steps)
	}
	runs := sw.Runs
	if runs < 1 {
		runs = 1
	}

	points := make([]SweepPoint, 0, sw.Steps)
	for i, v := range sw.Values() {
		cfg := sw.Base
		if err := config.SetParam(&cfg, sw.Param, v); err != nil {
			return points, err
		}
		results, err := sim.NewEnsemble(cfg, runs, metrics.Default).Run(ctx)
		if err != nil {
			return points, errors.Wrapf(err, "%s=%g", sw.Param, v)
		}
		points = append(points, SweepPoint{Value: v, Metrics: meanMetrics(results)})
		log.Info("sweep point", "param", sw.Param, "value", v, "n", i+1, "of", sw.Steps)
	}
	return points, nil
}

func meanMetrics(results []*sim.Result) map[string]float64 {
	vals := make(map[string][]float64)
	for _, r := range results {
		for name, v := range r.Metrics {
			vals[name] = append(vals[name], v)
		}
	}
	out := make(map[string]float64, len(vals))
	for name, v := range vals {
		out[name] = stat.Mean(v, nil)
	}
	return out
}
