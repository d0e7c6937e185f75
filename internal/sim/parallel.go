package sim

import (
	"context"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// Ensemble runs one scenario under consecutive seeds in parallel. Each run
// builds its own estimator, controller and metrics.
type Ensemble struct {
	cfg     Config
	numRuns int
	workers int
	metrics func() []Metric
}

// NewEnsemble seeds run i with cfg.Seed+i. metrics is called once per run
// and may be nil.
func NewEnsemble(cfg Config, numRuns int, metrics func() []Metric) *Ensemble {
	return &Ensemble{
		cfg:     cfg,
		numRuns: numRuns,
		workers: runtime.GOMAXPROCS(0),
		metrics: metrics,
	}
}

// SetWorkers bounds how many runs execute at once. Non-positive values are
// ignored.
func (e *Ensemble) SetWorkers(n int) {
	if n > 0 {
		e.workers = n
	}
}

func (e *Ensemble) Run(ctx context.Context) ([]*Result, error) {
	if e.numRuns <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "ensemble needs at least one run, got %d", e.numRuns)
	}
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cfg := e.cfg
			cfg.Seed = e.cfg.Seed + uint64(idx)

			sim, err := New(cfg)
			if err != nil {
				errs[idx] = err
				return
			}
			if e.metrics != nil {
				for _, m := range e.metrics() {
					sim.AddMetric(m)
				}
			}
			results[idx], errs[idx] = sim.Run(ctx)
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "run %d", i)
		}
	}
	return results, nil
}
