package optim

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/san-kum/dynctl/internal/config"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/metrics"
	"github.com/san-kum/dynctl/internal/sim"
)

var log = logging.GetLog("optim")

var ErrNoCandidate = errors.New("optim: no candidate completed")

// GridSearch tries every combination of the given parameter values on a base
// scenario and keeps the one with the lowest metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, errors.Errorf("optim: %d parameters with %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if len(ranges[i]) == 0 {
			return nil, errors.Errorf("optim: no values for %s", name)
		}
		if err := config.SetParam(&sim.Config{}, name, 0); err != nil {
			return nil, err
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of candidates Search evaluates.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Outcome is the best candidate found.
type Outcome struct {
	Params    map[string]float64
	Value     float64
	Evaluated int
	Failed    int
}

// Search runs one simulation per candidate. Candidates that fail to build,
// error during the run or leave the metric NaN are counted and skipped.
func (g *GridSearch) Search(ctx context.Context, base sim.Config, metricName string) (*Outcome, error) {
	out := &Outcome{Value: math.Inf(1)}
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), base, metricName, out); err != nil {
		return out, err
	}
	if out.Params == nil {
		return out, errors.Wrapf(ErrNoCandidate, "%d of %d failed", out.Failed, out.Evaluated)
	}
	log.Info("grid search done", "metric", metricName, "best", out.Value, "params", out.Params, "evaluated", out.Evaluated)
	return out, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base sim.Config,
	metricName string,
	out *Outcome,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		out.Evaluated++
		val, err := evaluate(ctx, base, current, metricName)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out.Failed++
			log.Debug("candidate failed", "params", current, "err", err)
			return nil
		}
		if val < out.Value {
			out.Value = val
			out.Params = make(map[string]float64, len(current))
			for k, v := range current {
				out.Params[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[paramName] = val
		if err := g.searchRecursive(ctx, depth+1, current, base, metricName, out); err != nil {
			return err
		}
	}
	delete(current, paramName)
	return nil
}

func evaluate(ctx context.Context, base sim.Config, params map[string]float64, metricName string) (float64, error) {
	cfg := base
	for name, v := range params {
		if err := config.SetParam(&cfg, name, v); err != nil {
			return 0, err
		}
	}
	s, err := sim.New(cfg)
	if err != nil {
		return 0, err
	}
	for _, m := range metrics.Default() {
		s.AddMetric(m)
	}
	res, err := s.Run(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, res.Errors[0]
	}
	val, ok := res.Metrics[metricName]
	if !ok {
		return 0, errors.Errorf("optim: run did not report %s", metricName)
	}
	if math.IsNaN(val) {
		return 0, errors.Errorf("optim: %s is NaN", metricName)
	}
	return val, nil
}
