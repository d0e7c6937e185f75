package optim

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dynctl/internal/config"
	"github.com/san-kum/dynctl/internal/sim"
)

func shortConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Duration = 1
	return cfg
}

func TestNewGridSearch_Validates(t *testing.T) {
	_, err := NewGridSearch([]string{"controller.r"}, nil)
	assert.Error(t, err)

	_, err = NewGridSearch([]string{"controller.r"}, [][]float64{{}})
	assert.Error(t, err)

	_, err = NewGridSearch([]string{"wheel.radius"}, [][]float64{{1}})
	assert.True(t, errors.Is(err, config.ErrUnknownParam), "got %v", err)

	g, err := NewGridSearch([]string{"controller.r", "vision.latency"}, [][]float64{{6, 12, 24}, {0, 0.05}})
	require.NoError(t, err)
	assert.Equal(t, 6, g.Size())
}

func TestGridSearch_SkipsFailingCandidates(t *testing.T) {
	g, err := NewGridSearch([]string{"dt"}, [][]float64{{0, 0.02}})
	require.NoError(t, err)

	out, err := g.Search(context.Background(), shortConfig(), "tracking_error")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Evaluated)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, map[string]float64{"dt": 0.02}, out.Params)
	assert.GreaterOrEqual(t, out.Value, 0.0)
}

func TestGridSearch_PicksLowestMetric(t *testing.T) {
	g, err := NewGridSearch([]string{"controller.r", "vision.latency"}, [][]float64{{8, 12}, {0, 0.05}})
	require.NoError(t, err)

	out, err := g.Search(context.Background(), shortConfig(), "tracking_error")
	require.NoError(t, err)
	assert.Equal(t, 4, out.Evaluated)
	assert.Zero(t, out.Failed)
	require.Len(t, out.Params, 2)

	val, err := evaluate(context.Background(), shortConfig(), out.Params, "tracking_error")
	require.NoError(t, err)
	assert.Equal(t, out.Value, val, "search result is reproducible")
}

func TestGridSearch_NoCandidate(t *testing.T) {
	g, err := NewGridSearch([]string{"dt"}, [][]float64{{0, -1}})
	require.NoError(t, err)

	_, err = g.Search(context.Background(), shortConfig(), "tracking_error")
	assert.True(t, errors.Is(err, ErrNoCandidate), "got %v", err)

	g, err = NewGridSearch([]string{"dt"}, [][]float64{{0.02}})
	require.NoError(t, err)
	_, err = g.Search(context.Background(), shortConfig(), "no_such_metric")
	assert.True(t, errors.Is(err, ErrNoCandidate), "got %v", err)
}

func TestGridSearch_Canceled(t *testing.T) {
	g, err := NewGridSearch([]string{"controller.r"}, [][]float64{{8, 12}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Search(ctx, shortConfig(), "tracking_error")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
