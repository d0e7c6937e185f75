package viz

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/dynamo"
	"github.com/san-kum/dynctl/internal/sim"
)

func TestBoundsAround(t *testing.T) {
	b := BoundsAround(0.5, drive.Pose{}, drive.Pose{X: 4, Y: 2})
	assert.InDelta(t, -0.5, b.MinX, 1e-12)
	assert.InDelta(t, 4.5, b.MaxX, 1e-12)
	assert.InDelta(t, b.MaxX-b.MinX, b.MaxY-b.MinY, 1e-12)
	assert.InDelta(t, 1.0, (b.MinY+b.MaxY)/2, 1e-12)
}

func TestField_Corners(t *testing.T) {
	f := NewField(4, 2, Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1})

	// +y is up: the bottom-left corner lands in the last row.
	f.Plot(LayerTruth, 0, 0)
	assert.Equal(t, LayerTruth, f.LayerAt(0, 1))
	assert.Equal(t, rune(brailleBlank|0x40), f.grid[1][0])
	assert.True(t, f.Dot(0, 7))
	assert.False(t, f.Dot(1, 7))
	assert.False(t, f.Dot(-1, 0))
	assert.False(t, f.Dot(8, 0))

	f.Plot(LayerReference, 1, 1)
	assert.Equal(t, LayerReference, f.LayerAt(3, 0))

	// Out of range is ignored.
	f.Plot(LayerTruth, 5, 5)
	f.Plot(LayerTruth, -1, -1)

	f.Clear()
	assert.Equal(t, strings.Repeat(string(rune(brailleBlank)), 4)+"\n", strings.SplitAfter(f.String(), "\n")[0])
	assert.Equal(t, LayerNone, f.LayerAt(0, 1))
}

func TestField_HigherLayerWins(t *testing.T) {
	f := NewField(2, 1, Bounds{MaxX: 1, MaxY: 1})
	f.Plot(LayerTruth, 0, 1)
	f.Plot(LayerEstimate, 0, 1)
	assert.Equal(t, LayerTruth, f.LayerAt(0, 0))
}

func TestField_Line(t *testing.T) {
	f := NewField(10, 1, Bounds{MaxX: 1, MaxY: 1})
	f.Line(LayerEstimate, 0, 1, 1, 1)
	for col := 0; col < 10; col++ {
		assert.Equal(t, LayerEstimate, f.LayerAt(col, 0), "col %d", col)
	}
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁▁▅█", Sparkline([]float64{5, 0, 0, 0.6, 1}, 4))
	assert.Equal(t, "───", Sparkline(nil, 3))
}

func testResult() *sim.Result {
	return &sim.Result{
		Times:      []float64{0, 0.02, 0.04},
		Truth:      [][]float64{{0, 0}, {0.1, 0}, {0.2, 0}},
		Estimates:  [][]float64{{0, 0}, {0.1, 0.01}, {0.2, 0.02}},
		References: [][]float64{{0, 0}, {0.12, 0}, {0.25, 0}},
		Metrics:    map[string]float64{"tracking_error": 0.03},
	}
}

func TestErrorPlot(t *testing.T) {
	out := ErrorPlot(testResult(), 40, 6)
	assert.Contains(t, out, "position error")
	assert.Contains(t, out, "estimation")
	assert.Empty(t, ErrorPlot(&sim.Result{}, 40, 6))
}

func TestColumnPlot(t *testing.T) {
	out := ColumnPlot(testResult().Truth, 0, "x [m]", 40, 5)
	assert.Contains(t, out, "x [m]")
	assert.Empty(t, ColumnPlot(testResult().Truth, 7, "missing", 40, 5))
}

func TestResultField(t *testing.T) {
	res := &sim.Result{
		Truth:      [][]float64{{0, 0, 0}, {1, 1, 0}},
		Estimates:  [][]float64{{0, 0, 0}, {1, 1, 0}},
		References: [][]float64{{0, 0, 0}, {1, 0.9, 0}, {2}},
	}
	assert.Len(t, Poses(res.References), 2)

	f := ResultField(res, 20, 10)
	var truth, ref int
	for row := 0; row < f.Height; row++ {
		for col := 0; col < f.Width; col++ {
			switch f.LayerAt(col, row) {
			case LayerTruth:
				truth++
			case LayerReference:
				ref++
			}
		}
	}
	assert.Greater(t, truth, 0)
	assert.Greater(t, ref, 0)

	empty := ResultField(testResult(), 4, 2)
	assert.Equal(t, strings.Repeat(string(rune(brailleBlank)), 4)+"\n", strings.SplitAfter(empty.String(), "\n")[0])
}

func TestSummary(t *testing.T) {
	out := Summary("run", []Entry{{"id", "abc"}}, map[string]float64{"b": 2, "a": 1}, ThemeMinimal)
	assert.Contains(t, out, "abc")
	assert.Less(t, strings.Index(out, "a "), strings.Index(out, "b "))
}

func TestEnsembleStats(t *testing.T) {
	results := []*sim.Result{
		{Metrics: map[string]float64{"e": 1}},
		{Metrics: map[string]float64{"e": 3}},
	}
	stats := EnsembleStats(results)
	assert.InDelta(t, 2.0, stats["e"][0], 1e-12)
	assert.InDelta(t, 1.4142135623730951, stats["e"][1], 1e-12)

	single := EnsembleStats(results[:1])
	assert.Equal(t, [2]float64{1, 0}, single["e"])

	assert.Contains(t, EnsembleSummary("ensemble", results, ThemeCyberpunk), "±")
}

func TestThemes(t *testing.T) {
	assert.Equal(t, ThemeRetroGreen, NextTheme(ThemeCyberpunk))
	assert.Equal(t, ThemeCyberpunk, NextTheme(ThemeMinimal))
	assert.Equal(t, ThemeCyberpunk, GetTheme("nope"))
	assert.Len(t, ThemeNames(), len(Themes))
}

func liveSample(t float64) sim.Sample {
	return sim.Sample{
		Time:        t,
		Truth:       dynamo.Zeros(drive.NumStates),
		Estimate:    dynamo.Zeros(drive.NumStates),
		Reference:   dynamo.Vec(t, 0, 0, 1, 1),
		Control:     dynamo.Vec(1, 1),
		AtReference: t < 0.05,
	}
}

func TestLive_StreamsSamples(t *testing.T) {
	samples := make(chan sim.Sample, 2)
	done := make(chan error, 1)
	samples <- liveSample(0)
	samples <- liveSample(0.1)
	close(samples)
	done <- nil

	m := NewLive("test", sim.DefaultConfig(), samples, done)

	msg := m.Init()()
	require.IsType(t, sampleMsg{}, msg)
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)

	// Pausing holds the next read until resumed.
	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	_, cmd = m.Update(resumeMsg{})
	assert.Nil(t, cmd)
	assert.True(t, m.waiting)
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.NotNil(t, cmd)

	m.Update(cmd())
	_, cmd = m.Update(resumeMsg{})
	m.Update(cmd())

	assert.True(t, m.finished)
	assert.NoError(t, m.err)
	assert.Equal(t, 2, m.ticks)
	assert.Equal(t, 1, m.atRef)
	assert.Contains(t, m.View(), "DONE")
}

func TestLive_Keys(t *testing.T) {
	m := NewLive("keys", sim.DefaultConfig(), nil, nil)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	assert.Equal(t, 2.0, m.speed)
	for i := 0; i < 10; i++ {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}})
	}
	assert.Equal(t, minSpeed, m.speed)

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	assert.Equal(t, ThemeRetroGreen.Name, m.theme.Name)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "waiting for first sample")
}
