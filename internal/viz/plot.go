package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/metrics"
	"github.com/san-kum/dynctl/internal/sim"
)

// ErrorPlot charts the tracking error and, when the estimate differs from
// the truth, the estimation error of a run.
func ErrorPlot(res *sim.Result, width, height int) string {
	if len(res.Times) == 0 {
		return ""
	}
	tracking := metrics.TrackingSeries(res.Truth, res.References)
	estimation := metrics.TrackingSeries(res.Estimates, res.Truth)

	caption := fmt.Sprintf("position error [m] over %.2f s", res.Times[len(res.Times)-1])
	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.Caption(caption),
	}
	if allZero(estimation) {
		return asciigraph.Plot(tracking, append(opts, asciigraph.SeriesColors(asciigraph.Red))...)
	}
	return asciigraph.PlotMany([][]float64{tracking, estimation}, append(opts,
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Blue),
		asciigraph.SeriesLegends("tracking", "estimation"),
	)...)
}

// ColumnPlot charts one column of rows, such as a truth state or an input.
func ColumnPlot(rows [][]float64, col int, caption string, width, height int) string {
	return SeriesPlot(Column(rows, col), caption, width, height)
}

func SeriesPlot(data []float64, caption string, width, height int) string {
	if len(data) == 0 {
		return ""
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// Column collects entry col of each row long enough to have one.
func Column(rows [][]float64, col int) []float64 {
	data := make([]float64, 0, len(rows))
	for _, r := range rows {
		if col < len(r) {
			data = append(data, r[col])
		}
	}
	return data
}

func allZero(xs []float64) bool {
	for _, x := range xs {
		if x != 0 {
			return false
		}
	}
	return true
}

// ResultField draws the reference, estimated and true paths of a run.
func ResultField(res *sim.Result, width, height int) *Field {
	ref := Poses(res.References)
	est := Poses(res.Estimates)
	truth := Poses(res.Truth)

	all := append(append(append([]drive.Pose{}, ref...), est...), truth...)
	if len(all) == 0 {
		return NewField(width, height, Bounds{MaxX: 1, MaxY: 1})
	}
	f := NewField(width, height, BoundsAround(0.25, all...))
	f.Path(LayerReference, ref)
	f.Path(LayerEstimate, est)
	f.Path(LayerTruth, truth)
	return f
}

// Poses reads [x, y, θ] from the first columns of each row. Short rows are
// skipped.
func Poses(rows [][]float64) []drive.Pose {
	out := make([]drive.Pose, 0, len(rows))
	for _, r := range rows {
		if len(r) >= 3 {
			out = append(out, drive.Pose{X: r[0], Y: r[1], Heading: r[2]})
		}
	}
	return out
}
