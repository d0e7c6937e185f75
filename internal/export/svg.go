package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/sim"
	"github.com/san-kum/dynctl/internal/viz"
)

const background = "#0a0a0a"

// FieldToSVG draws every set braille dot of f as a circle colored by the
// layer of its cell.
func FieldToSVG(f *viz.Field, scale float64, t viz.Theme) string {
	if f == nil {
		return ""
	}

	width := float64(f.Width) * scale * 2
	height := float64(f.Height) * scale * 4

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)

	dotRadius := scale * 0.4
	for py := 0; py < f.Height*4; py++ {
		for px := 0; px < f.Width*2; px++ {
			if !f.Dot(px, py) {
				continue
			}
			cx := float64(px)*scale + scale/2
			cy := float64(py)*scale + scale/2
			fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="%.1f" fill="%s"/>
`, cx, cy, dotRadius, layerColor(f.LayerAt(px/2, py/4), t))
		}
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}

func layerColor(l viz.Layer, t viz.Theme) string {
	switch l {
	case viz.LayerTruth:
		return string(t.Truth)
	case viz.LayerEstimate:
		return string(t.Estimate)
	case viz.LayerReference:
		return string(t.Reference)
	default:
		return string(t.Text)
	}
}

// TrajectoryToSVG draws the reference, estimated and true paths of a run on
// shared axes with +y up, marking where the truth starts and ends.
func TrajectoryToSVG(res *sim.Result, width, height int, t viz.Theme) string {
	if res == nil || len(res.Times) < 2 {
		return ""
	}

	ref := viz.Poses(res.References)
	est := viz.Poses(res.Estimates)
	truth := viz.Poses(res.Truth)
	if len(truth) == 0 {
		return ""
	}

	all := append(append(append([]drive.Pose{}, ref...), est...), truth...)
	b := viz.BoundsAround(0.25, all...)
	toSVG := func(p drive.Pose) (float64, float64) {
		x := (p.X - b.MinX) / (b.MaxX - b.MinX) * float64(width)
		y := float64(height) - (p.Y-b.MinY)/(b.MaxY-b.MinY)*float64(height)
		return x, y
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)

	layers := []struct {
		id    string
		color string
		dash  string
		path  []drive.Pose
	}{
		{"reference", string(t.Reference), "6 4", ref},
		{"estimate", string(t.Estimate), "", est},
		{"truth", string(t.Truth), "", truth},
	}
	for _, l := range layers {
		fmt.Fprintf(&sb, `<path id="%s" fill="none" stroke="%s" stroke-width="1.5"`, l.id, l.color)
		if l.dash != "" {
			fmt.Fprintf(&sb, ` stroke-dasharray="%s"`, l.dash)
		}
		sb.WriteString(` d="`)
		for i, p := range l.path {
			x, y := toSVG(p)
			if i == 0 {
				fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
	}

	for _, p := range []drive.Pose{truth[0], truth[len(truth)-1]} {
		x, y := toSVG(p)
		fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="4" fill="%s"/>
`, x, y, string(t.Text))
	}

	sb.WriteString("</svg>\n")
	return sb.String()
}
