package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/dynctl/internal/drive"
)

// Braille cells hold 2x4 dots; the offsets below are the dot bits.
//
//	1 4
//	2 5
//	3 6
//	7 8
var pixelMap = [4][2]rune{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

const brailleBlank = 0x2800

// Layer orders what is drawn on the field. A cell takes the color of the
// highest layer that touched it.
type Layer int8

const (
	LayerNone Layer = iota
	LayerReference
	LayerEstimate
	LayerTruth
)

// Bounds is the field rectangle in meters.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundsAround returns the smallest square around poses, padded by margin.
func BoundsAround(margin float64, poses ...drive.Pose) Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, p := range poses {
		b.MinX, b.MaxX = math.Min(b.MinX, p.X), math.Max(b.MaxX, p.X)
		b.MinY, b.MaxY = math.Min(b.MinY, p.Y), math.Max(b.MaxY, p.Y)
	}
	side := math.Max(b.MaxX-b.MinX, b.MaxY-b.MinY)/2 + margin
	cx, cy := (b.MinX+b.MaxX)/2, (b.MinY+b.MaxY)/2
	return Bounds{MinX: cx - side, MinY: cy - side, MaxX: cx + side, MaxY: cy + side}
}

// Field is a braille canvas over a rectangle of the field, with +y up.
type Field struct {
	Width, Height int // in cells
	bounds        Bounds
	grid          [][]rune
	layers        [][]Layer
}

func NewField(w, h int, bounds Bounds) *Field {
	f := &Field{Width: w, Height: h, bounds: bounds}
	f.grid = make([][]rune, h)
	f.layers = make([][]Layer, h)
	for i := range f.grid {
		f.grid[i] = make([]rune, w)
		f.layers[i] = make([]Layer, w)
	}
	f.Clear()
	return f
}

func (f *Field) Clear() {
	for i := range f.grid {
		for j := range f.grid[i] {
			f.grid[i][j] = brailleBlank
			f.layers[i][j] = LayerNone
		}
	}
}

// toPixel maps meters to dot coordinates.
func (f *Field) toPixel(x, y float64) (int, int) {
	pw, ph := float64(f.Width*2-1), float64(f.Height*4-1)
	b := f.bounds
	px := (x - b.MinX) / (b.MaxX - b.MinX) * pw
	py := (b.MaxY - y) / (b.MaxY - b.MinY) * ph
	return int(math.Round(px)), int(math.Round(py))
}

func (f *Field) set(px, py int, layer Layer) {
	if px < 0 || py < 0 {
		return
	}
	col, row := px/2, py/4
	if col >= f.Width || row >= f.Height {
		return
	}
	f.grid[row][col] |= pixelMap[py%4][px%2]
	if layer > f.layers[row][col] {
		f.layers[row][col] = layer
	}
}

// Plot sets the dot under (x, y).
func (f *Field) Plot(layer Layer, x, y float64) {
	px, py := f.toPixel(x, y)
	f.set(px, py, layer)
}

// Line draws between two field points with Bresenham's algorithm.
func (f *Field) Line(layer Layer, x0, y0, x1, y1 float64) {
	px0, py0 := f.toPixel(x0, y0)
	px1, py1 := f.toPixel(x1, y1)

	dx, dy := absInt(px1-px0), absInt(py1-py0)
	sx, sy := -1, -1
	if px0 < px1 {
		sx = 1
	}
	if py0 < py1 {
		sy = 1
	}
	e := dx - dy
	for {
		f.set(px0, py0, layer)
		if px0 == px1 && py0 == py1 {
			return
		}
		e2 := 2 * e
		if e2 > -dy {
			e -= dy
			px0 += sx
		}
		if e2 < dx {
			e += dx
			py0 += sy
		}
	}
}

// Path joins consecutive poses.
func (f *Field) Path(layer Layer, poses []drive.Pose) {
	for i := 1; i < len(poses); i++ {
		f.Line(layer, poses[i-1].X, poses[i-1].Y, poses[i].X, poses[i].Y)
	}
	if len(poses) == 1 {
		f.Plot(layer, poses[0].X, poses[0].Y)
	}
}

// Robot draws a short heading tick from the pose.
func (f *Field) Robot(layer Layer, p drive.Pose, length float64) {
	f.Line(layer, p.X, p.Y, p.X+length*math.Cos(p.Heading), p.Y+length*math.Sin(p.Heading))
}

// LayerAt reports which layer colors the cell.
func (f *Field) LayerAt(col, row int) Layer { return f.layers[row][col] }

// Dot reports whether the dot at (px, py) is set, in dot coordinates.
func (f *Field) Dot(px, py int) bool {
	col, row := px/2, py/4
	if px < 0 || py < 0 || col >= f.Width || row >= f.Height {
		return false
	}
	return f.grid[row][col]&pixelMap[py%4][px%2] != 0
}

func (f *Field) String() string {
	var b strings.Builder
	for _, row := range f.grid {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Render colors each cell by its layer.
func (f *Field) Render(t Theme) string {
	colors := map[Layer]lipgloss.Style{
		LayerReference: lipgloss.NewStyle().Foreground(t.Reference),
		LayerEstimate:  lipgloss.NewStyle().Foreground(t.Estimate),
		LayerTruth:     lipgloss.NewStyle().Foreground(t.Truth),
	}
	var b strings.Builder
	for i, row := range f.grid {
		for j, c := range row {
			if style, ok := colors[f.layers[i][j]]; ok {
				b.WriteString(style.Render(string(c)))
			} else {
				b.WriteRune(c)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
