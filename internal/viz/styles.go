package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	muted lipgloss.Style
	good  lipgloss.Style
	warn  lipgloss.Style
	bad   lipgloss.Style
	panel lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(t.Truth),
		label: lipgloss.NewStyle().Foreground(t.Muted).Width(14),
		value: lipgloss.NewStyle().Foreground(t.Text),
		muted: lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		good:  lipgloss.NewStyle().Bold(true).Foreground(t.Good),
		warn:  lipgloss.NewStyle().Bold(true).Foreground(t.Warn),
		bad:   lipgloss.NewStyle().Bold(true).Foreground(t.Bad),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
	}
}

func (s styles) row(label, value string) string {
	return s.label.Render(label) + s.value.Render(value) + "\n"
}

// ProgressBar fills width cells in proportion to frac, colored by how far
// along it is.
func ProgressBar(frac float64, width int, t Theme) string {
	filled := int(frac * float64(width))
	filled = max(0, min(width, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	s := newStyles(t)
	switch {
	case frac > 0.8:
		return s.good.Render(bar)
	case frac > 0.4:
		return s.warn.Render(bar)
	}
	return s.bad.Render(bar)
}

// Sparkline draws the last width values scaled between zero and their
// maximum. Errors are non-negative, so zero is the floor.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return strings.Repeat("─", width)
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	top := 0.0
	for _, v := range values {
		top = max(top, v)
	}
	if top == 0 {
		top = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int(v / top * float64(len(chars)-1))
		b.WriteRune(chars[max(0, min(len(chars)-1, idx))])
	}
	return b.String()
}

func Separator(width int, t Theme) string {
	mid := width / 2
	return newStyles(t).muted.Render(strings.Repeat("─", mid-2) + " ◆ " + strings.Repeat("─", width-mid-3))
}
