// Package viz renders simulation runs in the terminal.
//
//   - [Field]: braille canvas of the field with reference, estimate and truth layers
//   - [ErrorPlot], [ColumnPlot]: asciigraph charts of stored runs
//   - [Summary], [EnsembleSummary]: lipgloss panels of metrics
//   - [Live]: Bubble Tea view streaming a running simulation
//
// # Key Bindings
//
//	Space - Pause/Resume (the simulation blocks while paused)
//	+/-   - Double/halve playback speed
//	T     - Cycle color themes
//	?     - Show legend
//	Q     - Quit
package viz
