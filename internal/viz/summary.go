package viz

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/dynctl/internal/sim"
)

// Entry is one labelled line of a summary panel.
type Entry struct {
	Label, Value string
}

// Summary renders a titled panel of entries followed by the metrics sorted
// by name.
func Summary(title string, entries []Entry, values map[string]float64, t Theme) string {
	s := newStyles(t)
	var b strings.Builder
	b.WriteString(s.title.Render(title) + "\n")
	for _, e := range entries {
		b.WriteString(s.row(e.Label, e.Value))
	}
	if len(values) > 0 {
		b.WriteString("\n")
	}
	for _, name := range sortedKeys(values) {
		b.WriteString(s.row(name, fmt.Sprintf("%.6f", values[name])))
	}
	return s.panel.Render(strings.TrimRight(b.String(), "\n"))
}

// EnsembleStats returns the mean and standard deviation of every metric
// across results.
func EnsembleStats(results []*sim.Result) map[string][2]float64 {
	samples := map[string][]float64{}
	for _, r := range results {
		for name, v := range r.Metrics {
			samples[name] = append(samples[name], v)
		}
	}
	out := make(map[string][2]float64, len(samples))
	for name, xs := range samples {
		if len(xs) < 2 {
			out[name] = [2]float64{xs[0], 0}
			continue
		}
		mean, std := stat.MeanStdDev(xs, nil)
		out[name] = [2]float64{mean, std}
	}
	return out
}

// EnsembleSummary renders EnsembleStats as mean ± std lines.
func EnsembleSummary(title string, results []*sim.Result, t Theme) string {
	s := newStyles(t)
	stats := EnsembleStats(results)

	var b strings.Builder
	b.WriteString(s.title.Render(title) + "\n")
	b.WriteString(s.row("runs", fmt.Sprint(len(results))))
	failed := 0
	for _, r := range results {
		if len(r.Errors) > 0 {
			failed++
		}
	}
	if failed > 0 {
		b.WriteString(s.label.Render("failed") + s.bad.Render(fmt.Sprint(failed)) + "\n")
	}
	b.WriteString("\n")

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ms := stats[name]
		b.WriteString(s.row(name, fmt.Sprintf("%.6f ± %.6f", ms[0], ms[1])))
	}
	return s.panel.Render(strings.TrimRight(b.String(), "\n"))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
