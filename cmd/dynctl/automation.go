package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/dynctl/internal/automation"
	"github.com/san-kum/dynctl/internal/optim"
	"github.com/san-kum/dynctl/internal/storage"
	"github.com/san-kum/dynctl/internal/viz"
)

var (
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	sweepRuns  int

	tuneParams []string
	tuneMetric string
)

func runBatch(cmd *cobra.Command, args []string) error {
	b, err := automation.LoadBatch(args[0])
	if err != nil {
		return err
	}

	var st *storage.Store
	if !noSave {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	ctx, cancel := interruptible()
	defer cancel()

	fmt.Printf("running batch %s (%d steps)...\n", b.Name, len(b.Steps))
	results, runErr := automation.RunBatch(ctx, b, st)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSCENARIO\tRUN\tSTEPS\tTRACKING\tAT REF")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.4f\t%.2f\n",
			i+1,
			r.Scenario,
			r.RunID,
			r.Result.StepsTaken,
			r.Result.Metrics["tracking_error"],
			r.Result.Metrics["at_reference"],
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	points, err := automation.RunSweep(ctx, automation.Sweep{
		Base:  cfg.Sim,
		Param: sweepParam,
		Min:   sweepMin,
		Max:   sweepMax,
		Steps: sweepSteps,
		Runs:  sweepRuns,
	})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	names := make([]string, 0, len(points[0].Metrics))
	for name := range points[0].Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(sweepParam), strings.ToUpper(strings.Join(names, "\t")))
	tracking := make([]float64, 0, len(points))
	for _, p := range points {
		fmt.Fprintf(w, "%g", p.Value)
		for _, name := range names {
			fmt.Fprintf(w, "\t%.4f", p.Metrics[name])
		}
		fmt.Fprintln(w)
		tracking = append(tracking, p.Metrics["tracking_error"])
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("tracking error " + viz.Sparkline(tracking, len(tracking)))
	return nil
}

// parseTuneParam reads name=v1,v2,...
func parseTuneParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("want name=v1,v2,...: %q", s)
	}
	var vals []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", name, err)
		}
		vals = append(vals, v)
	}
	return name, vals, nil
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tuneParams))
	ranges := make([][]float64, 0, len(tuneParams))
	for _, p := range tuneParams {
		name, vals, err := parseTuneParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}
	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible()
	defer cancel()

	fmt.Printf("searching %d candidates on %s...\n", g.Size(), cfg.Name)
	out, err := g.Search(ctx, cfg.Sim, tuneMetric)
	if err != nil {
		return err
	}

	entries := []viz.Entry{
		{Label: "scenario", Value: cfg.Name},
		{Label: "evaluated", Value: fmt.Sprint(out.Evaluated)},
		{Label: "failed", Value: fmt.Sprint(out.Failed)},
	}
	for _, name := range names {
		entries = append(entries, viz.Entry{Label: name, Value: fmt.Sprintf("%g", out.Params[name])})
	}
	fmt.Println(viz.Summary("best", entries, map[string]float64{tuneMetric: out.Value}, viz.GetTheme(theme)))
	return nil
}
