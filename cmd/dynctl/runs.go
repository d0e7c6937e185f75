package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/dynctl/internal/analysis"
	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/export"
	"github.com/san-kum/dynctl/internal/sim"
	"github.com/san-kum/dynctl/internal/storage"
	"github.com/san-kum/dynctl/internal/viz"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tDT\tINTEG\tSEED\tTRACKING")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%d\t%.4f\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			run.Seed,
			run.Metrics["tracking_error"],
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	result, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(result.Times) == 0 {
		return fmt.Errorf("no data to plot")
	}

	th := viz.GetTheme(theme)
	fmt.Println(viz.Summary(meta.ID, []viz.Entry{
		{Label: "scenario", Value: meta.Scenario},
		{Label: "samples", Value: fmt.Sprint(len(result.Times))},
	}, meta.Metrics, th))
	fmt.Println()
	fmt.Print(viz.ResultField(result, plotWidth/2, plotWidth/4).Render(th))
	fmt.Println()
	fmt.Println(viz.ErrorPlot(result, plotWidth, plotHeight))

	if plotSpectrum {
		if err := printSpectra(result, meta.Dt); err != nil {
			return err
		}
	}
	if !plotStates {
		return nil
	}
	columns := []struct {
		rows    [][]float64
		col     int
		caption string
	}{
		{result.Truth, drive.StateLeftVelocity, "left wheel speed [m/s]"},
		{result.Truth, drive.StateRightVelocity, "right wheel speed [m/s]"},
		{result.Controls, 0, "left voltage [V]"},
		{result.Controls, 1, "right voltage [V]"},
	}
	for _, c := range columns {
		fmt.Println()
		fmt.Println(viz.ColumnPlot(c.rows, c.col, c.caption, plotWidth, plotHeight/2))
	}
	return nil
}

// chatterBand is where wheel voltage power counts as chatter rather than
// tracking.
const chatterBand = 5.0

func printSpectra(result *sim.Result, dt float64) error {
	for i, name := range []string{"left voltage", "right voltage"} {
		s, err := analysis.PowerSpectrum(viz.Column(result.Controls, i), dt)
		if err != nil {
			return err
		}
		f, _ := s.Dominant()
		fmt.Println()
		fmt.Println(viz.SeriesPlot(s.Power[1:],
			fmt.Sprintf("%s power, 0-%.0f Hz (peak %.2f Hz, %.0f%% above %.0f Hz)",
				name, s.Freqs[len(s.Freqs)-1], f, 100*s.FractionAbove(chatterBand), chatterBand),
			plotWidth, plotHeight/2))
	}
	return nil
}

var (
	exportFull  bool
	exportSVG   string
	exportField string
)

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	if !exportFull && exportSVG == "" && exportField == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}

	result, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if exportField != "" {
		svg := export.FieldToSVG(viz.ResultField(result, 60, 30), 4, viz.GetTheme(theme))
		if err := os.WriteFile(exportField, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", exportField)
	}
	if exportSVG != "" {
		svg := export.TrajectoryToSVG(result, 800, 800, viz.GetTheme(theme))
		if svg == "" {
			return fmt.Errorf("run %s has too few samples to draw", runID)
		}
		if err := os.WriteFile(exportSVG, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", exportSVG)
	}
	if !exportFull {
		return nil
	}
	return storage.ExportJSON(os.Stdout, *meta, result)
}
