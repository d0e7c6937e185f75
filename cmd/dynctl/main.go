package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/dynctl/internal/config"
	"github.com/san-kum/dynctl/internal/integrators"
	"github.com/san-kum/dynctl/internal/logging"
)

var (
	dataDir  string
	logFile  string
	logLevel string

	configFile string
	dt         float64
	duration   float64
	seed       uint64
	integrator string
	noSave     bool

	numRuns int
	workers int

	plotWidth    int
	plotHeight   int
	plotStates   bool
	plotSpectrum bool

	theme string
)

// main registers the commands and flags and runs the root command, exiting
// with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "dynctl",
		Short:         "differential-drive estimation and control lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "runs", "directory runs are stored in")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "rotating log file (\"-\" for stdout)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "default log level")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "cyberpunk", "color theme")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a closed-loop simulation and store it",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addScenarioFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [preset]",
		Short: "run a scenario under consecutive seeds and summarize the metrics",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	addScenarioFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&numRuns, "runs", 10, "number of runs")
	ensembleCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (0 for GOMAXPROCS)")

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "run a simulation with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the tracking error of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")
	plotCmd.Flags().BoolVar(&plotStates, "states", false, "also plot the true wheel speeds and inputs")
	plotCmd.Flags().BoolVar(&plotSpectrum, "spectrum", false, "also plot the power spectrum of the inputs")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON, or the whole run",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().BoolVar(&exportFull, "full", false, "include the time series")
	exportCmd.Flags().StringVar(&exportSVG, "svg", "", "write the paths to this SVG file")
	exportCmd.Flags().StringVar(&exportField, "field-svg", "", "write the braille field view to this SVG file")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "run the steps of a batch file",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "vary one parameter and report the mean metrics",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addScenarioFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "vision.latency", fmt.Sprintf("parameter %v", config.ParamNames()))
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.3, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 7, "number of values")
	sweepCmd.Flags().IntVar(&sweepRuns, "runs", 4, "seeds per value")

	tuneCmd := &cobra.Command{
		Use:   "tune [preset]",
		Short: "grid-search parameters for the lowest metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTune,
	}
	addScenarioFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", []string{"controller.r=6,9,12,18"}, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "tracking_error", "metric to minimize")

	lqrCmd := &cobra.Command{
		Use:   "lqr",
		Short: "design an elevator LQR and print its gain",
		RunE:  runLQR,
	}
	lqrCmd.Flags().Float64Var(&lqrDt, "dt", 0.00505, "controller period")
	lqrCmd.Flags().Float64Var(&lqrDelay, "delay", 0.025, "input delay to compensate")
	lqrCmd.Flags().Float64Var(&lqrMass, "mass", 5, "carriage mass [kg]")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scenario presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Printf("  %-16s %s\n", name, config.Presets[name].Description)
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [preset] [path]",
		Short: "write a scenario file to edit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetPreset(args[0])
			if cfg == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
			}
			return config.Save(args[1], cfg)
		},
	}

	rootCmd.AddCommand(runCmd, ensembleCmd, liveCmd, batchCmd, sweepCmd, tuneCmd, listCmd, plotCmd, exportCmd, lqrCmd, presetsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "scenario file (overrides the preset)")
	cmd.Flags().Float64Var(&dt, "dt", 0.02, "control period")
	cmd.Flags().Float64Var(&duration, "time", 6.0, "duration")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "noise seed")
	cmd.Flags().StringVar(&integrator, "integrator", "rkdp", fmt.Sprintf("truth integrator %v", integrators.Names()))
}

// configureLogging applies --log-file and --log-level. Without a log file
// the components stay silent.
func configureLogging() {
	cfg := logging.PresetConfigDiscard
	if logFile != "" {
		cfg = logging.Config{
			Filename:     logFile,
			Append:       true,
			MaxSize:      10,
			MaxBackups:   3,
			DefaultLevel: logLevel,
		}
	}
	logging.Configure(&cfg)
}
