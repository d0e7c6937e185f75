package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/san-kum/dynctl/internal/config"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/metrics"
	"github.com/san-kum/dynctl/internal/sim"
	"github.com/san-kum/dynctl/internal/storage"
	"github.com/san-kum/dynctl/internal/viz"
)

var log = logging.GetLog("cli")

// loadScenario resolves the preset, then the --config file, then any flag
// the user set explicitly.
func loadScenario(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if len(args) > 0 {
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		if loaded.Logging.Filename != "" && !cmd.Flags().Changed("log-file") {
			logging.Configure(&loaded.Logging)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Sim.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Sim.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Sim.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Sim.Integrator = integrator
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug("scenario", "name", cfg.Name, "dt", cfg.Sim.Dt, "duration", cfg.Sim.Duration, "seed", cfg.Sim.Seed)
	return cfg, nil
}

func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	s, err := sim.New(cfg.Sim)
	if err != nil {
		return err
	}
	for _, m := range metrics.Default() {
		s.AddMetric(m)
	}

	ctx, cancel := interruptible()
	defer cancel()

	fmt.Printf("running %s...\n", cfg.Name)
	result, runErr := s.Run(ctx)
	if result == nil {
		return runErr
	}

	entries := []viz.Entry{
		{Label: "scenario", Value: cfg.Name},
		{Label: "steps", Value: fmt.Sprint(result.StepsTaken)},
		{Label: "integrator", Value: cfg.Sim.Integrator},
	}
	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.MetadataFor(cfg.Name, cfg.Sim), result)
		if err != nil {
			return err
		}
		entries = append([]viz.Entry{{Label: "run id", Value: runID}}, entries...)
	}

	fmt.Println(viz.Summary("run", entries, result.Metrics, viz.GetTheme(theme)))
	for _, e := range result.Errors {
		fmt.Fprintln(os.Stderr, "step failed:", e)
	}
	return runErr
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	e := sim.NewEnsemble(cfg.Sim, numRuns, metrics.Default)
	e.SetWorkers(workers)

	ctx, cancel := interruptible()
	defer cancel()

	fmt.Printf("running %d x %s...\n", numRuns, cfg.Name)
	results, err := e.Run(ctx)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("ensemble %s (seeds %d-%d)", cfg.Name, cfg.Sim.Seed, cfg.Sim.Seed+uint64(numRuns)-1)
	fmt.Println(viz.EnsembleSummary(title, results, viz.GetTheme(theme)))
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	s, err := sim.New(cfg.Sim)
	if err != nil {
		return err
	}
	ctx, cancel := interruptible()
	defer cancel()
	return viz.RunLive(ctx, cfg.Name, s)
}
