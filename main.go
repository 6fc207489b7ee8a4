package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags
var Version = "dev"

// Runner is the set of commands the CLI dispatches to. Configure is called
// once flags are parsed, before any command runs.
type Runner interface {
	Configure(out io.Writer, logger *zap.SugaredLogger)
	RunCalibration(ctx context.Context, opts RunOptions) error
	RunEnergy(opts EnergyOptions) error
	RunResiduals(opts ResidualOptions) error
	RunProject(opts ProjectOptions) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(os.Stdout)
	root := newRootCmd(app)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), nil
}

// newRootCmd wires flags to the runner. The runner is an interface so the
// flag handling can be tested without running searches.
func newRootCmd(r Runner) *cobra.Command {
	var (
		configFile string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "skycalib",
		Short:         "Align reference points to ray observations by simulated annealing",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			r.Configure(cmd.OutOrStdout(), logger)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "dataset.yaml", "Path to dataset file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	// run
	var runOpts RunOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Search for the best transform",
		RunE: func(cmd *cobra.Command, args []string) error {
			runOpts.ConfigFile = configFile
			runOpts.SeedSet = cmd.Flags().Changed("seed")
			return r.RunCalibration(cmd.Context(), runOpts)
		},
	}
	runCmd.Flags().Int64Var(&runOpts.Seed, "seed", 0, "Random seed (overrides the dataset)")
	runCmd.Flags().IntVar(&runOpts.Iterations, "iterations", 0, "Iteration budget (overrides the dataset)")
	runCmd.Flags().StringVar(&runOpts.CachePath, "cache", "", "Result cache file (empty disables caching)")
	runCmd.Flags().BoolVar(&runOpts.Resume, "resume", false, "Start from the cached transform")
	runCmd.Flags().BoolVar(&runOpts.Refine, "refine", false, "Polish the result with Nelder-Mead")
	runCmd.Flags().DurationVar(&runOpts.MaxAge, "max-age", 0, "Reuse a cached result younger than this instead of searching")
	runCmd.Flags().DurationVar(&runOpts.TimeBudget, "time-budget", 0, "Stop the search after this long")
	runCmd.Flags().BoolVarP(&runOpts.Quiet, "quiet", "q", false, "Only print the final result")

	// energy
	var energyOpts EnergyOptions
	energyCmd := &cobra.Command{
		Use:   "energy",
		Short: "Evaluate the energy of a transform",
		RunE: func(cmd *cobra.Command, args []string) error {
			energyOpts.ConfigFile = configFile
			return r.RunEnergy(energyOpts)
		},
	}
	energyCmd.Flags().Float64Var(&energyOpts.Transform.Tx, "tx", 0, "Translation X")
	energyCmd.Flags().Float64Var(&energyOpts.Transform.Ty, "ty", 0, "Translation Y")
	energyCmd.Flags().Float64Var(&energyOpts.Transform.Tz, "tz", 0, "Translation Z")
	energyCmd.Flags().Float64Var(&energyOpts.Transform.Rotation, "r", 0, "Rotation in degrees")

	// residuals
	var residualOpts ResidualOptions
	residualsCmd := &cobra.Command{
		Use:   "residuals",
		Short: "Print per-observation residuals for the cached or initial transform",
		RunE: func(cmd *cobra.Command, args []string) error {
			residualOpts.ConfigFile = configFile
			return r.RunResiduals(residualOpts)
		},
	}
	residualsCmd.Flags().StringVar(&residualOpts.CachePath, "cache", "", "Result cache file to read the transform from")
	residualsCmd.Flags().IntVar(&residualOpts.Worst, "worst", 0, "Only print the N largest residuals")

	// project
	var projectOpts ProjectOptions
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Convert dataset landmarks into local reference points",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectOpts.ConfigFile = configFile
			return r.RunProject(projectOpts)
		},
	}
	projectCmd.Flags().StringVar(&projectOpts.WritePath, "write", "", "Write a dataset with the projected reference points to this path")

	root.AddCommand(runCmd, energyCmd, residualsCmd, projectCmd)
	return root
}

// RunOptions are the flags of the run command
type RunOptions struct {
	ConfigFile string
	CachePath  string
	Seed       int64
	SeedSet    bool
	Iterations int
	Resume     bool
	Refine     bool
	MaxAge     time.Duration
	TimeBudget time.Duration
	Quiet      bool
}
