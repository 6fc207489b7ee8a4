package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kwv/skycalib/calib"
)

// EnergyOptions are the flags of the energy command
type EnergyOptions struct {
	ConfigFile string
	Transform  calib.Transform
}

// ResidualOptions are the flags of the residuals command
type ResidualOptions struct {
	ConfigFile string
	CachePath  string
	Worst      int
}

// ProjectOptions are the flags of the project command
type ProjectOptions struct {
	ConfigFile string
	WritePath  string
}

// App encapsulates the application state and dependencies
type App struct {
	Out    io.Writer
	Logger *zap.SugaredLogger
}

// NewApp creates a new App writing its report to out
func NewApp(out io.Writer) *App {
	return &App{
		Out:    out,
		Logger: zap.NewNop().Sugar(),
	}
}

// Configure sets where reports are written and the logger passed to the engine
func (a *App) Configure(out io.Writer, logger *zap.SugaredLogger) {
	if out != nil {
		a.Out = out
	}
	if logger != nil {
		a.Logger = logger
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.Out, format, args...)
}

func (a *App) loadCalibrator(path string, adjust func(*calib.SearchConfig)) (*calib.Calibrator, error) {
	ds, err := calib.LoadDataset(path)
	if err != nil {
		return nil, err
	}
	cfg := ds.Search
	if adjust != nil {
		adjust(&cfg)
	}
	c, err := calib.NewCalibrator(ds.References, ds.Observations, cfg, calib.WithLogger(a.Logger))
	if err != nil {
		return nil, fmt.Errorf("preparing calibration for %s: %w", path, err)
	}
	a.Logger.Infow("dataset loaded",
		"path", path,
		"references", len(ds.References),
		"observations", len(ds.Observations),
		"plane", cfg.Plane.String(),
		"frame", cfg.Frame.String())
	return c, nil
}

// RunCalibration runs the annealing search and prints its progress
func (a *App) RunCalibration(ctx context.Context, opts RunOptions) error {
	var cached *calib.CachedResult
	if opts.CachePath != "" {
		var err error
		cached, err = calib.LoadResult(opts.CachePath)
		if err != nil {
			return err
		}
	}

	c, err := a.loadCalibrator(opts.ConfigFile, func(cfg *calib.SearchConfig) {
		if opts.SeedSet {
			seed := opts.Seed
			cfg.Seed = &seed
		}
		if opts.Iterations > 0 {
			cfg.Iterations = opts.Iterations
		}
		if opts.Refine {
			cfg.Refine = true
		}
		if opts.TimeBudget > 0 {
			cfg.TimeBudget = opts.TimeBudget
		}
		if opts.Resume && cached.Compatible(*cfg) {
			t := cached.Transform
			cfg.Initial = &t
		}
	})
	if err != nil {
		return err
	}

	if opts.MaxAge > 0 && cached.Compatible(c.Config()) && !cached.NeedsRecalibration(opts.MaxAge) {
		a.printf("Cached: %s (energy %.6f)\n", cached.Transform, cached.Energy)
		return nil
	}

	search := c.Search(ctx)
	for ev := range search.Events() {
		if opts.Quiet {
			continue
		}
		switch ev.Kind {
		case calib.EventInitial:
			a.printf("[initial] Energy %.6f | %s\n", ev.Energy, ev.Transform)
		case calib.EventImprovement:
			a.printf("[%05d] Energy %8.3f (new best) | %s\n", ev.Iteration, ev.Energy, ev.Transform)
		case calib.EventRestart:
			a.printf("[%05d] %d steps without improvement, restarting\n", ev.Iteration, c.Config().RestartAfter)
		}
	}
	res := search.Result()

	if c.Config().Refine {
		before := res.Energy
		res = c.Polish(res)
		if res.Refined {
			a.printf("Refined: energy %.6f -> %.6f\n", before, res.Energy)
		}
	}

	b := res.Best
	a.printf("Best: tx %.6f, ty %.6f, tz %.6f, r %.6f (energy %.6f)\n", b.Tx, b.Ty, b.Tz, b.Rotation, res.Energy)
	if res.StopReason != calib.StopIterations {
		a.printf("Stopped early: %s after %d iterations\n", res.StopReason, res.Iterations)
	}

	if opts.CachePath != "" {
		if err := calib.SaveResult(opts.CachePath, calib.NewCachedResult(opts.ConfigFile, c, res)); err != nil {
			return err
		}
		a.Logger.Infow("result cached", "path", opts.CachePath)
	}
	return nil
}

// RunEnergy prints the energy of a single transform
func (a *App) RunEnergy(opts EnergyOptions) error {
	c, err := a.loadCalibrator(opts.ConfigFile, nil)
	if err != nil {
		return err
	}
	t := calib.NewTransform(opts.Transform.Tx, opts.Transform.Ty, opts.Transform.Tz, opts.Transform.Rotation)
	a.printf("Energy %.6f | %s\n", c.Energy(t), t)
	return nil
}

// RunResiduals prints the residual report for the cached transform, or the
// initial transform when there is no usable cache
func (a *App) RunResiduals(opts ResidualOptions) error {
	c, err := a.loadCalibrator(opts.ConfigFile, nil)
	if err != nil {
		return err
	}

	t := c.InitialTransform()
	if opts.CachePath != "" {
		cached, err := calib.LoadResult(opts.CachePath)
		if err != nil {
			return err
		}
		if cached.Compatible(c.Config()) {
			t = cached.Transform
		} else if cached != nil {
			a.Logger.Warnw("cached result ignored, plane or frame differs", "path", opts.CachePath)
		}
	}

	residuals := c.Residuals(t)
	if opts.Worst > 0 {
		residuals = calib.WorstResiduals(residuals, opts.Worst)
	}

	a.printf("Transform: %s\n", t)
	a.printf("%-12s %12s %8s\n", "label", "distance", "behind")
	a.printf("%s\n", strings.Repeat("-", 34))
	for _, r := range residuals {
		a.printf("%-12s %12.4f %8v\n", r.Label, r.Distance, r.Behind)
	}

	s := calib.Summarize(c.Residuals(t))
	a.printf("\nrms %.6f  mean %.6f  stddev %.6f  max %.6f  behind %d/%d\n",
		s.RMS, s.Mean, s.StdDev, s.Max, s.Behind, s.Count)
	return nil
}

// RunProject prints reference points derived from the dataset's landmarks
func (a *App) RunProject(opts ProjectOptions) error {
	file, err := calib.LoadDatasetFile(opts.ConfigFile)
	if err != nil {
		return err
	}
	if file.Landmarks == nil || len(file.Landmarks.Points) == 0 {
		return fmt.Errorf("dataset %s has no landmarks to project", opts.ConfigFile)
	}

	refs, err := calib.ProjectLandmarks(file.Landmarks.Site, file.Landmarks.Points)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		a.printf("%-12s x=%12.4f y=%10.4f z=%12.4f\n", ref.ID, ref.Position.X, ref.Position.Y, ref.Position.Z)
	}

	if opts.WritePath != "" {
		out := *file
		out.References = append(append([]calib.ReferencePoint(nil), file.References...), refs...)
		out.Landmarks = nil
		if err := calib.SaveDatasetFile(opts.WritePath, &out); err != nil {
			return err
		}
		a.printf("Wrote %d reference points to %s\n", len(out.References), opts.WritePath)
	}
	return nil
}
