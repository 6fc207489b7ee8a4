package calib

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultBehindPenalty is added to the distance of a reference point that lies
// behind the observer, before squaring.
const DefaultBehindPenalty = 1000.0

// StepScales holds the maximum perturbation per parameter at temperature 1
type StepScales struct {
	Translation float64 // in-plane translation axes
	Vertical    float64 // vertical translation, only used when the vertical offset is free
	Rotation    float64 // degrees
}

// scale returns the step scale used for a given axis in a given plane
func (s StepScales) scale(axis Axis, plane Plane) float64 {
	switch {
	case axis == AxisRotation:
		return s.Rotation
	case axis == plane.VerticalAxis():
		if s.Vertical > 0 {
			return s.Vertical
		}
		return s.Translation
	default:
		return s.Translation
	}
}

// SearchConfig holds configuration for the annealing search.
type SearchConfig struct {
	Iterations     int           // Fixed iteration budget K
	RestartAfter   int           // Non-improving steps before resetting to the best state (0 disables)
	Steps          StepScales    // Per-parameter step scales
	BehindPenalty  float64       // Added to the distance of points behind the observer (0 disables)
	Seed           *int64        // Random seed; nil seeds from the clock
	Plane          Plane         // Working plane
	Frame          Frame         // Which side the transform is applied to
	VerticalOffset float64       // Translation along the plane normal
	FreeVertical   bool          // Let the search mutate the vertical offset too
	Initial        *Transform    // Initial guess; nil means identity plus VerticalOffset
	TimeBudget     time.Duration // Optional wall clock budget, checked once per iteration
	Refine         bool          // Polish the annealing result with Nelder-Mead
	RefineEvals    int           // Function evaluation limit for refinement
}

// DefaultSearchConfig returns the settings used for metre-scale outdoor
// landmark data: a long schedule, a 2000 unit translation step and restarts
// after 2000 idle steps.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Iterations:    50000,
		RestartAfter:  2000,
		Steps:         StepScales{Translation: 2000, Rotation: 360},
		BehindPenalty: DefaultBehindPenalty,
		Plane:         PlaneXZ,
		Frame:         FrameReferenceToObservation,
		RefineEvals:   20000,
	}
}

// Option configures a Calibrator
type Option func(*Calibrator)

// WithLogger sets the logger used for search progress
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Calibrator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRand injects a shared random source. It takes precedence over SearchConfig.Seed.
func WithRand(rng *rand.Rand) Option {
	return func(c *Calibrator) {
		c.rng = rng
	}
}

// pair is one observation matched with the position of its reference point
type pair struct {
	ref r3.Vector
	obs Observation
}

// Calibrator estimates the rigid transform aligning reference points to observation rays.
// Inputs are copied at construction and never mutated.
type Calibrator struct {
	refs   []ReferencePoint
	obs    []Observation
	pairs  []pair
	axes   []Axis
	cfg    SearchConfig
	rng    *rand.Rand
	logger *zap.SugaredLogger
}

// NewCalibrator validates the inputs and returns a Calibrator ready to search.
// Every invalid input is reported; the returned error combines them.
func NewCalibrator(refs []ReferencePoint, obs []Observation, cfg SearchConfig, opts ...Option) (*Calibrator, error) {
	c := &Calibrator{
		refs:   append([]ReferencePoint(nil), refs...),
		obs:    append([]Observation(nil), obs...),
		cfg:    cfg,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := multierr.Combine(validateSearchConfig(cfg), c.matchObservations()); err != nil {
		return nil, err
	}

	h := cfg.Plane.HorizontalAxes()
	c.axes = []Axis{h[0], h[1], AxisRotation}
	if cfg.FreeVertical {
		c.axes = append(c.axes, cfg.Plane.VerticalAxis())
	}

	return c, nil
}

func validateSearchConfig(cfg SearchConfig) error {
	var err error
	if cfg.Iterations <= 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "iterations", Reason: fmt.Sprintf("must be positive, got %d", cfg.Iterations)})
	}
	if cfg.RestartAfter < 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "restartAfter", Reason: fmt.Sprintf("must not be negative, got %d", cfg.RestartAfter)})
	}
	if cfg.Steps.Translation <= 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "steps.translation", Reason: "must be positive"})
	}
	if cfg.Steps.Rotation <= 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "steps.rotation", Reason: "must be positive"})
	}
	if cfg.Steps.Vertical < 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "steps.vertical", Reason: "must not be negative"})
	}
	if cfg.BehindPenalty < 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "behindPenalty", Reason: "must not be negative"})
	}
	if cfg.TimeBudget < 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "timeBudget", Reason: "must not be negative"})
	}
	return err
}

// matchObservations pairs every observation with its reference point.
// Unknown labels, reference points nobody observed, non-finite coordinates and
// rays that vanish in the working plane are all rejected here so the energy
// never has to guard against them.
func (c *Calibrator) matchObservations() error {
	var err error

	byID := make(map[string]r3.Vector, len(c.refs))
	invalid := make(map[string]bool)
	for i, ref := range c.refs {
		if ref.ID == "" {
			err = multierr.Append(err, &ConfigurationError{Field: fmt.Sprintf("references[%d].id", i), Reason: "is required"})
			continue
		}
		if _, dup := byID[ref.ID]; dup {
			err = multierr.Append(err, &ConfigurationError{Field: "references", Reason: fmt.Sprintf("duplicate reference point %q", ref.ID)})
			continue
		}
		byID[ref.ID] = ref.Position
		if !isFinite(ref.Position) {
			invalid[ref.ID] = true
			err = multierr.Append(err, &ConfigurationError{
				Field:  fmt.Sprintf("references[%d].position", i),
				Reason: fmt.Sprintf("reference point %q has non-finite position %v", ref.ID, ref.Position),
			})
		}
	}

	if len(c.obs) == 0 {
		return multierr.Append(err, &ConfigurationError{Field: "observations", Reason: "no observations"})
	}

	observed := make(map[string]int, len(byID))
	for i, o := range c.obs {
		ref, ok := byID[o.Label]
		if !ok {
			err = multierr.Append(err, &ConfigurationError{
				Field:  fmt.Sprintf("observations[%d].label", i),
				Reason: fmt.Sprintf("no reference point %q", o.Label),
			})
			continue
		}
		if invalid[o.Label] {
			continue
		}
		if !isFinite(o.Origin) || !isFinite(o.Direction) {
			err = multierr.Append(err, &GeometryError{
				Op:     "validate observation",
				Label:  o.Label,
				Detail: fmt.Sprintf("origin %v or direction %v is not finite", o.Origin, o.Direction),
			})
			continue
		}
		if c.cfg.Plane.Project(o.Direction).Norm() == 0 {
			err = multierr.Append(err, &GeometryError{
				Op:     "validate observation",
				Label:  o.Label,
				Detail: fmt.Sprintf("direction %v has no component in the %s plane", o.Direction, c.cfg.Plane),
			})
			continue
		}
		observed[o.Label]++
		c.pairs = append(c.pairs, pair{ref: ref, obs: o})
	}

	reported := make(map[string]bool)
	for _, ref := range c.refs {
		if _, ok := byID[ref.ID]; ok && !invalid[ref.ID] && observed[ref.ID] == 0 && !reported[ref.ID] {
			reported[ref.ID] = true
			err = multierr.Append(err, &ConfigurationError{
				Field:  "observations",
				Reason: fmt.Sprintf("no observations for reference point %q", ref.ID),
			})
		}
	}

	return err
}

// Config returns the search configuration the calibrator was built with
func (c *Calibrator) Config() SearchConfig {
	return c.cfg
}

// Axes returns the parameters the search is allowed to mutate
func (c *Calibrator) Axes() []Axis {
	return append([]Axis(nil), c.axes...)
}

// InitialTransform is the starting point of every search
func (c *Calibrator) InitialTransform() Transform {
	if c.cfg.Initial != nil {
		t := *c.cfg.Initial
		t.Rotation = NormalizeAngle(t.Rotation)
		return t
	}
	return Identity().WithValue(c.cfg.Plane.VerticalAxis(), c.cfg.VerticalOffset)
}

// newRand returns the injected source, or a fresh one seeded from the config
// so each search with a fixed seed is reproducible.
func (c *Calibrator) newRand() *rand.Rand {
	if c.rng != nil {
		return c.rng
	}
	seed := time.Now().UnixNano()
	if c.cfg.Seed != nil {
		seed = *c.cfg.Seed
	}
	return rand.New(rand.NewSource(seed))
}
