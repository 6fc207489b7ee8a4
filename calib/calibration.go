package calib

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
)

// DefaultResultCachePath is the default path for the cached search result
const DefaultResultCachePath = ".calibration-cache.json"

// CachedResult is a persisted search result, used to warm-start later runs
type CachedResult struct {
	Dataset     string        `json:"dataset,omitempty"`
	Plane       string        `json:"plane"`
	Frame       string        `json:"frame"`
	Transform   Transform     `json:"transform"`
	Energy      float64       `json:"energy"`
	Stats       ResidualStats `json:"stats"`
	Iterations  int           `json:"iterations"`
	Restarts    int           `json:"restarts"`
	Refined     bool          `json:"refined,omitempty"`
	LastUpdated int64         `json:"lastUpdated"`
}

// NewCachedResult records a finished search for the given calibrator
func NewCachedResult(dataset string, c *Calibrator, res Result) *CachedResult {
	cfg := c.Config()
	return &CachedResult{
		Dataset:    dataset,
		Plane:      cfg.Plane.String(),
		Frame:      cfg.Frame.String(),
		Transform:  res.Best,
		Energy:     res.Energy,
		Stats:      Summarize(c.Residuals(res.Best)),
		Iterations: res.Iterations,
		Restarts:   res.Restarts,
		Refined:    res.Refined,
	}
}

// LoadResult loads a cached result from a JSON file.
// A missing file is not an error: it returns nil, nil.
func LoadResult(path string) (*CachedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No result cached yet
		}
		return nil, fmt.Errorf("reading result cache: %w", err)
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("parsing result cache: %w", err)
	}
	if err := cached.Validate(); err != nil {
		return nil, fmt.Errorf("result cache %s: %w", path, err)
	}
	cached.Transform.Rotation = NormalizeAngle(cached.Transform.Rotation)

	return &cached, nil
}

// Validate rejects caches that cannot seed a search: an unknown plane or
// frame, a non-finite transform, or an energy that is negative or not finite.
func (r *CachedResult) Validate() error {
	var err error
	if _, perr := ParsePlane(r.Plane); perr != nil || r.Plane == "" {
		err = multierr.Append(err, &ConfigurationError{Field: "plane", Reason: fmt.Sprintf("unknown plane %q", r.Plane)})
	}
	if _, ferr := ParseFrame(r.Frame); ferr != nil || r.Frame == "" {
		err = multierr.Append(err, &ConfigurationError{Field: "frame", Reason: fmt.Sprintf("unknown frame %q", r.Frame)})
	}
	t := r.Transform
	if !isFinite(t.Translation()) || math.IsNaN(t.Rotation) || math.IsInf(t.Rotation, 0) {
		err = multierr.Append(err, &ConfigurationError{Field: "transform", Reason: fmt.Sprintf("non-finite transform %s", t)})
	}
	if math.IsNaN(r.Energy) || math.IsInf(r.Energy, 0) || r.Energy < 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "energy", Reason: fmt.Sprintf("invalid energy %v", r.Energy)})
	}
	if r.Iterations < 0 || r.Restarts < 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "iterations", Reason: "counts must not be negative"})
	}
	return err
}

// SaveResult saves a result to a JSON cache file
func SaveResult(path string, cached *CachedResult) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating result cache directory: %w", err)
	}

	cached.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing result cache: %w", err)
	}

	return nil
}

// Compatible reports whether the cached result was produced in the same plane
// and frame as cfg, which is required for it to be a meaningful starting point.
func (r *CachedResult) Compatible(cfg SearchConfig) bool {
	if r == nil {
		return false
	}
	return r.Plane == cfg.Plane.String() && r.Frame == cfg.Frame.String()
}

// NeedsRecalibration checks if the cached result is older than maxAge
func (r *CachedResult) NeedsRecalibration(maxAge time.Duration) bool {
	if r == nil || r.LastUpdated == 0 {
		return true
	}
	return time.Since(time.Unix(r.LastUpdated, 0)) > maxAge
}
