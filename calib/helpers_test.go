package calib

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

// almostEqual checks if two floats are equal within epsilon tolerance
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

// vectorsEqual checks if two vectors are equal within epsilon tolerance
func vectorsEqual(a, b r3.Vector) bool {
	return almostEqual(a.X, b.X) && almostEqual(a.Y, b.Y) && almostEqual(a.Z, b.Z)
}

// angleDiff returns the smallest absolute difference between two angles in degrees
func angleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	return math.Min(d, 360-d)
}

func int64Ptr(v int64) *int64 { return &v }

// syntheticXZ builds a noise-free ground plane dataset: every reference point
// is observed from two origins by rays aimed exactly at where truth puts it.
func syntheticXZ(truth Transform) ([]ReferencePoint, []Observation) {
	refs := []ReferencePoint{
		{ID: "A", Position: r3.Vector{X: 3, Y: 1.5, Z: 6}},
		{ID: "B", Position: r3.Vector{X: -7, Y: 0.5, Z: -4}},
		{ID: "C", Position: r3.Vector{X: 2, Y: 2, Z: -3}},
		{ID: "D", Position: r3.Vector{X: -6, Y: 1, Z: 8}},
	}
	origins := []r3.Vector{
		{X: 0, Y: 1.7, Z: 0},
		{X: -2.5, Y: 1.6, Z: 1.5},
	}

	var obs []Observation
	for _, ref := range refs {
		target := truth.Apply(ref.Position, PlaneXZ)
		for _, o := range origins {
			obs = append(obs, Observation{Label: ref.ID, Origin: o, Direction: target.Sub(o).Normalize()})
		}
	}
	return refs, obs
}

// syntheticXY builds a planar dataset where the transform maps observation
// rays into the reference frame.
func syntheticXY(truth Transform) ([]ReferencePoint, []Observation) {
	refs := []ReferencePoint{
		{ID: "A", Position: r3.Vector{X: 3, Y: 6}},
		{ID: "B", Position: r3.Vector{X: -7, Y: -11}},
		{ID: "C", Position: r3.Vector{X: 2, Y: -3}},
		{ID: "D", Position: r3.Vector{X: -6, Y: 8}},
	}
	origins := []r3.Vector{
		{X: 0, Y: 0},
		{X: -2.5, Y: 1.5},
	}

	var obs []Observation
	for _, ref := range refs {
		local := truth.Invert(ref.Position, PlaneXY)
		for _, o := range origins {
			obs = append(obs, Observation{Label: ref.ID, Origin: o, Direction: local.Sub(o)})
		}
	}
	return refs, obs
}

func testConfig() SearchConfig {
	cfg := DefaultSearchConfig()
	cfg.Iterations = 20000
	cfg.RestartAfter = 500
	cfg.Steps = StepScales{Translation: 50, Rotation: 360}
	cfg.Seed = int64Ptr(123456)
	return cfg
}

func newTestCalibrator(t *testing.T, refs []ReferencePoint, obs []Observation, cfg SearchConfig, opts ...Option) *Calibrator {
	t.Helper()
	c, err := NewCalibrator(refs, obs, cfg, opts...)
	require.NoError(t, err)
	return c
}
