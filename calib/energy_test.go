package calib

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestEnergy_ZeroAtTruth(t *testing.T) {
	t.Run("reference to observation, xz", func(t *testing.T) {
		truth := NewTransform(1.5, 0, -2, 40)
		refs, obs := syntheticXZ(truth)
		c := newTestCalibrator(t, refs, obs, testConfig())

		assert.Less(t, c.Energy(truth), 1e-6)
		assert.Greater(t, c.Energy(Identity()), 0.1)
	})

	t.Run("observation to reference, xy", func(t *testing.T) {
		truth := NewTransform(-2.9, -3.3, 0, 334.94)
		refs, obs := syntheticXY(truth)
		cfg := testConfig()
		cfg.Plane = PlaneXY
		cfg.Frame = FrameObservationToReference
		c := newTestCalibrator(t, refs, obs, cfg)

		assert.Less(t, c.Energy(truth), 1e-6)
		assert.Greater(t, c.Energy(Identity()), 0.1)
	})
}

func TestEnergy_NonNegative(t *testing.T) {
	refs, obs := syntheticXZ(NewTransform(1.5, 0, -2, 40))
	c := newTestCalibrator(t, refs, obs, testConfig())

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		tr := NewTransform(rng.Float64()*200-100, rng.Float64()*10, rng.Float64()*200-100, rng.Float64()*360)
		e := c.Energy(tr)
		require.False(t, math.IsNaN(e), "energy is NaN for %v", tr)
		require.GreaterOrEqual(t, e, 0.0, "energy negative for %v", tr)
	}
}

func TestEnergy_BehindPenalty(t *testing.T) {
	refs := []ReferencePoint{{ID: "P", Position: r3.Vector{X: -4, Y: 0, Z: 3}}}
	obs := []Observation{{Label: "P", Origin: r3.Vector{}, Direction: r3.Vector{X: 1}}}

	cfg := testConfig()
	c := newTestCalibrator(t, refs, obs, cfg)

	res := c.Residuals(Identity())
	require.Len(t, res, 1)
	assert.True(t, res[0].Behind)
	assert.InDelta(t, 3, res[0].Distance, 1e-12)
	assert.InDelta(t, 3+DefaultBehindPenalty, res[0].Value, 1e-9)
	assert.InDelta(t, 3+DefaultBehindPenalty, c.Energy(Identity()), 1e-9)

	cfg.BehindPenalty = 0
	c = newTestCalibrator(t, refs, obs, cfg)
	assert.InDelta(t, 3, c.Energy(Identity()), 1e-12)

	// turning the point round to face the observer clears the flag
	facing := c.Residuals(NewTransform(0, 0, 0, 180))
	assert.False(t, facing[0].Behind)
}

func TestEnergy_IgnoresVerticalInGroundPlane(t *testing.T) {
	refs := []ReferencePoint{{ID: "P", Position: r3.Vector{X: 5, Y: 0, Z: 1}}}
	obs := []Observation{{Label: "P", Origin: r3.Vector{Y: 1.7}, Direction: r3.Vector{X: 1, Y: 0.4}}}
	c := newTestCalibrator(t, refs, obs, testConfig())

	assert.InDelta(t, 1, c.Energy(Identity()), 1e-12)
	assert.InDelta(t, 1, c.Energy(NewTransform(0, 250, 0, 0)), 1e-12, "vertical translation has no effect")
}

func TestEnergy_CountsObservations(t *testing.T) {
	// Two observations of one point and one of another: RMS divides by three
	refs := []ReferencePoint{
		{ID: "P", Position: r3.Vector{X: 5, Z: 2}},
		{ID: "Q", Position: r3.Vector{X: 5, Z: -1}},
	}
	obs := []Observation{
		{Label: "P", Direction: r3.Vector{X: 1}},
		{Label: "P", Direction: r3.Vector{X: 1}},
		{Label: "Q", Direction: r3.Vector{X: 1}},
	}
	c := newTestCalibrator(t, refs, obs, testConfig())

	assert.InDelta(t, math.Sqrt((4+4+1)/3.0), c.Energy(Identity()), 1e-12)
}

func TestNewCalibrator_Validation(t *testing.T) {
	good := []ReferencePoint{{ID: "A", Position: r3.Vector{X: 1, Z: 1}}}
	ray := r3.Vector{X: 1, Z: 1}

	tests := []struct {
		name     string
		refs     []ReferencePoint
		obs      []Observation
		mutate   func(*SearchConfig)
		geometry bool
		config   bool
		count    int
	}{
		{
			name:   "no observations",
			refs:   good,
			config: true,
			count:  1,
		},
		{
			name:   "unknown label",
			refs:   good,
			obs:    []Observation{{Label: "A", Direction: ray}, {Label: "Z", Direction: ray}},
			config: true,
			count:  1,
		},
		{
			name: "unobserved reference point",
			refs: append(good, ReferencePoint{ID: "Tree", Position: r3.Vector{X: 50, Z: 115}}),
			obs:  []Observation{{Label: "A", Direction: ray}},
			// Tree has no rays pointing at it
			config: true,
			count:  1,
		},
		{
			name:     "zero direction",
			refs:     good,
			obs:      []Observation{{Label: "A", Direction: r3.Vector{}}},
			geometry: true,
			config:   true, // A then has no usable observation
			count:    2,
		},
		{
			name:     "vertical direction in ground plane",
			refs:     good,
			obs:      []Observation{{Label: "A", Direction: ray}, {Label: "A", Direction: r3.Vector{Y: 1}}},
			geometry: true,
			count:    1,
		},
		{
			name: "bad search settings",
			refs: good,
			obs:  []Observation{{Label: "A", Direction: ray}},
			mutate: func(cfg *SearchConfig) {
				cfg.Iterations = 0
				cfg.RestartAfter = -1
				cfg.Steps.Rotation = 0
			},
			config: true,
			count:  3,
		},
		{
			name:   "duplicate reference ids",
			refs:   append(good, ReferencePoint{ID: "A"}),
			obs:    []Observation{{Label: "A", Direction: ray}},
			config: true,
			count:  1,
		},
		{
			name:     "nan direction",
			refs:     good,
			obs:      []Observation{{Label: "A", Direction: ray}, {Label: "A", Direction: r3.Vector{X: math.NaN(), Z: 1}}},
			geometry: true,
			count:    1,
		},
		{
			name:     "infinite direction",
			refs:     good,
			obs:      []Observation{{Label: "A", Direction: ray}, {Label: "A", Direction: r3.Vector{X: math.Inf(1), Z: 1}}},
			geometry: true,
			count:    1,
		},
		{
			name:     "nan origin",
			refs:     good,
			obs:      []Observation{{Label: "A", Direction: ray}, {Label: "A", Origin: r3.Vector{Y: math.NaN()}, Direction: ray}},
			geometry: true,
			count:    1,
		},
		{
			name: "non-finite reference position",
			refs: append(good,
				ReferencePoint{ID: "B", Position: r3.Vector{X: math.Inf(-1), Z: 2}},
				ReferencePoint{ID: "C", Position: r3.Vector{X: 1, Z: math.NaN()}}),
			obs: []Observation{{Label: "A", Direction: ray}, {Label: "B", Direction: ray}, {Label: "C", Direction: ray}},
			// observations of B and C are not reported again
			config: true,
			count:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			c, err := NewCalibrator(tt.refs, tt.obs, cfg)
			require.Error(t, err)
			assert.Nil(t, c)

			var geomErr *GeometryError
			var confErr *ConfigurationError
			assert.Equal(t, tt.geometry, errors.As(err, &geomErr), "geometry error: %v", err)
			assert.Equal(t, tt.config, errors.As(err, &confErr), "configuration error: %v", err)
			assert.Len(t, multierr.Errors(err), tt.count, "errors: %v", err)
		})
	}
}

func TestNewCalibrator_CopiesInputs(t *testing.T) {
	refs, obs := syntheticXZ(NewTransform(1, 0, 1, 10))
	c := newTestCalibrator(t, refs, obs, testConfig())
	before := c.Energy(Identity())

	refs[0].Position = r3.Vector{X: 1000}
	obs[0].Direction = r3.Vector{X: -1}

	assert.Equal(t, before, c.Energy(Identity()))
}

func TestCalibrator_Axes(t *testing.T) {
	refs, obs := syntheticXZ(Identity())

	c := newTestCalibrator(t, refs, obs, testConfig())
	assert.Equal(t, []Axis{AxisTx, AxisTz, AxisRotation}, c.Axes(), "ty is never mutated by default")

	cfg := testConfig()
	cfg.FreeVertical = true
	c = newTestCalibrator(t, refs, obs, cfg)
	assert.Equal(t, []Axis{AxisTx, AxisTz, AxisRotation, AxisTy}, c.Axes())

	cfg = testConfig()
	cfg.Plane = PlaneXY
	refsXY, obsXY := syntheticXY(Identity())
	c = newTestCalibrator(t, refsXY, obsXY, cfg)
	assert.Equal(t, []Axis{AxisTx, AxisTy, AxisRotation}, c.Axes())
}

func TestCalibrator_InitialTransform(t *testing.T) {
	refs, obs := syntheticXZ(Identity())

	cfg := testConfig()
	cfg.VerticalOffset = 1.25
	c := newTestCalibrator(t, refs, obs, cfg)
	assert.Equal(t, Transform{Ty: 1.25}, c.InitialTransform())

	cfg.Initial = &Transform{Tx: 3, Rotation: -30}
	c = newTestCalibrator(t, refs, obs, cfg)
	assert.Equal(t, 3.0, c.InitialTransform().Tx)
	assert.InDelta(t, 330, c.InitialTransform().Rotation, 1e-12)
}

func TestNewCalibrator_RejectsNaNRay(t *testing.T) {
	refs, obs := syntheticXZ(NewTransform(1.5, 0, -2, 40))
	obs[3].Direction = r3.Vector{X: math.NaN(), Z: 1}

	c, err := NewCalibrator(refs, obs, testConfig())
	require.Error(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrDegenerateRay)
}
