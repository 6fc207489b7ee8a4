package calib

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// ReferencePoint is a known ground-truth position in the source coordinate system
type ReferencePoint struct {
	ID       string    `json:"id" yaml:"id" validate:"required"`
	Position r3.Vector `json:"position" yaml:"position"`
}

// Observation is a measured ray labeled with the reference point it should pass near
type Observation struct {
	Label     string    `json:"label" yaml:"label" validate:"required"`
	Origin    r3.Vector `json:"origin" yaml:"origin"`
	Direction r3.Vector `json:"direction" yaml:"direction"`
}

// Target returns the second point on the observation ray (origin + direction)
func (o Observation) Target() r3.Vector {
	return o.Origin.Add(o.Direction)
}

// Axis identifies one parameter of a Transform
type Axis int

const (
	AxisTx Axis = iota
	AxisTy
	AxisTz
	AxisRotation
)

func (a Axis) String() string {
	switch a {
	case AxisTx:
		return "tx"
	case AxisTy:
		return "ty"
	case AxisTz:
		return "tz"
	case AxisRotation:
		return "r"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Transform is a rotation about the plane normal (degrees, CCW positive)
// followed by a translation. Values are immutable; use WithMutated to derive.
type Transform struct {
	Tx       float64 `json:"tx" yaml:"tx"`
	Ty       float64 `json:"ty" yaml:"ty"`
	Tz       float64 `json:"tz" yaml:"tz"`
	Rotation float64 `json:"r" yaml:"r"`
}

// Identity returns the zero translation, zero rotation transform
func Identity() Transform {
	return Transform{}
}

// NewTransform builds a transform with the rotation normalized to [0, 360)
func NewTransform(tx, ty, tz, rotation float64) Transform {
	return Transform{Tx: tx, Ty: ty, Tz: tz, Rotation: NormalizeAngle(rotation)}
}

// Get returns the value of a single parameter
func (t Transform) Get(axis Axis) float64 {
	switch axis {
	case AxisTx:
		return t.Tx
	case AxisTy:
		return t.Ty
	case AxisTz:
		return t.Tz
	case AxisRotation:
		return t.Rotation
	}
	return 0
}

// WithMutated returns a copy of t with delta added to one parameter.
// Rotation wraps modulo 360.
func (t Transform) WithMutated(axis Axis, delta float64) Transform {
	switch axis {
	case AxisTx:
		t.Tx += delta
	case AxisTy:
		t.Ty += delta
	case AxisTz:
		t.Tz += delta
	case AxisRotation:
		t.Rotation = NormalizeAngle(t.Rotation + delta)
	}
	return t
}

// WithValue returns a copy of t with one parameter replaced
func (t Transform) WithValue(axis Axis, v float64) Transform {
	return t.WithMutated(axis, v-t.Get(axis))
}

// Translation returns the translation part as a vector
func (t Transform) Translation() r3.Vector {
	return r3.Vector{X: t.Tx, Y: t.Ty, Z: t.Tz}
}

// Apply rotates p in the given plane and then translates it
func (t Transform) Apply(p r3.Vector, plane Plane) r3.Vector {
	return Rotate(p, t.Rotation, plane).Add(t.Translation())
}

// Invert maps a point produced by Apply back to where it came from
func (t Transform) Invert(p r3.Vector, plane Plane) r3.Vector {
	return Rotate(p.Sub(t.Translation()), -t.Rotation, plane)
}

func (t Transform) String() string {
	return fmt.Sprintf("tx=%.6f, ty=%.6f, tz=%.6f, r=%.6f", t.Tx, t.Ty, t.Tz, t.Rotation)
}

// Frame selects which side of the correspondence the transform is applied to
type Frame int

const (
	// FrameReferenceToObservation maps reference points into the observation frame
	FrameReferenceToObservation Frame = iota
	// FrameObservationToReference maps observation rays into the reference frame
	FrameObservationToReference
)

func (f Frame) String() string {
	if f == FrameObservationToReference {
		return "observation-to-reference"
	}
	return "reference-to-observation"
}

// ParseFrame parses the config spelling of a Frame
func ParseFrame(s string) (Frame, error) {
	switch s {
	case "", "reference-to-observation", "reference":
		return FrameReferenceToObservation, nil
	case "observation-to-reference", "observation":
		return FrameObservationToReference, nil
	}
	return 0, &ConfigurationError{Field: "frame", Reason: fmt.Sprintf("unknown frame %q", s)}
}
