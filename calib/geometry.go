package calib

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Plane is the working plane that rotations, distances and the behind test operate in.
type Plane int

const (
	// PlaneXZ is the ground plane of a Y-up world. Y is the vertical axis.
	PlaneXZ Plane = iota
	// PlaneXY is a flat 2D world. Z is the vertical axis.
	PlaneXY
)

func (p Plane) String() string {
	if p == PlaneXY {
		return "xy"
	}
	return "xz"
}

// ParsePlane parses the config spelling of a Plane
func ParsePlane(s string) (Plane, error) {
	switch s {
	case "", "xz", "XZ":
		return PlaneXZ, nil
	case "xy", "XY":
		return PlaneXY, nil
	}
	return 0, &ConfigurationError{Field: "plane", Reason: fmt.Sprintf("unknown plane %q", s)}
}

// Project drops the vertical coordinate of v
func (p Plane) Project(v r3.Vector) r2.Point {
	if p == PlaneXY {
		return r2.Point{X: v.X, Y: v.Y}
	}
	return r2.Point{X: v.X, Y: v.Z}
}

// VerticalAxis is the translation axis perpendicular to the plane
func (p Plane) VerticalAxis() Axis {
	if p == PlaneXY {
		return AxisTz
	}
	return AxisTy
}

// HorizontalAxes are the two in-plane translation axes
func (p Plane) HorizontalAxes() [2]Axis {
	if p == PlaneXY {
		return [2]Axis{AxisTx, AxisTy}
	}
	return [2]Axis{AxisTx, AxisTz}
}

// isFinite reports whether every component of v is a finite number
func isFinite(v r3.Vector) bool {
	for _, x := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	// math.Mod of a tiny negative value can round up to exactly 360
	if degrees >= 360 {
		degrees = 0
	}
	return degrees
}

// RotateXZ rotates p about the Y axis, CCW positive when looking down from +Y.
// qx = cos(a)·x + sin(a)·z, qz = -sin(a)·x + cos(a)·z
func RotateXZ(p r3.Vector, degrees float64) r3.Vector {
	sin, cos := math.Sincos(radians(degrees))
	return r3.Vector{
		X: cos*p.X + sin*p.Z,
		Y: p.Y,
		Z: -sin*p.X + cos*p.Z,
	}
}

// RotateXY rotates p about the Z axis, CCW positive.
// qx = cos(a)·x - sin(a)·y, qy = sin(a)·x + cos(a)·y
func RotateXY(p r3.Vector, degrees float64) r3.Vector {
	sin, cos := math.Sincos(radians(degrees))
	return r3.Vector{
		X: cos*p.X - sin*p.Y,
		Y: sin*p.X + cos*p.Y,
		Z: p.Z,
	}
}

// Rotate rotates p about the normal of the given plane
func Rotate(p r3.Vector, degrees float64, plane Plane) r3.Vector {
	if plane == PlaneXY {
		return RotateXY(p, degrees)
	}
	return RotateXZ(p, degrees)
}

// PointToLineDistance returns the perpendicular distance from t to the
// infinite line through p and q. Coincident p and q are a GeometryError.
func PointToLineDistance(p, q, t r2.Point) (float64, error) {
	d := q.Sub(p)
	den := d.Norm()
	if den == 0 {
		return 0, &GeometryError{Op: "point to line distance", Detail: fmt.Sprintf("p and q coincide at %v", p)}
	}
	num := math.Abs(d.Cross(p.Sub(t)))
	return num / den, nil
}

// IsBehind reports whether t lies behind an observer at p looking towards q
func IsBehind(p, q, t r2.Point) bool {
	return q.Sub(p).Dot(t.Sub(p)) < 0
}
