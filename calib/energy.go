package calib

import (
	"math"

	"github.com/golang/geo/r2"
)

// Residual is the contribution of one observation to the energy
type Residual struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"` // perpendicular distance in the working plane
	Behind   bool    `json:"behind"`   // reference point lies behind the observer
	Value    float64 `json:"value"`    // distance plus the behind penalty, if any
}

// Energy returns the RMS point-to-ray distance for t, with the behind penalty
// applied per observation before squaring.
func (c *Calibrator) Energy(t Transform) float64 {
	var sum float64
	for _, p := range c.pairs {
		r := c.residual(t, p)
		sum += r.Value * r.Value
	}
	return math.Sqrt(sum / float64(len(c.pairs)))
}

// Residuals returns the per-observation breakdown of Energy(t), in input order
func (c *Calibrator) Residuals(t Transform) []Residual {
	out := make([]Residual, len(c.pairs))
	for i, p := range c.pairs {
		out[i] = c.residual(t, p)
	}
	return out
}

func (c *Calibrator) residual(t Transform, p pair) Residual {
	plane := c.cfg.Plane

	var origin, target, point r2.Point
	if c.cfg.Frame == FrameObservationToReference {
		origin = plane.Project(t.Apply(p.obs.Origin, plane))
		target = plane.Project(t.Apply(p.obs.Target(), plane))
		point = plane.Project(p.ref)
	} else {
		origin = plane.Project(p.obs.Origin)
		target = plane.Project(p.obs.Target())
		point = plane.Project(t.Apply(p.ref, plane))
	}

	d, err := PointToLineDistance(origin, target, point)
	if err != nil {
		// unreachable for validated observations: rotation preserves ray length
		d = math.Inf(1)
	}

	r := Residual{Label: p.obs.Label, Distance: d, Value: d}
	if IsBehind(origin, target, point) {
		r.Behind = true
		r.Value += c.cfg.BehindPenalty
	}
	return r
}
