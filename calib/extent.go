package calib

import (
	"math"

	"github.com/paulmach/orb"
)

// PlanarBound returns the bounding box of the reference points in the working plane
func PlanarBound(refs []ReferencePoint, plane Plane) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(refs))
	for _, ref := range refs {
		p := plane.Project(ref.Position)
		mp = append(mp, orb.Point{p.X, p.Y})
	}
	return mp.Bound()
}

// SuggestStepScales derives step scales from the spread of the reference
// points: translation steps span twice the larger side of their planar
// bounding box, rotation steps a full turn.
func SuggestStepScales(refs []ReferencePoint, plane Plane) StepScales {
	steps := StepScales{Translation: 1, Rotation: 360}
	if len(refs) == 0 {
		return steps
	}

	b := PlanarBound(refs, plane)
	extent := math.Max(b.Right()-b.Left(), b.Top()-b.Bottom())
	if 2*extent > steps.Translation {
		steps.Translation = 2 * extent
	}
	return steps
}
