// Package geometry maps facial landmarks to the placement of a glasses
// overlay. Everything here is a pure function of its inputs.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/landmarks"
)

// Transform places an overlay relative to the source image.
//
// Position is where the overlay's center lands, in source pixels. Scale
// multiplies the overlay's native size. Rotation is in radians, clockwise in
// image space (Y grows downward).
type Transform struct {
	Position r2.Point `json:"position"`
	Scale    float64  `json:"scale"`
	Rotation float64  `json:"rotation"`
}

// Identity places an overlay of size w×h exactly over a w×h source.
func Identity(w, h int) Transform {
	return Transform{Position: r2.Point{X: float64(w) / 2, Y: float64(h) / 2}, Scale: 1}
}

// Valid reports whether t satisfies the transform invariants.
func (t Transform) Valid() bool {
	return t.Scale > 0 && finite(t.Scale) && finite(t.Position.X) && finite(t.Position.Y) && finite(t.Rotation)
}

// Params are the tunable fit constants. Both were calibrated by eye against
// product photos; they are configuration, not physics.
type Params struct {
	// ScaleFactor converts interocular distance to frame width. At 4.0 the
	// frame spans the face rather than only the gap between the pupils.
	ScaleFactor float64 `json:"scale_factor" validate:"gt=0"`

	// VerticalOffsetRatio moves the frame below the eye line by this fraction
	// of the interocular distance, where glasses rest on the nose.
	VerticalOffsetRatio float64 `json:"vertical_offset_ratio" validate:"gte=-1,lte=1"`

	// RollCompensation rotates the frame to follow head tilt. Off by default.
	RollCompensation bool `json:"roll_compensation"`
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{ScaleFactor: 4.0, VerticalOffsetRatio: 0.08}
}

// Validate rejects parameters that would produce a degenerate transform.
func (p Params) Validate() error {
	if !(p.ScaleFactor > 0) || !finite(p.ScaleFactor) {
		return errs.Newf(errs.InvalidState, "geometry.params", "scale factor must be positive, got %v", p.ScaleFactor)
	}
	if !finite(p.VerticalOffsetRatio) {
		return errs.New(errs.InvalidState, "geometry.params", "vertical offset ratio must be finite")
	}
	return nil
}

// ComputeTransform computes a transform with DefaultParams.
func ComputeTransform(lm landmarks.Landmarks, overlayNativeWidth, overlayNativeHeight float64) (Transform, error) {
	return DefaultParams().Compute(lm, overlayNativeWidth, overlayNativeHeight)
}

// Compute maps landmarks to a transform for an overlay whose native size is
// overlayNativeWidth × overlayNativeHeight pixels.
//
// Fails with InvalidLandmarks when the eyes are missing, non-finite or
// coincide, and with InvalidImage for a non-positive native width.
func (p Params) Compute(lm landmarks.Landmarks, overlayNativeWidth, overlayNativeHeight float64) (Transform, error) {
	const op = "geometry.compute"
	if err := p.Validate(); err != nil {
		return Transform{}, err
	}
	if !(overlayNativeWidth > 0) || !finite(overlayNativeWidth) {
		return Transform{}, errs.Newf(errs.InvalidImage, op, "overlay native width must be positive, got %v", overlayNativeWidth)
	}
	if !(overlayNativeHeight > 0) || !finite(overlayNativeHeight) {
		return Transform{}, errs.Newf(errs.InvalidImage, op, "overlay native height must be positive, got %v", overlayNativeHeight)
	}

	left, right, err := lm.Eyes()
	if err != nil {
		return Transform{}, err
	}

	eyeLine := right.Sub(left)
	iod := eyeLine.Norm()
	mid := left.Add(right).Mul(0.5)

	t := Transform{
		Position: r2.Point{X: mid.X, Y: mid.Y + p.VerticalOffsetRatio*iod},
		Scale:    iod / overlayNativeWidth * p.ScaleFactor,
	}
	if p.RollCompensation {
		t.Rotation = math.Atan2(eyeLine.Y, eyeLine.X)
	}
	if !t.Valid() {
		// Only reachable through overflow of extreme coordinates.
		return Transform{}, errs.New(errs.InvalidLandmarks, op, "landmarks produce a non-finite transform")
	}
	return t, nil
}

// InterocularDistance returns the Euclidean distance between the eyes.
func InterocularDistance(lm landmarks.Landmarks) (float64, error) {
	left, right, err := lm.Eyes()
	if err != nil {
		return 0, err
	}
	return right.Sub(left).Norm(), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
