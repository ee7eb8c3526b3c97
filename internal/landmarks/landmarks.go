// Package landmarks models detected facial keypoints and the detector
// collaborator that produces them.
package landmarks

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	jsoniter "github.com/json-iterator/go"

	"eyewear-tryon/internal/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Name identifies a keypoint.
type Name string

// Keypoints the engine knows about. Only the eye centers are required; the
// rest are carried through for callers and diagnostics.
const (
	LeftEye  Name = "left_eye"
	RightEye Name = "right_eye"
	NoseTip  Name = "nose_tip"
	Chin     Name = "chin"
	LeftJaw  Name = "left_jaw"
	RightJaw Name = "right_jaw"
)

// Landmarks is an immutable set of named points in source-image pixel space.
// LeftEye is the eye on the image's left-hand side.
type Landmarks struct {
	points map[Name]r2.Point
}

// New copies points into a Landmarks value.
func New(points map[Name]r2.Point) Landmarks {
	cp := make(map[Name]r2.Point, len(points))
	for k, v := range points {
		cp[k] = v
	}
	return Landmarks{points: cp}
}

// FromEyes builds Landmarks holding only the two eye centers.
func FromEyes(left, right r2.Point) Landmarks {
	return New(map[Name]r2.Point{LeftEye: left, RightEye: right})
}

// Point returns the named point.
func (l Landmarks) Point(n Name) (r2.Point, bool) {
	p, ok := l.points[n]
	return p, ok
}

// Len returns the number of points carried.
func (l Landmarks) Len() int { return len(l.points) }

// Names returns the carried point names in sorted order.
func (l Landmarks) Names() []Name {
	names := make([]Name, 0, len(l.points))
	for n := range l.points {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Eyes returns both eye centers, failing with InvalidLandmarks when either is
// missing, non-finite, or when they coincide.
func (l Landmarks) Eyes() (left, right r2.Point, err error) {
	const op = "landmarks.eyes"
	left, okL := l.points[LeftEye]
	right, okR := l.points[RightEye]
	switch {
	case !okL && !okR:
		return left, right, errs.New(errs.InvalidLandmarks, op, "eye landmarks missing")
	case !okL:
		return left, right, errs.New(errs.InvalidLandmarks, op, "left eye landmark missing")
	case !okR:
		return left, right, errs.New(errs.InvalidLandmarks, op, "right eye landmark missing")
	}
	if !finite(left) || !finite(right) {
		return left, right, errs.New(errs.InvalidLandmarks, op, "eye landmark is not finite")
	}
	if right.Sub(left).Norm() == 0 {
		return left, right, errs.New(errs.InvalidLandmarks, op, "eye landmarks coincide")
	}
	return left, right, nil
}

// Validate checks the invariant required by the transform.
func (l Landmarks) Validate() error {
	_, _, err := l.Eyes()
	return err
}

// Scale returns a copy with every point multiplied by (sx, sy), for callers
// that resize the source image after detection.
func (l Landmarks) Scale(sx, sy float64) Landmarks {
	cp := make(map[Name]r2.Point, len(l.points))
	for k, p := range l.points {
		cp[k] = r2.Point{X: p.X * sx, Y: p.Y * sy}
	}
	return Landmarks{points: cp}
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MarshalJSON encodes as {"left_eye":{"x":..,"y":..},...}.
func (l Landmarks) MarshalJSON() ([]byte, error) {
	out := make(map[Name]jsonPoint, len(l.points))
	for k, p := range l.points {
		out[k] = jsonPoint{X: p.X, Y: p.Y}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form.
func (l *Landmarks) UnmarshalJSON(data []byte) error {
	var in map[Name]jsonPoint
	if err := json.Unmarshal(data, &in); err != nil {
		return errs.Wrap(errs.InvalidLandmarks, "landmarks.decode", err, "malformed landmark JSON")
	}
	l.points = make(map[Name]r2.Point, len(in))
	for k, p := range in {
		l.points[k] = r2.Point{X: p.X, Y: p.Y}
	}
	return nil
}

func finite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
