package scene

import (
	"github.com/golang/geo/r2"

	"eyewear-tryon/internal/mathutil"
)

// camera is an orthographic camera looking down -Z. World X spans [-1, 1]
// across the surface width; world Y uses the same unit length, so the
// visible Y range depends on the aspect ratio.
type camera struct {
	width, height int     // output size in pixels
	aspect        float64 // width / height
}

func newCamera(w, h int) camera {
	return camera{width: w, height: h, aspect: float64(w) / float64(h)}
}

// toNDC converts a source-image pixel position to normalized device
// coordinates (X right, Y up, both in [-1, 1] over the image).
func (c camera) toNDC(p r2.Point) r2.Point {
	return r2.Point{
		X: (p.X/float64(c.width) - 0.5) * 2,
		Y: -(p.Y/float64(c.height) - 0.5) * 2,
	}
}

// project maps a model-space vertex through a node pose onto a surface of
// fw×fh pixels. Z is kept as depth, larger is nearer.
func (c camera) project(v [3]float32, pose *pose, fw, fh float64) (x, y, z float64) {
	p := pose.m.MulVec3(mathutil.Vec3{float64(v[0]), float64(v[1]), float64(v[2])})
	ndcX := pose.ndc.X + p[0]
	ndcY := pose.ndc.Y + p[1]*c.aspect
	return (ndcX + 1) * 0.5 * fw, (1 - ndcY) * 0.5 * fh, p[2]
}

// pose is a node's placement in the camera's space.
type pose struct {
	ndc   r2.Point
	scale float64
	roll  float64 // counter-clockwise, camera Y up

	m mathutil.Mat3 // roll × uniform scale
}

func newPose(ndc r2.Point, scale, roll float64) pose {
	m := mathutil.Mat3Mul(mathutil.RotZ(roll), mathutil.Mat3Diag(scale, scale, scale))
	return pose{ndc: ndc, scale: scale, roll: roll, m: m}
}

func (p pose) valid() bool {
	return p.scale > 0 && mathutil.IsFinite(p.scale) &&
		mathutil.IsFinite(p.ndc.X) && mathutil.IsFinite(p.ndc.Y) && mathutil.IsFinite(p.roll)
}
