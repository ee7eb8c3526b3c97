package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/landmarks"
)

func TestComputeTransform(t *testing.T) {
	t.Run("reference face", func(t *testing.T) {
		lm := landmarks.FromEyes(r2.Point{X: 100, Y: 150}, r2.Point{X: 200, Y: 150})
		tr, err := ComputeTransform(lm, 400, 160)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Scale, test.ShouldAlmostEqual, 1.0)
		test.That(t, tr.Position.X, test.ShouldAlmostEqual, 150.0)
		test.That(t, tr.Position.Y, test.ShouldAlmostEqual, 158.0)
		test.That(t, tr.Rotation, test.ShouldEqual, 0.0)

		iod, err := InterocularDistance(lm)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, iod, test.ShouldAlmostEqual, 100.0)
	})

	t.Run("coincident eyes fail", func(t *testing.T) {
		lm := landmarks.FromEyes(r2.Point{X: 120, Y: 80}, r2.Point{X: 120, Y: 80})
		tr, err := ComputeTransform(lm, 400, 160)
		test.That(t, errors.Is(err, errs.InvalidLandmarks), test.ShouldBeTrue)
		test.That(t, tr, test.ShouldResemble, Transform{})
	})

	t.Run("missing eyes fail", func(t *testing.T) {
		_, err := ComputeTransform(landmarks.Landmarks{}, 400, 160)
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidLandmarks)
	})

	t.Run("zero native width fails", func(t *testing.T) {
		lm := landmarks.FromEyes(r2.Point{X: 0, Y: 0}, r2.Point{X: 10, Y: 0})
		_, err := ComputeTransform(lm, 0, 160)
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidImage)
		_, err = ComputeTransform(lm, 400, math.NaN())
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidImage)
	})

	t.Run("offset follows the image axis", func(t *testing.T) {
		lm := landmarks.FromEyes(r2.Point{X: 0, Y: 0}, r2.Point{X: 30, Y: 40})
		tr, err := ComputeTransform(lm, 100, 50)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Position.X, test.ShouldAlmostEqual, 15.0)
		test.That(t, tr.Position.Y, test.ShouldAlmostEqual, 20.0+0.08*50)
		test.That(t, tr.Scale, test.ShouldAlmostEqual, 2.0)
	})
}

func TestParams(t *testing.T) {
	lm := landmarks.FromEyes(r2.Point{X: 100, Y: 100}, r2.Point{X: 200, Y: 200})

	t.Run("tuned constants are honored", func(t *testing.T) {
		p := Params{ScaleFactor: 2, VerticalOffsetRatio: 0}
		tr, err := p.Compute(lm, 100, 100)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Scale, test.ShouldAlmostEqual, math.Sqrt2*2)
		test.That(t, tr.Position, test.ShouldResemble, r2.Point{X: 150, Y: 150})
	})

	t.Run("roll compensation follows the eye line", func(t *testing.T) {
		p := DefaultParams()
		p.RollCompensation = true
		tr, err := p.Compute(lm, 100, 100)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Rotation, test.ShouldAlmostEqual, math.Pi/4)
	})

	t.Run("invalid scale factor is rejected", func(t *testing.T) {
		_, err := Params{ScaleFactor: 0}.Compute(lm, 100, 100)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, Params{ScaleFactor: math.Inf(1)}.Validate(), test.ShouldNotBeNil)
		test.That(t, DefaultParams().Validate(), test.ShouldBeNil)
	})
}

func TestComputeTransformProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		left := r2.Point{X: rng.Float64() * 4000, Y: rng.Float64() * 4000}
		right := r2.Point{X: rng.Float64() * 4000, Y: rng.Float64() * 4000}
		if left == right {
			continue
		}
		w := 1 + rng.Float64()*2000
		tr, err := ComputeTransform(landmarks.FromEyes(left, right), w, w/2)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Scale, test.ShouldBeGreaterThan, 0)
		test.That(t, tr.Valid(), test.ShouldBeTrue)
	}
}

func TestIdentity(t *testing.T) {
	tr := Identity(640, 480)
	test.That(t, tr.Position, test.ShouldResemble, r2.Point{X: 320, Y: 240})
	test.That(t, tr.Scale, test.ShouldEqual, 1.0)
	test.That(t, tr.Valid(), test.ShouldBeTrue)
}
