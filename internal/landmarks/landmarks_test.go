package landmarks

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/raster"
)

func TestEyes(t *testing.T) {
	t.Run("distinct eyes are accepted", func(t *testing.T) {
		l, r, err := FromEyes(r2.Point{X: 100, Y: 150}, r2.Point{X: 200, Y: 150}).Eyes()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, l, test.ShouldResemble, r2.Point{X: 100, Y: 150})
		test.That(t, r.X, test.ShouldEqual, 200.0)
	})

	t.Run("coincident eyes are invalid", func(t *testing.T) {
		err := FromEyes(r2.Point{X: 5, Y: 5}, r2.Point{X: 5, Y: 5}).Validate()
		test.That(t, errors.Is(err, errs.InvalidLandmarks), test.ShouldBeTrue)
	})

	t.Run("missing eye is invalid", func(t *testing.T) {
		l := New(map[Name]r2.Point{LeftEye: {X: 1, Y: 1}, NoseTip: {X: 3, Y: 4}})
		test.That(t, errs.KindOf(l.Validate()), test.ShouldEqual, errs.InvalidLandmarks)
		test.That(t, errs.KindOf(Landmarks{}.Validate()), test.ShouldEqual, errs.InvalidLandmarks)
	})

	t.Run("non-finite eye is invalid", func(t *testing.T) {
		err := FromEyes(r2.Point{X: math.NaN(), Y: 1}, r2.Point{X: 2, Y: 1}).Validate()
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidLandmarks)
	})
}

func TestImmutability(t *testing.T) {
	src := map[Name]r2.Point{LeftEye: {X: 1, Y: 2}, RightEye: {X: 3, Y: 2}}
	l := New(src)
	src[LeftEye] = r2.Point{X: 99, Y: 99}
	p, _ := l.Point(LeftEye)
	test.That(t, p.X, test.ShouldEqual, 1.0)

	scaled := l.Scale(2, 3)
	p, _ = scaled.Point(RightEye)
	test.That(t, p, test.ShouldResemble, r2.Point{X: 6, Y: 6})
	p, _ = l.Point(RightEye)
	test.That(t, p, test.ShouldResemble, r2.Point{X: 3, Y: 2})
	test.That(t, l.Names(), test.ShouldResemble, []Name{LeftEye, RightEye})
}

func TestJSON(t *testing.T) {
	var l Landmarks
	err := l.UnmarshalJSON([]byte(`{"left_eye":{"x":100,"y":150},"right_eye":{"x":200,"y":150},"chin":{"x":150,"y":300}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Len(), test.ShouldEqual, 3)
	test.That(t, l.Validate(), test.ShouldBeNil)

	data, err := l.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	var back Landmarks
	test.That(t, back.UnmarshalJSON(data), test.ShouldBeNil)
	p, ok := back.Point(Chin)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.Y, test.ShouldEqual, 300.0)

	err = back.UnmarshalJSON([]byte(`[1,2]`))
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidLandmarks)
}

func TestMockDetector(t *testing.T) {
	ctx := context.Background()
	img := raster.New(4, 4)

	t.Run("finds no face by default", func(t *testing.T) {
		m := NewMockDetector()
		_, err := m.Detect(ctx, img)
		test.That(t, errs.KindOf(err), test.ShouldEqual, errs.DetectionError)
		test.That(t, m.Calls(), test.ShouldEqual, 1)
	})

	t.Run("returns configured landmarks", func(t *testing.T) {
		m := NewMockDetector()
		m.SetLandmarks(FrontalFace(640, 480))
		l, err := m.Detect(ctx, img)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, l.Validate(), test.ShouldBeNil)
	})

	t.Run("returns configured error", func(t *testing.T) {
		m := NewMockDetector()
		m.SetError(errs.New(errs.DetectionError, "test", "model offline"))
		_, err := m.Detect(ctx, img)
		test.That(t, errs.Message(err), test.ShouldEqual, "model offline")
	})

	t.Run("close is recorded", func(t *testing.T) {
		m := NewMockDetector()
		test.That(t, m.Close(), test.ShouldBeNil)
		test.That(t, m.Closed(), test.ShouldBeTrue)
	})

	t.Run("implements Detector", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = Static{}
	})
}

func TestStatic(t *testing.T) {
	s := Static{Landmarks: FrontalFace(100, 100)}
	l, err := s.Detect(context.Background(), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, l.Len(), test.ShouldEqual, 6)

	_, err = Static{}.Detect(context.Background(), nil)
	test.That(t, errors.Is(err, errs.DetectionError), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Detect(ctx, nil)
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.DetectionError)
}
