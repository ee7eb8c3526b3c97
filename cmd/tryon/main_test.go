package main

import (
	"testing"

	"go.viam.com/test"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/landmarks"
)

func TestParseEyes(t *testing.T) {
	lm, err := parseEyes("100, 150,200,150")
	test.That(t, err, test.ShouldBeNil)
	l, ok := lm.Point(landmarks.LeftEye)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, l.X, test.ShouldEqual, 100.0)
	r, _ := lm.Point(landmarks.RightEye)
	test.That(t, r.X, test.ShouldEqual, 200.0)

	_, err = parseEyes("1,2,3")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidLandmarks)
	_, err = parseEyes("1,2,x,4")
	test.That(t, errs.KindOf(err), test.ShouldEqual, errs.InvalidLandmarks)
}
