package mathutil

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestRotations(t *testing.T) {
	t.Run("RotZ quarter turn maps x onto y", func(t *testing.T) {
		v := RotZ(math.Pi / 2).MulVec3(Vec3{1, 0, 0})
		test.That(t, v[0], test.ShouldAlmostEqual, 0)
		test.That(t, v[1], test.ShouldAlmostEqual, 1)
	})

	t.Run("Z-up to Y-up sends +Z to +Y", func(t *testing.T) {
		v := ZUpToYUp.MulVec3(Vec3{0, 0, 1})
		test.That(t, v[1], test.ShouldAlmostEqual, 1)
		test.That(t, v[2], test.ShouldAlmostEqual, 0)
	})

	t.Run("identity euler is identity quaternion", func(t *testing.T) {
		m := EulerToQuat(0, 0, 0).Mat3()
		test.That(t, m, test.ShouldResemble, Mat3Identity())
	})
}

func TestTRS(t *testing.T) {
	m := TRS(Vec3{1, 2, 3}, RotZ(math.Pi), 2)
	p := m.MulPoint(Vec3{1, 0, 0})
	test.That(t, p[0], test.ShouldAlmostEqual, -1)
	test.That(t, p[1], test.ShouldAlmostEqual, 2)
	test.That(t, p[2], test.ShouldAlmostEqual, 3)
	test.That(t, m.Translation(), test.ShouldResemble, Vec3{1, 2, 3})

	d := m.MulDir(Vec3{0, 1, 0})
	test.That(t, d[1], test.ShouldAlmostEqual, -2)
	test.That(t, Mat4Identity().IsIdentity(), test.ShouldBeTrue)
	test.That(t, m.IsIdentity(), test.ShouldBeFalse)
}

func TestVec3(t *testing.T) {
	a, b := Vec3{1, 5, -2}, Vec3{3, -1, 0}
	test.That(t, a.Min(b), test.ShouldResemble, Vec3{1, -1, -2})
	test.That(t, a.Max(b), test.ShouldResemble, Vec3{3, 5, 0})
	test.That(t, Vec3{3, 4, 0}.Len(), test.ShouldEqual, 5.0)
	test.That(t, Vec3{}.Normalize(), test.ShouldResemble, Vec3{})
	test.That(t, IsFinite(math.Inf(1)), test.ShouldBeFalse)
	test.That(t, IsFinite(1.5), test.ShouldBeTrue)
}
