package mathutil

import "math"

// RotX is the rotation by a radians about the X axis.
func RotX(a float64) Mat3 {
	s, c := math.Sincos(a)
	return Mat3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}

// RotZ is the rotation by a radians about the Z axis, counter-clockwise when
// looking down -Z. The scene uses it for head roll.
func RotZ(a float64) Mat3 {
	s, c := math.Sincos(a)
	return Mat3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}
