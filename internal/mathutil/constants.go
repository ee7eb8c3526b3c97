package mathutil

import "math"

// ZUpToYUp converts Z-up (DirectX-style) model space to the Y-up camera
// space used by the scene: Rx(-90°).
var ZUpToYUp = RotX(math.Pi / -2)

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
