package postprocess

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestDownsample(t *testing.T) {
	t.Run("same size is a no-op", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
		test.That(t, Downsample(img, 8, 6), test.ShouldEqual, img)
	})

	t.Run("transparent edges do not darken", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 4; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
		out := Downsample(img, 4, 4)
		test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 4))
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				c := out.NRGBAAt(x, y)
				if c.A > 16 {
					test.That(t, c.R, test.ShouldBeGreaterThan, 240)
				}
			}
		}
		test.That(t, out.NRGBAAt(0, 0).A, test.ShouldEqual, uint8(255))
		test.That(t, out.NRGBAAt(3, 3).A, test.ShouldEqual, uint8(0))
	})
}

func TestTrimTransparent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	img.SetNRGBA(5, 2, color.NRGBA{R: 10, A: 255})
	img.SetNRGBA(14, 7, color.NRGBA{G: 20, A: 255})
	img.SetNRGBA(0, 0, color.NRGBA{A: 3})

	r, ok := OpaqueBounds(img, 8)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r, test.ShouldResemble, image.Rect(5, 2, 15, 8))

	out := TrimTransparent(img, 8)
	test.That(t, out.Bounds(), test.ShouldResemble, image.Rect(0, 0, 10, 6))
	test.That(t, out.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{R: 10, A: 255})
	test.That(t, out.NRGBAAt(9, 5), test.ShouldResemble, color.NRGBA{G: 20, A: 255})

	empty := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	_, ok = OpaqueBounds(empty, 0)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, TrimTransparent(empty, 0), test.ShouldEqual, empty)
}

func TestFlipHorizontal(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{B: 3, A: 255})
	out := FlipHorizontal(img)
	test.That(t, out.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{B: 3, A: 255})
	test.That(t, out.NRGBAAt(2, 0), test.ShouldResemble, color.NRGBA{R: 1, A: 255})
	test.That(t, img.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{R: 1, A: 255})
}
