// Package compositor blends a flat glasses overlay onto a source photograph.
package compositor

import (
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"eyewear-tryon/internal/errs"
	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/raster"
)

// DefaultMaxPixels bounds the size of a composite output.
const DefaultMaxPixels = 1 << 28

// Compositor blends overlays onto sources. The zero value is not usable; use
// New.
type Compositor struct {
	// MaxPixels is the largest output (width*height) that will be allocated.
	MaxPixels int64
	// Interpolator resamples the overlay. BiLinear unless set.
	Interpolator draw.Interpolator
}

// New returns a compositor with the default limits.
func New() *Compositor {
	return &Compositor{MaxPixels: DefaultMaxPixels, Interpolator: draw.BiLinear}
}

var std = New()

// Composite blends overlay onto source with the default compositor.
func Composite(source, overlay *raster.Image, t geometry.Transform) (*raster.Image, error) {
	return std.Composite(source, overlay, t)
}

// Composite returns a new image the size of source with overlay drawn
// centered at t.Position, scaled by t.Scale and rotated by t.Rotation, blended
// source-over. Neither input is modified and the result shares no memory with
// them.
func (c *Compositor) Composite(source, overlay *raster.Image, t geometry.Transform) (*raster.Image, error) {
	const op = "compositor.composite"
	if err := source.Validate(op); err != nil {
		return nil, err
	}
	if err := overlay.Validate(op); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, errs.Newf(errs.InvalidLandmarks, op, "transform is not placeable: %+v", t)
	}
	if err := c.checkSize(op, source.Width, source.Height); err != nil {
		return nil, err
	}

	out := source.Clone()

	// The overlay is resampled into its own premultiplied layer; source
	// pixels the layer does not cover are left byte-identical.
	layer := image.NewRGBA(image.Rect(0, 0, source.Width, source.Height))
	interp := c.Interpolator
	if interp == nil {
		interp = draw.BiLinear
	}
	ov := overlay.NRGBA()
	interp.Transform(layer, Affine(t, overlay.Width, overlay.Height), ov, ov.Bounds(), draw.Src, nil)

	blendOver(out.Pix, layer.Pix)
	return out, nil
}

// blendOver composites the premultiplied layer over the non-premultiplied
// dst in place. Pixels with zero layer alpha are skipped.
func blendOver(dst, layer []uint8) {
	for i := 0; i+3 < len(dst); i += 4 {
		la := uint32(layer[i+3])
		if la == 0 {
			continue
		}
		if la == 255 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = layer[i], layer[i+1], layer[i+2], 255
			continue
		}
		sa := uint32(dst[i+3])
		// Alpha and premultiplied channels are carried in units of 1/(255*255).
		rest := sa * (255 - la)
		outA := la*255 + rest
		for c := 0; c < 3; c++ {
			premul := uint32(layer[i+c])*255*255 + uint32(dst[i+c])*rest
			dst[i+c] = uint8(min((premul+outA/2)/outA, 255))
		}
		dst[i+3] = uint8((outA + 127) / 255)
	}
}

func (c *Compositor) checkSize(op string, w, h int) error {
	limit := c.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	n := int64(w) * int64(h)
	if n/int64(h) != int64(w) || n > limit {
		return errs.Newf(errs.AllocationFailure, op, "output of %dx%d exceeds the %d pixel limit", w, h, limit)
	}
	return nil
}

// Affine returns the overlay-to-source matrix for t: the overlay's center is
// moved to the origin, scaled, rotated clockwise (image Y grows down) and
// moved to t.Position.
func Affine(t geometry.Transform, overlayW, overlayH int) f64.Aff3 {
	s := t.Scale
	sin, cos := math.Sincos(t.Rotation)
	hw, hh := float64(overlayW)/2, float64(overlayH)/2
	return f64.Aff3{
		s * cos, -s * sin, t.Position.X - s*(cos*hw-sin*hh),
		s * sin, s * cos, t.Position.Y - s*(sin*hw+cos*hh),
	}
}

// Footprint returns the four corners of the placed overlay in source pixel
// coordinates, clockwise from the overlay's top-left.
func Footprint(t geometry.Transform, overlayW, overlayH int) [4]image.Point {
	m := Affine(t, overlayW, overlayH)
	corners := [4][2]float64{{0, 0}, {float64(overlayW), 0}, {float64(overlayW), float64(overlayH)}, {0, float64(overlayH)}}
	var out [4]image.Point
	for i, p := range corners {
		x := m[0]*p[0] + m[1]*p[1] + m[2]
		y := m[3]*p[0] + m[4]*p[1] + m[5]
		out[i] = image.Pt(int(math.Round(x)), int(math.Round(y)))
	}
	return out
}
