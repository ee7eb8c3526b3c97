package raster

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"eyewear-tryon/internal/errs"
)

// Image is the engine's raster exchange type: non-premultiplied RGBA with a
// tight stride of Width*4. Images handed out by the engine are never aliased
// by it afterwards.
type Image struct {
	Width    int
	Height   int
	Pix      []uint8
	HasAlpha bool
}

// New allocates a fully transparent image.
func New(w, h int) *Image {
	return &Image{Width: w, Height: h, Pix: make([]uint8, w*h*4), HasAlpha: true}
}

// Validate fails with InvalidImage for empty or inconsistent rasters.
func (img *Image) Validate(op string) error {
	if img == nil {
		return errs.New(errs.InvalidImage, op, "image is nil")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return errs.Newf(errs.InvalidImage, op, "image has zero area (%dx%d)", img.Width, img.Height)
	}
	if len(img.Pix) != img.Width*img.Height*4 {
		return errs.Newf(errs.InvalidImage, op, "pixel buffer is %d bytes, want %d", len(img.Pix), img.Width*img.Height*4)
	}
	return nil
}

// NRGBA returns a view sharing img's pixel buffer. Callers must treat the
// view as read-only unless they own img.
func (img *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    img.Pix,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	pix := make([]uint8, len(img.Pix))
	copy(pix, img.Pix)
	return &Image{Width: img.Width, Height: img.Height, Pix: pix, HasAlpha: img.HasAlpha}
}

// At returns the pixel at (x, y); out-of-range coordinates are transparent.
func (img *Image) At(x, y int) color.NRGBA {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return color.NRGBA{}
	}
	i := (y*img.Width + x) * 4
	return color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]}
}

// FromImage copies any decoded image into a new Image anchored at the origin.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			so := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], n.Pix[so:so+b.Dx()*4])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	}
	return &Image{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Pix:      dst.Pix,
		HasAlpha: ModelHasAlpha(src.ColorModel()),
	}
}

// ModelHasAlpha reports whether images in color model m can carry
// transparency.
func ModelHasAlpha(m color.Model) bool {
	switch m {
	case color.YCbCrModel, color.GrayModel, color.Gray16Model, color.CMYKModel:
		return false
	}
	return true
}
