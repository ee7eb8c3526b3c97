package compositor

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"eyewear-tryon/internal/geometry"
	"eyewear-tryon/internal/landmarks"
	"eyewear-tryon/internal/raster"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

var (
	markerColor = color.NRGBA{R: 0, G: 220, B: 90, A: 255}
	boxColor    = color.NRGBA{R: 255, G: 64, B: 160, A: 255}
)

// Annotate returns a copy of img with every landmark marked, the overlay's
// placed footprint outlined and the transform printed in the corner. It is a
// calibration aid for the geometry parameters.
func Annotate(img *raster.Image, lm landmarks.Landmarks, t geometry.Transform, overlayW, overlayH int) (*raster.Image, error) {
	if err := img.Validate("compositor.annotate"); err != nil {
		return nil, err
	}
	dc := gg.NewContextForImage(img.NRGBA())

	r := float64(img.Width) / 200
	if r < 2 {
		r = 2
	}
	dc.SetColor(markerColor)
	for _, name := range lm.Names() {
		p, _ := lm.Point(name)
		dc.DrawCircle(p.X, p.Y, r)
		dc.Fill()
	}

	if t.Valid() && overlayW > 0 && overlayH > 0 {
		fp := Footprint(t, overlayW, overlayH)
		dc.SetColor(boxColor)
		dc.SetLineWidth(r / 2)
		for i := range fp {
			a, b := fp[i], fp[(i+1)%len(fp)]
			dc.DrawLine(float64(a.X), float64(a.Y), float64(b.X), float64(b.Y))
			dc.Stroke()
		}
		dc.DrawCircle(t.Position.X, t.Position.Y, r/2)
		dc.Fill()
	}

	size := float64(img.Height) / 40
	if size < 10 {
		size = 10
	}
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: size}))
	dc.SetColor(color.White)
	dc.DrawString(fmt.Sprintf("scale %.3f  rot %.1f°  at (%.0f, %.0f)",
		t.Scale, t.Rotation*180/math.Pi, t.Position.X, t.Position.Y), size/2, size*1.5)

	out := raster.FromImage(dc.Image())
	out.HasAlpha = img.HasAlpha
	return out, nil
}
