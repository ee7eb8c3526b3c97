package postprocess

import "image"

// OpaqueBounds returns the smallest rectangle containing every pixel whose
// alpha exceeds threshold. ok is false when no pixel qualifies.
func OpaqueBounds(img *image.NRGBA, threshold uint8) (r image.Rectangle, ok bool) {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[row+(x-b.Min.X)*4+3] <= threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX || maxY < minY {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// TrimTransparent crops img to its opaque bounds. Product shots often carry
// wide transparent margins, which would otherwise skew the native width the
// overlay is scaled against. Fully transparent images are returned as is.
func TrimTransparent(img *image.NRGBA, threshold uint8) *image.NRGBA {
	r, ok := OpaqueBounds(img, threshold)
	if !ok || r == img.Bounds() {
		return img
	}
	w, h := r.Dx(), r.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		so := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+w*4], img.Pix[so:so+w*4])
	}
	return out
}

// FlipHorizontal mirrors an image left-to-right. Front cameras deliver
// mirrored frames; flipping restores the true left/right of the face.
func FlipHorizontal(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		so := img.PixOffset(b.Min.X, b.Min.Y+y)
		do := y * out.Stride
		for x := 0; x < w; x++ {
			copy(out.Pix[do+x*4:do+x*4+4], img.Pix[so+(w-1-x)*4:so+(w-1-x)*4+4])
		}
	}
	return out
}
