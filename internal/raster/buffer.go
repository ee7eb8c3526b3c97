package raster

import "math"

// FrameBuffer is the scene's render surface, held as flat slices for cache
// locality. It is reused across frames; Clear resets it in place.
type FrameBuffer struct {
	Width  int
	Height int
	Color  []uint8   // RGBA interleaved, len = W*H*4
	ZBuf   []float64 // depth per pixel, len = W*H, larger is nearer
}

// NewFrameBuffer allocates a transparent color buffer and a -inf z-buffer.
func NewFrameBuffer(w, h int) *FrameBuffer {
	n := w * h
	fb := &FrameBuffer{
		Width:  w,
		Height: h,
		Color:  make([]uint8, n*4),
		ZBuf:   make([]float64, n),
	}
	fb.Clear()
	return fb
}

// Clear makes every pixel transparent and resets depth.
func (fb *FrameBuffer) Clear() {
	clear(fb.Color)
	inf := math.Inf(-1)
	for i := range fb.ZBuf {
		fb.ZBuf[i] = inf
	}
}

// Resize reallocates only when the pixel count grows; the contents are
// cleared either way.
func (fb *FrameBuffer) Resize(w, h int) {
	n := w * h
	if n > cap(fb.ZBuf) {
		fb.Color = make([]uint8, n*4)
		fb.ZBuf = make([]float64, n)
	} else {
		fb.Color = fb.Color[:n*4]
		fb.ZBuf = fb.ZBuf[:n]
	}
	fb.Width, fb.Height = w, h
	fb.Clear()
}

// Release drops the backing storage.
func (fb *FrameBuffer) Release() {
	fb.Color, fb.ZBuf = nil, nil
	fb.Width, fb.Height = 0, 0
}

// Bytes returns the memory held by the buffer.
func (fb *FrameBuffer) Bytes() int64 {
	return int64(cap(fb.Color)) + int64(cap(fb.ZBuf))*8
}

// Snapshot copies the color buffer into a new Image.
func (fb *FrameBuffer) Snapshot() *Image {
	img := New(fb.Width, fb.Height)
	copy(img.Pix, fb.Color)
	return img
}
